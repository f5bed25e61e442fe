package storage

import (
	"time"

	"gorm.io/gorm"
)

// Merchant is the tenant scope for all analytics and alert rules.
type Merchant struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"size:100;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Merchant) TableName() string {
	return "merchants"
}

// Customer belongs to exactly one merchant.
type Customer struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	MerchantID uint      `gorm:"not null;index"`
	ExternalID string    `gorm:"size:64;index"`
	FirstName  string    `gorm:"size:80"`
	LastName   string    `gorm:"size:80"`
	Email      string    `gorm:"size:255;index"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (Customer) TableName() string {
	return "customers"
}

// Order is read-only to the analytics and alerting core. CreatedAt drives
// all windowing and must be UTC.
type Order struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	MerchantID  uint      `gorm:"not null;index:ix_orders_merchant_created_at,priority:1"`
	CustomerID  uint      `gorm:"not null;index"`
	ExternalID  string    `gorm:"size:64;index"`
	Status      string    `gorm:"size:32;not null;default:created;index"`
	Currency    string    `gorm:"size:3;not null;default:BRL"`
	TotalAmount float64   `gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt   time.Time `gorm:"not null;index:ix_orders_merchant_created_at,priority:2"`
}

func (Order) TableName() string {
	return "orders"
}

// AlertRule is a merchant-defined threshold rule evaluated periodically.
// Example: metric='orders_per_min', operator='>', threshold=5, time_window_s=60.
type AlertRule struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	MerchantID  uint      `gorm:"not null;index:ix_alert_rules_active,priority:1;index:ix_alert_rules_metric,priority:1"`
	Metric      string    `gorm:"size:64;not null;index:ix_alert_rules_metric,priority:2"`
	Operator    string    `gorm:"size:2;not null"`
	Threshold   float64   `gorm:"type:decimal(12,2);not null"`
	TimeWindowS int       `gorm:"not null;default:60"`
	IsActive    bool      `gorm:"not null;default:true;index:ix_alert_rules_active,priority:2"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (AlertRule) TableName() string {
	return "alert_rules"
}

// Rule evaluation windows are bounded so a single rule can never demand an
// unreasonably wide aggregate scan.
const (
	MinRuleWindowS = 10
	MaxRuleWindowS = 86400
)

func (m *Merchant) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (r *AlertRule) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	return nil
}
