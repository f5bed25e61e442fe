package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/insightfulhq/insightful-orders/internal/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the GORM connection and exposes the merchant-scoped query surface
// the analytics engine and rule evaluator consume. Every order query takes an
// explicit merchant ID; there is no way to aggregate across tenants.
type DB struct {
	conn *gorm.DB
	log  *logrus.Logger
}

// New opens a database connection for the configured backend. MySQL is the
// production store; SQLite is supported for tests and local development.
func New(cfg *config.Config, log *logrus.Logger) (*DB, error) {
	gormLogger := logger.New(
		&gormLogAdapter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "mysql":
		dialector = mysql.Open(cfg.DatabaseDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.DatabaseDriver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	sqlDB.SetConnMaxIdleTime(cfg.DatabaseMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{conn: conn, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs GORM auto-migration (for development only)
func (db *DB) AutoMigrate() error {
	return db.conn.AutoMigrate(
		&Merchant{},
		&Customer{},
		&Order{},
		&AlertRule{},
	)
}

// monthExpr returns the dialect-specific SQL expression bucketing expr to a
// 'YYYY-MM' calendar month string. Both backends must produce identical
// bucketing for cohort results to match.
func (db *DB) monthExpr(expr string) string {
	if db.conn.Dialector.Name() == "sqlite" {
		return fmt.Sprintf("strftime('%%Y-%%m', %s)", expr)
	}
	return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m')", expr)
}

// epochExpr returns the dialect-specific SQL expression converting a datetime
// expression to unix seconds.
func (db *DB) epochExpr(expr string) string {
	if db.conn.Dialector.Name() == "sqlite" {
		return fmt.Sprintf("CAST(strftime('%%s', %s) AS INTEGER)", expr)
	}
	return fmt.Sprintf("UNIX_TIMESTAMP(%s)", expr)
}

// CreateMerchant inserts a merchant record.
func (db *DB) CreateMerchant(ctx context.Context, m *Merchant) error {
	return db.conn.WithContext(ctx).Create(m).Error
}

// CreateCustomer inserts a customer record.
func (db *DB) CreateCustomer(ctx context.Context, c *Customer) error {
	return db.conn.WithContext(ctx).Create(c).Error
}

// CreateOrder inserts an order record.
func (db *DB) CreateOrder(ctx context.Context, o *Order) error {
	return db.conn.WithContext(ctx).Create(o).Error
}

// CreateAlertRule validates and inserts an alert rule.
func (db *DB) CreateAlertRule(ctx context.Context, r *AlertRule) error {
	if r.TimeWindowS < MinRuleWindowS || r.TimeWindowS > MaxRuleWindowS {
		return fmt.Errorf("time_window_s must be in [%d, %d], got %d",
			MinRuleWindowS, MaxRuleWindowS, r.TimeWindowS)
	}
	return db.conn.WithContext(ctx).Create(r).Error
}

// ActiveAlertRules returns all active rules ordered by merchant for
// deterministic batching.
func (db *DB) ActiveAlertRules(ctx context.Context) ([]AlertRule, error) {
	var rules []AlertRule
	result := db.conn.WithContext(ctx).
		Where("is_active = ?", true).
		Order("merchant_id ASC").
		Find(&rules)
	return rules, result.Error
}

// CountOrdersInWindow counts one merchant's orders with created_at in
// [from, to], inclusive on both ends.
func (db *DB) CountOrdersInWindow(ctx context.Context, merchantID uint, from, to time.Time) (int64, error) {
	var count int64
	result := db.conn.WithContext(ctx).
		Model(&Order{}).
		Where("merchant_id = ? AND created_at >= ? AND created_at <= ?", merchantID, from, to).
		Count(&count)
	return count, result.Error
}

// OrderWindowStats returns the order count and average order value for one
// merchant over [from, to] in a single round-trip. The average is 0 when no
// orders match.
func (db *DB) OrderWindowStats(ctx context.Context, merchantID uint, from, to time.Time) (int64, float64, error) {
	var row struct {
		Orders int64
		Avg    *float64
	}
	result := db.conn.WithContext(ctx).
		Model(&Order{}).
		Select("COUNT(id) AS orders, AVG(total_amount) AS avg").
		Where("merchant_id = ? AND created_at >= ? AND created_at <= ?", merchantID, from, to).
		Scan(&row)
	if result.Error != nil {
		return 0, 0, result.Error
	}
	avg := 0.0
	if row.Avg != nil {
		avg = *row.Avg
	}
	return row.Orders, avg, nil
}

// CustomerAggregate is one customer's order history rollup.
type CustomerAggregate struct {
	CustomerID  uint
	LastOrderAt *time.Time
	Frequency   int64
	Monetary    float64
}

// CustomerOrderAggregates returns last order time, order count and monetary
// total per customer of one merchant. Customers with no orders do not appear.
func (db *DB) CustomerOrderAggregates(ctx context.Context, merchantID uint) ([]CustomerAggregate, error) {
	var rows []struct {
		CustomerID    uint
		LastOrderUnix *int64
		Frequency     int64
		Monetary      float64
	}
	sel := fmt.Sprintf(
		"customer_id, %s AS last_order_unix, COUNT(id) AS frequency, COALESCE(SUM(total_amount), 0) AS monetary",
		db.epochExpr("MAX(created_at)"),
	)
	result := db.conn.WithContext(ctx).
		Model(&Order{}).
		Select(sel).
		Where("merchant_id = ?", merchantID).
		Group("customer_id").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	out := make([]CustomerAggregate, 0, len(rows))
	for _, r := range rows {
		agg := CustomerAggregate{
			CustomerID: r.CustomerID,
			Frequency:  r.Frequency,
			Monetary:   r.Monetary,
		}
		if r.LastOrderUnix != nil {
			t := time.Unix(*r.LastOrderUnix, 0).UTC()
			agg.LastOrderAt = &t
		}
		out = append(out, agg)
	}
	return out, nil
}

// CustomerCohort pairs a customer with the calendar month of their first
// order for the merchant ('YYYY-MM').
type CustomerCohort struct {
	CustomerID  uint
	CohortMonth string
}

// CustomerCohortMonths computes each customer's cohort month from their
// first-ever order for this merchant. Never filtered by reporting bounds:
// a cohort is defined by the first order even when it falls outside them.
func (db *DB) CustomerCohortMonths(ctx context.Context, merchantID uint) ([]CustomerCohort, error) {
	var rows []CustomerCohort
	sel := fmt.Sprintf("customer_id, %s AS cohort_month", db.monthExpr("MIN(created_at)"))
	result := db.conn.WithContext(ctx).
		Model(&Order{}).
		Select(sel).
		Where("merchant_id = ?", merchantID).
		Group("customer_id").
		Scan(&rows)
	return rows, result.Error
}

// CustomerActivity is one distinct (customer, calendar month) pair in which
// the customer placed at least one order.
type CustomerActivity struct {
	CustomerID uint
	OrderMonth string
}

// CustomerActiveMonths returns the distinct months each customer of the
// merchant was active in, optionally bounded to [fromMonth, toMonth]
// inclusive (both month-floored).
func (db *DB) CustomerActiveMonths(ctx context.Context, merchantID uint, fromMonth, toMonth *time.Time) ([]CustomerActivity, error) {
	monthCol := db.monthExpr("created_at")
	q := db.conn.WithContext(ctx).
		Model(&Order{}).
		Select(fmt.Sprintf("customer_id, %s AS order_month", monthCol)).
		Where("merchant_id = ?", merchantID)
	if fromMonth != nil {
		q = q.Where("created_at >= ?", monthFloor(*fromMonth))
	}
	if toMonth != nil {
		q = q.Where("created_at < ?", monthFloor(*toMonth).AddDate(0, 1, 0))
	}

	var rows []CustomerActivity
	result := q.Group(fmt.Sprintf("customer_id, %s", monthCol)).Scan(&rows)
	return rows, result.Error
}

func monthFloor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// gormLogAdapter adapts logrus to GORM's logger interface
type gormLogAdapter struct {
	log *logrus.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
