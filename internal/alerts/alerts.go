package alerts

import (
	"context"
	"fmt"
)

// Event is the payload published when an alert rule triggers. Constructed
// fresh per trigger and never persisted.
type Event struct {
	RuleID      uint    `json:"rule_id"`
	MerchantID  uint    `json:"merchant_id"`
	Metric      string  `json:"metric"`
	Operator    string  `json:"operator"`
	Threshold   float64 `json:"threshold"`
	Value       float64 `json:"value"`
	TimeWindowS int     `json:"time_window_s"`
	TriggeredAt string  `json:"triggered_at"`
	Message     string  `json:"message"`
}

// Publisher pushes alert events onto a merchant's notification channel.
// Fire-and-forget: no acknowledgment and no retry at this layer.
type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// ChannelForMerchant returns the canonical notification channel for a
// merchant. The literal format is part of the contract with external
// subscribers.
func ChannelForMerchant(merchantID uint) string {
	return fmt.Sprintf("alerts:merchant:%d", merchantID)
}

// RenderMessage builds the human-readable alert message.
func RenderMessage(metric, operator string, threshold float64, windowS int, value float64) string {
	return fmt.Sprintf("%s %s %g over last %ds (value=%.3f)", metric, operator, threshold, windowS, value)
}
