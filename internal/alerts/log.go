package alerts

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes alert events to the logger. Useful for development and
// as a fallback when no transport is configured.
type LogPublisher struct {
	log *logrus.Logger
}

// NewLogPublisher creates a new log publisher
func NewLogPublisher(log *logrus.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs the alert event
func (p *LogPublisher) Publish(ctx context.Context, channel string, event *Event) error {
	p.log.WithFields(logrus.Fields{
		"channel":       channel,
		"rule_id":       event.RuleID,
		"merchant_id":   event.MerchantID,
		"metric":        event.Metric,
		"operator":      event.Operator,
		"threshold":     event.Threshold,
		"value":         event.Value,
		"time_window_s": event.TimeWindowS,
	}).Info("Alert triggered")
	return nil
}
