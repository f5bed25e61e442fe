package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/insightfulhq/insightful-orders/internal/alerts"
	"github.com/insightfulhq/insightful-orders/internal/metrics"
	"github.com/insightfulhq/insightful-orders/internal/storage"
	"github.com/sirupsen/logrus"
)

// Metric is the closed set of rule metrics the evaluator can compute.
// Adding a metric is a deliberate code change: extend the constants and the
// table in New.
type Metric string

const (
	// MetricOrdersPerMin is the order arrival rate over the trailing window.
	MetricOrdersPerMin Metric = "orders_per_min"
	// MetricAOVWindow is the average order value over the trailing window.
	MetricAOVWindow Metric = "aov_window"
)

type metricFunc func(ctx context.Context, merchantID uint, windowS int) (float64, error)

// Evaluator batch-evaluates active alert rules against live metrics and
// publishes an event for every triggered rule. One invocation per scheduler
// tick; invocations never overlap.
type Evaluator struct {
	db        *storage.DB
	publisher alerts.Publisher
	log       *logrus.Logger
	table     map[Metric]metricFunc
	now       func() time.Time
}

// New creates an evaluator with its immutable metric table.
func New(db *storage.DB, publisher alerts.Publisher, log *logrus.Logger) *Evaluator {
	e := &Evaluator{
		db:        db,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
	e.table = map[Metric]metricFunc{
		MetricOrdersPerMin: e.ordersPerMin,
		MetricAOVWindow:    e.aovWindow,
	}
	return e
}

// Result reports how many rules one batch processed and how many triggered.
type Result struct {
	Evaluated int `json:"evaluated"`
	Matched   int `json:"matched"`
}

type cacheKey struct {
	merchantID uint
	metric     string
	windowS    int
}

// EvaluateRules loads all active rules and evaluates each against a freshly
// computed metric value. Identical (merchant, metric, window) combinations
// are computed at most once per batch; rules with unknown metric names are
// counted but skipped. A store failure aborts the tick, the next tick
// retries independently.
func (e *Evaluator) EvaluateRules(ctx context.Context) (Result, error) {
	start := time.Now()

	rules, err := e.db.ActiveAlertRules(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load active rules: %w", err)
	}

	// nil value = no calculator for this metric, skip quietly.
	cache := make(map[cacheKey]*float64)
	var res Result

	for i := range rules {
		rule := &rules[i]
		key := cacheKey{rule.MerchantID, rule.Metric, rule.TimeWindowS}
		value, seen := cache[key]
		if !seen {
			value, err = e.computeMetric(ctx, rule)
			if err != nil {
				return res, fmt.Errorf("compute %s for merchant %d: %w", rule.Metric, rule.MerchantID, err)
			}
			cache[key] = value
		}

		res.Evaluated++
		if value == nil {
			continue
		}

		if IsTriggered(rule.Operator, rule.Threshold, *value) {
			res.Matched++
			e.publish(ctx, rule, *value)
		}
	}

	metrics.RecordEvaluation(time.Since(start), res.Evaluated, res.Matched)
	return res, nil
}

func (e *Evaluator) computeMetric(ctx context.Context, rule *storage.AlertRule) (*float64, error) {
	fn, ok := e.table[Metric(rule.Metric)]
	if !ok {
		e.log.WithFields(logrus.Fields{
			"rule_id": rule.ID,
			"metric":  rule.Metric,
		}).Warn("Unknown metric in alert rule, skipping")
		metrics.RulesSkipped.Inc()
		return nil, nil
	}

	v, err := fn(ctx, rule.MerchantID, rule.TimeWindowS)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (e *Evaluator) publish(ctx context.Context, rule *storage.AlertRule, value float64) {
	event := &alerts.Event{
		RuleID:      rule.ID,
		MerchantID:  rule.MerchantID,
		Metric:      rule.Metric,
		Operator:    rule.Operator,
		Threshold:   rule.Threshold,
		Value:       value,
		TimeWindowS: rule.TimeWindowS,
		TriggeredAt: e.now().UTC().Format(time.RFC3339),
		Message:     alerts.RenderMessage(rule.Metric, rule.Operator, rule.Threshold, rule.TimeWindowS, value),
	}

	// A failed publish must not stop the rest of the batch.
	channel := alerts.ChannelForMerchant(rule.MerchantID)
	if err := e.publisher.Publish(ctx, channel, event); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"rule_id": rule.ID,
			"channel": channel,
		}).Error("Failed to publish alert")
		metrics.RecordAlertPublish("error")
		return
	}
	metrics.RecordAlertPublish("success")
}

// windowBounds resolves a trailing window of windowS seconds ending at the
// current time, truncated to whole seconds for stable timestamps.
func (e *Evaluator) windowBounds(windowS int) (time.Time, time.Time) {
	end := e.now().UTC().Truncate(time.Second)
	return end.Add(-time.Duration(windowS) * time.Second), end
}

func (e *Evaluator) ordersPerMin(ctx context.Context, merchantID uint, windowS int) (float64, error) {
	start, end := e.windowBounds(windowS)
	count, err := e.db.CountOrdersInWindow(ctx, merchantID, start, end)
	if err != nil {
		return 0, err
	}
	// Support sub-minute windows without dividing by zero.
	minutes := float64(windowS) / 60.0
	if minutes < 1e-9 {
		minutes = 1e-9
	}
	return float64(count) / minutes, nil
}

func (e *Evaluator) aovWindow(ctx context.Context, merchantID uint, windowS int) (float64, error) {
	start, end := e.windowBounds(windowS)
	_, avg, err := e.db.OrderWindowStats(ctx, merchantID, start, end)
	if err != nil {
		return 0, err
	}
	return avg, nil
}

// IsTriggered reports whether value violates the rule's threshold condition.
// Unrecognized operators never trigger.
func IsTriggered(operator string, threshold, value float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	case "!=":
		return value != threshold
	}
	return false
}
