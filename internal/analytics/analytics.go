package analytics

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/insightfulhq/insightful-orders/internal/storage"
	"github.com/sirupsen/logrus"
)

// Engine computes merchant-level KPIs from order data. Each method is a pure
// read over the order store; calls share no mutable state and are safe to run
// concurrently.
type Engine struct {
	db  *storage.DB
	log *logrus.Logger
}

// NewEngine creates an analytics engine over the given store.
func NewEngine(db *storage.DB, log *logrus.Logger) *Engine {
	return &Engine{db: db, log: log}
}

// AOVResult is the rolling average order value over one resolved window.
type AOVResult struct {
	Window string  `json:"window"`
	From   string  `json:"from"`
	To     string  `json:"to"`
	Orders int64   `json:"orders"`
	AOV    float64 `json:"aov"`
}

// RFMRecord is one customer's recency/frequency/monetary metrics and scores.
type RFMRecord struct {
	CustomerID  uint    `json:"customer_id"`
	RecencyDays int     `json:"recency_days"`
	Frequency   int64   `json:"frequency"`
	Monetary    float64 `json:"monetary"`
	R           int     `json:"r"`
	F           int     `json:"f"`
	M           int     `json:"m"`
	RFM         string  `json:"rfm"`
}

// Sentinel recency for customers whose last-order timestamp cannot be
// resolved. Ranks as worst-possible recency instead of failing the batch;
// should not occur when frequency > 0.
const unknownRecencyDays = 1_000_000_000

// CohortRow is one cohort's dense retention counts: Retention[k] is the
// number of distinct customers active k months after their first order.
type CohortRow struct {
	Cohort    string
	Retention []int
}

// MarshalJSON emits {"cohort": "YYYY-MM", "m0": n, "m1": n, ...} with every
// offset key present.
func (r CohortRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"cohort":`)
	buf.WriteString(strconv.Quote(r.Cohort))
	for i, n := range r.Retention {
		fmt.Fprintf(&buf, `,"m%d":%d`, i, n)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CohortMatrix is the monthly retention matrix for one merchant.
type CohortMatrix struct {
	Start   *string     `json:"start"`
	End     *string     `json:"end"`
	Cohorts []CohortRow `json:"cohorts"`
}

// RollingAOV computes the average order value for one merchant over a
// trailing window ending at now (zero value means current time).
func (e *Engine) RollingAOV(ctx context.Context, merchantID uint, window string, now time.Time) (*AOVResult, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	delta, err := ParseWindow(window)
	if err != nil {
		return nil, err
	}
	start := now.Add(-delta)

	orders, avg, err := e.db.OrderWindowStats(ctx, merchantID, start, now)
	if err != nil {
		return nil, fmt.Errorf("window stats: %w", err)
	}

	return &AOVResult{
		Window: window,
		From:   isoZ(start),
		To:     isoZ(now),
		Orders: orders,
		AOV:    round2(avg),
	}, nil
}

// RFMScores computes recency/frequency/monetary metrics and quintile scores
// for every customer of the merchant with at least one order.
func (e *Engine) RFMScores(ctx context.Context, merchantID uint, now time.Time) ([]RFMRecord, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	aggs, err := e.db.CustomerOrderAggregates(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("customer aggregates: %w", err)
	}
	if len(aggs) == 0 {
		return []RFMRecord{}, nil
	}

	records := make([]RFMRecord, 0, len(aggs))
	recencyPairs := make([]ScorePair, 0, len(aggs))
	freqPairs := make([]ScorePair, 0, len(aggs))
	monPairs := make([]ScorePair, 0, len(aggs))

	for _, a := range aggs {
		recencyDays := unknownRecencyDays
		if a.LastOrderAt != nil {
			recencyDays = int(now.Sub(*a.LastOrderAt) / (24 * time.Hour))
		} else {
			e.log.WithField("customer_id", a.CustomerID).Warn("Customer has orders but no last-order timestamp")
		}

		records = append(records, RFMRecord{
			CustomerID:  a.CustomerID,
			RecencyDays: recencyDays,
			Frequency:   a.Frequency,
			Monetary:    round2(a.Monetary),
		})
		recencyPairs = append(recencyPairs, ScorePair{ID: a.CustomerID, Value: float64(recencyDays)})
		freqPairs = append(freqPairs, ScorePair{ID: a.CustomerID, Value: float64(a.Frequency)})
		monPairs = append(monPairs, ScorePair{ID: a.CustomerID, Value: a.Monetary})
	}

	rScores := ScoreByQuintile(recencyPairs, true)
	fScores := ScoreByQuintile(freqPairs, false)
	mScores := ScoreByQuintile(monPairs, false)

	for i := range records {
		cid := records[i].CustomerID
		r, f, m := scoreOr3(rScores, cid), scoreOr3(fScores, cid), scoreOr3(mScores, cid)
		records[i].R = r
		records[i].F = f
		records[i].M = m
		records[i].RFM = fmt.Sprintf("%d%d%d", r, f, m)
	}

	return records, nil
}

// MonthlyCohorts builds the retention matrix for one merchant. A customer's
// cohort is the calendar month of their first-ever order for the merchant;
// optional start/end bounds filter the orders counted, not the cohort
// assignment. With no matching orders and no explicit bounds, start and end
// are null; explicit bounds are echoed back even with no data.
func (e *Engine) MonthlyCohorts(ctx context.Context, merchantID uint, start, end *time.Time) (*CohortMatrix, error) {
	cohorts, err := e.db.CustomerCohortMonths(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("cohort months: %w", err)
	}
	activity, err := e.db.CustomerActiveMonths(ctx, merchantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("active months: %w", err)
	}

	if len(activity) == 0 {
		return &CohortMatrix{
			Start:   monthKeyOrNil(start),
			End:     monthKeyOrNil(end),
			Cohorts: []CohortRow{},
		}, nil
	}

	cohortOf := make(map[uint]string, len(cohorts))
	for _, c := range cohorts {
		cohortOf[c.CustomerID] = c.CohortMonth
	}

	// Each activity row is a distinct (customer, month) pair, and a customer
	// maps to exactly one offset per month, so incrementing counts distinct
	// customers per (cohort, offset).
	matrix := make(map[string]map[int]int)
	maxOffset := 0
	var minMonth, maxMonth string
	for _, a := range activity {
		cohort, ok := cohortOf[a.CustomerID]
		if !ok {
			e.log.WithField("customer_id", a.CustomerID).Warn("Order activity without a cohort month")
			continue
		}
		offset := monthOrdinal(a.OrderMonth) - monthOrdinal(cohort)
		if offset < 0 {
			continue
		}
		if matrix[cohort] == nil {
			matrix[cohort] = make(map[int]int)
		}
		matrix[cohort][offset]++

		if offset > maxOffset {
			maxOffset = offset
		}
		if minMonth == "" || a.OrderMonth < minMonth {
			minMonth = a.OrderMonth
		}
		if a.OrderMonth > maxMonth {
			maxMonth = a.OrderMonth
		}
	}

	startOut := minMonth
	if start != nil {
		startOut = monthKey(*start)
	}
	endOut := maxMonth
	if end != nil {
		endOut = monthKey(*end)
	}

	keys := make([]string, 0, len(matrix))
	for k := range matrix {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]CohortRow, 0, len(keys))
	for _, k := range keys {
		row := CohortRow{Cohort: k, Retention: make([]int, maxOffset+1)}
		for offset, n := range matrix[k] {
			row.Retention[offset] = n
		}
		rows = append(rows, row)
	}

	return &CohortMatrix{Start: &startOut, End: &endOut, Cohorts: rows}, nil
}

// isoZ formats a UTC timestamp truncated to whole seconds with an explicit
// Z marker.
func isoZ(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05") + "Z"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func scoreOr3(scores map[uint]int, id uint) int {
	if s, ok := scores[id]; ok {
		return s
	}
	return 3
}

// monthOrdinal converts "YYYY-MM" into year*12+month so offsets are whole
// calendar months rather than day arithmetic.
func monthOrdinal(month string) int {
	if len(month) < 7 {
		return 0
	}
	year, _ := strconv.Atoi(month[:4])
	m, _ := strconv.Atoi(month[5:7])
	return year*12 + m
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func monthKeyOrNil(t *time.Time) *string {
	if t == nil {
		return nil
	}
	k := monthKey(*t)
	return &k
}
