package analytics

import (
	"math"
	"sort"
)

// ScorePair couples an entity ID with one raw metric value.
type ScorePair struct {
	ID    uint
	Value float64
}

// ScoreByQuintile maps each ID to an ordinal score 1-5 based on where its
// value falls against the 20/40/60/80th percentile thresholds of the input
// distribution. Thresholds use the nearest-rank method (ceil(q*n)-1 into the
// sorted values), not linear interpolation.
//
// With smallerIsBetter=true (recency) lower values score higher. When every
// value is identical, everyone scores a neutral 3.
func ScoreByQuintile(pairs []ScorePair, smallerIsBetter bool) map[uint]int {
	scores := make(map[uint]int, len(pairs))
	if len(pairs) == 0 {
		return scores
	}

	values := make([]float64, len(pairs))
	allEqual := true
	for i, p := range pairs {
		values[i] = p.Value
		if p.Value != pairs[0].Value {
			allEqual = false
		}
	}

	if allEqual {
		for _, p := range pairs {
			scores[p.ID] = 3
		}
		return scores
	}

	sort.Float64s(values)
	n := len(values)
	qidx := func(q float64) int {
		idx := int(math.Ceil(q*float64(n))) - 1
		if idx < 0 {
			idx = 0
		}
		if idx > n-1 {
			idx = n - 1
		}
		return idx
	}

	t20 := values[qidx(0.20)]
	t40 := values[qidx(0.40)]
	t60 := values[qidx(0.60)]
	t80 := values[qidx(0.80)]

	for _, p := range pairs {
		var bucket int
		switch v := p.Value; {
		case v <= t20:
			bucket = 1
		case v <= t40:
			bucket = 2
		case v <= t60:
			bucket = 3
		case v <= t80:
			bucket = 4
		default:
			bucket = 5
		}
		if smallerIsBetter {
			scores[p.ID] = 6 - bucket
		} else {
			scores[p.ID] = bucket
		}
	}

	return scores
}
