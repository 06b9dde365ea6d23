// Package detector holds the windowed whale detectors. Each detector keeps
// its own lock and returns alerts as values; callers decide how to log or
// publish them. Pruning always uses the newest add's timestamp as "now", so
// the detectors are clock-free and replayable.
package detector

import (
	"math"
	"sync"

	"github.com/whaleflow/whaleflow/internal/trade"
)

type timedValue struct {
	ts    float64
	value float64
}

// SlidingSum maintains the sum of values inside a trailing time window.
// Not safe for concurrent use; owners wrap it in their own lock.
type SlidingSum struct {
	maxAge float64
	items  []timedValue
	total  float64
}

// NewSlidingSum builds a window of maxAge seconds.
func NewSlidingSum(maxAgeSeconds float64) *SlidingSum {
	return &SlidingSum{maxAge: maxAgeSeconds}
}

// Add appends a value, prunes entries older than the window relative to this
// timestamp, and returns the running total.
func (s *SlidingSum) Add(ts, value float64) float64 {
	s.items = append(s.items, timedValue{ts: ts, value: value})
	s.total += value
	s.prune(ts)
	return s.total
}

func (s *SlidingSum) prune(now float64) {
	cutoff := now - s.maxAge
	i := 0
	for i < len(s.items) && s.items[i].ts < cutoff {
		s.total -= s.items[i].value
		i++
	}
	if i > 0 {
		s.items = append(s.items[:0], s.items[i:]...)
	}
}

// RollingStats maintains sum and sum-of-squares over a trailing window so
// mean/variance queries are O(1) amortised.
type RollingStats struct {
	maxAge     float64
	minSamples int
	items      []timedValue
	sum        float64
	sumSq      float64
}

// NewRollingStats builds a stats window of maxAge seconds requiring
// minSamples observations before producing scores.
func NewRollingStats(maxAgeSeconds float64, minSamples int) *RollingStats {
	return &RollingStats{maxAge: maxAgeSeconds, minSamples: minSamples}
}

// Add records a value and returns its z-score against the windowed
// population, or (0, false) when the sample count is below the minimum or
// the variance is zero.
func (r *RollingStats) Add(ts, value float64) (float64, bool) {
	r.items = append(r.items, timedValue{ts: ts, value: value})
	r.sum += value
	r.sumSq += value * value
	r.prune(ts)

	count := len(r.items)
	if count < r.minSamples {
		return 0, false
	}
	mean := r.sum / float64(count)
	variance := r.sumSq/float64(count) - mean*mean
	if variance <= 0 {
		return 0, false
	}
	return (value - mean) / math.Sqrt(variance), true
}

func (r *RollingStats) prune(now float64) {
	cutoff := now - r.maxAge
	i := 0
	for i < len(r.items) && r.items[i].ts < cutoff {
		r.sum -= r.items[i].value
		r.sumSq -= r.items[i].value * r.items[i].value
		i++
	}
	if i > 0 {
		r.items = append(r.items[:0], r.items[i:]...)
	}
}

// Record is the slimmed trade view the rolling trade window keeps.
type Record struct {
	Timestamp    float64
	Platform     trade.Platform
	Market       string
	SizeUSD      float64
	Side         string
	ActorAddress string
}

// TradeWindow keeps a bounded-age buffer of recent trades across both venues.
type TradeWindow struct {
	mu     sync.Mutex
	maxAge float64
	items  []Record
}

// NewTradeWindow builds a window of maxAge seconds.
func NewTradeWindow(maxAgeSeconds float64) *TradeWindow {
	return &TradeWindow{maxAge: maxAgeSeconds}
}

// Add appends a record and prunes everything older than the window relative
// to the record's own timestamp.
func (w *TradeWindow) Add(rec Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = append(w.items, rec)
	cutoff := rec.Timestamp - w.maxAge
	i := 0
	for i < len(w.items) && w.items[i].Timestamp < cutoff {
		i++
	}
	if i > 0 {
		w.items = append(w.items[:0], w.items[i:]...)
	}
}

// Len reports the number of records currently held.
func (w *TradeWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Snapshot copies the current window contents, oldest first.
func (w *TradeWindow) Snapshot() []Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Record, len(w.items))
	copy(out, w.items)
	return out
}
