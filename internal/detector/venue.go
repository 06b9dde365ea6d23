package detector

import "sync"

// VenueAccumulator tracks one venue-wide sliding sum with a latched
// threshold: Add reports true exactly once per crossing, and the latch
// releases when the windowed total decays below the threshold.
type VenueAccumulator struct {
	threshold float64

	mu     sync.Mutex
	window *SlidingSum
	active bool
}

// NewVenueAccumulator builds the accumulator.
func NewVenueAccumulator(windowSeconds int, thresholdUSD float64) *VenueAccumulator {
	return &VenueAccumulator{
		threshold: thresholdUSD,
		window:    NewSlidingSum(float64(windowSeconds)),
	}
}

// Add records a value and reports whether the total newly crossed the
// threshold, plus the current windowed total.
func (a *VenueAccumulator) Add(ts, sizeUSD float64) (bool, float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := a.window.Add(ts, sizeUSD)
	switch {
	case total >= a.threshold && !a.active:
		a.active = true
		return true, total
	case total < a.threshold && a.active:
		a.active = false
	}
	return false, total
}

// Active reports whether the latch is currently engaged.
func (a *VenueAccumulator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}
