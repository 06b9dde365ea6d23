package engine

import (
	"sync"
	"time"

	"github.com/whaleflow/whaleflow/internal/trade"
)

// FeedHealth tracks the last message seen per platform so the API can report
// feed staleness. A platform with no messages yet is unhealthy.
type FeedHealth struct {
	staleThreshold time.Duration

	mu   sync.RWMutex
	last map[trade.Platform]time.Time

	nowFunc func() time.Time // injectable clock for testing
}

// NewFeedHealth creates a tracker; a platform is healthy while its newest
// message is younger than staleThreshold.
func NewFeedHealth(staleThreshold time.Duration) *FeedHealth {
	return &FeedHealth{
		staleThreshold: staleThreshold,
		last:           make(map[trade.Platform]time.Time),
		nowFunc:        time.Now,
	}
}

// Touch records feed activity for a platform.
func (h *FeedHealth) Touch(platform trade.Platform) {
	now := h.nowFunc()
	h.mu.Lock()
	h.last[platform] = now
	h.mu.Unlock()
}

// Healthy reports whether the platform's feed delivered a message within the
// staleness threshold.
func (h *FeedHealth) Healthy(platform trade.Platform) bool {
	h.mu.RLock()
	last, ok := h.last[platform]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.nowFunc().Sub(last) <= h.staleThreshold
}

// Snapshot returns the seconds since each platform's last message.
func (h *FeedHealth) Snapshot() map[trade.Platform]float64 {
	now := h.nowFunc()
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[trade.Platform]float64, len(h.last))
	for platform, last := range h.last {
		out[platform] = now.Sub(last).Seconds()
	}
	return out
}
