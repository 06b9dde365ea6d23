package engine

import (
	"sync"

	"github.com/whaleflow/whaleflow/internal/trade"
)

// AlertKind discriminates detector alerts on the fan-out stream.
type AlertKind string

const (
	AlertZScore       AlertKind = "zscore_spike"
	AlertSweep        AlertKind = "sweep"
	AlertWalletWhale  AlertKind = "wallet_whale"
	AlertVenueAccumul AlertKind = "venue_accumulation"
)

// Alert is one detector firing, flattened for subscribers.
type Alert struct {
	Kind      AlertKind      `json:"kind"`
	Platform  trade.Platform `json:"platform"`
	Market    string         `json:"market,omitempty"`
	Side      string         `json:"side,omitempty"`
	Wallet    string         `json:"wallet,omitempty"`
	Z         float64        `json:"z,omitempty"`
	Trades    int            `json:"trades,omitempty"`
	SizeUSD   float64        `json:"size_usd,omitempty"`
	TotalUSD  float64        `json:"total_usd,omitempty"`
	Timestamp float64        `json:"timestamp"`
}

// AlertHub fans detector alerts out to any number of subscribers.
// Publishing is non-blocking: slow subscribers get alerts dropped.
type AlertHub struct {
	mu   sync.RWMutex
	subs []chan Alert
}

// NewAlertHub creates an empty hub.
func NewAlertHub() *AlertHub {
	return &AlertHub{}
}

// Subscribe returns a buffered channel receiving every published alert. The
// caller must drain the channel to avoid dropped alerts.
func (h *AlertHub) Subscribe() <-chan Alert {
	ch := make(chan Alert, 256)
	h.mu.Lock()
	h.subs = append(h.subs, ch)
	h.mu.Unlock()
	return ch
}

// Publish delivers an alert to all current subscribers without blocking.
func (h *AlertHub) Publish(alert Alert) {
	h.mu.RLock()
	for _, ch := range h.subs {
		select {
		case ch <- alert:
		default:
			// Slow subscriber - drop.
		}
	}
	h.mu.RUnlock()
}
