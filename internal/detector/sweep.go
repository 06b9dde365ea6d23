package detector

import (
	"sync"

	"github.com/whaleflow/whaleflow/internal/trade"
)

type sweepKey struct {
	Platform trade.Platform
	Market   string
	Side     string
}

type sweepEntry struct {
	ts      float64
	price   *float64
	sizeUSD float64
}

// SweepAlert reports a burst of trades at multiple price levels on one side
// of a market, the footprint of an order sweeping the book.
type SweepAlert struct {
	Platform  trade.Platform
	Market    string
	Side      string
	Trades    int
	TotalUSD  float64
	Timestamp float64
}

// Sweep buffers trades per (platform, market, side) inside a millisecond
// window and alerts when enough of them hit at two or more distinct prices.
type Sweep struct {
	windowSeconds float64
	minTrades     int
	cooldown      float64

	mu        sync.Mutex
	buffers   map[sweepKey][]sweepEntry
	lastAlert map[sweepKey]float64
}

// NewSweep builds the detector; the window is given in milliseconds.
func NewSweep(windowMS, minTrades int, cooldownSeconds float64) *Sweep {
	return &Sweep{
		windowSeconds: float64(windowMS) / 1000.0,
		minTrades:     minTrades,
		cooldown:      cooldownSeconds,
		buffers:       make(map[sweepKey][]sweepEntry),
		lastAlert:     make(map[sweepKey]float64),
	}
}

// Add records a trade and returns an alert when the windowed buffer holds at
// least minTrades with two or more distinct non-nil prices, outside the
// cooldown. Trades with nil prices count toward the trade total but not
// toward price diversity.
func (d *Sweep) Add(platform trade.Platform, market, side string, ts float64, price *float64, sizeUSD float64) *SweepAlert {
	key := sweepKey{Platform: platform, Market: market, Side: side}

	d.mu.Lock()
	defer d.mu.Unlock()

	buffer := append(d.buffers[key], sweepEntry{ts: ts, price: price, sizeUSD: sizeUSD})
	cutoff := ts - d.windowSeconds
	i := 0
	for i < len(buffer) && buffer[i].ts < cutoff {
		i++
	}
	if i > 0 {
		buffer = append(buffer[:0], buffer[i:]...)
	}
	d.buffers[key] = buffer

	if len(buffer) < d.minTrades {
		return nil
	}
	var minPrice, maxPrice float64
	priced := 0
	for _, entry := range buffer {
		if entry.price == nil {
			continue
		}
		p := *entry.price
		if priced == 0 || p < minPrice {
			minPrice = p
		}
		if priced == 0 || p > maxPrice {
			maxPrice = p
		}
		priced++
	}
	if priced < 2 || minPrice == maxPrice {
		return nil
	}
	if ts-d.lastAlert[key] < d.cooldown {
		return nil
	}
	total := 0.0
	for _, entry := range buffer {
		total += entry.sizeUSD
	}
	d.lastAlert[key] = ts
	return &SweepAlert{
		Platform:  platform,
		Market:    market,
		Side:      side,
		Trades:    len(buffer),
		TotalUSD:  total,
		Timestamp: ts,
	}
}
