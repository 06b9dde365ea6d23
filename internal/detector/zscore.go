package detector

import (
	"sync"

	"github.com/whaleflow/whaleflow/internal/trade"
)

type marketKey struct {
	Platform trade.Platform
	Market   string
}

// ZScoreAlert reports a trade whose size is a statistical outlier for its
// market.
type ZScoreAlert struct {
	Platform  trade.Platform
	Market    string
	Z         float64
	SizeUSD   float64
	Timestamp float64
}

// ZScore flags trades whose notional exceeds the configured z-score
// threshold against a per-(platform, market) rolling population, with a
// per-key cooldown between alerts.
type ZScore struct {
	windowSeconds float64
	threshold     float64
	minSamples    int
	cooldown      float64

	mu        sync.Mutex
	windows   map[marketKey]*RollingStats
	lastAlert map[marketKey]float64
}

// NewZScore builds the detector.
func NewZScore(windowSeconds int, threshold float64, minSamples int, cooldownSeconds float64) *ZScore {
	return &ZScore{
		windowSeconds: float64(windowSeconds),
		threshold:     threshold,
		minSamples:    minSamples,
		cooldown:      cooldownSeconds,
		windows:       make(map[marketKey]*RollingStats),
		lastAlert:     make(map[marketKey]float64),
	}
}

// Add records a trade and returns an alert when its z-score crosses the
// threshold outside the cooldown.
func (d *ZScore) Add(platform trade.Platform, market string, ts, sizeUSD float64) *ZScoreAlert {
	key := marketKey{Platform: platform, Market: market}

	d.mu.Lock()
	defer d.mu.Unlock()

	window := d.windows[key]
	if window == nil {
		window = NewRollingStats(d.windowSeconds, d.minSamples)
		d.windows[key] = window
	}
	z, ok := window.Add(ts, sizeUSD)
	if !ok {
		return nil
	}
	if z < d.threshold || ts-d.lastAlert[key] < d.cooldown {
		return nil
	}
	d.lastAlert[key] = ts
	return &ZScoreAlert{Platform: platform, Market: market, Z: z, SizeUSD: sizeUSD, Timestamp: ts}
}
