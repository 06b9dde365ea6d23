package detector

import "sync"

// WalletTracker accumulates per-wallet notional inside a trailing window and
// latches an alert per threshold crossing: a wallet is flagged once when its
// windowed total crosses the threshold and re-armed only after the total
// decays back below it.
type WalletTracker struct {
	windowSeconds float64
	threshold     float64

	mu      sync.Mutex
	wallets map[string]*SlidingSum
	flagged map[string]bool
}

// NewWalletTracker builds the tracker.
func NewWalletTracker(windowSeconds int, thresholdUSD float64) *WalletTracker {
	return &WalletTracker{
		windowSeconds: float64(windowSeconds),
		threshold:     thresholdUSD,
		wallets:       make(map[string]*SlidingSum),
		flagged:       make(map[string]bool),
	}
}

// Add records a trade for the wallet and reports whether this trade newly
// flagged it, plus the wallet's current windowed total. Empty wallets are
// ignored.
func (t *WalletTracker) Add(wallet string, ts, sizeUSD float64) (bool, float64) {
	if wallet == "" {
		return false, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.wallets[wallet]
	if window == nil {
		window = NewSlidingSum(t.windowSeconds)
		t.wallets[wallet] = window
	}
	total := window.Add(ts, sizeUSD)
	if total >= t.threshold && !t.flagged[wallet] {
		t.flagged[wallet] = true
		return true, total
	}
	if total < t.threshold && t.flagged[wallet] {
		delete(t.flagged, wallet)
	}
	return false, total
}

// Flagged reports whether the wallet is currently latched.
func (t *WalletTracker) Flagged(wallet string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flagged[wallet]
}
