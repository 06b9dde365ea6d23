package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/whaleflow/whaleflow/internal/trade"
)

// MemoryStore keeps the newest maxlen trades in an ordered slice under one
// lock. It mirrors the persistent backends' dedup: a (platform, trade_id)
// pair is inserted at most once while it remains in the ring.
type MemoryStore struct {
	mu     sync.Mutex
	maxlen int
	trades []trade.Trade
	seen   map[string]int // (platform|trade_id) → occurrences in ring

	nowFunc func() float64 // injectable clock for testing
}

// NewMemoryStore builds a ring bounded at maxlen (2000 when ≤ 0).
func NewMemoryStore(maxlen int) *MemoryStore {
	if maxlen <= 0 {
		maxlen = 2000
	}
	return &MemoryStore{
		maxlen:  maxlen,
		seen:    make(map[string]int),
		nowFunc: func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

func dedupKey(platform trade.Platform, tradeID string) string {
	return string(platform) + "|" + tradeID
}

// AddTrade appends a trade, rejecting dust and ring-resident duplicates,
// trimming the ring to the newest maxlen on overflow.
func (s *MemoryStore) AddTrade(t trade.Trade) error {
	if t.SizeUSD < MinTradeUSD {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.TradeID != "" {
		key := dedupKey(t.Platform, t.TradeID)
		if s.seen[key] > 0 {
			return nil
		}
		s.seen[key]++
	}
	s.trades = append(s.trades, t)
	if len(s.trades) > s.maxlen {
		evicted := s.trades[:len(s.trades)-s.maxlen]
		for _, old := range evicted {
			if old.TradeID == "" {
				continue
			}
			key := dedupKey(old.Platform, old.TradeID)
			if s.seen[key] > 1 {
				s.seen[key]--
			} else {
				delete(s.seen, key)
			}
		}
		s.trades = append(s.trades[:0], s.trades[len(s.trades)-s.maxlen:]...)
	}
	return nil
}

// RecentTrades returns matching trades newest-first, capped at q.Limit.
func (s *MemoryStore) RecentTrades(q RecentQuery) ([]trade.Trade, error) {
	allowed := map[string]bool{}
	for _, p := range q.Platforms {
		allowed[strings.ToLower(p)] = true
	}

	s.mu.Lock()
	snapshot := make([]trade.Trade, len(s.trades))
	copy(snapshot, s.trades)
	s.mu.Unlock()

	var out []trade.Trade
	for i := len(snapshot) - 1; i >= 0 && len(out) < q.Limit; i-- {
		t := snapshot[i]
		if t.SizeUSD < q.MinSizeUSD {
			continue
		}
		if q.SinceTS != nil && t.Timestamp < *q.SinceTS {
			continue
		}
		if len(allowed) > 0 && !allowed[strings.ToLower(string(t.Platform))] {
			continue
		}
		if q.Wallet != "" && t.ActorAddress != q.Wallet {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Stats summarises the ring over the standard 24h/60s cutoffs.
func (s *MemoryStore) Stats() (Stats, error) {
	now := s.nowFunc()
	cutoff24h := now - 86400
	cutoffMinute := now - 60

	s.mu.Lock()
	defer s.mu.Unlock()

	var stats Stats
	wallets := map[string]bool{}
	perMinute := 0
	var last *float64
	for _, t := range s.trades {
		if t.Timestamp >= cutoff24h {
			stats.Trades++
			if t.ActorAddress != "" {
				wallets[t.ActorAddress] = true
			}
		}
		if t.Timestamp >= cutoffMinute {
			perMinute++
		}
		if last == nil || t.Timestamp > *last {
			ts := t.Timestamp
			last = &ts
		}
	}
	stats.Wallets = len(wallets)
	stats.Flow = flowString(perMinute)
	stats.Last = last
	return stats, nil
}

// Leaderboard ranks wallets by windowed volume.
func (s *MemoryStore) Leaderboard(limit int, sinceTS *float64) ([]LeaderboardEntry, error) {
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())

	type totals struct{ volume, yes, no float64 }
	agg := map[string]*totals{}

	s.mu.Lock()
	for _, t := range s.trades {
		if t.ActorAddress == "" || t.Timestamp < cutoff {
			continue
		}
		row := agg[t.ActorAddress]
		if row == nil {
			row = &totals{}
			agg[t.ActorAddress] = row
		}
		row.volume += t.SizeUSD
		if sideIsYes(t.Side) {
			row.yes += t.SizeUSD
		} else if sideIsNo(t.Side) {
			row.no += t.SizeUSD
		}
	}
	s.mu.Unlock()

	entries := make([]LeaderboardEntry, 0, len(agg))
	for address, row := range agg {
		entries = append(entries, LeaderboardEntry{
			Address:  address,
			Volume:   row.volume,
			Position: positionFor(row.yes, row.no),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Volume > entries[j].Volume })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// WalletSummary aggregates one wallet's windowed activity; nil when the
// wallet has no matching rows.
func (s *MemoryStore) WalletSummary(address string, sinceTS *float64) (*WalletSummary, error) {
	if address == "" {
		return nil, nil
	}
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())

	s.mu.Lock()
	defer s.mu.Unlock()

	var summary WalletSummary
	for _, t := range s.trades {
		if t.ActorAddress != address || t.Timestamp < cutoff {
			continue
		}
		summary.Trades++
		summary.Volume += t.SizeUSD
		if sideIsYes(t.Side) {
			summary.YesVolume += t.SizeUSD
		} else if sideIsNo(t.Side) {
			summary.NoVolume += t.SizeUSD
		}
		if t.Timestamp > summary.LastTS {
			summary.LastTS = t.Timestamp
		}
	}
	if summary.Trades == 0 {
		return nil, nil
	}
	return &summary, nil
}

// AllWallets lists wallets by windowed volume with their dominant category.
func (s *MemoryStore) AllWallets(limit int, sinceTS *float64) ([]WalletActivity, error) {
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())

	type rollup struct {
		volume     float64
		trades     int
		lastTS     float64
		categories map[string]float64
	}
	agg := map[string]*rollup{}

	s.mu.Lock()
	for _, t := range s.trades {
		if t.ActorAddress == "" || t.Timestamp < cutoff {
			continue
		}
		row := agg[t.ActorAddress]
		if row == nil {
			row = &rollup{categories: map[string]float64{}}
			agg[t.ActorAddress] = row
		}
		row.volume += t.SizeUSD
		row.trades++
		if t.Timestamp > row.lastTS {
			row.lastTS = t.Timestamp
		}
		row.categories[categoryOrMixed(t.MarketCategory)] += t.SizeUSD
	}
	s.mu.Unlock()

	wallets := make([]WalletActivity, 0, len(agg))
	for address, row := range agg {
		wallets = append(wallets, WalletActivity{
			Address:     address,
			Volume:      row.volume,
			Trades:      row.trades,
			LastTS:      row.lastTS,
			TopCategory: topCategory(row.categories),
		})
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Volume > wallets[j].Volume })
	if len(wallets) > limit {
		wallets = wallets[:limit]
	}
	return wallets, nil
}

// WalletAnalytics breaks one wallet's windowed flow down by category; nil
// when the wallet has no matching rows.
func (s *MemoryStore) WalletAnalytics(address string, sinceTS *float64) (*WalletAnalytics, error) {
	if address == "" {
		return nil, nil
	}
	cutoff := cutoffOrDefault(sinceTS, s.nowFunc())

	categories := map[string]CategoryStats{}

	s.mu.Lock()
	for _, t := range s.trades {
		if t.ActorAddress != address || t.Timestamp < cutoff {
			continue
		}
		key := categoryOrMixed(t.MarketCategory)
		c := categories[key]
		c.Volume += t.SizeUSD
		c.Trades++
		categories[key] = c
	}
	s.mu.Unlock()

	if len(categories) == 0 {
		return nil, nil
	}
	return &WalletAnalytics{
		Categories:     categories,
		DiversityScore: diversityScore(categories),
	}, nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error { return nil }

func topCategory(volumes map[string]float64) string {
	best := MixedCategory
	bestVolume := -1.0
	for category, volume := range volumes {
		if volume > bestVolume {
			bestVolume = volume
			best = category
		}
	}
	return best
}
