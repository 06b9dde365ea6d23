// Package store persists accepted whale flows and serves the dashboard
// queries. Three backends implement the same interface: an in-memory ring,
// an embedded SQLite file, and Postgres.
package store

import (
	"strconv"
	"strings"
	"time"

	"github.com/whaleflow/whaleflow/internal/trade"
)

// MinTradeUSD is the ingress floor: flows below this notional are not stored.
const MinTradeUSD = 100.0

// defaultLookback is the window applied when a stats-style query omits
// since_ts.
const defaultLookback = 24 * time.Hour

// Stats is the dashboard headline row.
type Stats struct {
	Wallets int      `json:"wallets"`
	Trades  int      `json:"trades"`
	Flow    string   `json:"flow"`
	Last    *float64 `json:"last"`
}

// LeaderboardEntry ranks one wallet by windowed volume.
type LeaderboardEntry struct {
	Address  string  `json:"address"`
	Volume   float64 `json:"volume"`
	Position string  `json:"position"`
}

// WalletSummary aggregates one wallet's windowed activity.
type WalletSummary struct {
	Trades    int     `json:"trades"`
	Volume    float64 `json:"volume"`
	YesVolume float64 `json:"yes_volume"`
	NoVolume  float64 `json:"no_volume"`
	LastTS    float64 `json:"last_ts"`
}

// WalletActivity is one row of the all-wallets listing.
type WalletActivity struct {
	Address     string  `json:"address"`
	Volume      float64 `json:"volume"`
	Trades      int     `json:"trades"`
	LastTS      float64 `json:"last_ts"`
	TopCategory string  `json:"top_category"`
}

// CategoryStats aggregates a wallet's flow into one market category.
type CategoryStats struct {
	Volume float64 `json:"volume"`
	Trades int     `json:"trades"`
}

// WalletAnalytics breaks a wallet's windowed flow down by market category.
// DiversityScore is 1 minus the sum of squared volume shares: 0 for a
// single-category wallet, approaching 1 as flow spreads evenly.
type WalletAnalytics struct {
	Categories     map[string]CategoryStats `json:"categories"`
	DiversityScore float64                  `json:"diversity_score"`
}

// RecentQuery filters the recent-trades listing. Filters are AND-composed;
// a nil SinceTS means no time cutoff.
type RecentQuery struct {
	MinSizeUSD float64
	Limit      int
	SinceTS    *float64
	Platforms  []string
	Wallet     string
}

// TradeStore is the backend capability set. All methods are safe for
// concurrent use.
type TradeStore interface {
	AddTrade(t trade.Trade) error
	RecentTrades(q RecentQuery) ([]trade.Trade, error)
	Stats() (Stats, error)
	Leaderboard(limit int, sinceTS *float64) ([]LeaderboardEntry, error)
	WalletSummary(address string, sinceTS *float64) (*WalletSummary, error)
	AllWallets(limit int, sinceTS *float64) ([]WalletActivity, error)
	WalletAnalytics(address string, sinceTS *float64) (*WalletAnalytics, error)
	Close() error
}

// MixedCategory labels flow with no known market category.
const MixedCategory = "Mixed"

func sideIsYes(side string) bool {
	switch strings.ToLower(side) {
	case "yes", "buy":
		return true
	}
	return false
}

func sideIsNo(side string) bool {
	switch strings.ToLower(side) {
	case "no", "sell":
		return true
	}
	return false
}

func positionFor(yesVolume, noVolume float64) string {
	if yesVolume == 0 && noVolume == 0 {
		return "N/A"
	}
	if yesVolume >= noVolume {
		return "YES"
	}
	return "NO"
}

func categoryOrMixed(category string) string {
	if strings.TrimSpace(category) == "" {
		return MixedCategory
	}
	return category
}

// diversityScore computes 1 − Σ share² over category volumes.
func diversityScore(categories map[string]CategoryStats) float64 {
	total := 0.0
	for _, c := range categories {
		total += c.Volume
	}
	if total <= 0 {
		return 0
	}
	sumSq := 0.0
	for _, c := range categories {
		share := c.Volume / total
		sumSq += share * share
	}
	return 1 - sumSq
}

func flowString(perMinute int) string {
	return strconv.Itoa(perMinute) + "/min"
}

func cutoffOrDefault(sinceTS *float64, now float64) float64 {
	if sinceTS != nil {
		return *sinceTS
	}
	return now - defaultLookback.Seconds()
}
