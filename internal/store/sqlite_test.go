package store

import (
	"path/filepath"
	"testing"

	"github.com/whaleflow/whaleflow/internal/trade"
)

func newTestSQLite(t *testing.T, now float64) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	s.nowFunc = func() float64 { return now }
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	now := 100000.0
	s := newTestSQLite(t, now)

	price := 0.62
	qty := 800.0
	vol := 123456.0
	niche := true
	stock := false
	in := trade.Trade{
		Timestamp:      now - 10,
		Platform:       trade.PlatformPolymarket,
		Market:         "0xabc",
		MarketLabel:    "Fed cuts rates",
		SizeUSD:        496,
		Side:           "yes",
		ActorAddress:   "0xwhale",
		Price:          &price,
		Quantity:       &qty,
		TradeID:        "t1",
		MarketIsNiche:  &niche,
		MarketIsStock:  &stock,
		MarketVolume:   &vol,
		ClusterID:      "c-1",
		MarketCategory: "Economy",
	}
	if err := s.AddTrade(in); err != nil {
		t.Fatal(err)
	}

	trades, err := s.RecentTrades(RecentQuery{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d rows", len(trades))
	}
	got := trades[0]
	if got.Market != in.Market || got.MarketLabel != in.MarketLabel || got.Side != in.Side {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Price == nil || *got.Price != price || got.Quantity == nil || *got.Quantity != qty {
		t.Fatalf("numeric fields: %+v", got)
	}
	if got.MarketIsNiche == nil || !*got.MarketIsNiche || got.MarketIsStock == nil || *got.MarketIsStock {
		t.Fatalf("bool fields: %+v", got)
	}
	if got.ClusterID != "c-1" || got.MarketCategory != "Economy" {
		t.Fatalf("metadata fields: %+v", got)
	}
}

func TestSQLiteStore_OptionalFieldsSurviveAsNil(t *testing.T) {
	s := newTestSQLite(t, 100000)
	if err := s.AddTrade(flow(99990, trade.PlatformKalshi, "t1", "", "", 500)); err != nil {
		t.Fatal(err)
	}
	trades, _ := s.RecentTrades(RecentQuery{Limit: 10})
	if len(trades) != 1 {
		t.Fatalf("got %d rows", len(trades))
	}
	got := trades[0]
	if got.Price != nil || got.Quantity != nil || got.MarketIsNiche != nil || got.MarketVolume != nil {
		t.Fatalf("absent fields must stay nil: %+v", got)
	}
}

func TestSQLiteStore_DedupAndIDLessInserts(t *testing.T) {
	now := 100000.0
	s := newTestSQLite(t, now)

	s.AddTrade(flow(now-1, trade.PlatformPolymarket, "t1", "a", "yes", 500))
	s.AddTrade(flow(now-2, trade.PlatformPolymarket, "t1", "a", "yes", 500)) // dup ignored
	s.AddTrade(flow(now-3, trade.PlatformKalshi, "t1", "b", "no", 500))      // other venue ok
	s.AddTrade(flow(now-4, trade.PlatformPolymarket, "", "c", "yes", 500))   // NULL id
	s.AddTrade(flow(now-5, trade.PlatformPolymarket, "", "c", "yes", 500))   // NULL ids never collide
	s.AddTrade(flow(now-6, trade.PlatformPolymarket, "t9", "c", "yes", 10))  // dust

	trades, err := s.RecentTrades(RecentQuery{Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 4 {
		t.Fatalf("got %d rows, want 4", len(trades))
	}
}

func TestSQLiteStore_StatsAndQueries(t *testing.T) {
	now := 100000.0
	s := newTestSQLite(t, now)

	a := flow(now-10, trade.PlatformPolymarket, "t1", "alice", "yes", 3000)
	a.MarketCategory = "Politics"
	b := flow(now-120, trade.PlatformPolymarket, "t2", "alice", "no", 1000)
	b.MarketCategory = "Economy"
	c := flow(now-30, trade.PlatformKalshi, "t3", "bob", "no", 5000)
	old := flow(now-90000, trade.PlatformKalshi, "t4", "zoe", "yes", 700)
	for _, f := range []trade.Trade{a, b, c, old} {
		if err := s.AddTrade(f); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Trades != 3 || stats.Wallets != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Flow != "2/min" {
		t.Fatalf("flow = %q", stats.Flow)
	}
	if stats.Last == nil || *stats.Last != now-10 {
		t.Fatalf("last = %v", stats.Last)
	}

	board, err := s.Leaderboard(10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 2 || board[0].Address != "bob" || board[0].Position != "NO" {
		t.Fatalf("leaderboard = %+v", board)
	}

	summary, err := s.WalletSummary("alice", nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary == nil || summary.Trades != 2 || summary.Volume != 4000 || summary.YesVolume != 3000 {
		t.Fatalf("summary = %+v", summary)
	}
	if none, _ := s.WalletSummary("nobody", nil); none != nil {
		t.Fatalf("unknown wallet: %+v", none)
	}

	wallets, err := s.AllWallets(10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(wallets) != 2 || wallets[0].Address != "bob" {
		t.Fatalf("wallets = %+v", wallets)
	}
	var alice *WalletActivity
	for i := range wallets {
		if wallets[i].Address == "alice" {
			alice = &wallets[i]
		}
	}
	if alice == nil || alice.TopCategory != "Politics" {
		t.Fatalf("alice = %+v", alice)
	}

	analytics, err := s.WalletAnalytics("alice", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(analytics.Categories) != 2 {
		t.Fatalf("analytics = %+v", analytics)
	}
	if analytics.Categories["Politics"].Volume != 3000 {
		t.Fatalf("category volumes = %+v", analytics.Categories)
	}

	filtered, err := s.RecentTrades(RecentQuery{Limit: 10, Platforms: []string{"kalshi"}, MinSizeUSD: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].TradeID != "t3" {
		t.Fatalf("filtered = %+v", filtered)
	}
}
