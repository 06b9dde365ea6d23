package kalshi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/whaleflow/whaleflow/internal/classify"
	"github.com/whaleflow/whaleflow/internal/config"
	"github.com/whaleflow/whaleflow/internal/engine"
	"github.com/whaleflow/whaleflow/internal/store"
	"github.com/whaleflow/whaleflow/internal/trade"
)

func newPollerEngine(t *testing.T) (*engine.Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(100)
	cfg := config.DetectorConfig{
		TradeWindowSeconds:          86400,
		PolymarketWhaleThresholdUSD: 1e9,
		PolymarketWhaleWindowSecs:   3600,
		KalshiYesThresholdUSD:       1e9,
		KalshiYesWindowSecs:         3600,
		ZScoreWindowSeconds:         3600,
		ZScoreThreshold:             3.0,
		ZScoreMinSamples:            1000,
		SweepWindowMS:               50,
		SweepMinTrades:              100,
	}
	return engine.New(cfg, classify.New(config.ClassifierConfig{}), st, true, zerolog.Nop()), st
}

func storedCount(t *testing.T, st *store.MemoryStore) int {
	t.Helper()
	trades, err := st.RecentTrades(store.RecentQuery{Limit: 1000})
	if err != nil {
		t.Fatal(err)
	}
	return len(trades)
}

func TestPoller_HandleDedupAndHighWater(t *testing.T) {
	eng, st := newPollerEngine(t)
	p := &Poller{engine: eng, log: zerolog.Nop(), seenSet: make(map[string]bool)}

	raw := func(ts float64, id string) trade.Raw {
		return trade.Raw{"ticker": "FED", "timestamp": ts, "size_usd": 500.0, "side": "yes", "trade_id": id}
	}

	p.handle(raw(100, "a"), nil)
	if storedCount(t, st) != 1 || p.highWater != 100 {
		t.Fatalf("count=%d highWater=%v", storedCount(t, st), p.highWater)
	}

	// Below the high-water mark: dropped.
	p.handle(raw(50, "b"), nil)
	if storedCount(t, st) != 1 {
		t.Fatal("stale trade was not dropped")
	}

	// Replay of a seen id at the boundary timestamp: dropped.
	p.handle(raw(100, "a"), nil)
	if storedCount(t, st) != 1 {
		t.Fatal("replayed trade id was not dropped")
	}

	// New id at exactly the high-water timestamp: accepted.
	p.handle(raw(100, "c"), nil)
	if storedCount(t, st) != 2 {
		t.Fatal("same-timestamp trade with new id was dropped")
	}
}

func TestPoller_HandleAllowedMarketFilter(t *testing.T) {
	eng, st := newPollerEngine(t)
	p := &Poller{engine: eng, log: zerolog.Nop(), seenSet: make(map[string]bool)}
	allowed := map[string]bool{"FED": true}

	p.handle(trade.Raw{"ticker": "FED", "timestamp": 100.0, "size_usd": 500.0, "trade_id": "a"}, allowed)
	p.handle(trade.Raw{"ticker": "CPI", "timestamp": 101.0, "size_usd": 500.0, "trade_id": "b"}, allowed)
	// No market field at all passes through the filter.
	p.handle(trade.Raw{"timestamp": 102.0, "size_usd": 500.0, "trade_id": "c"}, allowed)

	if got := storedCount(t, st); got != 2 {
		t.Fatalf("stored %d trades, want 2", got)
	}
}

func TestPoller_PollFetchesAndHandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"trades":[
			{"ticker":"FED","created_time":"2023-11-14T22:13:20Z","count":1000,"yes_price":50,"taker_side":"yes","trade_id":"p1"},
			{"ticker":"FED","created_time":"2023-11-14T22:13:21Z","count":1000,"yes_price":50,"taker_side":"yes","trade_id":"p2"}
		]}`))
	}))
	defer srv.Close()

	eng, st := newPollerEngine(t)
	cfg := config.KalshiConfig{TradesURL: srv.URL}
	p := NewPoller(cfg, nil, eng, resty.New(), zerolog.Nop())

	p.poll(context.Background(), nil)
	if got := storedCount(t, st); got != 2 {
		t.Fatalf("stored %d trades, want 2", got)
	}

	// Second poll replays the same ids and must not double-count.
	p.poll(context.Background(), nil)
	if got := storedCount(t, st); got != 2 {
		t.Fatalf("after replay stored %d trades, want 2", got)
	}
}

func TestPoller_PollHTTPErrorIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	eng, st := newPollerEngine(t)
	p := NewPoller(config.KalshiConfig{TradesURL: srv.URL}, nil, eng, resty.New(), zerolog.Nop())
	p.poll(context.Background(), nil)
	if got := storedCount(t, st); got != 0 {
		t.Fatalf("stored %d trades from an error response", got)
	}
}

func TestPoller_ResolveAllowedMarkets_ConfiguredTickersWin(t *testing.T) {
	p := &Poller{cfg: config.KalshiConfig{MarketTickers: []string{"FED", "CPI"}}, log: zerolog.Nop()}
	allowed, err := p.resolveAllowedMarkets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(allowed) != 2 || !allowed["FED"] || !allowed["CPI"] {
		t.Fatalf("allowed = %v", allowed)
	}
}
