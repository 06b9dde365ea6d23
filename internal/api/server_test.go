package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/whaleflow/whaleflow/internal/config"
	"github.com/whaleflow/whaleflow/internal/engine"
	"github.com/whaleflow/whaleflow/internal/store"
	"github.com/whaleflow/whaleflow/internal/trade"
)

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled:          true,
		Addr:             ":0",
		FlowMinUSD:       100,
		FlowLimit:        50,
		FlowMaxLimit:     200,
		FlowLookbackHrs:  24,
		LeaderboardLimit: 10,
	}
}

func newTestServer(t *testing.T, st store.TradeStore, health *engine.FeedHealth) *Server {
	t.Helper()
	s := NewServer(testAPIConfig(), st, health, zerolog.Nop())
	s.nowFunc = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s
}

func seedStore(t *testing.T, st store.TradeStore) {
	t.Helper()
	now := 1_700_000_000.0
	for _, f := range []trade.Trade{
		{Timestamp: now - 60, Platform: trade.PlatformPolymarket, Market: "m1", SizeUSD: 5000, Side: "yes", ActorAddress: "alice", TradeID: "t1"},
		{Timestamp: now - 120, Platform: trade.PlatformKalshi, Market: "m2", SizeUSD: 300, Side: "no", ActorAddress: "bob", TradeID: "t2"},
		{Timestamp: now - 90000, Platform: trade.PlatformPolymarket, Market: "m3", SizeUSD: 9000, Side: "yes", ActorAddress: "zoe", TradeID: "t3"},
	} {
		if err := st.AddTrade(f); err != nil {
			t.Fatal(err)
		}
	}
}

func doGET(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not JSON: %v (%s)", err, rec.Body.String())
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, store.NewMemoryStore(10), nil)
	rec, body := doGET(t, s, "/healthz")
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("code=%d body=%v", rec.Code, body)
	}
	if _, ok := body["feeds"]; ok {
		t.Fatal("nil health must omit feeds")
	}

	health := engine.NewFeedHealth(time.Hour)
	health.Touch(trade.PlatformPolymarket)
	s = newTestServer(t, store.NewMemoryStore(10), health)
	_, body = doGET(t, s, "/healthz")
	if body["ok"] != true {
		t.Fatalf("fresh feed: body=%v", body)
	}
	feeds := body["feeds"].(map[string]any)
	if _, ok := feeds["polymarket"]; !ok {
		t.Fatalf("feeds=%v", feeds)
	}

	stale := engine.NewFeedHealth(time.Millisecond)
	stale.Touch(trade.PlatformKalshi)
	time.Sleep(5 * time.Millisecond)
	s = newTestServer(t, store.NewMemoryStore(10), stale)
	_, body = doGET(t, s, "/healthz")
	if body["ok"] != false {
		t.Fatalf("stale feed must flip ok: body=%v", body)
	}
}

func TestTrades_FiltersAndLookback(t *testing.T) {
	st := store.NewMemoryStore(100)
	seedStore(t, st)
	s := newTestServer(t, st, nil)

	// Default 24h lookback drops the day-old trade; min_usd drops nothing here.
	_, body := doGET(t, s, "/api/trades?min_usd=0")
	if got := len(body["trades"].([]any)); got != 2 {
		t.Fatalf("default lookback: %d trades", got)
	}

	// Zero lookback means all time.
	_, body = doGET(t, s, "/api/trades?lookback_hours=0&min_usd=0")
	if got := len(body["trades"].([]any)); got != 3 {
		t.Fatalf("all time: %d trades", got)
	}

	// Platform filter.
	_, body = doGET(t, s, "/api/trades?platforms=KALSHI&min_usd=0")
	if got := len(body["trades"].([]any)); got != 1 {
		t.Fatalf("platform filter: %d trades", got)
	}

	// Notional floor.
	_, body = doGET(t, s, "/api/trades?min_usd=1000")
	if got := len(body["trades"].([]any)); got != 1 {
		t.Fatalf("min_usd filter: %d trades", got)
	}

	// Wallet filter.
	_, body = doGET(t, s, "/api/trades?wallet=bob&min_usd=0")
	trades := body["trades"].([]any)
	if len(trades) != 1 {
		t.Fatalf("wallet filter: %d trades", len(trades))
	}
}

func TestStatsAndLeaderboardAndWallets(t *testing.T) {
	st := store.NewMemoryStore(100)
	seedStore(t, st)
	s := newTestServer(t, st, nil)

	rec, _ := doGET(t, s, "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats code = %d", rec.Code)
	}

	_, body := doGET(t, s, "/api/leaderboard?lookback_hours=0")
	if got := len(body["leaderboard"].([]any)); got != 3 {
		t.Fatalf("leaderboard: %d entries", got)
	}

	_, body = doGET(t, s, "/api/wallets?lookback_hours=0")
	if got := len(body["wallets"].([]any)); got != 3 {
		t.Fatalf("wallets: %d entries", got)
	}
}

func TestWalletEndpoints_NotFound(t *testing.T) {
	st := store.NewMemoryStore(100)
	seedStore(t, st)
	s := newTestServer(t, st, nil)

	rec, body := doGET(t, s, "/api/wallets/alice?lookback_hours=0")
	if rec.Code != http.StatusOK || body["volume"] == nil {
		t.Fatalf("code=%d body=%v", rec.Code, body)
	}

	rec, _ = doGET(t, s, "/api/wallets/nobody")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown wallet code = %d", rec.Code)
	}

	rec, _ = doGET(t, s, "/api/wallets/nobody/analytics")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown wallet analytics code = %d", rec.Code)
	}
}

type failingStore struct{ store.TradeStore }

func (failingStore) RecentTrades(store.RecentQuery) ([]trade.Trade, error) {
	return nil, errors.New("backend down")
}

func TestTrades_StoreErrorIs500(t *testing.T) {
	s := newTestServer(t, failingStore{}, nil)
	rec, body := doGET(t, s, "/api/trades")
	if rec.Code != http.StatusInternalServerError || body["error"] != "backend down" {
		t.Fatalf("code=%d body=%v", rec.Code, body)
	}
}

func TestSanitizeLimit(t *testing.T) {
	s := newTestServer(t, store.NewMemoryStore(10), nil)
	if got := s.sanitizeLimit(""); got != 50 {
		t.Fatalf("default = %d", got)
	}
	if got := s.sanitizeLimit("500"); got != 200 {
		t.Fatalf("clamped high = %d", got)
	}
	if got := s.sanitizeLimit("-5"); got != 1 {
		t.Fatalf("clamped low = %d", got)
	}
	if got := s.sanitizeLimit("25"); got != 25 {
		t.Fatalf("in range = %d", got)
	}
}

func TestSinceTS(t *testing.T) {
	s := newTestServer(t, store.NewMemoryStore(10), nil)
	if got := s.sinceTS(""); got == nil || *got != 1_700_000_000-24*3600 {
		t.Fatalf("default lookback = %v", got)
	}
	if got := s.sinceTS("0"); got != nil {
		t.Fatalf("zero lookback = %v", got)
	}
	if got := s.sinceTS("-1"); got != nil {
		t.Fatalf("negative lookback = %v", got)
	}
	if got := s.sinceTS("2"); got == nil || *got != 1_700_000_000-7200 {
		t.Fatalf("explicit lookback = %v", got)
	}
}
