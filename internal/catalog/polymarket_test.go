package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/whaleflow/whaleflow/internal/config"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestResolveEventSlugs_ConfiguredAndWildcard(t *testing.T) {
	ctx := context.Background()

	configured := NewPolymarketFetcher(resty.New(), config.PolymarketConfig{
		RTDSEventSlugs: []string{"election-2026"},
	}, testLogger())
	slugs, metadata := configured.ResolveEventSlugs(ctx)
	if len(slugs) != 1 || slugs[0] != "election-2026" {
		t.Fatalf("configured slugs win, got %v", slugs)
	}
	if metadata != nil {
		t.Fatal("configured slugs carry no metadata")
	}

	wildcard := NewPolymarketFetcher(resty.New(), config.PolymarketConfig{
		RTDSWildcard: true,
	}, testLogger())
	slugs, _ = wildcard.ResolveEventSlugs(ctx)
	if len(slugs) != 1 || slugs[0] != "*" {
		t.Fatalf("no filters should yield the wildcard, got %v", slugs)
	}
}

func TestFetchEventSlugs_PaginationAndFiltering(t *testing.T) {
	pages := [][]map[string]any{
		{
			{"slug": "fed-decision", "title": "Fed rate decision", "category": "Economy"},
			{"slug": "cup-final", "title": "Cup final winner", "category": "Sports"},
		},
		{
			{"slug": "fed-decision", "title": "Fed rate decision", "category": "Economy"},
			{"slug": "cpi-print", "title": "CPI above forecast", "category": "Economy"},
		},
		{}, // terminates pagination
	}
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offsets = append(offsets, r.URL.Query().Get("offset"))
		if r.URL.Query().Get("active") != "true" || r.URL.Query().Get("closed") != "false" {
			t.Errorf("missing default query params: %v", r.URL.Query())
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		idx := page / 2
		if idx >= len(pages) {
			idx = len(pages) - 1
		}
		json.NewEncoder(w).Encode(map[string]any{"events": pages[idx]})
	}))
	defer srv.Close()

	f := NewPolymarketFetcher(resty.New(), config.PolymarketConfig{
		EventsURL:       srv.URL,
		EventsLimit:     2,
		EventsMaxPages:  10,
		EventKeywords:   []string{"rate", "cpi"},
		EventCategories: []string{"economy"},
	}, testLogger())

	slugs, metadata := f.FetchEventSlugs(context.Background())
	want := []string{"fed-decision", "cpi-print"}
	if len(slugs) != len(want) || slugs[0] != want[0] || slugs[1] != want[1] {
		t.Fatalf("slugs = %v, want %v", slugs, want)
	}
	if len(offsets) != 3 {
		t.Fatalf("expected 3 pages fetched, got offsets %v", offsets)
	}
	meta, ok := metadata["fed-decision"]
	if !ok {
		t.Fatal("metadata missing for matched slug")
	}
	if meta.Category != "Economy" || meta.Label != "Fed rate decision" {
		t.Fatalf("metadata = %+v", meta)
	}
	if _, ok := metadata["cup-final"]; ok {
		t.Fatal("filtered-out event must not contribute metadata")
	}
}

func TestFetchEventSlugs_HTTPErrorReturnsPartial(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"events": []map[string]any{
			{"slug": "only-page", "title": "whatever"},
		}})
	}))
	defer srv.Close()

	f := NewPolymarketFetcher(resty.New(), config.PolymarketConfig{
		EventsURL:      srv.URL,
		EventsLimit:    1,
		EventsMaxPages: 5,
	}, testLogger())
	slugs, _ := f.FetchEventSlugs(context.Background())
	if len(slugs) != 1 || slugs[0] != "only-page" {
		t.Fatalf("partial results expected, got %v", slugs)
	}
}

func TestFetchTopMarketTokenIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "m1", "question": "Quiet market", "volume24hr": 100.0,
				"clobTokenIds": `["t1a","t1b"]`},
			{"id": "m2", "question": "Busy market", "volume24hr": 9000.0,
				"clobTokenIds": []any{"t2a"}},
			{"id": "m3", "question": "Closed market", "closed": true, "volume24hr": 99999.0},
			{"id": "m4", "question": "No tokens", "volume24hr": 500.0},
		})
	}))
	defer srv.Close()

	f := NewPolymarketFetcher(resty.New(), config.PolymarketConfig{
		MarketsURL: srv.URL,
		TopN:       2,
	}, testLogger())

	ids, metadata := f.FetchTopMarketTokenIDs(context.Background())
	// Sorted by volume: m2 (9000), m4 (500); m3 excluded as closed.
	want := []string{"t2a", "m4"}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if _, ok := metadata["t1a"]; !ok {
		t.Fatal("token id alias missing from metadata")
	}
	if _, ok := metadata["m3"]; ok {
		t.Fatal("closed market must not contribute metadata")
	}
}

func TestFetchTopMarketTokenIDs_ConfiguredIDsWin(t *testing.T) {
	f := NewPolymarketFetcher(resty.New(), config.PolymarketConfig{
		MarketIDs: []string{"fixed-1", "fixed-2"},
	}, testLogger())
	ids, _ := f.FetchTopMarketTokenIDs(context.Background())
	if len(ids) != 2 || ids[0] != "fixed-1" {
		t.Fatalf("configured ids win, got %v", ids)
	}
}

func TestKalshiFetchMarketTickers_CursorPagination(t *testing.T) {
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)
		switch cursor {
		case "":
			json.NewEncoder(w).Encode(map[string]any{
				"markets": []map[string]any{
					{"ticker": "FED-25DEC", "title": "Fed cuts rates", "category": "Economics",
						"event_ticker": "FED", "volume_24h": 1200.0},
					{"ticker": "NBA-FINALS", "title": "NBA finals winner", "category": "Sports"},
				},
				"cursor": "page2",
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"markets": []map[string]any{
					{"ticker": "CPI-HIGH", "title": "CPI above 3%", "category": "Economics"},
				},
			})
		}
	}))
	defer srv.Close()

	f := NewKalshiFetcher(resty.New(), config.KalshiConfig{
		MarketsURL:       srv.URL,
		MarketsLimit:     10,
		MarketsMaxPages:  5,
		MarketCategories: []string{"economics"},
	}, testLogger())

	tickers, metadata := f.FetchMarketTickers(context.Background())
	want := []string{"FED-25DEC", "CPI-HIGH"}
	if len(tickers) != len(want) || tickers[0] != want[0] || tickers[1] != want[1] {
		t.Fatalf("tickers = %v, want %v", tickers, want)
	}
	if len(cursors) != 2 || cursors[1] != "page2" {
		t.Fatalf("cursor sequence = %v", cursors)
	}
	meta, ok := metadata["FED"]
	if !ok {
		t.Fatal("event_ticker alias missing")
	}
	if meta.Volume == nil || *meta.Volume != 1200.0 {
		t.Fatalf("volume = %v", meta.Volume)
	}
}

func TestKalshiResolveMarketTickers_NoFiltersMeansAll(t *testing.T) {
	f := NewKalshiFetcher(resty.New(), config.KalshiConfig{}, testLogger())
	tickers, metadata := f.ResolveMarketTickers(context.Background())
	if tickers != nil || metadata != nil {
		t.Fatalf("unfiltered universe should be nil (all markets), got %v / %v", tickers, metadata)
	}
}
