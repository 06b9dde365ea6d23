package kalshi

import (
	"testing"

	"github.com/whaleflow/whaleflow/internal/config"
)

func TestSubscription_TickerShapes(t *testing.T) {
	l := &Listener{cfg: config.KalshiConfig{WSChannels: []string{"trade"}}}

	cmd := l.subscription(nil)
	if cmd["cmd"] != "subscribe" || cmd["id"] != 1 {
		t.Fatalf("command envelope = %+v", cmd)
	}
	params := cmd["params"].(map[string]any)
	if _, ok := params["market_ticker"]; ok {
		t.Fatal("no tickers must subscribe to all markets")
	}
	if _, ok := params["market_tickers"]; ok {
		t.Fatal("no tickers must subscribe to all markets")
	}

	params = l.subscription([]string{"FED"})["params"].(map[string]any)
	if params["market_ticker"] != "FED" {
		t.Fatalf("single ticker params = %+v", params)
	}
	if _, ok := params["market_tickers"]; ok {
		t.Fatal("single ticker must use the singular field")
	}

	params = l.subscription([]string{"FED", "CPI"})["params"].(map[string]any)
	tickers, ok := params["market_tickers"].([]string)
	if !ok || len(tickers) != 2 {
		t.Fatalf("multi ticker params = %+v", params)
	}
}
