// Package kalshi streams Kalshi trades into the engine, over the signed
// websocket or the REST trades poller.
package kalshi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/whaleflow/whaleflow/internal/adapter"
	"github.com/whaleflow/whaleflow/internal/catalog"
	"github.com/whaleflow/whaleflow/internal/config"
	"github.com/whaleflow/whaleflow/internal/engine"
	"github.com/whaleflow/whaleflow/internal/trade"
)

var errNoTickers = errors.New("market filter returned no tickers")

// Listener streams trades over the authenticated websocket.
type Listener struct {
	cfg     config.KalshiConfig
	fetcher *catalog.KalshiFetcher
	engine  *engine.Engine
	log     zerolog.Logger

	nowFunc func() time.Time

	mu      sync.Mutex
	tickers []string
}

// NewListener builds a websocket listener sharing the catalog fetcher's HTTP
// client.
func NewListener(cfg config.KalshiConfig, fetcher *catalog.KalshiFetcher, eng *engine.Engine, logger zerolog.Logger) *Listener {
	return &Listener{
		cfg:     cfg,
		fetcher: fetcher,
		engine:  eng,
		log:     logger.With().Str("component", "kalshi").Logger(),
		nowFunc: time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	return adapter.Run(ctx, l.wsConfig(), l.hooks(), l.log)
}

// hooks re-signs the handshake and re-resolves the subscription universe on
// every connect attempt, so filter and credential changes take effect on
// reconnect.
func (l *Listener) hooks() adapter.Hooks {
	return adapter.Hooks{
		Name: "kalshi_ws",
		Prepare: func(ctx context.Context) (http.Header, error) {
			headers, err := AuthHeaders(l.cfg, l.nowFunc, l.log)
			if err != nil {
				return nil, err
			}
			tickers, metadata := l.fetcher.ResolveMarketTickers(ctx)
			if len(metadata) > 0 {
				l.engine.UpdateMarketMetadata(trade.PlatformKalshi, metadata)
			}
			if l.fetcher.FiltersActive() && len(tickers) == 0 {
				return nil, errNoTickers
			}
			l.mu.Lock()
			l.tickers = tickers
			l.mu.Unlock()
			return headers, nil
		},
		OnConnect: func(ctx context.Context, conn *websocket.Conn) error {
			l.mu.Lock()
			tickers := l.tickers
			l.mu.Unlock()
			l.log.Info().Int("tickers", len(tickers)).Msg("subscribing to trade channels")
			return adapter.SendJSON(conn, l.subscription(tickers))
		},
		OnMessage: func(data []byte) {
			for _, raw := range ExtractWSTrades(data) {
				l.engine.HandleKalshiTrade(raw)
			}
		},
	}
}

// subscription builds the subscribe command. A single ticker uses the
// singular market_ticker field; no tickers at all means every market.
func (l *Listener) subscription(tickers []string) map[string]any {
	params := map[string]any{"channels": l.cfg.WSChannels}
	switch {
	case len(tickers) == 1:
		params["market_ticker"] = tickers[0]
	case len(tickers) > 1:
		params["market_tickers"] = tickers
	}
	return map[string]any{"id": 1, "cmd": "subscribe", "params": params}
}

func (l *Listener) wsConfig() adapter.Config {
	return adapter.Config{
		URL:           l.cfg.WSURL,
		BackoffMin:    l.cfg.ReconnectMin,
		BackoffMax:    l.cfg.ReconnectMax,
		BackoffFactor: 2.0,
	}
}
