// Package poly streams Polymarket trades into the engine, over either the
// real-time data socket (RTDS) or the CLOB market channel.
package poly

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/whaleflow/whaleflow/internal/adapter"
	"github.com/whaleflow/whaleflow/internal/catalog"
	"github.com/whaleflow/whaleflow/internal/config"
	"github.com/whaleflow/whaleflow/internal/engine"
	"github.com/whaleflow/whaleflow/internal/trade"
)

// emptyUniverseStall is how long the listener waits before re-resolving when
// the catalog yields nothing to subscribe to.
const emptyUniverseStall = 30 * time.Second

// Listener streams Polymarket trades. The stream mode picks the venue
// socket: "rtds" (default) or "clob".
type Listener struct {
	cfg     config.PolymarketConfig
	fetcher *catalog.PolymarketFetcher
	engine  *engine.Engine
	log     zerolog.Logger

	nowFunc func() time.Time
}

// NewListener builds a listener sharing the catalog fetcher's HTTP client.
func NewListener(cfg config.PolymarketConfig, fetcher *catalog.PolymarketFetcher, eng *engine.Engine, logger zerolog.Logger) *Listener {
	return &Listener{
		cfg:     cfg,
		fetcher: fetcher,
		engine:  eng,
		log:     logger.With().Str("component", "polymarket").Logger(),
		nowFunc: time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	if l.cfg.StreamMode == "clob" {
		return l.runCLOB(ctx)
	}
	return l.runRTDS(ctx)
}

func (l *Listener) runRTDS(ctx context.Context) error {
	for {
		slugs, metadata := l.fetcher.ResolveEventSlugs(ctx)
		if len(metadata) > 0 {
			l.engine.UpdateMarketMetadata(trade.PlatformPolymarket, metadata)
		}
		if len(slugs) == 0 {
			l.log.Warn().Msg("no event slugs to subscribe to, retrying soon")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(emptyUniverseStall):
			}
			continue
		}

		shards := chunkStrings(slugs, l.cfg.RTDSChunkSize)
		l.log.Info().Int("slugs", len(slugs)).Int("shards", len(shards)).Msg("starting rtds workers")

		g, gctx := errgroup.WithContext(ctx)
		for idx, shard := range shards {
			idx, shard := idx, shard
			g.Go(func() error {
				return adapter.Run(gctx, l.wsConfig(l.cfg.RTDSURL), l.rtdsHooks(idx, shard), l.log)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (l *Listener) rtdsHooks(shard int, slugs []string) adapter.Hooks {
	log := l.log.With().Int("shard", shard).Logger()
	return adapter.Hooks{
		Name: "polymarket_rtds",
		Prepare: func(ctx context.Context) (http.Header, error) {
			return AuthHeaders(l.cfg, l.nowFunc), nil
		},
		OnConnect: func(ctx context.Context, conn *websocket.Conn) error {
			log.Info().Int("slugs", len(slugs)).Msg("subscribing to event slugs")
			for _, slug := range slugs {
				if err := adapter.SendJSON(conn, l.rtdsSubscription(slug)); err != nil {
					return err
				}
				if l.cfg.RTDSSubscribePause > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(l.cfg.RTDSSubscribePause):
					}
				}
			}
			return nil
		},
		OnMessage: func(data []byte) {
			for _, raw := range ExtractTrades(data, log) {
				l.engine.HandlePolymarketTrade(raw)
			}
		},
	}
}

// rtdsSubscription builds the per-slug subscription payload. The venue
// accepts two shapes; the "command" form wraps the requested resource types.
func (l *Listener) rtdsSubscription(slug string) map[string]any {
	if l.cfg.RTDSSubscribeMode == "command" {
		return map[string]any{
			"type":       "subscribe",
			"topic":      l.cfg.RTDSTopic,
			"event_slug": slug,
			"resources":  []string{l.cfg.RTDSType},
		}
	}
	return map[string]any{
		"topic":      l.cfg.RTDSTopic,
		"type":       l.cfg.RTDSType,
		"event_slug": slug,
	}
}

func (l *Listener) wsConfig(url string) adapter.Config {
	return adapter.Config{
		URL:           url,
		PingInterval:  l.cfg.PingInterval,
		PingTimeout:   l.cfg.PingTimeout,
		BackoffMin:    l.cfg.ReconnectMin,
		BackoffMax:    l.cfg.ReconnectMax,
		BackoffFactor: 2.0,
	}
}

func chunkStrings(items []string, size int) [][]string {
	if size <= 0 {
		return [][]string{items}
	}
	var chunks [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
