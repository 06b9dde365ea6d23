package poly

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/whaleflow/whaleflow/internal/adapter"
	"github.com/whaleflow/whaleflow/internal/trade"
)

// clobSubscribePause spaces per-market subscription sends on one socket.
const clobSubscribePause = 5 * time.Millisecond

func (l *Listener) runCLOB(ctx context.Context) error {
	for {
		tokenIDs, metadata := l.fetcher.FetchTopMarketTokenIDs(ctx)
		if len(metadata) > 0 {
			l.engine.UpdateMarketMetadata(trade.PlatformPolymarket, metadata)
		}
		if len(tokenIDs) == 0 {
			l.log.Warn().Msg("no markets to subscribe to, retrying soon")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(emptyUniverseStall):
			}
			continue
		}

		var shards [][]string
		switch l.cfg.SubscribeMode {
		case "shard", "sharded":
			shards = chunkStrings(tokenIDs, l.cfg.RTDSChunkSize)
		case "single", "per_market", "market":
			for _, id := range tokenIDs {
				shards = append(shards, []string{id})
			}
		default: // bulk
			shards = [][]string{tokenIDs}
		}
		l.log.Info().Int("tokens", len(tokenIDs)).Int("shards", len(shards)).Msg("starting clob workers")

		g, gctx := errgroup.WithContext(ctx)
		for idx, shard := range shards {
			idx, shard := idx, shard
			g.Go(func() error {
				return adapter.Run(gctx, l.wsConfig(l.cfg.WSURL), l.clobHooks(idx, shard), l.log)
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

func (l *Listener) clobHooks(shard int, tokenIDs []string) adapter.Hooks {
	log := l.log.With().Int("shard", shard).Logger()
	return adapter.Hooks{
		Name: "polymarket_clob",
		Prepare: func(ctx context.Context) (http.Header, error) {
			return AuthHeaders(l.cfg, l.nowFunc), nil
		},
		OnConnect: func(ctx context.Context, conn *websocket.Conn) error {
			log.Info().Int("tokens", len(tokenIDs)).Msg("subscribing to token ids")
			for _, id := range tokenIDs {
				payload := map[string]any{
					"type":    "subscribe",
					"channel": l.cfg.Channel,
					"market":  id,
				}
				if err := adapter.SendJSON(conn, payload); err != nil {
					return err
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(clobSubscribePause):
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
