// WhaleFlow — real-time whale detection over prediction-market trade feeds.
//
// The process ingests Polymarket (RTDS or CLOB websocket) and Kalshi
// (signed websocket or REST poller) trades, normalizes them into one record
// shape, runs the detector bundle (z-score spikes, sweeps, wallet and venue
// accumulation), persists accepted flows and serves the dashboard query API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/whaleflow/whaleflow/internal/adapter/kalshi"
	"github.com/whaleflow/whaleflow/internal/adapter/poly"
	"github.com/whaleflow/whaleflow/internal/api"
	"github.com/whaleflow/whaleflow/internal/catalog"
	"github.com/whaleflow/whaleflow/internal/classify"
	"github.com/whaleflow/whaleflow/internal/config"
	"github.com/whaleflow/whaleflow/internal/engine"
	"github.com/whaleflow/whaleflow/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	st, err := newStore(cfg.Store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open trade store")
	}
	if st != nil {
		defer st.Close()
	}

	classifier := classify.New(cfg.Classifier)
	eng := engine.New(cfg.Detectors, classifier, st, cfg.Store.PersistTrades, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := resty.New().SetTimeout(cfg.HTTPTimeout)

	g, gctx := errgroup.WithContext(ctx)
	feeds := 0

	if cfg.Store.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		defer rdb.Close()
		writer := store.NewRedisWriter(redisHSet{rdb}, eng.Mirror())
		g.Go(func() error {
			writer.Run(gctx)
			return nil
		})
	}

	if cfg.EnablePolymarket {
		fetcher := catalog.NewPolymarketFetcher(client, cfg.Polymarket, logger)
		listener := poly.NewListener(cfg.Polymarket, fetcher, eng, logger)
		g.Go(func() error { return listener.Run(gctx) })
		feeds++
	}

	if cfg.EnableKalshi {
		fetcher := catalog.NewKalshiFetcher(client, cfg.Kalshi, logger)
		if cfg.Kalshi.WSEnabled {
			listener := kalshi.NewListener(cfg.Kalshi, fetcher, eng, logger)
			g.Go(func() error { return listener.Run(gctx) })
			feeds++
		}
		if cfg.Kalshi.PollEnabled {
			poller := kalshi.NewPoller(cfg.Kalshi, fetcher, eng, client, logger)
			g.Go(func() error { return poller.Run(gctx) })
			feeds++
		}
	}

	if feeds == 0 {
		logger.Warn().Msg("no feeds enabled; set ENABLE_POLYMARKET / ENABLE_KALSHI")
		return
	}

	if cfg.API.Enabled && st != nil {
		server := api.NewServer(cfg.API, st, eng.Health(), logger)
		g.Go(func() error { return server.Run(gctx) })
	}

	logger.Info().
		Bool("polymarket", cfg.EnablePolymarket).
		Bool("kalshi", cfg.EnableKalshi).
		Str("store", cfg.Store.FeedMode).
		Msg("whaleflow started")

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("feed task failed")
	}
	logger.Info().Msg("whaleflow shutting down")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}

// newStore picks the backend from the feed mode: "db" is the embedded SQLite
// file, "postgres" the shared server, anything else the in-memory ring.
func newStore(cfg config.StoreConfig, logger zerolog.Logger) (store.TradeStore, error) {
	switch cfg.FeedMode {
	case "db", "sqlite":
		return store.NewSQLiteStore(cfg.TradeDBPath)
	case "postgres":
		return store.NewPostgresStore(cfg.PostgresDSN())
	default:
		logger.Info().Str("mode", cfg.FeedMode).Msg("using in-memory trade store")
		return store.NewMemoryStore(0), nil
	}
}

// redisHSet adapts the go-redis client to the writer's narrow interface.
type redisHSet struct {
	client *redis.Client
}

func (r redisHSet) HSet(ctx context.Context, key string, values ...any) error {
	return r.client.HSet(ctx, key, values...).Err()
}
