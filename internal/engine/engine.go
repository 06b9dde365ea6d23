// Package engine wires normalization, classification, clustering, the
// detector bundle and persistence behind two venue entry points. Both feeds
// may call into the engine concurrently; each stage guards its own state.
package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/whaleflow/whaleflow/internal/catalog"
	"github.com/whaleflow/whaleflow/internal/classify"
	"github.com/whaleflow/whaleflow/internal/cluster"
	"github.com/whaleflow/whaleflow/internal/config"
	"github.com/whaleflow/whaleflow/internal/detector"
	"github.com/whaleflow/whaleflow/internal/store"
	"github.com/whaleflow/whaleflow/internal/trade"
)

// marketLabelKeys is the priority order for a human-readable label taken
// straight off a trade payload, used when the catalog has no entry.
var marketLabelKeys = []string{
	"title", "question", "name", "subtitle",
	"market_slug", "marketSlug", "event_slug", "eventSlug", "slug",
	"market", "ticker", "market_ticker",
}

// Engine is the per-process detector bundle.
type Engine struct {
	log zerolog.Logger

	catalog    *catalog.Catalog
	classifier *classify.Classifier
	registry   *cluster.Registry // nil when clustering is disabled

	window    *detector.TradeWindow
	zscore    *detector.ZScore
	sweep     *detector.Sweep
	wallets   *detector.WalletTracker
	kalshiYes *detector.VenueAccumulator

	store   store.TradeStore
	persist bool

	hub    *AlertHub
	health *FeedHealth
	mirror chan trade.Trade
}

// New builds the engine. st may be nil to disable persistence regardless of
// the persist flag.
func New(cfg config.DetectorConfig, classifier *classify.Classifier, st store.TradeStore, persist bool, logger zerolog.Logger) *Engine {
	e := &Engine{
		log:        logger.With().Str("component", "engine").Logger(),
		catalog:    catalog.NewCatalog(),
		classifier: classifier,
		window:     detector.NewTradeWindow(float64(cfg.TradeWindowSeconds)),
		zscore:     detector.NewZScore(cfg.ZScoreWindowSeconds, cfg.ZScoreThreshold, cfg.ZScoreMinSamples, cfg.ZScoreCooldownSecs),
		sweep:      detector.NewSweep(cfg.SweepWindowMS, cfg.SweepMinTrades, cfg.SweepCooldownSecs),
		wallets:    detector.NewWalletTracker(cfg.PolymarketWhaleWindowSecs, cfg.PolymarketWhaleThresholdUSD),
		kalshiYes:  detector.NewVenueAccumulator(cfg.KalshiYesWindowSecs, cfg.KalshiYesThresholdUSD),
		store:      st,
		persist:    persist && st != nil,
		hub:        NewAlertHub(),
		health:     NewFeedHealth(2 * time.Minute),
	}
	if cfg.ClusterEnabled {
		e.registry = cluster.NewRegistry(cfg.ClusterMatchThreshold)
	}
	return e
}

// Alerts exposes the alert fan-out hub.
func (e *Engine) Alerts() *AlertHub { return e.hub }

// Health exposes the per-platform feed health tracker.
func (e *Engine) Health() *FeedHealth { return e.health }

// Mirror returns the accepted-trade mirror feed, creating it on first call.
// Sends are non-blocking; with no consumer, trades are dropped.
func (e *Engine) Mirror() <-chan trade.Trade {
	if e.mirror == nil {
		e.mirror = make(chan trade.Trade, 1024)
	}
	return e.mirror
}

// UpdateMarketMetadata merges a refreshed metadata map for one venue.
func (e *Engine) UpdateMarketMetadata(platform trade.Platform, metadata map[string]catalog.MarketMeta) {
	e.catalog.Update(platform, metadata)
	if len(metadata) > 0 {
		e.log.Info().Str("platform", string(platform)).Int("aliases", len(metadata)).Msg("market metadata updated")
	}
}

// HandlePolymarketTrade processes one raw Polymarket trade payload.
func (e *Engine) HandlePolymarketTrade(raw trade.Raw) {
	e.health.Touch(trade.PlatformPolymarket)

	ts := raw.Timestamp()
	market := raw.MarketID()
	meta, hasMeta := e.catalog.Lookup(trade.PlatformPolymarket,
		market,
		trade.Stringify(raw["market_slug"]),
		trade.Stringify(raw["marketSlug"]),
		trade.Stringify(raw["event_slug"]),
		trade.Stringify(raw["eventSlug"]),
		trade.Stringify(raw["slug"]),
	)

	taker := trade.NormalizeWallet(raw.First("taker_address", "taker", "takerAddress"))
	maker := trade.NormalizeWallet(raw.First("maker_address", "maker", "makerAddress"))
	side := trade.NormalizeSide(raw.First("side", "taker_side", "takerSide"))

	t, ok := e.buildTrade(trade.PlatformPolymarket, raw, ts, market, side, meta, hasMeta)
	if !ok {
		return
	}
	actor := taker
	if actor == "" {
		actor = maker
	}
	t.ActorAddress = actor

	e.runDetectors(t)
	e.persistTrade(t)

	seen := map[string]bool{}
	for _, wallet := range []string{taker, maker} {
		if wallet == "" || seen[wallet] {
			continue
		}
		seen[wallet] = true
		if flagged, total := e.wallets.Add(wallet, ts, t.SizeUSD); flagged {
			e.log.Info().
				Str("wallet", wallet).
				Float64("total_usd", total).
				Str("market", market).
				Msg("whale wallet flagged")
			e.hub.Publish(Alert{
				Kind:      AlertWalletWhale,
				Platform:  trade.PlatformPolymarket,
				Market:    market,
				Wallet:    wallet,
				TotalUSD:  total,
				SizeUSD:   t.SizeUSD,
				Timestamp: ts,
			})
		}
	}
}

// HandleKalshiTrade processes one raw Kalshi trade payload.
func (e *Engine) HandleKalshiTrade(raw trade.Raw) {
	e.health.Touch(trade.PlatformKalshi)

	ts := raw.Timestamp()
	market := raw.First("market", "ticker", "market_ticker")
	meta, hasMeta := e.catalog.Lookup(trade.PlatformKalshi,
		market,
		trade.Stringify(raw["ticker"]),
		trade.Stringify(raw["market_ticker"]),
		trade.Stringify(raw["event_ticker"]),
		trade.Stringify(raw["eventTicker"]),
	)
	side := trade.NormalizeSide(raw.First("side", "taker_side"))

	t, ok := e.buildTrade(trade.PlatformKalshi, raw, ts, market, side, meta, hasMeta)
	if !ok {
		return
	}

	e.runDetectors(t)
	e.persistTrade(t)

	if side == "yes" {
		if crossed, total := e.kalshiYes.Add(ts, t.SizeUSD); crossed {
			e.log.Warn().
				Float64("total_usd", total).
				Str("market", market).
				Msg("kalshi yes accumulation alert")
			e.hub.Publish(Alert{
				Kind:      AlertVenueAccumul,
				Platform:  trade.PlatformKalshi,
				Market:    market,
				Side:      side,
				TotalUSD:  total,
				SizeUSD:   t.SizeUSD,
				Timestamp: ts,
			})
		}
	}
}

// buildTrade assembles the canonical record; ok is false for zero-notional
// trades, which are dropped before any detector or store sees them.
func (e *Engine) buildTrade(platform trade.Platform, raw trade.Raw, ts float64, market, side string, meta catalog.MarketMeta, hasMeta bool) (trade.Trade, bool) {
	sizeUSD := raw.SizeUSD()
	if sizeUSD <= 0 {
		return trade.Trade{}, false
	}
	price, quantity := trade.BackfillNumbers(sizeUSD, raw.Price(), raw.Quantity())

	label := raw.First(marketLabelKeys...)
	if label == "" {
		label = market
	}
	if hasMeta && meta.Label != "" {
		label = meta.Label
	}
	textBlob := label
	if hasMeta && meta.TextBlob != "" {
		textBlob = meta.TextBlob
	}
	var volume *float64
	if hasMeta {
		volume = meta.Volume
	}
	classification := e.classifier.Classify(textBlob, volume)

	t := trade.Trade{
		Timestamp:   ts,
		Platform:    platform,
		Market:      market,
		MarketLabel: label,
		SizeUSD:     sizeUSD,
		Side:        side,
		Price:       price,
		Quantity:    quantity,
		TradeID:     raw.TradeID(),
	}
	isNiche := classification.IsNiche
	isStock := classification.IsStock
	t.MarketIsNiche = &isNiche
	t.MarketIsStock = &isStock
	t.MarketVolume = volume
	if hasMeta {
		t.MarketCategory = meta.Category
	}
	if e.registry != nil {
		t.ClusterID = e.registry.ClusterFor(platform, market, label, textBlob)
	}
	return t, true
}

func (e *Engine) runDetectors(t trade.Trade) {
	if alert := e.zscore.Add(t.Platform, t.Market, t.Timestamp, t.SizeUSD); alert != nil {
		e.log.Warn().
			Str("platform", string(alert.Platform)).
			Str("market", alert.Market).
			Float64("z", alert.Z).
			Float64("size_usd", alert.SizeUSD).
			Msg("z-score whale spike")
		e.hub.Publish(Alert{
			Kind:      AlertZScore,
			Platform:  alert.Platform,
			Market:    alert.Market,
			Z:         alert.Z,
			SizeUSD:   alert.SizeUSD,
			Timestamp: alert.Timestamp,
		})
	}
	if alert := e.sweep.Add(t.Platform, t.Market, t.Side, t.Timestamp, t.Price, t.SizeUSD); alert != nil {
		e.log.Warn().
			Str("platform", string(alert.Platform)).
			Str("market", alert.Market).
			Str("side", alert.Side).
			Int("trades", alert.Trades).
			Float64("total_usd", alert.TotalUSD).
			Msg("sweep detected")
		e.hub.Publish(Alert{
			Kind:      AlertSweep,
			Platform:  alert.Platform,
			Market:    alert.Market,
			Side:      alert.Side,
			Trades:    alert.Trades,
			TotalUSD:  alert.TotalUSD,
			Timestamp: alert.Timestamp,
		})
	}
	e.window.Add(detector.Record{
		Timestamp:    t.Timestamp,
		Platform:     t.Platform,
		Market:       t.Market,
		SizeUSD:      t.SizeUSD,
		Side:         t.Side,
		ActorAddress: t.ActorAddress,
	})
}

func (e *Engine) persistTrade(t trade.Trade) {
	if e.persist {
		if err := e.store.AddTrade(t); err != nil {
			e.log.Warn().Err(err).Str("platform", string(t.Platform)).Msg("persist trade failed")
		}
	}
	if e.mirror != nil {
		select {
		case e.mirror <- t:
		default:
		}
	}
}
