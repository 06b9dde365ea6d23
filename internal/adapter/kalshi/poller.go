package kalshi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/whaleflow/whaleflow/internal/catalog"
	"github.com/whaleflow/whaleflow/internal/config"
	"github.com/whaleflow/whaleflow/internal/engine"
	"github.com/whaleflow/whaleflow/internal/trade"
)

const (
	// emptyFilterStall is how long the poller waits before re-fetching when
	// the market filter matches nothing.
	emptyFilterStall = 30 * time.Second

	// seenTradeIDLimit caps the dedup memory of the poll loop.
	seenTradeIDLimit = 5000
)

// Poller polls the public trades endpoint as a fallback to the websocket.
// It keeps a high-water timestamp plus a bounded set of seen trade ids so
// overlapping poll windows do not double-count.
type Poller struct {
	cfg     config.KalshiConfig
	fetcher *catalog.KalshiFetcher
	engine  *engine.Engine
	client  *resty.Client
	log     zerolog.Logger

	highWater float64
	seenOrder []string
	seenSet   map[string]bool
}

// NewPoller builds a poller on a shared resty client.
func NewPoller(cfg config.KalshiConfig, fetcher *catalog.KalshiFetcher, eng *engine.Engine, client *resty.Client, logger zerolog.Logger) *Poller {
	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		engine:  eng,
		client:  client,
		log:     logger.With().Str("component", "kalshi_poller").Logger(),
		seenSet: make(map[string]bool),
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	allowed, err := p.resolveAllowedMarkets(ctx)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(p.cfg.PollSeconds)
	defer ticker.Stop()
	for {
		p.poll(ctx, allowed)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// resolveAllowedMarkets returns the set of tickers the poll loop accepts.
// Configured tickers win; with filters active the catalog is fetched until it
// matches something; otherwise nil means every market.
func (p *Poller) resolveAllowedMarkets(ctx context.Context) (map[string]bool, error) {
	if len(p.cfg.MarketTickers) > 0 {
		return stringSet(p.cfg.MarketTickers), nil
	}
	if !p.fetcher.FiltersActive() {
		return nil, nil
	}
	for {
		tickers, metadata := p.fetcher.FetchMarketTickers(ctx)
		if len(metadata) > 0 {
			p.engine.UpdateMarketMetadata(trade.PlatformKalshi, metadata)
		}
		if len(tickers) > 0 {
			return stringSet(tickers), nil
		}
		p.log.Warn().Msg("market filter returned no tickers; poller paused")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(emptyFilterStall):
		}
	}
}

func (p *Poller) poll(ctx context.Context, allowed map[string]bool) {
	resp, err := p.client.R().SetContext(ctx).Get(p.cfg.TradesURL)
	if err != nil {
		p.log.Warn().Err(err).Msg("trades request failed")
		return
	}
	if resp.StatusCode() >= 400 {
		p.log.Warn().Int("status", resp.StatusCode()).Msg("trades request failed")
		return
	}
	var payload any
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		p.log.Warn().Err(err).Msg("trades response not JSON")
		return
	}
	for _, raw := range ExtractPollTrades(payload) {
		p.handle(raw, allowed)
	}
}

func (p *Poller) handle(raw trade.Raw, allowed map[string]bool) {
	if len(allowed) > 0 {
		market := raw.First("market", "ticker", "market_ticker")
		if market != "" && !allowed[market] {
			return
		}
	}
	timestamp := trade.ParseTimestamp(firstPresent(raw, "timestamp", "time", "created_time", "createdAt", "ts"))
	tradeID := raw.First("trade_id", "id")
	if tradeID != "" && p.seenSet[tradeID] {
		return
	}
	if timestamp < p.highWater {
		return
	}
	p.engine.HandleKalshiTrade(raw)
	if timestamp > p.highWater {
		p.highWater = timestamp
	}
	if tradeID != "" {
		p.seenSet[tradeID] = true
		p.seenOrder = append(p.seenOrder, tradeID)
		for len(p.seenOrder) > seenTradeIDLimit {
			delete(p.seenSet, p.seenOrder[0])
			p.seenOrder = p.seenOrder[1:]
		}
	}
}

func firstPresent(raw trade.Raw, keys ...string) any {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
