package catalog

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/whaleflow/whaleflow/internal/config"
	"github.com/whaleflow/whaleflow/internal/trade"
)

var (
	kalshiTextKeys = []string{
		"title", "subtitle", "description", "question",
		"ticker", "market_ticker", "event_ticker",
	}
	kalshiLabelKeys       = []string{"title", "question", "subtitle", "ticker", "market_ticker"}
	kalshiCategoryKeys    = []string{"category", "category_name", "categoryName", "series"}
	kalshiSubcategoryKeys = []string{"subcategory", "sub_category", "subcategory_name", "subcategoryName"}
	kalshiTickerKeys      = []string{"ticker", "market_ticker", "marketTicker", "symbol", "id"}
	kalshiVolumeKeys      = []string{"volume_24h", "volume24h", "volume", "open_interest", "openInterest", "open_interest_usd"}
	kalshiCursorKeys      = []string{"next_cursor", "next", "cursor", "nextCursor", "next_token", "nextToken"}
)

// KalshiFetcher resolves the Kalshi subscription universe from the markets
// endpoint using cursor pagination.
type KalshiFetcher struct {
	client  *resty.Client
	cfg     config.KalshiConfig
	filters Filters
	log     zerolog.Logger
}

// NewKalshiFetcher builds a fetcher on a shared resty client.
func NewKalshiFetcher(client *resty.Client, cfg config.KalshiConfig, logger zerolog.Logger) *KalshiFetcher {
	filters := Filters{
		Keywords:        cfg.MarketKeywords,
		ExcludeKeywords: cfg.MarketExcludeKeywords,
		Categories:      cfg.MarketCategories,
		Subcategories:   cfg.MarketSubcategories,
		Tags:            cfg.MarketTags,
		Companies:       cfg.MarketCompanies,
	}.Normalized()
	return &KalshiFetcher{
		client:  client,
		cfg:     cfg,
		filters: filters,
		log:     logger.With().Str("component", "kalshi_catalog").Logger(),
	}
}

// FiltersActive reports whether any market filter term list is configured.
func (f *KalshiFetcher) FiltersActive() bool {
	return f.filters.Active()
}

// ResolveMarketTickers picks the subscription universe: configured tickers
// win; with no filters the universe is unbounded (nil means "all markets");
// otherwise the filtered catalog is fetched.
func (f *KalshiFetcher) ResolveMarketTickers(ctx context.Context) ([]string, map[string]MarketMeta) {
	if len(f.cfg.MarketTickers) > 0 {
		return f.cfg.MarketTickers, nil
	}
	if !f.FiltersActive() {
		return nil, nil
	}
	return f.FetchMarketTickers(ctx)
}

// FetchMarketTickers walks the markets endpoint with cursor pagination,
// applying the configured filters, and returns deduplicated tickers plus the
// alias map. Pagination stops on an empty page, a missing cursor, an HTTP
// error, or the page cap; partial results are returned rather than an error.
func (f *KalshiFetcher) FetchMarketTickers(ctx context.Context) ([]string, map[string]MarketMeta) {
	var tickers []string
	metadata := make(map[string]MarketMeta)
	cursor := ""
	for page := 0; page < f.cfg.MarketsMaxPages; page++ {
		params := map[string]string{"limit": strconv.Itoa(f.cfg.MarketsLimit)}
		for k, v := range f.cfg.MarketsParams {
			params[k] = v
		}
		if cursor != "" {
			if _, ok := params["cursor"]; !ok {
				params["cursor"] = cursor
			}
		}
		payload, ok := f.getJSON(ctx, params)
		if !ok {
			break
		}
		items := extractList(payload, "markets", "data", "results", "items")
		if len(items) == 0 {
			break
		}
		var matchedItems []trade.Raw
		for _, item := range items {
			if !f.marketMatches(item) {
				continue
			}
			if ticker := item.First(kalshiTickerKeys...); ticker != "" {
				tickers = append(tickers, ticker)
				matchedItems = append(matchedItems, item)
			}
		}
		f.log.Info().
			Int("matched", len(matchedItems)).
			Int("total", len(items)).
			Str("cursor", orStart(cursor)).
			Msg("filtered markets page")
		mergeMetadata(metadata, buildKalshiMetadata(matchedItems))
		cursor = nextCursor(payload)
		if cursor == "" {
			break
		}
	}
	return dedupeStrings(tickers), metadata
}

func (f *KalshiFetcher) getJSON(ctx context.Context, params map[string]string) (any, bool) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetHeader("User-Agent", defaultUserAgent).
		Get(f.cfg.MarketsURL)
	if err != nil {
		f.log.Warn().Err(err).Msg("markets request failed")
		return nil, false
	}
	if resp.StatusCode() >= 400 {
		f.log.Warn().Int("status", resp.StatusCode()).Msg("markets request failed")
		return nil, false
	}
	var payload any
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		f.log.Warn().Err(err).Msg("markets response not JSON")
		return nil, false
	}
	return payload, true
}

func (f *KalshiFetcher) marketMatches(item trade.Raw) bool {
	categories := collectFields(item, kalshiCategoryKeys)
	subcategories := collectFields(item, kalshiSubcategoryKeys)
	tags := itemTags(item)
	blob := BuildTextBlob(collectFields(item, kalshiTextKeys), categories, subcategories, tags)
	return f.filters.Matches(blob, categories, subcategories, tags)
}

func buildKalshiMetadata(items []trade.Raw) map[string]MarketMeta {
	metadata := make(map[string]MarketMeta, len(items))
	for _, item := range items {
		label := item.First(kalshiLabelKeys...)
		categories := collectFields(item, kalshiCategoryKeys)
		subcategories := collectFields(item, kalshiSubcategoryKeys)
		tags := itemTags(item)
		meta := MarketMeta{
			Label:    label,
			TextBlob: BuildTextBlob(collectFields(item, kalshiTextKeys), categories, subcategories, tags),
			Category: firstNonEmpty(categories),
		}
		for _, key := range kalshiVolumeKeys {
			if v, ok := trade.ToFloat(item[key]); ok {
				vol := v
				meta.Volume = &vol
				break
			}
		}
		aliases := map[string]bool{}
		if ticker := item.First(kalshiTickerKeys...); ticker != "" {
			aliases[ticker] = true
		}
		if et := item.First("event_ticker", "eventTicker"); et != "" {
			aliases[et] = true
		}
		for alias := range aliases {
			metadata[alias] = meta
		}
	}
	return metadata
}

func nextCursor(payload any) string {
	if m, ok := payload.(map[string]any); ok {
		return trade.Raw(m).First(kalshiCursorKeys...)
	}
	return ""
}

func orStart(cursor string) string {
	if cursor == "" {
		return "start"
	}
	return cursor
}
