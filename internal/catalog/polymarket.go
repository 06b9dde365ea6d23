package catalog

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/whaleflow/whaleflow/internal/config"
	"github.com/whaleflow/whaleflow/internal/trade"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; WhaleFlow/1.0)"

var (
	polymarketTextKeys = []string{
		"title", "name", "question", "description", "subtitle",
		"slug", "event_slug", "eventSlug", "market_slug", "marketSlug",
	}
	polymarketLabelKeys = []string{
		"title", "question", "name", "subtitle", "slug", "event_slug", "market_slug",
	}
	polymarketCategoryKeys    = []string{"category", "category_name", "categoryName"}
	polymarketSubcategoryKeys = []string{"subcategory", "sub_category", "subcategory_name", "subcategoryName"}
	polymarketVolumeKeys      = []string{"volume24hr", "volume_24hr", "volume24h", "volume", "liquidity"}
	eventSlugKeys             = []string{"slug", "event_slug", "eventSlug", "event"}
	aliasSlugKeys             = []string{"slug", "event_slug", "eventSlug", "market_slug", "marketSlug"}
)

// PolymarketFetcher resolves the Polymarket subscription universe from the
// Gamma API: filtered event slugs for the RTDS feed, top-N market token ids
// for the CLOB feed, plus the metadata alias map either way.
type PolymarketFetcher struct {
	client  *resty.Client
	cfg     config.PolymarketConfig
	filters Filters
	log     zerolog.Logger
}

// NewPolymarketFetcher builds a fetcher on a shared resty client.
func NewPolymarketFetcher(client *resty.Client, cfg config.PolymarketConfig, logger zerolog.Logger) *PolymarketFetcher {
	filters := Filters{
		Keywords:        cfg.EventKeywords,
		ExcludeKeywords: cfg.EventExcludeKeywords,
		Categories:      cfg.EventCategories,
		Subcategories:   cfg.EventSubcategories,
		Tags:            cfg.EventTags,
		Companies:       cfg.EventCompanies,
	}.Normalized()
	return &PolymarketFetcher{
		client:  client,
		cfg:     cfg,
		filters: filters,
		log:     logger.With().Str("component", "polymarket_catalog").Logger(),
	}
}

// FiltersActive reports whether the fetch should filter events: any term
// list, or custom event query params, counts as active.
func (f *PolymarketFetcher) FiltersActive() bool {
	return f.filters.Active() || len(f.cfg.EventsParams) > 0
}

// ResolveEventSlugs picks the RTDS universe: configured slugs win, then the
// wildcard when no filters are configured, otherwise the filtered catalog.
func (f *PolymarketFetcher) ResolveEventSlugs(ctx context.Context) ([]string, map[string]MarketMeta) {
	if len(f.cfg.RTDSEventSlugs) > 0 {
		return f.cfg.RTDSEventSlugs, nil
	}
	if f.cfg.RTDSWildcard && !f.FiltersActive() {
		return []string{"*"}, nil
	}
	return f.FetchEventSlugs(ctx)
}

// FetchEventSlugs walks the events endpoint with offset pagination, applying
// the configured filters, and returns deduplicated slugs plus the alias map.
// Pagination stops on an empty page, an HTTP error, or the page cap; partial
// results are returned rather than an error.
func (f *PolymarketFetcher) FetchEventSlugs(ctx context.Context) ([]string, map[string]MarketMeta) {
	var slugs []string
	metadata := make(map[string]MarketMeta)
	filtersActive := f.FiltersActive()
	offset := 0
	for page := 0; page < f.cfg.EventsMaxPages; page++ {
		params := map[string]string{
			"limit":  strconv.Itoa(f.cfg.EventsLimit),
			"offset": strconv.Itoa(offset),
			"active": "true",
			"closed": "false",
		}
		for k, v := range f.cfg.EventsParams {
			params[k] = v
		}
		payload, ok := f.getJSON(ctx, f.cfg.EventsURL, params, "events")
		if !ok {
			break
		}
		items := extractList(payload, "events", "data", "results", "items")
		if len(items) == 0 {
			break
		}
		var matchedItems []trade.Raw
		for _, item := range items {
			if filtersActive && !f.itemMatches(item) {
				continue
			}
			if slug := item.First(eventSlugKeys...); slug != "" {
				slugs = append(slugs, slug)
				matchedItems = append(matchedItems, item)
			}
		}
		if filtersActive {
			mergeMetadata(metadata, buildPolymarketMetadata(matchedItems))
			f.log.Info().
				Int("matched", len(matchedItems)).
				Int("total", len(items)).
				Int("offset", offset).
				Msg("filtered events page")
		} else {
			mergeMetadata(metadata, buildPolymarketMetadata(items))
		}
		offset += f.cfg.EventsLimit
	}
	return dedupeStrings(slugs), metadata
}

// FetchTopMarketTokenIDs picks the CLOB universe: configured market ids win;
// otherwise one page of markets is fetched, filtered to active (and to the
// configured filters), sorted by 24h volume, and the top-N markets' CLOB
// token ids are returned. Markets without token ids fall back to their
// native market id.
func (f *PolymarketFetcher) FetchTopMarketTokenIDs(ctx context.Context) ([]string, map[string]MarketMeta) {
	if len(f.cfg.MarketIDs) > 0 {
		return f.cfg.MarketIDs, nil
	}
	params := map[string]string{"limit": strconv.Itoa(f.cfg.TopN)}
	for k, v := range f.cfg.MarketsParams {
		params[k] = v
	}
	if _, ok := params["active"]; !ok {
		params["active"] = "true"
	}
	if _, ok := params["closed"]; !ok {
		params["closed"] = "false"
	}
	payload, ok := f.getJSON(ctx, f.cfg.MarketsURL, params, "markets")
	if !ok {
		return nil, nil
	}
	items := extractList(payload, "markets", "data", "results", "items")
	filtersActive := f.FiltersActive()

	var active []trade.Raw
	for _, item := range items {
		if !isMarketActive(item) {
			continue
		}
		if filtersActive && !f.itemMatches(item) {
			continue
		}
		active = append(active, item)
	}
	sort.SliceStable(active, func(i, j int) bool {
		return marketVolume(active[i]) > marketVolume(active[j])
	})
	metadata := buildPolymarketMetadata(active)

	var ids []string
	top := active
	if len(top) > f.cfg.TopN {
		top = top[:f.cfg.TopN]
	}
	for _, item := range top {
		tokens := clobTokenIDs(item)
		if len(tokens) > 0 {
			ids = append(ids, tokens...)
			continue
		}
		if id := item.MarketID(); id != "" {
			ids = append(ids, id)
		}
	}
	return dedupeStrings(ids), metadata
}

func (f *PolymarketFetcher) getJSON(ctx context.Context, url string, params map[string]string, what string) (any, bool) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetHeader("User-Agent", defaultUserAgent).
		Get(url)
	if err != nil {
		f.log.Warn().Err(err).Str("url", url).Msgf("%s request failed", what)
		return nil, false
	}
	if resp.StatusCode() >= 400 {
		f.log.Warn().Int("status", resp.StatusCode()).Str("url", url).Msgf("%s request failed", what)
		return nil, false
	}
	var payload any
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		f.log.Warn().Err(err).Msgf("%s response not JSON", what)
		return nil, false
	}
	return payload, true
}

func (f *PolymarketFetcher) itemMatches(item trade.Raw) bool {
	categories := collectFields(item, polymarketCategoryKeys)
	subcategories := collectFields(item, polymarketSubcategoryKeys)
	tags := itemTags(item)
	blob := BuildTextBlob(collectFields(item, polymarketTextKeys), categories, subcategories, tags)
	return f.filters.Matches(blob, categories, subcategories, tags)
}

func buildPolymarketMetadata(items []trade.Raw) map[string]MarketMeta {
	metadata := make(map[string]MarketMeta, len(items))
	for _, item := range items {
		label := item.First(polymarketLabelKeys...)
		textFields := collectFields(item, polymarketTextKeys)
		categories := collectFields(item, polymarketCategoryKeys)
		subcategories := collectFields(item, polymarketSubcategoryKeys)
		tags := itemTags(item)
		vol := marketVolume(item)
		meta := MarketMeta{
			Label:    label,
			TextBlob: BuildTextBlob(textFields, categories, subcategories, tags),
			Category: firstNonEmpty(categories),
		}
		if vol > 0 {
			v := vol
			meta.Volume = &v
		}
		aliases := map[string]bool{}
		if id := item.MarketID(); id != "" {
			aliases[id] = true
		}
		for _, key := range aliasSlugKeys {
			if s := trade.Stringify(item[key]); s != "" {
				aliases[s] = true
			}
		}
		for _, token := range clobTokenIDs(item) {
			aliases[token] = true
		}
		for alias := range aliases {
			metadata[alias] = meta
		}
	}
	return metadata
}

// clobTokenIDs pulls the market's token ids; the Gamma API sometimes encodes
// the list as a JSON string.
func clobTokenIDs(item trade.Raw) []string {
	raw := item["clobTokenIds"]
	if raw == nil {
		raw = item["clob_token_ids"]
	}
	if s, ok := raw.(string); ok {
		var decoded []any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil
		}
		raw = decoded
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range list {
		if s := trade.Stringify(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// isMarketActive treats missing flags as permissive: only an explicit
// active=false, closed=true or archived=true excludes a market.
func isMarketActive(item trade.Raw) bool {
	if v, ok := item["active"]; ok && !truthy(v) {
		return false
	}
	if v, ok := item["closed"]; ok && truthy(v) {
		return false
	}
	if v, ok := item["archived"]; ok && truthy(v) {
		return false
	}
	return true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	case float64:
		return t != 0
	case nil:
		return false
	default:
		return true
	}
}

func marketVolume(item trade.Raw) float64 {
	for _, key := range polymarketVolumeKeys {
		if v, ok := trade.ToFloat(item[key]); ok {
			return v
		}
	}
	return 0
}

func itemTags(item trade.Raw) []string {
	raw := item["tags"]
	if raw == nil {
		raw = item["tag"]
	}
	if raw == nil {
		raw = item["tag_name"]
	}
	return ExtractTagNames(raw)
}

func collectFields(item trade.Raw, keys []string) []string {
	var out []string
	for _, key := range keys {
		if s := trade.Stringify(item[key]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func mergeMetadata(dst, src map[string]MarketMeta) {
	for k, v := range src {
		dst[k] = v
	}
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
