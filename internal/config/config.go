package config

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration, loaded from environment
// variables (optionally seeded from a .env file by the caller).
type Config struct {
	LogLevel string

	HTTPTimeout time.Duration

	EnablePolymarket bool
	EnableKalshi     bool

	Polymarket PolymarketConfig
	Kalshi     KalshiConfig
	Detectors  DetectorConfig
	Classifier ClassifierConfig
	Store      StoreConfig
	API        APIConfig
}

// PolymarketConfig covers both streaming modes plus the events/markets catalog.
type PolymarketConfig struct {
	StreamMode string // "rtds" (default) or "clob"

	RTDSURL            string
	RTDSTopic          string
	RTDSType           string
	RTDSEventSlugs     []string
	RTDSWildcard       bool
	RTDSChunkSize      int
	RTDSSubscribePause time.Duration
	RTDSSubscribeMode  string // "simple" or "command"

	WSURL         string
	Channel       string
	SubscribeMode string // "bulk", "shard", "single"
	MarketIDs     []string
	MarketsURL    string
	MarketsParams map[string]string
	TopN          int

	EventsURL      string
	EventsLimit    int
	EventsMaxPages int
	EventsParams   map[string]string

	EventKeywords        []string
	EventExcludeKeywords []string
	EventCategories      []string
	EventSubcategories   []string
	EventTags            []string
	EventCompanies       []string

	L2Enabled     bool
	L2APIKey      string
	L2APISecret   string
	L2Passphrase  string
	L2RequestPath string

	PingInterval time.Duration
	PingTimeout  time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// KalshiConfig covers the authenticated websocket and the fallback poller.
type KalshiConfig struct {
	WSEnabled   bool
	PollEnabled bool

	WSURL       string
	WSPath      string
	WSChannels  []string
	TradesURL   string
	PollSeconds time.Duration

	MarketTickers   []string
	MarketsURL      string
	MarketsLimit    int
	MarketsMaxPages int
	MarketsParams   map[string]string

	MarketKeywords        []string
	MarketExcludeKeywords []string
	MarketCategories      []string
	MarketSubcategories   []string
	MarketTags            []string
	MarketCompanies       []string

	AccessKey   string
	PrivateKey  string
	SigningAlgo string

	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// DetectorConfig holds thresholds and windows for the detector bundle.
type DetectorConfig struct {
	TradeWindowSeconds int

	PolymarketWhaleThresholdUSD float64
	PolymarketWhaleWindowSecs   int

	KalshiYesThresholdUSD float64
	KalshiYesWindowSecs   int

	ZScoreWindowSeconds int
	ZScoreThreshold     float64
	ZScoreMinSamples    int
	ZScoreCooldownSecs  float64

	SweepWindowMS     int
	SweepMinTrades    int
	SweepCooldownSecs float64

	ClusterEnabled        bool
	ClusterMatchThreshold float64
}

// ClassifierConfig feeds the market classifier. A nil keyword slice means
// "use package defaults"; the Disabled flags record an explicit
// "none"/"off" sentinel that empties the list.
type ClassifierConfig struct {
	NicheKeywords   []string
	NicheDisabled   bool
	StockKeywords   []string
	StockDisabled   bool
	ExcludeKeywords []string
	ExcludeDisabled bool
	MaxYearsAhead   int
	NicheMaxVolume  *float64
}

// StoreConfig selects and configures the trade store backend.
type StoreConfig struct {
	FeedMode      string // "mock"/"memory", "db", "postgres"
	TradeDBPath   string
	PersistTrades bool

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// APIConfig configures the dashboard-facing query API.
type APIConfig struct {
	Enabled bool
	Addr    string

	FlowMinUSD       float64
	FlowLimit        int
	FlowMaxLimit     int
	FlowLookbackHrs  float64
	LeaderboardLimit int
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		LogLevel:         v.GetString("log_level"),
		HTTPTimeout:      secondsDuration(v.GetFloat64("http_timeout_seconds")),
		EnablePolymarket: v.GetBool("enable_polymarket"),
		EnableKalshi:     v.GetBool("enable_kalshi"),
	}

	cfg.Polymarket = PolymarketConfig{
		StreamMode:         strings.ToLower(strings.TrimSpace(v.GetString("polymarket_stream_mode"))),
		RTDSURL:            v.GetString("polymarket_rtds_url"),
		RTDSTopic:          v.GetString("polymarket_rtds_topic"),
		RTDSType:           v.GetString("polymarket_rtds_type"),
		RTDSEventSlugs:     ParseCSV(v.GetString("polymarket_rtds_event_slugs")),
		RTDSWildcard:       v.GetBool("polymarket_rtds_wildcard"),
		RTDSChunkSize:      v.GetInt("polymarket_rtds_chunk_size"),
		RTDSSubscribePause: secondsDuration(v.GetFloat64("polymarket_rtds_subscribe_pause")),
		RTDSSubscribeMode:  strings.ToLower(strings.TrimSpace(v.GetString("polymarket_rtds_subscribe_mode"))),
		WSURL:              v.GetString("polymarket_ws_url"),
		Channel:            v.GetString("polymarket_ws_channel"),
		SubscribeMode:      strings.ToLower(strings.TrimSpace(v.GetString("polymarket_subscribe_mode"))),
		MarketIDs:          ParseCSV(v.GetString("polymarket_market_ids")),
		MarketsURL:         v.GetString("polymarket_markets_url"),
		MarketsParams:      ParseQueryParams(v.GetString("polymarket_markets_params")),
		TopN:               v.GetInt("polymarket_top_n"),
		EventsURL:          v.GetString("polymarket_events_url"),
		EventsLimit:        v.GetInt("polymarket_events_limit"),
		EventsMaxPages:     v.GetInt("polymarket_events_max_pages"),
		EventsParams:       ParseQueryParams(v.GetString("polymarket_events_params")),

		EventKeywords:        ParseCSV(v.GetString("polymarket_event_keywords")),
		EventExcludeKeywords: ParseCSV(v.GetString("polymarket_event_exclude_keywords")),
		EventCategories:      ParseCSV(v.GetString("polymarket_event_categories")),
		EventSubcategories:   ParseCSV(v.GetString("polymarket_event_subcategories")),
		EventTags:            ParseCSV(v.GetString("polymarket_event_tags")),
		EventCompanies:       ParseCSV(v.GetString("polymarket_event_companies")),

		L2Enabled:     v.GetBool("polymarket_l2_enabled"),
		L2APIKey:      v.GetString("polymarket_api_key"),
		L2APISecret:   v.GetString("polymarket_api_secret"),
		L2Passphrase:  v.GetString("polymarket_api_passphrase"),
		L2RequestPath: v.GetString("polymarket_l2_request_path"),

		PingInterval: secondsDuration(v.GetFloat64("polymarket_ping_interval")),
		PingTimeout:  secondsDuration(v.GetFloat64("polymarket_ping_timeout")),
		ReconnectMin: secondsDuration(v.GetFloat64("polymarket_reconnect_min")),
		ReconnectMax: secondsDuration(v.GetFloat64("polymarket_reconnect_max")),
	}

	cfg.Kalshi = KalshiConfig{
		WSEnabled:   v.GetBool("kalshi_ws_enabled"),
		PollEnabled: v.GetBool("kalshi_poll_enabled"),
		WSURL:       v.GetString("kalshi_ws_url"),
		WSPath:      v.GetString("kalshi_ws_path"),
		WSChannels:  ParseCSV(v.GetString("kalshi_ws_channels")),
		TradesURL:   v.GetString("kalshi_trades_url"),
		PollSeconds: secondsDuration(v.GetFloat64("kalshi_poll_seconds")),

		MarketTickers:   ParseCSV(v.GetString("kalshi_market_tickers")),
		MarketsURL:      v.GetString("kalshi_markets_url"),
		MarketsLimit:    v.GetInt("kalshi_markets_limit"),
		MarketsMaxPages: v.GetInt("kalshi_markets_max_pages"),
		MarketsParams:   ParseQueryParams(v.GetString("kalshi_markets_params")),

		MarketKeywords:        ParseCSV(v.GetString("kalshi_market_keywords")),
		MarketExcludeKeywords: ParseCSV(v.GetString("kalshi_market_exclude_keywords")),
		MarketCategories:      ParseCSV(v.GetString("kalshi_market_categories")),
		MarketSubcategories:   ParseCSV(v.GetString("kalshi_market_subcategories")),
		MarketTags:            ParseCSV(v.GetString("kalshi_market_tags")),
		MarketCompanies:       ParseCSV(v.GetString("kalshi_market_companies")),

		AccessKey:   v.GetString("kalshi_access_key"),
		PrivateKey:  v.GetString("kalshi_private_key"),
		SigningAlgo: v.GetString("kalshi_signing_algo"),

		ReconnectMin: secondsDuration(v.GetFloat64("kalshi_reconnect_min")),
		ReconnectMax: secondsDuration(v.GetFloat64("kalshi_reconnect_max")),
	}

	cfg.Detectors = DetectorConfig{
		TradeWindowSeconds:          v.GetInt("trade_window_seconds"),
		PolymarketWhaleThresholdUSD: v.GetFloat64("polymarket_whale_threshold_usd"),
		PolymarketWhaleWindowSecs:   v.GetInt("polymarket_whale_window_seconds"),
		KalshiYesThresholdUSD:       v.GetFloat64("kalshi_yes_threshold_usd"),
		KalshiYesWindowSecs:         v.GetInt("kalshi_yes_window_seconds"),
		ZScoreWindowSeconds:         v.GetInt("zscore_window_seconds"),
		ZScoreThreshold:             v.GetFloat64("zscore_threshold"),
		ZScoreMinSamples:            v.GetInt("zscore_min_samples"),
		ZScoreCooldownSecs:          v.GetFloat64("zscore_cooldown_seconds"),
		SweepWindowMS:               v.GetInt("sweep_window_ms"),
		SweepMinTrades:              v.GetInt("sweep_min_trades"),
		SweepCooldownSecs:           v.GetFloat64("sweep_cooldown_seconds"),
		ClusterEnabled:              v.GetBool("market_cluster_enabled"),
		ClusterMatchThreshold:       v.GetFloat64("market_cluster_match_threshold"),
	}

	cfg.Classifier = ClassifierConfig{
		MaxYearsAhead: v.GetInt("market_max_years_ahead"),
	}
	cfg.Classifier.NicheKeywords, cfg.Classifier.NicheDisabled = parseTermList(v.GetString("market_niche_keywords"))
	cfg.Classifier.StockKeywords, cfg.Classifier.StockDisabled = parseTermList(v.GetString("market_stock_keywords"))
	cfg.Classifier.ExcludeKeywords, cfg.Classifier.ExcludeDisabled = parseTermList(v.GetString("market_exclude_keywords"))
	if raw := strings.TrimSpace(v.GetString("market_niche_max_volume_usd")); raw != "" && !isOff(raw) {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.Classifier.NicheMaxVolume = &f
		}
	}

	cfg.Store = StoreConfig{
		FeedMode:         strings.ToLower(strings.TrimSpace(v.GetString("dash_feed_mode"))),
		TradeDBPath:      v.GetString("trade_db_path"),
		PersistTrades:    v.GetBool("persist_trades"),
		PostgresHost:     v.GetString("postgres_host"),
		PostgresPort:     v.GetInt("postgres_port"),
		PostgresUser:     v.GetString("postgres_user"),
		PostgresPassword: v.GetString("postgres_password"),
		PostgresDatabase: v.GetString("postgres_database"),
		PostgresSSLMode:  v.GetString("postgres_sslmode"),
		RedisAddr:        v.GetString("redis_addr"),
		RedisPassword:    v.GetString("redis_password"),
		RedisDB:          v.GetInt("redis_db"),
	}

	cfg.API = APIConfig{
		Enabled:          v.GetBool("api_enabled"),
		Addr:             v.GetString("api_addr"),
		FlowMinUSD:       v.GetFloat64("dash_flow_min_usd"),
		FlowLimit:        v.GetInt("dash_flow_limit"),
		FlowMaxLimit:     v.GetInt("dash_flow_max_limit"),
		FlowLookbackHrs:  v.GetFloat64("dash_flow_lookback_hours"),
		LeaderboardLimit: v.GetInt("dash_leaderboard_limit"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("http_timeout_seconds", 15.0)

	v.SetDefault("enable_polymarket", true)
	v.SetDefault("enable_kalshi", true)

	v.SetDefault("polymarket_stream_mode", "rtds")
	v.SetDefault("polymarket_rtds_url", "wss://ws-live-data.polymarket.com")
	v.SetDefault("polymarket_rtds_topic", "activity")
	v.SetDefault("polymarket_rtds_type", "trades")
	v.SetDefault("polymarket_rtds_wildcard", true)
	v.SetDefault("polymarket_rtds_chunk_size", 500)
	v.SetDefault("polymarket_rtds_subscribe_pause", 0.01)
	v.SetDefault("polymarket_rtds_subscribe_mode", "simple")
	v.SetDefault("polymarket_ws_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("polymarket_ws_channel", "trades")
	v.SetDefault("polymarket_subscribe_mode", "bulk")
	v.SetDefault("polymarket_markets_url", "https://gamma-api.polymarket.com/markets")
	v.SetDefault("polymarket_top_n", 50)
	v.SetDefault("polymarket_events_url", "https://gamma-api.polymarket.com/events")
	v.SetDefault("polymarket_events_limit", 100)
	v.SetDefault("polymarket_events_max_pages", 50)
	v.SetDefault("polymarket_l2_enabled", false)
	v.SetDefault("polymarket_l2_request_path", "/")
	v.SetDefault("polymarket_ping_interval", 20.0)
	v.SetDefault("polymarket_ping_timeout", 20.0)
	v.SetDefault("polymarket_reconnect_min", 2.0)
	v.SetDefault("polymarket_reconnect_max", 60.0)

	v.SetDefault("kalshi_ws_enabled", true)
	v.SetDefault("kalshi_poll_enabled", false)
	v.SetDefault("kalshi_ws_url", "wss://api.elections.kalshi.com/trade-api/ws/v2")
	v.SetDefault("kalshi_ws_path", "/trade-api/ws/v2")
	v.SetDefault("kalshi_ws_channels", "trade")
	v.SetDefault("kalshi_trades_url", "https://api.elections.kalshi.com/trade-api/v2/markets/trades")
	v.SetDefault("kalshi_poll_seconds", 2.0)
	v.SetDefault("kalshi_markets_url", "https://api.elections.kalshi.com/trade-api/v2/markets")
	v.SetDefault("kalshi_markets_limit", 200)
	v.SetDefault("kalshi_markets_max_pages", 50)
	v.SetDefault("kalshi_signing_algo", "ed25519")
	v.SetDefault("kalshi_reconnect_min", 2.0)
	v.SetDefault("kalshi_reconnect_max", 60.0)

	v.SetDefault("trade_window_seconds", 86400)
	v.SetDefault("polymarket_whale_threshold_usd", 10000.0)
	v.SetDefault("polymarket_whale_window_seconds", 21600)
	v.SetDefault("kalshi_yes_threshold_usd", 50000.0)
	v.SetDefault("kalshi_yes_window_seconds", 3600)
	v.SetDefault("zscore_window_seconds", 3600)
	v.SetDefault("zscore_threshold", 3.0)
	v.SetDefault("zscore_min_samples", 30)
	v.SetDefault("zscore_cooldown_seconds", 30.0)
	v.SetDefault("sweep_window_ms", 50)
	v.SetDefault("sweep_min_trades", 5)
	v.SetDefault("sweep_cooldown_seconds", 1.0)
	v.SetDefault("market_cluster_enabled", true)
	v.SetDefault("market_cluster_match_threshold", 87.0)

	v.SetDefault("market_max_years_ahead", 1)

	v.SetDefault("dash_feed_mode", "mock")
	v.SetDefault("trade_db_path", "data/trades.db")
	v.SetDefault("persist_trades", true)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "whaleflow")
	v.SetDefault("postgres_password", "whaleflow")
	v.SetDefault("postgres_database", "whaleflow")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("api_enabled", true)
	v.SetDefault("api_addr", ":8090")
	v.SetDefault("dash_flow_min_usd", 1000.0)
	v.SetDefault("dash_flow_limit", 60)
	v.SetDefault("dash_flow_max_limit", 200)
	v.SetDefault("dash_flow_lookback_hours", 6.0)
	v.SetDefault("dash_leaderboard_limit", 14)
}

// PostgresDSN returns the lib/pq connection string.
func (s StoreConfig) PostgresDSN() string {
	parts := []string{
		"host=" + s.PostgresHost,
		"port=" + strconv.Itoa(s.PostgresPort),
		"user=" + s.PostgresUser,
		"password=" + s.PostgresPassword,
		"dbname=" + s.PostgresDatabase,
		"sslmode=" + s.PostgresSSLMode,
	}
	return strings.Join(parts, " ")
}

// ParseCSV splits a comma-separated env value, trimming blanks.
func ParseCSV(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ParseQueryParams accepts either a JSON object or a query string
// ("status=open&series=KX") and returns it as a flat string map.
func ParseQueryParams(value string) map[string]string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil
	}
	if strings.HasPrefix(cleaned, "{") {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
			return nil
		}
		out := make(map[string]string, len(parsed))
		for k, val := range parsed {
			out[k] = stringify(val)
		}
		return out
	}
	values, err := url.ParseQuery(cleaned)
	if err != nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for k := range values {
		out[k] = values.Get(k)
	}
	return out
}

// parseTermList returns the parsed keyword list plus whether the list was
// explicitly disabled ("none"/"off"/"false"/"0"). An empty value means
// "use defaults" and returns (nil, false).
func parseTermList(raw string) ([]string, bool) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil, false
	}
	if isOff(cleaned) {
		return nil, true
	}
	return ParseCSV(cleaned), false
}

func isOff(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "off", "false", "0":
		return true
	}
	return false
}

func secondsDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
