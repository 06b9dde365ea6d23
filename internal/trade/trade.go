package trade

// Platform identifies the source venue of a trade.
type Platform string

const (
	PlatformPolymarket Platform = "polymarket"
	PlatformKalshi     Platform = "kalshi"
)

// Trade is the unified trade record used across adapters, detectors and
// stores. Downstream consumers operate on this type regardless of origin.
//
// Timestamp is fractional seconds since epoch. Optional numeric fields are
// pointers; optional string fields use "" as absent.
type Trade struct {
	Timestamp    float64  `json:"timestamp"`
	Platform     Platform `json:"platform"`
	Market       string   `json:"market"`
	MarketLabel  string   `json:"market_label,omitempty"`
	SizeUSD      float64  `json:"size_usd"`
	Side         string   `json:"side,omitempty"`
	ActorAddress string   `json:"actor_address,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	Quantity     *float64 `json:"quantity,omitempty"`
	TradeID      string   `json:"trade_id,omitempty"`

	MarketIsNiche  *bool    `json:"market_is_niche,omitempty"`
	MarketIsStock  *bool    `json:"market_is_stock,omitempty"`
	MarketVolume   *float64 `json:"market_volume,omitempty"`
	ClusterID      string   `json:"cluster_id,omitempty"`
	MarketCategory string   `json:"market_category,omitempty"`
}
