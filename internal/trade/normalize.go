package trade

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Raw is a decoded venue payload. Both venues deliver JSON objects with
// inconsistent key names, timestamp encodings and price scales; the
// functions below are the single place that flattens them.
type Raw map[string]any

var nonAlpha = regexp.MustCompile(`[^a-z]+`)

// timestampKeys in priority order; the first non-nil value wins.
var timestampKeys = []string{"timestamp", "time", "created_at", "createdAt", "created_time", "ts"}

var marketIDKeys = []string{"market", "market_id", "marketId", "condition_id", "conditionId", "id"}

var priceKeys = []string{"price", "price_usd", "priceUsd", "price_cents", "yes_price", "no_price"}

var quantityKeys = []string{"size", "trade_size", "quantity", "qty", "count"}

var sizeUSDKeys = []string{"size_usd", "sizeUsd", "volume_usd", "volumeUsd", "notional"}

var tradeIDKeys = []string{"trade_id", "id", "hash", "tx_hash", "txHash"}

// Timestamp extracts and parses the trade timestamp, falling back to the
// current wall clock. Never fails.
func (r Raw) Timestamp() float64 {
	for _, key := range timestampKeys {
		if v, ok := r[key]; ok && v != nil && v != "" {
			return ParseTimestamp(v)
		}
	}
	return nowUnix()
}

// ParseTimestamp accepts epoch seconds, epoch milliseconds (numeric values
// above 1e12), or ISO-8601 strings with an optional trailing Z. Unparseable
// input yields the current wall clock.
func ParseTimestamp(value any) float64 {
	switch v := value.(type) {
	case nil:
		return nowUnix()
	case float64:
		return scaleEpoch(v)
	case int:
		return scaleEpoch(float64(v))
	case int64:
		return scaleEpoch(float64(v))
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return scaleEpoch(f)
		}
		return nowUnix()
	case string:
		cleaned := strings.TrimSpace(v)
		if cleaned == "" {
			return nowUnix()
		}
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return scaleEpoch(f)
		}
		if t, err := parseISO(cleaned); err == nil {
			return float64(t.UnixNano()) / 1e9
		}
		return nowUnix()
	default:
		return nowUnix()
	}
}

func scaleEpoch(ts float64) float64 {
	if ts > 1e12 {
		return ts / 1000.0
	}
	return ts
}

func parseISO(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

var nowUnix = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// MarketID returns the first non-empty venue-native market identifier.
func (r Raw) MarketID() string {
	for _, key := range marketIDKeys {
		if s := Stringify(r[key]); s != "" {
			return s
		}
	}
	return ""
}

// NormalizeWallet lowercases a wallet address; empty input maps to "".
func NormalizeWallet(value any) string {
	s := Stringify(value)
	if s == "" {
		return ""
	}
	return strings.ToLower(s)
}

// NormalizeSide canonicalizes a venue side term to "yes"/"no". Compound
// terms are tokenized first: "sell no" nets out to "yes" and so on.
// Unknown input passes through lowercased.
func NormalizeSide(value any) string {
	cleaned := strings.ToLower(strings.TrimSpace(Stringify(value)))
	if cleaned == "" {
		return ""
	}
	parts := map[string]bool{}
	for _, part := range nonAlpha.Split(cleaned, -1) {
		if part != "" {
			parts[part] = true
		}
	}
	switch {
	case parts["sell"] && parts["no"]:
		return "yes"
	case parts["buy"] && parts["no"]:
		return "no"
	case parts["sell"] && parts["yes"]:
		return "no"
	case parts["buy"] && parts["yes"]:
		return "yes"
	}
	switch cleaned {
	case "buy", "bid", "long", "yes":
		return "yes"
	case "sell", "ask", "short", "no":
		return "no"
	}
	return cleaned
}

// ToFloat coerces JSON numbers, strings and integer types to float64.
func ToFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// NormalizePrice rescales integer/basis-point prices: any value above 1.5
// is divided by 100 exactly once.
func NormalizePrice(value any) *float64 {
	price, ok := ToFloat(value)
	if !ok {
		return nil
	}
	if price > 1.5 {
		price /= 100.0
	}
	return &price
}

// Price returns the first parseable price field, rescaled.
func (r Raw) Price() *float64 {
	for _, key := range priceKeys {
		if v, ok := r[key]; ok {
			if p := NormalizePrice(v); p != nil {
				return p
			}
		}
	}
	return nil
}

// Quantity returns the first parseable contract-count field.
func (r Raw) Quantity() *float64 {
	for _, key := range quantityKeys {
		if v, ok := r[key]; ok {
			if q, ok := ToFloat(v); ok {
				return &q
			}
		}
	}
	return nil
}

// SizeUSD returns the notional size: a direct field when present, else
// price times quantity, else 0.
func (r Raw) SizeUSD() float64 {
	for _, key := range sizeUSDKeys {
		if v, ok := r[key]; ok {
			if f, ok := ToFloat(v); ok {
				return f
			}
		}
	}
	qty := r.Quantity()
	price := r.Price()
	if qty == nil || price == nil {
		return 0
	}
	if *qty <= 0 || *price <= 0 {
		return 0
	}
	return *qty * *price
}

// TradeID returns the venue-native trade identifier, if any.
func (r Raw) TradeID() string {
	for _, key := range tradeIDKeys {
		if s := Stringify(r[key]); s != "" {
			return s
		}
	}
	return ""
}

// BackfillNumbers fills in whichever of price/quantity is missing by
// division, given a positive notional.
func BackfillNumbers(sizeUSD float64, price, quantity *float64) (*float64, *float64) {
	if sizeUSD <= 0 {
		return price, quantity
	}
	if price == nil && quantity != nil && *quantity != 0 {
		p := sizeUSD / *quantity
		price = &p
	}
	if quantity == nil && price != nil && *price != 0 {
		q := sizeUSD / *price
		quantity = &q
	}
	return price, quantity
}

// Stringify renders a raw JSON value as a string; nil and empty values
// become "".
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// First returns the first non-empty value among the given keys, as a string.
func (r Raw) First(keys ...string) string {
	for _, key := range keys {
		if s := Stringify(r[key]); s != "" {
			return s
		}
	}
	return ""
}
