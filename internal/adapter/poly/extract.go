package poly

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/whaleflow/whaleflow/internal/trade"
)

// tradeEventTypes are the event labels that carry trade payloads; frames
// labelled anything else (book snapshots, comments, ...) are dropped.
var tradeEventTypes = map[string]bool{
	"trade":    true,
	"trades":   true,
	"activity": true,
}

// tradeHintKeys mark a bare object as a plausible trade when the frame
// carries no event label at all.
var tradeHintKeys = []string{
	"taker_address", "maker_address", "size", "price",
	"market", "market_id", "market_slug", "event_slug",
}

// ExtractTrades pulls zero or more trade objects out of one websocket frame.
// Both RTDS and CLOB frames are handled: lists of envelopes, single
// envelopes with nested data, and bare trade objects. Error events are
// logged and dropped.
func ExtractTrades(data []byte, log zerolog.Logger) []trade.Raw {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	return extractFromValue(payload, log)
}

func extractFromValue(payload any, log zerolog.Logger) []trade.Raw {
	switch p := payload.(type) {
	case []any:
		var out []trade.Raw
		for _, item := range p {
			out = append(out, extractFromValue(item, log)...)
		}
		return out
	case map[string]any:
		return extractFromObject(trade.Raw(p), log)
	default:
		return nil
	}
}

func extractFromObject(payload trade.Raw, log zerolog.Logger) []trade.Raw {
	eventType := strings.ToLower(payload.First("event", "type", "channel", "topic", "event_type"))
	if eventType == "error" {
		msg := payload.First("message", "error", "reason")
		if msg == "" {
			raw, _ := json.Marshal(map[string]any(payload))
			msg = truncate(string(raw), 200)
		}
		log.Warn().Str("error", msg).Msg("websocket error event")
		return nil
	}
	if eventType != "" && !tradeEventTypes[eventType] {
		return nil
	}

	data := firstValue(payload, "data", "trade", "trades", "payload")
	switch d := data.(type) {
	case map[string]any:
		nested := firstValue(trade.Raw(d), "trades", "trade", "data")
		switch n := nested.(type) {
		case map[string]any:
			return []trade.Raw{trade.Raw(n)}
		case []any:
			return objectItems(n)
		}
		return []trade.Raw{trade.Raw(d)}
	case []any:
		return objectItems(d)
	}
	if looksLikeTrade(payload) {
		return []trade.Raw{payload}
	}
	return nil
}

func looksLikeTrade(payload trade.Raw) bool {
	for _, key := range tradeHintKeys {
		if _, ok := payload[key]; ok {
			return true
		}
	}
	return false
}

func firstValue(payload trade.Raw, keys ...string) any {
	for _, key := range keys {
		if v, ok := payload[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func objectItems(items []any) []trade.Raw {
	var out []trade.Raw
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, trade.Raw(m))
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
