package kalshi

import (
	"encoding/json"
	"strings"

	"github.com/whaleflow/whaleflow/internal/trade"
)

// ExtractWSTrades pulls trade objects out of one websocket frame. Frames
// labelled with a non-trade type (subscription acks, errors, orderbook
// deltas) are dropped; unlabelled frames fall through to the data envelope.
func ExtractWSTrades(data []byte) []trade.Raw {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	raw := trade.Raw(payload)
	msgType := strings.ToLower(strings.TrimSpace(raw.First("type", "channel")))
	if msgType != "" && msgType != "trade" && msgType != "trades" {
		return nil
	}
	switch d := firstPresent(raw, "data", "trade", "trades", "payload").(type) {
	case map[string]any:
		return []trade.Raw{trade.Raw(d)}
	case []any:
		return rawObjects(d)
	}
	return nil
}

// ExtractPollTrades pulls trade objects out of a REST trades response: either
// a bare list or an envelope under trades/data/results.
func ExtractPollTrades(payload any) []trade.Raw {
	switch p := payload.(type) {
	case map[string]any:
		if items, ok := firstPresent(trade.Raw(p), "trades", "data", "results").([]any); ok {
			return rawObjects(items)
		}
		return nil
	case []any:
		return rawObjects(p)
	}
	return nil
}

func rawObjects(items []any) []trade.Raw {
	var out []trade.Raw
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, trade.Raw(m))
		}
	}
	return out
}
