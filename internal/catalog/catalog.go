// Package catalog maintains per-venue market metadata: a periodically
// refreshed directory of markets keyed by every identifier a trade might
// carry (slug, ticker, token id, condition id).
package catalog

import (
	"sync"

	"github.com/whaleflow/whaleflow/internal/trade"
)

// MarketMeta describes one market. Immutable once built.
type MarketMeta struct {
	Label    string
	TextBlob string
	Volume   *float64
	Category string
}

type metaKey struct {
	Platform trade.Platform
	Alias    string
}

// Catalog is the shared alias table. Refreshes merge per-venue metadata maps
// under a short write lock; readers hold the lock only for the lookup.
type Catalog struct {
	mu      sync.RWMutex
	entries map[metaKey]MarketMeta
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[metaKey]MarketMeta)}
}

// Update merges a refreshed alias map for one venue, overwriting prior
// entries for the same keys.
func (c *Catalog) Update(platform trade.Platform, metadata map[string]MarketMeta) {
	if len(metadata) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for alias, meta := range metadata {
		if alias == "" {
			continue
		}
		c.entries[metaKey{Platform: platform, Alias: alias}] = meta
	}
}

// Lookup returns the first metadata hit over the candidate alias list.
func (c *Catalog) Lookup(platform trade.Platform, candidates ...string) (MarketMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, alias := range candidates {
		if alias == "" {
			continue
		}
		if meta, ok := c.entries[metaKey{Platform: platform, Alias: alias}]; ok {
			return meta, true
		}
	}
	return MarketMeta{}, false
}

// Len reports the number of aliases currently known.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
