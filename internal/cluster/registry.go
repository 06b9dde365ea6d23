// Package cluster groups near-identical markets across venues by fuzzy text
// matching, so cross-platform flow into the "same" question can be tracked
// under one cluster id.
package cluster

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/whaleflow/whaleflow/internal/trade"
)

type marketKey struct {
	Platform trade.Platform
	Market   string
}

type bucket struct {
	centroid string
	markets  map[marketKey]string
}

// Registry assigns markets to clusters by token-set similarity against each
// cluster's centroid (the first text seen for that cluster). Assignments are
// sticky: once a market is placed it keeps its cluster id forever.
type Registry struct {
	threshold float64

	mu       sync.Mutex
	clusters map[string]*bucket
	index    map[marketKey]string
}

// NewRegistry builds a registry with the given match threshold (0-100).
func NewRegistry(threshold float64) *Registry {
	return &Registry{
		threshold: threshold,
		clusters:  make(map[string]*bucket),
		index:     make(map[marketKey]string),
	}
}

// ClusterFor returns the cluster id for a market, placing it on first sight:
// the best-scoring existing centroid at or above the threshold wins,
// otherwise a fresh cluster is created with this market's text as centroid.
// An empty market key yields "".
func (r *Registry) ClusterFor(platform trade.Platform, market, label, textBlob string) string {
	if market == "" {
		return ""
	}
	text := buildText(label, textBlob, market)
	key := marketKey{Platform: platform, Market: market}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.index[key]; ok {
		return id
	}
	if id := r.bestMatch(text); id != "" {
		r.clusters[id].markets[key] = text
		r.index[key] = id
		return id
	}
	id := uuid.NewString()
	r.clusters[id] = &bucket{centroid: text, markets: map[marketKey]string{key: text}}
	r.index[key] = id
	return id
}

// Len reports the number of clusters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clusters)
}

func (r *Registry) bestMatch(text string) string {
	bestID := ""
	bestScore := 0.0
	for id, b := range r.clusters {
		score := float64(fuzzy.TokenSetRatio(text, b.centroid))
		if score >= r.threshold && score > bestScore {
			bestScore = score
			bestID = id
		}
	}
	return bestID
}

// buildText composes the comparison text: label prepended to the blob when
// not already contained in it, falling back to whichever is present, then to
// the market key itself.
func buildText(label, textBlob, fallback string) string {
	label = strings.TrimSpace(label)
	blob := strings.TrimSpace(textBlob)
	switch {
	case blob != "" && label != "" && !strings.Contains(blob, label):
		return label + " " + blob
	case blob != "":
		return blob
	case label != "":
		return label
	default:
		return fallback
	}
}
