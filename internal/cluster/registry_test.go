package cluster

import (
	"testing"

	"github.com/whaleflow/whaleflow/internal/trade"
)

func TestClusterFor_SameMarketIsSticky(t *testing.T) {
	r := NewRegistry(87)
	first := r.ClusterFor(trade.PlatformPolymarket, "0xabc", "Fed cuts rates in March", "")
	second := r.ClusterFor(trade.PlatformPolymarket, "0xabc", "Fed cuts rates in March", "")
	if first == "" {
		t.Fatal("cluster id must not be empty")
	}
	if first != second {
		t.Fatalf("same market must keep its cluster: %q vs %q", first, second)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestClusterFor_CrossVenueMatch(t *testing.T) {
	r := NewRegistry(80)
	poly := r.ClusterFor(trade.PlatformPolymarket, "0xabc", "Will the Fed cut rates in March?", "")
	kalshi := r.ClusterFor(trade.PlatformKalshi, "FED-MAR", "Fed cut rates March", "")
	if poly != kalshi {
		t.Fatalf("near-identical labels should share a cluster: %q vs %q", poly, kalshi)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestClusterFor_DistinctLabelsSplit(t *testing.T) {
	r := NewRegistry(87)
	a := r.ClusterFor(trade.PlatformPolymarket, "m1", "Will the Fed cut rates in March?", "")
	b := r.ClusterFor(trade.PlatformKalshi, "m2", "Super Bowl halftime show performer", "")
	if a == b {
		t.Fatal("unrelated markets must not share a cluster")
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
}

func TestClusterFor_FallsBackToMarketID(t *testing.T) {
	r := NewRegistry(87)
	id := r.ClusterFor(trade.PlatformKalshi, "TICKER-X", "", "")
	if id == "" {
		t.Fatal("label-less market still gets a cluster")
	}
	if again := r.ClusterFor(trade.PlatformKalshi, "TICKER-X", "", ""); again != id {
		t.Fatal("fallback text must stay sticky")
	}
}
