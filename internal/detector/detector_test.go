package detector

import (
	"math"
	"testing"

	"github.com/whaleflow/whaleflow/internal/trade"
)

func TestSlidingSum_PrunesByNewestTimestamp(t *testing.T) {
	s := NewSlidingSum(60)
	if total := s.Add(1000, 100); total != 100 {
		t.Fatalf("total = %v", total)
	}
	if total := s.Add(1030, 50); total != 150 {
		t.Fatalf("total = %v", total)
	}
	// 1000 is now older than 1070-60.
	if total := s.Add(1070, 25); total != 75 {
		t.Fatalf("total after prune = %v, want 75", total)
	}
}

func TestRollingStats_MinSamplesAndVariance(t *testing.T) {
	r := NewRollingStats(3600, 3)
	if _, ok := r.Add(1, 100); ok {
		t.Fatal("below min samples must not score")
	}
	if _, ok := r.Add(2, 100); ok {
		t.Fatal("below min samples must not score")
	}
	if _, ok := r.Add(3, 100); ok {
		t.Fatal("zero variance must not score")
	}
	z, ok := r.Add(4, 200)
	if !ok {
		t.Fatal("varied population should score")
	}
	if z <= 0 {
		t.Fatalf("outlier above mean must have positive z, got %v", z)
	}
}

func TestZScore_AlertAndCooldown(t *testing.T) {
	d := NewZScore(3600, 3.0, 5, 30)
	ts := 1000.0
	for i := 0; i < 15; i++ {
		size := 90.0
		if i%2 == 1 {
			size = 110.0
		}
		if alert := d.Add(trade.PlatformPolymarket, "m", ts, size); alert != nil {
			t.Fatalf("baseline trade alerted: %+v", alert)
		}
		ts++
	}
	alert := d.Add(trade.PlatformPolymarket, "m", ts, 10000)
	if alert == nil {
		t.Fatal("100x spike should alert")
	}
	if alert.Z < 3.0 || alert.SizeUSD != 10000 {
		t.Fatalf("alert = %+v", alert)
	}

	// Within cooldown: silent even for another spike.
	if again := d.Add(trade.PlatformPolymarket, "m", ts+1, 12000); again != nil {
		t.Fatalf("cooldown violated: %+v", again)
	}

	// Separate market has its own window.
	if other := d.Add(trade.PlatformKalshi, "other", ts, 10000); other != nil {
		t.Fatalf("fresh market must warm up first: %+v", other)
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestSweep_RequiresDistinctPrices(t *testing.T) {
	d := NewSweep(50, 3, 1.0)
	ts := 2000.0

	// Three rapid trades at one price level: not a sweep.
	d.Add(trade.PlatformPolymarket, "m", "yes", ts, floatPtr(0.50), 100)
	d.Add(trade.PlatformPolymarket, "m", "yes", ts+0.01, floatPtr(0.50), 100)
	if alert := d.Add(trade.PlatformPolymarket, "m", "yes", ts+0.02, floatPtr(0.50), 100); alert != nil {
		t.Fatalf("single price level alerted: %+v", alert)
	}

	// Crossing levels inside the window: sweep.
	alert := d.Add(trade.PlatformPolymarket, "m", "yes", ts+0.03, floatPtr(0.52), 100)
	if alert == nil {
		t.Fatal("multi-level burst should alert")
	}
	if alert.Trades < 3 || alert.TotalUSD != 400 {
		t.Fatalf("alert = %+v", alert)
	}

	// Cooldown suppresses the immediate follow-up.
	if again := d.Add(trade.PlatformPolymarket, "m", "yes", ts+0.04, floatPtr(0.55), 100); again != nil {
		t.Fatalf("cooldown violated: %+v", again)
	}
}

func TestSweep_NilPricesNeverAlert(t *testing.T) {
	d := NewSweep(50, 2, 1.0)
	ts := 3000.0
	d.Add(trade.PlatformKalshi, "m", "no", ts, nil, 100)
	if alert := d.Add(trade.PlatformKalshi, "m", "no", ts+0.01, nil, 100); alert != nil {
		t.Fatalf("price-less trades alerted: %+v", alert)
	}
}

func TestWalletTracker_LatchAndRelease(t *testing.T) {
	w := NewWalletTracker(3600, 1000)

	flagged, total := w.Add("0xwhale", 1000, 600)
	if flagged || total != 600 {
		t.Fatalf("below threshold: flagged=%v total=%v", flagged, total)
	}
	flagged, total = w.Add("0xwhale", 1010, 500)
	if !flagged || total != 1100 {
		t.Fatalf("crossing threshold: flagged=%v total=%v", flagged, total)
	}
	// Latched: still above threshold but no second alert.
	if flagged, _ = w.Add("0xwhale", 1020, 100); flagged {
		t.Fatal("latch must suppress repeat alerts")
	}
	if !w.Flagged("0xwhale") {
		t.Fatal("wallet should be flagged")
	}

	// Window rolls off, total drops below threshold: unlatch, then re-alert.
	if flagged, _ = w.Add("0xwhale", 1000+3700, 50); flagged {
		t.Fatal("dust trade after roll-off must not alert")
	}
	if w.Flagged("0xwhale") {
		t.Fatal("wallet should unlatch once total drops below threshold")
	}
	if flagged, _ = w.Add("0xwhale", 1000+3710, 2000); !flagged {
		t.Fatal("re-crossing after unlatch should alert again")
	}
}

func TestVenueAccumulator_GlobalLatch(t *testing.T) {
	a := NewVenueAccumulator(3600, 1000)
	if crossed, _ := a.Add(100, 500); crossed {
		t.Fatal("below threshold")
	}
	crossed, total := a.Add(110, 600)
	if !crossed || total != 1100 {
		t.Fatalf("crossing: crossed=%v total=%v", crossed, total)
	}
	if !a.Active() {
		t.Fatal("latch should be active")
	}
	if crossed, _ := a.Add(120, 100); crossed {
		t.Fatal("latched accumulator must stay silent")
	}
	// Roll off and re-cross.
	if crossed, _ := a.Add(100+3700, 10); crossed {
		t.Fatal("roll-off trade must not alert")
	}
	if a.Active() {
		t.Fatal("latch should release below threshold")
	}
	if crossed, _ := a.Add(100+3710, 5000); !crossed {
		t.Fatal("re-crossing should alert")
	}
}

func TestTradeWindow(t *testing.T) {
	w := NewTradeWindow(100)
	w.Add(Record{Timestamp: 1000, Market: "a", SizeUSD: 10})
	w.Add(Record{Timestamp: 1050, Market: "b", SizeUSD: 20})
	w.Add(Record{Timestamp: 1200, Market: "c", SizeUSD: 30})
	if w.Len() != 2 {
		t.Fatalf("Len = %d, want 2 after pruning", w.Len())
	}
	snap := w.Snapshot()
	if len(snap) != 2 || snap[0].Market != "b" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if math.Abs(snap[1].SizeUSD-30) > 1e-9 {
		t.Fatalf("snapshot order wrong: %+v", snap)
	}
}
