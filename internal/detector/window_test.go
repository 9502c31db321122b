package detector

import (
	"testing"
	"time"
)

func TestTrackRolloverResetsWindow(t *testing.T) {
	e := newTestEngine()
	prior := windowCheckpoint(3000, 3030, 2990)
	prior.WindowStartTime = testNow.Add(-15 * time.Minute)
	prior.WindowStartAmount = 5_000_000
	prior.Amount = 7_500_000

	next := e.Track(snapshot(3012, 0.4, 8_000_000), &prior, testNow)
	if next.PeriodHigh != 3012 || next.PeriodLow != 3012 || next.WindowStartPrice != 3012 {
		t.Fatalf("rollover should collapse the window to the current price: %+v", next)
	}
	if !next.WindowStartTime.Equal(testNow) {
		t.Fatalf("window start time = %s", next.WindowStartTime)
	}
	if next.WindowStartAmount != 8_000_000 {
		t.Fatalf("window start amount = %v", next.WindowStartAmount)
	}
	if next.PrevWindowVolume != 2_500_000 {
		t.Fatalf("prev window volume = %v, want 2.5e6", next.PrevWindowVolume)
	}
}

func TestTrackRolloverWithoutVolumeBaseline(t *testing.T) {
	e := newTestEngine()
	prior := windowCheckpoint(3000, 3000, 3000)
	prior.WindowStartTime = testNow.Add(-20 * time.Minute)
	prior.Amount = 7_500_000

	next := e.Track(snapshot(3000, 0, 8_000_000), &prior, testNow)
	if next.PrevWindowVolume != 0 {
		t.Fatalf("missing window start amount should give 0, got %v", next.PrevWindowVolume)
	}
}

func TestTrackContinuationNeverNarrows(t *testing.T) {
	e := newTestEngine()
	cp := e.Track(snapshot(3000, 0, 1_000), nil, testNow)
	prices := []float64{3001, 2995, 3010, 3004, 2990, 2999, 3012}

	for i, p := range prices {
		now := testNow.Add(time.Duration(i+1) * time.Minute)
		next := e.Track(snapshot(p, 0, float64(2_000+i)), &cp, now)
		if next.PeriodHigh < cp.PeriodHigh || next.PeriodLow > cp.PeriodLow {
			t.Fatalf("step %d narrowed the window: %+v -> %+v", i, cp, next)
		}
		if !(next.PeriodHigh >= next.WindowStartPrice && next.WindowStartPrice >= next.PeriodLow) {
			t.Fatalf("step %d broke high >= start >= low: %+v", i, next)
		}
		if next.WindowStartAmount != cp.WindowStartAmount || !next.WindowStartTime.Equal(cp.WindowStartTime) {
			t.Fatalf("step %d changed window start fields", i)
		}
		cp = next
	}

	if cp.PeriodHigh != 3012 || cp.PeriodLow != 2990 {
		t.Fatalf("final window = [%v, %v]", cp.PeriodLow, cp.PeriodHigh)
	}
}

func TestTrackCarriesDedupFlagWithinDay(t *testing.T) {
	e := newTestEngine()
	prior := windowCheckpoint(3000, 3000, 3000)
	prior.AlertedLargeChange = true
	prior.WindowStartTime = testNow.Add(-30 * time.Minute)

	next := e.Track(snapshot(3000, 0, 0), &prior, testNow)
	if !next.AlertedLargeChange {
		t.Fatal("rollover within the same day must keep the dedup flag")
	}

	prior.TradingDay = "2024-03-01"
	next = e.Track(snapshot(3000, 0, 0), &prior, testNow)
	if next.AlertedLargeChange {
		t.Fatal("a new trading day must clear the dedup flag")
	}
	if next.PrevWindowVolume != 0 {
		t.Fatalf("previous day volume leaked into %v", next.PrevWindowVolume)
	}
}
