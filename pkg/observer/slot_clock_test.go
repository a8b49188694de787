package observer

import (
	"testing"
	"time"

	"github.com/librescoot/taptap-observer/pkg/pv"
)

func TestSlotClockToWallTimeAdvances(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock, err := NewSlotClock(pv.NewSlotCounter(0, 10), anchor)
	if err != nil {
		t.Fatalf("NewSlotClock: %v", err)
	}

	got, err := clock.ToWallTime(pv.NewSlotCounter(0, 13))
	if err != nil {
		t.Fatalf("ToWallTime: %v", err)
	}
	want := anchor.Add(3 * SlotPeriod)
	if !got.Equal(want) {
		t.Fatalf("ToWallTime = %v, want %v", got, want)
	}
}

func TestSlotClockToleratesEpochRollover(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock, err := NewSlotClock(pv.NewSlotCounter(0, pv.SlotsPerEpoch-2), anchor)
	if err != nil {
		t.Fatalf("NewSlotClock: %v", err)
	}

	later := pv.NewSlotCounter(1, 2) // wrapped into the next epoch, 4 slots later
	got, err := clock.ToWallTime(later)
	if err != nil {
		t.Fatalf("ToWallTime across rollover: %v", err)
	}
	want := anchor.Add(4 * SlotPeriod)
	if !got.Equal(want) {
		t.Fatalf("ToWallTime = %v, want %v", got, want)
	}
}

func TestSlotClockRejectsMoreThanOneEpochAhead(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock, err := NewSlotClock(pv.NewSlotCounter(0, 0), anchor)
	if err != nil {
		t.Fatalf("NewSlotClock: %v", err)
	}

	tooFar := pv.NewSlotCounter(2, 1) // more than one full epoch ahead
	if _, err := clock.ToWallTime(tooFar); err == nil {
		t.Fatal("ToWallTime(tooFar): want error, got nil")
	}
}

func TestSlotClockSetReanchors(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock, err := NewSlotClock(pv.NewSlotCounter(0, 0), t0)
	if err != nil {
		t.Fatalf("NewSlotClock: %v", err)
	}

	t1 := t0.Add(time.Second)
	clock, err = clock.Set(pv.NewSlotCounter(0, 10), t1)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := clock.ToWallTime(pv.NewSlotCounter(0, 11))
	if err != nil {
		t.Fatalf("ToWallTime after Set: %v", err)
	}
	if want := t1.Add(SlotPeriod); !got.Equal(want) {
		t.Fatalf("ToWallTime = %v, want %v", got, want)
	}
}

func TestSlotClockSetRejectsLargeBackwardJump(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock, err := NewSlotClock(pv.NewSlotCounter(0, 0), t0)
	if err != nil {
		t.Fatalf("NewSlotClock: %v", err)
	}

	farInThePast := t0.Add(-SlotPeriod * time.Duration(pv.SlotsPerEpoch) * 2)
	if _, err := clock.Set(pv.NewSlotCounter(0, 1), farInThePast); err == nil {
		t.Fatal("Set(far-in-the-past): want error, got nil")
	}
}
