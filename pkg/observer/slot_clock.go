package observer

import (
	"errors"
	"fmt"
	"time"

	"github.com/librescoot/taptap-observer/pkg/pv"
)

// SlotPeriod is the fixed protocol time base: the wall-clock duration of a
// single slot tick.
const SlotPeriod = 100 * time.Millisecond

// ErrInvalidSlotCounter is returned when a SlotCounter cannot be related to
// a SlotClock's current anchor: it is more than one epoch ahead (ToWallTime)
// or represents an implausible backward jump (Set).
var ErrInvalidSlotCounter = errors.New("observer: slot counter invalid for this clock")

// SlotClock is an immutable value: Set and ToWallTime return a new clock or
// an error, never mutating the receiver. Anchoring it in a gateway's map is
// the caller's responsibility (see Observer).
type SlotClock struct {
	anchorCounter pv.SlotCounter
	anchorTime    time.Time
}

// NewSlotClock anchors a fresh clock at counter sampled at wall time t.
func NewSlotClock(counter pv.SlotCounter, t time.Time) (SlotClock, error) {
	return SlotClock{anchorCounter: counter, anchorTime: t}, nil
}

// Set re-anchors the clock at a newly observed sample. It tolerates epoch
// rollovers and jitter in the anchor; it only rejects a new sample whose
// wall time regresses by more than one epoch's worth of slot period, which
// cannot happen under correct operation and indicates a corrupted capture.
func (c SlotClock) Set(counter pv.SlotCounter, t time.Time) (SlotClock, error) {
	if t.Before(c.anchorTime) {
		skew := c.anchorTime.Sub(t)
		if bound := SlotPeriod * time.Duration(pv.SlotsPerEpoch); skew > bound {
			return c, fmt.Errorf("observer: anchor regressed by %s (bound %s): %w", skew, bound, ErrInvalidSlotCounter)
		}
	}
	return SlotClock{anchorCounter: counter, anchorTime: t}, nil
}

// ToWallTime converts counter, sampled some time after the clock's anchor,
// to a wall-clock instant. A counter more than one epoch ahead of the
// anchor is rejected: without a second sample there is no way to tell a
// valid long gap from line noise this far out.
func (c SlotClock) ToWallTime(counter pv.SlotCounter) (time.Time, error) {
	delta := uint32(counter) - uint32(c.anchorCounter)
	if delta > pv.SlotsPerEpoch {
		return time.Time{}, fmt.Errorf("observer: counter %s is %d slots ahead of anchor: %w", counter, delta, ErrInvalidSlotCounter)
	}
	return c.anchorTime.Add(time.Duration(delta) * SlotPeriod), nil
}
