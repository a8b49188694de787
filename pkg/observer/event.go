package observer

import (
	"fmt"
	"time"

	"github.com/librescoot/taptap-observer/pkg/gateway/link"
	"github.com/librescoot/taptap-observer/pkg/pv"
	"github.com/librescoot/taptap-observer/pkg/pv/application"
)

// PowerReportEvent is the stdout event emitted for a PowerReport whose
// gateway has a valid SlotClock.
type PowerReportEvent struct {
	EventType string      `json:"event_type"`
	Gateway   link.GatewayID `json:"gateway"`
	Node      pv.NodeID   `json:"node"`
	Timestamp time.Time   `json:"timestamp"`
	Power     uint16      `json:"power"`
	Energy    uint32      `json:"energy"`
	Voltage   uint16      `json:"voltage"`
	Current   uint16      `json:"current"`
	Flags     uint16      `json:"flags"`
}

// NewPowerReportEvent converts a decoded PowerReport into its wire event
// shape, resolving the report's slot sample to a wall-clock timestamp via
// clock. It fails if the sample cannot be related to the clock's anchor
// (see SlotClock.ToWallTime).
func NewPowerReportEvent(gw link.GatewayID, node pv.NodeID, clock SlotClock, report *application.PowerReport) (PowerReportEvent, error) {
	ts, err := clock.ToWallTime(report.SlotCounterSample)
	if err != nil {
		return PowerReportEvent{}, fmt.Errorf("observer: power report event: %w", err)
	}
	return PowerReportEvent{
		EventType: "power_report",
		Gateway:   gw,
		Node:      node,
		Timestamp: ts,
		Power:     report.InstantaneousPower,
		Energy:    report.CumulativeEnergy,
		Voltage:   report.Voltage,
		Current:   report.Current,
		Flags:     report.StatusFlags,
	}, nil
}
