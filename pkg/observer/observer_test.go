package observer

import (
	"testing"
	"time"

	"github.com/librescoot/taptap-observer/pkg/gateway/link"
	"github.com/librescoot/taptap-observer/pkg/pv"
	"github.com/librescoot/taptap-observer/pkg/pv/application"
	"github.com/sirupsen/logrus"
)

type recordingEventSink struct {
	infrastructureReports []PersistentStateEvent
	powerReports          []PowerReportEvent
}

func (s *recordingEventSink) InfrastructureReport(e PersistentStateEvent) {
	s.infrastructureReports = append(s.infrastructureReports, e)
}
func (s *recordingEventSink) PowerReportEmitted(e PowerReportEvent) {
	s.powerReports = append(s.powerReports, e)
}

func mustGW(t *testing.T, v uint16) link.GatewayID {
	t.Helper()
	id, err := link.NewGatewayID(v)
	if err != nil {
		t.Fatalf("NewGatewayID(%d): %v", v, err)
	}
	return id
}

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func addr(b byte) pv.LongAddress {
	return pv.LongAddress{b, b, b, b, b, b, b, b}
}

// TestEnumerationSwap mirrors the documented enumeration-swap scenario:
// pre-state {1: A, 2: B}; ENUM_START on a transient enumeration gateway id,
// IDENTIFY_RESPONSE(1, A'), IDENTIFY_RESPONSE(3, C), ENUM_END. Final state:
// {1: A', 3: C}, entry for 2 dropped; an identity reported under the
// enumeration id itself is discarded.
func TestEnumerationSwap(t *testing.T) {
	gw1, gw2, gw3 := mustGW(t, 1), mustGW(t, 2), mustGW(t, 3)
	gwEnum := mustGW(t, 0x3FFE)
	pre := NewPersistentState()
	pre.GatewayIdentities[gw1] = addr(0xAA)
	pre.GatewayIdentities[gw2] = addr(0xBB)

	sink := &recordingEventSink{}
	o := NewObserver(pre, sink, testLogger())

	o.EnumerationStarted(gwEnum)
	o.GatewayIdentityObserved(gwEnum, addr(0xEE)) // the enumeration address itself: discarded
	o.GatewayIdentityObserved(gw1, addr(0xA1))
	o.GatewayIdentityObserved(gw3, addr(0xCC))
	o.EnumerationEnded(gwEnum)

	final := o.PersistentState()
	if len(final.GatewayIdentities) != 2 {
		t.Fatalf("final identities = %+v, want exactly 2 entries", final.GatewayIdentities)
	}
	if final.GatewayIdentities[gw1] != addr(0xA1) {
		t.Fatalf("gw1 identity = %v, want %v", final.GatewayIdentities[gw1], addr(0xA1))
	}
	if final.GatewayIdentities[gw3] != addr(0xCC) {
		t.Fatalf("gw3 identity = %v, want %v", final.GatewayIdentities[gw3], addr(0xCC))
	}
	if _, ok := final.GatewayIdentities[gw2]; ok {
		t.Fatalf("gw2 identity should have been dropped by the enumeration swap")
	}
}

func TestEnumerationNeverMixesPartialState(t *testing.T) {
	gw1 := mustGW(t, 1)
	pre := NewPersistentState()
	pre.GatewayIdentities[gw1] = addr(0xAA)

	sink := &recordingEventSink{}
	o := NewObserver(pre, sink, testLogger())

	o.EnumerationStarted(gw1)
	o.GatewayIdentityObserved(mustGW(t, 2), addr(0xBB))
	// Enumeration never ends: persistent state must remain exactly the
	// pre-enumeration snapshot, not a mix.
	final := o.PersistentState()
	if len(final.GatewayIdentities) != 1 || final.GatewayIdentities[gw1] != addr(0xAA) {
		t.Fatalf("persistent state mutated before enumeration ended: %+v", final.GatewayIdentities)
	}
}

func TestPowerReportWithoutClockIsDropped(t *testing.T) {
	gw := mustGW(t, 4)
	sink := &recordingEventSink{}
	o := NewObserver(NewPersistentState(), sink, testLogger())

	o.PowerReport(gw, 1, &application.PowerReport{SlotCounterSample: 5})

	if len(sink.powerReports) != 0 {
		t.Fatalf("powerReports = %d, want 0 without a slot clock", len(sink.powerReports))
	}
}

func TestSlotClockDisciplineAndPowerReport(t *testing.T) {
	gw := mustGW(t, 5)
	sink := &recordingEventSink{}
	o := NewObserver(NewPersistentState(), sink, testLogger())

	captureTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return captureTime }

	o.GatewaySlotCounterCaptured(gw)
	o.GatewaySlotCounterObserved(gw, pv.NewSlotCounter(0, 100))

	report := &application.PowerReport{SlotCounterSample: pv.NewSlotCounter(0, 105), InstantaneousPower: 42}
	o.PowerReport(gw, 9, report)

	if len(sink.powerReports) != 1 {
		t.Fatalf("powerReports = %d, want 1", len(sink.powerReports))
	}
	want := captureTime.Add(5 * SlotPeriod)
	if !sink.powerReports[0].Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", sink.powerReports[0].Timestamp, want)
	}
}

func TestSlotCounterObservedWithoutCaptureIsDropped(t *testing.T) {
	gw := mustGW(t, 6)
	sink := &recordingEventSink{}
	o := NewObserver(NewPersistentState(), sink, testLogger())

	// No GatewaySlotCounterCaptured call preceded this.
	o.GatewaySlotCounterObserved(gw, pv.NewSlotCounter(0, 1))

	if _, ok := o.slotClocks[gw]; ok {
		t.Fatalf("an unpaired slot counter observation must not create a clock")
	}
}

// TestNodeTableAssembly mirrors the documented node-table scenario: a
// full-size page at 0, then a short terminal page, yielding exactly one
// infrastructure_report whose nodes union both pages.
func TestNodeTableAssembly(t *testing.T) {
	gw := mustGW(t, 7)
	sink := &recordingEventSink{}
	o := NewObserver(NewPersistentState(), sink, testLogger())

	full := make([]application.NodeTableResponseEntry, NodeTablePageSize)
	for i := range full {
		full[i] = application.NodeTableResponseEntry{NodeID: pv.NodeID(i), LongAddress: addr(byte(i))}
	}
	o.NodeTablePage(gw, 0, full)
	if len(sink.infrastructureReports) != 0 {
		t.Fatalf("a non-terminal page must not emit a report, got %d", len(sink.infrastructureReports))
	}

	short := []application.NodeTableResponseEntry{
		{NodeID: pv.NodeID(NodeTablePageSize), LongAddress: addr(0xEE)},
	}
	o.NodeTablePage(gw, pv.NodeAddress(NodeTablePageSize), short)

	if len(sink.infrastructureReports) != 1 {
		t.Fatalf("infrastructureReports = %d, want exactly 1", len(sink.infrastructureReports))
	}
	table := o.PersistentState().GatewayNodeTables[gw]
	if len(table) != NodeTablePageSize+1 {
		t.Fatalf("assembled table has %d entries, want %d", len(table), NodeTablePageSize+1)
	}
}

func TestNodeTableOutOfOrderPageRestartsAssembly(t *testing.T) {
	gw := mustGW(t, 8)
	sink := &recordingEventSink{}
	o := NewObserver(NewPersistentState(), sink, testLogger())

	full := make([]application.NodeTableResponseEntry, NodeTablePageSize)
	for i := range full {
		full[i] = application.NodeTableResponseEntry{NodeID: pv.NodeID(i), LongAddress: addr(byte(i))}
	}
	o.NodeTablePage(gw, 0, full)

	// An overlapping/out-of-order page: not the expected start address.
	// The prior accumulation must be discarded, not merged.
	short := []application.NodeTableResponseEntry{
		{NodeID: pv.NodeID(0), LongAddress: addr(0xFF)},
	}
	o.NodeTablePage(gw, 0, short)

	if len(sink.infrastructureReports) != 1 {
		t.Fatalf("infrastructureReports = %d, want exactly 1", len(sink.infrastructureReports))
	}
	table := o.PersistentState().GatewayNodeTables[gw]
	if len(table) != 1 {
		t.Fatalf("assembled table has %d entries, want 1 (restarted accumulation)", len(table))
	}
}

// TestNodeTableMidDumpStartNeverCompletes covers an observer that begins
// watching partway through a gateway's node-table dump: the first page it
// ever sees is short and does not start at address 0, so it must not be
// mistaken for a complete table.
func TestNodeTableMidDumpStartNeverCompletes(t *testing.T) {
	gw := mustGW(t, 9)
	sink := &recordingEventSink{}
	o := NewObserver(NewPersistentState(), sink, testLogger())

	short := []application.NodeTableResponseEntry{
		{NodeID: pv.NodeID(NodeTablePageSize * 2), LongAddress: addr(0xAA)},
	}
	o.NodeTablePage(gw, pv.NodeAddress(NodeTablePageSize*2), short)

	if len(sink.infrastructureReports) != 0 {
		t.Fatalf("a short page not starting at address 0 must not emit a report, got %d", len(sink.infrastructureReports))
	}
	if _, ok := o.PersistentState().GatewayNodeTables[gw]; ok {
		t.Fatalf("no node table should be recorded until a dump starting at 0 completes")
	}

	full := make([]application.NodeTableResponseEntry, NodeTablePageSize)
	for i := range full {
		full[i] = application.NodeTableResponseEntry{NodeID: pv.NodeID(i), LongAddress: addr(byte(i))}
	}
	o.NodeTablePage(gw, 0, full)
	shortTail := []application.NodeTableResponseEntry{
		{NodeID: pv.NodeID(NodeTablePageSize), LongAddress: addr(0xBB)},
	}
	o.NodeTablePage(gw, pv.NodeAddress(NodeTablePageSize), shortTail)

	if len(sink.infrastructureReports) != 1 {
		t.Fatalf("infrastructureReports = %d, want exactly 1 once a dump starting at 0 completes", len(sink.infrastructureReports))
	}
	table := o.PersistentState().GatewayNodeTables[gw]
	if len(table) != NodeTablePageSize+1 {
		t.Fatalf("assembled table has %d entries, want %d", len(table), NodeTablePageSize+1)
	}
}

// TestEmitCurrentStateReportsRestoredState covers startup: a caller that
// restores a non-empty PersistentState and calls EmitCurrentState before
// any new event arrives must see that restored state reported once.
func TestEmitCurrentStateReportsRestoredState(t *testing.T) {
	gw := mustGW(t, 10)
	state := NewPersistentState()
	state.GatewayIdentities[gw] = addr(0x01)
	state.GatewayVersions[gw] = "1.0.0"

	sink := &recordingEventSink{}
	o := NewObserver(state, sink, testLogger())

	if len(sink.infrastructureReports) != 0 {
		t.Fatalf("NewObserver must not emit before EmitCurrentState is called, got %d", len(sink.infrastructureReports))
	}

	o.EmitCurrentState()

	if len(sink.infrastructureReports) != 1 {
		t.Fatalf("infrastructureReports = %d, want exactly 1", len(sink.infrastructureReports))
	}
	report := sink.infrastructureReports[0]
	if _, ok := report.Gateways[gw]; !ok {
		t.Fatalf("report does not include restored gateway %v", gw)
	}
}
