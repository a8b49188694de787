// Package observer holds the top-level state of an observed gateway
// network: discovered gateway identities and versions, per-gateway node
// tables, and per-gateway slot clocks, refined as transport and
// application events arrive.
package observer

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/librescoot/taptap-observer/pkg/gateway/link"
	"github.com/librescoot/taptap-observer/pkg/gateway/transport"
	"github.com/librescoot/taptap-observer/pkg/pv"
	"github.com/librescoot/taptap-observer/pkg/pv/application"
)

// EventSink receives every event the Observer decides to emit.
// cmd/taptap-observe implements it with a sink writing to stdout and (if
// configured) fanning out to pkg/eventbus, wrapped by one that also saves
// the state to disk.
type EventSink interface {
	InfrastructureReport(PersistentStateEvent)
	PowerReportEmitted(PowerReportEvent)
}

// EnumerationState shadows PersistentState's gateway identity/version
// fields during an enumeration cycle. On a successful enumeration_ended it
// replaces the corresponding persistent fields wholesale; it is never
// merged into them.
type EnumerationState struct {
	enumerationGatewayID link.GatewayID
	gatewayIdentities     map[link.GatewayID]pv.LongAddress
	gatewayVersions       map[link.GatewayID]string
}

func newEnumerationState(gw link.GatewayID) *EnumerationState {
	return &EnumerationState{
		enumerationGatewayID: gw,
		gatewayIdentities:    make(map[link.GatewayID]pv.LongAddress),
		gatewayVersions:      make(map[link.GatewayID]string),
	}
}

// gatewayIdentityObserved records an identity seen mid-enumeration. A
// response addressed to the enumeration gateway itself is the transient
// broadcast address, not a persistent identity, and is discarded.
func (e *EnumerationState) gatewayIdentityObserved(gw link.GatewayID, address pv.LongAddress) {
	if gw == e.enumerationGatewayID {
		return
	}
	e.gatewayIdentities[gw] = address
}

// Observer is the network's top-level state machine. It implements both
// gateway/transport.Sink and pv/application.Sink, so it can sit at the end
// of the full decode pipeline and see every layer's events.
type Observer struct {
	persistentState PersistentState

	enumerationState     *EnumerationState
	capturedSlotCounters map[link.GatewayID]time.Time
	slotClocks           map[link.GatewayID]SlotClock
	nodeTableBuilders    map[link.GatewayID]*NodeTableBuilder

	events EventSink
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewObserver constructs an Observer seeded from a restored (or fresh)
// PersistentState.
func NewObserver(state PersistentState, events EventSink, logger logrus.FieldLogger) *Observer {
	return &Observer{
		persistentState:      state,
		capturedSlotCounters: make(map[link.GatewayID]time.Time),
		slotClocks:           make(map[link.GatewayID]SlotClock),
		nodeTableBuilders:    make(map[link.GatewayID]*NodeTableBuilder),
		events:               events,
		logger:               logger,
		now:                  time.Now,
	}
}

// PersistentState returns the observer's current durable state, suitable
// for Save.
func (o *Observer) PersistentState() PersistentState {
	return o.persistentState
}

func (o *Observer) emitInfrastructureReport() {
	o.events.InfrastructureReport(NewPersistentStateEvent(o.persistentState))
}

// EmitCurrentState emits an infrastructure_report for whatever state the
// Observer was constructed with. Callers invoke this once at startup, right
// after NewObserver, so a restored non-empty PersistentState is reported
// immediately rather than waiting for the next mutation.
func (o *Observer) EmitCurrentState() {
	o.emitInfrastructureReport()
}

// --- gateway/transport.Sink ---

func (o *Observer) EnumerationStarted(gw link.GatewayID) {
	o.enumerationState = newEnumerationState(gw)
}

func (o *Observer) GatewayIdentityObserved(gw link.GatewayID, address pv.LongAddress) {
	if o.enumerationState != nil {
		o.enumerationState.gatewayIdentityObserved(gw, address)
		return
	}
	o.persistentState.GatewayIdentities[gw] = address
	o.emitInfrastructureReport()
}

func (o *Observer) GatewayVersionObserved(gw link.GatewayID, version string) {
	if o.enumerationState != nil {
		o.enumerationState.gatewayVersions[gw] = version
		return
	}
	o.persistentState.GatewayVersions[gw] = version
	o.emitInfrastructureReport()
}

func (o *Observer) EnumerationEnded(gw link.GatewayID) {
	state := o.enumerationState
	if state == nil {
		return
	}
	o.enumerationState = nil
	o.persistentState.GatewayIdentities = state.gatewayIdentities
	o.persistentState.GatewayVersions = state.gatewayVersions
	o.emitInfrastructureReport()
}

func (o *Observer) GatewaySlotCounterCaptured(gw link.GatewayID) {
	o.capturedSlotCounters[gw] = o.now()
}

func (o *Observer) GatewaySlotCounterObserved(gw link.GatewayID, counter pv.SlotCounter) {
	capturedAt, ok := o.capturedSlotCounters[gw]
	if !ok {
		return
	}
	delete(o.capturedSlotCounters, gw)

	existing, hasClock := o.slotClocks[gw]
	var (
		clock SlotClock
		err   error
	)
	if hasClock {
		clock, err = existing.Set(counter, capturedAt)
	} else {
		clock, err = NewSlotClock(counter, capturedAt)
	}
	if err != nil {
		o.logger.WithError(err).WithField("gateway", gw).Warn("discarding slot counter observation")
		return
	}
	o.slotClocks[gw] = clock
}

func (o *Observer) PacketReceived(link.GatewayID, transport.ReceivedPacketHeader, []byte) {}

func (o *Observer) CommandExecuted(link.GatewayID, pv.PacketType, []byte, pv.PacketType, []byte) {}

// --- pv/application.Sink ---

func (o *Observer) StringRequest(link.GatewayID, pv.NodeID, string)  {}
func (o *Observer) StringResponse(link.GatewayID, pv.NodeID, string) {}

func (o *Observer) NodeTablePage(gw link.GatewayID, start pv.NodeAddress, nodes []application.NodeTableResponseEntry) {
	builder, ok := o.nodeTableBuilders[gw]
	if !ok {
		builder = &NodeTableBuilder{}
		o.nodeTableBuilders[gw] = builder
	}

	table, complete := builder.Push(start, nodes)
	if !complete {
		return
	}
	o.persistentState.GatewayNodeTables[gw] = table
	o.emitInfrastructureReport()
}

func (o *Observer) TopologyReport(link.GatewayID, pv.NodeID, *application.TopologyReport) {}

func (o *Observer) PowerReport(gw link.GatewayID, node pv.NodeID, report *application.PowerReport) {
	clock, ok := o.slotClocks[gw]
	if !ok {
		o.logger.WithFields(logrus.Fields{"gateway": gw, "node": node}).Warn("discarding power report: no slot clock")
		return
	}

	event, err := NewPowerReportEvent(gw, node, clock, report)
	if err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{"gateway": gw, "node": node}).Warn("discarding power report: invalid slot counter")
		return
	}
	o.events.PowerReportEmitted(event)
}
