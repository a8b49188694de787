package main

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/librescoot/taptap-observer/pkg/eventbus"
	"github.com/librescoot/taptap-observer/pkg/gateway/link"
	"github.com/librescoot/taptap-observer/pkg/gateway/transport"
	"github.com/librescoot/taptap-observer/pkg/observer"
	"github.com/librescoot/taptap-observer/pkg/pv"
	"github.com/librescoot/taptap-observer/pkg/pv/application"
)

// activityLoggingSink implements both transport.Sink and application.Sink,
// logging everything except the high-volume events a human watching a
// terminal doesn't want repeated on every packet: slot counter captures,
// and packet types it already reports on via their decoded application
// event (string/power/topology responses).
type activityLoggingSink struct {
	logger       logrus.FieldLogger
	lastObserved map[link.GatewayID]pv.SlotCounter
}

func newActivityLoggingSink(logger logrus.FieldLogger) *activityLoggingSink {
	return &activityLoggingSink{
		logger:       logger,
		lastObserved: make(map[link.GatewayID]pv.SlotCounter),
	}
}

func (s *activityLoggingSink) EnumerationStarted(gw link.GatewayID) {
	s.logger.WithField("gateway", gw).Info("enumeration started")
}

func (s *activityLoggingSink) GatewayIdentityObserved(gw link.GatewayID, address pv.LongAddress) {
	s.logger.WithFields(logrus.Fields{"gateway": gw, "address": address}).Info("gateway identity observed")
}

func (s *activityLoggingSink) GatewayVersionObserved(gw link.GatewayID, version string) {
	s.logger.WithFields(logrus.Fields{"gateway": gw, "version": version}).Info("gateway version observed")
}

func (s *activityLoggingSink) EnumerationEnded(gw link.GatewayID) {
	s.logger.WithField("gateway", gw).Info("enumeration ended")
}

func (s *activityLoggingSink) GatewaySlotCounterCaptured(link.GatewayID) {}

// GatewaySlotCounterObserved only logs when the counter has crossed into a
// new epoch or a new 1000-slot bucket (100s at the 100ms slot period), to
// avoid a log line per frame.
func (s *activityLoggingSink) GatewaySlotCounterObserved(gw link.GatewayID, counter pv.SlotCounter) {
	last, ok := s.lastObserved[gw]
	changed := !ok || last.Epoch() != counter.Epoch() || last.Slot()/1000 != counter.Slot()/1000
	s.lastObserved[gw] = counter
	if changed {
		s.logger.WithFields(logrus.Fields{"gateway": gw, "slot_counter": counter}).Info("slot counter")
	}
}

func (s *activityLoggingSink) PacketReceived(gw link.GatewayID, header transport.ReceivedPacketHeader, data []byte) {
	switch header.PacketType {
	case pv.PacketTypeStringResponse, pv.PacketTypePowerReport, pv.PacketTypeTopologyReport:
		return
	}
	s.logger.WithFields(logrus.Fields{"gateway": gw, "header": header, "data": data}).Info("packet received")
}

func (s *activityLoggingSink) CommandExecuted(gw link.GatewayID, reqType pv.PacketType, reqData []byte, rspType pv.PacketType, rspData []byte) {
	switch reqType {
	case pv.PacketTypeStringRequest, pv.PacketTypeNodeTableRequest:
		return
	}
	s.logger.WithFields(logrus.Fields{
		"gateway": gw, "request_type": reqType, "request_data": reqData,
		"response_type": rspType, "response_data": rspData,
	}).Info("command executed")
}

func (s *activityLoggingSink) StringRequest(gw link.GatewayID, node pv.NodeID, request string) {
	s.logger.WithFields(logrus.Fields{"gateway": gw, "node": node, "request": request}).Info("string request")
}

func (s *activityLoggingSink) StringResponse(gw link.GatewayID, node pv.NodeID, response string) {
	s.logger.WithFields(logrus.Fields{"gateway": gw, "node": node, "response": response}).Info("string response")
}

func (s *activityLoggingSink) NodeTablePage(gw link.GatewayID, start pv.NodeAddress, nodes []application.NodeTableResponseEntry) {
	s.logger.WithFields(logrus.Fields{"gateway": gw, "start": start, "nodes": nodes}).Info("node table page")
}

func (s *activityLoggingSink) TopologyReport(gw link.GatewayID, node pv.NodeID, report *application.TopologyReport) {
	s.logger.WithFields(logrus.Fields{"gateway": gw, "node": node, "report": report}).Info("topology report")
}

func (s *activityLoggingSink) PowerReport(gw link.GatewayID, node pv.NodeID, report *application.PowerReport) {
	s.logger.WithFields(logrus.Fields{"gateway": gw, "node": node, "report": report}).Info("power report")
}

// multiSink is the observe subcommand's observer.EventSink: stdout always
// gets every event first, then (if configured) the same JSON is republished
// on the event bus. Stdout going first means a broken Redis connection
// never costs the operator the terminal output they're watching.
type multiSink struct {
	logger    logrus.FieldLogger
	publisher *eventbus.Publisher
}

func (m *multiSink) emit(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.WithError(err).Error("marshal event")
		return
	}
	fmt.Println(string(data))

	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(data); err != nil {
		m.logger.WithError(err).Warn("publish event")
	}
}

func (m *multiSink) InfrastructureReport(e observer.PersistentStateEvent) { m.emit(e) }
func (m *multiSink) PowerReportEmitted(e observer.PowerReportEvent)       { m.emit(e) }

// persistingEventSink decorates another EventSink, additionally saving the
// observer's current PersistentState to disk every time it changes. obs is
// set once the Observer it decorates has been constructed; no event can
// arrive before that.
type persistingEventSink struct {
	inner  observer.EventSink
	path   string
	logger logrus.FieldLogger
	obs    *observer.Observer
}

func (p *persistingEventSink) InfrastructureReport(e observer.PersistentStateEvent) {
	p.inner.InfrastructureReport(e)
	if err := p.obs.PersistentState().Save(p.path); err != nil {
		p.logger.WithError(err).Error("persisting state")
	}
}

func (p *persistingEventSink) PowerReportEmitted(e observer.PowerReportEvent) {
	p.inner.PowerReportEmitted(e)
}
