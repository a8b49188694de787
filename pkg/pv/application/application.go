// Package application decodes PV-layer packets carried inside gateway
// transport events (RECEIVE_RESPONSE payloads and COMMAND request/response
// pairs) into typed reports: string exchanges, node table pages, topology
// reports, and power reports.
package application

import (
	"encoding/binary"

	"github.com/librescoot/taptap-observer/pkg/gateway/link"
	"github.com/librescoot/taptap-observer/pkg/gateway/transport"
	"github.com/librescoot/taptap-observer/pkg/pv"
)

// NodeTableResponseEntry is one entry of a NODE_TABLE_RESPONSE page.
type NodeTableResponseEntry struct {
	NodeID      pv.NodeID
	LongAddress pv.LongAddress
}

// NeighborEntry is one entry of a TopologyReport.
type NeighborEntry struct {
	NodeID pv.NodeID
	RSSI   int8
}

// TopologyReport lists the neighbors a PV node currently observes.
type TopologyReport struct {
	Neighbors []NeighborEntry
}

// PowerReport is a single node's power sample.
type PowerReport struct {
	SlotCounterSample  pv.SlotCounter
	InstantaneousPower uint16 // deciwatts
	CumulativeEnergy   uint32 // watt-hours
	Voltage            uint16 // centivolts
	Current            uint16 // milliamps
	StatusFlags        uint16
}

// Sink receives decoded PV application events.
type Sink interface {
	StringRequest(gw link.GatewayID, node pv.NodeID, request string)
	StringResponse(gw link.GatewayID, node pv.NodeID, response string)
	NodeTablePage(gw link.GatewayID, startAddress pv.NodeAddress, nodes []NodeTableResponseEntry)
	TopologyReport(gw link.GatewayID, node pv.NodeID, report *TopologyReport)
	PowerReport(gw link.GatewayID, node pv.NodeID, report *PowerReport)
}

// Receiver sits downstream of a transport.Receiver. It implements
// transport.Sink itself: events unrelated to PV packet content pass
// straight through to next, while packet_received and command_executed are
// decoded and re-emitted to sink.
type Receiver struct {
	next transport.Sink
	sink Sink
}

// NewReceiver constructs a Receiver. next receives every transport event
// unmodified; sink receives the PV events decoded from packet payloads. A
// caller that wants a single object to observe everything (as Observer
// does) passes the same value for both.
func NewReceiver(next transport.Sink, sink Sink) *Receiver {
	return &Receiver{next: next, sink: sink}
}

func (r *Receiver) EnumerationStarted(gw link.GatewayID) { r.next.EnumerationStarted(gw) }

func (r *Receiver) GatewayIdentityObserved(gw link.GatewayID, address pv.LongAddress) {
	r.next.GatewayIdentityObserved(gw, address)
}

func (r *Receiver) GatewayVersionObserved(gw link.GatewayID, version string) {
	r.next.GatewayVersionObserved(gw, version)
}

func (r *Receiver) EnumerationEnded(gw link.GatewayID) { r.next.EnumerationEnded(gw) }

func (r *Receiver) GatewaySlotCounterCaptured(gw link.GatewayID) {
	r.next.GatewaySlotCounterCaptured(gw)
}

func (r *Receiver) GatewaySlotCounterObserved(gw link.GatewayID, counter pv.SlotCounter) {
	r.next.GatewaySlotCounterObserved(gw, counter)
}

func (r *Receiver) PacketReceived(gw link.GatewayID, header transport.ReceivedPacketHeader, data []byte) {
	r.next.PacketReceived(gw, header, data)
	r.decode(gw, header.NodeID, header.PacketType, data)
}

func (r *Receiver) CommandExecuted(gw link.GatewayID, reqType pv.PacketType, reqData []byte, rspType pv.PacketType, rspData []byte) {
	r.next.CommandExecuted(gw, reqType, reqData, rspType, rspData)
	// Command pairs carry no per-node header; node id is unknown at this layer.
	r.decode(gw, 0, reqType, reqData)
	r.decode(gw, 0, rspType, rspData)
}

func (r *Receiver) decode(gw link.GatewayID, node pv.NodeID, packetType pv.PacketType, data []byte) {
	switch packetType {
	case pv.PacketTypeStringRequest:
		r.sink.StringRequest(gw, node, string(data))
	case pv.PacketTypeStringResponse:
		r.sink.StringResponse(gw, node, string(data))
	case pv.PacketTypeNodeTableResponse:
		if startAddress, entries, ok := decodeNodeTablePage(data); ok {
			r.sink.NodeTablePage(gw, startAddress, entries)
		}
	case pv.PacketTypeTopologyReport:
		if report, ok := decodeTopologyReport(data); ok {
			r.sink.TopologyReport(gw, node, report)
		}
	case pv.PacketTypePowerReport:
		if report, ok := decodePowerReport(data); ok {
			r.sink.PowerReport(gw, node, report)
		}
	default:
		// NODE_TABLE requests and other unparsed types pass through
		// without a decoded event.
	}
}

const nodeTableEntryLength = 2 + 8 // node id + long address

func decodeNodeTablePage(data []byte) (pv.NodeAddress, []NodeTableResponseEntry, bool) {
	if len(data) < 2 {
		return 0, nil, false
	}
	startAddress := pv.NodeAddress(binary.BigEndian.Uint16(data[0:2]))
	rest := data[2:]
	if len(rest)%nodeTableEntryLength != 0 {
		return 0, nil, false
	}
	entries := make([]NodeTableResponseEntry, 0, len(rest)/nodeTableEntryLength)
	for off := 0; off < len(rest); off += nodeTableEntryLength {
		entry := NodeTableResponseEntry{
			NodeID: pv.NodeID(binary.BigEndian.Uint16(rest[off : off+2])),
		}
		copy(entry.LongAddress[:], rest[off+2:off+nodeTableEntryLength])
		entries = append(entries, entry)
	}
	return startAddress, entries, true
}

const neighborEntryLength = 3 // node id (2) + rssi (1)

func decodeTopologyReport(data []byte) (*TopologyReport, bool) {
	if len(data)%neighborEntryLength != 0 {
		return nil, false
	}
	neighbors := make([]NeighborEntry, 0, len(data)/neighborEntryLength)
	for off := 0; off < len(data); off += neighborEntryLength {
		neighbors = append(neighbors, NeighborEntry{
			NodeID: pv.NodeID(binary.BigEndian.Uint16(data[off : off+2])),
			RSSI:   int8(data[off+2]),
		})
	}
	return &TopologyReport{Neighbors: neighbors}, true
}

const powerReportLength = 4 + 2 + 4 + 2 + 2 + 2

func decodePowerReport(data []byte) (*PowerReport, bool) {
	if len(data) < powerReportLength {
		return nil, false
	}
	return &PowerReport{
		SlotCounterSample:  pv.SlotCounter(binary.BigEndian.Uint32(data[0:4])),
		InstantaneousPower: binary.BigEndian.Uint16(data[4:6]),
		CumulativeEnergy:   binary.BigEndian.Uint32(data[6:10]),
		Voltage:            binary.BigEndian.Uint16(data[10:12]),
		Current:            binary.BigEndian.Uint16(data[12:14]),
		StatusFlags:        binary.BigEndian.Uint16(data[14:16]),
	}, true
}
