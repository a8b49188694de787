// Package transport correlates link layer request/response frames into
// higher-level gateway transport events: enumeration, identity and version
// discovery, slot counter capture, PV packet delivery, and command
// execution.
package transport

import (
	"encoding/binary"
	"time"

	"github.com/librescoot/taptap-observer/pkg/gateway/link"
	"github.com/librescoot/taptap-observer/pkg/pv"
)

// Counters tracks transport-layer statistics not already covered by the
// link layer's own Counters.
type Counters struct {
	UnmatchedResponses uint64
}

// ReceivedPacketHeader accompanies a PV packet carried inside a
// RECEIVE_RESPONSE frame.
type ReceivedPacketHeader struct {
	SlotCounter pv.SlotCounter
	NodeID      pv.NodeID
	PacketType  pv.PacketType
}

// Sink receives decoded transport events. Every implementation provides
// all of the callbacks; one it has no use for can be left empty (the
// Observer's PacketReceived and CommandExecuted do nothing).
type Sink interface {
	EnumerationStarted(gw link.GatewayID)
	GatewayIdentityObserved(gw link.GatewayID, address pv.LongAddress)
	GatewayVersionObserved(gw link.GatewayID, version string)
	EnumerationEnded(gw link.GatewayID)
	GatewaySlotCounterCaptured(gw link.GatewayID)
	GatewaySlotCounterObserved(gw link.GatewayID, counter pv.SlotCounter)
	PacketReceived(gw link.GatewayID, header ReceivedPacketHeader, data []byte)
	CommandExecuted(gw link.GatewayID, reqType pv.PacketType, reqData []byte, rspType pv.PacketType, rspData []byte)
}

type pendingRequest struct {
	requestType link.Type
	payload     []byte
	capturedAt  time.Time
}

// Receiver implements link.Sink, sitting directly downstream of a link
// Receiver, and re-emits correlated transport events to its own Sink.
type Receiver struct {
	sink     Sink
	counters Counters
	pending  map[link.GatewayID]pendingRequest
	now      func() time.Time
}

// NewReceiver constructs a Receiver delivering events to sink.
func NewReceiver(sink Sink) *Receiver {
	return &Receiver{
		sink:    sink,
		pending: make(map[link.GatewayID]pendingRequest),
		now:     time.Now,
	}
}

// Counters returns a snapshot of the receiver's running statistics.
func (r *Receiver) Counters() Counters {
	return r.counters
}

// Frame implements link.Sink.
func (r *Receiver) Frame(f link.Frame) {
	gw := f.Address.GatewayID

	switch f.Type {
	case link.TypeEnumerationStartRequest:
		r.sink.EnumerationStarted(gw)

	case link.TypeIdentifyResponse:
		if addr, ok := decodeLongAddress(f.Payload); ok {
			r.sink.GatewayIdentityObserved(gw, addr)
		}

	case link.TypeVersionResponse:
		if version, ok := decodeLengthPrefixedString(f.Payload); ok {
			r.sink.GatewayVersionObserved(gw, version)
		}

	case link.TypeEnumerationEndResponse:
		r.sink.EnumerationEnded(gw)

	case link.TypeReceiveRequest:
		r.sink.GatewaySlotCounterCaptured(gw)
		r.setPending(gw, f.Type, f.Payload)

	case link.TypeReceiveResponse:
		r.handleReceiveResponse(gw, f.Payload)

	case link.TypeCommandRequest:
		r.setPending(gw, f.Type, f.Payload)

	case link.TypeCommandResponse:
		r.handleCommandResponse(gw, f.Payload)

	default:
		// PING, ENUMERATION, ASSIGN_GATEWAY_ID and unrecognized types carry
		// no correlated transport event.
	}
}

func (r *Receiver) setPending(gw link.GatewayID, requestType link.Type, payload []byte) {
	r.pending[gw] = pendingRequest{
		requestType: requestType,
		payload:     append([]byte(nil), payload...),
		capturedAt:  r.now(),
	}
}

// takePending removes and returns the pending request for gw if one exists
// and matches wantReqType; every call consumes the slot, matched or not.
func (r *Receiver) takePending(gw link.GatewayID, wantReqType link.Type) (pendingRequest, bool) {
	p, ok := r.pending[gw]
	if !ok {
		return pendingRequest{}, false
	}
	delete(r.pending, gw)
	if p.requestType != wantReqType {
		return pendingRequest{}, false
	}
	return p, true
}

func (r *Receiver) handleReceiveResponse(gw link.GatewayID, payload []byte) {
	if _, ok := r.takePending(gw, link.TypeReceiveRequest); !ok {
		r.counters.UnmatchedResponses++
		return
	}

	header, data, ok := decodeReceivedPacketHeader(payload)
	if !ok {
		r.counters.UnmatchedResponses++
		return
	}

	r.sink.GatewaySlotCounterObserved(gw, header.SlotCounter)
	r.sink.PacketReceived(gw, header, data)
}

func (r *Receiver) handleCommandResponse(gw link.GatewayID, rspPayload []byte) {
	p, ok := r.takePending(gw, link.TypeCommandRequest)
	if !ok {
		r.counters.UnmatchedResponses++
		return
	}

	reqType, reqData, ok := decodePVPacket(p.payload)
	if !ok {
		r.counters.UnmatchedResponses++
		return
	}
	rspType, rspData, ok := decodePVPacket(rspPayload)
	if !ok {
		r.counters.UnmatchedResponses++
		return
	}

	r.sink.CommandExecuted(gw, reqType, reqData, rspType, rspData)
}

// decodeLongAddress reads an 8-byte LongAddress from the start of payload.
func decodeLongAddress(payload []byte) (pv.LongAddress, bool) {
	var addr pv.LongAddress
	if len(payload) < len(addr) {
		return pv.LongAddress{}, false
	}
	copy(addr[:], payload[:len(addr)])
	return addr, true
}

// decodeLengthPrefixedString reads a single length byte followed by that
// many bytes of UTF-8 text, as VERSION_RESPONSE carries it.
func decodeLengthPrefixedString(payload []byte) (string, bool) {
	if len(payload) < 1 {
		return "", false
	}
	n := int(payload[0])
	if len(payload) < 1+n {
		return "", false
	}
	return string(payload[1 : 1+n]), true
}

// receivedPacketHeaderLength is slot_counter(4) + node_id(2) + packet_type(2).
const receivedPacketHeaderLength = 8

func decodeReceivedPacketHeader(payload []byte) (ReceivedPacketHeader, []byte, bool) {
	if len(payload) < receivedPacketHeaderLength {
		return ReceivedPacketHeader{}, nil, false
	}
	header := ReceivedPacketHeader{
		SlotCounter: pv.SlotCounter(binary.BigEndian.Uint32(payload[0:4])),
		NodeID:      pv.NodeID(binary.BigEndian.Uint16(payload[4:6])),
		PacketType:  pv.PacketType(binary.BigEndian.Uint16(payload[6:8])),
	}
	return header, payload[receivedPacketHeaderLength:], true
}

// decodePVPacket reads a 2-byte big-endian PacketType prefix, as carried
// inside COMMAND_REQUEST/COMMAND_RESPONSE payloads.
func decodePVPacket(payload []byte) (pv.PacketType, []byte, bool) {
	if len(payload) < 2 {
		return 0, nil, false
	}
	return pv.PacketType(binary.BigEndian.Uint16(payload[0:2])), payload[2:], true
}
