// Package pv holds the value types shared by the PV application decoder and
// the observer: node identity, the wire address used by the node-table
// paging protocol, the closed set of application packet types, and the
// slot-counter time base.
package pv

import (
	"encoding/hex"
	"fmt"
)

// NodeID identifies a PV node within the scope of a single gateway.
type NodeID uint16

// NodeAddress is the wire address used by the application layer's node
// table paging protocol.
type NodeAddress uint16

// LongAddress is an 8-byte stable hardware identifier for a PV node or
// gateway.
type LongAddress [8]byte

// String renders the address as uppercase hex octets joined by ':', the
// form used in emitted infrastructure_report events.
func (a LongAddress) String() string {
	buf := make([]byte, 0, 23)
	for i, b := range a {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, []byte(fmt.Sprintf("%02X", b))...)
	}
	return string(buf)
}

// Barcode is a derived, printable identifier computed deterministically
// from a LongAddress.
type Barcode string

// BarcodeFromLongAddress derives the printable barcode for a hardware
// address. The encoding is a plain hex string of the address bytes with no
// separators, distinct from LongAddress's colon-separated String form.
func BarcodeFromLongAddress(addr LongAddress) Barcode {
	return Barcode(hex.EncodeToString(addr[:]))
}

// PacketType enumerates the PV application layer's payload variants,
// carried inside RECEIVE_RESPONSE and COMMAND request/response frames.
type PacketType uint16

const (
	PacketTypeStringRequest    PacketType = 0x0001
	PacketTypeStringResponse   PacketType = 0x0002
	PacketTypeNodeTableRequest PacketType = 0x0003
	PacketTypeNodeTableResponse PacketType = 0x0004
	PacketTypeTopologyReport   PacketType = 0x0005
	PacketTypePowerReport      PacketType = 0x0006
)

// String renders known packet types by name and falls back to their
// numeric form for anything outside the closed set this decoder
// understands.
func (t PacketType) String() string {
	switch t {
	case PacketTypeStringRequest:
		return "STRING_REQUEST"
	case PacketTypeStringResponse:
		return "STRING_RESPONSE"
	case PacketTypeNodeTableRequest:
		return "NODE_TABLE_REQUEST"
	case PacketTypeNodeTableResponse:
		return "NODE_TABLE_RESPONSE"
	case PacketTypeTopologyReport:
		return "TOPOLOGY_REPORT"
	case PacketTypePowerReport:
		return "POWER_REPORT"
	default:
		return fmt.Sprintf("PacketType(0x%04x)", uint16(t))
	}
}

// slotMask isolates the 14-bit slot field of a SlotCounter; the remaining
// high bits are the epoch.
const slotMask = 0x3fff

// SlotsPerEpoch is one past the highest representable slot value; the
// epoch increments whenever the slot field would wrap past this.
const SlotsPerEpoch = slotMask + 1

// SlotCounter is the protocol's 32-bit time base: a 14-bit slot counter
// that wraps into a higher-order epoch.
type SlotCounter uint32

// NewSlotCounter packs an epoch and slot into a single counter value. The
// slot is masked to 14 bits; callers that need strict validation should
// compare Slot() against the input themselves.
func NewSlotCounter(epoch uint32, slot uint16) SlotCounter {
	return SlotCounter((epoch << 14) | uint32(slot&slotMask))
}

// Epoch returns the counter's high-order epoch bits.
func (c SlotCounter) Epoch() uint32 {
	return uint32(c) >> 14
}

// Slot returns the counter's low 14-bit slot field.
func (c SlotCounter) Slot() uint16 {
	return uint16(uint32(c) & slotMask)
}

// String renders the counter as epoch:slot for logging.
func (c SlotCounter) String() string {
	return fmt.Sprintf("%d:%d", c.Epoch(), c.Slot())
}
