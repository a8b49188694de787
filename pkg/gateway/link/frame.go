package link

import (
	"errors"
	"fmt"
)

// MaxPayloadLength bounds a single frame's payload; combined with the
// address, type, and CRC fields it fits within MaxBodyLength, which the
// receiver applies to the de-escaped body.
const MaxPayloadLength = 500

// ErrPayloadTooLarge is returned by Encode when payload exceeds
// MaxPayloadLength.
var ErrPayloadTooLarge = errors.New("link: payload exceeds maximum length")

// Type is a link layer frame type. The namespace is closed: every value the
// protocol actually uses has a named constant below; anything else still
// decodes as a Frame (String shows its numeric value) but produces no
// transport event.
type Type uint16

const (
	TypeVersionRequest  Type = 0x000A
	TypeVersionResponse Type = 0x000B

	TypeEnumerationStartRequest  Type = 0x0014
	TypeEnumerationStartResponse Type = 0x0015

	TypeEnumerationRequest  Type = 0x0038
	TypeEnumerationResponse Type = 0x0039

	TypeIdentifyRequest  Type = 0x003A
	TypeIdentifyResponse Type = 0x003B

	TypeAssignGatewayIDRequest  Type = 0x003C
	TypeAssignGatewayIDResponse Type = 0x003D

	TypeEnumerationEndResponse Type = 0x0006
	TypeEnumerationEndRequest  Type = 0x0E02

	TypeReceiveRequest  Type = 0x0148
	TypeReceiveResponse Type = 0x0149

	TypePingRequest  Type = 0x0B00
	TypePingResponse Type = 0x0B01

	TypeCommandRequest  Type = 0x0B0F
	TypeCommandResponse Type = 0x0B10
)

var typeNames = map[Type]string{
	TypeVersionRequest:           "VERSION_REQUEST",
	TypeVersionResponse:          "VERSION_RESPONSE",
	TypeEnumerationStartRequest:  "ENUMERATION_START_REQUEST",
	TypeEnumerationStartResponse: "ENUMERATION_START_RESPONSE",
	TypeEnumerationRequest:       "ENUMERATION_REQUEST",
	TypeEnumerationResponse:      "ENUMERATION_RESPONSE",
	TypeIdentifyRequest:          "IDENTIFY_REQUEST",
	TypeIdentifyResponse:         "IDENTIFY_RESPONSE",
	TypeAssignGatewayIDRequest:   "ASSIGN_GATEWAY_ID_REQUEST",
	TypeAssignGatewayIDResponse:  "ASSIGN_GATEWAY_ID_RESPONSE",
	TypeEnumerationEndResponse:   "ENUMERATION_END_RESPONSE",
	TypeEnumerationEndRequest:    "ENUMERATION_END_REQUEST",
	TypeReceiveRequest:           "RECEIVE_REQUEST",
	TypeReceiveResponse:          "RECEIVE_RESPONSE",
	TypePingRequest:              "PING_REQUEST",
	TypePingResponse:             "PING_RESPONSE",
	TypeCommandRequest:           "COMMAND_REQUEST",
	TypeCommandResponse:          "COMMAND_RESPONSE",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%#04x)", uint16(t))
}

// Frame is a decoded, CRC-verified link layer frame.
type Frame struct {
	Address Address
	Type    Type
	Payload []byte
}

var (
	fromPreamble = []byte{0xff, 0x7e, 0x07}
	toPreamble   = []byte{0x00, 0xff, 0xff, 0x7e, 0x07}
	trailer      = []byte{0x7e, 0x08}
)

// Encode serializes the frame into its complete wire representation,
// including the preamble and trailer.
func (f Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxPayloadLength {
		return nil, fmt.Errorf("link: payload length %d: %w", len(f.Payload), ErrPayloadTooLarge)
	}

	addr := f.Address.GatewayID.bytes()
	body := make([]byte, 0, 2+2+len(f.Payload)+2)
	body = append(body, addr[0], addr[1])
	body = append(body, byte(f.Type>>8), byte(f.Type))
	body = append(body, f.Payload...)

	crc := crc16(body, 0)
	body = append(body, byte(crc), byte(crc>>8))

	var preamble []byte
	if f.Address.Direction == To {
		preamble = toPreamble
	} else {
		preamble = fromPreamble
	}

	out := make([]byte, 0, len(preamble)+escapedLength(body)+len(trailer))
	out = append(out, preamble...)
	out = escape(out, body)
	out = append(out, trailer...)
	return out, nil
}
