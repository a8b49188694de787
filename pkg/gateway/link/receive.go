package link

import "bytes"

// MaxBodyLength bounds the link layer's body assembly buffer; exceeding it
// is treated as a resync, not an allocation failure.
const MaxBodyLength = 512

// Counters tracks the link receiver's monotonically non-decreasing
// statistics, observable by the caller (and exported to Prometheus by
// pkg/metrics).
type Counters struct {
	BytesIn       uint64
	FramesEmitted uint64
	CRCFailures   uint64
	ShortFrames   uint64
	Resyncs       uint64
	EscapeErrors  uint64
}

// Sink receives decoded, CRC-verified frames in arrival order.
type Sink interface {
	Frame(f Frame)
}

type receiverState int

const (
	stateHunting receiverState = iota
	stateInBody
)

// Receiver is the link layer's byte-to-Frame state machine. It is not safe
// for concurrent use: the pipeline is single-threaded by design, and the
// caller's own goroutine drives Extend synchronously.
type Receiver struct {
	sink Sink

	counters Counters

	state         receiverState
	preambleBuf   []byte
	direction     Direction
	body          []byte
	pendingEscape bool
}

// NewReceiver constructs a Receiver delivering frames to sink.
func NewReceiver(sink Sink) *Receiver {
	return &Receiver{
		sink:        sink,
		state:       stateHunting,
		preambleBuf: make([]byte, 0, len(toPreamble)),
		body:        make([]byte, 0, 64),
	}
}

// Counters returns a snapshot of the receiver's running statistics.
func (r *Receiver) Counters() Counters {
	return r.counters
}

// Extend consumes all of data, emitting zero or more frames to the sink in
// order of arrival. It never blocks and never allocates unboundedly.
func (r *Receiver) Extend(data []byte) {
	for _, b := range data {
		r.counters.BytesIn++
		r.processByte(b)
	}
}

func (r *Receiver) processByte(b byte) {
	switch r.state {
	case stateHunting:
		r.feedPreamble(b)
	case stateInBody:
		r.feedBody(b)
	}
}

func (r *Receiver) feedPreamble(b byte) {
	r.preambleBuf = append(r.preambleBuf, b)
	if over := len(r.preambleBuf) - len(toPreamble); over > 0 {
		r.preambleBuf = append(r.preambleBuf[:0], r.preambleBuf[over:]...)
	}

	// The To-preamble's trailing bytes are themselves a valid From-preamble,
	// so the longer, more specific pattern must be checked first.
	switch {
	case bytes.HasSuffix(r.preambleBuf, toPreamble):
		r.startBody(To)
	case bytes.HasSuffix(r.preambleBuf, fromPreamble):
		r.startBody(From)
	}
}

func (r *Receiver) startBody(dir Direction) {
	r.direction = dir
	r.state = stateInBody
	r.body = r.body[:0]
	r.pendingEscape = false
	r.preambleBuf = r.preambleBuf[:0]
}

func (r *Receiver) feedBody(b byte) {
	if r.pendingEscape {
		r.pendingEscape = false
		switch b {
		case 0x07:
			// A preamble terminator appeared mid-body: this frame is
			// malformed and abandoned. If the bytes before the 7E are the
			// start of a preamble (FF, or 00 FF FF), a new body starts here;
			// otherwise the receiver returns to hunting.
			body := r.body
			r.resync()
			switch {
			case bytes.HasSuffix(body, toPreamble[:3]):
				r.startBody(To)
			case bytes.HasSuffix(body, fromPreamble[:1]):
				r.startBody(From)
			}
		case 0x08:
			r.endBody()
		case escapeByte ^ escapeXor:
			r.appendBody(escapeByte)
		default:
			r.counters.EscapeErrors++
			r.resync()
			r.feedPreamble(b)
		}
		return
	}

	if b == escapeByte {
		r.pendingEscape = true
		return
	}

	r.appendBody(b)
}

func (r *Receiver) appendBody(b byte) {
	r.body = append(r.body, b)
	if len(r.body) > MaxBodyLength {
		r.resync()
	}
}

func (r *Receiver) resync() {
	r.counters.Resyncs++
	r.state = stateHunting
	r.body = r.body[:0]
	r.preambleBuf = r.preambleBuf[:0]
	r.pendingEscape = false
}

// endBody splits, verifies, and (on success) emits the accumulated body,
// then returns the receiver to hunting regardless of outcome.
func (r *Receiver) endBody() {
	body := r.body
	r.state = stateHunting
	r.preambleBuf = r.preambleBuf[:0]

	const minBodyLength = 6 // address(2) + type(2) + crc(2), payload may be empty
	if len(body) < minBodyLength {
		r.counters.ShortFrames++
		return
	}

	payload := body[4 : len(body)-2]
	wantCRC := crc16(body[:len(body)-2], 0)
	gotCRC := uint16(body[len(body)-2]) | uint16(body[len(body)-1])<<8
	if gotCRC != wantCRC {
		r.counters.CRCFailures++
		return
	}

	gatewayID, err := gatewayIDFromBytes([2]byte{body[0], body[1]})
	if err != nil {
		r.counters.CRCFailures++
		return
	}

	frame := Frame{
		Address: Address{Direction: r.direction, GatewayID: gatewayID},
		Type:    Type(uint16(body[2])<<8 | uint16(body[3])),
		Payload: append([]byte(nil), payload...),
	}
	r.counters.FramesEmitted++
	r.sink.Frame(frame)
}
