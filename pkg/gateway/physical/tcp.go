package physical

import (
	"net"
	"time"
)

// TCPKeepaliveConfig controls the keepalive probes sent on an idle TCP
// connection, so a half-open link (the serial-to-TCP bridge power-cycled,
// a NAT table entry expired) is noticed instead of hanging forever.
type TCPKeepaliveConfig struct {
	Idle     time.Duration
	Interval time.Duration
	Count    int
}

// DefaultTCPKeepaliveConfig mirrors the defaults of the gateway bridge this
// observer normally taps: 30s before the first probe, 10s between probes,
// 5 unacknowledged probes before the link is considered dead.
func DefaultTCPKeepaliveConfig() TCPKeepaliveConfig {
	return TCPKeepaliveConfig{
		Idle:     30 * time.Second,
		Interval: 10 * time.Second,
		Count:    5,
	}
}

// TCPConnection is a Connection backed by a TCP-bridged serial link.
type TCPConnection struct {
	conn     *net.TCPConn
	readonly bool
}

// DialTCP connects to addr and enables keepalive per cfg. On readonly
// connections Write is rejected rather than silently dropped: taptap-observe
// never needs to drive the link, and rejecting Write surfaces a caller bug
// immediately instead of pretending success.
func DialTCP(addr string, readonly bool, cfg TCPKeepaliveConfig) (*TCPConnection, error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTCP("tcp", nil, raddr)
	if err != nil {
		return nil, err
	}
	if err := enableKeepalive(conn, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return &TCPConnection{conn: conn, readonly: readonly}, nil
}

func (c *TCPConnection) Read(buf []byte) (int, error) {
	return c.conn.Read(buf)
}

func (c *TCPConnection) Write(buf []byte) (int, error) {
	if c.readonly {
		return 0, errReadonly
	}
	return c.conn.Write(buf)
}

func (c *TCPConnection) Close() error {
	return c.conn.Close()
}

// SetReadDeadline lets a caller bound how long a Read may block, so an idle
// link (no traffic, not necessarily closed) can be detected and retried.
func (c *TCPConnection) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}
