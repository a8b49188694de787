//go:build !linux

package physical

import "net"

// enableKeepalive falls back to the portable knobs stdlib exposes; idle
// time and probe count tuning (TCP_KEEPIDLE/TCP_KEEPCNT) are Linux-specific
// socket options with no portable equivalent.
func enableKeepalive(conn *net.TCPConn, cfg TCPKeepaliveConfig) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return err
	}
	return conn.SetKeepAlivePeriod(cfg.Interval)
}
