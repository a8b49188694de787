//go:build linux

package physical

import (
	"net"

	"golang.org/x/sys/unix"
)

// enableKeepalive tunes the three keepalive knobs Linux exposes per-socket.
// SetKeepAlivePeriod alone only controls the probe interval; idle time and
// probe count need raw socket options.
func enableKeepalive(conn *net.TCPConn, cfg TCPKeepaliveConfig) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return err
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		idleSecs := int(cfg.Idle.Seconds())
		if idleSecs < 1 {
			idleSecs = 1
		}
		intervalSecs := int(cfg.Interval.Seconds())
		if intervalSecs < 1 {
			intervalSecs = 1
		}

		if sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, idleSecs); sockErr != nil {
			return
		}
		if sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, intervalSecs); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, cfg.Count)
	})
	if err != nil {
		return err
	}
	return sockErr
}
