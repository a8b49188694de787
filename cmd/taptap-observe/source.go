package main

import (
	"errors"
	"flag"
	"io"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/librescoot/taptap-observer/pkg/config"
)

// sourceFlags mirrors the reconnecting Source every subcommand shares: one
// physical source (serial xor tcp), plus the retry/timeout knobs governing
// how long a broken connection is tolerated before giving up.
type sourceFlags struct {
	serial string
	tcp    string
	port   uint

	reconnectTimeout time.Duration
	reconnectRetry   uint
	reconnectDelay   time.Duration

	keepaliveIdle     time.Duration
	keepaliveInterval time.Duration
	keepaliveCount    uint
}

func registerSourceFlags(fs *flag.FlagSet) *sourceFlags {
	s := &sourceFlags{}
	fs.StringVar(&s.serial, "serial", "", "serial port name (try list-serial-ports); mutually exclusive with -tcp")
	fs.StringVar(&s.tcp, "tcp", "", "hostname of a TCP-bridged serial source; mutually exclusive with -serial")
	fs.UintVar(&s.port, "port", config.DefaultPort, "TCP port, if -tcp is given")
	fs.DurationVar(&s.reconnectTimeout, "reconnect-timeout", 0, "idle time with no data before reconnecting, if -tcp is given (0 = no timeout)")
	fs.UintVar(&s.reconnectRetry, "reconnect-retry", 0, "number of reconnect attempts before giving up (0 = infinite)")
	fs.DurationVar(&s.reconnectDelay, "reconnect-delay", 5*time.Second, "delay between reconnect attempts")
	fs.DurationVar(&s.keepaliveIdle, "keepalive-idle", 30*time.Second, "TCP keepalive idle time, if -tcp is given")
	fs.DurationVar(&s.keepaliveInterval, "keepalive-interval", 10*time.Second, "TCP keepalive probe interval, if -tcp is given")
	fs.UintVar(&s.keepaliveCount, "keepalive-count", 5, "TCP keepalive probe count, if -tcp is given")
	return s
}

func (s *sourceFlags) toConfig() (config.SourceConfig, error) {
	switch {
	case s.serial != "" && s.tcp != "":
		return config.SourceConfig{}, errors.New("-serial and -tcp are mutually exclusive")
	case s.serial != "":
		return config.SourceConfig{Serial: &config.SerialSourceConfig{Name: s.serial}}, nil
	case s.tcp != "":
		return config.SourceConfig{TCP: &config.TCPConnectionConfig{
			Hostname:          s.tcp,
			Port:              uint16(s.port),
			Mode:              config.ConnectionModeReadOnly,
			KeepaliveIdle:     s.keepaliveIdle,
			KeepaliveInterval: s.keepaliveInterval,
			KeepaliveCount:    int(s.keepaliveCount),
		}}, nil
	default:
		return config.SourceConfig{}, errors.New("one of -serial or -tcp is required")
	}
}

// readLoop opens the configured source and calls onData with every chunk
// read, reconnecting on error or idle timeout. It exits the process
// directly (status 2 on an open failure exhausting the retry budget, 3 on
// an idle-timeout reconnect exhausting it), matching a long-running tap
// that has no caller left to report a Go error to.
func (s *sourceFlags) readLoop(logger logrus.FieldLogger, onData func([]byte)) {
	cfg, err := s.toConfig()
	if err != nil {
		logger.WithError(err).Fatal("invalid source")
	}

	var openRetries, idleRetries uint
	buf := make([]byte, 1024)

	for {
		logger.Info("opening source connection...")
		conn, err := cfg.Open()
		if err != nil {
			logger.WithError(err).Error("error opening source")
			openRetries++
			if s.reconnectRetry != 0 && openRetries > s.reconnectRetry {
				logger.Warnf("maximum reconnect retries (%d) exceeded, exiting", s.reconnectRetry)
				os.Exit(2)
			}
			logger.Infof("reconnecting in %s...", s.reconnectDelay)
			time.Sleep(s.reconnectDelay)
			continue
		}
		logger.Info("source opened, entering read loop")

		lastReceived := time.Now()

	readLoop:
		for {
			if deadline, ok := conn.(interface{ SetReadDeadline(time.Time) error }); ok && s.reconnectTimeout > 0 {
				deadline.SetReadDeadline(time.Now().Add(s.reconnectTimeout))
			}

			n, err := conn.Read(buf)
			if n > 0 {
				lastReceived = time.Now()
				openRetries = 0
				idleRetries = 0
				onData(buf[:n])
			}
			if err == nil {
				continue
			}

			if errors.Is(err, io.EOF) {
				logger.Warn("connection closed by peer, will reconnect")
				break readLoop
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if s.reconnectTimeout == 0 || time.Since(lastReceived) < s.reconnectTimeout {
					continue
				}
				logger.Warnf("no data for %s, reconnecting (idle timeout)", s.reconnectTimeout)
				idleRetries++
				if s.reconnectRetry != 0 && idleRetries > s.reconnectRetry {
					logger.Warnf("maximum reconnect retries (%d) exceeded, exiting", s.reconnectRetry)
					os.Exit(3)
				}
				break readLoop
			}
			logger.WithError(err).Error("error reading, will reconnect")
			break readLoop
		}

		conn.Close()
		logger.Infof("reconnecting in %s...", s.reconnectDelay)
		time.Sleep(s.reconnectDelay)
	}
}
