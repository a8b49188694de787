// Package config describes how taptap-observe reaches the controller/
// gateway link: over TCP (the normal deployment, a serial-to-TCP bridge
// sitting on the gateway rack) or a local serial port.
package config

import (
	"fmt"
	"time"

	"github.com/librescoot/taptap-observer/pkg/gateway/physical"
)

// ConnectionMode selects whether the TCP source is allowed to write to the
// link. taptap-observe itself never writes, but the same Source type backs
// interactive debugging tools that do.
type ConnectionMode string

const (
	ConnectionModeReadOnly  ConnectionMode = "readonly"
	ConnectionModeReadWrite ConnectionMode = "readwrite"
)

// DefaultPort is the gateway bridge's well-known TCP port.
const DefaultPort = 7160

// TCPConnectionConfig configures a TCP-bridged serial source.
type TCPConnectionConfig struct {
	Hostname string         `json:"hostname"`
	Port     uint16         `json:"port"`
	Mode     ConnectionMode `json:"mode"`

	KeepaliveIdle     time.Duration `json:"keepalive_idle"`
	KeepaliveInterval time.Duration `json:"keepalive_interval"`
	KeepaliveCount    int           `json:"keepalive_count"`
}

// DefaultTCPConnectionConfig returns a TCPConnectionConfig for hostname
// with every field but Hostname at its default.
func DefaultTCPConnectionConfig(hostname string) TCPConnectionConfig {
	keepalive := physical.DefaultTCPKeepaliveConfig()
	return TCPConnectionConfig{
		Hostname:          hostname,
		Port:              DefaultPort,
		Mode:              ConnectionModeReadOnly,
		KeepaliveIdle:     keepalive.Idle,
		KeepaliveInterval: keepalive.Interval,
		KeepaliveCount:    keepalive.Count,
	}
}

// SerialSourceConfig configures a direct local serial source.
type SerialSourceConfig struct {
	Name string `json:"name"`
}

// SourceConfig selects and configures exactly one physical source. Exactly
// one of TCP or Serial must be set.
type SourceConfig struct {
	TCP    *TCPConnectionConfig `json:"tcp,omitempty"`
	Serial *SerialSourceConfig  `json:"serial,omitempty"`
}

// Open dials the configured source and returns a ready-to-read Connection.
func (s SourceConfig) Open() (physical.Connection, error) {
	switch {
	case s.Serial != nil:
		return physical.OpenSerial(s.Serial.Name)

	case s.TCP != nil:
		cfg := s.TCP
		addr := fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port)
		readonly := cfg.Mode != ConnectionModeReadWrite
		keepalive := physical.TCPKeepaliveConfig{
			Idle:     cfg.KeepaliveIdle,
			Interval: cfg.KeepaliveInterval,
			Count:    cfg.KeepaliveCount,
		}
		return physical.DialTCP(addr, readonly, keepalive)

	default:
		return nil, fmt.Errorf("config: source has neither tcp nor serial configured")
	}
}
