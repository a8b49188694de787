package config

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDefaultTCPConnectionConfig(t *testing.T) {
	cfg := DefaultTCPConnectionConfig("gateway.local")

	if cfg.Hostname != "gateway.local" {
		t.Errorf("Hostname = %q, want %q", cfg.Hostname, "gateway.local")
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.Mode != ConnectionModeReadOnly {
		t.Errorf("Mode = %q, want %q", cfg.Mode, ConnectionModeReadOnly)
	}
	if cfg.KeepaliveIdle != 30*time.Second {
		t.Errorf("KeepaliveIdle = %v, want 30s", cfg.KeepaliveIdle)
	}
	if cfg.KeepaliveInterval != 10*time.Second {
		t.Errorf("KeepaliveInterval = %v, want 10s", cfg.KeepaliveInterval)
	}
	if cfg.KeepaliveCount != 5 {
		t.Errorf("KeepaliveCount = %d, want 5", cfg.KeepaliveCount)
	}
}

func TestSourceConfigJSONRoundTripTCP(t *testing.T) {
	in := SourceConfig{TCP: &TCPConnectionConfig{
		Hostname:          "gateway.local",
		Port:              7160,
		Mode:              ConnectionModeReadOnly,
		KeepaliveIdle:     30 * time.Second,
		KeepaliveInterval: 10 * time.Second,
		KeepaliveCount:    5,
	}}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out SourceConfig
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.Serial != nil {
		t.Fatalf("Serial = %+v, want nil", out.Serial)
	}
	if out.TCP == nil || *out.TCP != *in.TCP {
		t.Fatalf("TCP = %+v, want %+v", out.TCP, in.TCP)
	}
}

func TestSourceConfigJSONRoundTripSerial(t *testing.T) {
	in := SourceConfig{Serial: &SerialSourceConfig{Name: "/dev/ttyUSB0"}}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out SourceConfig
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.TCP != nil {
		t.Fatalf("TCP = %+v, want nil", out.TCP)
	}
	if out.Serial == nil || *out.Serial != *in.Serial {
		t.Fatalf("Serial = %+v, want %+v", out.Serial, in.Serial)
	}
}

func TestSourceConfigOpenRejectsEmpty(t *testing.T) {
	var cfg SourceConfig
	if _, err := cfg.Open(); err == nil {
		t.Fatal("Open() with neither TCP nor Serial set: expected error, got nil")
	}
}
