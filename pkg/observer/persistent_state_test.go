package observer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/librescoot/taptap-observer/pkg/pv"
)

func TestPersistentStateSaveLoadRoundTrip(t *testing.T) {
	gw := mustGW(t, 1)
	state := NewPersistentState()
	state.GatewayIdentities[gw] = addr(0x11)
	state.GatewayVersions[gw] = "1.0.0"
	state.GatewayNodeTables[gw] = NodeTable{1: addr(0x22)}

	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := state.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadPersistentState(path)
	if err != nil {
		t.Fatalf("LoadPersistentState: %v", err)
	}
	if loaded.GatewayIdentities[gw] != addr(0x11) {
		t.Fatalf("loaded identity = %v, want %v", loaded.GatewayIdentities[gw], addr(0x11))
	}
	if loaded.GatewayVersions[gw] != "1.0.0" {
		t.Fatalf("loaded version = %q", loaded.GatewayVersions[gw])
	}
	if loaded.GatewayNodeTables[gw][1] != addr(0x22) {
		t.Fatalf("loaded node table = %+v", loaded.GatewayNodeTables[gw])
	}
}

func TestLoadPersistentStateMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	state, err := LoadPersistentState(filepath.Join(dir, "does-not-exist.json"))
	if err != nil {
		t.Fatalf("LoadPersistentState: %v", err)
	}
	if len(state.GatewayIdentities) != 0 {
		t.Fatalf("expected empty state for a missing file, got %+v", state)
	}
}

// TestSaveLeavesOriginalUnchangedOnRenameFailure exercises the atomic-write
// contract: if the final rename cannot happen, the destination file (if
// any) must be untouched.
func TestSaveLeavesOriginalUnchangedOnRenameFailure(t *testing.T) {
	dir := t.TempDir()
	// Make path a directory so os.Rename onto it fails: rename(tmp, dir)
	// returns an error without touching dir's contents.
	path := filepath.Join(dir, "state.json")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	state := NewPersistentState()
	state.GatewayIdentities[mustGW(t, 1)] = addr(0x01)

	err := state.Save(path)
	if err == nil {
		t.Fatal("Save onto a directory: want error, got nil")
	}

	info, statErr := os.Stat(path)
	if statErr != nil || !info.IsDir() {
		t.Fatalf("destination was modified despite rename failure: stat=%v, err=%v", info, statErr)
	}
}

func TestPersistentStateEventShape(t *testing.T) {
	gw := mustGW(t, 2)
	state := NewPersistentState()
	state.GatewayIdentities[gw] = pv.LongAddress{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	state.GatewayVersions[gw] = "2.1.0"
	state.GatewayNodeTables[gw] = NodeTable{5: pv.LongAddress{0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x00, 0x01}}

	event := NewPersistentStateEvent(state)
	if event.EventType != "infrastructure_report" {
		t.Fatalf("event_type = %q", event.EventType)
	}
	gwEvent, ok := event.Gateways[gw]
	if !ok {
		t.Fatalf("gateway %v missing from event", gw)
	}
	if gwEvent.Address != "01:02:03:04:05:06:07:08" {
		t.Fatalf("gateway address = %q", gwEvent.Address)
	}
	if gwEvent.Version != "2.1.0" {
		t.Fatalf("gateway version = %q", gwEvent.Version)
	}

	nodeEvent, ok := event.Nodes[gw][5]
	if !ok {
		t.Fatalf("node 5 missing from event for gateway %v", gw)
	}
	if nodeEvent.Address != "0A:0B:0C:0D:0E:0F:00:01" {
		t.Fatalf("node address = %q", nodeEvent.Address)
	}
	if string(nodeEvent.Barcode) != "0a0b0c0d0e0f0001" {
		t.Fatalf("node barcode = %q", nodeEvent.Barcode)
	}
}
