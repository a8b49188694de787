package observer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/librescoot/taptap-observer/pkg/gateway/link"
	"github.com/librescoot/taptap-observer/pkg/pv"
)

// PersistentState is the observer's durable view of the network: gateway
// identities and firmware versions, and each gateway's reassembled node
// table. It is monotonically refined over the observer's lifetime except
// during an enumeration cycle (see EnumerationState).
type PersistentState struct {
	GatewayNodeTables map[link.GatewayID]NodeTable         `json:"gateway_node_tables"`
	GatewayIdentities map[link.GatewayID]pv.LongAddress    `json:"gateway_identities"`
	GatewayVersions   map[link.GatewayID]string            `json:"gateway_versions"`
}

// NewPersistentState returns an empty state, as used on first run before any
// file has been restored.
func NewPersistentState() PersistentState {
	return PersistentState{
		GatewayNodeTables: make(map[link.GatewayID]NodeTable),
		GatewayIdentities: make(map[link.GatewayID]pv.LongAddress),
		GatewayVersions:   make(map[link.GatewayID]string),
	}
}

// LoadPersistentState reads a previously saved state file. A missing file
// is not an error: it returns a fresh empty state, matching first-run
// behavior.
func LoadPersistentState(path string) (PersistentState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewPersistentState(), nil
	}
	if err != nil {
		return PersistentState{}, fmt.Errorf("observer: read persistent state: %w", err)
	}

	state := NewPersistentState()
	if err := json.Unmarshal(data, &state); err != nil {
		return PersistentState{}, fmt.Errorf("observer: parse persistent state: %w", err)
	}
	return state, nil
}

// Save writes the state to path atomically: the temp file <path>.tmp is
// written, flushed, and renamed over the destination, so a reader never
// observes a partial file. The temp file is removed if any step fails.
func (s PersistentState) Save(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("observer: marshal persistent state: %w", err)
	}

	tmpPath := path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("observer: create temp state file: %w", err)
	}
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("observer: write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("observer: sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("observer: close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("observer: rename temp state file: %w", err)
	}
	return nil
}

// PersistentStateEventGateway is one gateway's entry in an
// infrastructure_report event.
type PersistentStateEventGateway struct {
	Address string `json:"address"`
	Version string `json:"version"`
}

// PersistentStateEventNode is one node's entry in an infrastructure_report
// event.
type PersistentStateEventNode struct {
	Address string     `json:"address"`
	Barcode pv.Barcode `json:"barcode"`
}

// PersistentStateEvent is the stdout event emitted on every persistent
// state change (and once on startup restore).
type PersistentStateEvent struct {
	EventType string                                                       `json:"event_type"`
	Gateways  map[link.GatewayID]PersistentStateEventGateway                `json:"gateways"`
	Nodes     map[link.GatewayID]map[pv.NodeID]PersistentStateEventNode `json:"nodes"`
}

// NewPersistentStateEvent renders the current state as the wire event
// shape, filling in addresses and barcodes from the raw LongAddress values.
func NewPersistentStateEvent(s PersistentState) PersistentStateEvent {
	gateways := make(map[link.GatewayID]PersistentStateEventGateway, len(s.GatewayIdentities))
	for gatewayID, addr := range s.GatewayIdentities {
		gateways[gatewayID] = PersistentStateEventGateway{
			Address: addr.String(),
			Version: s.GatewayVersions[gatewayID],
		}
	}

	nodes := make(map[link.GatewayID]map[pv.NodeID]PersistentStateEventNode, len(s.GatewayNodeTables))
	for gatewayID, table := range s.GatewayNodeTables {
		perGateway := make(map[pv.NodeID]PersistentStateEventNode, len(table))
		for nodeID, addr := range table {
			perGateway[nodeID] = PersistentStateEventNode{
				Address: addr.String(),
				Barcode: pv.BarcodeFromLongAddress(addr),
			}
		}
		nodes[gatewayID] = perGateway
	}

	return PersistentStateEvent{
		EventType: "infrastructure_report",
		Gateways:  gateways,
		Nodes:     nodes,
	}
}
