package observer

import (
	"github.com/librescoot/taptap-observer/pkg/pv"
	"github.com/librescoot/taptap-observer/pkg/pv/application"
)

// NodeTablePageSize is the protocol's full-page entry count; a page with
// fewer entries than this terminates the table (the terminal-short-page
// rule).
const NodeTablePageSize = 16

// NodeTable maps a PV node's identifier to its stable hardware address,
// assembled from one gateway's paged NODE_TABLE_RESPONSE frames.
type NodeTable map[pv.NodeID]pv.LongAddress

// NodeTableBuilder reassembles the paged node table for a single gateway.
// It is not safe for concurrent use.
type NodeTableBuilder struct {
	expectedStart pv.NodeAddress
	accumulated   NodeTable
	started       bool // true once accumulation began at NodeAddress 0
}

// Push feeds one page into the builder. If the page completes the table
// (fewer than NodeTablePageSize entries) and accumulation began at the
// canonical first NodeAddress (0), the assembled table is returned and the
// builder resets for the next cycle. A page that arrives out of order or
// overlapping the expected start discards whatever was accumulated and
// restarts assembly from this page. A short page seen before accumulation
// ever reached address 0 (the observer started mid-dump) cannot complete
// the table: it is discarded and the builder waits for the next page
// starting at 0.
func (b *NodeTableBuilder) Push(start pv.NodeAddress, entries []application.NodeTableResponseEntry) (NodeTable, bool) {
	if b.accumulated == nil || start != b.expectedStart {
		b.accumulated = make(NodeTable, len(entries))
		b.started = start == 0
	}

	for _, e := range entries {
		b.accumulated[e.NodeID] = e.LongAddress
	}
	b.expectedStart = pv.NodeAddress(uint16(start) + uint16(len(entries)))

	if len(entries) < NodeTablePageSize {
		table, complete := b.accumulated, b.started
		b.accumulated = nil
		b.expectedStart = 0
		b.started = false
		if complete {
			return table, true
		}
		return nil, false
	}
	return nil, false
}
