package table

import (
	"fmt"
	"sync"
)

// Table is the process-wide peer store: one PeerRecord per UUID, guarded
// by a single lock. Writes happen only from the tick loop; reads may come
// from other workers (index worker, data-plane worker) at steady state.
type Table struct {
	mu      sync.RWMutex
	peers   map[uint32]*PeerRecord
	localID uint32
}

func New(localID uint32) *Table {
	return &Table{
		peers:   make(map[uint32]*PeerRecord),
		localID: localID,
	}
}

// Get returns the peer record for uuid32, or nil if unknown. Per invariant
// 4, the local node's own UUID is never resolved as a peer.
func (t *Table) Get(uuid32 uint32) *PeerRecord {
	if uuid32 == t.localID {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peers[uuid32]
}

// Put inserts or replaces a peer record. Used by the (external) index
// worker at startup and when new peers are learned.
func (t *Table) Put(p *PeerRecord) error {
	if p.UUID32 == t.localID {
		return fmt.Errorf("table: refusing to store local uuid32 %d as a peer", p.UUID32)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[p.UUID32] = p
	return nil
}

// Delete removes a peer record, if present.
func (t *Table) Delete(uuid32 uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, uuid32)
}

// Len reports the number of known peers.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// ForEach calls fn for every peer, skipping local. fn must not call back
// into the Table (Get/Put/Delete) — it holds the read lock for the
// duration of iteration, matching the single-writer tick-loop model this
// table is built for.
func (t *Table) ForEach(fn func(*PeerRecord)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for uuid, p := range t.peers {
		if uuid == t.localID {
			continue
		}
		fn(p)
	}
}

// LocalUUID returns the UUID this table treats as local, never resolvable
// via Get/ForEach.
func (t *Table) LocalUUID() uint32 {
	return t.localID
}
