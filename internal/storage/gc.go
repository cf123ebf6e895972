package storage

import (
	"context"
	"sync"
	"time"
)

// recycleRequest is a queued slot awaiting reclamation once no active
// snapshot can still observe it (spec §4.6).
type recycleRequest struct {
	table   *Table
	block   TileGroupID
	offset  uint32
	safeCID Timestamp
}

// Recycler implements the garbage collector (spec §4.6): it defers
// reclaiming a slot until every active transaction's snapshot cid is at
// or past the slot's safe_cid, matching the invariant "a slot with
// txn_id == INVALID_TXN and end_cid < oldest_active_snapshot_cid is safe
// to overwrite".
type Recycler struct {
	mvcc *MVCCManager
	log  *Logger

	mu      sync.Mutex
	pending []recycleRequest

	queue chan recycleRequest
}

func NewRecycler(mvcc *MVCCManager, queueSize int) *Recycler {
	return &Recycler{
		mvcc:  mvcc,
		log:   NewLogger("gc"),
		queue: make(chan recycleRequest, queueSize),
	}
}

// RecycleSlot is the recycle_slot(table, block, offset, safe_cid)
// interface consumed by the hybrid scan executor's GC handoff (spec
// §4.5.1, §4.6). The caller must already have CASed the slot's txn_id to
// InvalidTxnID; RecycleSlot only tracks when it becomes safe to actually
// overwrite the slot's storage.
func (r *Recycler) RecycleSlot(table *Table, block TileGroupID, offset uint32, safeCID Timestamp) {
	select {
	case r.queue <- recycleRequest{table: table, block: block, offset: offset, safeCID: safeCID}:
	default:
		// Queue full: fall back to the unbounded slice under lock rather
		// than drop the request, since a dropped recycle request would
		// leak a slot forever.
		r.mu.Lock()
		r.pending = append(r.pending, recycleRequest{table: table, block: block, offset: offset, safeCID: safeCID})
		r.mu.Unlock()
	}
}

// Run periodically sweeps pending recycle requests, reclaiming every one
// whose safe_cid has been passed by the oldest active snapshot.
func (r *Recycler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep drains the queue into the pending list and reclaims every
// request whose safe_cid is no longer observable by any active
// transaction. Exported so tests and a one-shot caller can drive GC
// without running the background loop.
func (r *Recycler) Sweep() int {
	r.drainQueue()

	oldest := r.mvcc.OldestActiveSnapshotCID()

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.pending[:0]
	reclaimed := 0
	for _, req := range r.pending {
		if req.safeCID <= oldest {
			if req.table.reclaimSlot(req.block, req.offset) {
				reclaimed++
				continue
			}
		}
		kept = append(kept, req)
	}
	r.pending = kept
	return reclaimed
}

func (r *Recycler) drainQueue() {
	for {
		select {
		case req := <-r.queue:
			r.mu.Lock()
			r.pending = append(r.pending, req)
			r.mu.Unlock()
		default:
			return
		}
	}
}

// Pending reports how many recycle requests are awaiting reclamation,
// used by tests asserting GC makes progress.
func (r *Recycler) Pending() int {
	r.drainQueue()
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
