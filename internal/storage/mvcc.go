// This file implements the MVCC manager (MVC, spec §4.2): transaction id
// and commit-timestamp generation, the three-valued visibility test, read
// and write marking, and the monotone max-committed-cid watermark that GC
// relies on. It keeps the teacher's MVCCManager/TxContext shape
// (internal/storage/mvcc.go in the original tree) but swaps the
// xmin/xmax + commit-log model for the spec's CAS-on-slot-header +
// begin_cid/end_cid model, since that is what the hybrid scan executor's
// chain-walk handoff (spec §4.5.1) requires.
package storage

import (
	"sync"
	"sync/atomic"
)

// TxnID is a transaction identifier. Real ids start at 1 and increase
// monotonically; InitialTxnID and InvalidTxnID are reserved sentinels
// that can never collide with a real id (spec §3).
type TxnID uint64

// Timestamp is a logical commit timestamp used for MVCC visibility.
type Timestamp uint64

// Visibility is the three-valued result of a visibility check (spec §4.2).
type Visibility uint8

const (
	Visible Visibility = iota
	Invisible
	Deleted
)

func (v Visibility) String() string {
	switch v {
	case Visible:
		return "VISIBLE"
	case Deleted:
		return "DELETED"
	default:
		return "INVISIBLE"
	}
}

// TxnResult latches the final disposition of a transaction, checked by the
// executor between tile groups so externally-aborted queries return
// promptly (spec §5 "Cancellation/timeouts").
type TxnResult uint8

const (
	ResultUnknown TxnResult = iota
	ResultSuccess
	ResultFailure
)

// IsolationLevel mirrors the teacher's enumeration; RepeatableRead is the
// only level spec §4.2 names a concrete conflict rule for ("detects a
// newer committed version"), the others fall back to snapshot visibility
// (documented as an Open Question resolution in DESIGN.md).
type IsolationLevel uint8

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
	SnapshotIsolation
	Serializable
)

// writeRole distinguishes, for a slot this transaction holds, whether it
// is a newly created version (commit publishes BeginCID) or a version
// this transaction is superseding via update/delete (commit publishes
// EndCID). Spec §4.2: "write begin_cid=commit_cid for created versions
// and end_cid=commit_cid for superseded versions."
type writeRole uint8

const (
	roleCreated writeRole = iota
	roleSuperseded
)

type writeSetEntry struct {
	ptr    ItemPointer
	header *SlotHeader
	role   writeRole
}

// Transaction holds the state of one in-flight transaction (spec §3
// "Transaction"): id, snapshot cid, read/write sets, and a result latch.
type Transaction struct {
	TxnID          TxnID
	SnapshotCID    Timestamp
	IsolationLevel IsolationLevel

	mu       sync.Mutex
	readSet  map[ItemPointer]Timestamp // item pointer -> version's begin_cid observed
	writeSet []writeSetEntry

	result atomic.Uint32
}

func (tx *Transaction) Result() TxnResult     { return TxnResult(tx.result.Load()) }
func (tx *Transaction) setResult(r TxnResult) { tx.result.Store(uint32(r)) }

// ReadSet exposes the item pointers this transaction has observed, for
// tests and diagnostics.
func (tx *Transaction) ReadSet() map[ItemPointer]Timestamp {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	out := make(map[ItemPointer]Timestamp, len(tx.readSet))
	for k, v := range tx.readSet {
		out[k] = v
	}
	return out
}

// MVCCManager coordinates transaction ids, timestamps, and visibility for
// one Engine (spec §4.2).
type MVCCManager struct {
	nextTxnID       atomic.Uint64
	nextCommitCID   atomic.Uint64
	maxCommittedCID atomic.Uint64

	mu           sync.Mutex
	activeTxns   map[TxnID]*Transaction
	oldestActive Timestamp // snapshot cid of the oldest still-active transaction
}

// NewMVCCManager creates a coordinator with fresh counters. TxnID and
// commit-cid counters both start at 1 so that 0 (InitialTxnID) and the
// zero Timestamp are never assigned to a real transaction.
func NewMVCCManager() *MVCCManager {
	m := &MVCCManager{activeTxns: make(map[TxnID]*Transaction)}
	m.nextTxnID.Store(1)
	m.nextCommitCID.Store(1)
	m.maxCommittedCID.Store(0)
	return m
}

// Begin assigns a fresh TxnID and a snapshot cid = next_commit_id - 1
// (spec §4.2).
func (m *MVCCManager) Begin(level IsolationLevel) *Transaction {
	txnID := TxnID(m.nextTxnID.Add(1) - 1)
	snapshot := Timestamp(m.nextCommitCID.Load() - 1)

	tx := &Transaction{
		TxnID:          txnID,
		SnapshotCID:    snapshot,
		IsolationLevel: level,
		readSet:        make(map[ItemPointer]Timestamp),
	}

	m.mu.Lock()
	m.activeTxns[txnID] = tx
	m.recomputeOldestActiveLocked()
	m.mu.Unlock()

	return tx
}

// IsVisible implements spec §4.2's three-valued visibility test: a
// version is VISIBLE iff begin_cid <= txn.cid < end_cid and the creating
// writer is committed; DELETED marks a tombstoned version that did exist
// for this snapshot but was superseded before it; INVISIBLE covers both
// "not yet committed" and "not created yet" writers.
func (m *MVCCManager) IsVisible(h *SlotHeader, txn *Transaction) Visibility {
	owner := h.TxnID()

	if owner == txn.TxnID {
		// Own writes: a freshly created version (begin_cid still open) is
		// visible to its own creator; a version this transaction is in the
		// process of superseding via update/delete is not.
		if h.BeginCID() == MaxCID {
			return Visible
		}
		return Deleted
	}

	if owner != InitialTxnID {
		// Held by another in-flight writer (or dead/reclaimable): not
		// committed, so not visible regardless of cid range.
		return Invisible
	}

	begin, end := h.BeginCID(), h.EndCID()
	if begin <= txn.SnapshotCID && txn.SnapshotCID < end {
		return Visible
	}
	if end != MaxCID && txn.SnapshotCID >= end {
		return Deleted
	}
	return Invisible
}

// recordRead records a read for conflict detection, returning
// ErrReadConflict under RepeatableRead when the slot it's reading has
// already advanced to a newer committed version than the one this
// transaction first observed (spec §4.2's example conflict rule).
func (tx *Transaction) recordRead(ptr ItemPointer, beginCID Timestamp, level IsolationLevel) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if level == RepeatableRead {
		if prior, ok := tx.readSet[ptr]; ok && prior != beginCID {
			return ErrReadConflict
		}
	}
	tx.readSet[ptr] = beginCID
	return nil
}

// PerformRead is the MVC-facing half of the contract; chain-walk callers
// (the hybrid scan executor) call this once they've located the visible
// version for ptr.
func (m *MVCCManager) PerformRead(txn *Transaction, ptr ItemPointer, h *SlotHeader) error {
	if err := txn.recordRead(ptr, h.BeginCID(), txn.IsolationLevel); err != nil {
		txn.setResult(ResultFailure)
		return err
	}
	return nil
}

// PerformInsert records a newly allocated slot (already claimed for txn
// by AllocateSlot) in the write set as a created version.
func (m *MVCCManager) PerformInsert(txn *Transaction, ptr ItemPointer, h *SlotHeader) {
	txn.mu.Lock()
	txn.writeSet = append(txn.writeSet, writeSetEntry{ptr: ptr, header: h, role: roleCreated})
	txn.mu.Unlock()
}

// PerformUpdate claims the old version for supersession (CAS txn_id from
// INITIAL_TXN to txn.TxnID) and records the newly allocated version as
// created. Chain links (old.NextVersion = newPtr, new.PrevVersion =
// oldPtr) are written by the caller, as spec §4.2 specifies.
func (m *MVCCManager) PerformUpdate(txn *Transaction, newPtr ItemPointer, newHeader *SlotHeader, oldPtr ItemPointer, oldHeader *SlotHeader) error {
	if !oldHeader.CASTxnID(InitialTxnID, txn.TxnID) {
		txn.setResult(ResultFailure)
		return ErrWriteConflict
	}
	txn.mu.Lock()
	txn.writeSet = append(txn.writeSet,
		writeSetEntry{ptr: newPtr, header: newHeader, role: roleCreated},
		writeSetEntry{ptr: oldPtr, header: oldHeader, role: roleSuperseded},
	)
	txn.mu.Unlock()
	return nil
}

// PerformDelete claims the slot for supersession with no replacement
// version (a tombstone at commit time).
func (m *MVCCManager) PerformDelete(txn *Transaction, ptr ItemPointer, h *SlotHeader) error {
	if !h.CASTxnID(InitialTxnID, txn.TxnID) {
		txn.setResult(ResultFailure)
		return ErrWriteConflict
	}
	txn.mu.Lock()
	txn.writeSet = append(txn.writeSet, writeSetEntry{ptr: ptr, header: h, role: roleSuperseded})
	txn.mu.Unlock()
	return nil
}

// Commit assigns a commit cid under the manager's total order, publishes
// begin_cid/end_cid for this transaction's touched versions, flips their
// txn_id back to INITIAL_TXN, and advances max_committed_cid
// monotonically — only after every slot update is visible, so a
// concurrent GC sweep never observes a half-published commit (spec §4.2
// ordering rules, §5 "commit_cid assignment happens-before...").
func (m *MVCCManager) Commit(txn *Transaction) (Timestamp, error) {
	if txn.Result() != ResultUnknown {
		return 0, ErrTxnNotActive
	}

	commitCID := Timestamp(m.nextCommitCID.Add(1) - 1)

	txn.mu.Lock()
	writes := txn.writeSet
	txn.mu.Unlock()

	for _, w := range writes {
		switch w.role {
		case roleCreated:
			w.header.SetBeginCID(commitCID)
		case roleSuperseded:
			w.header.SetEndCID(commitCID)
		}
	}
	for _, w := range writes {
		w.header.CASTxnID(txn.TxnID, InitialTxnID)
	}

	m.advanceMaxCommitted(commitCID)

	m.mu.Lock()
	delete(m.activeTxns, txn.TxnID)
	m.recomputeOldestActiveLocked()
	m.mu.Unlock()

	txn.setResult(ResultSuccess)
	return commitCID, nil
}

// Abort tombstones created versions (txn_id -> INVALID_TXN, making them
// reclaimable) and releases superseded versions back to INITIAL_TXN so
// they remain fully visible, exactly as before the aborted write touched
// them (spec §4.2).
func (m *MVCCManager) Abort(txn *Transaction) {
	txn.mu.Lock()
	writes := txn.writeSet
	txn.writeSet = nil
	txn.mu.Unlock()

	for _, w := range writes {
		switch w.role {
		case roleCreated:
			w.header.CASTxnID(txn.TxnID, InvalidTxnID)
		case roleSuperseded:
			w.header.CASTxnID(txn.TxnID, InitialTxnID)
		}
	}

	m.mu.Lock()
	delete(m.activeTxns, txn.TxnID)
	m.recomputeOldestActiveLocked()
	m.mu.Unlock()

	txn.setResult(ResultFailure)
}

func (m *MVCCManager) advanceMaxCommitted(cid Timestamp) {
	for {
		cur := Timestamp(m.maxCommittedCID.Load())
		if cid <= cur {
			return
		}
		if m.maxCommittedCID.CompareAndSwap(uint64(cur), uint64(cid)) {
			return
		}
	}
}

// MaxCommittedCID is a monotone read of the GC watermark (spec §4.2).
func (m *MVCCManager) MaxCommittedCID() Timestamp {
	return Timestamp(m.maxCommittedCID.Load())
}

// OldestActiveSnapshotCID returns the snapshot cid of the oldest active
// transaction, or the current commit cid if none are active. GC (spec
// §4.6) may only recycle versions whose end_cid is strictly below this.
func (m *MVCCManager) OldestActiveSnapshotCID() Timestamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oldestActive
}

func (m *MVCCManager) recomputeOldestActiveLocked() {
	if len(m.activeTxns) == 0 {
		m.oldestActive = Timestamp(m.nextCommitCID.Load())
		return
	}
	oldest := Timestamp(m.nextCommitCID.Load())
	for _, tx := range m.activeTxns {
		if tx.SnapshotCID < oldest {
			oldest = tx.SnapshotCID
		}
	}
	m.oldestActive = oldest
}
