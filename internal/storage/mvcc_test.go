package storage

import (
	"sync"
	"testing"
)

func newTestHeader(txn TxnID) *SlotHeader {
	h := &SlotHeader{}
	h.init(txn)
	return h
}

func TestMVCCBasicTransaction(t *testing.T) {
	mvcc := NewMVCCManager()

	tx := mvcc.Begin(SnapshotIsolation)
	if tx == nil {
		t.Fatal("failed to begin transaction")
	}

	commitTS, err := mvcc.Commit(tx)
	if err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	if commitTS == 0 {
		t.Error("expected non-zero commit timestamp")
	}
	if tx.Result() != ResultSuccess {
		t.Errorf("expected ResultSuccess, got %v", tx.Result())
	}
}

func TestMVCCAbortTransaction(t *testing.T) {
	mvcc := NewMVCCManager()

	tx := mvcc.Begin(SnapshotIsolation)
	mvcc.Abort(tx)

	if tx.Result() != ResultFailure {
		t.Errorf("expected ResultFailure, got %v", tx.Result())
	}
}

func TestMVCCVisibilityOwnWrites(t *testing.T) {
	mvcc := NewMVCCManager()

	tx1 := mvcc.Begin(SnapshotIsolation)
	ptr := ItemPointer{Block: 1, Offset: 0}
	h := newTestHeader(tx1.TxnID)
	mvcc.PerformInsert(tx1, ptr, h)

	if got := mvcc.IsVisible(h, tx1); got != Visible {
		t.Errorf("own uncommitted insert should be visible to itself, got %v", got)
	}

	tx2 := mvcc.Begin(SnapshotIsolation)
	if got := mvcc.IsVisible(h, tx2); got != Invisible {
		t.Errorf("uncommitted insert should not be visible to others, got %v", got)
	}

	if _, err := mvcc.Commit(tx1); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	tx3 := mvcc.Begin(SnapshotIsolation)
	if got := mvcc.IsVisible(h, tx3); got != Visible {
		t.Errorf("committed insert should be visible to a later snapshot, got %v", got)
	}
	if got := mvcc.IsVisible(h, tx2); got != Invisible {
		t.Errorf("committed insert should not be visible to an earlier snapshot, got %v", got)
	}
}

func TestMVCCDeletedRow(t *testing.T) {
	mvcc := NewMVCCManager()

	tx1 := mvcc.Begin(SnapshotIsolation)
	ptr := ItemPointer{Block: 1, Offset: 0}
	h := newTestHeader(tx1.TxnID)
	mvcc.PerformInsert(tx1, ptr, h)
	if _, err := mvcc.Commit(tx1); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	tx2 := mvcc.Begin(SnapshotIsolation)
	if err := mvcc.PerformDelete(tx2, ptr, h); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if got := mvcc.IsVisible(h, tx2); got != Deleted {
		t.Errorf("deleting transaction should see its own delete as DELETED, got %v", got)
	}

	if _, err := mvcc.Commit(tx2); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	tx3 := mvcc.Begin(SnapshotIsolation)
	if got := mvcc.IsVisible(h, tx3); got != Deleted {
		t.Errorf("deleted row should read as DELETED after delete commit, got %v", got)
	}
}

func TestMVCCConcurrentTransactions(t *testing.T) {
	mvcc := NewMVCCManager()

	var wg sync.WaitGroup
	txCount := 100

	for i := 0; i < txCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := mvcc.Begin(SnapshotIsolation)
			mvcc.Commit(tx)
		}()
	}

	wg.Wait()

	mvcc.mu.Lock()
	activeCount := len(mvcc.activeTxns)
	mvcc.mu.Unlock()

	if activeCount != 0 {
		t.Errorf("expected 0 active transactions, got %d", activeCount)
	}
}

func TestMVCCUpdateChain(t *testing.T) {
	mvcc := NewMVCCManager()

	tx1 := mvcc.Begin(SnapshotIsolation)
	ptr1 := ItemPointer{Block: 1, Offset: 0}
	h1 := newTestHeader(tx1.TxnID)
	mvcc.PerformInsert(tx1, ptr1, h1)
	if _, err := mvcc.Commit(tx1); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	tx2 := mvcc.Begin(SnapshotIsolation)
	ptr2 := ItemPointer{Block: 1, Offset: 1}
	h2 := newTestHeader(tx2.TxnID)
	if err := mvcc.PerformUpdate(tx2, ptr2, h2, ptr1, h1); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	h1.SetNextVersion(ptr2)
	h2.SetPrevVersion(ptr1)

	if got := mvcc.IsVisible(h1, tx2); got != Deleted {
		t.Errorf("old version should read DELETED to its own updater, got %v", got)
	}
	if got := mvcc.IsVisible(h2, tx2); got != Visible {
		t.Errorf("new version should be visible to its creator, got %v", got)
	}

	if _, err := mvcc.Commit(tx2); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	tx3 := mvcc.Begin(SnapshotIsolation)
	if got := mvcc.IsVisible(h1, tx3); got != Deleted {
		t.Errorf("superseded version should read DELETED, got %v", got)
	}
	if got := mvcc.IsVisible(h2, tx3); got != Visible {
		t.Errorf("newest version should be visible, got %v", got)
	}
}

func TestMVCCWriteConflict(t *testing.T) {
	mvcc := NewMVCCManager()

	tx1 := mvcc.Begin(SnapshotIsolation)
	ptr := ItemPointer{Block: 1, Offset: 0}
	h := newTestHeader(tx1.TxnID)
	mvcc.PerformInsert(tx1, ptr, h)
	if _, err := mvcc.Commit(tx1); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	txA := mvcc.Begin(SnapshotIsolation)
	txB := mvcc.Begin(SnapshotIsolation)

	if err := mvcc.PerformDelete(txA, ptr, h); err != nil {
		t.Fatalf("txA delete should succeed: %v", err)
	}
	if err := mvcc.PerformDelete(txB, ptr, h); err == nil {
		t.Error("txB should fail to claim an already-locked slot")
	} else if txB.Result() != ResultFailure {
		t.Errorf("txB result should be ResultFailure, got %v", txB.Result())
	}
}

func TestMVCCIsolationLevels(t *testing.T) {
	levels := []IsolationLevel{
		ReadCommitted,
		RepeatableRead,
		SnapshotIsolation,
		Serializable,
	}

	mvcc := NewMVCCManager()

	for _, level := range levels {
		tx := mvcc.Begin(level)
		if tx.IsolationLevel != level {
			t.Errorf("expected isolation level %v, got %v", level, tx.IsolationLevel)
		}
		mvcc.Commit(tx)
	}
}

func TestMVCCGCWatermark(t *testing.T) {
	mvcc := NewMVCCManager()

	tx1 := mvcc.Begin(SnapshotIsolation)
	mvcc.Commit(tx1)

	longRunning := mvcc.Begin(SnapshotIsolation)

	tx2 := mvcc.Begin(SnapshotIsolation)
	mvcc.Commit(tx2)

	if mvcc.OldestActiveSnapshotCID() > longRunning.SnapshotCID {
		t.Errorf("GC watermark must not exceed the oldest active snapshot")
	}

	mvcc.Abort(longRunning)
	tx3 := mvcc.Begin(SnapshotIsolation)
	mvcc.Commit(tx3)

	if mvcc.OldestActiveSnapshotCID() < tx3.SnapshotCID {
		t.Errorf("GC watermark should advance once the long-running reader finishes")
	}
}
