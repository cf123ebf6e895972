package engine

import (
	"testing"

	"github.com/cmu-db/peloton-sub028/internal/storage"
)

// TestHybridScanGCHandoffWalksChainAndRecycles covers spec §8 scenarios
// S2/S5 and the "GC handoff" half of §4.5.1/§4.6 end to end: a row
// updated several times leaves its index entry pointing at the original,
// now-superseded version (indexUpdate never retargets an unchanged key
// at write time); a scan must walk the physical version chain to the
// current value, and — once a version's end_cid is behind
// max_committed_cid — hand each stale slot it passes through to a real
// *storage.Recycler rather than leaving it to leak.
func TestHybridScanGCHandoffWalksChainAndRecycles(t *testing.T) {
	cfg := storage.DefaultEngineConfig()
	cfg.TileGroupCapacity = 4
	e := storage.NewEngine(cfg)
	schema := &storage.Schema{Columns: []storage.Column{
		{Name: "id", Type: storage.IntType},
		{Name: "value", Type: storage.StringType},
	}}
	tbl := e.CreateTable(storage.DatabaseID{}, schema)
	mvcc := e.MVCC()
	keySchema := idKeySchema()
	idx := tbl.AddIndex("pk", storage.PrimaryUnique, keySchema, extractID)

	txn0 := mvcc.Begin(storage.SnapshotIsolation)
	origPtr, err := tbl.Insert(mvcc, txn0, []any{1, "v0"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := mvcc.Commit(txn0); err != nil {
		t.Fatalf("commit insert: %v", err)
	}

	ptr := origPtr
	for _, v := range []string{"v1", "v2", "v3"} {
		txn := mvcc.Begin(storage.SnapshotIsolation)
		next, err := tbl.Update(mvcc, txn, ptr, []any{1, v})
		if err != nil {
			t.Fatalf("update to %s: %v", v, err)
		}
		if _, err := mvcc.Commit(txn); err != nil {
			t.Fatalf("commit update to %s: %v", v, err)
		}
		ptr = next
	}
	finalPtr := ptr

	// The index never moved: it still names the very first version, and
	// the chain walk is the only thing that can reach the current head.
	key, _ := storage.BuildKey(keySchema, []any{1})
	if ptrs := idx.ScanKey(key); len(ptrs) != 1 || ptrs[0] != origPtr {
		t.Fatalf("expected the index to still carry only the original pointer %v, got %v", origPtr, ptrs)
	}

	recycler := storage.NewRecycler(mvcc, 16)

	readTxn := mvcc.Begin(storage.SnapshotIsolation)
	plan := &HybridScanPlan{
		Table:      tbl,
		Index:      idx,
		Mode:       ModeIndex,
		Projection: []ColumnDescriptor{{Name: "id", Index: 0}, {Name: "value", Index: 1}},
		KeyDesc:    &KeyDescriptor{Lo: key},
	}
	exec := NewHybridScanExecutor(plan, readTxn, mvcc, recycler)

	var values []string
	for {
		tile, err := exec.Next()
		if err != nil {
			t.Fatalf("scan error: %v", err)
		}
		if tile == nil {
			break
		}
		for g := range tile.PositionLists {
			for r := range tile.PositionLists[g] {
				values = append(values, tile.Value(g, r, 1).(string))
			}
		}
	}

	if len(values) != 1 || values[0] != "v3" {
		t.Fatalf("expected exactly one row with value v3 (no duplicates from stale chain entries), got %v", values)
	}

	// The two superseded slots (v0 and v1 — both with end_cid behind the
	// final commit's max_committed_cid) must have been claimed for GC
	// during the walk; the still-live head (v3) must not have been.
	origHeader, ok := tbl.Header(origPtr)
	if !ok {
		t.Fatalf("expected original header to exist")
	}
	if origHeader.TxnID() != storage.InvalidTxnID {
		t.Fatalf("expected the original version to be claimed for GC, got txn_id=%v", origHeader.TxnID())
	}
	finalHeader, ok := tbl.Header(finalPtr)
	if !ok {
		t.Fatalf("expected final header to exist")
	}
	if finalHeader.TxnID() == storage.InvalidTxnID {
		t.Fatalf("the still-visible head must not be claimed for GC")
	}

	if n := recycler.Pending(); n == 0 {
		t.Fatalf("expected the GC handoff to have queued at least one stale slot, got 0 pending")
	}

	reclaimed := recycler.Sweep()
	if reclaimed == 0 {
		t.Fatalf("expected Sweep to reclaim at least one slot once the scanning transaction is the oldest active snapshot")
	}

	if _, err := mvcc.Commit(readTxn); err != nil {
		t.Fatalf("commit read txn: %v", err)
	}
}
