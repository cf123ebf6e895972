package engine

import (
	"testing"

	"github.com/cmu-db/peloton-sub028/internal/storage"
)

func setupScanTestTable(t *testing.T, n int) (*storage.Table, *storage.MVCCManager) {
	t.Helper()
	cfg := storage.DefaultEngineConfig()
	cfg.TileGroupCapacity = 4
	e := storage.NewEngine(cfg)
	schema := &storage.Schema{Columns: []storage.Column{
		{Name: "id", Type: storage.IntType},
	}}
	tbl := e.CreateTable(storage.DatabaseID{}, schema)
	mvcc := e.MVCC()

	for i := 1; i <= n; i++ {
		txn := mvcc.Begin(storage.SnapshotIsolation)
		if _, err := tbl.Insert(mvcc, txn, []any{i}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if _, err := mvcc.Commit(txn); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	return tbl, mvcc
}

func idKeySchema() *storage.KeySchema {
	return &storage.KeySchema{ColumnIndexes: []int{0}, ColumnTypes: []storage.ColType{storage.IntType}}
}

func extractID(values []any) ([]any, error) { return []any{values[0]}, nil }

func collectIDs(t *testing.T, exec *HybridScanExecutor) []int {
	t.Helper()
	var out []int
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
				out = append(out, tile.Value(g, r, 0).(int))
			}
		}
	}
	return out
}

func buildFully(t *testing.T, tbl *storage.Table, idx storage.Index, mvcc *storage.MVCCManager) {
	t.Helper()
	b := storage.NewBuilder(tbl, idx, mvcc, extractID, 0)
	for {
		advanced, err := b.BuildOneTileGroup()
		if err != nil {
			t.Fatalf("build step: %v", err)
		}
		if !advanced {
			return
		}
	}
}

// TestHybridScanSeqMode covers scenario S1: a plain sequential scan with
// no index sees every committed row regardless of an index's progress.
func TestHybridScanSeqMode(t *testing.T) {
	tbl, mvcc := setupScanTestTable(t, 10)

	txn := mvcc.Begin(storage.SnapshotIsolation)
	defer mvcc.Commit(txn)

	plan := &HybridScanPlan{
		Table:      tbl,
		Mode:       ModeSeq,
		Projection: []ColumnDescriptor{{Name: "id", Index: 0}},
	}
	exec := NewHybridScanExecutor(plan, txn, mvcc, nil)
	ids := collectIDs(t, exec)
	if len(ids) != 10 {
		t.Fatalf("expected 10 rows, got %d: %v", len(ids), ids)
	}
}

// TestHybridScanIndexMode covers a point lookup via a fully-built index
// (INDEX mode never touches the sequential side).
func TestHybridScanIndexMode(t *testing.T) {
	tbl, mvcc := setupScanTestTable(t, 10)
	idx := tbl.AddIndex("by_id", storage.SecondaryMulti, idKeySchema(), extractID)
	buildFully(t, tbl, idx, mvcc)

	txn := mvcc.Begin(storage.SnapshotIsolation)
	defer mvcc.Commit(txn)

	key, _ := storage.BuildKey(idKeySchema(), []any{7})
	plan := &HybridScanPlan{
		Table:      tbl,
		Index:      idx,
		Mode:       ModeIndex,
		Projection: []ColumnDescriptor{{Name: "id", Index: 0}},
		KeyDesc:    &KeyDescriptor{Lo: key},
	}
	exec := NewHybridScanExecutor(plan, txn, mvcc, nil)
	ids := collectIDs(t, exec)
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("expected [7], got %v", ids)
	}
}

// TestHybridScanModeAgreement covers spec §8's core claim: SEQ and
// HYBRID scans over the same committed data return the same set of rows
// for an equivalent predicate, even when tile groups exist beyond the
// index's indexed prefix.
func TestHybridScanModeAgreement(t *testing.T) {
	tbl, mvcc := setupScanTestTable(t, 20)
	idx := tbl.AddIndex("by_id", storage.SecondaryMulti, idKeySchema(), extractID)
	buildFully(t, tbl, idx, mvcc)

	// Insert more rows after the index has fully caught up, so HYBRID
	// mode's boundary handoff (index side up to the indexed prefix, seq
	// side for everything newer) has real work to do.
	for i := 21; i <= 24; i++ {
		txn := mvcc.Begin(storage.SnapshotIsolation)
		if _, err := tbl.Insert(mvcc, txn, []any{i}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if _, err := mvcc.Commit(txn); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	run := func(mode ScanMode) []int {
		txn := mvcc.Begin(storage.SnapshotIsolation)
		defer mvcc.Commit(txn)
		plan := &HybridScanPlan{
			Table:      tbl,
			Index:      idx,
			Mode:       mode,
			Projection: []ColumnDescriptor{{Name: "id", Index: 0}},
			Predicate: &Comparison{
				Column: 0,
				Op:     OpGE,
				Value:  10,
				Less:   intLess,
			},
		}
		ids := collectIDs(t, NewHybridScanExecutor(plan, txn, mvcc, nil))
		sortIntsForTest(ids)
		return ids
	}

	seq := run(ModeSeq)
	hybrid := run(ModeHybrid)

	if len(seq) != 15 { // ids 10..24
		t.Fatalf("expected 15 rows from SEQ, got %d: %v", len(seq), seq)
	}
	if !intSlicesEqual(seq, hybrid) {
		t.Fatalf("SEQ and HYBRID disagree: seq=%v hybrid=%v", seq, hybrid)
	}
}

// TestHybridScanDegradesWithoutIndex covers scenario S6: a HYBRID plan
// with no live index (e.g. after drop_index) degrades to a full SEQ scan
// instead of erroring.
func TestHybridScanDegradesWithoutIndex(t *testing.T) {
	tbl, mvcc := setupScanTestTable(t, 6)

	txn := mvcc.Begin(storage.SnapshotIsolation)
	defer mvcc.Commit(txn)

	plan := &HybridScanPlan{
		Table:      tbl,
		Index:      nil,
		Mode:       ModeHybrid,
		Projection: []ColumnDescriptor{{Name: "id", Index: 0}},
	}
	exec := NewHybridScanExecutor(plan, txn, mvcc, nil)
	ids := collectIDs(t, exec)
	if len(ids) != 6 {
		t.Fatalf("expected degraded HYBRID scan to see all 6 rows, got %d: %v", len(ids), ids)
	}
}

// TestHybridScanHybridDegradesWhenIndexEmpty covers the IndexedTileGroupOffset
// == 0 branch of spec §4.5's mode-dependent init: a brand new, unbuilt
// index causes HYBRID to behave exactly like SEQ rather than miss rows.
func TestHybridScanHybridDegradesWhenIndexEmpty(t *testing.T) {
	tbl, mvcc := setupScanTestTable(t, 6)
	idx := tbl.AddIndex("by_id", storage.SecondaryMulti, idKeySchema(), extractID)

	txn := mvcc.Begin(storage.SnapshotIsolation)
	defer mvcc.Commit(txn)

	plan := &HybridScanPlan{
		Table:      tbl,
		Index:      idx,
		Mode:       ModeHybrid,
		Projection: []ColumnDescriptor{{Name: "id", Index: 0}},
	}
	exec := NewHybridScanExecutor(plan, txn, mvcc, nil)
	ids := collectIDs(t, exec)
	if len(ids) != 6 {
		t.Fatalf("expected degraded HYBRID scan to see all 6 rows, got %d: %v", len(ids), ids)
	}
}

func intLess(a, b any) int {
	ai, bi := a.(int), b.(int)
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	default:
		return 0
	}
}

func sortIntsForTest(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

func intSlicesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
