// hybridscandemo exercises the whole core end to end: it creates a
// table, inserts rows, builds a secondary index over them online with the
// background builder, then runs SEQ, INDEX, and HYBRID scans against the
// same data to show they agree.
package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cmu-db/peloton-sub028/internal/engine"
	"github.com/cmu-db/peloton-sub028/internal/storage"
)

func main() {
	fmt.Println("=== Hybrid scan executor demo ===")

	cfg := storage.DefaultEngineConfig()
	cfg.TileGroupCapacity = 4
	e := storage.NewEngine(cfg)

	schema := &storage.Schema{Columns: []storage.Column{
		{Name: "id", Type: storage.IntType},
		{Name: "value", Type: storage.StringType},
	}}
	tbl := e.CreateTable(newDemoDBID(), schema)

	fmt.Println("\n1. Inserting rows 1..12 across three tile groups...")
	mvcc := e.MVCC()
	for i := 1; i <= 12; i++ {
		txn := mvcc.Begin(storage.SnapshotIsolation)
		if _, err := tbl.Insert(mvcc, txn, []any{i, fmt.Sprintf("row-%d", i)}); err != nil {
			fmt.Printf("insert %d failed: %v\n", i, err)
			continue
		}
		if _, err := mvcc.Commit(txn); err != nil {
			fmt.Printf("commit %d failed: %v\n", i, err)
		}
	}

	keySchema := &storage.KeySchema{ColumnIndexes: []int{0}, ColumnTypes: []storage.ColType{storage.IntType}}
	extract := func(values []any) ([]any, error) { return []any{values[0]}, nil }
	idx := tbl.AddIndex("by_id", storage.SecondaryMulti, keySchema, extract)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("2. Bringing the index up to date with the builder, in the background...")
	e.StartBuilder(ctx, tbl, idx, extract)
	e.StartGC(ctx)
	for idx.IndexedTileGroupOffset() < tbl.TileGroupCount() {
		time.Sleep(time.Millisecond)
	}
	fmt.Printf("   indexed prefix now covers %d tile groups\n", idx.IndexedTileGroupOffset())

	fmt.Println("\n3. Running a SEQ scan for id >= 5...")
	runScan(tbl, mvcc, e.Recycler(), idx, keySchema, engine.ModeSeq)

	fmt.Println("\n4. Running an INDEX scan for id >= 5...")
	runScan(tbl, mvcc, e.Recycler(), idx, keySchema, engine.ModeIndex)

	fmt.Println("\n5. Running a HYBRID scan for id >= 5...")
	runScan(tbl, mvcc, e.Recycler(), idx, keySchema, engine.ModeHybrid)

	fmt.Println("\n=== Demo complete ===")
}

func runScan(tbl *storage.Table, mvcc *storage.MVCCManager, recycler *storage.Recycler, idx storage.Index, keySchema *storage.KeySchema, mode engine.ScanMode) {
	txn := mvcc.Begin(storage.SnapshotIsolation)
	defer mvcc.Commit(txn)

	lo, _ := storage.BuildKey(keySchema, []any{5})
	hi, _ := storage.BuildKey(keySchema, []any{math.MaxInt})
	plan := &engine.HybridScanPlan{
		Table: tbl,
		Index: idx,
		Mode:  mode,
		Projection: []engine.ColumnDescriptor{
			{Name: "id", Index: 0},
			{Name: "value", Index: 1},
		},
		KeyDesc: &engine.KeyDescriptor{Lo: lo, Hi: hi},
		Predicate: &engine.Comparison{
			Column: 0,
			Op:     engine.OpGE,
			Value:  5,
			Less:   intCompare,
		},
	}

	exec := engine.NewHybridScanExecutor(plan, txn, mvcc, recycler)
	count := 0
	for {
		tile, err := exec.Next()
		if err != nil {
			fmt.Printf("   scan error: %v\n", err)
			return
		}
		if tile == nil {
			break
		}
		for g := range tile.PositionLists {
			for r := range tile.PositionLists[g] {
				id := tile.Value(g, r, 0)
				val := tile.Value(g, r, 1)
				fmt.Printf("   id=%v value=%v\n", id, val)
				count++
			}
		}
	}
	fmt.Printf("   %d rows\n", count)
}

func intCompare(a, b any) int {
	ai, _ := a.(int)
	bi, _ := b.(int)
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	default:
		return 0
	}
}

func newDemoDBID() storage.DatabaseID {
	e := storage.NewEngine(storage.DefaultEngineConfig())
	t := e.CreateTable(storage.DatabaseID{}, &storage.Schema{})
	return t.DBID
}
