package storage

import (
	"context"
	"testing"
	"time"
)

func setupBuilderTestTable(t *testing.T) (*Table, *MVCCManager, *KeySchema) {
	t.Helper()
	cfg := DefaultEngineConfig()
	cfg.TileGroupCapacity = 4
	schema := &Schema{Columns: []Column{{Name: "id", Type: IntType}}}
	e := NewEngine(cfg)
	tbl := e.CreateTable(newDatabaseID(), schema)
	keySchema := &KeySchema{ColumnIndexes: []int{0}, ColumnTypes: []ColType{IntType}}
	return tbl, e.MVCC(), keySchema
}

func TestBuilderSupervisorRunsUntilCaughtUp(t *testing.T) {
	tbl, mvcc, keySchema := setupBuilderTestTable(t)

	for i := 0; i < 10; i++ {
		txn := mvcc.Begin(SnapshotIsolation)
		if _, err := tbl.Insert(mvcc, txn, []any{i}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		if _, err := mvcc.Commit(txn); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
	}

	idx := NewOrderedIndex("by_id", SecondaryMulti, keySchema)
	extract := func(values []any) ([]any, error) { return []any{values[0]}, nil }
	builder := NewBuilder(tbl, idx, mvcc, extract, time.Millisecond)

	sup := NewBuilderSupervisor(2)
	sup.Register("by_id", builder)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_ = sup.Run(ctx)

	if got := len(idx.ScanAll()); got != 10 {
		t.Errorf("expected builder to index all 10 rows, got %d", got)
	}
}

func TestBuilderSupervisorUnregister(t *testing.T) {
	tbl, mvcc, keySchema := setupBuilderTestTable(t)
	idx := NewOrderedIndex("by_id", SecondaryMulti, keySchema)
	extract := func(values []any) ([]any, error) { return []any{values[0]}, nil }
	builder := NewBuilder(tbl, idx, mvcc, extract, time.Millisecond)

	sup := NewBuilderSupervisor(1)
	sup.Register("by_id", builder)
	sup.Unregister("by_id")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := sup.Run(ctx); err != nil {
		t.Fatalf("Run with no builders should return nil, got %v", err)
	}
}
