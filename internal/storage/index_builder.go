package storage

import (
	"context"
	"time"
)

// Builder drives a single index from empty to covering every tile group
// in its table, implementing the four-step loop of spec §4.4. One
// Builder is created per index at index-creation time.
type Builder struct {
	table  *Table
	index  Index
	mvcc   *MVCCManager
	keyCol func(values []any) ([]any, error)
	poll   time.Duration
	log    *Logger
}

// NewBuilder constructs a builder for index over table. extract pulls the
// key-schema column values out of a slot's full row values, in schema
// order.
func NewBuilder(table *Table, index Index, mvcc *MVCCManager, extract func(values []any) ([]any, error), poll time.Duration) *Builder {
	return &Builder{
		table:  table,
		index:  index,
		mvcc:   mvcc,
		keyCol: extract,
		poll:   poll,
		log:    NewLogger("ixb"),
	}
}

// Run executes the builder loop until ctx is cancelled, sleeping for
// poll whenever the builder has caught up with the table (spec §4.4 step
// 1: "if k >= n, sleep and retry").
func (b *Builder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		advanced, err := b.BuildOneTileGroup()
		if err != nil {
			b.log.Errorf("build step failed: %v", err)
		}
		if !advanced {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.poll):
			}
		}
	}
}

// BuildOneTileGroup performs exactly one iteration of the §4.4 loop body:
// if the builder has already caught up with the table it reports
// (false, nil); otherwise it indexes every slot of tile group k that
// carries a committed, visible version and advances the indexed prefix
// count by one. Idempotent: calling it again after a crash mid-tile-group
// simply re-scans the same tile group, and a (key, ptr) pair already in
// the index (from that earlier pass or from a writer) is skipped rather
// than inserted twice.
func (b *Builder) BuildOneTileGroup() (bool, error) {
	n := b.table.store.TileGroupCount()
	k := b.index.IndexedTileGroupOffset()
	if k >= n {
		return false, nil
	}

	tg := b.table.store.TileGroupAt(k)
	if tg == nil {
		return false, ErrInternal
	}

	snapshot := b.mvcc.Begin(SnapshotIsolation)
	defer b.mvcc.Abort(snapshot)

	stable := tg.NextSlot()
	for s := 0; s < stable; s++ {
		h := tg.Header(s)
		if h == nil {
			continue
		}
		// Only index slots whose writer has resolved one way or the
		// other (spec §4.4 invariant: "all prior slots ... either
		// committed or aborted").
		owner := h.TxnID()
		if owner != InitialTxnID && owner != InvalidTxnID {
			continue
		}
		if b.mvcc.IsVisible(h, snapshot) != Visible {
			continue
		}

		row := make([]any, len(b.table.schema.Columns))
		for c := range row {
			row[c] = tg.Value(s, c)
		}
		values, err := b.keyCol(row)
		if err != nil {
			return false, err
		}
		key, err := BuildKey(b.index.Schema(), values)
		if err != nil {
			return false, err
		}
		ptr := ItemPointer{Block: tg.ID, Offset: uint32(s)}
		present := false
		for _, p := range b.index.ScanKey(key) {
			if p == ptr {
				present = true
				break
			}
		}
		if present {
			continue
		}
		if err := b.index.Insert(key, ptr); err != nil && err != ErrUniqueViolation {
			return false, err
		}
	}

	b.index.AdvanceIndexedTileGroupOffset()
	return true, nil
}
