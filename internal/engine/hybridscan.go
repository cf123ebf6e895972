package engine

import (
	"errors"

	"github.com/cmu-db/peloton-sub028/internal/storage"
)

// ErrAborted is returned by Next when the executor's transaction has
// already been marked FAILURE by a conflicting operation (spec §5
// "the executor checks txn.result between tile groups").
var ErrAborted = errors.New("engine: transaction aborted")

// scanState names the states of the per-invocation state machine in spec
// §4.5: "INIT -> (INDEX_DRAIN -> SEQ_SCAN*)* -> EOF | ERROR".
type scanState int

const (
	stateInit scanState = iota
	stateIndexDrain
	stateSeqScan
	stateEOF
	stateError
)

// HybridScanExecutor is the hybrid scan executor (HSE) of spec §4.5: it
// drives the index side and the sequential side of a HybridScanPlan,
// returning one LogicalTile per call to Next until EOF.
type HybridScanExecutor struct {
	plan     *HybridScanPlan
	txn      *storage.Transaction
	mvcc     *storage.MVCCManager
	recycler *storage.Recycler

	state scanState

	indexArmed bool
	seqEnabled bool

	currentTGOffset int
	tgCountSnapshot int

	indexDone   bool
	indexResult []*LogicalTile
	resultIter  int

	boundaryBlock storage.TileGroupID
	haveBoundary  bool
	dedupSet      map[storage.ItemPointer]struct{}
}

// NewHybridScanExecutor constructs an executor and performs the
// mode-dependent initialization of spec §4.5.
func NewHybridScanExecutor(plan *HybridScanPlan, txn *storage.Transaction, mvcc *storage.MVCCManager, recycler *storage.Recycler) *HybridScanExecutor {
	x := &HybridScanExecutor{
		plan:     plan,
		txn:      txn,
		mvcc:     mvcc,
		recycler: recycler,
		state:    stateInit,
		dedupSet: make(map[storage.ItemPointer]struct{}),
	}

	n := plan.Table.TileGroupCount()

	switch plan.Mode {
	case ModeSeq:
		x.currentTGOffset = 0
		x.seqEnabled = true
		x.tgCountSnapshot = n

	case ModeIndex:
		x.currentTGOffset = n
		x.tgCountSnapshot = n
		x.indexArmed = plan.Index != nil
		x.seqEnabled = false

	case ModeHybrid:
		x.tgCountSnapshot = n
		if plan.Index == nil {
			// Degrades to SEQ, matching spec §8 scenario S6
			// ("drop-index then scan ... degrades to mode=SEQ").
			x.currentTGOffset = 0
			x.seqEnabled = true
			break
		}
		p := plan.Index.IndexedTileGroupOffset()
		if p == 0 {
			x.currentTGOffset = 0
			x.seqEnabled = true
			break
		}
		x.currentTGOffset = p
		if tg := plan.Table.TileGroupAt(p - 1); tg != nil {
			x.boundaryBlock = tg.ID
			x.haveBoundary = true
		}
		x.indexArmed = true
		x.seqEnabled = true
	}

	return x
}

// Next returns the next non-empty logical tile, or (nil, nil) at EOF.
func (x *HybridScanExecutor) Next() (*LogicalTile, error) {
	for {
		if x.txn.Result() == storage.ResultFailure {
			x.state = stateError
			return nil, ErrAborted
		}

		if x.indexArmed && !x.indexDone {
			x.state = stateIndexDrain
			if err := x.runIndexSide(); err != nil {
				x.state = stateError
				return nil, err
			}
			x.indexDone = true
		}

		for x.resultIter < len(x.indexResult) {
			tile := x.indexResult[x.resultIter]
			x.resultIter++
			if tile.Empty() {
				continue
			}
			return tile, nil
		}

		if !x.seqEnabled {
			x.state = stateEOF
			return nil, nil
		}

		x.state = stateSeqScan
		tile, err := x.runSeqStep()
		if err != nil {
			x.state = stateError
			return nil, err
		}
		if tile != nil {
			return tile, nil
		}
		if x.currentTGOffset >= x.tgCountSnapshot {
			x.state = stateEOF
			return nil, nil
		}
	}
}

// candidatePointers enumerates the index entries to chain-walk, per the
// plan's key descriptor (spec §4.5.1: "index.scan_range(values, …) or
// index.scan_all() if the predicate has no key columns").
func (x *HybridScanExecutor) candidatePointers() ([]storage.ItemPointer, error) {
	idx := x.plan.Index
	kd := x.plan.KeyDesc
	if kd == nil {
		return idx.ScanAll(), nil
	}
	if kd.Hi == nil {
		return idx.ScanKey(kd.Lo), nil
	}
	return idx.ScanRange(kd.Lo, kd.Hi)
}

// runIndexSide implements spec §4.5.1 in full: chain-walk each candidate
// to its visible version, group by tile group, and materialize logical
// tiles; maintain dedup_set for the hybrid boundary handoff.
func (x *HybridScanExecutor) runIndexSide() error {
	candidates, err := x.candidatePointers()
	if err != nil {
		return err
	}

	byGroup := make(map[storage.TileGroupID][]int)
	groupOrder := make([]storage.TileGroupID, 0)

	for _, ptr := range candidates {
		if x.plan.Mode == ModeHybrid && x.haveBoundary && ptr.Block >= x.boundaryBlock {
			x.dedupSet[ptr] = struct{}{}
		}

		visible, ok, err := x.walkChain(ptr)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, seen := byGroup[visible.Block]; !seen {
			groupOrder = append(groupOrder, visible.Block)
		}
		byGroup[visible.Block] = append(byGroup[visible.Block], int(visible.Offset))
	}

	for _, blockID := range groupOrder {
		tg, ok := x.plan.Table.TileGroupByID(blockID)
		if !ok {
			continue
		}
		positions := byGroup[blockID]
		row, matched := x.applyProjectionFilter(tg, positions)
		if !matched {
			continue
		}
		tile := newLogicalTile(x.plan.Projection)
		tile.addGroup(tg, row)
		x.indexResult = append(x.indexResult, tile)
	}
	return nil
}

// applyProjectionFilter applies the plan predicate to every candidate
// position in a tile group, returning the subset that matches in
// slot-index order (spec §4.5.2's ordering rule applies equally to the
// index side's per-group materialization).
func (x *HybridScanExecutor) applyProjectionFilter(tg *storage.TileGroup, positions []int) ([]int, bool) {
	sortInts(positions)
	rowFn := rowOf(tg, x.plan.Table.Schema())
	var kept []int
	for _, s := range positions {
		if x.plan.Predicate == nil || evaluate(x.plan.Predicate, rowFn(s)).Matches() {
			kept = append(kept, s)
		}
	}
	return kept, len(kept) > 0
}

// walkChain implements the "walk the version chain" loop of spec
// §4.5.1, including the GC handoff: when a slot is garbage (its end_cid
// predates max_committed_cid) and this walker wins the CAS marking it
// INVALID_TXN, it hands the old slot to the recycler — redirecting the
// originating index entry to the successor if there is one (an update),
// or deleting the index entry outright if there isn't (a tombstone with
// nothing left to point readers at). A visited set enforces the "chain
// walk must terminate" invariant (spec §8 property 7).
func (x *HybridScanExecutor) walkChain(start storage.ItemPointer) (storage.ItemPointer, bool, error) {
	ptr := start
	visited := make(map[storage.ItemPointer]bool)

	for {
		if visited[ptr] {
			return storage.ItemPointer{}, false, storage.ErrInternal
		}
		visited[ptr] = true

		header, ok := x.plan.Table.Header(ptr)
		if !ok {
			return storage.ItemPointer{}, false, storage.ErrInternal
		}

		switch x.mvcc.IsVisible(header, x.txn) {
		case storage.Visible:
			if err := x.mvcc.PerformRead(x.txn, ptr, header); err != nil {
				return storage.ItemPointer{}, false, err
			}
			return ptr, true, nil

		default:
			next := header.NextVersion()
			garbage := header.EndCID() < x.mvcc.MaxCommittedCID()

			if next.IsNull() {
				if garbage && header.CASTxnID(storage.InitialTxnID, storage.InvalidTxnID) {
					if x.plan.Index != nil {
						if key, err := x.extractKey(ptr); err == nil {
							x.plan.Index.Delete(key, ptr)
						}
					}
					if x.recycler != nil {
						x.recycler.RecycleSlot(x.plan.Table, ptr.Block, ptr.Offset, x.mvcc.OldestActiveSnapshotCID())
					}
				}
				return storage.ItemPointer{}, false, nil
			}

			if garbage && header.CASTxnID(storage.InitialTxnID, storage.InvalidTxnID) {
				if x.plan.Index != nil {
					key, err := x.extractKey(ptr)
					if err == nil {
						x.plan.Index.Retarget(key, ptr, next)
					}
				}
				if x.recycler != nil {
					x.recycler.RecycleSlot(x.plan.Table, ptr.Block, ptr.Offset, x.mvcc.OldestActiveSnapshotCID())
				}
			}

			ptr = next
		}
	}
}

// extractKey rebuilds the key a garbage slot was originally filed under,
// from its own row values, so walkChain can retarget the right index
// entry. This only runs along the rare GC-handoff path.
func (x *HybridScanExecutor) extractKey(ptr storage.ItemPointer) (storage.Key, error) {
	row, ok := x.plan.Table.Row(ptr)
	if !ok {
		return nil, storage.ErrNotFound
	}
	schema := x.plan.Index.Schema()
	values := make([]any, len(schema.ColumnIndexes))
	for i, col := range schema.ColumnIndexes {
		values[i] = row[col]
	}
	return storage.BuildKey(schema, values)
}

// runSeqStep implements spec §4.5.2, processing exactly one tile group
// per call so Next's outer loop can interleave with the index side's
// already-buffered output.
func (x *HybridScanExecutor) runSeqStep() (*LogicalTile, error) {
	if x.currentTGOffset >= x.tgCountSnapshot {
		return nil, nil
	}

	offset := x.currentTGOffset
	x.currentTGOffset++

	tg := x.plan.Table.TileGroupAt(offset)
	if tg == nil {
		return nil, nil
	}

	var upperBound storage.TileGroupID
	for ptr := range x.dedupSet {
		if ptr.Block > upperBound {
			upperBound = ptr.Block
		}
	}

	rowFn := rowOf(tg, x.plan.Table.Schema())

	var positions []int
	n := tg.NextSlot()
	for s := 0; s < n; s++ {
		ptr := storage.ItemPointer{Block: tg.ID, Offset: uint32(s)}
		if x.plan.Mode == ModeHybrid && tg.ID <= upperBound {
			if _, skip := x.dedupSet[ptr]; skip {
				continue
			}
		}

		header := tg.Header(s)
		vis := x.mvcc.IsVisible(header, x.txn)
		if vis == storage.Visible {
			if evaluate(x.plan.Predicate, rowFn(s)).Matches() {
				positions = append(positions, s)
			}
			continue
		}
		if evaluate(x.plan.Predicate, rowFn(s)).Matches() {
			if err := x.mvcc.PerformRead(x.txn, ptr, header); err != nil {
				return nil, err
			}
		}
	}

	if len(positions) == 0 {
		return nil, nil
	}
	tile := newLogicalTile(x.plan.Projection)
	tile.addGroup(tg, positions)
	return tile, nil
}

// rowOf returns a closure materializing the full row for slot s of tg,
// for predicate evaluation (the predicate indexes by schema column, not
// by projected position).
func rowOf(tg *storage.TileGroup, schema *storage.Schema) func(s int) []any {
	return func(s int) []any {
		row := make([]any, len(schema.Columns))
		for c := range row {
			row[c] = tg.Value(s, c)
		}
		return row
	}
}

// sortInts is a tiny insertion sort: position lists are already nearly
// sorted (index scans return pointers grouped, not globally ordered), and
// spec §4.5.2 requires slot-index order within a tile.
func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}
