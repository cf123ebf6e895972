package storage

import (
	"context"
	"sync"
)

// indexEntry pairs a live Index with the extraction function used to
// build its keys from a full row (spec §4.3/§4.4: the builder and the
// insert path both need to turn a row into that index's key).
type indexEntry struct {
	index   Index
	extract func(values []any) ([]any, error)
}

// Table owns one tile-group store plus zero or more indexes (spec §3
// "Table"). It is the unit the Table API in spec §6 operates on:
// create_table/add_index/drop_index/insert/update/delete.
type Table struct {
	ID     TableID
	DBID   DatabaseID
	schema *Schema
	store  *TileGroupStore

	mu      sync.RWMutex
	indexes map[string]*indexEntry
}

// Engine is the top-level value a caller constructs: it owns the process
// id/timestamp counters, the MVCC coordinator, and the table registry
// (spec §9 "Design Notes: Global state" — "Model them as atomically
// updated fields of an engine value passed by reference").
type Engine struct {
	config   EngineConfig
	ids      *idGenerator
	mvcc     *MVCCManager
	builders *BuilderSupervisor
	gc       *Recycler

	mu     sync.RWMutex
	tables map[TableID]*Table
}

// NewEngine constructs an empty Engine with the given configuration. The
// builder supervisor and recycler are created alongside the MVCC
// coordinator but only start doing background work once StartBuilder or
// StartGC is called.
func NewEngine(config EngineConfig) *Engine {
	mvcc := NewMVCCManager()
	return &Engine{
		config:   config,
		ids:      &idGenerator{},
		mvcc:     mvcc,
		builders: NewBuilderSupervisor(config.BuilderWorkers),
		gc:       NewRecycler(mvcc, config.GCQueueSize),
		tables:   make(map[TableID]*Table),
	}
}

func (e *Engine) MVCC() *MVCCManager { return e.mvcc }

// Recycler returns the engine's garbage collector, so the hybrid scan
// executor's GC handoff (spec §4.5.1) has somewhere to hand dead slots
// off to.
func (e *Engine) Recycler() *Recycler { return e.gc }

// StartBuilder brings idx up to date in the background: it wraps table,
// idx, and extract in a Builder and starts it on its own goroutine via
// the engine's BuilderSupervisor.LaunchOne, bounded by
// EngineConfig.BuilderWorkers; errors are logged, not returned. Safe to
// call once per index, any time after AddIndex; does not block.
func (e *Engine) StartBuilder(ctx context.Context, table *Table, idx Index, extract func(values []any) ([]any, error)) {
	b := NewBuilder(table, idx, e.mvcc, extract, e.config.BuilderPollInterval)
	e.builders.LaunchOne(ctx, idx.Name(), b)
}

// StartGC launches the engine's recycler sweep loop in the background,
// polling every EngineConfig.GCSweepInterval (spec §4.6). Does not block.
func (e *Engine) StartGC(ctx context.Context) {
	go func() {
		if err := e.gc.Run(ctx, e.config.GCSweepInterval); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
			e.gc.log.Errorf("gc sweep loop stopped: %v", err)
		}
	}()
}

// CreateTable implements create_table(schema) -> table (spec §6).
func (e *Engine) CreateTable(dbID DatabaseID, schema *Schema) *Table {
	id := newTableID()
	t := &Table{
		ID:      id,
		DBID:    dbID,
		schema:  schema,
		store:   newTileGroupStore(e.config, schema, id, dbID, e.ids),
		indexes: make(map[string]*indexEntry),
	}
	e.mu.Lock()
	e.tables[id] = t
	e.mu.Unlock()
	return t
}

// Table looks up a previously created table by id.
func (e *Engine) Table(id TableID) (*Table, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[id]
	return t, ok
}

// DropTable removes a table from the registry. Existing *Table values held
// by callers remain valid; only new lookups by id are affected.
func (e *Engine) DropTable(id TableID) {
	e.mu.Lock()
	delete(e.tables, id)
	e.mu.Unlock()
}

func (t *Table) Schema() *Schema { return t.schema }

// AddIndex implements add_index(table, kind, key_schema) (spec §6). The
// extract function projects a full row's values down to the index's key
// columns, in key-schema order; a freshly added index starts empty, with
// IndexedTileGroupOffset() == 0, ready for a Builder to bring it up to
// date (spec §4.4).
func (t *Table) AddIndex(name string, kind IndexKind, keySchema *KeySchema, extract func(values []any) ([]any, error)) Index {
	var idx Index
	if kind.ordered() {
		idx = NewOrderedIndex(name, kind, keySchema)
	} else {
		idx = NewHashIndex(name, kind, keySchema)
	}
	t.mu.Lock()
	t.indexes[name] = &indexEntry{index: idx, extract: extract}
	t.mu.Unlock()
	return idx
}

// DropIndex implements drop_index(table, index_id) (spec §6). After this
// call, a HybridScanPlan referencing the dropped index by name must
// degrade to SEQ mode (spec §8 scenario S6); callers are responsible for
// checking Index(name) before building a plan.
func (t *Table) DropIndex(name string) {
	t.mu.Lock()
	delete(t.indexes, name)
	t.mu.Unlock()
}

// Index returns a previously added index by name, or (nil, false) if it
// does not exist (including after DropIndex).
func (t *Table) Index(name string) (Index, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.indexes[name]
	if !ok {
		return nil, false
	}
	return e.index, true
}

// Indexes returns every live index on the table, for the hybrid scan
// executor's INDEX/HYBRID mode setup and for the builder supervisor.
func (t *Table) Indexes() []Index {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Index, 0, len(t.indexes))
	for _, e := range t.indexes {
		out = append(out, e.index)
	}
	return out
}

// Insert implements insert(txn, table, tuple) (spec §6): it allocates a
// fresh slot, writes the values, claims it for txn via PerformInsert, and
// maintains every live index immediately (not waiting for the builder),
// since a freshly inserted tuple must be observable through an already
// fully-built index without delay.
func (t *Table) Insert(mvcc *MVCCManager, txn *Transaction, values []any) (ItemPointer, error) {
	ptr, h, err := t.store.AllocateSlot(txn.TxnID)
	if err != nil {
		return ItemPointer{}, err
	}
	tg, _ := t.store.TileGroupByID(ptr.Block)
	tg.SetValues(int(ptr.Offset), values)

	mvcc.PerformInsert(txn, ptr, h)

	if err := t.indexInsert(mvcc, txn, ptr, values); err != nil {
		return ItemPointer{}, err
	}
	return ptr, nil
}

// Update implements update(txn, table, item_pointer, tuple): allocate a
// new version, link the chain, claim the old slot for supersession, and
// maintain indexes via indexUpdate (which adds an entry only for a key
// whose value changed).
func (t *Table) Update(mvcc *MVCCManager, txn *Transaction, oldPtr ItemPointer, newValues []any) (ItemPointer, error) {
	oldTG, ok := t.store.TileGroupByID(oldPtr.Block)
	if !ok {
		return ItemPointer{}, ErrNotFound
	}
	oldHeader := oldTG.Header(int(oldPtr.Offset))
	oldValues := make([]any, len(t.schema.Columns))
	for c := range oldValues {
		oldValues[c] = oldTG.Value(int(oldPtr.Offset), c)
	}

	newPtr, newHeader, err := t.store.AllocateSlot(txn.TxnID)
	if err != nil {
		return ItemPointer{}, err
	}
	newTG, _ := t.store.TileGroupByID(newPtr.Block)
	newTG.SetValues(int(newPtr.Offset), newValues)

	if err := mvcc.PerformUpdate(txn, newPtr, newHeader, oldPtr, oldHeader); err != nil {
		return ItemPointer{}, err
	}

	oldHeader.SetNextVersion(newPtr)
	newHeader.SetPrevVersion(oldPtr)

	if err := t.indexUpdate(mvcc, txn, oldPtr, oldValues, newPtr, newValues); err != nil {
		return ItemPointer{}, err
	}
	return newPtr, nil
}

// Delete implements delete(txn, table, item_pointer): claims the slot as
// a tombstone (no replacement version). The index entry pointing at ptr is
// left in place — concurrent readers with an older snapshot still need it
// to find this version — and is cleaned up once it is no longer reachable
// by any snapshot: the hybrid scan executor's chain walk ends its walk on
// a tombstone the same way it ends on a stale mid-chain version, deleting
// the index entry and handing the slot to the recycler (spec §4.5.1).
func (t *Table) Delete(mvcc *MVCCManager, txn *Transaction, ptr ItemPointer) error {
	tg, ok := t.store.TileGroupByID(ptr.Block)
	if !ok {
		return ErrNotFound
	}
	h := tg.Header(int(ptr.Offset))
	return mvcc.PerformDelete(txn, ptr, h)
}

// indexInsert maintains every live index for a freshly written version.
// It uses ConditionalInsert rather than a blind Insert because the same
// key may already carry a stale pointer — a deleted row whose tombstone
// the chain walk hasn't reclaimed yet — and the uniqueness test must look
// past those to MVCC visibility instead of rejecting on mere presence
// (spec §4.3's "conditional insert"; without this a reinsert under a
// primary-unique key whose previous row was deleted would fail with a
// spurious unique violation).
func (t *Table) indexInsert(mvcc *MVCCManager, txn *Transaction, ptr ItemPointer, values []any) error {
	t.mu.RLock()
	entries := make([]*indexEntry, 0, len(t.indexes))
	for _, e := range t.indexes {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	liveElsewhere := func(existing ItemPointer) bool {
		if existing == ptr {
			return true
		}
		h, ok := t.Header(existing)
		if !ok {
			return true
		}
		return mvcc.IsVisible(h, txn) != Visible
	}

	for _, e := range entries {
		keyValues, err := e.extract(values)
		if err != nil {
			return err
		}
		key, err := BuildKey(e.index.Schema(), keyValues)
		if err != nil {
			return err
		}
		if err := e.index.ConditionalInsert(key, ptr, liveElsewhere); err != nil {
			return err
		}
	}
	return nil
}

// indexUpdate maintains every live index across a version swap. It
// deliberately does NOT retarget an unchanged key's entry to newPtr: the
// physical version chain (oldHeader.next_version, set by the caller just
// before this runs) already makes newPtr reachable from whatever entry
// currently indexes this row, and the hybrid scan executor's walkChain is
// what lazily retargets an index entry once the version it names becomes
// garbage (spec §4.5.1 "the GC handoff"). Doing that eagerly here on
// every update — via a second ConditionalInsert under the same key —
// would leave one live pointer per historical version of the row behind
// in a unique index, which runIndexSide's chain walk would then resolve
// to the same visible row from several different candidates, duplicating
// it in the scan output.
//
// Only when the update changes an indexed column's value does the index
// need new write-time work: nothing currently indexes newKey, so a fresh
// entry must be inserted under it. The stale entry under oldKey is left
// alone — an older snapshot may still need it to find this version — and
// is reclaimed the same way any other stale entry is, via walkChain.
func (t *Table) indexUpdate(mvcc *MVCCManager, txn *Transaction, oldPtr ItemPointer, oldValues []any, newPtr ItemPointer, newValues []any) error {
	t.mu.RLock()
	entries := make([]*indexEntry, 0, len(t.indexes))
	for _, e := range t.indexes {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	liveElsewhere := func(existing ItemPointer) bool {
		if existing == newPtr || existing == oldPtr {
			return true
		}
		h, ok := t.Header(existing)
		if !ok {
			return true
		}
		return mvcc.IsVisible(h, txn) != Visible
	}

	for _, e := range entries {
		oldKeyValues, err := e.extract(oldValues)
		if err != nil {
			return err
		}
		oldKey, err := BuildKey(e.index.Schema(), oldKeyValues)
		if err != nil {
			return err
		}
		newKeyValues, err := e.extract(newValues)
		if err != nil {
			return err
		}
		newKey, err := BuildKey(e.index.Schema(), newKeyValues)
		if err != nil {
			return err
		}

		if oldKey.Equal(newKey) {
			continue
		}

		if err := e.index.ConditionalInsert(newKey, newPtr, liveElsewhere); err != nil {
			return err
		}
	}
	return nil
}

// reclaimSlot implements the storage side of recycle_slot: it verifies
// the slot is still marked InvalidTxnID (dead) and returns whether it was
// eligible. Tile groups never shrink and AllocateSlot never reuses a slot
// (slots below NextSlot are allocated once and never freed), so a
// reclaimed slot's header and column values stay in place.
func (t *Table) reclaimSlot(block TileGroupID, offset uint32) bool {
	tg, ok := t.store.TileGroupByID(block)
	if !ok {
		return false
	}
	h := tg.Header(int(offset))
	if h == nil {
		return false
	}
	return h.TxnID() == InvalidTxnID
}

// Row reads the full column values at ptr without any visibility check;
// callers (the hybrid scan executor) are responsible for calling
// MVCCManager.IsVisible first.
func (t *Table) Row(ptr ItemPointer) ([]any, bool) {
	tg, ok := t.store.TileGroupByID(ptr.Block)
	if !ok {
		return nil, false
	}
	row := make([]any, len(t.schema.Columns))
	for c := range row {
		row[c] = tg.Value(int(ptr.Offset), c)
	}
	return row, true
}

// Header returns the slot header at ptr, used by the chain-walk and GC
// handoff logic in the hybrid scan executor.
func (t *Table) Header(ptr ItemPointer) (*SlotHeader, bool) {
	tg, ok := t.store.TileGroupByID(ptr.Block)
	if !ok {
		return nil, false
	}
	return tg.Header(int(ptr.Offset)), true
}

// TileGroupCount and TileGroupAt expose the underlying store to the
// hybrid scan executor's sequential side.
func (t *Table) TileGroupCount() int            { return t.store.TileGroupCount() }
func (t *Table) TileGroupAt(offset int) *TileGroup { return t.store.TileGroupAt(offset) }
func (t *Table) TileGroupByID(id TileGroupID) (*TileGroup, bool) {
	return t.store.TileGroupByID(id)
}
