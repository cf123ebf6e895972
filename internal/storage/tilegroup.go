package storage

import (
	"sync"
	"sync/atomic"
)

// MaxCID is the sentinel "open end" commit timestamp: a version whose
// EndCID equals MaxCID has not yet been superseded (spec §3).
const MaxCID Timestamp = ^Timestamp(0)

// Sentinel transaction ids carried in a SlotHeader (spec §3 "Slot
// header"): InitialTxnID means "no active writer" and InvalidTxnID means
// "slot is reclaimable dead". Real transaction ids start at 1 and are
// monotonically increasing, so neither sentinel can ever collide with one
// (spec §4.2).
const (
	InitialTxnID TxnID = 0
	InvalidTxnID TxnID = ^TxnID(0)
)

// SlotHeader carries the per-slot MVCC metadata described in spec §3.
// Fields are accessed through atomics because at most one writer holds a
// slot at a time via CAS on TxnID, while many readers walk the header
// concurrently.
type SlotHeader struct {
	txnID   atomic.Uint64 // TxnID: writer's tentative id, or a sentinel
	beginCID atomic.Uint64 // Timestamp
	endCID   atomic.Uint64 // Timestamp

	mu          sync.Mutex  // guards NextVersion/PrevVersion swaps
	nextVersion ItemPointer // newer version of this logical tuple (null if head)
	prevVersion ItemPointer // older version (null if tail)
}

func (h *SlotHeader) init(txn TxnID) {
	h.txnID.Store(uint64(txn))
	h.beginCID.Store(uint64(MaxCID))
	h.endCID.Store(uint64(MaxCID))
	h.mu.Lock()
	h.nextVersion = NullItemPointer
	h.prevVersion = NullItemPointer
	h.mu.Unlock()
}

func (h *SlotHeader) TxnID() TxnID   { return TxnID(h.txnID.Load()) }
func (h *SlotHeader) BeginCID() Timestamp { return Timestamp(h.beginCID.Load()) }
func (h *SlotHeader) EndCID() Timestamp   { return Timestamp(h.endCID.Load()) }

func (h *SlotHeader) SetBeginCID(cid Timestamp) { h.beginCID.Store(uint64(cid)) }
func (h *SlotHeader) SetEndCID(cid Timestamp)   { h.endCID.Store(uint64(cid)) }

// CASTxnID atomically claims or releases the slot, enforcing "at most one
// writer holds a slot at a time" (spec §3 invariant).
func (h *SlotHeader) CASTxnID(old, new TxnID) bool {
	return h.txnID.CompareAndSwap(uint64(old), uint64(new))
}

func (h *SlotHeader) NextVersion() ItemPointer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextVersion
}

func (h *SlotHeader) SetNextVersion(ip ItemPointer) {
	h.mu.Lock()
	h.nextVersion = ip
	h.mu.Unlock()
}

func (h *SlotHeader) PrevVersion() ItemPointer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prevVersion
}

func (h *SlotHeader) SetPrevVersion(ip ItemPointer) {
	h.mu.Lock()
	h.prevVersion = ip
	h.mu.Unlock()
}

// TileGroup is an ordered sequence of up to Capacity slots (spec §3). It
// carries its own per-slot MVCC headers and typed column value arrays.
// Slot indices below NextSlot are allocated once and never freed; the
// TileGroup's ID is never reused.
type TileGroup struct {
	ID         TileGroupID
	TableID    TableID
	DatabaseID DatabaseID
	Capacity   int

	schema *Schema

	mu      sync.RWMutex
	headers []*SlotHeader
	columns [][]any // columns[col][slot]
	nextSlot int
}

func newTileGroup(id TileGroupID, tableID TableID, dbID DatabaseID, schema *Schema, capacity int) *TileGroup {
	cols := make([][]any, len(schema.Columns))
	for i := range cols {
		cols[i] = make([]any, capacity)
	}
	return &TileGroup{
		ID:         id,
		TableID:    tableID,
		DatabaseID: dbID,
		Capacity:   capacity,
		schema:     schema,
		headers:    make([]*SlotHeader, capacity),
		columns:    cols,
	}
}

// NextSlot returns the number of slots ever allocated in this tile group.
func (tg *TileGroup) NextSlot() int {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	return tg.nextSlot
}

// Header returns the slot header for offset. Offset must be < NextSlot().
func (tg *TileGroup) Header(offset int) *SlotHeader {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	return tg.headers[offset]
}

// SetValues writes a tuple's column values into slot offset. Writes to a
// slot's value columns happen-before the CAS that publishes TxnID (spec
// §5 ordering guarantee), so callers must call this after AllocateSlot
// and before the writing transaction commits, while the slot's TxnID
// still names the writer and readers treat it as invisible.
func (tg *TileGroup) SetValues(offset int, values []any) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	for col := range tg.columns {
		if col < len(values) {
			tg.columns[col][offset] = values[col]
		}
	}
}

// Value returns the value of column col at slot offset.
func (tg *TileGroup) Value(offset, col int) any {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	return tg.columns[col][offset]
}

// tryAllocate claims the next free slot in this tile group, or reports
// false if the tile group is full. It only bumps an integer cursor under
// the tile group's own lock, never touching already-allocated slots.
func (tg *TileGroup) tryAllocate(txn TxnID) (int, *SlotHeader, bool) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.nextSlot >= tg.Capacity {
		return 0, nil, false
	}
	offset := tg.nextSlot
	tg.nextSlot++
	h := &SlotHeader{}
	h.init(txn)
	tg.headers[offset] = h
	return offset, h, true
}

// TileGroupStore is the append-only sequence of fixed-capacity tile
// groups described by spec §4.1: installing a new tile group is a single
// append under the store's lock, readers snapshot the slice length, and
// tile-group lookup by id is O(1) via a process-wide map.
type TileGroupStore struct {
	config   EngineConfig
	schema   *Schema
	tableID  TableID
	dbID     DatabaseID
	ids      *idGenerator

	mu     sync.RWMutex
	groups []*TileGroup

	byID sync.Map // TileGroupID -> *TileGroup
}

func newTileGroupStore(cfg EngineConfig, schema *Schema, tableID TableID, dbID DatabaseID, ids *idGenerator) *TileGroupStore {
	return &TileGroupStore{config: cfg, schema: schema, tableID: tableID, dbID: dbID, ids: ids}
}

// TileGroupCount returns the number of tile groups allocated so far.
// Readers use this to snapshot the table's length at scan-start time
// (spec §5 "Tile-group vector: append-only; readers snapshot length").
func (s *TileGroupStore) TileGroupCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups)
}

// TileGroupAt returns the k-th tile group by allocation order.
func (s *TileGroupStore) TileGroupAt(offset int) *TileGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 || offset >= len(s.groups) {
		return nil
	}
	return s.groups[offset]
}

// TileGroupByID is the O(1) id->tile-group lookup required by spec §4.1.
func (s *TileGroupStore) TileGroupByID(id TileGroupID) (*TileGroup, bool) {
	v, ok := s.byID.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*TileGroup), true
}

// AllocateSlot atomically claims the next slot in the active tile group,
// installing a fresh tile group and retrying if the active one is full.
// Returns ErrStorageFull only when the configured table-size bound is
// exceeded (spec §4.1).
func (s *TileGroupStore) AllocateSlot(txn TxnID) (ItemPointer, *SlotHeader, error) {
	for {
		active := s.activeTileGroup()
		if active != nil {
			if offset, h, ok := active.tryAllocate(txn); ok {
				return ItemPointer{Block: active.ID, Offset: uint32(offset)}, h, nil
			}
		}
		if err := s.installTileGroup(); err != nil {
			return ItemPointer{}, nil, err
		}
	}
}

func (s *TileGroupStore) activeTileGroup() *TileGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.groups) == 0 {
		return nil
	}
	return s.groups[len(s.groups)-1]
}

func (s *TileGroupStore) installTileGroup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have already installed a non-full tile group
	// while we were waiting for the lock.
	if len(s.groups) > 0 {
		last := s.groups[len(s.groups)-1]
		if last.NextSlot() < last.Capacity {
			return nil
		}
	}

	if s.config.MaxTileGroups > 0 && len(s.groups) >= s.config.MaxTileGroups {
		return ErrStorageFull
	}

	id := s.ids.allocateTileGroupID()
	tg := newTileGroup(id, s.tableID, s.dbID, s.schema, s.config.TileGroupCapacity)
	s.groups = append(s.groups, tg)
	s.byID.Store(id, tg)
	return nil
}
