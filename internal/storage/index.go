package storage

// IndexKind enumerates the four index flavors named in spec §3/§4.3:
// ordered indexes support range scans, hash indexes only point lookups;
// unique kinds reject a second live entry under an equal key.
type IndexKind int

const (
	PrimaryUnique IndexKind = iota
	SecondaryMulti
	HashUnique
	HashMulti
)

func (k IndexKind) String() string {
	switch k {
	case PrimaryUnique:
		return "PRIMARY_UNIQUE"
	case SecondaryMulti:
		return "SECONDARY_MULTI"
	case HashUnique:
		return "HASH_UNIQUE"
	case HashMulti:
		return "HASH_MULTI"
	default:
		return "UNKNOWN"
	}
}

func (k IndexKind) ordered() bool {
	return k == PrimaryUnique || k == SecondaryMulti
}

func (k IndexKind) unique() bool {
	return k == PrimaryUnique || k == HashUnique
}

// Index is the capability set every index implementation exposes (spec
// §4.3): indexes map a key to one or more ItemPointers, the online index
// builder advances a per-index indexed tile-group offset, and the hybrid
// scan executor walks entries with ScanAll/ScanKey/ScanRange.
type Index interface {
	Name() string
	Kind() IndexKind
	Schema() *KeySchema

	// Insert adds ptr under key. For a unique kind this fails with
	// ErrUniqueViolation if any entry already exists under key, live or
	// not, since Insert has no liveness information; callers that can tell
	// a dead entry from a live one should use ConditionalInsert instead.
	Insert(key Key, ptr ItemPointer) error

	// ConditionalInsert inserts ptr under key. For a unique kind it does so
	// only if check(existing) returns true for every currently stored
	// pointer under key (or if there are none); a non-unique kind inserts
	// without calling check. It's used by the table's insert and update
	// paths, which must verify liveness under a version chain before
	// claiming uniqueness (spec §4.3 "Conditional insert").
	ConditionalInsert(key Key, ptr ItemPointer, check func(existing ItemPointer) bool) error

	// Delete removes exactly one occurrence of ptr stored under key.
	Delete(key Key, ptr ItemPointer) error

	// ScanAll returns every pointer in the index, in key order for ordered
	// kinds and in arbitrary order for hash kinds.
	ScanAll() []ItemPointer

	// ScanKey returns every pointer stored under an equal key.
	ScanKey(key Key) []ItemPointer

	// ScanRange returns every pointer whose key falls in [lo, hi]
	// (inclusive), key order. Valid only for ordered kinds.
	ScanRange(lo, hi Key) ([]ItemPointer, error)

	// Retarget atomically replaces one occurrence of old, stored under
	// key, with new. Used by the hybrid scan executor's GC handoff (spec
	// §4.5.1 "atomically redirect the index entry to the successor via
	// atomic_update_item_pointer"). Returns ErrNotFound if old isn't
	// present under key.
	Retarget(key Key, old, new ItemPointer) error

	// IndexedTileGroupOffset and AdvanceIndexedTileGroupOffset track how
	// much of the owning table's tile-group vector this index has
	// incorporated (spec §4.4's "indexed prefix count").
	IndexedTileGroupOffset() int
	AdvanceIndexedTileGroupOffset()
}

// baseIndex holds the fields every Index implementation shares.
type baseIndex struct {
	name   string
	kind   IndexKind
	schema *KeySchema
}

func (b *baseIndex) Name() string       { return b.name }
func (b *baseIndex) Kind() IndexKind    { return b.kind }
func (b *baseIndex) Schema() *KeySchema { return b.schema }
