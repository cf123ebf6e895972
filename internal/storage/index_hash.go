package storage

import "sync"

// HashIndex is the HASH_UNIQUE / HASH_MULTI implementation: point lookups
// only, no ScanRange (spec §4.3 "hash indexes support only point
// lookups"). Backed by a plain map keyed on the key's canonical byte
// encoding, the same technique the pack uses for in-memory exact-match
// lookup tables.
type HashIndex struct {
	baseIndex

	mu      sync.RWMutex
	buckets map[string][]ItemPointer

	offset int
}

func NewHashIndex(name string, kind IndexKind, schema *KeySchema) *HashIndex {
	return &HashIndex{
		baseIndex: baseIndex{name: name, kind: kind, schema: schema},
		buckets:   make(map[string][]ItemPointer),
	}
}

// Insert rejects outright on any existing entry for a unique kind, since
// it has no liveness information to tell a dead entry from a live one;
// callers that can tell (table.go's update path, via MVCC) should use
// ConditionalInsert instead.
func (ix *HashIndex) Insert(key Key, ptr ItemPointer) error {
	return ix.ConditionalInsert(key, ptr, func(ItemPointer) bool { return !ix.kind.unique() })
}

func (ix *HashIndex) ConditionalInsert(key Key, ptr ItemPointer, check func(existing ItemPointer) bool) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	b := key.Bytes()
	existing := ix.buckets[b]
	if ix.kind.unique() {
		for _, p := range existing {
			if !check(p) {
				return ErrUniqueViolation
			}
		}
	}
	ix.buckets[b] = append(existing, ptr)
	return nil
}

func (ix *HashIndex) Delete(key Key, ptr ItemPointer) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	b := key.Bytes()
	existing := ix.buckets[b]
	idx := -1
	for i, p := range existing {
		if p == ptr {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	existing = append(existing[:idx], existing[idx+1:]...)
	if len(existing) == 0 {
		delete(ix.buckets, b)
	} else {
		ix.buckets[b] = existing
	}
	return nil
}

func (ix *HashIndex) Retarget(key Key, old, new ItemPointer) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	b := key.Bytes()
	existing := ix.buckets[b]
	for i, p := range existing {
		if p == old {
			existing[i] = new
			return nil
		}
	}
	return ErrNotFound
}

func (ix *HashIndex) ScanAll() []ItemPointer {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []ItemPointer
	for _, ptrs := range ix.buckets {
		out = append(out, ptrs...)
	}
	return out
}

func (ix *HashIndex) ScanKey(key Key) []ItemPointer {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	existing := ix.buckets[key.Bytes()]
	out := make([]ItemPointer, len(existing))
	copy(out, existing)
	return out
}

func (ix *HashIndex) ScanRange(lo, hi Key) ([]ItemPointer, error) {
	return nil, ErrNotSupported
}

func (ix *HashIndex) IndexedTileGroupOffset() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.offset
}

func (ix *HashIndex) AdvanceIndexedTileGroupOffset() {
	ix.mu.Lock()
	ix.offset++
	ix.mu.Unlock()
}
