package storage

import (
	"sync"

	"github.com/google/btree"
)

// btreeDegree matches the degree the example pack reaches for when it
// wants a shallow, cache-friendly tree (see erigon's btree.New(16)).
const btreeDegree = 16

// orderedItem is the btree.Item stored per distinct key: a key plus the
// (possibly many, for SECONDARY_MULTI) pointers living under it.
type orderedItem struct {
	key  Key
	ptrs []ItemPointer
}

func (a *orderedItem) Less(than btree.Item) bool {
	return a.key.Less(than.(*orderedItem).key)
}

// OrderedIndex is the PRIMARY_UNIQUE / SECONDARY_MULTI implementation
// backed by a google/btree.BTree, giving it ScanRange for free (spec
// §4.3 "ordered indexes support range scans").
type OrderedIndex struct {
	baseIndex

	mu   sync.RWMutex
	tree *btree.BTree

	offset int
}

// NewOrderedIndex constructs an ordered index. kind must be
// PrimaryUnique or SecondaryMulti.
func NewOrderedIndex(name string, kind IndexKind, schema *KeySchema) *OrderedIndex {
	return &OrderedIndex{
		baseIndex: baseIndex{name: name, kind: kind, schema: schema},
		tree:      btree.New(btreeDegree),
	}
}

// Insert rejects outright on any existing entry for a unique kind, since
// it has no liveness information to tell a dead entry from a live one;
// callers that can tell (table.go's update path, via MVCC) should use
// ConditionalInsert instead.
func (ix *OrderedIndex) Insert(key Key, ptr ItemPointer) error {
	return ix.ConditionalInsert(key, ptr, func(ItemPointer) bool { return !ix.kind.unique() })
}

func (ix *OrderedIndex) ConditionalInsert(key Key, ptr ItemPointer, check func(existing ItemPointer) bool) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	probe := &orderedItem{key: key}
	if existing := ix.tree.Get(probe); existing != nil {
		item := existing.(*orderedItem)
		if ix.kind.unique() {
			for _, p := range item.ptrs {
				if !check(p) {
					return ErrUniqueViolation
				}
			}
		}
		item.ptrs = append(item.ptrs, ptr)
		return nil
	}
	ix.tree.ReplaceOrInsert(&orderedItem{key: key, ptrs: []ItemPointer{ptr}})
	return nil
}

func (ix *OrderedIndex) Delete(key Key, ptr ItemPointer) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	probe := &orderedItem{key: key}
	existing := ix.tree.Get(probe)
	if existing == nil {
		return ErrNotFound
	}
	item := existing.(*orderedItem)
	idx := -1
	for i, p := range item.ptrs {
		if p == ptr {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	item.ptrs = append(item.ptrs[:idx], item.ptrs[idx+1:]...)
	if len(item.ptrs) == 0 {
		ix.tree.Delete(probe)
	}
	return nil
}

func (ix *OrderedIndex) Retarget(key Key, old, new ItemPointer) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	existing := ix.tree.Get(&orderedItem{key: key})
	if existing == nil {
		return ErrNotFound
	}
	item := existing.(*orderedItem)
	for i, p := range item.ptrs {
		if p == old {
			item.ptrs[i] = new
			return nil
		}
	}
	return ErrNotFound
}

func (ix *OrderedIndex) ScanAll() []ItemPointer {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []ItemPointer
	ix.tree.Ascend(func(i btree.Item) bool {
		out = append(out, i.(*orderedItem).ptrs...)
		return true
	})
	return out
}

func (ix *OrderedIndex) ScanKey(key Key) []ItemPointer {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	existing := ix.tree.Get(&orderedItem{key: key})
	if existing == nil {
		return nil
	}
	out := make([]ItemPointer, len(existing.(*orderedItem).ptrs))
	copy(out, existing.(*orderedItem).ptrs)
	return out
}

func (ix *OrderedIndex) ScanRange(lo, hi Key) ([]ItemPointer, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []ItemPointer
	ix.tree.AscendRange(&orderedItem{key: lo}, &orderedItem{key: hi}, func(i btree.Item) bool {
		out = append(out, i.(*orderedItem).ptrs...)
		return true
	})
	// AscendRange's hi bound is exclusive; pick up an equal-to-hi item too.
	if eq := ix.tree.Get(&orderedItem{key: hi}); eq != nil {
		out = append(out, eq.(*orderedItem).ptrs...)
	}
	return out, nil
}

func (ix *OrderedIndex) IndexedTileGroupOffset() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.offset
}

func (ix *OrderedIndex) AdvanceIndexedTileGroupOffset() {
	ix.mu.Lock()
	ix.offset++
	ix.mu.Unlock()
}
