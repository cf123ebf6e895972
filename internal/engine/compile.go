// Package engine implements the hybrid scan executor (HSE): predicates,
// logical tiles, plan nodes, and the executor itself that ties a plan to
// a running transaction against the storage package's tables and
// indexes.
//
// This file focuses on the plan compilation cache:
//   - What: a lightweight in-memory LRU cache that stores built
//     HybridScanPlan values (CompiledPlan), keyed by caller-chosen cache
//     keys (e.g. a stable string describing table + predicate + mode).
//   - How: container/list keeps the cache within a fixed size with O(1)
//     LRU eviction, the same technique the teacher's query cache used for
//     parsed SQL statements.
//   - Why: building a plan (resolving the index, projection, and key
//     descriptor) is cheap here, but callers running the same shaped scan
//     repeatedly still benefit from skipping that resolution work.
package engine

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CompiledPlan pairs a built HybridScanPlan with the time it was cached.
type CompiledPlan struct {
	Key      string
	Plan     *HybridScanPlan
	CachedAt time.Time
}

type cacheEntry struct {
	key string
	cp  *CompiledPlan
}

// PlanCache manages compiled HybridScanPlans with LRU eviction.
type PlanCache struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int
}

// NewPlanCache creates a plan cache with the given maximum size.
func NewPlanCache(maxSize int) *PlanCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &PlanCache{
		entries: make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Get returns a cached plan by key, promoting it to most-recently-used.
func (pc *PlanCache) Get(key string) (*CompiledPlan, bool) {
	pc.mu.RLock()
	elem, exists := pc.entries[key]
	pc.mu.RUnlock()
	if !exists {
		return nil, false
	}
	pc.mu.Lock()
	pc.order.MoveToFront(elem)
	pc.mu.Unlock()
	return elem.Value.(*cacheEntry).cp, true
}

// Put inserts or replaces the plan cached under key.
func (pc *PlanCache) Put(key string, plan *HybridScanPlan) *CompiledPlan {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if elem, exists := pc.entries[key]; exists {
		elem.Value.(*cacheEntry).cp.Plan = plan
		pc.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry).cp
	}

	if pc.order.Len() >= pc.maxSize {
		tail := pc.order.Back()
		if tail != nil {
			pc.order.Remove(tail)
			delete(pc.entries, tail.Value.(*cacheEntry).key)
		}
	}

	compiled := &CompiledPlan{Key: key, Plan: plan, CachedAt: time.Now()}
	entry := &cacheEntry{key: key, cp: compiled}
	elem := pc.order.PushFront(entry)
	pc.entries[key] = elem
	return compiled
}

// MustGet is like Get but panics when the key is absent, mirroring the
// teacher's MustCompile convenience for callers that know the key exists.
func (pc *PlanCache) MustGet(key string) *CompiledPlan {
	cp, ok := pc.Get(key)
	if !ok {
		panic(fmt.Sprintf("MustGet(%q): not cached", key))
	}
	return cp
}

// Clear removes all cached plans.
func (pc *PlanCache) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.entries = make(map[string]*list.Element, pc.maxSize)
	pc.order.Init()
}

// Size returns the number of cached plans.
func (pc *PlanCache) Size() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.entries)
}

// Stats returns cache statistics.
func (pc *PlanCache) Stats() map[string]interface{} {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return map[string]interface{}{
		"size":    len(pc.entries),
		"maxSize": pc.maxSize,
	}
}
