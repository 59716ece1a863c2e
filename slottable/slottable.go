// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package slottable implements SlotTable: an insertion-ordered, open-
// addressed hash table held in a single contiguous allocation, modeled
// on the PHP 7 hashtable design. A power-of-two bucket array holds the
// head of a collision chain threaded through a dense, insertion-ordered
// array of entries. Removal marks an entry as a tombstone in place;
// its storage is reused by a later Insert (unless Ordered) or reclaimed
// by the next compacting growth.
package slottable

import (
	"unsafe"

	"github.com/aristanetworks/slotkit/slotconfig"
)

// ID names a dense-array entry, stable across lookups and (under
// FixedID) across growth.
type ID = uint32

// None is the sentinel "no entry" value, also used as the tombstone
// marker in an entry's hash field.
const None = slotconfig.NoneID32

// Hasher computes a 32-bit hash for a lookup key.
type Hasher[K any] interface {
	Hash(key K) uint32
}

// Comparator tests a lookup key against a stored record for semantic
// equality. Ordering is unused; only equal/not-equal matters.
type Comparator[K any, V any] interface {
	Equal(key K, data V) bool
}

// HasherFunc adapts a plain function to a Hasher.
type HasherFunc[K any] func(K) uint32

// Hash implements Hasher.
func (f HasherFunc[K]) Hash(key K) uint32 { return f(key) }

// ComparatorFunc adapts a plain function to a Comparator.
type ComparatorFunc[K any, V any] func(K, V) bool

// Equal implements Comparator.
func (f ComparatorFunc[K, V]) Equal(key K, data V) bool { return f(key, data) }

type entry[V any] struct {
	hash uint32
	next ID
	data V
}

// Table is an insertion-ordered, open-addressed hash table.
//
// Ordered disables freelist reuse of tombstones on insertion (new
// entries are always appended), preserving strict insertion order at
// the cost of compacting only on growth. FixedID additionally carries
// tombstones across growth unchanged, so that dense-array indices
// cached by the caller are never reassigned.
type Table[K any, V any] struct {
	buckets []ID
	entries []entry[V]
	used    int
	active  int

	freeHead ID
	ordered  bool
	fixedID  bool

	hasher Hasher[K]
	cmp    Comparator[K, V]
	logger slotconfig.Logger
}

// Option configures a Table at construction time.
type Option func(*options)

type options struct {
	ordered bool
	fixedID bool
}

// Ordered preserves strict insertion order: tombstones are never
// reused on insert, only reclaimed by the next growth.
func Ordered() Option { return func(o *options) { o.ordered = true } }

// FixedID guarantees dense-array ids are never reassigned, even across
// a compacting growth; tombstones are carried forward unchanged.
func FixedID() Option { return func(o *options) { o.fixedID = true } }

// New creates an empty Table. The backing arrays are not allocated
// until the first Insert.
func New[K any, V any](hasher Hasher[K], cmp Comparator[K, V], opts ...Option) *Table[K, V] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Table[K, V]{
		freeHead: None,
		ordered:  o.ordered,
		fixedID:  o.fixedID,
		hasher:   hasher,
		cmp:      cmp,
	}
}

// SetLogger attaches a logger for growth/failure reporting.
func (t *Table[K, V]) SetLogger(logger slotconfig.Logger) { t.logger = logger }

// Used returns the number of dense-array entries drawn from, including
// tombstones.
func (t *Table[K, V]) Used() int { return t.used }

// Count returns the number of live entries.
func (t *Table[K, V]) Count() int { return t.active }

// Allocated returns the table's current capacity (a power of two).
func (t *Table[K, V]) Allocated() int { return len(t.buckets) }

// MemUsage estimates the bytes held by the table's backing arrays.
func (t *Table[K, V]) MemUsage() int {
	var id ID
	var e entry[V]
	return len(t.buckets)*int(unsafe.Sizeof(id)) + len(t.entries)*int(unsafe.Sizeof(e))
}

// fixHash substitutes sentinel-1 for any user hash that collides with
// the sentinel value, preserving "sentinel marks tombstone" as an
// invariant of the hash field alone. Applied symmetrically at every
// insertion and lookup site.
func fixHash(h uint32) uint32 {
	if h == None {
		return None - 1
	}
	return h
}

func (t *Table[K, V]) mask() uint32 { return uint32(len(t.buckets) - 1) }

// Insert adds key/data, growing (and, on growth, compacting) the table
// if necessary. It reports ok=false only on AllocationFailure.
func (t *Table[K, V]) Insert(key K, data V) (ID, *V, bool) {
	h := fixHash(t.hasher.Hash(key))

	if !t.ordered && t.freeHead != None {
		id := t.freeHead
		t.freeHead = t.entries[id].next
		t.entries[id] = entry[V]{hash: h, next: t.buckets[h&t.mask()], data: data}
		t.buckets[h&t.mask()] = id
		t.active++
		return id, &t.entries[id].data, true
	}

	if t.used == len(t.buckets) {
		if !t.grow() {
			return None, nil, false
		}
	}

	id := ID(t.used)
	t.used++
	bucket := h & t.mask()
	t.entries[id] = entry[V]{hash: h, next: t.buckets[bucket], data: data}
	t.buckets[bucket] = id
	t.active++
	return id, &t.entries[id].data, true
}

// Find walks the bucket chain for key and returns the first entry whose
// hash matches and whose data compares equal via the table's
// Comparator.
func (t *Table[K, V]) Find(key K) (ID, *V, bool) {
	id, ok := t.findID(key)
	if !ok {
		return None, nil, false
	}
	return id, &t.entries[id].data, true
}

func (t *Table[K, V]) findID(key K) (ID, bool) {
	if len(t.buckets) == 0 {
		return None, false
	}
	h := fixHash(t.hasher.Hash(key))
	id := t.buckets[h&t.mask()]
	for id != None {
		e := &t.entries[id]
		if e.hash == h && t.cmp.Equal(key, e.data) {
			return id, true
		}
		id = e.next
	}
	return None, false
}

// Remove finds key and, if present, unlinks its entry from its bucket
// chain and tombstones it: the hash is set to None and next then
// threads the free chain. Its storage is reused by a later Insert
// (unless Ordered) or reclaimed by the next compacting growth. It
// returns the record's last-look pointer, valid only for one-time
// cleanup.
func (t *Table[K, V]) Remove(key K) (*V, bool) {
	id, ok := t.findID(key)
	if !ok {
		return nil, false
	}
	e := &t.entries[id]
	ptr := &e.data
	link := &t.buckets[e.hash&t.mask()]
	for *link != id {
		link = &t.entries[*link].next
	}
	*link = e.next
	e.hash = None
	e.next = t.freeHead
	t.freeHead = id
	t.active--
	return ptr, true
}

// At returns the entry at dense index id directly (not by hash), or
// ok=false if id is out of range or names a tombstone.
func (t *Table[K, V]) At(id ID) (*V, bool) {
	if int(id) >= t.used {
		return nil, false
	}
	if t.entries[id].hash == None {
		return nil, false
	}
	return &t.entries[id].data, true
}

// Free releases the table's backing arrays. Idempotent on an
// already-empty Table.
func (t *Table[K, V]) Free() {
	t.buckets = nil
	t.entries = nil
	t.used, t.active, t.freeHead = 0, 0, None
}

// grow doubles capacity (or allocates 8 initially), compacting away
// tombstones unless FixedID is set, and rehashes survivors into the
// new bucket array. Capacity here is strictly doubling, independent of
// the flex schedule used by SlotList/SlotMap — adequate because
// tombstones are garbage-collected on every grow, so load factor never
// needs sub-doubling granularity.
func (t *Table[K, V]) grow() bool {
	newAlloc := 8
	if len(t.buckets) > 0 {
		newAlloc = len(t.buckets) * 2
	}

	newBuckets := make([]ID, newAlloc)
	for i := range newBuckets {
		newBuckets[i] = None
	}
	newEntries := make([]entry[V], newAlloc)
	newMask := uint32(newAlloc - 1)

	newUsed := 0
	if t.fixedID {
		// Ids never move: carry every slot, live or tombstoned, to the
		// identical index in the new array.
		copy(newEntries, t.entries)
		newUsed = t.used
		for id := 0; id < t.used; id++ {
			e := &newEntries[id]
			if e.hash == None {
				continue // tombstone: in no bucket chain; its next still threads the free chain kept below
			}
			bucket := e.hash & newMask
			e.next = newBuckets[bucket]
			newBuckets[bucket] = ID(id)
		}
	} else {
		for id := 0; id < t.used; id++ {
			e := t.entries[id]
			if e.hash == None {
				continue // tombstone: dropped, not carried forward
			}
			newID := newUsed
			newUsed++
			bucket := e.hash & newMask
			newEntries[newID] = entry[V]{hash: e.hash, next: newBuckets[bucket], data: e.data}
			newBuckets[bucket] = ID(newID)
		}
	}

	if t.logger != nil {
		t.logger.Infof("slottable: grew from %d to %d buckets (used %d -> %d, active %d)",
			len(t.buckets), newAlloc, t.used, newUsed, t.active)
	}

	t.buckets = newBuckets
	t.entries = newEntries
	t.used = newUsed
	if t.fixedID {
		// freeHead's chain threads through ids that did not move.
	} else {
		t.freeHead = None
	}
	return true
}
