// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package slotmap

import (
	"math"
	"unsafe"

	"github.com/aristanetworks/slotkit/slotconfig"
)

// ID64 is the 64-bit variant's handle: two unpacked 32-bit words. It
// raises the slot ceiling to 2^32 relative to ID32's 2^24.
type ID64 struct {
	Index   uint32
	Version uint32
}

// NoneID64 is the sentinel "no handle" value.
var NoneID64 = ID64{Index: math.MaxUint32, Version: math.MaxUint32}

const freeNone64 = ^uint32(0)

// MaxSlots64 is the largest slot count a Map64 may reach.
const MaxSlots64 = math.MaxUint32

const slotHeaderBytes64 = 32 // allocated, used, free_head, free_count (64-bit words)

// Map64 is the 64-bit-handle variant of SlotMap: same mechanics as
// Map32, but the version field is 32 bits (wraparound is tolerated
// rather than retiring slots, since an ABA collision after 4 billion
// removals of the same slot is accepted as practically impossible —
// see spec §4.3's framing of version wrap as "accepted" in general).
type Map64[T any] struct {
	data     []T
	versions []uint32
	nextFree []uint32

	used      uint64
	freeHead  uint32
	freeCount uint64

	allocator slotconfig.Allocator[T]
	logger    slotconfig.Logger
}

// NewMap64 creates an empty Map64.
func NewMap64[T any]() *Map64[T] {
	return &Map64[T]{
		freeHead:  freeNone64,
		allocator: slotconfig.DefaultAllocator[T],
	}
}

// SetAllocator overrides the growth primitive used for the payload
// array.
func (m *Map64[T]) SetAllocator(a slotconfig.Allocator[T]) { m.allocator = a }

// SetLogger attaches a logger for growth/failure reporting.
func (m *Map64[T]) SetLogger(logger slotconfig.Logger) { m.logger = logger }

// Count returns the number of live records.
func (m *Map64[T]) Count() int { return int(m.used - m.freeCount) }

// Used returns the high-water mark of slots drawn from.
func (m *Map64[T]) Used() int { return int(m.used) }

// Allocated returns the current slot capacity.
func (m *Map64[T]) Allocated() int { return len(m.data) }

// FreeCount returns the number of slots currently on the free list.
func (m *Map64[T]) FreeCount() int { return int(m.freeCount) }

// Add draws a record from the free list if one is available, otherwise
// grows the arena.
func (m *Map64[T]) Add() (ID64, *T, bool) {
	if m.freeCount > 0 {
		idx := m.freeHead
		m.freeHead = m.nextFree[idx]
		m.freeCount--
		return ID64{Index: idx, Version: m.versions[idx]}, &m.data[idx], true
	}
	if m.used >= MaxSlots64 {
		m.logFailure("slot ceiling reached")
		return NoneID64, nil, false
	}
	if m.used == uint64(len(m.data)) {
		if !m.grow(int(m.used) + 1) {
			return NoneID64, nil, false
		}
	}
	idx := uint32(m.used)
	m.used++
	m.versions[idx] = 0
	return ID64{Index: idx, Version: 0}, &m.data[idx], true
}

// Copy is Add followed by bit-copying src into the new slot.
func (m *Map64[T]) Copy(src T) (ID64, *T, bool) {
	id, ptr, ok := m.Add()
	if !ok {
		return NoneID64, nil, false
	}
	*ptr = src
	return id, ptr, true
}

// At returns the slot for h if h's version still matches.
func (m *Map64[T]) At(h ID64) (*T, bool) {
	if uint64(h.Index) >= m.used || m.versions[h.Index] != h.Version {
		return nil, false
	}
	return &m.data[h.Index], true
}

// Remove returns h's slot to the free list. The spec flags one source
// variant as incrementing the wrong free-list counter on remove (a
// probable typo, per spec §9); this implementation increments the same
// freeCount that Add/Copy decrement.
func (m *Map64[T]) Remove(h ID64) (*T, bool) {
	ptr, ok := m.At(h)
	if !ok {
		return nil, false
	}
	idx := h.Index
	m.versions[idx]++ // 32-bit version: wraps silently, tolerated by design
	m.nextFree[idx] = m.freeHead
	m.freeHead = idx
	m.freeCount++
	return ptr, true
}

// IDOf reconstructs the handle for ptr, which must point into this
// Map64's live storage.
func (m *Map64[T]) IDOf(ptr *T) ID64 {
	var zero T
	size := unsafe.Sizeof(zero)
	base := uintptr(unsafe.Pointer(&m.data[0]))
	idx := uint32((uintptr(unsafe.Pointer(ptr)) - base) / size)
	return ID64{Index: idx, Version: m.versions[idx]}
}

// Burn drains the free list without reclaiming slots.
func (m *Map64[T]) Burn() {
	idx := m.freeHead
	for idx != freeNone64 {
		next := m.nextFree[idx]
		m.nextFree[idx] = 0
		idx = next
	}
	m.freeHead = freeNone64
	m.freeCount = 0
}

// Free releases the arena. Idempotent on an already-empty Map64.
func (m *Map64[T]) Free() {
	m.data = nil
	m.versions = nil
	m.nextFree = nil
	m.used, m.freeHead, m.freeCount = 0, freeNone64, 0
}

func (m *Map64[T]) grow(needed int) bool {
	var zero T
	itemBytes := int(unsafe.Sizeof(zero))
	if itemBytes == 0 {
		itemBytes = 1
	}
	grown, ok := slotconfig.GrowCount(len(m.data), needed, itemBytes, slotHeaderBytes64, slotconfig.AlignSize, MaxSlots64)
	if !ok {
		m.logFailure("slot ceiling reached during growth")
		return false
	}
	newData, ok := m.allocator(m.data, grown)
	if !ok {
		m.logFailure("allocator rejected growth")
		return false
	}
	newVersions := make([]uint32, grown)
	copy(newVersions, m.versions)
	newNextFree := make([]uint32, grown)
	copy(newNextFree, m.nextFree)

	if m.logger != nil && grown != len(m.data) {
		m.logger.Infof("slotmap64: grew from %d to %d slots", len(m.data), grown)
	}
	m.data, m.versions, m.nextFree = newData, newVersions, newNextFree
	return true
}

func (m *Map64[T]) logFailure(msg string) {
	if m.logger != nil {
		m.logger.Errorf("slotmap64: %s", msg)
	}
}
