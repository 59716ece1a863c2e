// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package slotmap implements SlotMap: an unordered pool of versioned
// records indexed by a stable handle whose internal slot may be reused
// after removal. A free list threaded through the slots avoids
// fragmentation; per-slot versioning lets At detect use of a stale
// handle after its slot has been recycled.
//
// Map32 packs a handle into a single 32-bit word (24-bit index, 8-bit
// version), matching the source's on-wire handle encoding. Map64 (see
// slotmap64.go) keeps index and version as separate 32-bit words and
// raises the slot ceiling accordingly.
package slotmap

import (
	"math"
	"unsafe"

	"github.com/aristanetworks/slotkit/slotconfig"
)

// ID32 is a packed 32-bit handle: the low 24 bits are the slot index,
// the high 8 bits are the slot's version at the time the handle was
// issued.
type ID32 uint32

const (
	index32Bits = 24
	index32Mask = 1<<index32Bits - 1
)

// NewID32 packs an index and version into a handle.
func NewID32(index uint32, version uint8) ID32 {
	return ID32((index & index32Mask) | uint32(version)<<index32Bits)
}

// Index returns the packed slot index.
func (id ID32) Index() uint32 { return uint32(id) & index32Mask }

// Version returns the packed slot version.
func (id ID32) Version() uint8 { return uint8(uint32(id) >> index32Bits) }

// NoneID32 is the sentinel "no handle" value.
const NoneID32 = ID32(slotconfig.NoneID32)

// MaxSlots32 is the largest slot count a Map32 may reach
// (SLOTMAP_MAX_ID = 2^24 - 1).
const MaxSlots32 = index32Mask

// freeNone32 terminates the internal free-list chain. The source used
// the relic convention of treating index 0 as "empty" in the 32-bit
// variant and UINT32_MAX in the 64-bit variant; per spec §9 this
// implementation resolves that inconsistency by using the 64-bit
// variant's sentinel convention for both, so slot index 0 is ordinary
// and reusable.
const freeNone32 = ^uint32(0)

// retired32 marks, in nextFree, a slot withdrawn on version wrap. It is
// never a valid index and differs from freeNone32.
const retired32 = ^uint32(0) - 1

const slotHeaderBytes32 = 16 // allocated, used, free_head, free_count

// Map32 is a versioned slot arena with a 32-bit packed handle.
//
// Per the spec's DESIGN NOTES, the free-list overlay is not punned onto
// the payload; versions and free-list links live in parallel arrays
// alongside data, removing the "payload must be at least as large as
// the overlay" constraint entirely.
type Map32[T any] struct {
	data     []T
	versions []uint8
	nextFree []uint32

	used         uint32
	freeHead     uint32
	freeCount    uint32
	retiredCount uint32 // slots permanently withdrawn on version wrap

	allocator slotconfig.Allocator[T]
	logger    slotconfig.Logger
}

// NewMap32 creates an empty Map32.
func NewMap32[T any]() *Map32[T] {
	return &Map32[T]{
		freeHead:  freeNone32,
		allocator: slotconfig.DefaultAllocator[T],
	}
}

// SetAllocator overrides the growth primitive used for the payload
// array, e.g. to inject allocation failures in tests.
func (m *Map32[T]) SetAllocator(a slotconfig.Allocator[T]) { m.allocator = a }

// SetLogger attaches a logger for growth/failure reporting.
func (m *Map32[T]) SetLogger(logger slotconfig.Logger) { m.logger = logger }

// Count returns the number of live records.
func (m *Map32[T]) Count() int { return int(m.used - m.freeCount - m.retiredCount) }

// Used returns the high-water mark of slots drawn from.
func (m *Map32[T]) Used() int { return int(m.used) }

// Allocated returns the current slot capacity.
func (m *Map32[T]) Allocated() int { return len(m.data) }

// FreeCount returns the number of slots currently on the free list.
func (m *Map32[T]) FreeCount() int { return int(m.freeCount) }

// Add draws a record from the free list if one is available, otherwise
// grows the arena. It reports ok=false only on AllocationFailure.
func (m *Map32[T]) Add() (ID32, *T, bool) {
	if m.freeCount > 0 {
		idx := m.freeHead
		m.freeHead = m.nextFree[idx]
		m.freeCount--
		return NewID32(idx, m.versions[idx]), &m.data[idx], true
	}
	if m.used >= MaxSlots32 {
		m.logFailure("slot ceiling reached")
		return NoneID32, nil, false
	}
	if int(m.used) == len(m.data) {
		if !m.grow(int(m.used) + 1) {
			return NoneID32, nil, false
		}
	}
	idx := m.used
	m.used++
	m.versions[idx] = 0
	return NewID32(idx, 0), &m.data[idx], true
}

// Copy is Add followed by bit-copying src into the new slot.
func (m *Map32[T]) Copy(src T) (ID32, *T, bool) {
	id, ptr, ok := m.Add()
	if !ok {
		return NoneID32, nil, false
	}
	*ptr = src
	return id, ptr, true
}

// At returns the slot for h if h's version still matches the slot's
// current tenant, else ok=false (HandleStale).
func (m *Map32[T]) At(h ID32) (*T, bool) {
	idx := h.Index()
	if idx >= m.used || m.versions[idx] != h.Version() || m.nextFree[idx] == retired32 {
		return nil, false
	}
	return &m.data[idx], true
}

// Remove returns h's slot to the free list (or retires it, see the
// version-wrap policy below) and reports the record's last-look
// pointer, valid only for one-time cleanup by the caller. It reports
// ok=false if h is already stale.
//
// Version-wrap policy: version is 8 bits here. Rather than silently
// wrapping back to 0 and risking an ABA ID collision, a slot whose
// version has reached math.MaxUint8 is retired: it is withdrawn from
// the free list permanently instead of being recycled. This trades a
// small amount of unreclaimable capacity for eliminating stale-handle
// collisions in the 32-bit variant; see Map64 for the variant that
// tolerates wraparound.
func (m *Map32[T]) Remove(h ID32) (*T, bool) {
	ptr, ok := m.At(h)
	if !ok {
		return nil, false
	}
	idx := h.Index()
	if m.versions[idx] == math.MaxUint8 {
		m.nextFree[idx] = retired32
		m.retiredCount++
		return ptr, true
	}
	m.versions[idx]++
	m.nextFree[idx] = m.freeHead
	m.freeHead = idx
	m.freeCount++
	return ptr, true
}

// IDOf reconstructs the handle for ptr, which must point into this
// Map32's live storage.
func (m *Map32[T]) IDOf(ptr *T) ID32 {
	var zero T
	size := unsafe.Sizeof(zero)
	base := uintptr(unsafe.Pointer(&m.data[0]))
	idx := uint32((uintptr(unsafe.Pointer(ptr)) - base) / size)
	return NewID32(idx, m.versions[idx])
}

// Burn drains the free list without reclaiming slots: Count will report
// every drawn slot that has not been retired on version wrap as live
// (retired slots stay excluded), so the caller can treat [0, Used) as a
// plain contiguous array (e.g. immediately before bulk-destroying every
// slot, live or not).
func (m *Map32[T]) Burn() {
	idx := m.freeHead
	for idx != freeNone32 {
		next := m.nextFree[idx]
		m.nextFree[idx] = 0
		idx = next
	}
	m.freeHead = freeNone32
	m.freeCount = 0
}

// Free releases the arena. Idempotent on an already-empty Map32.
func (m *Map32[T]) Free() {
	m.data = nil
	m.versions = nil
	m.nextFree = nil
	m.used, m.freeHead, m.freeCount, m.retiredCount = 0, freeNone32, 0, 0
}

func (m *Map32[T]) grow(needed int) bool {
	var zero T
	itemBytes := int(unsafe.Sizeof(zero))
	if itemBytes == 0 {
		itemBytes = 1
	}
	grown, ok := slotconfig.GrowCount(len(m.data), needed, itemBytes, slotHeaderBytes32, slotconfig.AlignSize, MaxSlots32)
	if !ok {
		m.logFailure("slot ceiling reached during growth")
		return false
	}
	newData, ok := m.allocator(m.data, grown)
	if !ok {
		m.logFailure("allocator rejected growth")
		return false
	}
	newVersions := make([]uint8, grown)
	copy(newVersions, m.versions)
	newNextFree := make([]uint32, grown)
	copy(newNextFree, m.nextFree)

	if m.logger != nil && grown != len(m.data) {
		m.logger.Infof("slotmap32: grew from %d to %d slots", len(m.data), grown)
	}
	m.data, m.versions, m.nextFree = newData, newVersions, newNextFree
	return true
}

func (m *Map32[T]) logFailure(msg string) {
	if m.logger != nil {
		m.logger.Errorf("slotmap32: %s", msg)
	}
}
