// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package slotlist implements SlotList: a growable, ordered sequence of
// records held in a single backing array, with a handful of caller-
// reserved header words ahead of the metadata. Growth may relocate the
// backing array; indices handed out by Add/Push remain valid across
// growth (they are not invalidated the way a raw pointer into the old
// array would be).
package slotlist

import (
	"strings"
	"unsafe"

	"github.com/aristanetworks/slotkit/sliceutils"
	"github.com/aristanetworks/slotkit/slotconfig"
)

// ID names a slot in a List, stable across growth. slotconfig.NoneID32
// represents "no id"; List never itself hands that value out.
type ID = uint32

// MaxID is the largest capacity a List may reach: 2^32 - 2, one below
// the 2^32 - 1 sentinel, so capacity always stays under MAX_ID.
const MaxID = slotconfig.NoneID32 - 1

// headerWords approximates the spec's "allocated, count" metadata words
// ahead of the item array, used only to shape the flex/align growth
// math; it does not reflect an actual Go memory layout.
const headerWords = 2

// List is a growable, ordered sequence of T.
type List[T any] struct {
	ext       []uint32
	items     []T
	count     uint32
	allocator slotconfig.Allocator[T]
	logger    slotconfig.Logger
}

// New creates an empty List with extWords caller-reserved header words.
// The backing array is not allocated until the first mutation (the
// spec's "created lazily on first append").
func New[T any](extWords int) *List[T] {
	l := &List[T]{allocator: slotconfig.DefaultAllocator[T]}
	if extWords > 0 {
		l.ext = make([]uint32, extWords)
	}
	return l
}

// SetAllocator overrides the growth primitive, e.g. to inject an
// allocator that fails after N calls for AllocationFailure testing.
func (l *List[T]) SetAllocator(a slotconfig.Allocator[T]) { l.allocator = a }

// SetLogger attaches a logger used to report growth and allocation
// failures. A nil logger (the default) disables logging.
func (l *List[T]) SetLogger(logger slotconfig.Logger) { l.logger = logger }

// Ext returns the caller-reserved header words, preserved verbatim
// across growth.
func (l *List[T]) Ext() []uint32 { return l.ext }

// Count returns the number of live elements.
func (l *List[T]) Count() int { return int(l.count) }

// Allocated returns the current backing capacity.
func (l *List[T]) Allocated() int { return len(l.items) }

// At returns a pointer to the element at index i. Bounds are the
// caller's responsibility, per spec; an out-of-range i panics the same
// way indexing a Go slice does.
func (l *List[T]) At(i int) *T { return &l.items[i] }

// Last returns a pointer to the final live element. Undefined (panics)
// if the list is empty.
func (l *List[T]) Last() *T { return &l.items[l.count-1] }

// IDOf reconstructs the index of ptr within the list's backing array by
// address arithmetic, mirroring the source's `ptr - base` operation.
// Undefined for any pointer not obtained from this same List.
func (l *List[T]) IDOf(ptr *T) ID {
	var zero T
	size := unsafe.Sizeof(zero)
	base := uintptr(unsafe.Pointer(&l.items[0]))
	off := uintptr(unsafe.Pointer(ptr)) - base
	return ID(off / size)
}

// Push appends v, growing the backing array if necessary. It reports
// ok=false only on AllocationFailure, in which case the list is left
// unchanged.
func (l *List[T]) Push(v T) (ID, bool) {
	id, ok := l.Add(1)
	if !ok {
		return 0, false
	}
	l.items[id] = v
	return id, true
}

// Add reserves n contiguous slots and returns the index of the first
// one; Count increases by n. It reports ok=false on AllocationFailure,
// in which case the list is left unchanged.
func (l *List[T]) Add(n int) (ID, bool) {
	first := l.count
	if !l.reserve(int(l.count) + n) {
		return 0, false
	}
	l.count += uint32(n)
	return first, true
}

// Expand is Add without returning a handle to the reserved slice.
func (l *List[T]) Expand(n int) bool {
	_, ok := l.Add(n)
	return ok
}

// Truncate reduces Count by n without shrinking the backing array. It
// panics if n exceeds Count (the spec's SizeViolation disposition for
// programmer error).
func (l *List[T]) Truncate(n int) {
	if n > int(l.count) {
		panic("slotlist: Truncate n exceeds Count")
	}
	l.count -= uint32(n)
}

// Clear sets Count to zero without shrinking the backing array.
func (l *List[T]) Clear() { l.count = 0 }

// Free releases the backing array. Idempotent on an already-empty List.
func (l *List[T]) Free() {
	l.items = nil
	l.count = 0
}

// Slice returns the live prefix [0, Count) as a Go slice. The slice
// aliases the List's backing array and is invalidated by any subsequent
// growth.
func (l *List[T]) Slice() []T { return l.items[:l.count] }

// LogContents writes the live elements to logger as a single line, one
// %v per element. It exists for ad hoc debugging of a list's state and
// is not on any hot path.
func (l *List[T]) LogContents(logger slotconfig.Logger) {
	if logger == nil {
		return
	}
	items := l.Slice()
	format := strings.TrimSpace(strings.Repeat("%v ", len(items)))
	logger.Infof(format, sliceutils.ToAnySlice(items)...)
}

func (l *List[T]) reserve(needed int) bool {
	if needed <= len(l.items) {
		return true
	}
	var zero T
	itemBytes := int(unsafe.Sizeof(zero))
	if itemBytes == 0 {
		itemBytes = 1
	}
	grown, ok := slotconfig.GrowCount(len(l.items), needed, itemBytes, headerWords*4, slotconfig.AlignSize, int(MaxID))
	if !ok {
		if l.logger != nil {
			l.logger.Errorf("slotlist: allocation failure growing to %d items", needed)
		}
		return false
	}
	newItems, ok := l.allocator(l.items, grown)
	if !ok {
		if l.logger != nil {
			l.logger.Errorf("slotlist: allocator rejected growth to %d items", grown)
		}
		return false
	}
	if l.logger != nil && grown != len(l.items) {
		l.logger.Infof("slotlist: grew from %d to %d items", len(l.items), grown)
	}
	l.items = newItems
	return true
}
