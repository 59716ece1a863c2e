// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package slotmap

import (
	"math"
	"testing"
)

type record struct {
	value int
}

// Scenario 2 (spec §8): add three, remove the middle, re-add, confirm
// the stale handle no longer resolves and the fresh one does.
func TestMap32Reuse(t *testing.T) {
	m := NewMap32[record]()
	h0, p0, _ := m.Add()
	p0.value = 100
	h1, p1, _ := m.Add()
	p1.value = 200
	_, p2, _ := m.Add()
	p2.value = 300

	if m.Count() != 3 || m.Used() != 3 || m.FreeCount() != 0 {
		t.Fatalf("after 3 adds: count=%d used=%d free=%d", m.Count(), m.Used(), m.FreeCount())
	}

	if _, ok := m.Remove(h1); !ok {
		t.Fatal("Remove(h1) failed")
	}
	if _, ok := m.At(h1); ok {
		t.Fatal("At(h1) should fail after removal")
	}
	if m.Count() != 2 || m.FreeCount() != 1 {
		t.Fatalf("after remove: count=%d free=%d", m.Count(), m.FreeCount())
	}

	h1b, p1b, ok := m.Add()
	if !ok {
		t.Fatal("Add after remove failed")
	}
	if h1b.Index() != h1.Index() {
		t.Fatalf("expected slot reuse: got index %d, want %d", h1b.Index(), h1.Index())
	}
	if h1b.Version() != h1.Version()+1 {
		t.Fatalf("expected version bump: got %d, want %d", h1b.Version(), h1.Version()+1)
	}
	p1b.value = 999

	if _, ok := m.At(h1); ok {
		t.Fatal("stale handle h1 should still fail after slot reuse")
	}
	if got, ok := m.At(h1b); !ok || got.value != 999 {
		t.Fatalf("At(h1b) = %v, %v; want 999, true", got, ok)
	}

	if got, _ := m.At(h0); got.value != 100 {
		t.Fatalf("untouched handle h0 corrupted: got %d", got.value)
	}
}

// Scenario 3 (spec §8): handles survive many intervening grows.
// Property P3: handle stability across growth.
func TestMap32HandleStabilityAcrossGrowth(t *testing.T) {
	m := NewMap32[record]()
	var h500 ID32
	for i := 0; i < 2000; i++ {
		h, p, ok := m.Add()
		if !ok {
			t.Fatalf("Add(%d) failed", i)
		}
		p.value = i
		if i == 500 {
			h500 = h
		}
	}
	before, ok := m.At(h500)
	if !ok || before.value != 500 {
		t.Fatalf("At(h500) before further growth = %v, %v", before, ok)
	}
	for i := 0; i < 10000; i++ {
		if _, _, ok := m.Add(); !ok {
			t.Fatalf("Add during bulk growth failed at %d", i)
		}
	}
	after, ok := m.At(h500)
	if !ok {
		t.Fatal("At(h500) failed after growth")
	}
	if after.value != 500 {
		t.Fatalf("handle h500 record corrupted across growth: got %d, want 500", after.value)
	}
	if *after != *before {
		t.Fatal("h500 should point at the very same record value across growth")
	}
}

// Property P4: immediately after remove(h), at(h) == none.
func TestMap32UseAfterFreeDetection(t *testing.T) {
	m := NewMap32[record]()
	h, _, _ := m.Add()
	if _, ok := m.Remove(h); !ok {
		t.Fatal("Remove failed")
	}
	if _, ok := m.At(h); ok {
		t.Fatal("At should report none immediately after Remove")
	}
	if _, ok := m.Remove(h); ok {
		t.Fatal("double Remove should fail (already stale)")
	}
}

// Property P5: successive versions for a slot strictly increase
// (mod the version width).
func TestMap32VersionMonotone(t *testing.T) {
	m := NewMap32[record]()
	h, _, _ := m.Add()
	idx := h.Index()
	prev := h.Version()
	for i := 0; i < 50; i++ {
		m.Remove(h)
		h2, _, ok := m.Add()
		if !ok || h2.Index() != idx {
			// slot may have been retired on wrap; that's a valid
			// terminal state for the monotone sequence.
			break
		}
		if h2.Version() != prev+1 {
			t.Fatalf("iteration %d: version %d did not follow %d", i, h2.Version(), prev)
		}
		prev = h2.Version()
		h = h2
	}
}

// Property P6: count = used - free_count at all times.
func TestMap32Accounting(t *testing.T) {
	m := NewMap32[record]()
	var live []ID32
	for i := 0; i < 500; i++ {
		h, _, _ := m.Add()
		live = append(live, h)
		if m.Count() != int(m.Used())-m.FreeCount() {
			t.Fatalf("accounting invariant broken after add %d", i)
		}
	}
	for i := 0; i < 200; i++ {
		m.Remove(live[i])
		if m.Count() != int(m.Used())-m.FreeCount() {
			t.Fatalf("accounting invariant broken after remove %d", i)
		}
	}
	for i := 0; i < 100; i++ {
		m.Add()
		if m.Count() != int(m.Used())-m.FreeCount() {
			t.Fatalf("accounting invariant broken after re-add %d", i)
		}
	}
}

func TestMap32VersionWrapRetires(t *testing.T) {
	m := NewMap32[record]()
	h, _, _ := m.Add()
	idx := h.Index()
	for v := 0; v < math.MaxUint8; v++ {
		if _, ok := m.Remove(h); !ok {
			t.Fatalf("Remove failed at version %d", v)
		}
		var ok bool
		h, _, ok = m.Add()
		if !ok {
			t.Fatalf("Add failed re-acquiring slot at version %d", v)
		}
	}
	// h now carries version 255 (math.MaxUint8); removing it must retire
	// the slot instead of recycling it.
	if h.Version() != math.MaxUint8 {
		t.Fatalf("expected version to reach %d, got %d", math.MaxUint8, h.Version())
	}
	freeBefore := m.FreeCount()
	if _, ok := m.Remove(h); !ok {
		t.Fatal("final Remove should still succeed")
	}
	if m.FreeCount() != freeBefore {
		t.Fatalf("retired slot should not join the free list: free count changed from %d to %d", freeBefore, m.FreeCount())
	}
	h2, _, ok := m.Add()
	if ok && h2.Index() == idx {
		t.Fatal("retired slot index must never be handed out again")
	}
}

func TestMap32Copy(t *testing.T) {
	m := NewMap32[record]()
	h, p, ok := m.Copy(record{value: 42})
	if !ok || p.value != 42 {
		t.Fatalf("Copy: got %v, %v", p, ok)
	}
	if got, _ := m.At(h); got.value != 42 {
		t.Fatalf("At after Copy = %d, want 42", got.value)
	}
}

func TestMap32IDOf(t *testing.T) {
	m := NewMap32[record]()
	h, ptr, _ := m.Add()
	if got := m.IDOf(ptr); got != h {
		t.Fatalf("IDOf = %v, want %v", got, h)
	}
}

func TestMap32Burn(t *testing.T) {
	m := NewMap32[record]()
	var ids []ID32
	for i := 0; i < 10; i++ {
		h, _, _ := m.Add()
		ids = append(ids, h)
	}
	m.Remove(ids[3])
	m.Remove(ids[7])
	if m.FreeCount() != 2 {
		t.Fatalf("FreeCount = %d, want 2", m.FreeCount())
	}
	m.Burn()
	if m.FreeCount() != 0 {
		t.Fatalf("FreeCount after Burn = %d, want 0", m.FreeCount())
	}
	if m.Count() != m.Used() {
		t.Fatalf("Count after Burn = %d, want Used() = %d", m.Count(), m.Used())
	}
}

func TestMap32AllocationFailureLeavesMapUnchanged(t *testing.T) {
	m := NewMap32[record]()
	m.Add()
	// Fill to capacity so that the next Add has to grow.
	for m.Used() < m.Allocated() {
		m.Add()
	}
	wantUsed, wantAlloc := m.Used(), m.Allocated()
	m.SetAllocator(func(old []record, newLen int) ([]record, bool) {
		return nil, false
	})
	if _, _, ok := m.Add(); ok {
		t.Fatal("expected Add to fail with a rigged allocator")
	}
	if m.Used() != wantUsed || m.Allocated() != wantAlloc {
		t.Fatalf("map mutated on allocation failure: used=%d(want %d) allocated=%d(want %d)",
			m.Used(), wantUsed, m.Allocated(), wantAlloc)
	}
}

// Map64 mirrors the above behavior with an unpacked, larger-capacity
// handle and a version field that tolerates wraparound.
func TestMap64ReuseAndAccounting(t *testing.T) {
	m := NewMap64[record]()
	h0, p0, _ := m.Add()
	p0.value = 1
	h1, _, _ := m.Add()
	m.Remove(h1)
	if _, ok := m.At(h1); ok {
		t.Fatal("stale 64-bit handle should not resolve")
	}
	h1b, p1b, ok := m.Add()
	if !ok || h1b.Index != h1.Index || h1b.Version != h1.Version+1 {
		t.Fatalf("expected slot reuse with bumped version, got %+v", h1b)
	}
	p1b.value = 2
	if got, _ := m.At(h0); got.value != 1 {
		t.Fatalf("h0 corrupted: got %d", got.value)
	}
	if m.Count() != int(m.Used())-m.FreeCount() {
		t.Fatal("Map64 accounting invariant broken")
	}
}

// FuzzMap32AddRemove decodes each fuzz byte into an add or a remove of a
// previously-issued handle and checks P3 (live handles keep resolving
// to the same value across intervening growth), P4 (at(h) fails
// immediately after remove(h)), and P6 (count == used - free_count) at
// every step.
func FuzzMap32AddRemove(f *testing.F) {
	f.Add([]byte{0, 0, 1, 0, 1, 1, 0})
	f.Add([]byte{1, 1, 1, 1, 0, 0, 0, 0})

	f.Fuzz(func(t *testing.T, ops []byte) {
		m := NewMap32[record]()
		live := map[ID32]int{}
		next := 0
		for _, b := range ops {
			if b%2 == 1 && len(live) > 0 {
				var victim ID32
				for h := range live {
					victim = h
					break
				}
				delete(live, victim)
				if _, ok := m.Remove(victim); !ok {
					t.Fatalf("Remove(%v) failed for a live handle", victim)
				}
				if _, ok := m.At(victim); ok {
					t.Fatalf("At(%v) should fail immediately after Remove", victim)
				}
			} else {
				h, p, ok := m.Add()
				if !ok {
					t.Fatalf("Add failed")
				}
				p.value = next
				live[h] = next
				next++
			}
			if m.Count() != int(m.Used())-m.FreeCount() {
				t.Fatalf("accounting invariant broken: count=%d used=%d free=%d",
					m.Count(), m.Used(), m.FreeCount())
			}
			for h, want := range live {
				got, ok := m.At(h)
				if !ok || got.value != want {
					t.Fatalf("live handle %v = %v, %v; want %d, true", h, got, ok, want)
				}
			}
		}
	})
}
