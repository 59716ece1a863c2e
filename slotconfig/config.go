// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package slotconfig holds the configuration shared by the slotlist,
// slotmap and slottable containers: the growth schedule, byte alignment,
// sentinel handle values, and the injectable allocation primitive.
package slotconfig

import (
	"fmt"
	"os"

	"golang.org/x/exp/constraints"
	"gopkg.in/yaml.v2"
)

// NoneID32 is the sentinel value denoting the absence of a handle or
// slot index in a 32-bit container (SlotList, SlotMap32, SlotTable).
const NoneID32 uint32 = 1<<32 - 1

// AlignSize is the default block alignment in bytes.
const AlignSize = 16

// ExtSize is the default count of caller-reserved header words ahead of
// a SlotList's metadata.
const ExtSize = 0

// Logger is the minimal logging surface containers accept. A nil
// Logger is valid and means "don't log"; see glog.Glog for the
// production implementation.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Flex returns the next target capacity for a value currently at n:
// 10 while below 10, 100 below 100, 1000 below 1000, 10000 below 10000,
// then doubling.
func Flex[T constraints.Unsigned](n T) T {
	switch {
	case n < 10:
		return 10
	case n < 100:
		return 100
	case n < 1000:
		return 1000
	case n < 10000:
		return 10000
	default:
		return 2 * n
	}
}

// Align rounds n up to the next multiple of a, where a is a power of
// two.
func Align[T constraints.Unsigned](n, a T) T {
	return (n + a - 1) &^ (a - 1)
}

// Allocator is the injectable reallocation primitive used by the flex-
// scheduled containers (SlotList, SlotMap). It must return a slice of
// length newLen whose prefix holds old's contents, or ok=false on
// failure. On failure the caller must leave its existing block
// untouched — the spec's AllocationFailure disposition.
type Allocator[T any] func(old []T, newLen int) (grown []T, ok bool)

// DefaultAllocator grows by allocating a fresh slice and copying old's
// contents into its prefix. It never reports failure; inject a
// different Allocator to simulate AllocationFailure in tests.
func DefaultAllocator[T any](old []T, newLen int) ([]T, bool) {
	grown := make([]T, newLen)
	copy(grown, old)
	return grown, true
}

// GrowCount computes the next item capacity for a flex-scheduled
// container given the current capacity, the minimum item count it must
// hold, the per-item byte size, the bytes of metadata ahead of the item
// array, and the block's byte alignment. It reports ok=false if the
// computed capacity (or needed itself) would exceed maxItems, the
// container's MAX_ID-derived ceiling — the spec's AllocationFailure
// disposition applied before any allocation is attempted.
func GrowCount(current, needed, itemBytes, headerBytes, align, maxItems int) (int, bool) {
	if needed > maxItems {
		return 0, false
	}
	target := current
	for target < needed {
		next := int(Flex(uint64(target)))
		if next <= target {
			next = target + 1
		}
		target = next
	}
	totalBytes := target*itemBytes + headerBytes
	aligned := int(Align(uint64(totalBytes), uint64(align)))
	grown := (aligned - headerBytes) / itemBytes
	if grown < target {
		grown = target
	}
	if grown > maxItems {
		return 0, false
	}
	return grown, true
}

// Options describes a container allocation policy, decoded from YAML at
// service start-up (see LoadOptions) or built by hand. No container
// constructor takes an Options value: the containers always align with
// AlignSize, and ExtWords is applied only by passing it to slotlist.New.
type Options struct {
	// Align is the byte alignment for a block's overall size.
	// Zero selects AlignSize.
	Align int `yaml:"align,omitempty"`
	// ExtWords is the count of caller-reserved header words ahead of a
	// SlotList's metadata. Zero selects ExtSize.
	ExtWords int `yaml:"ext-words,omitempty"`
}

// Resolved fills in zero-valued fields with their documented defaults.
func (o Options) Resolved() Options {
	if o.Align <= 0 {
		o.Align = AlignSize
	}
	if o.ExtWords < 0 {
		o.ExtWords = 0
	}
	return o
}

// LoadOptions reads and decodes Options from a YAML file at path.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("slotconfig: reading %s: %w", path, err)
	}
	var o Options
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Options{}, fmt.Errorf("slotconfig: parsing %s: %w", path, err)
	}
	return o.Resolved(), nil
}
