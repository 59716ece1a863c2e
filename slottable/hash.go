// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package slottable

import (
	"encoding/binary"
	"hash/maphash"
)

// DefaultHasher hashes string-like keys with a process-seeded
// hash/maphash.Hash. It is a convenience for the common case where keys
// are plain strings; callers with non-comparable or semantically
// custom-equal keys still supply their own Hasher, the way the spec's
// external-collaborator model intends.
//
// This is grounded on key/hash.go's use of maphash.Seed to hash
// arbitrary key types for gomap.Map, but deliberately avoids that file's
// unsafe go:linkname hook into runtime.strhash: the stdlib's public
// maphash.Hash is an equally seeded, DoS-resistant hash without the
// unsafe dependency.
type DefaultHasher[K ~string] struct {
	seed maphash.Seed
}

// NewDefaultHasher creates a DefaultHasher with a fresh random seed.
func NewDefaultHasher[K ~string]() DefaultHasher[K] {
	return DefaultHasher[K]{seed: maphash.MakeSeed()}
}

// Hash implements Hasher.
func (d DefaultHasher[K]) Hash(key K) uint32 {
	var h maphash.Hash
	h.SetSeed(d.seed)
	h.WriteString(string(key))
	return uint32(h.Sum64())
}

// IntHasher hashes fixed-width integer keys the same way DefaultHasher
// hashes strings.
type IntHasher[K ~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64] struct {
	seed maphash.Seed
}

// NewIntHasher creates an IntHasher with a fresh random seed.
func NewIntHasher[K ~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64]() IntHasher[K] {
	return IntHasher[K]{seed: maphash.MakeSeed()}
}

// Hash implements Hasher.
func (ih IntHasher[K]) Hash(key K) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	var h maphash.Hash
	h.SetSeed(ih.seed)
	h.Write(buf[:])
	return uint32(h.Sum64())
}

// KeyEqual builds a Comparator from a function that projects a stored
// record down to its key, for the common case where V's identity is
// just one comparable field.
func KeyEqual[K comparable, V any](keyOf func(V) K) Comparator[K, V] {
	return ComparatorFunc[K, V](func(key K, data V) bool {
		return keyOf(data) == key
	})
}
