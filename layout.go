// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cfstructs

// Buffer sizing and capacity derivation.
//
// A buffer holds, in order: an optional flags region of capacity/4+1 bytes
// (2 bits per slot, local probing only), capacity 4-byte hashes, capacity
// keys, and (maps only) capacity values. The forward direction computes a
// buffer size for an element estimate that keeps the table under the
// strategy's target load factor. The inverse direction derives the largest
// capacity that fits in an actual buffer. Both are pure integer arithmetic.
//
// Derived capacity is conservative by at most one slot relative to the
// exact rational solution; the flagged sizing helpers pad the flags region
// by one byte to absorb that, so a buffer sized for n elements derives
// exactly the intended capacity and stays under the target load factor.

const hashSize = 4

// flaggedCapacity returns the largest capacity c such that
// entrySize*c + c/4 + 1 <= bufLen, i.e. the slot count for a buffer that
// also carries a 2-bit-per-slot flags region.
func flaggedCapacity(bufLen int, entrySize uintptr) uintptr {
	if bufLen < 1 {
		return 0
	}
	return uintptr(4 * (bufLen - 1) / (4*int(entrySize) + 1))
}

// packedCapacity returns bufLen/entrySize, the slot count for a buffer
// with no flags region.
func packedCapacity(bufLen int, entrySize uintptr) uintptr {
	return uintptr(bufLen) / entrySize
}

// MapBufferSize returns a buffer size in bytes for a Map[K, V] expected to
// hold numElements entries while staying under a 0.70 load factor.
func MapBufferSize[K comparable, V any](numElements int) int {
	entry := int(hashSize + sizeOf[K]() + sizeOf[V]())
	capacity := 3*numElements/2 + 1
	return entry*capacity + capacity/4 + 2
}

// SetBufferSize returns a buffer size in bytes for a Set[T] expected to
// hold numElements values while staying under a 0.70 load factor.
func SetBufferSize[T comparable](numElements int) int {
	entry := int(hashSize + sizeOf[T]())
	capacity := 3*numElements/2 + 1
	return entry*capacity + capacity/4 + 2
}

// RobinHoodMapBufferSize returns a buffer size in bytes for a
// RobinHoodMap[K, V] expected to hold numElements entries while staying
// under a 0.90 load factor.
func RobinHoodMapBufferSize[K comparable, V any](numElements int) int {
	entry := int(hashSize + sizeOf[K]() + sizeOf[V]())
	capacity := (10*numElements + 8) / 9
	return entry * capacity
}

// RobinHoodSetBufferSize returns a buffer size in bytes for a
// RobinHoodSet[T] expected to hold numElements values while staying under
// a 0.90 load factor.
func RobinHoodSetBufferSize[T comparable](numElements int) int {
	entry := int(hashSize + sizeOf[T]())
	capacity := (10*numElements + 8) / 9
	return entry * capacity
}

// PoolBufferSize returns a buffer size in bytes for a Pool[T, I] holding
// numElements elements. Each slot stores either a T or an I free-list
// index, so the slot size is whichever is larger.
func PoolBufferSize[T any, I Index](numElements int) int {
	return int(poolSlotSize[T, I]()) * numElements
}

func poolSlotSize[T any, I Index]() uintptr {
	if s := sizeOf[T](); s > sizeOf[I]() {
		return s
	}
	return sizeOf[I]()
}
