// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cfstructs provides fixed-capacity, buffer-backed associative
// containers (a key/value hash map and a hash set) and a fixed-size-element
// pool allocator for code that must avoid or tightly control dynamic
// allocation: embedded targets, real-time loops, arenas, and other
// cache-sensitive code.
//
// # Caller-owned memory
//
// Every container is created over a single contiguous byte buffer supplied
// by the caller. The container partitions the buffer into parallel regions
// in a Struct-of-Arrays fashion -- flags (local probing only), hashes, keys,
// values -- and never allocates, grows, or shrinks on its own. Capacity is
// fixed at creation and derived from len(buf). Growth is explicit: the
// caller acquires a second, larger buffer and calls Copy, which rehashes
// into a fresh handle; the old buffer can then be reused or discarded, at
// which point the old handle is dead.
//
// The *BufferSize helpers compute a buffer size for an estimated element
// count that keeps the table under the strategy's target load factor (0.70
// for local probing, 0.90 for robin hood). A buffer too small to yield a
// capacity of at least 1 results in undefined behavior; this is a caller
// precondition, not a checked error.
//
// # Hashing
//
// The containers never hash anything. Every operation takes a caller
// computed 32-bit hash alongside the key. The usual contract applies:
// equal keys must be given equal hashes, and hashes should be uniformly
// distributed for good probe behavior.
//
// # Collision strategies
//
// Two open-addressing strategies are provided. Map and Set use linear
// probing with a 2-bit-per-slot flags region (filled bit, deleted bit);
// deleted slots are tombstones that probe sequences must walk past.
// RobinHoodMap and RobinHoodSet use robin hood hashing: no flags region,
// hash value 0 is reserved to mean "empty" (a real hash of 0 is remapped
// to 1) and the top bit of a stored hash marks a tombstone, leaving a
// 31-bit effective hash that preserves the probe distance information the
// displacement logic needs. Robin hood insertion keeps probe distances
// along any walk non-decreasing, which is what allows lookups to stop
// early once the resident entry is "richer" than the probe.
//
// # Restrictions
//
// Keys and values are stored by copy inside the caller's byte buffer, so
// they must not contain pointers (no strings, slices, maps, or pointer
// fields): the garbage collector does not scan the buffer. Regions are
// packed with no padding between them, so element types must tolerate
// unaligned access; this rules out platforms that trap on unaligned loads,
// the same trade the layout makes in exchange for zero overhead.
//
// No container is goroutine-safe. Operations never block and never
// allocate; each one is a bounded scan of at most capacity slots.
package cfstructs

import "unsafe"

const (
	// A robin hood slot holding emptyHash has never been written.
	emptyHash uint32 = 0
	// tombstoneBit marks a robin hood slot whose entry was removed. The
	// low 31 bits keep the masked hash so probe distances stay computable.
	tombstoneBit uint32 = 1 << 31

	// Per-slot flag bits for the local probing containers, 2 bits per
	// slot packed 4 slots to a byte.
	flagFilled  uint8 = 1
	flagDeleted uint8 = 2
)

// unsafeSlice provides semi-ergonomic limited slice-like functionality
// without bounds checking for fixed sized regions of the caller's buffer.
type unsafeSlice[T any] struct {
	ptr unsafe.Pointer
}

// viewAt returns a typed view of buf starting at byte offset off.
func viewAt[T any](buf []byte, off uintptr) unsafeSlice[T] {
	return unsafeSlice[T]{ptr: unsafe.Add(unsafe.Pointer(unsafe.SliceData(buf)), off)}
}

// At returns a pointer to the element at index i.
func (s unsafeSlice[T]) At(i uintptr) *T {
	var t T
	return (*T)(unsafe.Add(s.ptr, unsafe.Sizeof(t)*i))
}

func unsafeConvertSlice[Dest any, Src any](s []Src) []Dest {
	return unsafe.Slice((*Dest)(unsafe.Pointer(unsafe.SliceData(s))), len(s))
}

func sizeOf[T any]() uintptr {
	var t T
	return unsafe.Sizeof(t)
}
