// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cfstructs

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Index constrains the free-list index type of a Pool. For maximum space
// efficiency pick an index type no larger than the element type, since
// each slot must hold whichever of the two is bigger.
type Index interface {
	constraints.Unsigned
}

// Pool is a fixed-capacity pool allocator over a caller-supplied buffer,
// for callers that need pointer-stable single-type allocation rather than
// associative lookup (for example, backing storage for map values that
// must not move). Free slots are threaded into a free list by storing the
// index of the next free slot in the slot's own storage: a slot holds
// either a live T or an I, never both.
//
// A Pool is NOT goroutine-safe.
type Pool[T any, I Index] struct {
	buf unsafe.Pointer
	// Slot stride: max(sizeof(T), sizeof(I)).
	slotSize uintptr
	// The total number of slots, fixed at creation.
	capacity uintptr
	// The number of live elements.
	used int
	// Head of the free list. Meaningless while used == capacity.
	nextFree I
}

// NewPool constructs a Pool over buf. Capacity is derived from len(buf);
// use PoolBufferSize to size the buffer for an element count. The buffer
// must be large enough to yield a capacity of at least 1 and must not be
// modified or reused by the caller while the handle is live. Every slot
// starts on the free list. I must be able to represent every slot index,
// i.e. capacity-1 must fit in it.
func NewPool[T any, I Index](buf []byte) *Pool[T, I] {
	slotSize := poolSlotSize[T, I]()
	capacity := uintptr(len(buf)) / slotSize

	p := &Pool[T, I]{
		buf:      unsafe.Pointer(unsafe.SliceData(buf)),
		slotSize: slotSize,
		capacity: capacity,
	}
	for i := uintptr(0); i < capacity; i++ {
		*p.nextAt(i) = I((i + 1) % capacity)
	}
	p.nextFree = 0
	return p
}

// valueAt and nextAt view the same slot storage as a T and as a free-list
// index; a slot is only ever one of the two at a time.
func (p *Pool[T, I]) valueAt(i uintptr) *T {
	return (*T)(unsafe.Add(p.buf, i*p.slotSize))
}

func (p *Pool[T, I]) nextAt(i uintptr) *I {
	return (*I)(unsafe.Add(p.buf, i*p.slotSize))
}

// Alloc returns a pointer to an unused element, or nil if the pool is
// exhausted. The pointer is stable until the matching Free: elements are
// never moved or compacted. The element's storage is not zeroed.
func (p *Pool[T, I]) Alloc() *T {
	if p.used == int(p.capacity) {
		return nil
	}
	i := uintptr(p.nextFree)
	p.nextFree = *p.nextAt(i)
	p.used++
	return p.valueAt(i)
}

// Free returns an element to the pool. The pointer must have come from
// Alloc on this pool and must not have been freed already; neither is
// checked.
func (p *Pool[T, I]) Free(element *T) {
	i := (uintptr(unsafe.Pointer(element)) - uintptr(p.buf)) / p.slotSize
	*p.nextAt(i) = p.nextFree
	p.nextFree = I(i)
	p.used--
}

// Len returns the number of live elements in the pool.
func (p *Pool[T, I]) Len() int {
	return p.used
}

// Cap returns the pool's fixed capacity.
func (p *Pool[T, I]) Cap() int {
	return int(p.capacity)
}

// LoadFactor returns the ratio of live elements to capacity. The pool
// never resizes itself; this is informational only.
func (p *Pool[T, I]) LoadFactor() float64 {
	return float64(p.used) / float64(p.capacity)
}
