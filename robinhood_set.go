// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cfstructs

import (
	"fmt"
	"strings"
)

// RobinHoodSet is a fixed-capacity hash set using open addressing with
// robin hood hashing over a caller-supplied buffer. It is the RobinHoodMap
// engine with the value region removed: the stored value is both identity
// and payload. Slot state lives in the stored hash (0 means empty, the top
// bit marks a tombstone), exactly as in RobinHoodMap.
//
// A RobinHoodSet is NOT goroutine-safe.
type RobinHoodSet[T comparable] struct {
	hashes unsafeSlice[uint32]
	values unsafeSlice[T]
	// The total number of slots, fixed at creation.
	capacity uintptr
	// The number of live values.
	used int
	// The number of slots still holding emptyHash; see RobinHoodMap.
	empties uintptr
	eqConfig[T]
}

// NewRobinHoodSet constructs a RobinHoodSet over buf. Capacity is derived
// from len(buf); use RobinHoodSetBufferSize to size the buffer for an
// expected value count. The buffer must be large enough to yield a
// capacity of at least 1 and must not be modified or reused by the caller
// while the handle is live.
func NewRobinHoodSet[T comparable](buf []byte, options ...Option[T]) *RobinHoodSet[T] {
	entry := hashSize + sizeOf[T]()
	capacity := packedCapacity(len(buf), entry)

	s := &RobinHoodSet[T]{
		hashes:   viewAt[uint32](buf, 0),
		values:   viewAt[T](buf, hashSize*capacity),
		capacity: capacity,
		empties:  capacity,
	}
	for _, op := range options {
		op.apply(&s.eqConfig)
	}

	clear(buf[:hashSize*capacity])
	return s
}

func (s *RobinHoodSet[T]) probeDistance(pos uintptr, hash uint32) uintptr {
	ideal := uintptr(hash&^tombstoneBit) % s.capacity
	return (pos + s.capacity - ideal) % s.capacity
}

// lookupPos walks from the hash's ideal slot; see RobinHoodMap.lookupPos
// for the termination argument.
func (s *RobinHoodSet[T]) lookupPos(hash uint32, value T) (uintptr, bool) {
	pos := uintptr(hash) % s.capacity
	distance := uintptr(0)

	for i := uintptr(0); i < s.capacity; i++ {
		h := *s.hashes.At(pos)
		if h == emptyHash {
			return 0, false
		}
		if distance > s.probeDistance(pos, h) {
			return 0, false
		}
		if h == hash && s.eq(*s.values.At(pos), value) {
			return pos, true
		}
		pos = (pos + 1) % s.capacity
		distance++
	}
	return 0, false
}

// Insert adds value to the set; inserting a value that is already present
// is a noop. It reports whether the value is in the set afterwards: false
// means no empty slot remains and the caller must Copy into a larger
// buffer.
func (s *RobinHoodSet[T]) Insert(hash uint32, value T) bool {
	hash = normalizeHash(hash)
	if _, ok := s.lookupPos(hash, value); ok {
		return true
	}
	if s.empties == 0 {
		return false
	}

	pos := uintptr(hash) % s.capacity
	distance := uintptr(0)

	for {
		h := *s.hashes.At(pos)
		if h == emptyHash {
			*s.hashes.At(pos) = hash
			*s.values.At(pos) = value
			s.empties--
			s.used++
			s.checkInvariants()
			return true
		}

		if resident := s.probeDistance(pos, h); resident < distance {
			if h&tombstoneBit != 0 {
				*s.hashes.At(pos) = hash
				*s.values.At(pos) = value
				s.used++
				s.checkInvariants()
				return true
			}
			hash, *s.hashes.At(pos) = h, hash
			value, *s.values.At(pos) = *s.values.At(pos), value
			distance = resident
		}

		pos = (pos + 1) % s.capacity
		distance++
	}
}

// Has reports whether value is in the set.
func (s *RobinHoodSet[T]) Has(hash uint32, value T) bool {
	_, ok := s.lookupPos(normalizeHash(hash), value)
	return ok
}

// Delete removes value from the set by setting the tombstone bit on its
// stored hash. It is a noop to delete a value that is not present.
func (s *RobinHoodSet[T]) Delete(hash uint32, value T) {
	pos, ok := s.lookupPos(normalizeHash(hash), value)
	if !ok {
		return
	}
	*s.hashes.At(pos) |= tombstoneBit
	s.used--
	s.checkInvariants()
}

// Len returns the number of values in the set.
func (s *RobinHoodSet[T]) Len() int {
	return s.used
}

// Cap returns the set's fixed capacity.
func (s *RobinHoodSet[T]) Cap() int {
	return int(s.capacity)
}

// LoadFactor returns the ratio of values to capacity. Copy into a larger
// buffer once this exceeds about 0.90.
func (s *RobinHoodSet[T]) LoadFactor() float64 {
	return float64(s.used) / float64(s.capacity)
}

// RobinHoodSetIter is a cursor over a RobinHoodSet's values. Acquire one
// with Iter and advance it with Next. The cursor is a plain offset and is
// cheap to copy; any mutation of the set invalidates it.
type RobinHoodSetIter[T comparable] struct {
	s      *RobinHoodSet[T]
	offset uintptr
	value  T
}

// Iter returns a cursor positioned before the first value.
func (s *RobinHoodSet[T]) Iter() RobinHoodSetIter[T] {
	return RobinHoodSetIter[T]{s: s}
}

// Next advances to the next value, reporting false when the table is
// exhausted. Values are yielded in slot order, not insertion order.
func (it *RobinHoodSetIter[T]) Next() bool {
	s := it.s
	for ; it.offset < s.capacity; it.offset++ {
		h := *s.hashes.At(it.offset)
		if h == emptyHash || h&tombstoneBit != 0 {
			continue
		}
		it.value = *s.values.At(it.offset)
		it.offset++
		return true
	}
	return false
}

// Value returns the value Next advanced to.
func (it *RobinHoodSetIter[T]) Value() T {
	return it.value
}

// All calls yield for each value in the set. If yield returns false,
// iteration stops. The set must not be mutated during iteration.
func (s *RobinHoodSet[T]) All(yield func(value T) bool) {
	for it := s.Iter(); it.Next(); {
		if !yield(it.value) {
			return
		}
	}
}

// Copy rehashes every live value into a new set over buf, which must be
// large enough to hold them (normally: larger than the current buffer).
// The receiver is left untouched and remains usable.
func (s *RobinHoodSet[T]) Copy(buf []byte) *RobinHoodSet[T] {
	dst := NewRobinHoodSet[T](buf)
	dst.equal = s.equal
	for pos := uintptr(0); pos < s.capacity; pos++ {
		h := *s.hashes.At(pos)
		if h == emptyHash || h&tombstoneBit != 0 {
			continue
		}
		dst.Insert(h, *s.values.At(pos))
	}
	return dst
}

func (s *RobinHoodSet[T]) checkInvariants() {
	if invariants {
		var used int
		var empties uintptr
		for pos := uintptr(0); pos < s.capacity; pos++ {
			h := *s.hashes.At(pos)
			switch {
			case h == emptyHash:
				empties++
			case h&tombstoneBit != 0:
			default:
				used++
				if !s.Has(h, *s.values.At(pos)) {
					panic(fmt.Sprintf("invariant failed: slot(%d): %v not reachable [hash=%08x]\n%s",
						pos, *s.values.At(pos), h, s.debugString()))
				}
				prev := (pos + s.capacity - 1) % s.capacity
				ph := *s.hashes.At(prev)
				if ph != emptyHash && s.probeDistance(pos, h) > s.probeDistance(prev, ph)+1 {
					panic(fmt.Sprintf("invariant failed: slot(%d) distance %d follows slot(%d) distance %d\n%s",
						pos, s.probeDistance(pos, h), prev, s.probeDistance(prev, ph), s.debugString()))
				}
			}
		}
		if used != s.used {
			panic(fmt.Sprintf("invariant failed: found %d live slots, but used count is %d\n%s",
				used, s.used, s.debugString()))
		}
		if empties != s.empties {
			panic(fmt.Sprintf("invariant failed: found %d empty slots, but empties count is %d\n%s",
				empties, s.empties, s.debugString()))
		}
	}
}

func (s *RobinHoodSet[T]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  empties=%d\n", s.capacity, s.used, s.empties)
	for pos := uintptr(0); pos < s.capacity; pos++ {
		switch h := *s.hashes.At(pos); {
		case h == emptyHash:
			fmt.Fprintf(&buf, "  %4d: empty\n", pos)
		case h&tombstoneBit != 0:
			fmt.Fprintf(&buf, "  %4d: tombstone [hash=%08x distance=%d]\n",
				pos, h&^tombstoneBit, s.probeDistance(pos, h))
		default:
			fmt.Fprintf(&buf, "  %4d: %v [hash=%08x distance=%d]\n",
				pos, *s.values.At(pos), h, s.probeDistance(pos, h))
		}
	}
	return buf.String()
}
