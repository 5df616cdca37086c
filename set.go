// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cfstructs

import (
	"fmt"
	"strings"
)

// Set is a fixed-capacity hash set using open addressing with linear
// probing over a caller-supplied buffer. It is the Map engine with the
// value region removed: the stored value is both identity and payload.
//
// A Set is NOT goroutine-safe.
type Set[T comparable] struct {
	flags  unsafeSlice[uint8]
	hashes unsafeSlice[uint32]
	values unsafeSlice[T]
	// The total number of slots, fixed at creation.
	capacity uintptr
	// The number of filled slots.
	used int
	eqConfig[T]
}

// NewSet constructs a Set over buf. Capacity is derived from len(buf); use
// SetBufferSize to size the buffer for an expected value count. The buffer
// must be large enough to yield a capacity of at least 1 and must not be
// modified or reused by the caller while the handle is live.
func NewSet[T comparable](buf []byte, options ...Option[T]) *Set[T] {
	entry := hashSize + sizeOf[T]()
	capacity := flaggedCapacity(len(buf), entry)
	flagsLen := capacity/4 + 1

	s := &Set[T]{
		flags:    viewAt[uint8](buf, 0),
		hashes:   viewAt[uint32](buf, flagsLen),
		values:   viewAt[T](buf, flagsLen+hashSize*capacity),
		capacity: capacity,
	}
	for _, op := range options {
		op.apply(&s.eqConfig)
	}

	clear(buf[:flagsLen])
	return s
}

func (s *Set[T]) slotFlags(pos uintptr) (filled, deleted bool) {
	f := *s.flags.At(pos >> 2)
	shift := (pos & 3) << 1
	return f&(flagFilled<<shift) != 0, f&(flagDeleted<<shift) != 0
}

func (s *Set[T]) markFilled(pos uintptr) {
	p := s.flags.At(pos >> 2)
	shift := (pos & 3) << 1
	*p = *p&^(flagDeleted<<shift) | flagFilled<<shift
}

func (s *Set[T]) markDeleted(pos uintptr) {
	p := s.flags.At(pos >> 2)
	shift := (pos & 3) << 1
	*p = *p&^(flagFilled<<shift) | flagDeleted<<shift
}

// Insert adds value to the set; inserting a value that is already present
// is a noop. It reports whether the value is in the set afterwards: false
// means every slot holds a live value and the caller must Copy into a
// larger buffer.
func (s *Set[T]) Insert(hash uint32, value T) bool {
	// The walk remembers the first reusable slot but keeps going until the
	// value or an empty slot appears: claiming a tombstone before ruling
	// out a later occurrence of the value would store it twice.
	free := s.capacity
	for i := uintptr(0); i < s.capacity; i++ {
		pos := (uintptr(hash) + i) % s.capacity

		filled, deleted := s.slotFlags(pos)
		if filled {
			if *s.hashes.At(pos) == hash && s.eq(*s.values.At(pos), value) {
				return true
			}
			continue
		}
		if free == s.capacity {
			free = pos
		}
		if deleted {
			continue
		}
		break
	}
	if free == s.capacity {
		return false
	}

	*s.hashes.At(free) = hash
	*s.values.At(free) = value
	s.markFilled(free)
	s.used++
	s.checkInvariants()
	return true
}

// Has reports whether value is in the set.
func (s *Set[T]) Has(hash uint32, value T) bool {
	for i := uintptr(0); i < s.capacity; i++ {
		pos := (uintptr(hash) + i) % s.capacity

		filled, deleted := s.slotFlags(pos)
		if filled {
			if *s.hashes.At(pos) == hash && s.eq(*s.values.At(pos), value) {
				return true
			}
			continue
		}
		if deleted {
			continue
		}
		return false
	}
	return false
}

// Delete removes value from the set, leaving a tombstone in its slot. It
// is a noop to delete a value that is not present.
func (s *Set[T]) Delete(hash uint32, value T) {
	for i := uintptr(0); i < s.capacity; i++ {
		pos := (uintptr(hash) + i) % s.capacity

		filled, deleted := s.slotFlags(pos)
		if filled {
			if *s.hashes.At(pos) == hash && s.eq(*s.values.At(pos), value) {
				s.markDeleted(pos)
				s.used--
				s.checkInvariants()
				return
			}
			continue
		}
		if deleted {
			continue
		}
		return
	}
}

// Len returns the number of values in the set.
func (s *Set[T]) Len() int {
	return s.used
}

// Cap returns the set's fixed capacity.
func (s *Set[T]) Cap() int {
	return int(s.capacity)
}

// LoadFactor returns the ratio of values to capacity. Once it exceeds 0.70
// the caller should Copy into a larger buffer.
func (s *Set[T]) LoadFactor() float64 {
	return float64(s.used) / float64(s.capacity)
}

// SetIter is a cursor over a Set's values. Acquire one with Iter and
// advance it with Next. The cursor is a plain offset and is cheap to copy;
// any mutation of the set invalidates it.
type SetIter[T comparable] struct {
	s      *Set[T]
	offset uintptr
	value  T
}

// Iter returns a cursor positioned before the first value.
func (s *Set[T]) Iter() SetIter[T] {
	return SetIter[T]{s: s}
}

// Next advances to the next value, reporting false when the table is
// exhausted. Values are yielded in slot order, not insertion order.
func (it *SetIter[T]) Next() bool {
	s := it.s
	for ; it.offset < s.capacity; it.offset++ {
		if filled, _ := s.slotFlags(it.offset); !filled {
			continue
		}
		it.value = *s.values.At(it.offset)
		it.offset++
		return true
	}
	return false
}

// Value returns the value Next advanced to.
func (it *SetIter[T]) Value() T {
	return it.value
}

// All calls yield for each value in the set. If yield returns false,
// iteration stops. The set must not be mutated during iteration.
func (s *Set[T]) All(yield func(value T) bool) {
	for it := s.Iter(); it.Next(); {
		if !yield(it.value) {
			return
		}
	}
}

// Copy rehashes every live value into a new set over buf, which must be
// large enough to hold them (normally: larger than the current buffer).
// The receiver is left untouched and remains usable.
func (s *Set[T]) Copy(buf []byte) *Set[T] {
	dst := NewSet[T](buf)
	dst.equal = s.equal
	for pos := uintptr(0); pos < s.capacity; pos++ {
		if filled, _ := s.slotFlags(pos); filled {
			dst.Insert(*s.hashes.At(pos), *s.values.At(pos))
		}
	}
	return dst
}

func (s *Set[T]) checkInvariants() {
	if invariants {
		var used int
		for pos := uintptr(0); pos < s.capacity; pos++ {
			filled, _ := s.slotFlags(pos)
			if !filled {
				continue
			}
			used++
			if !s.Has(*s.hashes.At(pos), *s.values.At(pos)) {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v not reachable [hash=%08x]\n%s",
					pos, *s.values.At(pos), *s.hashes.At(pos), s.debugString()))
			}
		}
		if used != s.used {
			panic(fmt.Sprintf("invariant failed: found %d filled slots, but used count is %d\n%s",
				used, s.used, s.debugString()))
		}
	}
}

func (s *Set[T]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d\n", s.capacity, s.used)
	for pos := uintptr(0); pos < s.capacity; pos++ {
		switch filled, deleted := s.slotFlags(pos); {
		case filled:
			fmt.Fprintf(&buf, "  %4d: %v [hash=%08x]\n", pos, *s.values.At(pos), *s.hashes.At(pos))
		case deleted:
			fmt.Fprintf(&buf, "  %4d: tombstone\n", pos)
		default:
			fmt.Fprintf(&buf, "  %4d: empty\n", pos)
		}
	}
	return buf.String()
}
