// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cfstructs

import (
	"fmt"
	"strings"
)

// Map is a fixed-capacity hash map using open addressing with linear
// probing over a caller-supplied buffer. The buffer holds four parallel
// regions: 2-bit slot flags, 32-bit hashes, keys, and values. Each slot is
// empty, filled, or deleted (a tombstone); tombstones keep probe sequences
// that once walked through the slot intact.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	// Region views are computed once at creation and stay valid for the
	// lifetime of the handle; Copy builds a fresh handle over the new
	// buffer rather than repointing these.
	flags  unsafeSlice[uint8]
	hashes unsafeSlice[uint32]
	keys   unsafeSlice[K]
	values unsafeSlice[V]
	// The total number of slots, fixed at creation.
	capacity uintptr
	// The number of filled slots (i.e. the number of elements in the map).
	used int
	eqConfig[K]
}

// NewMap constructs a Map over buf. Capacity is derived from len(buf); use
// MapBufferSize to size the buffer for an expected element count. The
// buffer must be large enough to yield a capacity of at least 1 and must
// not be modified or reused by the caller while the handle is live.
func NewMap[K comparable, V any](buf []byte, options ...Option[K]) *Map[K, V] {
	entry := hashSize + sizeOf[K]() + sizeOf[V]()
	capacity := flaggedCapacity(len(buf), entry)
	flagsLen := capacity/4 + 1

	m := &Map[K, V]{
		flags:    viewAt[uint8](buf, 0),
		hashes:   viewAt[uint32](buf, flagsLen),
		keys:     viewAt[K](buf, flagsLen+hashSize*capacity),
		values:   viewAt[V](buf, flagsLen+(hashSize+sizeOf[K]())*capacity),
		capacity: capacity,
	}
	for _, op := range options {
		op.apply(&m.eqConfig)
	}

	// Clearing the flags region is all the initialization the buffer
	// needs: hashes, keys and values are only ever read from filled slots.
	clear(buf[:flagsLen])
	return m
}

// slotFlags reports the filled and deleted bits for slot pos.
func (m *Map[K, V]) slotFlags(pos uintptr) (filled, deleted bool) {
	f := *m.flags.At(pos >> 2)
	shift := (pos & 3) << 1
	return f&(flagFilled<<shift) != 0, f&(flagDeleted<<shift) != 0
}

// markFilled sets the filled bit and clears the deleted bit for slot pos.
func (m *Map[K, V]) markFilled(pos uintptr) {
	p := m.flags.At(pos >> 2)
	shift := (pos & 3) << 1
	*p = *p&^(flagDeleted<<shift) | flagFilled<<shift
}

// markDeleted clears the filled bit and sets the deleted bit for slot pos.
func (m *Map[K, V]) markDeleted(pos uintptr) {
	p := m.flags.At(pos >> 2)
	shift := (pos & 3) << 1
	*p = *p&^(flagFilled<<shift) | flagDeleted<<shift
}

// Set associates key with value, overwriting the value if an entry with
// the same hash and key already exists. It reports whether the entry was
// stored: false means every slot holds a live entry and the caller must
// Copy into a larger buffer.
func (m *Map[K, V]) Set(hash uint32, key K, value V) bool {
	// The walk remembers the first reusable slot but keeps going until the
	// key or an empty slot appears: claiming a tombstone before ruling out
	// a later occurrence of the key would store it twice.
	free := m.capacity
	for i := uintptr(0); i < m.capacity; i++ {
		pos := (uintptr(hash) + i) % m.capacity

		filled, deleted := m.slotFlags(pos)
		if filled {
			if *m.hashes.At(pos) == hash && m.eq(*m.keys.At(pos), key) {
				*m.values.At(pos) = value
				return true
			}
			continue
		}
		if free == m.capacity {
			free = pos
		}
		if deleted {
			continue
		}
		break
	}
	if free == m.capacity {
		return false
	}

	// Reusing a tombstone found on this walk is safe because any probe for
	// this key walks the same sequence.
	*m.hashes.At(free) = hash
	*m.keys.At(free) = key
	*m.values.At(free) = value
	m.markFilled(free)
	m.used++
	m.checkInvariants()
	return true
}

// Get retrieves the value for the given hash and key, returning ok=false
// if no entry is present. The walk stops at the first empty slot: a gap
// proves absence, since insertion never skips over an empty slot.
func (m *Map[K, V]) Get(hash uint32, key K) (value V, ok bool) {
	for i := uintptr(0); i < m.capacity; i++ {
		pos := (uintptr(hash) + i) % m.capacity

		filled, deleted := m.slotFlags(pos)
		if filled {
			if *m.hashes.At(pos) == hash && m.eq(*m.keys.At(pos), key) {
				return *m.values.At(pos), true
			}
			continue
		}
		if deleted {
			// Tombstone: the entry may still be further along the walk.
			continue
		}
		return value, false
	}
	return value, false
}

// Delete removes the entry for the given hash and key, leaving a tombstone
// in its slot. It is a noop to delete a non-existent entry.
func (m *Map[K, V]) Delete(hash uint32, key K) {
	for i := uintptr(0); i < m.capacity; i++ {
		pos := (uintptr(hash) + i) % m.capacity

		filled, deleted := m.slotFlags(pos)
		if filled {
			if *m.hashes.At(pos) == hash && m.eq(*m.keys.At(pos), key) {
				m.markDeleted(pos)
				m.used--
				m.checkInvariants()
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

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// Cap returns the map's fixed capacity.
func (m *Map[K, V]) Cap() int {
	return int(m.capacity)
}

// LoadFactor returns the ratio of entries to capacity. Once it exceeds
// 0.70 the caller should Copy into a larger buffer; linear probing
// degrades quickly past that point.
func (m *Map[K, V]) LoadFactor() float64 {
	return float64(m.used) / float64(m.capacity)
}

// MapIter is a cursor over a Map's entries. Acquire one with Iter and
// advance it with Next. The cursor is a plain offset and is cheap to copy;
// any mutation of the map invalidates it.
type MapIter[K comparable, V any] struct {
	m      *Map[K, V]
	offset uintptr
	key    K
	value  V
}

// Iter returns a cursor positioned before the first entry.
func (m *Map[K, V]) Iter() MapIter[K, V] {
	return MapIter[K, V]{m: m}
}

// Next advances to the next entry, reporting false when the table is
// exhausted. Entries are yielded in slot order, not insertion order.
func (it *MapIter[K, V]) Next() bool {
	m := it.m
	for ; it.offset < m.capacity; it.offset++ {
		if filled, _ := m.slotFlags(it.offset); !filled {
			continue
		}
		it.key = *m.keys.At(it.offset)
		it.value = *m.values.At(it.offset)
		it.offset++
		return true
	}
	return false
}

// Key returns the key of the entry Next advanced to.
func (it *MapIter[K, V]) Key() K {
	return it.key
}

// Value returns the value of the entry Next advanced to.
func (it *MapIter[K, V]) Value() V {
	return it.value
}

// All calls yield for each entry in the map. If yield returns false,
// iteration stops. The map must not be mutated during iteration.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	for it := m.Iter(); it.Next(); {
		if !yield(it.key, it.value) {
			return
		}
	}
}

// Copy rehashes every live entry into a new map over buf, which must be
// large enough to hold them (normally: larger than the current buffer).
// The receiver is left untouched and remains usable. Tombstones are not
// carried over, so Copy also serves to compact a tombstone-heavy table.
func (m *Map[K, V]) Copy(buf []byte) *Map[K, V] {
	dst := NewMap[K, V](buf)
	dst.equal = m.equal
	for pos := uintptr(0); pos < m.capacity; pos++ {
		if filled, _ := m.slotFlags(pos); filled {
			dst.Set(*m.hashes.At(pos), *m.keys.At(pos), *m.values.At(pos))
		}
	}
	return dst
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		var used int
		for pos := uintptr(0); pos < m.capacity; pos++ {
			filled, _ := m.slotFlags(pos)
			if !filled {
				continue
			}
			used++
			h, k := *m.hashes.At(pos), *m.keys.At(pos)
			if _, ok := m.Get(h, k); !ok {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v not reachable [hash=%08x]\n%s",
					pos, k, h, m.debugString()))
			}
		}
		if used != m.used {
			panic(fmt.Sprintf("invariant failed: found %d filled slots, but used count is %d\n%s",
				used, m.used, m.debugString()))
		}
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d\n", m.capacity, m.used)
	for pos := uintptr(0); pos < m.capacity; pos++ {
		switch filled, deleted := m.slotFlags(pos); {
		case filled:
			fmt.Fprintf(&buf, "  %4d: %v [hash=%08x]\n", pos, *m.keys.At(pos), *m.hashes.At(pos))
		case deleted:
			fmt.Fprintf(&buf, "  %4d: tombstone\n", pos)
		default:
			fmt.Fprintf(&buf, "  %4d: empty\n", pos)
		}
	}
	return buf.String()
}
