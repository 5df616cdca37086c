// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cfstructs

import (
	"fmt"
	"strings"
)

// RobinHoodMap is a fixed-capacity hash map using open addressing with
// robin hood hashing over a caller-supplied buffer. The buffer holds three
// parallel regions: 32-bit hashes, keys, and values. There is no flags
// region; slot state lives in the stored hash (0 means empty, the top bit
// marks a tombstone), which makes real hashes effectively 31-bit.
//
// The defining invariant: for any occupied slot, the sequence of probe
// distances along a hash's walk is non-decreasing until the entry or an
// empty slot appears. Insertion maintains this by displacing entries that
// sit closer to their ideal slot ("richer") in favor of entries that have
// probed farther ("poorer"), which bounds lookup cost variance and lets
// lookups terminate as soon as the walk meets a richer resident.
//
// A RobinHoodMap is NOT goroutine-safe.
type RobinHoodMap[K comparable, V any] struct {
	hashes unsafeSlice[uint32]
	keys   unsafeSlice[K]
	values unsafeSlice[V]
	// The total number of slots, fixed at creation.
	capacity uintptr
	// The number of live entries.
	used int
	// The number of slots still holding emptyHash. Tombstones are not
	// counted: once written, a slot never returns to empty. Insertion of
	// a new key requires empties > 0, which is exactly the condition
	// under which the displacement loop is guaranteed to terminate.
	empties uintptr
	eqConfig[K]
}

// normalizeHash maps a caller hash into the representable range: 0 is
// reserved for empty slots and the top bit for tombstones. The mask runs
// first: a hash whose low 31 bits are all zero must land on 1, not on the
// empty sentinel.
func normalizeHash(hash uint32) uint32 {
	hash &^= tombstoneBit
	if hash == emptyHash {
		return emptyHash + 1
	}
	return hash
}

// NewRobinHoodMap constructs a RobinHoodMap over buf. Capacity is derived
// from len(buf); use RobinHoodMapBufferSize to size the buffer for an
// expected element count. The buffer must be large enough to yield a
// capacity of at least 1 and must not be modified or reused by the caller
// while the handle is live.
func NewRobinHoodMap[K comparable, V any](buf []byte, options ...Option[K]) *RobinHoodMap[K, V] {
	entry := hashSize + sizeOf[K]() + sizeOf[V]()
	capacity := packedCapacity(len(buf), entry)

	m := &RobinHoodMap[K, V]{
		hashes:   viewAt[uint32](buf, 0),
		keys:     viewAt[K](buf, hashSize*capacity),
		values:   viewAt[V](buf, (hashSize+sizeOf[K]())*capacity),
		capacity: capacity,
		empties:  capacity,
	}
	for _, op := range options {
		op.apply(&m.eqConfig)
	}

	clear(buf[:hashSize*capacity])
	return m
}

// probeDistance returns how far the hash stored at pos sits from its ideal
// slot, ignoring the tombstone bit.
func (m *RobinHoodMap[K, V]) probeDistance(pos uintptr, hash uint32) uintptr {
	ideal := uintptr(hash&^tombstoneBit) % m.capacity
	return (pos + m.capacity - ideal) % m.capacity
}

// lookupPos walks from the hash's ideal slot tracking the accumulated
// probe distance. The walk ends in failure at an empty slot or as soon as
// the resident's own probe distance drops below the accumulated one: the
// non-decreasing distance invariant proves the key cannot be further on.
// Tombstones keep the walk going and never match (their top bit is set).
func (m *RobinHoodMap[K, V]) lookupPos(hash uint32, key K) (uintptr, bool) {
	pos := uintptr(hash) % m.capacity
	distance := uintptr(0)

	for i := uintptr(0); i < m.capacity; i++ {
		h := *m.hashes.At(pos)
		if h == emptyHash {
			return 0, false
		}
		if distance > m.probeDistance(pos, h) {
			return 0, false
		}
		if h == hash && m.eq(*m.keys.At(pos), key) {
			return pos, true
		}
		pos = (pos + 1) % m.capacity
		distance++
	}
	return 0, false
}

// insert places an entry known not to be in the table, displacing richer
// residents as it goes. The caller must have checked empties > 0.
func (m *RobinHoodMap[K, V]) insert(hash uint32, key K, value V) {
	pos := uintptr(hash) % m.capacity
	distance := uintptr(0)

	for {
		h := *m.hashes.At(pos)
		if h == emptyHash {
			*m.hashes.At(pos) = hash
			*m.keys.At(pos) = key
			*m.values.At(pos) = value
			m.empties--
			m.used++
			return
		}

		if resident := m.probeDistance(pos, h); resident < distance {
			// The resident sits closer to home than the carried entry.
			if h&tombstoneBit != 0 {
				// Dead resident: take the slot outright.
				*m.hashes.At(pos) = hash
				*m.keys.At(pos) = key
				*m.values.At(pos) = value
				m.used++
				return
			}
			// Live resident: swap and carry the evicted entry onward,
			// starting from the distance it had already accumulated.
			hash, *m.hashes.At(pos) = h, hash
			key, *m.keys.At(pos) = *m.keys.At(pos), key
			value, *m.values.At(pos) = *m.values.At(pos), value
			distance = resident
		}

		pos = (pos + 1) % m.capacity
		distance++
	}
}

// Set associates key with value, overwriting the value in place if an
// entry with the same hash and key already exists (its slot and probe
// distance are unchanged). It reports whether the entry was stored: false
// means no empty slot remains and the caller must Copy into a larger
// buffer.
func (m *RobinHoodMap[K, V]) Set(hash uint32, key K, value V) bool {
	hash = normalizeHash(hash)
	if pos, ok := m.lookupPos(hash, key); ok {
		*m.values.At(pos) = value
		return true
	}
	if m.empties == 0 {
		return false
	}
	m.insert(hash, key, value)
	m.checkInvariants()
	return true
}

// Get retrieves the value for the given hash and key, returning ok=false
// if no entry is present.
func (m *RobinHoodMap[K, V]) Get(hash uint32, key K) (value V, ok bool) {
	pos, ok := m.lookupPos(normalizeHash(hash), key)
	if ok {
		value = *m.values.At(pos)
	}
	return value, ok
}

// Delete removes the entry for the given hash and key by setting the
// tombstone bit on its stored hash; the masked hash stays behind so probe
// distances of later walks remain computable. No backward-shift compaction
// is performed. It is a noop to delete a non-existent entry.
func (m *RobinHoodMap[K, V]) Delete(hash uint32, key K) {
	pos, ok := m.lookupPos(normalizeHash(hash), key)
	if !ok {
		return
	}
	*m.hashes.At(pos) |= tombstoneBit
	m.used--
	m.checkInvariants()
}

// Len returns the number of entries in the map.
func (m *RobinHoodMap[K, V]) Len() int {
	return m.used
}

// Cap returns the map's fixed capacity.
func (m *RobinHoodMap[K, V]) Cap() int {
	return int(m.capacity)
}

// LoadFactor returns the ratio of entries to capacity. Robin hood probing
// stays well-behaved up to much higher loads than linear probing; Copy
// into a larger buffer once this exceeds about 0.90.
func (m *RobinHoodMap[K, V]) LoadFactor() float64 {
	return float64(m.used) / float64(m.capacity)
}

// RobinHoodMapIter is a cursor over a RobinHoodMap's entries. Acquire one
// with Iter and advance it with Next. The cursor is a plain offset and is
// cheap to copy; any mutation of the map invalidates it.
type RobinHoodMapIter[K comparable, V any] struct {
	m      *RobinHoodMap[K, V]
	offset uintptr
	key    K
	value  V
}

// Iter returns a cursor positioned before the first entry.
func (m *RobinHoodMap[K, V]) Iter() RobinHoodMapIter[K, V] {
	return RobinHoodMapIter[K, V]{m: m}
}

// Next advances to the next entry, reporting false when the table is
// exhausted. Entries are yielded in slot order, not insertion order.
func (it *RobinHoodMapIter[K, V]) Next() bool {
	m := it.m
	for ; it.offset < m.capacity; it.offset++ {
		h := *m.hashes.At(it.offset)
		if h == emptyHash || h&tombstoneBit != 0 {
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
func (it *RobinHoodMapIter[K, V]) Key() K {
	return it.key
}

// Value returns the value of the entry Next advanced to.
func (it *RobinHoodMapIter[K, V]) Value() V {
	return it.value
}

// All calls yield for each entry in the map. If yield returns false,
// iteration stops. The map must not be mutated during iteration.
func (m *RobinHoodMap[K, V]) All(yield func(key K, value V) bool) {
	for it := m.Iter(); it.Next(); {
		if !yield(it.key, it.value) {
			return
		}
	}
}

// Copy rehashes every live entry into a new map over buf, which must be
// large enough to hold them (normally: larger than the current buffer).
// The receiver is left untouched and remains usable. Tombstones are not
// carried over, so Copy restores the empty slots deletion consumed.
func (m *RobinHoodMap[K, V]) Copy(buf []byte) *RobinHoodMap[K, V] {
	dst := NewRobinHoodMap[K, V](buf)
	dst.equal = m.equal
	for pos := uintptr(0); pos < m.capacity; pos++ {
		h := *m.hashes.At(pos)
		if h == emptyHash || h&tombstoneBit != 0 {
			continue
		}
		dst.Set(h, *m.keys.At(pos), *m.values.At(pos))
	}
	return dst
}

func (m *RobinHoodMap[K, V]) checkInvariants() {
	if invariants {
		var used int
		var empties uintptr
		for pos := uintptr(0); pos < m.capacity; pos++ {
			h := *m.hashes.At(pos)
			switch {
			case h == emptyHash:
				empties++
			case h&tombstoneBit != 0:
			default:
				used++
				if _, ok := m.Get(h, *m.keys.At(pos)); !ok {
					panic(fmt.Sprintf("invariant failed: slot(%d): %v not reachable [hash=%08x]\n%s",
						pos, *m.keys.At(pos), h, m.debugString()))
				}
				// A non-empty predecessor must not be richer by more
				// than the one step separating the slots.
				prev := (pos + m.capacity - 1) % m.capacity
				ph := *m.hashes.At(prev)
				if ph != emptyHash && m.probeDistance(pos, h) > m.probeDistance(prev, ph)+1 {
					panic(fmt.Sprintf("invariant failed: slot(%d) distance %d follows slot(%d) distance %d\n%s",
						pos, m.probeDistance(pos, h), prev, m.probeDistance(prev, ph), m.debugString()))
				}
			}
		}
		if used != m.used {
			panic(fmt.Sprintf("invariant failed: found %d live slots, but used count is %d\n%s",
				used, m.used, m.debugString()))
		}
		if empties != m.empties {
			panic(fmt.Sprintf("invariant failed: found %d empty slots, but empties count is %d\n%s",
				empties, m.empties, m.debugString()))
		}
	}
}

func (m *RobinHoodMap[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  empties=%d\n", m.capacity, m.used, m.empties)
	for pos := uintptr(0); pos < m.capacity; pos++ {
		switch h := *m.hashes.At(pos); {
		case h == emptyHash:
			fmt.Fprintf(&buf, "  %4d: empty\n", pos)
		case h&tombstoneBit != 0:
			fmt.Fprintf(&buf, "  %4d: tombstone [hash=%08x distance=%d]\n",
				pos, h&^tombstoneBit, m.probeDistance(pos, h))
		default:
			fmt.Fprintf(&buf, "  %4d: %v [hash=%08x distance=%d]\n",
				pos, *m.keys.At(pos), h, m.probeDistance(pos, h))
		}
	}
	return buf.String()
}
