// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cfstructs

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

type velocity struct {
	x, y float32
}

func TestPoolExhaustion(t *testing.T) {
	const capacity = 5
	p := NewPool[velocity, uint32](make([]byte, PoolBufferSize[velocity, uint32](capacity)))
	require.Equal(t, capacity, p.Cap())

	ptrs := make([]*velocity, capacity)
	for i := range ptrs {
		ptrs[i] = p.Alloc()
		require.NotNil(t, ptrs[i])
	}
	require.Equal(t, capacity, p.Len())

	// The (capacity+1)th allocation fails; that is the one checked error
	// in the package.
	require.Nil(t, p.Alloc())

	p.Free(ptrs[0])
	require.Equal(t, capacity-1, p.Len())
	require.NotNil(t, p.Alloc())
	require.Nil(t, p.Alloc())
}

func TestPoolPointerStability(t *testing.T) {
	const capacity = 64
	p := NewPool[velocity, uint32](make([]byte, PoolBufferSize[velocity, uint32](capacity)))

	ptrs := make([]*velocity, capacity)
	for i := range ptrs {
		ptrs[i] = p.Alloc()
		ptrs[i].x = float32(i)
		ptrs[i].y = float32(-i)
	}

	// Churn part of the pool; surviving elements must not move or change.
	for i := 0; i < capacity; i += 2 {
		p.Free(ptrs[i])
	}
	for i := 0; i < capacity; i += 2 {
		ptrs[i] = p.Alloc()
		require.NotNil(t, ptrs[i])
		ptrs[i].x = float32(1000 + i)
	}

	for i := 1; i < capacity; i += 2 {
		require.Equal(t, float32(i), ptrs[i].x)
		require.Equal(t, float32(-i), ptrs[i].y)
	}
}

// Freed slots are recycled: the pool never hands out storage outside its
// buffer and reuses freed slots instead of leaking them.
func TestPoolReuse(t *testing.T) {
	const capacity = 8
	p := NewPool[uint64, uint32](make([]byte, PoolBufferSize[uint64, uint32](capacity)))

	seen := make(map[*uint64]bool)
	ptrs := make([]*uint64, 0, capacity)
	for i := 0; i < capacity; i++ {
		v := p.Alloc()
		seen[v] = true
		ptrs = append(ptrs, v)
	}
	require.Len(t, seen, capacity)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		if len(ptrs) == capacity || (len(ptrs) > 0 && rng.Float64() < 0.5) {
			j := rng.Intn(len(ptrs))
			p.Free(ptrs[j])
			ptrs[j] = ptrs[len(ptrs)-1]
			ptrs = ptrs[:len(ptrs)-1]
		} else {
			v := p.Alloc()
			require.NotNil(t, v)
			require.True(t, seen[v], "allocation returned storage outside the pool's slots")
			ptrs = append(ptrs, v)
		}
		require.Equal(t, len(ptrs), p.Len())
	}
}

func TestPoolLoadFactor(t *testing.T) {
	const capacity = 10
	p := NewPool[uint64, uint32](make([]byte, PoolBufferSize[uint64, uint32](capacity)))

	require.EqualValues(t, 0, p.LoadFactor())
	ptrs := make([]*uint64, 0, capacity)
	for i := 0; i < capacity; i++ {
		ptrs = append(ptrs, p.Alloc())
		lf := p.LoadFactor()
		require.GreaterOrEqual(t, lf, 0.0)
		require.LessOrEqual(t, lf, 1.0)
	}
	require.EqualValues(t, 1.0, p.LoadFactor())
	for _, v := range ptrs {
		p.Free(v)
	}
	require.EqualValues(t, 0, p.LoadFactor())
}

// A small index type shrinks the slot size to the element size when the
// element is at least as big.
func TestPoolSmallIndex(t *testing.T) {
	require.Equal(t, 16, PoolBufferSize[uint16, uint8](8))
	require.Equal(t, 32, PoolBufferSize[uint16, uint32](8))

	p := NewPool[uint16, uint8](make([]byte, PoolBufferSize[uint16, uint8](100)))
	require.Equal(t, 100, p.Cap())

	ptrs := make([]*uint16, 0, 100)
	for i := 0; i < 100; i++ {
		v := p.Alloc()
		require.NotNil(t, v)
		*v = uint16(i)
		ptrs = append(ptrs, v)
	}
	require.Nil(t, p.Alloc())
	for i, v := range ptrs {
		require.Equal(t, uint16(i), *v)
	}
}
