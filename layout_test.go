// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cfstructs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// A buffer sized for n elements must admit all n inserts and keep the
// table at or under the strategy's target load factor.
func TestMapBufferSizeLoadTarget(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 10, 100, 1000, 4096} {
		m := NewMap[uint64, uint32](make([]byte, MapBufferSize[uint64, uint32](n)))
		for i := 0; i < n; i++ {
			require.True(t, m.Set(hashInt(i), uint64(i), uint32(i)), "n=%d i=%d", n, i)
		}
		require.Equal(t, n, m.Len())
		require.LessOrEqual(t, m.LoadFactor(), 0.7, "n=%d cap=%d", n, m.Cap())
	}
}

func TestSetBufferSizeLoadTarget(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 10, 100, 1000} {
		s := NewSet[uint64](make([]byte, SetBufferSize[uint64](n)))
		for i := 0; i < n; i++ {
			require.True(t, s.Insert(hashInt(i), uint64(i)), "n=%d i=%d", n, i)
		}
		require.Equal(t, n, s.Len())
		require.LessOrEqual(t, s.LoadFactor(), 0.7, "n=%d cap=%d", n, s.Cap())
	}
}

func TestRobinHoodBufferSizeLoadTarget(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 9, 10, 100, 1000, 4096} {
		m := NewRobinHoodMap[uint64, uint32](
			make([]byte, RobinHoodMapBufferSize[uint64, uint32](n)))
		for i := 0; i < n; i++ {
			require.True(t, m.Set(hashInt(i), uint64(i), uint32(i)), "n=%d i=%d", n, i)
		}
		require.Equal(t, n, m.Len())
		require.LessOrEqual(t, m.LoadFactor(), 0.9, "n=%d cap=%d", n, m.Cap())

		s := NewRobinHoodSet[uint64](make([]byte, RobinHoodSetBufferSize[uint64](n)))
		for i := 0; i < n; i++ {
			require.True(t, s.Insert(hashInt(i), uint64(i)), "n=%d i=%d", n, i)
		}
		require.Equal(t, n, s.Len())
		require.LessOrEqual(t, s.LoadFactor(), 0.9, "n=%d cap=%d", n, s.Cap())
	}
}

// Derived capacity never exceeds what the buffer can actually hold.
func TestFlaggedCapacityFits(t *testing.T) {
	const entry = 7
	for bufLen := 0; bufLen < 512; bufLen++ {
		c := int(flaggedCapacity(bufLen, entry))
		require.LessOrEqual(t, entry*c+c/4+1, max(bufLen, 1), "bufLen=%d", bufLen)
	}
}

func TestPackedCapacityFits(t *testing.T) {
	const entry = 12
	for bufLen := 0; bufLen < 512; bufLen++ {
		c := int(packedCapacity(bufLen, entry))
		require.LessOrEqual(t, entry*c, bufLen, "bufLen=%d", bufLen)
	}
}

func TestPoolBufferSize(t *testing.T) {
	// Slot size is the larger of the element and the index type.
	require.Equal(t, 16, PoolBufferSize[uint16, uint8](8))
	require.Equal(t, 32, PoolBufferSize[uint16, uint32](8))
	require.Equal(t, 40, PoolBufferSize[[2]float32, uint8](5))
}
