package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int32Ptr(v int32) *int32 {
	return &v
}

func TestPartitioner_KeyedRoutingIsStable(t *testing.T) {
	p := NewPartitioner(UnkeyedSticky)

	first, err := p.Choose("orders", 3, nil, []byte("order-123"))
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		partition, err := p.Choose("orders", 3, nil, []byte("order-123"))
		require.NoError(t, err)
		assert.Equal(t, first, partition)
	}
}

func TestPartitioner_KeyedRoutingSurvivesRestart(t *testing.T) {
	// A fresh partitioner models a process restart: the hash carries all
	// the routing state, so the mapping must not move.
	first := NewPartitioner(UnkeyedSticky)
	second := NewPartitioner(UnkeyedSticky)

	keys := []string{"order-123", "user-7", "session-abcdef", ""}
	for _, key := range keys {
		if key == "" {
			continue
		}
		p1, err := first.Choose("orders", 5, nil, []byte(key))
		require.NoError(t, err)
		p2, err := second.Choose("orders", 5, nil, []byte(key))
		require.NoError(t, err)
		assert.Equal(t, p1, p2, "key %q moved between partitioners", key)
	}
}

func TestPartitioner_StableHashPinned(t *testing.T) {
	// FNV-1a of "order-123"; a change here means every existing key
	// re-routes, which breaks per-key ordering.
	assert.Equal(t, uint32(0xa508cf1a), stableHash([]byte("order-123")))
}

func TestPartitioner_ExplicitPartitionPassthrough(t *testing.T) {
	p := NewPartitioner(UnkeyedSticky)

	for i := int32(0); i < 3; i++ {
		// The key must be ignored when a partition is addressed directly
		partition, err := p.Choose("orders", 3, int32Ptr(i), []byte("order-123"))
		require.NoError(t, err)
		assert.Equal(t, i, partition)
	}
}

func TestPartitioner_ExplicitPartitionOutOfRange(t *testing.T) {
	p := NewPartitioner(UnkeyedSticky)

	_, err := p.Choose("orders", 3, int32Ptr(3), nil)
	var invalid InvalidPartitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, int32(3), invalid.Partition)
	assert.Equal(t, int32(3), invalid.PartitionCount)

	_, err = p.Choose("orders", 3, int32Ptr(-1), nil)
	require.ErrorAs(t, err, &invalid)
}

func TestPartitioner_StickyAdvancesPerTopic(t *testing.T) {
	p := NewPartitioner(UnkeyedSticky)

	var got []int32
	for i := 0; i < 7; i++ {
		partition, err := p.Choose("orders", 3, nil, nil)
		require.NoError(t, err)
		got = append(got, partition)
	}
	assert.Equal(t, []int32{0, 1, 2, 0, 1, 2, 0}, got)

	// Topics hold independent cursors
	partition, err := p.Choose("payments", 3, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0), partition)
}

func TestPartitioner_RoundRobinCyclesGlobally(t *testing.T) {
	p := NewPartitioner(UnkeyedRoundRobin)

	first, err := p.Choose("orders", 4, nil, nil)
	require.NoError(t, err)
	second, err := p.Choose("payments", 4, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(0), first)
	assert.Equal(t, int32(1), second)
}

func TestPartitioner_KeyDistributionCoversPartitions(t *testing.T) {
	p := NewPartitioner(UnkeyedSticky)

	seen := make(map[int32]int)
	for i := 0; i < 500; i++ {
		partition, err := p.Choose("orders", 4, nil, []byte{byte(i), byte(i >> 8), 'k'})
		require.NoError(t, err)
		seen[partition]++
	}

	for i := int32(0); i < 4; i++ {
		assert.Greater(t, seen[i], 0, "partition %d never chosen", i)
	}
}
