package broker

import (
	"sync"
	"sync/atomic"
)

// UnkeyedPolicy selects how records without a routing key are spread
// across partitions.
type UnkeyedPolicy string

const (
	// UnkeyedSticky keeps a cursor per topic and advances it by one on each
	// unkeyed send, so consecutive unkeyed records from one producer walk
	// the partitions in order.
	UnkeyedSticky UnkeyedPolicy = "sticky"

	// UnkeyedRoundRobin cycles a single process-wide counter across all
	// topics.
	UnkeyedRoundRobin UnkeyedPolicy = "roundrobin"
)

// Partitioner maps a routing key or explicit partition request to a
// partition index. Keyed routing is a stable hash, so the same key lands
// on the same partition for the life of the topic and across restarts.
type Partitioner struct {
	policy UnkeyedPolicy

	mu      sync.Mutex
	cursors map[string]int32 // topic -> last partition chosen for an unkeyed record

	counter atomic.Uint64
}

// NewPartitioner creates a partitioner with the given unkeyed policy
func NewPartitioner(policy UnkeyedPolicy) *Partitioner {
	if policy == "" {
		policy = UnkeyedSticky
	}
	return &Partitioner{
		policy:  policy,
		cursors: make(map[string]int32),
	}
}

// Choose resolves the partition for one record.
// An explicit partition is validated and passed through untouched; the key
// is never consulted when the caller addressed a partition directly.
func (p *Partitioner) Choose(topic string, partitionCount int32, explicit *int32, key []byte) (int32, error) {
	if explicit != nil {
		if *explicit < 0 || *explicit >= partitionCount {
			return 0, InvalidPartitionError{Topic: topic, Partition: *explicit, PartitionCount: partitionCount}
		}
		return *explicit, nil
	}

	if len(key) > 0 {
		return int32(stableHash(key) % uint32(partitionCount)), nil
	}

	if p.policy == UnkeyedRoundRobin {
		n := p.counter.Add(1) - 1
		return int32(n % uint64(partitionCount)), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cursor, exists := p.cursors[topic]
	if !exists {
		cursor = -1
	}
	cursor = (cursor + 1) % partitionCount
	p.cursors[topic] = cursor
	return cursor, nil
}

// stableHash is FNV-1a over the key bytes. The function is fixed: changing
// it would re-route existing keys and break per-key ordering.
func stableHash(key []byte) uint32 {
	var hash uint32 = 2166136261
	for _, b := range key {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return hash
}
