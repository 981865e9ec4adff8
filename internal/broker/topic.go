package broker

import (
	logpkg "github.com/driftq/broker/internal/storage/log"
)

// Topic is a named set of partition logs. The partition count is fixed at
// creation; there is no dynamic repartitioning.
type Topic struct {
	name       string
	partitions []*logpkg.Log
}

func newTopic(name string, partitionCount int32) *Topic {
	partitions := make([]*logpkg.Log, partitionCount)
	for i := range partitions {
		partitions[i] = logpkg.New(name, int32(i))
	}
	return &Topic{
		name:       name,
		partitions: partitions,
	}
}

// Name returns the topic name
func (t *Topic) Name() string {
	return t.name
}

// PartitionCount returns the fixed partition count
func (t *Topic) PartitionCount() int32 {
	return int32(len(t.partitions))
}

// Partition returns the log for one partition index
func (t *Topic) Partition(index int32) (*logpkg.Log, bool) {
	if index < 0 || index >= int32(len(t.partitions)) {
		return nil, false
	}
	return t.partitions[index], true
}
