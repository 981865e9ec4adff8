package coordinator

import (
	"fmt"
	"time"
)

// TopicPartition addresses one partition of one topic
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s/%d", tp.Topic, tp.Partition)
}

// GroupState is the lifecycle state of a consumer group
type GroupState int

const (
	// GroupStateEmpty means the group has no members
	GroupStateEmpty GroupState = iota

	// GroupStateRebalancing means a membership change is being absorbed
	GroupStateRebalancing

	// GroupStateStable means every partition is assigned to exactly one member
	GroupStateStable
)

func (s GroupState) String() string {
	switch s {
	case GroupStateEmpty:
		return "Empty"
	case GroupStateRebalancing:
		return "Rebalancing"
	case GroupStateStable:
		return "Stable"
	default:
		return "Unknown"
	}
}

// Member is one consumer registered in a group
type Member struct {
	// ID uniquely identifies the member within its group
	ID string

	// Topics is the member's subscription
	Topics []string

	// JoinedAt is when the member registered
	JoinedAt time.Time

	// LastHeartbeat is the most recent liveness signal
	LastHeartbeat time.Time

	// Generation the member last participated in
	Generation int

	// Assignment is the set of partitions currently owned by the member
	Assignment []TopicPartition
}

// JoinResult is returned to a member once its join round has settled
type JoinResult struct {
	MemberID   string
	Generation int
	State      GroupState
	Assignment []TopicPartition
}

// GroupInfo is a read-only snapshot of a group
type GroupInfo struct {
	GroupID    string
	State      GroupState
	Generation int
	Members    []string
	Topics     []string
}

// TopicResolver provides the topic metadata and progress the coordinator
// needs from the broker.
type TopicResolver interface {
	PartitionCount(topic string) (int32, error)
	NextOffset(topic string, partition int32) (int64, error)
}
