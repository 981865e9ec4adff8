package coordinator

import (
	"sort"
	"sync"
	"time"
)

// group holds all coordinator state for one consumer group. Every mutation
// runs under the group's own lock; no two groups ever share a lock, which
// keeps groups fully independent of each other.
type group struct {
	id string

	// commitMu serializes the whole commit path, including the durable
	// mirror write, so store writes land in the same order as the
	// in-memory updates they mirror.
	commitMu sync.Mutex

	mu         sync.Mutex
	state      GroupState
	generation int
	topics     []string // sorted canonical subscription
	members    map[string]*Member
	committed  map[TopicPartition]int64
	emptySince time.Time
	round      *joinRound
}

// joinRound batches the joins arriving within one join window into a
// single rebalance. done is closed once the shared assignment is computed.
type joinRound struct {
	done chan struct{}
}

func newGroup(id string) *group {
	return &group{
		id:        id,
		state:     GroupStateEmpty,
		members:   make(map[string]*Member),
		committed: make(map[TopicPartition]int64),
	}
}

func (g *group) memberIDs() []string {
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedCopy(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
