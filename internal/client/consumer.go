package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/driftq/broker/internal/broker"
	"github.com/driftq/broker/internal/coordinator"
	"github.com/driftq/broker/internal/logger"
	logpkg "github.com/driftq/broker/internal/storage/log"
	"github.com/rs/zerolog"
)

// Delivery is one record handed to the consumer, tagged with where it
// came from
type Delivery struct {
	Topic     string
	Partition int32
	Offset    int64
	Record    logpkg.Record
}

// Consumer is a group member facade over the broker and coordinator.
// The caller drives the loop: Poll fetches from the current assignment,
// heartbeats the coordinator, and long-polls when nothing is available.
// No background goroutine delivers records.
//
// A Consumer is not safe for concurrent use; run one per goroutine.
type Consumer struct {
	broker      *broker.Broker
	coordinator *coordinator.Coordinator
	group       string
	topics      []string
	log         zerolog.Logger

	maxPollRecords int

	mu         sync.Mutex
	joined     bool
	memberID   string
	generation int
	assignment []coordinator.TopicPartition
	positions  map[coordinator.TopicPartition]int64 // next offset to fetch
}

// NewConsumer creates a consumer for one group subscription
func NewConsumer(b *broker.Broker, coord *coordinator.Coordinator, group string, topics []string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		broker:         b,
		coordinator:    coord,
		group:          group,
		topics:         append([]string(nil), topics...),
		log:            logger.WithComponent("consumer"),
		maxPollRecords: 100,
		positions:      make(map[coordinator.TopicPartition]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Join registers with the coordinator and blocks until the resulting
// assignment is known
func (c *Consumer) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.joined {
		member := c.memberID
		c.mu.Unlock()
		return AlreadyJoinedError{Group: c.group, Member: member}
	}
	memberID := c.memberID
	c.mu.Unlock()

	result, err := c.coordinator.Join(ctx, c.group, memberID, c.topics)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.joined = true
	c.memberID = result.MemberID
	c.generation = result.Generation
	c.applyAssignmentLocked(result.Assignment)
	c.mu.Unlock()

	c.log.Info().
		Str("group", c.group).
		Str("member", result.MemberID).
		Int("partitions", len(result.Assignment)).
		Msg("Joined consumer group")

	return nil
}

// Leave withdraws from the group and drops local positions
func (c *Consumer) Leave(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return NotJoinedError{Group: c.group}
	}
	memberID := c.memberID
	c.joined = false
	c.assignment = nil
	c.positions = make(map[coordinator.TopicPartition]int64)
	c.mu.Unlock()

	return c.coordinator.Leave(c.group, memberID)
}

// Poll heartbeats the coordinator, then fetches available records from
// the current assignment. When every assigned partition is empty it
// waits up to timeout for new data; an expired timeout returns an empty
// slice, not an error. ctx cancellation interrupts the wait.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) ([]Delivery, error) {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return nil, NotJoinedError{Group: c.group}
	}
	memberID, generation := c.memberID, c.generation
	c.mu.Unlock()

	if err := c.coordinator.Heartbeat(c.group, memberID, generation); err != nil {
		var stale coordinator.StaleGenerationError
		if !errors.As(err, &stale) {
			return nil, err
		}
		// The group rebalanced under us; pick up the new assignment
		if err := c.refreshAssignment(); err != nil {
			return nil, err
		}
	}

	// Capture watch channels before the first drain so an append racing
	// the drain still wakes the wait
	watches := c.watchChannels()

	deliveries, err := c.drain(ctx)
	if err != nil || len(deliveries) > 0 {
		return deliveries, err
	}
	if timeout <= 0 {
		return nil, nil
	}

	woke, err := waitAny(ctx, watches, timeout)
	if err != nil || !woke {
		return nil, err
	}
	return c.drain(ctx)
}

// Commit records the last consumed offset for one partition
func (c *Consumer) Commit(ctx context.Context, topic string, partition int32, offset int64) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return NotJoinedError{Group: c.group}
	}
	memberID := c.memberID
	c.mu.Unlock()

	return c.coordinator.CommitOffset(ctx, c.group, memberID, topic, partition, offset)
}

// Assignment returns the partitions this consumer currently owns
func (c *Consumer) Assignment() []coordinator.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]coordinator.TopicPartition(nil), c.assignment...)
}

// MemberID returns the identity assigned at join time
func (c *Consumer) MemberID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memberID
}

// drain takes up to maxPollRecords from each assigned partition at its
// current position
func (c *Consumer) drain(ctx context.Context) ([]Delivery, error) {
	c.mu.Lock()
	assignment := append([]coordinator.TopicPartition(nil), c.assignment...)
	c.mu.Unlock()

	var deliveries []Delivery
	for _, tp := range assignment {
		c.mu.Lock()
		from := c.positions[tp]
		c.mu.Unlock()

		entries, err := c.broker.Fetch(ctx, tp.Topic, tp.Partition, from, c.maxPollRecords)
		if err != nil {
			return deliveries, err
		}
		for _, entry := range entries {
			deliveries = append(deliveries, Delivery{
				Topic:     tp.Topic,
				Partition: tp.Partition,
				Offset:    entry.Offset,
				Record:    entry.Record,
			})
		}
		if len(entries) > 0 {
			c.mu.Lock()
			c.positions[tp] = entries[len(entries)-1].Offset + 1
			c.mu.Unlock()
		}
	}
	return deliveries, nil
}

// watchChannels snapshots the notify channel of every assigned partition
func (c *Consumer) watchChannels() []<-chan struct{} {
	c.mu.Lock()
	assignment := append([]coordinator.TopicPartition(nil), c.assignment...)
	c.mu.Unlock()

	channels := make([]<-chan struct{}, 0, len(assignment))
	for _, tp := range assignment {
		partitionLog, err := c.broker.PartitionLog(tp.Topic, tp.Partition)
		if err != nil {
			continue
		}
		channels = append(channels, partitionLog.Watch())
	}
	return channels
}

// refreshAssignment reloads generation and partitions after a rebalance
// settled without us
func (c *Consumer) refreshAssignment() error {
	info, err := c.coordinator.Info(c.group)
	if err != nil {
		return err
	}
	assignment, err := c.coordinator.Assignment(c.group, c.MemberID())
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.generation = info.Generation
	c.applyAssignmentLocked(assignment)
	c.mu.Unlock()

	c.log.Info().
		Str("group", c.group).
		Int("generation", info.Generation).
		Int("partitions", len(assignment)).
		Msg("Assignment refreshed after rebalance")

	return nil
}

// applyAssignmentLocked swaps in a new assignment, seeding positions for
// gained partitions from the committed offset and dropping lost ones.
// Caller holds c.mu.
func (c *Consumer) applyAssignmentLocked(assignment []coordinator.TopicPartition) {
	owned := make(map[coordinator.TopicPartition]bool, len(assignment))
	for _, tp := range assignment {
		owned[tp] = true
		if _, exists := c.positions[tp]; exists {
			continue
		}
		committed, err := c.coordinator.FetchCommitted(c.group, tp.Topic, tp.Partition)
		if err != nil {
			committed = coordinator.EarliestOffset
		}
		// EarliestOffset is -1, so an uncommitted partition starts at 0
		c.positions[tp] = committed + 1
	}
	for tp := range c.positions {
		if !owned[tp] {
			delete(c.positions, tp)
		}
	}
	c.assignment = assignment
}

// waitAny blocks until any watch channel fires, the timeout expires, or
// ctx is cancelled. It reports whether a channel fired.
func waitAny(ctx context.Context, channels []<-chan struct{}, timeout time.Duration) (bool, error) {
	wake := make(chan struct{}, 1)
	stop := make(chan struct{})
	defer close(stop)

	for _, ch := range channels {
		go func(ch <-chan struct{}) {
			select {
			case <-ch:
				select {
				case wake <- struct{}{}:
				default:
				}
			case <-stop:
			}
		}(ch)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-wake:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
