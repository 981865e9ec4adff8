package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/driftq/broker/internal/logger"
	"github.com/driftq/broker/internal/metrics"
	"github.com/driftq/broker/internal/storage/offsets"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EarliestOffset is the sentinel returned by FetchCommitted when a group
// has never committed for a partition: the consumer starts from offset 0.
const EarliestOffset int64 = -1

// Config holds coordinator timing configuration
type Config struct {
	// JoinWindow batches joins arriving close together into one rebalance.
	// Zero means every join rebalances immediately.
	JoinWindow time.Duration

	// SessionTimeout evicts members that stop heartbeating
	SessionTimeout time.Duration

	// SessionCheckInterval is how often expired sessions are checked
	SessionCheckInterval time.Duration

	// EmptyGroupTTL garbage-collects groups left empty this long
	EmptyGroupTTL time.Duration
}

// DefaultConfig returns sensible coordinator defaults
func DefaultConfig() Config {
	return Config{
		JoinWindow:           0,
		SessionTimeout:       30 * time.Second,
		SessionCheckInterval: time.Second,
		EmptyGroupTTL:        5 * time.Minute,
	}
}

// Option configures optional coordinator collaborators
type Option func(*Coordinator)

// WithOffsetStore mirrors committed offsets into a durable store
func WithOffsetStore(store *offsets.Store) Option {
	return func(c *Coordinator) {
		c.store = store
	}
}

// WithMetrics attaches a metrics collector
func WithMetrics(groupMetrics *metrics.GroupMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = groupMetrics
	}
}

// Coordinator manages consumer group membership, partition assignment,
// and committed offsets. Groups are isolated: operations on one group
// never touch another group's state or lock.
type Coordinator struct {
	config   Config
	resolver TopicResolver
	store    *offsets.Store
	metrics  *metrics.GroupMetrics
	log      zerolog.Logger

	mu     sync.RWMutex
	groups map[string]*group

	stopCh chan struct{}
	wg     sync.WaitGroup
	ready  bool
}

// New creates a coordinator backed by the given topic resolver
func New(resolver TopicResolver, config Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		config:   config,
		resolver: resolver,
		log:      logger.WithComponent("coordinator"),
		groups:   make(map[string]*group),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start restores persisted offsets and launches the session monitor
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.ready {
		c.mu.Unlock()
		return nil
	}
	c.ready = true
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	if c.store != nil {
		if err := c.restoreOffsets(); err != nil {
			return fmt.Errorf("failed to restore committed offsets: %w", err)
		}
	}

	c.wg.Add(1)
	go c.runMonitor()

	c.log.Info().Msg("Coordinator started")
	return nil
}

// Stop halts the session monitor. Pending join rounds still settle via
// their own timers.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.ready {
		c.mu.Unlock()
		return nil
	}
	c.ready = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	c.log.Info().Msg("Coordinator stopped")
	return nil
}

// Join registers a member and returns once the resulting assignment is
// computed. An empty memberID gets a generated one. Joins arriving within
// the configured join window settle together in one rebalance.
func (c *Coordinator) Join(ctx context.Context, groupID, memberID string, topics []string) (*JoinResult, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("join for group %s requires at least one topic", groupID)
	}

	sorted := sortedCopy(topics)
	for _, topic := range sorted {
		if _, err := c.resolver.PartitionCount(topic); err != nil {
			return nil, err
		}
	}

	if memberID == "" {
		memberID = uuid.New().String()
	}

	g := c.getOrCreateGroup(groupID)

	g.mu.Lock()
	if len(g.members) > 0 && !stringSlicesEqual(g.topics, sorted) {
		subscribed := append([]string(nil), g.topics...)
		g.mu.Unlock()
		return nil, SubscriptionMismatchError{
			Group:      groupID,
			Member:     memberID,
			Subscribed: subscribed,
			Requested:  sorted,
		}
	}
	if _, exists := g.members[memberID]; exists {
		g.mu.Unlock()
		return nil, fmt.Errorf("member %s already joined group %s", memberID, groupID)
	}

	now := time.Now()
	g.topics = sorted
	g.members[memberID] = &Member{
		ID:            memberID,
		Topics:        sorted,
		JoinedAt:      now,
		LastHeartbeat: now,
	}
	g.state = GroupStateRebalancing
	g.emptySince = time.Time{}

	if c.config.JoinWindow > 0 {
		if g.round == nil {
			g.round = &joinRound{done: make(chan struct{})}
			time.AfterFunc(c.config.JoinWindow, func() { c.settleJoinRound(g) })
		}
		round := g.round
		g.mu.Unlock()

		select {
		case <-round.done:
		case <-ctx.Done():
			c.removeMember(g, memberID)
			return nil, ctx.Err()
		}
		g.mu.Lock()
	} else {
		c.rebalanceLocked(g)
	}

	member, exists := g.members[memberID]
	if !exists {
		g.mu.Unlock()
		return nil, MemberNotFoundError{Group: groupID, Member: memberID}
	}
	result := &JoinResult{
		MemberID:   memberID,
		Generation: g.generation,
		State:      g.state,
		Assignment: append([]TopicPartition(nil), member.Assignment...),
	}
	g.mu.Unlock()

	return result, nil
}

// Leave removes a member and rebalances the remainder
func (c *Coordinator) Leave(groupID, memberID string) error {
	g, err := c.getGroup(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.members[memberID]; !exists {
		return MemberNotFoundError{Group: groupID, Member: memberID}
	}

	delete(g.members, memberID)
	c.rebalanceLocked(g)

	c.log.Info().
		Str("group", groupID).
		Str("member", memberID).
		Str("state", g.state.String()).
		Msg("Member left group")

	return nil
}

// Heartbeat records liveness for a member
func (c *Coordinator) Heartbeat(groupID, memberID string, generation int) error {
	g, err := c.getGroup(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	member, exists := g.members[memberID]
	if !exists {
		return MemberNotFoundError{Group: groupID, Member: memberID}
	}
	if generation != g.generation {
		return StaleGenerationError{Group: groupID, Member: memberID, Expected: g.generation, Got: generation}
	}

	member.LastHeartbeat = time.Now()
	return nil
}

// CommitOffset records the last consumed offset for a partition. Commits
// never move backwards: a regression fails with StaleOffsetError and
// leaves state untouched. Commits block while a join round is settling.
func (c *Coordinator) CommitOffset(ctx context.Context, groupID, memberID, topic string, partition int32, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("commit for group %s requires a non-negative offset, got %d", groupID, offset)
	}

	g, err := c.getGroup(groupID)
	if err != nil {
		return err
	}

	// Serialize commits for the group end to end. Without this, two
	// racing commits could pass the monotonic check in order but land
	// their store writes reversed, leaving the store behind memory.
	g.commitMu.Lock()
	defer g.commitMu.Unlock()

	g.mu.Lock()
	for g.round != nil {
		round := g.round
		g.mu.Unlock()
		select {
		case <-round.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		g.mu.Lock()
	}

	if _, exists := g.members[memberID]; !exists {
		g.mu.Unlock()
		return MemberNotFoundError{Group: groupID, Member: memberID}
	}

	tp := TopicPartition{Topic: topic, Partition: partition}
	committed, hasCommitted := g.committed[tp]
	if hasCommitted {
		if offset < committed {
			g.mu.Unlock()
			return StaleOffsetError{Group: groupID, Topic: topic, Partition: partition, Committed: committed, Offset: offset}
		}
		if offset == committed {
			g.mu.Unlock()
			return nil
		}
	}
	g.committed[tp] = offset
	g.mu.Unlock()

	if c.store != nil {
		if err := c.store.Put(groupID, topic, partition, offset); err != nil {
			// Roll the in-memory commit back so memory and disk agree.
			// commitMu is still held, so no later commit can have
			// advanced the offset we restore over.
			g.mu.Lock()
			if hasCommitted {
				g.committed[tp] = committed
			} else {
				delete(g.committed, tp)
			}
			g.mu.Unlock()
			return fmt.Errorf("failed to persist offset for group %s: %w", groupID, err)
		}
	}

	c.metrics.RecordOffsetCommit(groupID, topic, partition, offset)
	if next, err := c.resolver.NextOffset(topic, partition); err == nil {
		lag := next - (offset + 1)
		if lag < 0 {
			lag = 0
		}
		c.metrics.UpdateLag(groupID, topic, partition, lag)
	}

	c.log.Debug().
		Str("group", groupID).
		Str("topic", topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Offset committed")

	return nil
}

// FetchCommitted returns the committed offset for a partition, or
// EarliestOffset when the group has never committed there
func (c *Coordinator) FetchCommitted(groupID, topic string, partition int32) (int64, error) {
	g, err := c.getGroup(groupID)
	if err != nil {
		return EarliestOffset, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	offset, exists := g.committed[TopicPartition{Topic: topic, Partition: partition}]
	if !exists {
		return EarliestOffset, nil
	}
	return offset, nil
}

// Assignment returns the partitions currently owned by a member
func (c *Coordinator) Assignment(groupID, memberID string) ([]TopicPartition, error) {
	g, err := c.getGroup(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	member, exists := g.members[memberID]
	if !exists {
		return nil, MemberNotFoundError{Group: groupID, Member: memberID}
	}
	return append([]TopicPartition(nil), member.Assignment...), nil
}

// Info returns a read-only snapshot of a group
func (c *Coordinator) Info(groupID string) (GroupInfo, error) {
	g, err := c.getGroup(groupID)
	if err != nil {
		return GroupInfo{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return GroupInfo{
		GroupID:    groupID,
		State:      g.state,
		Generation: g.generation,
		Members:    g.memberIDs(),
		Topics:     append([]string(nil), g.topics...),
	}, nil
}

// rebalanceLocked recomputes the assignment for the group's current
// membership. Caller holds g.mu.
func (c *Coordinator) rebalanceLocked(g *group) {
	g.generation++
	g.state = GroupStateRebalancing

	ids := g.memberIDs()
	if len(ids) == 0 {
		g.state = GroupStateEmpty
		g.emptySince = time.Now()
		c.metrics.SetMemberCount(g.id, 0)
		return
	}

	partitionCounts := make(map[string]int32, len(g.topics))
	for _, topic := range g.topics {
		count, err := c.resolver.PartitionCount(topic)
		if err != nil {
			c.log.Error().Err(err).Str("group", g.id).Str("topic", topic).Msg("Subscribed topic vanished during rebalance")
			continue
		}
		partitionCounts[topic] = count
	}

	assignment := assignRange(ids, g.topics, partitionCounts)
	for id, member := range g.members {
		member.Assignment = assignment[id]
		member.Generation = g.generation
	}
	g.state = GroupStateStable

	c.metrics.RecordRebalance(g.id)
	c.metrics.SetMemberCount(g.id, len(ids))

	c.log.Info().
		Str("group", g.id).
		Int("generation", g.generation).
		Int("members", len(ids)).
		Msg("Group rebalanced")
}

// settleJoinRound computes one shared assignment for all joins that
// registered during the window, then releases the waiters
func (c *Coordinator) settleJoinRound(g *group) {
	g.mu.Lock()
	round := g.round
	g.round = nil
	if round == nil {
		g.mu.Unlock()
		return
	}
	c.rebalanceLocked(g)
	g.mu.Unlock()

	close(round.done)
}

// removeMember drops a member whose join was cancelled
func (c *Coordinator) removeMember(g *group, memberID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.members[memberID]; !exists {
		return
	}
	delete(g.members, memberID)
	if g.round == nil {
		// The round already settled with this member included; repair
		c.rebalanceLocked(g)
	} else if len(g.members) == 0 {
		g.state = GroupStateEmpty
		g.emptySince = time.Now()
	}
}

func (c *Coordinator) getOrCreateGroup(groupID string) *group {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, exists := c.groups[groupID]; exists {
		return g
	}
	g := newGroup(groupID)
	c.groups[groupID] = g
	return g
}

func (c *Coordinator) getGroup(groupID string) (*group, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g, exists := c.groups[groupID]
	if !exists {
		return nil, GroupNotFoundError{Group: groupID}
	}
	return g, nil
}

// restoreOffsets loads persisted commits into freshly restored groups
func (c *Coordinator) restoreOffsets() error {
	entries, err := c.store.All()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		g := c.getOrCreateGroup(entry.Group)
		g.mu.Lock()
		if g.emptySince.IsZero() && len(g.members) == 0 {
			g.emptySince = time.Now()
		}
		g.committed[TopicPartition{Topic: entry.Topic, Partition: entry.Partition}] = entry.Offset
		g.mu.Unlock()
	}

	if len(entries) > 0 {
		c.log.Info().Int("count", len(entries)).Msg("Committed offsets restored")
	}
	return nil
}

// runMonitor evicts dead members and garbage-collects empty groups
func (c *Coordinator) runMonitor() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.SessionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictExpiredMembers()
			c.collectEmptyGroups()
		}
	}
}

func (c *Coordinator) snapshotGroups() map[string]*group {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]*group, len(c.groups))
	for id, g := range c.groups {
		snapshot[id] = g
	}
	return snapshot
}

func (c *Coordinator) evictExpiredMembers() {
	now := time.Now()
	for _, g := range c.snapshotGroups() {
		g.mu.Lock()
		if g.round != nil {
			g.mu.Unlock()
			continue
		}
		var evicted []string
		for id, member := range g.members {
			if now.Sub(member.LastHeartbeat) > c.config.SessionTimeout {
				evicted = append(evicted, id)
			}
		}
		for _, id := range evicted {
			delete(g.members, id)
		}
		if len(evicted) > 0 {
			c.rebalanceLocked(g)
		}
		g.mu.Unlock()

		for _, id := range evicted {
			c.log.Warn().
				Str("group", g.id).
				Str("member", id).
				Dur("session_timeout", c.config.SessionTimeout).
				Msg("Member evicted after missed heartbeats")
		}
	}
}

func (c *Coordinator) collectEmptyGroups() {
	if c.config.EmptyGroupTTL <= 0 {
		return
	}

	now := time.Now()
	for id, g := range c.snapshotGroups() {
		g.mu.Lock()
		expired := g.state == GroupStateEmpty &&
			!g.emptySince.IsZero() &&
			now.Sub(g.emptySince) > c.config.EmptyGroupTTL
		g.mu.Unlock()
		if !expired {
			continue
		}

		// Re-check under both locks so a racing join keeps the group
		c.mu.Lock()
		current, exists := c.groups[id]
		if exists && current == g {
			g.mu.Lock()
			if g.state == GroupStateEmpty && len(g.members) == 0 {
				delete(c.groups, id)
				g.mu.Unlock()
				c.mu.Unlock()

				if c.store != nil {
					if err := c.store.DeleteGroup(id); err != nil {
						c.log.Error().Err(err).Str("group", id).Msg("Failed to drop persisted offsets")
					}
				}
				c.log.Info().Str("group", id).Msg("Empty group garbage-collected")
				continue
			}
			g.mu.Unlock()
		}
		c.mu.Unlock()
	}
}
