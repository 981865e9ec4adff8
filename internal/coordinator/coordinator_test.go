package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/driftq/broker/internal/broker"
	"github.com/driftq/broker/internal/storage/offsets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()

	b := broker.New(broker.Config{
		AutoCreateTopics:  false,
		DefaultPartitions: 3,
		UnkeyedPolicy:     broker.UnkeyedSticky,
	})
	require.NoError(t, b.CreateTopic("messages", 3))
	require.NoError(t, b.CreateTopic("payments", 2))
	return b
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	return New(newTestBroker(t), DefaultConfig())
}

func TestJoin_SingleMemberOwnsEverything(t *testing.T) {
	c := newTestCoordinator(t)

	result, err := c.Join(context.Background(), "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	assert.Equal(t, "m1", result.MemberID)
	assert.Equal(t, 1, result.Generation)
	assert.Equal(t, GroupStateStable, result.State)
	assert.Len(t, result.Assignment, 3)
}

func TestJoin_GeneratesMemberID(t *testing.T) {
	c := newTestCoordinator(t)

	result, err := c.Join(context.Background(), "orders", "", []string{"messages"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.MemberID)
}

func TestJoin_UnknownTopic(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Join(context.Background(), "orders", "m1", []string{"nonexistent"})
	require.Error(t, err)

	var unknownErr broker.UnknownTopicError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestJoin_RequiresTopics(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Join(context.Background(), "orders", "m1", nil)
	assert.Error(t, err)
}

func TestJoin_DuplicateMember(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	_, err = c.Join(ctx, "orders", "m1", []string{"messages"})
	assert.Error(t, err)
}

func TestJoin_SubscriptionMismatch(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	_, err = c.Join(ctx, "orders", "m2", []string{"payments"})
	require.Error(t, err)

	var mismatchErr SubscriptionMismatchError
	require.ErrorAs(t, err, &mismatchErr)
	assert.Equal(t, []string{"messages"}, mismatchErr.Subscribed)
}

func TestJoin_SecondMemberTriggersRebalance(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	second, err := c.Join(ctx, "orders", "m2", []string{"messages"})
	require.NoError(t, err)
	assert.Greater(t, second.Generation, first.Generation)

	a1, err := c.Assignment("orders", "m1")
	require.NoError(t, err)
	a2, err := c.Assignment("orders", "m2")
	require.NoError(t, err)

	seen := make(map[TopicPartition]bool)
	for _, tp := range append(a1, a2...) {
		assert.False(t, seen[tp], "partition %s assigned to both members", tp)
		seen[tp] = true
	}
	assert.Len(t, seen, 3)
}

func TestLeave_RemainingMemberAbsorbsPartitions(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)
	_, err = c.Join(ctx, "orders", "m2", []string{"messages"})
	require.NoError(t, err)

	require.NoError(t, c.Leave("orders", "m1"))

	assignment, err := c.Assignment("orders", "m2")
	require.NoError(t, err)
	assert.Len(t, assignment, 3)

	info, err := c.Info("orders")
	require.NoError(t, err)
	assert.Equal(t, GroupStateStable, info.State)
	assert.Equal(t, []string{"m2"}, info.Members)
}

func TestLeave_LastMemberEmptiesGroup(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Join(context.Background(), "orders", "m1", []string{"messages"})
	require.NoError(t, err)
	require.NoError(t, c.Leave("orders", "m1"))

	info, err := c.Info("orders")
	require.NoError(t, err)
	assert.Equal(t, GroupStateEmpty, info.State)
	assert.Empty(t, info.Members)
}

func TestLeave_UnknownMember(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Join(context.Background(), "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	err = c.Leave("orders", "ghost")
	var notFound MemberNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestLeave_UnknownGroup(t *testing.T) {
	c := newTestCoordinator(t)

	err := c.Leave("nonexistent", "m1")
	var notFound GroupNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestCommitOffset_RoundTrip(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	offset, err := c.FetchCommitted("orders", "messages", 0)
	require.NoError(t, err)
	assert.Equal(t, EarliestOffset, offset)

	require.NoError(t, c.CommitOffset(ctx, "orders", "m1", "messages", 0, 4))

	offset, err = c.FetchCommitted("orders", "messages", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), offset)
}

func TestCommitOffset_RegressionRejected(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)
	require.NoError(t, c.CommitOffset(ctx, "orders", "m1", "messages", 0, 10))

	err = c.CommitOffset(ctx, "orders", "m1", "messages", 0, 5)
	var staleErr StaleOffsetError
	require.ErrorAs(t, err, &staleErr)
	assert.Equal(t, int64(10), staleErr.Committed)
	assert.Equal(t, int64(5), staleErr.Offset)

	// The failed commit leaves the committed offset untouched
	offset, err := c.FetchCommitted("orders", "messages", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), offset)
}

func TestCommitOffset_EqualIsNoOp(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)
	require.NoError(t, c.CommitOffset(ctx, "orders", "m1", "messages", 0, 7))
	require.NoError(t, c.CommitOffset(ctx, "orders", "m1", "messages", 0, 7))

	offset, err := c.FetchCommitted("orders", "messages", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), offset)
}

func TestCommitOffset_NegativeRejected(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	err = c.CommitOffset(ctx, "orders", "m1", "messages", 0, -5)
	require.Error(t, err)

	// Nothing was recorded
	offset, err := c.FetchCommitted("orders", "messages", 0)
	require.NoError(t, err)
	assert.Equal(t, EarliestOffset, offset)
}

func TestCommitOffset_ConcurrentCommitsKeepStoreInSync(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := offsets.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	c := New(newTestBroker(t), DefaultConfig(), WithOffsetStore(store))
	_, err = c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	// Race batches of commits; losers fail the monotonic check, but the
	// store must always end up matching the in-memory committed offset
	for round := 0; round < 50; round++ {
		base := int64(round * 10)
		var wg sync.WaitGroup
		for i := int64(0); i < 4; i++ {
			wg.Add(1)
			go func(offset int64) {
				defer wg.Done()
				err := c.CommitOffset(ctx, "orders", "m1", "messages", 0, offset)
				if err != nil {
					var staleErr StaleOffsetError
					assert.ErrorAs(t, err, &staleErr)
				}
			}(base + i)
		}
		wg.Wait()

		committed, err := c.FetchCommitted("orders", "messages", 0)
		require.NoError(t, err)
		stored, found, err := store.Get("orders", "messages", 0)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, committed, stored, "store diverged from memory after round %d", round)
		assert.Equal(t, base+3, committed)
	}
}

func TestCommitOffset_UnknownMember(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	err = c.CommitOffset(ctx, "orders", "ghost", "messages", 0, 1)
	var notFound MemberNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestHeartbeat(t *testing.T) {
	c := newTestCoordinator(t)

	result, err := c.Join(context.Background(), "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	require.NoError(t, c.Heartbeat("orders", "m1", result.Generation))

	err = c.Heartbeat("orders", "m1", result.Generation-1)
	var staleGen StaleGenerationError
	assert.ErrorAs(t, err, &staleGen)

	err = c.Heartbeat("orders", "ghost", result.Generation)
	var notFound MemberNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestGroups_Independent(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Join(ctx, "billing", "m1", []string{"messages"})
	require.NoError(t, err)
	_, err = c.Join(ctx, "audit", "m1", []string{"messages"})
	require.NoError(t, err)

	// Both groups own the full topic
	a1, err := c.Assignment("billing", "m1")
	require.NoError(t, err)
	a2, err := c.Assignment("audit", "m1")
	require.NoError(t, err)
	assert.Len(t, a1, 3)
	assert.Len(t, a2, 3)

	// Commits in one group do not leak into the other
	require.NoError(t, c.CommitOffset(ctx, "billing", "m1", "messages", 0, 9))

	offset, err := c.FetchCommitted("audit", "messages", 0)
	require.NoError(t, err)
	assert.Equal(t, EarliestOffset, offset)
}

func TestRejoin_RetainsCommittedOffsets(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)
	require.NoError(t, c.CommitOffset(ctx, "orders", "m1", "messages", 1, 12))
	require.NoError(t, c.Leave("orders", "m1"))

	_, err = c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	offset, err := c.FetchCommitted("orders", "messages", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), offset)
}

func TestJoinWindow_BatchesConcurrentJoins(t *testing.T) {
	config := DefaultConfig()
	config.JoinWindow = 100 * time.Millisecond
	c := New(newTestBroker(t), config)

	var wg sync.WaitGroup
	results := make([]*JoinResult, 2)
	errs := make([]error, 2)
	for i, id := range []string{"m1", "m2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i], errs[i] = c.Join(context.Background(), "orders", id, []string{"messages"})
		}(i, id)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// One rebalance settled both joins
	assert.Equal(t, 1, results[0].Generation)
	assert.Equal(t, 1, results[1].Generation)
	assert.Equal(t, GroupStateStable, results[0].State)

	seen := make(map[TopicPartition]bool)
	for _, result := range results {
		for _, tp := range result.Assignment {
			assert.False(t, seen[tp])
			seen[tp] = true
		}
	}
	assert.Len(t, seen, 3)
}

func TestJoinWindow_CancelledJoinIsRemoved(t *testing.T) {
	config := DefaultConfig()
	config.JoinWindow = 200 * time.Millisecond
	c := New(newTestBroker(t), config)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Eventually(t, func() bool {
		info, err := c.Info("orders")
		return err == nil && info.State == GroupStateEmpty
	}, time.Second, 10*time.Millisecond)
}

func TestSessionTimeout_EvictsSilentMember(t *testing.T) {
	config := DefaultConfig()
	config.SessionTimeout = 50 * time.Millisecond
	config.SessionCheckInterval = 10 * time.Millisecond
	config.EmptyGroupTTL = 0
	c := New(newTestBroker(t), config)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		info, err := c.Info("orders")
		return err == nil && info.State == GroupStateEmpty
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHeartbeat_KeepsMemberAlive(t *testing.T) {
	config := DefaultConfig()
	config.SessionTimeout = 80 * time.Millisecond
	config.SessionCheckInterval = 10 * time.Millisecond
	c := New(newTestBroker(t), config)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)

	result, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		require.NoError(t, c.Heartbeat("orders", "m1", result.Generation))
		time.Sleep(20 * time.Millisecond)
	}

	info, err := c.Info("orders")
	require.NoError(t, err)
	assert.Equal(t, GroupStateStable, info.State)
}

func TestEmptyGroupTTL_CollectsGroup(t *testing.T) {
	config := DefaultConfig()
	config.SessionCheckInterval = 10 * time.Millisecond
	config.EmptyGroupTTL = 30 * time.Millisecond
	c := New(newTestBroker(t), config)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)

	_, err := c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)
	require.NoError(t, c.Leave("orders", "m1"))

	require.Eventually(t, func() bool {
		_, err := c.Info("orders")
		var notFound GroupNotFoundError
		return errors.As(err, &notFound)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOffsetStore_RestoresAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := offsets.Open(dir)
	require.NoError(t, err)

	c := New(newTestBroker(t), DefaultConfig(), WithOffsetStore(store))
	require.NoError(t, c.Start(ctx))

	_, err = c.Join(ctx, "orders", "m1", []string{"messages"})
	require.NoError(t, err)
	require.NoError(t, c.CommitOffset(ctx, "orders", "m1", "messages", 0, 42))

	require.NoError(t, c.Stop(ctx))
	require.NoError(t, store.Close())

	reopened, err := offsets.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	restored := New(newTestBroker(t), DefaultConfig(), WithOffsetStore(reopened))
	require.NoError(t, restored.Start(ctx))
	defer restored.Stop(ctx)

	offset, err := restored.FetchCommitted("orders", "messages", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), offset)
}

func TestAssignment_UnknownMember(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Join(context.Background(), "orders", "m1", []string{"messages"})
	require.NoError(t, err)

	_, err = c.Assignment("orders", "ghost")
	var notFound MemberNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
