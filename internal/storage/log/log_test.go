package log

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(value string) Record {
	return Record{
		Value:     []byte(value),
		Timestamp: time.Now(),
	}
}

func TestLog_AppendAssignsDenseOffsets(t *testing.T) {
	l := New("orders", 0)

	for i := 0; i < 10; i++ {
		offset := l.Append(testRecord(fmt.Sprintf("record-%d", i)))
		assert.Equal(t, int64(i), offset)
	}

	assert.Equal(t, int64(10), l.NextOffset())
}

func TestLog_ConcurrentAppendsStayDense(t *testing.T) {
	l := New("orders", 0)

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	offsets := make(chan int64, writers*perWriter)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				offsets <- l.Append(testRecord("payload"))
			}
		}()
	}
	wg.Wait()
	close(offsets)

	seen := make(map[int64]bool)
	for offset := range offsets {
		assert.False(t, seen[offset], "offset %d assigned twice", offset)
		seen[offset] = true
	}

	require.Len(t, seen, writers*perWriter)
	for i := int64(0); i < writers*perWriter; i++ {
		assert.True(t, seen[i], "offset %d never assigned", i)
	}
	assert.Equal(t, int64(writers*perWriter), l.NextOffset())
}

func TestLog_FetchReturnsRange(t *testing.T) {
	l := New("orders", 0)
	for i := 0; i < 5; i++ {
		l.Append(testRecord(fmt.Sprintf("record-%d", i)))
	}

	entries, err := l.Fetch(1, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(1), entries[0].Offset)
	assert.Equal(t, []byte("record-1"), entries[0].Record.Value)
	assert.Equal(t, int64(3), entries[2].Offset)

	// Fewer than maxRecords available is not an error
	entries, err = l.Fetch(3, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLog_FetchIsIdempotent(t *testing.T) {
	l := New("orders", 0)
	for i := 0; i < 4; i++ {
		l.Append(testRecord(fmt.Sprintf("record-%d", i)))
	}

	first, err := l.Fetch(0, 4)
	require.NoError(t, err)
	second, err := l.Fetch(0, 4)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLog_FetchAtNextOffsetReturnsEmpty(t *testing.T) {
	l := New("orders", 0)
	l.Append(testRecord("one"))

	entries, err := l.Fetch(1, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLog_FetchOutOfRange(t *testing.T) {
	l := New("orders", 0)
	l.Append(testRecord("one"))

	_, err := l.Fetch(-1, 10)
	require.Error(t, err)
	var oor OutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, int64(-1), oor.Offset)

	_, err = l.Fetch(2, 10)
	require.Error(t, err)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, int64(2), oor.Offset)
	assert.Equal(t, int64(1), oor.Next)
}

func TestLog_FetchWaitWakesOnAppend(t *testing.T) {
	l := New("orders", 0)

	done := make(chan []Entry, 1)
	go func() {
		entries, err := l.FetchWait(context.Background(), 0, 10, 5*time.Second)
		assert.NoError(t, err)
		done <- entries
	}()

	// Give the fetcher time to block before appending
	time.Sleep(20 * time.Millisecond)
	l.Append(testRecord("wake"))

	select {
	case entries := <-done:
		require.Len(t, entries, 1)
		assert.Equal(t, []byte("wake"), entries[0].Record.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("FetchWait did not wake on append")
	}
}

func TestLog_FetchWaitTimesOut(t *testing.T) {
	l := New("orders", 0)

	start := time.Now()
	entries, err := l.FetchWait(context.Background(), 0, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLog_FetchWaitCancellation(t *testing.T) {
	l := New("orders", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		entries, err := l.FetchWait(ctx, 0, 10, time.Minute)
		assert.NoError(t, err)
		assert.Empty(t, entries)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("FetchWait did not return on cancellation")
	}
}

func TestLog_FetchWaitReturnsImmediatelyWhenAvailable(t *testing.T) {
	l := New("orders", 0)
	l.Append(testRecord("ready"))

	entries, err := l.FetchWait(context.Background(), 0, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
