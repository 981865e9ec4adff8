package log

import (
	"context"
	"sync"
	"time"
)

// Log is the append-only record sequence backing one partition.
// Offsets are dense, start at zero, and are never reused. Appends are
// serialized by the log's own lock; fetches are snapshot reads and never
// block appends on other partitions.
type Log struct {
	topic     string
	partition int32

	mu      sync.RWMutex
	records []Record
	notify  chan struct{} // closed and replaced on every append
}

// New creates an empty log for one partition of a topic
func New(topic string, partition int32) *Log {
	return &Log{
		topic:     topic,
		partition: partition,
		notify:    make(chan struct{}),
	}
}

// Topic returns the owning topic name
func (l *Log) Topic() string {
	return l.topic
}

// Partition returns the partition index
func (l *Log) Partition() int32 {
	return l.partition
}

// Append assigns the next offset to the record and returns it.
// Concurrent appends are linearized by the log lock.
func (l *Log) Append(rec Record) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	offset := int64(len(l.records))
	l.records = append(l.records, rec)

	// Wake blocked fetches; late subscribers get the fresh channel.
	close(l.notify)
	l.notify = make(chan struct{})

	return offset
}

// NextOffset returns the offset the next append will be assigned
func (l *Log) NextOffset() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.records))
}

// Watch returns a channel that is closed on the next append
func (l *Log) Watch() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.notify
}

// Fetch returns up to maxRecords entries with offsets in [from, nextOffset).
// Fetching exactly at nextOffset yields an empty slice, not an error.
func (l *Log) Fetch(from int64, maxRecords int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fetchLocked(from, maxRecords)
}

func (l *Log) fetchLocked(from int64, maxRecords int) ([]Entry, error) {
	next := int64(len(l.records))
	if from < 0 || from > next {
		return nil, OutOfRangeError{Topic: l.topic, Partition: l.partition, Offset: from, Next: next}
	}
	if from == next || maxRecords <= 0 {
		return []Entry{}, nil
	}

	end := from + int64(maxRecords)
	if end > next {
		end = next
	}

	entries := make([]Entry, 0, end-from)
	for i := from; i < end; i++ {
		entries = append(entries, Entry{Offset: i, Record: l.records[i]})
	}
	return entries, nil
}

// FetchWait behaves like Fetch but blocks up to timeout when no records are
// available at the requested offset, waking early when an append lands.
// Cancellation via ctx returns whatever is available immediately.
func (l *Log) FetchWait(ctx context.Context, from int64, maxRecords int, timeout time.Duration) ([]Entry, error) {
	deadline := time.Now().Add(timeout)

	for {
		l.mu.RLock()
		entries, err := l.fetchLocked(from, maxRecords)
		ch := l.notify
		l.mu.RUnlock()

		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			return entries, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return entries, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
			return []Entry{}, nil
		case <-ctx.Done():
			timer.Stop()
			return []Entry{}, nil
		}
	}
}
