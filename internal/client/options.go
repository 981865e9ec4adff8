package client

import (
	"time"
)

// SendOptions holds optional per-record send settings
type SendOptions struct {
	Partition *int32
	Headers   map[string][]byte
	Timestamp time.Time
}

// SendOption is a functional option for Send
type SendOption func(*SendOptions)

// WithPartition addresses a partition directly, bypassing key routing
func WithPartition(partition int32) SendOption {
	return func(opts *SendOptions) {
		opts.Partition = &partition
	}
}

// WithHeaders attaches headers to the record
func WithHeaders(headers map[string][]byte) SendOption {
	return func(opts *SendOptions) {
		opts.Headers = headers
	}
}

// WithTimestamp overrides the append-time timestamp
func WithTimestamp(timestamp time.Time) SendOption {
	return func(opts *SendOptions) {
		opts.Timestamp = timestamp
	}
}

// ConsumerOption is a functional option for consumer configuration
type ConsumerOption func(*Consumer)

// WithMemberID pins the member identity instead of letting the
// coordinator generate one
func WithMemberID(memberID string) ConsumerOption {
	return func(c *Consumer) {
		c.memberID = memberID
	}
}

// WithMaxPollRecords caps how many records Poll takes from each assigned
// partition per pass
func WithMaxPollRecords(max int) ConsumerOption {
	return func(c *Consumer) {
		if max > 0 {
			c.maxPollRecords = max
		}
	}
}
