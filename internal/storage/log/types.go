package log

import "time"

// Record is an immutable unit of data appended to a partition.
// Key is optional routing metadata; a nil key means the record was unkeyed.
type Record struct {
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte
}

// Entry pairs a record with the offset it was assigned at append time
type Entry struct {
	Offset int64
	Record Record
}
