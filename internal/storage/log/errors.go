package log

import "fmt"

// OutOfRangeError indicates a fetch offset outside [0, nextOffset]
type OutOfRangeError struct {
	Topic     string
	Partition int32
	Offset    int64
	Next      int64
}

func (e OutOfRangeError) Error() string {
	return fmt.Sprintf("offset %d out of range for %s/%d (next offset %d)", e.Offset, e.Topic, e.Partition, e.Next)
}
