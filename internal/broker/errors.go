package broker

import "fmt"

// UnknownTopicError indicates a topic that does not exist
type UnknownTopicError struct {
	Topic string
}

func (e UnknownTopicError) Error() string {
	return fmt.Sprintf("unknown topic: %s", e.Topic)
}

// UnknownPartitionError indicates a partition index outside the topic
type UnknownPartitionError struct {
	Topic     string
	Partition int32
}

func (e UnknownPartitionError) Error() string {
	return fmt.Sprintf("unknown partition %d for topic %s", e.Partition, e.Topic)
}

// InvalidPartitionError indicates an explicitly requested partition out of range
type InvalidPartitionError struct {
	Topic          string
	Partition      int32
	PartitionCount int32
}

func (e InvalidPartitionError) Error() string {
	return fmt.Sprintf("invalid partition %d for topic %s with %d partitions", e.Partition, e.Topic, e.PartitionCount)
}

// TopicConflictError indicates re-creation of a topic with a different partition count
type TopicConflictError struct {
	Topic     string
	Existing  int32
	Requested int32
}

func (e TopicConflictError) Error() string {
	return fmt.Sprintf("topic %s already exists with %d partitions, requested %d", e.Topic, e.Existing, e.Requested)
}

// InvalidPartitionCountError indicates a topic creation request with fewer than one partition
type InvalidPartitionCountError struct {
	Topic     string
	Requested int32
}

func (e InvalidPartitionCountError) Error() string {
	return fmt.Sprintf("topic %s requires at least 1 partition, requested %d", e.Topic, e.Requested)
}

// SchemaViolationError indicates a record value rejected by the topic schema
type SchemaViolationError struct {
	Topic string
	Err   error
}

func (e SchemaViolationError) Error() string {
	return fmt.Sprintf("record rejected by schema for topic %s: %v", e.Topic, e.Err)
}

func (e SchemaViolationError) Unwrap() error {
	return e.Err
}
