package broker

import (
	"context"
	"sync"
	"time"

	"github.com/driftq/broker/internal/logger"
	"github.com/driftq/broker/internal/metrics"
	"github.com/driftq/broker/internal/schema"
	logpkg "github.com/driftq/broker/internal/storage/log"
	"github.com/rs/zerolog"
)

// Config holds broker behavior configuration
type Config struct {
	// AutoCreateTopics creates unknown topics on first send
	AutoCreateTopics bool

	// DefaultPartitions is the partition count for auto-created topics
	DefaultPartitions int32

	// UnkeyedPolicy routes records without a key
	UnkeyedPolicy UnkeyedPolicy
}

// DefaultConfig returns sensible broker defaults
func DefaultConfig() Config {
	return Config{
		AutoCreateTopics:  false,
		DefaultPartitions: 3,
		UnkeyedPolicy:     UnkeyedSticky,
	}
}

// ProduceRequest describes one record to append.
// Partition, Key, Headers, and Timestamp are optional; a zero Timestamp is
// stamped at append time.
type ProduceRequest struct {
	Topic     string
	Partition *int32
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

// Broker owns all topics and serializes appends through each partition log.
// There is no ambient instance; tests and callers wire their own.
type Broker struct {
	config      Config
	partitioner *Partitioner
	validator   *schema.Validator
	metrics     *metrics.BrokerMetrics
	log         zerolog.Logger

	mu      sync.RWMutex
	topics  map[string]*Topic
	schemas map[string][]byte // topic -> registered JSON schema
}

// New creates a broker with an optional metrics collector
func New(config Config, brokerMetrics ...*metrics.BrokerMetrics) *Broker {
	var bm *metrics.BrokerMetrics
	if len(brokerMetrics) > 0 && brokerMetrics[0] != nil {
		bm = brokerMetrics[0]
	}
	return &Broker{
		config:      config,
		partitioner: NewPartitioner(config.UnkeyedPolicy),
		validator:   schema.NewValidator(),
		metrics:     bm,
		log:         logger.WithComponent("broker"),
		topics:      make(map[string]*Topic),
		schemas:     make(map[string][]byte),
	}
}

// CreateTopic creates a topic with the given partition count.
// Re-creation with the same count is a no-op; a different count is a
// TopicConflictError.
func (b *Broker) CreateTopic(name string, partitionCount int32) error {
	if partitionCount < 1 {
		return InvalidPartitionCountError{Topic: name, Requested: partitionCount}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, exists := b.topics[name]; exists {
		if existing.PartitionCount() != partitionCount {
			return TopicConflictError{Topic: name, Existing: existing.PartitionCount(), Requested: partitionCount}
		}
		return nil
	}

	b.topics[name] = newTopic(name, partitionCount)
	b.metrics.SetTopicCount(len(b.topics))

	b.log.Info().
		Str("topic", name).
		Int32("partitions", partitionCount).
		Msg("Topic created")

	return nil
}

// SetTopicSchema registers a JSON schema that record values on the topic
// must satisfy. The definition is compiled eagerly so a broken schema fails
// here rather than on the send path.
func (b *Broker) SetTopicSchema(name string, schemaDefinition []byte) error {
	if _, err := b.resolveTopic(name); err != nil {
		return err
	}
	if _, err := b.validator.CompileSchema(schemaDefinition); err != nil {
		return err
	}

	b.mu.Lock()
	b.schemas[name] = schemaDefinition
	b.mu.Unlock()

	b.log.Info().Str("topic", name).Msg("Topic schema registered")
	return nil
}

// Send resolves the topic, routes the record to a partition, and appends it.
// It returns the chosen partition and the assigned offset once the append
// is visible to fetches.
func (b *Broker) Send(ctx context.Context, req ProduceRequest) (int32, int64, error) {
	start := time.Now()

	topic, err := b.resolveTopic(req.Topic)
	if err != nil {
		return 0, 0, err
	}

	b.mu.RLock()
	schemaDef := b.schemas[req.Topic]
	b.mu.RUnlock()
	if schemaDef != nil {
		if err := b.validator.Validate(req.Value, schemaDef); err != nil {
			return 0, 0, SchemaViolationError{Topic: req.Topic, Err: err}
		}
	}

	partition, err := b.partitioner.Choose(req.Topic, topic.PartitionCount(), req.Partition, req.Key)
	if err != nil {
		return 0, 0, err
	}

	partitionLog, _ := topic.Partition(partition)

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	offset := partitionLog.Append(logpkg.Record{
		Key:       req.Key,
		Value:     req.Value,
		Timestamp: timestamp,
		Headers:   req.Headers,
	})

	b.metrics.RecordAppend(req.Topic, partition, offset+1, time.Since(start))

	b.log.Debug().
		Str("topic", req.Topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Record appended")

	return partition, offset, nil
}

// Fetch returns up to maxRecords entries starting at fromOffset
func (b *Broker) Fetch(ctx context.Context, topic string, partition int32, fromOffset int64, maxRecords int) ([]logpkg.Entry, error) {
	start := time.Now()

	partitionLog, err := b.PartitionLog(topic, partition)
	if err != nil {
		return nil, err
	}

	entries, err := partitionLog.Fetch(fromOffset, maxRecords)
	if err != nil {
		return nil, err
	}

	b.metrics.RecordFetch(topic, partition, len(entries), time.Since(start))
	return entries, nil
}

// FetchWait behaves like Fetch but long-polls up to timeout when the
// partition has nothing at fromOffset yet
func (b *Broker) FetchWait(ctx context.Context, topic string, partition int32, fromOffset int64, maxRecords int, timeout time.Duration) ([]logpkg.Entry, error) {
	start := time.Now()

	partitionLog, err := b.PartitionLog(topic, partition)
	if err != nil {
		return nil, err
	}

	entries, err := partitionLog.FetchWait(ctx, fromOffset, maxRecords, timeout)
	if err != nil {
		return nil, err
	}

	b.metrics.RecordFetch(topic, partition, len(entries), time.Since(start))
	return entries, nil
}

// PartitionCount returns the partition count for a topic
func (b *Broker) PartitionCount(topic string) (int32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, exists := b.topics[topic]
	if !exists {
		return 0, UnknownTopicError{Topic: topic}
	}
	return t.PartitionCount(), nil
}

// PartitionLog returns the log backing one partition
func (b *Broker) PartitionLog(topic string, partition int32) (*logpkg.Log, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, exists := b.topics[topic]
	if !exists {
		return nil, UnknownTopicError{Topic: topic}
	}
	partitionLog, ok := t.Partition(partition)
	if !ok {
		return nil, UnknownPartitionError{Topic: topic, Partition: partition}
	}
	return partitionLog, nil
}

// NextOffset returns the next offset to be assigned on a partition
func (b *Broker) NextOffset(topic string, partition int32) (int64, error) {
	partitionLog, err := b.PartitionLog(topic, partition)
	if err != nil {
		return 0, err
	}
	return partitionLog.NextOffset(), nil
}

// Topics returns the names of all topics
func (b *Broker) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	return names
}

// resolveTopic returns the topic, auto-creating it when enabled
func (b *Broker) resolveTopic(name string) (*Topic, error) {
	b.mu.RLock()
	t, exists := b.topics[name]
	b.mu.RUnlock()
	if exists {
		return t, nil
	}

	if !b.config.AutoCreateTopics {
		return nil, UnknownTopicError{Topic: name}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if t, exists = b.topics[name]; exists {
		return t, nil
	}

	t = newTopic(name, b.config.DefaultPartitions)
	b.topics[name] = t
	b.metrics.SetTopicCount(len(b.topics))

	b.log.Info().
		Str("topic", name).
		Int32("partitions", b.config.DefaultPartitions).
		Msg("Topic auto-created")

	return t, nil
}
