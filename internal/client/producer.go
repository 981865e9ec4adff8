package client

import (
	"context"

	"github.com/driftq/broker/internal/broker"
	"github.com/driftq/broker/internal/logger"
	"github.com/rs/zerolog"
)

// SendResult reports where a record landed
type SendResult struct {
	Partition int32
	Offset    int64
}

// Producer is a thin facade over the broker send path. It is safe for
// concurrent use.
type Producer struct {
	broker *broker.Broker
	log    zerolog.Logger
}

// NewProducer creates a producer bound to a broker
func NewProducer(b *broker.Broker) *Producer {
	return &Producer{
		broker: b,
		log:    logger.WithComponent("producer"),
	}
}

// Send appends one record and returns its partition and offset once the
// append is visible to fetches
func (p *Producer) Send(ctx context.Context, topic string, key, value []byte, opts ...SendOption) (SendResult, error) {
	options := &SendOptions{}
	for _, opt := range opts {
		opt(options)
	}

	partition, offset, err := p.broker.Send(ctx, broker.ProduceRequest{
		Topic:     topic,
		Partition: options.Partition,
		Key:       key,
		Value:     value,
		Headers:   options.Headers,
		Timestamp: options.Timestamp,
	})
	if err != nil {
		return SendResult{}, err
	}

	return SendResult{Partition: partition, Offset: offset}, nil
}
