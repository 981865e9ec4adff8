package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/driftq/broker/internal/broker"
	"github.com/driftq/broker/internal/client"
	"github.com/driftq/broker/internal/config"
	"github.com/driftq/broker/internal/coordinator"
	"github.com/driftq/broker/internal/logger"
	"github.com/driftq/broker/internal/metrics"
	"github.com/driftq/broker/internal/storage/offsets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Rotation:   cfg.Logging.Rotation,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Metrics
	collector := metrics.NewCollector()
	brokerMetrics := metrics.NewBrokerMetrics(collector)
	groupMetrics := metrics.NewGroupMetrics(collector)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, collector.GetRegistry())
		if err := metricsServer.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start metrics server: %v\n", err)
			os.Exit(1)
		}
		defer metricsServer.Stop(ctx)
	}

	// Broker
	b := broker.New(broker.Config{
		AutoCreateTopics:  cfg.Broker.AutoCreateTopics,
		DefaultPartitions: cfg.Broker.DefaultPartitions,
		UnkeyedPolicy:     broker.UnkeyedPolicy(cfg.Broker.UnkeyedPolicy),
	}, brokerMetrics)

	// Coordinator, optionally with a durable offset store
	coordOpts := []coordinator.Option{coordinator.WithMetrics(groupMetrics)}
	if cfg.Storage.PersistOffsets {
		store, err := offsets.Open(cfg.Storage.DataDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open offset store: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		coordOpts = append(coordOpts, coordinator.WithOffsetStore(store))
	}

	coord := coordinator.New(b, coordinator.Config{
		JoinWindow:           cfg.Group.JoinWindow,
		SessionTimeout:       cfg.Group.SessionTimeout,
		SessionCheckInterval: cfg.Group.SessionCheckInterval,
		EmptyGroupTTL:        cfg.Group.EmptyGroupTTL,
	}, coordOpts...)

	if err := coord.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start coordinator: %v\n", err)
		os.Exit(1)
	}
	defer coord.Stop(ctx)

	// Walk one produce/consume round trip
	if err := b.CreateTopic("orders", 3); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create topic: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Created topic: orders (3 partitions)")

	producer := client.NewProducer(b)
	for i := 1; i <= 5; i++ {
		key := []byte(fmt.Sprintf("customer-%d", i%2))
		value := []byte(fmt.Sprintf("order payload %d", i))
		result, err := producer.Send(ctx, "orders", key, value,
			client.WithHeaders(map[string][]byte{"source": []byte("demo")}))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to send record %d: %v\n", i, err)
			os.Exit(1)
		}
		fmt.Printf("  Produced record %d: key=%s partition=%d offset=%d\n", i, key, result.Partition, result.Offset)
	}

	consumer := client.NewConsumer(b, coord, "demo-group", []string{"orders"})
	if err := consumer.Join(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to join group: %v\n", err)
		os.Exit(1)
	}
	defer consumer.Leave(ctx)
	fmt.Printf("Joined group demo-group as %s with %d partitions\n", consumer.MemberID(), len(consumer.Assignment()))

	deliveries, err := consumer.Poll(ctx, time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Poll failed: %v\n", err)
		os.Exit(1)
	}
	for _, d := range deliveries {
		fmt.Printf("  Consumed: partition=%d offset=%d key=%s value=%q\n",
			d.Partition, d.Offset, d.Record.Key, d.Record.Value)
		if err := consumer.Commit(ctx, d.Topic, d.Partition, d.Offset); err != nil {
			fmt.Fprintf(os.Stderr, "Commit failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("\nDone! Consumed %d records.\n", len(deliveries))
	if cfg.Metrics.Enabled {
		fmt.Printf("Metrics available at http://localhost%s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
	}
}
