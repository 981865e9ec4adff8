package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BrokerMetrics tracks append and fetch activity per topic partition
type BrokerMetrics struct {
	recordsAppendedTotal *prometheus.CounterVec
	recordsFetchedTotal  *prometheus.CounterVec
	appendDuration       *prometheus.HistogramVec
	fetchDuration        *prometheus.HistogramVec
	partitionNextOffset  *prometheus.GaugeVec
	topicsTotal          *prometheus.GaugeVec
}

// NewBrokerMetrics initializes broker metrics with the collector
func NewBrokerMetrics(collector *Collector) *BrokerMetrics {
	return &BrokerMetrics{
		recordsAppendedTotal: collector.RegisterCounter(
			MetricBrokerRecordsAppendedTotal,
			"Total number of records appended per partition",
			[]string{LabelTopic, LabelPartition},
		),
		recordsFetchedTotal: collector.RegisterCounter(
			MetricBrokerRecordsFetchedTotal,
			"Total number of records returned by fetch per partition",
			[]string{LabelTopic, LabelPartition},
		),
		appendDuration: collector.RegisterHistogram(
			MetricBrokerAppendDuration,
			"Duration of Send operations in seconds",
			[]string{LabelTopic, LabelPartition},
			prometheus.DefBuckets,
		),
		fetchDuration: collector.RegisterHistogram(
			MetricBrokerFetchDuration,
			"Duration of Fetch operations in seconds",
			[]string{LabelTopic, LabelPartition},
			prometheus.DefBuckets,
		),
		partitionNextOffset: collector.RegisterGauge(
			MetricBrokerPartitionNextOffset,
			"Next offset to be assigned per partition",
			[]string{LabelTopic, LabelPartition},
		),
		topicsTotal: collector.RegisterGauge(
			MetricBrokerTopicsTotal,
			"Number of topics owned by the broker",
			nil,
		),
	}
}

// RecordAppend records a completed append
func (m *BrokerMetrics) RecordAppend(topic string, partition int32, nextOffset int64, duration time.Duration) {
	if m == nil {
		return
	}
	partitionStr := formatPartition(partition)
	m.recordsAppendedTotal.WithLabelValues(topic, partitionStr).Inc()
	m.appendDuration.WithLabelValues(topic, partitionStr).Observe(duration.Seconds())
	m.partitionNextOffset.WithLabelValues(topic, partitionStr).Set(float64(nextOffset))
}

// RecordFetch records a completed fetch
func (m *BrokerMetrics) RecordFetch(topic string, partition int32, recordCount int, duration time.Duration) {
	if m == nil {
		return
	}
	partitionStr := formatPartition(partition)
	m.recordsFetchedTotal.WithLabelValues(topic, partitionStr).Add(float64(recordCount))
	m.fetchDuration.WithLabelValues(topic, partitionStr).Observe(duration.Seconds())
}

// SetTopicCount updates the topic count gauge
func (m *BrokerMetrics) SetTopicCount(count int) {
	if m == nil {
		return
	}
	m.topicsTotal.WithLabelValues().Set(float64(count))
}

func formatPartition(partition int32) string {
	return fmt.Sprintf("%d", partition)
}
