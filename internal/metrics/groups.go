package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GroupMetrics tracks consumer group coordination metrics
type GroupMetrics struct {
	groupLag             *prometheus.GaugeVec
	groupCommittedOffset *prometheus.GaugeVec
	groupOffsetCommits   *prometheus.CounterVec
	groupMembers         *prometheus.GaugeVec
	groupRebalances      *prometheus.CounterVec
}

// NewGroupMetrics initializes consumer group metrics with the collector
func NewGroupMetrics(collector *Collector) *GroupMetrics {
	return &GroupMetrics{
		groupLag: collector.RegisterGauge(
			MetricGroupLag,
			"Consumer group lag per partition",
			[]string{LabelGroup, LabelTopic, LabelPartition},
		),
		groupCommittedOffset: collector.RegisterGauge(
			MetricGroupCommittedOffset,
			"Committed offset per partition",
			[]string{LabelGroup, LabelTopic, LabelPartition},
		),
		groupOffsetCommits: collector.RegisterCounter(
			MetricGroupOffsetCommits,
			"Total number of offset commits",
			[]string{LabelGroup, LabelTopic, LabelPartition},
		),
		groupMembers: collector.RegisterGauge(
			MetricGroupMembers,
			"Number of active members per group",
			[]string{LabelGroup},
		),
		groupRebalances: collector.RegisterCounter(
			MetricGroupRebalances,
			"Total number of rebalances per group",
			[]string{LabelGroup},
		),
	}
}

// UpdateLag updates the lag gauge
func (m *GroupMetrics) UpdateLag(group, topic string, partition int32, lag int64) {
	if m == nil {
		return
	}
	m.groupLag.WithLabelValues(group, topic, formatPartition(partition)).Set(float64(lag))
}

// RecordOffsetCommit records a committed offset
func (m *GroupMetrics) RecordOffsetCommit(group, topic string, partition int32, offset int64) {
	if m == nil {
		return
	}
	partitionStr := formatPartition(partition)
	m.groupOffsetCommits.WithLabelValues(group, topic, partitionStr).Inc()
	m.groupCommittedOffset.WithLabelValues(group, topic, partitionStr).Set(float64(offset))
}

// SetMemberCount updates the member count gauge
func (m *GroupMetrics) SetMemberCount(group string, count int) {
	if m == nil {
		return
	}
	m.groupMembers.WithLabelValues(group).Set(float64(count))
}

// RecordRebalance increments the rebalance counter
func (m *GroupMetrics) RecordRebalance(group string) {
	if m == nil {
		return
	}
	m.groupRebalances.WithLabelValues(group).Inc()
}
