package metrics

// Metric name constants following Prometheus naming conventions
// Format: driftq_{component}_{metric}_{unit}

// Broker metrics
const (
	MetricBrokerRecordsAppendedTotal = "driftq_broker_records_appended_total"
	MetricBrokerRecordsFetchedTotal  = "driftq_broker_records_fetched_total"
	MetricBrokerAppendDuration       = "driftq_broker_append_duration_seconds"
	MetricBrokerFetchDuration        = "driftq_broker_fetch_duration_seconds"
	MetricBrokerPartitionNextOffset  = "driftq_broker_partition_next_offset"
	MetricBrokerTopicsTotal          = "driftq_broker_topics"
)

// Consumer group metrics
const (
	MetricGroupLag             = "driftq_group_lag"
	MetricGroupCommittedOffset = "driftq_group_committed_offset"
	MetricGroupOffsetCommits   = "driftq_group_offset_commits_total"
	MetricGroupMembers         = "driftq_group_members"
	MetricGroupRebalances      = "driftq_group_rebalances_total"
)

// Label name constants
const (
	LabelTopic     = "topic"
	LabelPartition = "partition"
	LabelGroup     = "group"
)
