package coordinator

import "sort"

// assignRange distributes every partition of every subscribed topic across
// the members using deterministic range assignment: member IDs and topics
// are processed in sorted order, and each member receives a contiguous
// block of partitions per topic. Topics whose partition count does not
// divide evenly hand their surplus to a rotating window of members, so
// per-member totals across the whole subscription differ by at most one.
func assignRange(memberIDs []string, topics []string, partitionCounts map[string]int32) map[string][]TopicPartition {
	assignment := make(map[string][]TopicPartition, len(memberIDs))
	if len(memberIDs) == 0 {
		return assignment
	}

	sortedMembers := make([]string, len(memberIDs))
	copy(sortedMembers, memberIDs)
	sort.Strings(sortedMembers)

	sortedTopics := make([]string, len(topics))
	copy(sortedTopics, topics)
	sort.Strings(sortedTopics)

	for _, id := range sortedMembers {
		assignment[id] = []TopicPartition{}
	}

	memberCount := len(sortedMembers)
	extraCursor := 0

	for _, topic := range sortedTopics {
		partitionCount := int(partitionCounts[topic])
		base := partitionCount / memberCount
		extras := partitionCount % memberCount

		// Members holding a surplus partition for this topic
		extraFor := make(map[int]bool, extras)
		for i := 0; i < extras; i++ {
			extraFor[(extraCursor+i)%memberCount] = true
		}
		extraCursor = (extraCursor + extras) % memberCount

		next := int32(0)
		for i, id := range sortedMembers {
			count := base
			if extraFor[i] {
				count++
			}
			for j := 0; j < count; j++ {
				assignment[id] = append(assignment[id], TopicPartition{Topic: topic, Partition: next})
				next++
			}
		}
	}

	return assignment
}
