package coordinator

import (
	"fmt"
	"strings"
)

// GroupNotFoundError indicates an unknown consumer group
type GroupNotFoundError struct {
	Group string
}

func (e GroupNotFoundError) Error() string {
	return fmt.Sprintf("consumer group not found: %s", e.Group)
}

// MemberNotFoundError indicates a member not registered in the group
type MemberNotFoundError struct {
	Group  string
	Member string
}

func (e MemberNotFoundError) Error() string {
	return fmt.Sprintf("member %s not found in group %s", e.Member, e.Group)
}

// StaleOffsetError indicates a commit that would move a committed offset
// backwards
type StaleOffsetError struct {
	Group     string
	Topic     string
	Partition int32
	Committed int64
	Offset    int64
}

func (e StaleOffsetError) Error() string {
	return fmt.Sprintf("stale offset %d for %s/%d in group %s: already committed %d",
		e.Offset, e.Topic, e.Partition, e.Group, e.Committed)
}

// StaleGenerationError indicates an operation from a member that missed a
// rebalance
type StaleGenerationError struct {
	Group    string
	Member   string
	Expected int
	Got      int
}

func (e StaleGenerationError) Error() string {
	return fmt.Sprintf("stale generation %d from member %s in group %s (current %d)",
		e.Got, e.Member, e.Group, e.Expected)
}

// SubscriptionMismatchError indicates a join whose topic set differs from
// the group's established subscription
type SubscriptionMismatchError struct {
	Group      string
	Member     string
	Subscribed []string
	Requested  []string
}

func (e SubscriptionMismatchError) Error() string {
	return fmt.Sprintf("member %s subscription [%s] does not match group %s subscription [%s]",
		e.Member, strings.Join(e.Requested, ","), e.Group, strings.Join(e.Subscribed, ","))
}
