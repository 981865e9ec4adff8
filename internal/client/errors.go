package client

import "fmt"

// NotJoinedError is returned when a consumer operation requires group
// membership but Join has not been called (or Leave already was)
type NotJoinedError struct {
	Group string
}

func (e NotJoinedError) Error() string {
	return fmt.Sprintf("consumer has not joined group %s", e.Group)
}

// AlreadyJoinedError is returned when Join is called twice without an
// intervening Leave
type AlreadyJoinedError struct {
	Group  string
	Member string
}

func (e AlreadyJoinedError) Error() string {
	return fmt.Sprintf("consumer already joined group %s as member %s", e.Group, e.Member)
}
