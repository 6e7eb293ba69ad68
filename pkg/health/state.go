// Package health records the outcome of upstream aggregations in Redis so
// every replica can report when each collection last succeeded or failed.
// It never gates requests.
package health

import (
	"fmt"
	"time"
)

// Redis key layout, one set per collection.
const (
	redisKeyPrefix              = "swapi:status:"
	redisFieldLastSuccess       = "last_success"
	redisFieldLastFailure       = "last_failure"
	redisFieldLastError         = "last_error"
	redisFieldConsecutiveErrors = "consecutive_failures"
)

// UnhealthyAfter is the number of consecutive failures after which a
// collection is reported unhealthy.
const UnhealthyAfter = 3

// State is the last known upstream outcome for one collection.
type State struct {
	Collection string `json:"collection"`

	// LastSuccess is when an aggregation last completed, nil if never.
	LastSuccess *time.Time `json:"last_success,omitempty"`

	// LastFailure is when an aggregation last failed, nil if never.
	LastFailure *time.Time `json:"last_failure,omitempty"`

	// LastError is the internal error text of the last failure.
	LastError string `json:"last_error,omitempty"`

	// ConsecutiveFailures resets to 0 on every success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// Healthy is true while ConsecutiveFailures < UnhealthyAfter.
	Healthy bool `json:"healthy"`
}

// UpdateHealth updates Healthy from ConsecutiveFailures.
func (s *State) UpdateHealth() {
	s.Healthy = s.ConsecutiveFailures < UnhealthyAfter
}

// SinceSuccess returns the time elapsed since the last success, or false
// if the collection never succeeded.
func (s *State) SinceSuccess() (time.Duration, bool) {
	if s.LastSuccess == nil {
		return 0, false
	}
	return time.Since(*s.LastSuccess), true
}

func redisKey(collection, field string) string {
	return fmt.Sprintf("%s%s:%s", redisKeyPrefix, collection, field)
}
