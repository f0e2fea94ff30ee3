package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxDrainSteps is the default maximum number of tasks one drain
// may process. It bounds runaway synchronous effect chains (an effect that
// answers every action with another action) that would otherwise keep the
// dispatching goroutine busy forever.
const DefaultMaxDrainSteps = 10000

// DrainQuota counts tasks processed by a single drain of the dispatch
// queue and enforces the configured limit.
//
// Each drain gets its own DrainQuota. The count resets when the queue
// empties and the drain ends.
type DrainQuota struct {
	maxSteps int
	current  int
}

// NewDrainQuota creates a quota with the given limit. A non-positive limit
// disables enforcement.
func NewDrainQuota(maxSteps int) *DrainQuota {
	return &DrainQuota{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
//
// Returns StepsExceededError if the quota is exceeded.
func (q *DrainQuota) Check(session string) error {
	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return &StepsExceededError{
			Session: session,
			Steps:   q.current,
			Limit:   q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *DrainQuota) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *DrainQuota) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a drain exceeds the max steps quota.
//
// The drain discards every remaining queued task. State stays at the last
// successfully processed transition.
type StepsExceededError struct {
	Session string
	Steps   int
	Limit   int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("store %s exceeded max drain steps: %d steps > %d limit",
		e.Session, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
