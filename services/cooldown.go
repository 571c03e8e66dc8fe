package services

import (
	"time"

	"showmates_server/models"
)

// CooldownState is the per-user search gate state persisted on the
// profile. SearchCount always holds a value already wrapped modulo the
// schedule length.
type CooldownState struct {
	LastSearchAt models.Timestamp
	SearchCount  int
}

// CooldownDecision is the outcome of evaluating one search attempt.
// When Allowed, Next carries the state to persist atomically with the
// search's writes; when denied, RetryAfter is the remaining wait.
// NextAllowed is the earliest accepted attempt time in either case.
type CooldownDecision struct {
	Allowed     bool
	RetryAfter  time.Duration
	Next        CooldownState
	NextAllowed models.Timestamp
}

// EvaluateCooldown runs the search gate as a pure function of the
// stored state and the attempt time. The gate derives nextAllowed as
// lastSearchAt + schedule[searchCount]; an attempt at exactly
// nextAllowed is accepted. A zero lastSearchAt dates the gate to the
// epoch, so a user's first search always passes.
func EvaluateCooldown(state CooldownState, now time.Time) CooldownDecision {
	schedule := models.CooldownSchedule
	index := state.SearchCount % len(schedule)
	if index < 0 {
		index += len(schedule)
	}

	nextAllowed := state.LastSearchAt.Time().Add(schedule[index])
	if now.Before(nextAllowed) {
		return CooldownDecision{
			Allowed:     false,
			RetryAfter:  nextAllowed.Sub(now),
			NextAllowed: models.NewTimestamp(nextAllowed),
		}
	}

	next := CooldownState{
		LastSearchAt: models.NewTimestamp(now),
		SearchCount:  (index + 1) % len(schedule),
	}
	return CooldownDecision{
		Allowed:     true,
		Next:        next,
		NextAllowed: models.NewTimestamp(now.Add(schedule[next.SearchCount])),
	}
}
