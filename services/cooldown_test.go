package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showmates_server/models"
)

func TestCooldownFirstSearchAlwaysAllowed(t *testing.T) {
	decision := EvaluateCooldown(CooldownState{}, time.Now())

	require.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Next.SearchCount)
}

func TestCooldownWalksScheduleAndWrapsAround(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	state := CooldownState{}

	// The wait after each accepted search follows the schedule from its
	// second entry and wraps back to the first after a full cycle.
	expectedWaits := []time.Duration{
		2 * time.Minute,
		5 * time.Minute,
		1 * time.Minute,
		2 * time.Minute,
	}

	for i, wait := range expectedWaits {
		decision := EvaluateCooldown(state, now)
		require.True(t, decision.Allowed, "search %d should pass", i+1)
		assert.Equal(t, now.Add(wait).UnixMilli(), decision.NextAllowed.UnixMilli(), "search %d", i+1)

		// One second early is denied with the remaining wait reported.
		early := EvaluateCooldown(decision.Next, now.Add(wait-time.Second))
		require.False(t, early.Allowed, "search %d early retry", i+1)
		assert.Equal(t, time.Second, early.RetryAfter)

		// Exactly at the boundary is accepted.
		atBoundary := EvaluateCooldown(decision.Next, now.Add(wait))
		require.True(t, atBoundary.Allowed, "search %d boundary retry", i+1)

		state = decision.Next
		now = now.Add(wait)
	}
}

func TestCooldownSearchCountStaysWrapped(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	state := CooldownState{}

	for i := 0; i < 10; i++ {
		decision := EvaluateCooldown(state, now)
		require.True(t, decision.Allowed)
		assert.Less(t, decision.Next.SearchCount, len(models.CooldownSchedule))
		assert.GreaterOrEqual(t, decision.Next.SearchCount, 0)

		state = decision.Next
		now = now.Add(time.Hour)
	}
}

func TestCooldownDeniedDecisionReportsNextAllowed(t *testing.T) {
	last := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	state := CooldownState{LastSearchAt: models.NewTimestamp(last), SearchCount: 2}

	decision := EvaluateCooldown(state, last.Add(time.Minute))

	require.False(t, decision.Allowed)
	assert.Equal(t, 4*time.Minute, decision.RetryAfter)
	assert.Equal(t, last.Add(5*time.Minute).UnixMilli(), decision.NextAllowed.UnixMilli())
}

func TestCooldownToleratesOutOfRangeStoredCount(t *testing.T) {
	last := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// A count beyond the schedule length indexes modulo the schedule.
	state := CooldownState{LastSearchAt: models.NewTimestamp(last), SearchCount: 7}
	decision := EvaluateCooldown(state, last.Add(2*time.Minute))
	require.True(t, decision.Allowed)
	assert.Equal(t, 2, decision.Next.SearchCount)

	// Negative counts cannot panic the gate either.
	state = CooldownState{LastSearchAt: models.NewTimestamp(last), SearchCount: -1}
	decision = EvaluateCooldown(state, last.Add(5*time.Minute))
	require.True(t, decision.Allowed)
}
