package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling-billing/internal/insurance"
)

func TestSweepSchedule(t *testing.T) {
	schedule, err := sweepSchedule("5 0 * * *")
	require.NoError(t, err)

	from := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, time.Date(2025, 12, 2, 0, 5, 0, 0, time.UTC).Equal(schedule.Next(from)))
}

func TestSweepScheduleRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{"", "every day", "61 * * * *", "* * * * * *"} {
		_, err := sweepSchedule(spec)
		assert.Error(t, err, spec)
	}
}

func TestRunOnceExpiresLapsedPolicies(t *testing.T) {
	store := insurance.NewMemoryRepository()
	now := time.Now().UTC()
	_, err := store.CreatePolicy(context.Background(), &insurance.Policy{
		ID:                 "pol-1",
		PatientID:          "p1",
		PolicyNumber:       "POL-1",
		Provider:           "Acme Health",
		CoveragePercentage: 80,
		MaxCoverage:        10000,
		StartDate:          now.AddDate(-1, 0, 0),
		EndDate:            now.AddDate(0, 0, -2),
		Status:             insurance.PolicyActive,
	})
	require.NoError(t, err)

	runOnce(context.Background(), insurance.NewEvaluator(store), zerolog.Nop())

	active, err := store.ListActiveByPatient(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, active)
}
