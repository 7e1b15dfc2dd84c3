package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/commission-service/internal/testutil/mocks"
)

func TestScheduler_UntilNextDailyRun(t *testing.T) {
	loc := time.UTC
	s := NewScheduler(nil, SchedulerConfig{DailyHour: 1, Location: loc}, mocks.NewMockLogger())

	tests := []struct {
		name     string
		now      time.Time
		expected time.Duration
	}{
		{
			name:     "before today's run",
			now:      time.Date(2026, 3, 15, 0, 30, 0, 0, loc),
			expected: 30 * time.Minute,
		},
		{
			name:     "exactly at the run hour waits a day",
			now:      time.Date(2026, 3, 15, 1, 0, 0, 0, loc),
			expected: 24 * time.Hour,
		},
		{
			name:     "after today's run",
			now:      time.Date(2026, 3, 15, 13, 0, 0, 0, loc),
			expected: 12 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.untilNextDailyRun(tt.now))
		})
	}
}

func TestScheduler_StartStop(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	s := NewScheduler(driver, SchedulerConfig{
		DailyHour:         1,
		ReconcileInterval: time.Hour,
		AnomalyInterval:   time.Hour,
		Location:          time.UTC,
	}, mocks.NewMockLogger())

	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
