package sla

import (
	"testing"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNow is a settable time source for Clock.
type fakeNow struct{ t time.Time }

func (f *fakeNow) Now() time.Time { return f.t }

func newTestClock(t *testing.T, start time.Time) (*Clock, *fakeNow) {
	t.Helper()
	fn := &fakeNow{t: start}
	return NewClock(newTestCalendar(t), WithNow(fn.Now)), fn
}

func startedSLA(c *Clock, hours float64, business bool, start time.Time) *models.TicketSLA {
	s := &models.TicketSLA{Hours: hours, UseBusinessHours: business, Status: models.SLANotStarted}
	c.Start(s, start)
	return s
}

func TestClock_CalculateDeadline(t *testing.T) {
	c, _ := newTestClock(t, at(2024, 1, 8, 9, 0))

	// wall clock ignores the calendar
	assert.Equal(t, at(2024, 1, 6, 15, 0), c.CalculateDeadline(at(2024, 1, 6, 10, 0), 5, false))
	// scenario: in_progress at 09:30 Monday with an 8h budget
	assert.Equal(t, at(2024, 1, 8, 17, 30), c.CalculateDeadline(at(2024, 1, 8, 9, 30), 8, true))
}

func TestClock_CalculateRemainingHours(t *testing.T) {
	c, _ := newTestClock(t, at(2024, 1, 8, 9, 0))
	deadline := at(2024, 1, 9, 12, 0)

	assert.Equal(t, 0.0, c.CalculateRemainingHours(deadline, deadline, true))
	assert.Equal(t, 0.0, c.CalculateRemainingHours(deadline.Add(time.Hour), deadline, true))
	assert.Equal(t, 27.0, c.CalculateRemainingHours(at(2024, 1, 8, 9, 0), deadline, false))
	assert.Equal(t, 12.0, c.CalculateRemainingHours(at(2024, 1, 8, 9, 0), deadline, true))
}

func TestClock_Classify(t *testing.T) {
	c, _ := newTestClock(t, time.Now())

	tests := []struct {
		remaining, total float64
		paused           bool
		want             string
	}{
		{0, 8, false, models.SLABreached},
		{-1, 8, false, models.SLABreached},
		{1.6, 8, false, models.SLAAtRisk},
		{1, 8, false, models.SLAAtRisk},
		{1.7, 8, false, models.SLAOnTime},
		{8, 8, false, models.SLAOnTime},
		{0, 8, true, models.SLAPaused},
		{8, 8, true, models.SLAPaused},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.remaining, tt.total, tt.paused), "remaining=%v paused=%v", tt.remaining, tt.paused)
	}
}

func TestClock_Start(t *testing.T) {
	c, _ := newTestClock(t, at(2024, 1, 8, 9, 30))

	s := &models.TicketSLA{Hours: 8, UseBusinessHours: true, Status: models.SLANotStarted}
	require.True(t, c.Start(s, at(2024, 1, 8, 9, 30)))
	require.NotNil(t, s.StartTime)
	require.NotNil(t, s.Deadline)
	assert.Equal(t, at(2024, 1, 8, 17, 30), *s.Deadline)
	assert.Equal(t, models.SLAOnTime, s.Status)
	assert.Equal(t, 8.0, s.RemainingHours)

	// second start keeps the original clock
	assert.False(t, c.Start(s, at(2024, 1, 8, 11, 0)))
	assert.Equal(t, at(2024, 1, 8, 9, 30), *s.StartTime)

	// no budget, no clock
	none := &models.TicketSLA{Status: models.SLANotStarted}
	assert.False(t, c.Start(none, at(2024, 1, 8, 9, 30)))
	assert.Nil(t, none.StartTime)
}

func TestClock_PauseResume_Preconditions(t *testing.T) {
	c, _ := newTestClock(t, at(2024, 1, 8, 10, 0))

	notStarted := &models.TicketSLA{Hours: 8, Status: models.SLANotStarted}
	assert.ErrorIs(t, c.Pause(notStarted, "waiting"), ErrPreconditionFailed)
	assert.ErrorIs(t, c.Resume(notStarted), ErrPreconditionFailed)

	s := startedSLA(c, 8, true, at(2024, 1, 8, 9, 0))
	assert.ErrorIs(t, c.Resume(s), ErrPreconditionFailed)

	require.NoError(t, c.Pause(s, "waiting for requester"))
	assert.ErrorIs(t, c.Pause(s, "again"), ErrPreconditionFailed)
	assert.Equal(t, models.SLAPaused, s.Status)
	assert.True(t, s.IsPaused)
	assert.Equal(t, "waiting for requester", s.PauseReason)
	assert.Equal(t, 1.0, s.ElapsedHoursBeforePause)
	assert.Equal(t, 7.0, s.RemainingHours)
}

func TestClock_ZeroDurationPauseKeepsDeadline(t *testing.T) {
	for _, business := range []bool{true, false} {
		c, fn := newTestClock(t, at(2024, 1, 8, 9, 0))
		s := startedSLA(c, 8, business, at(2024, 1, 8, 9, 0))
		original := *s.Deadline

		fn.t = at(2024, 1, 8, 13, 17)
		require.NoError(t, c.Pause(s, "check"))
		require.NoError(t, c.Resume(s))

		assert.Equal(t, original, *s.Deadline, "business=%v", business)
		assert.False(t, s.IsPaused)
		assert.Nil(t, s.PausedAt)
		assert.Empty(t, s.PauseReason)
		assert.Zero(t, s.ElapsedHoursBeforePause)
		require.Len(t, s.PauseHistory, 1)
		assert.Zero(t, s.PauseHistory[0].DurationHours)
	}
}

func TestClock_PauseResume_AcrossDays(t *testing.T) {
	c, fn := newTestClock(t, at(2024, 1, 8, 9, 0))
	s := startedSLA(c, 8, true, at(2024, 1, 8, 9, 0))

	fn.t = at(2024, 1, 8, 15, 0)
	require.NoError(t, c.Pause(s, "awaiting parts"))
	assert.Equal(t, 6.0, s.ElapsedHoursBeforePause)

	// frozen while paused
	fn.t = at(2024, 1, 9, 17, 0)
	status, remaining, changed := c.UpdateStatus(s)
	assert.False(t, changed)
	assert.Equal(t, models.SLAPaused, status)
	assert.Equal(t, 2.0, remaining)

	fn.t = at(2024, 1, 10, 10, 0)
	require.NoError(t, c.Resume(s))

	assert.Equal(t, at(2024, 1, 10, 12, 0), *s.Deadline)
	assert.Equal(t, 2.0, s.RemainingHours)
	assert.Equal(t, models.SLAOnTime, s.Status)
	require.Len(t, s.PauseHistory, 1)
	assert.Equal(t, "awaiting parts", s.PauseHistory[0].Reason)
	assert.Equal(t, 43.0, s.PauseHistory[0].DurationHours)
	assert.Equal(t, at(2024, 1, 8, 15, 0), s.PauseHistory[0].PausedAt)
}

func TestClock_SecondPauseExcludesEarlierPause(t *testing.T) {
	c, fn := newTestClock(t, at(2024, 1, 8, 9, 0))
	s := startedSLA(c, 8, true, at(2024, 1, 8, 9, 0))

	fn.t = at(2024, 1, 8, 10, 0)
	require.NoError(t, c.Pause(s, "first"))
	fn.t = at(2024, 1, 8, 12, 0)
	require.NoError(t, c.Resume(s))
	assert.Equal(t, at(2024, 1, 9, 10, 0), *s.Deadline)

	// 4 working hours since start, 2 of them paused
	fn.t = at(2024, 1, 8, 13, 0)
	require.NoError(t, c.Pause(s, "second"))
	assert.InDelta(t, 2.0, s.ElapsedHoursBeforePause, 0.001)
	assert.InDelta(t, 6.0, s.RemainingHours, 0.001)

	fn.t = at(2024, 1, 8, 14, 0)
	require.NoError(t, c.Resume(s))
	assert.Equal(t, at(2024, 1, 9, 11, 0), *s.Deadline)
	assert.InDelta(t, 6.0, s.RemainingHours, 0.001)
	assert.Len(t, s.PauseHistory, 2)
}

func TestClock_Resume_BudgetExhaustedBeforePause(t *testing.T) {
	c, fn := newTestClock(t, at(2024, 1, 8, 9, 0))
	s := startedSLA(c, 5, true, at(2024, 1, 8, 9, 0))

	fn.t = at(2024, 1, 8, 15, 0)
	require.NoError(t, c.Pause(s, "late pause"))

	fn.t = at(2024, 1, 10, 10, 0)
	require.NoError(t, c.Resume(s))

	assert.Equal(t, at(2024, 1, 10, 10, 0), *s.Deadline)
	assert.Equal(t, 0.0, s.RemainingHours)
	assert.Equal(t, models.SLABreached, s.Status)
}

func TestClock_UpdateStatus(t *testing.T) {
	c, fn := newTestClock(t, at(2024, 1, 8, 9, 0))

	notStarted := &models.TicketSLA{Hours: 8, Status: models.SLANotStarted}
	status, _, changed := c.UpdateStatus(notStarted)
	assert.False(t, changed)
	assert.Equal(t, models.SLANotStarted, status)

	s := startedSLA(c, 10, true, at(2024, 1, 8, 9, 0))

	fn.t = at(2024, 1, 8, 9, 0)
	_, _, changed = c.UpdateStatus(s)
	assert.False(t, changed)

	fn.t = at(2024, 1, 9, 9, 0) // 9h used, 1h left
	status, remaining, changed := c.UpdateStatus(s)
	assert.True(t, changed)
	assert.Equal(t, models.SLAAtRisk, status)
	assert.Equal(t, 1.0, remaining)
	// UpdateStatus does not mutate
	assert.Equal(t, models.SLAOnTime, s.Status)

	fn.t = at(2024, 1, 9, 10, 0)
	status, remaining, _ = c.UpdateStatus(s)
	assert.Equal(t, models.SLABreached, status)
	assert.Equal(t, 0.0, remaining)
	s.Status, s.RemainingHours = status, remaining

	for _, later := range []time.Time{at(2024, 1, 9, 11, 0), at(2024, 1, 13, 12, 0), at(2024, 2, 1, 9, 0)} {
		fn.t = later
		status, remaining, changed = c.UpdateStatus(s)
		assert.Equal(t, models.SLABreached, status)
		assert.Equal(t, 0.0, remaining)
		assert.False(t, changed)
	}
}

func TestMatrix_HoursFor(t *testing.T) {
	m := NewMatrix(config.GetDefaultConfig().SLA)

	assert.Equal(t, 2.0, m.HoursFor("urgent", "Hardware"))
	assert.Equal(t, 8.0, m.HoursFor("HIGH", "hardware"))
	assert.Equal(t, 24.0, m.HoursFor("medium", "Hardware"))
	assert.Equal(t, 72.0, m.HoursFor("low", "Hardware"))
	assert.Equal(t, 48.0, m.HoursFor("medium", "Facilities"))
	assert.Equal(t, 48.0, m.HoursFor("critical", "Hardware"))
}
