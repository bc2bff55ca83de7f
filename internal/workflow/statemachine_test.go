package workflow

import (
	"errors"
	"testing"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/models"
	"helpdesk/internal/sla"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agent uint = 42

func newTestMachine(t *testing.T, now *time.Time) *StateMachine {
	t.Helper()
	cal, err := sla.NewBusinessCalendar(config.GetDefaultConfig().BusinessHours)
	require.NoError(t, err)
	clock := sla.NewClock(cal, sla.WithNow(func() time.Time { return *now }))
	return NewStateMachine(clock)
}

func newTicket(created time.Time, hours float64) *models.Ticket {
	return &models.Ticket{
		ID:        7,
		Title:     "printer jam",
		Status:    models.StatusOpen,
		Priority:  models.PriorityMedium,
		Category:  models.CategoryHardware,
		CreatedAt: created,
		SLA:       models.TicketSLA{Hours: hours, UseBusinessHours: true, Status: models.SLANotStarted},
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{models.StatusOpen, models.StatusInProgress},
		{models.StatusOpen, models.StatusCancelled},
		{models.StatusInProgress, models.StatusResolved},
		{models.StatusInProgress, models.StatusOpen},
		{models.StatusInProgress, models.StatusCancelled},
		{models.StatusResolved, models.StatusClosed},
		{models.StatusResolved, models.StatusOpen},
		{models.StatusResolved, models.StatusCancelled},
	}
	for _, e := range allowed {
		assert.True(t, CanTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}

	denied := [][2]string{
		{models.StatusOpen, models.StatusResolved},
		{models.StatusOpen, models.StatusClosed},
		{models.StatusInProgress, models.StatusClosed},
		{models.StatusResolved, models.StatusInProgress},
		{models.StatusClosed, models.StatusInProgress},
		{models.StatusClosed, models.StatusOpen},
		{models.StatusCancelled, models.StatusOpen},
		{"unknown", models.StatusOpen},
	}
	for _, e := range denied {
		assert.False(t, CanTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}
	assert.Empty(t, AllowedTargets(models.StatusClosed))
}

func TestTransition_InProgressStartsSLA(t *testing.T) {
	now := time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC)
	m := newTestMachine(t, &now)
	tk := newTicket(time.Date(2024, 1, 8, 8, 0, 0, 0, time.UTC), 8)

	res, err := m.Transition(tk, models.StatusInProgress, agent, "picked up")
	require.NoError(t, err)
	require.True(t, res.Changed)

	assert.Equal(t, models.StatusInProgress, tk.Status)
	require.NotNil(t, tk.FirstResponseAt)
	assert.Equal(t, now, *tk.FirstResponseAt)
	assert.Equal(t, 0.5, tk.Metrics.ResponseTime)

	require.NotNil(t, tk.SLA.StartTime)
	assert.Equal(t, now, *tk.SLA.StartTime)
	assert.Equal(t, time.Date(2024, 1, 8, 17, 30, 0, 0, time.UTC), *tk.SLA.Deadline)
	assert.Equal(t, models.SLAOnTime, tk.SLA.Status)
	assert.Equal(t, 8.0, tk.SLA.RemainingHours)

	require.Len(t, tk.StatusHistory, 1)
	h := tk.StatusHistory[0]
	assert.Equal(t, models.StatusInProgress, h.Status)
	assert.Equal(t, models.StatusOpen, h.FromStatus)
	assert.Equal(t, agent, h.ChangedBy)
	assert.Equal(t, "picked up", h.Comment)

	assert.True(t, Has(res.Effects, EffectStatusChanged))
	assert.True(t, Has(res.Effects, EffectFirstResponse))
	assert.True(t, Has(res.Effects, EffectSLAStarted))
}

func TestTransition_SameStatusIsNoop(t *testing.T) {
	now := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	m := newTestMachine(t, &now)
	tk := newTicket(now, 8)

	_, err := m.Transition(tk, models.StatusInProgress, agent, "")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	res, err := m.Transition(tk, models.StatusInProgress, agent, "")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Effects)
	assert.Len(t, tk.StatusHistory, 1)

	// dedupe does not require an actor
	res, err = m.Transition(tk, models.StatusInProgress, 0, "")
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestTransition_InvalidTransition(t *testing.T) {
	now := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	m := newTestMachine(t, &now)
	tk := newTicket(now, 8)

	_, err := m.Transition(tk, models.StatusClosed, agent, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.StatusOpen, te.From)
	assert.Equal(t, models.StatusClosed, te.To)

	assert.Equal(t, models.StatusOpen, tk.Status)
	assert.Empty(t, tk.StatusHistory)
}

func TestTransition_MissingActor(t *testing.T) {
	now := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	m := newTestMachine(t, &now)
	tk := newTicket(now, 8)

	_, err := m.Transition(tk, models.StatusInProgress, 0, "")
	assert.ErrorIs(t, err, ErrMissingActor)
	assert.Equal(t, models.StatusOpen, tk.Status)
	assert.Nil(t, tk.FirstResponseAt)
	assert.Nil(t, tk.SLA.StartTime)
	assert.Empty(t, tk.StatusHistory)
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	now := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	m := newTestMachine(t, &now)

	closed := newTicket(now, 8)
	for _, s := range []string{models.StatusInProgress, models.StatusResolved, models.StatusClosed} {
		_, err := m.Transition(closed, s, agent, "")
		require.NoError(t, err)
	}
	cancelled := newTicket(now, 8)
	_, err := m.Transition(cancelled, models.StatusCancelled, agent, "duplicate")
	require.NoError(t, err)

	for _, tk := range []*models.Ticket{closed, cancelled} {
		for _, target := range []string{models.StatusOpen, models.StatusInProgress, models.StatusResolved, models.StatusClosed, models.StatusCancelled} {
			if target == tk.Status {
				continue
			}
			_, err := m.Transition(tk, target, agent, "")
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tk.Status, target)
		}
	}
}

func TestTransition_FullLifecycleWithReopen(t *testing.T) {
	now := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	m := newTestMachine(t, &now)
	tk := newTicket(now, 8)

	step := func(to string, advance time.Duration) *Result {
		t.Helper()
		now = now.Add(advance)
		res, err := m.Transition(tk, to, agent, "")
		require.NoError(t, err)
		return res
	}

	step(models.StatusInProgress, time.Hour)
	firstResponse := *tk.FirstResponseAt
	slaStart := *tk.SLA.StartTime

	step(models.StatusResolved, 2*time.Hour)
	require.NotNil(t, tk.ResolvedAt)
	resolvedAt := *tk.ResolvedAt
	assert.Equal(t, 3.0, tk.Metrics.ResolutionTime)

	res := step(models.StatusOpen, time.Hour)
	assert.True(t, Has(res.Effects, EffectReopened))
	assert.Equal(t, 1, tk.Metrics.ReopenCount)

	res = step(models.StatusInProgress, time.Hour)
	assert.False(t, Has(res.Effects, EffectSLAStarted))
	assert.False(t, Has(res.Effects, EffectFirstResponse))
	assert.Equal(t, firstResponse, *tk.FirstResponseAt)
	assert.Equal(t, slaStart, *tk.SLA.StartTime)

	step(models.StatusOpen, time.Hour)
	assert.Equal(t, 2, tk.Metrics.ReopenCount)
	step(models.StatusInProgress, time.Hour)
	step(models.StatusResolved, time.Hour)
	assert.Equal(t, resolvedAt, *tk.ResolvedAt)
	step(models.StatusClosed, time.Hour)
	require.NotNil(t, tk.ClosedAt)

	require.Len(t, tk.StatusHistory, 8)
	for i := 1; i < len(tk.StatusHistory); i++ {
		assert.NotEqual(t, tk.StatusHistory[i-1].Status, tk.StatusHistory[i].Status)
		assert.False(t, tk.StatusHistory[i].ChangedAt.Before(tk.StatusHistory[i-1].ChangedAt))
		assert.NotZero(t, tk.StatusHistory[i].ChangedBy)
	}
}

func TestTransition_NoSLABudget(t *testing.T) {
	now := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	m := newTestMachine(t, &now)
	tk := newTicket(now, 0)

	res, err := m.Transition(tk, models.StatusInProgress, agent, "")
	require.NoError(t, err)
	assert.False(t, Has(res.Effects, EffectSLAStarted))
	assert.Nil(t, tk.SLA.StartTime)
	assert.Nil(t, tk.SLA.Deadline)
	assert.Equal(t, models.SLANotStarted, tk.SLA.Status)
}
