package workflow

import (
	"errors"
	"fmt"
	"time"

	"helpdesk/internal/models"
	"helpdesk/internal/sla"
)

var (
	// ErrInvalidTransition is wrapped by *TransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrMissingActor is returned when a transition has no actor to record.
	ErrMissingActor = errors.New("transition requires an actor")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// transitions is the allowed status graph. closed and cancelled have no way out.
var transitions = map[string][]string{
	models.StatusOpen:       {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusResolved, models.StatusOpen, models.StatusCancelled},
	models.StatusResolved:   {models.StatusClosed, models.StatusOpen, models.StatusCancelled},
	models.StatusClosed:     {},
	models.StatusCancelled:  {},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTargets lists the statuses reachable from from.
func AllowedTargets(from string) []string {
	out := make([]string, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

// StateMachine applies status transitions to tickets. It performs no I/O.
type StateMachine struct {
	clock *sla.Clock
	now   func() time.Time
}

// Option configures a StateMachine.
type Option func(*StateMachine)

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(m *StateMachine) { m.now = now }
}

// NewStateMachine creates a StateMachine.
func NewStateMachine(clock *sla.Clock, opts ...Option) *StateMachine {
	m := &StateMachine{clock: clock, now: clock.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Result is the outcome of a transition.
type Result struct {
	Ticket  *models.Ticket
	Changed bool
	From    string
	To      string
	Effects []Effect
}

// Transition moves t to status to on behalf of actor. Same-status calls are no-ops.
func (m *StateMachine) Transition(t *models.Ticket, to string, actor uint, comment string) (*Result, error) {
	from := t.Status
	res := &Result{Ticket: t, From: from, To: to}
	if to == from {
		return res, nil
	}
	if !CanTransition(from, to) {
		return nil, &TransitionError{From: from, To: to}
	}
	if actor == 0 {
		return nil, ErrMissingActor
	}

	now := m.now()
	t.Status = to
	t.StatusHistory = append(t.StatusHistory, models.TicketStatusHistory{
		TicketID:   t.ID,
		FromStatus: from,
		Status:     to,
		ChangedBy:  actor,
		ChangedAt:  now,
		Comment:    comment,
	})
	res.Changed = true
	res.Effects = append(res.Effects, Effect{Kind: EffectStatusChanged, At: now, Actor: actor})

	switch to {
	case models.StatusInProgress:
		if t.FirstResponseAt == nil {
			t.FirstResponseAt = &now
			t.Metrics.ResponseTime = m.clock.ElapsedHours(t.CreatedAt, now, m.useBusinessHours(t))
			res.Effects = append(res.Effects, Effect{Kind: EffectFirstResponse, At: now, Actor: actor})
		}
		if m.clock.Start(&t.SLA, now) {
			res.Effects = append(res.Effects, Effect{Kind: EffectSLAStarted, At: now, Actor: actor, Deadline: t.SLA.Deadline})
		}
	case models.StatusResolved:
		if t.ResolvedAt == nil {
			t.ResolvedAt = &now
		}
		t.Metrics.ResolutionTime = m.clock.ElapsedHours(t.CreatedAt, now, m.useBusinessHours(t))
		res.Effects = append(res.Effects, Effect{Kind: EffectResolved, At: now, Actor: actor})
	case models.StatusClosed:
		if t.ClosedAt == nil {
			t.ClosedAt = &now
		}
		res.Effects = append(res.Effects, Effect{Kind: EffectClosed, At: now, Actor: actor})
	case models.StatusOpen:
		t.Metrics.ReopenCount++
		res.Effects = append(res.Effects, Effect{Kind: EffectReopened, At: now, Actor: actor})
	case models.StatusCancelled:
		res.Effects = append(res.Effects, Effect{Kind: EffectCancelled, At: now, Actor: actor})
	}
	return res, nil
}

// useBusinessHours follows the ticket's SLA mode; tickets without an SLA use business hours.
func (m *StateMachine) useBusinessHours(t *models.Ticket) bool {
	if t.SLA.Configured() {
		return t.SLA.UseBusinessHours
	}
	return true
}
