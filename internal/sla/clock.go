package sla

import (
	"errors"
	"fmt"
	"time"

	"helpdesk/internal/models"
	"helpdesk/pkg/utils"
)

// ErrPreconditionFailed is returned when pause/resume is called in the wrong clock state.
var ErrPreconditionFailed = errors.New("sla precondition failed")

// DefaultAtRiskRatio is the share of the budget below which a clock is at risk.
const DefaultAtRiskRatio = 0.2

// Clock computes SLA deadlines and compliance on top of a BusinessCalendar.
type Clock struct {
	cal         *BusinessCalendar
	atRiskRatio float64
	now         func() time.Time
}

// ClockOption configures a Clock.
type ClockOption func(*Clock)

// WithNow overrides the clock's time source.
func WithNow(now func() time.Time) ClockOption {
	return func(c *Clock) { c.now = now }
}

// WithAtRiskRatio overrides the at-risk threshold.
func WithAtRiskRatio(r float64) ClockOption {
	return func(c *Clock) {
		if r > 0 && r < 1 {
			c.atRiskRatio = r
		}
	}
}

// NewClock creates a Clock.
func NewClock(cal *BusinessCalendar, opts ...ClockOption) *Clock {
	c := &Clock{cal: cal, atRiskRatio: DefaultAtRiskRatio, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calendar returns the underlying business calendar.
func (c *Clock) Calendar() *BusinessCalendar { return c.cal }

// Now is the clock's current time.
func (c *Clock) Now() time.Time { return c.now() }

// CalculateDeadline returns start advanced by hours, in working or wall-clock time.
func (c *Clock) CalculateDeadline(start time.Time, hours float64, useBusinessHours bool) time.Time {
	if !useBusinessHours {
		return start.Add(utils.HoursToDuration(hours))
	}
	return c.cal.AddWorkingHours(start, hours)
}

// CalculateRemainingHours returns the hours left from now until deadline, never negative.
func (c *Clock) CalculateRemainingHours(now, deadline time.Time, useBusinessHours bool) float64 {
	if !now.Before(deadline) {
		return 0
	}
	if !useBusinessHours {
		return utils.RoundHours(deadline.Sub(now).Hours())
	}
	return c.cal.WorkingHoursBetween(now, deadline)
}

// ElapsedHours is the working (or wall-clock) time between two instants.
func (c *Clock) ElapsedHours(from, to time.Time, useBusinessHours bool) float64 {
	return utils.RoundHours(c.elapsed(from, to, useBusinessHours).Hours())
}

func (c *Clock) elapsed(from, to time.Time, useBusinessHours bool) time.Duration {
	if !to.After(from) {
		return 0
	}
	if !useBusinessHours {
		return to.Sub(from)
	}
	return c.cal.workingDuration(from, to)
}

// Classify maps remaining budget to a compliance status.
func (c *Clock) Classify(remainingHours, totalHours float64, paused bool) string {
	switch {
	case paused:
		return models.SLAPaused
	case remainingHours <= 0:
		return models.SLABreached
	case remainingHours <= c.atRiskRatio*totalHours:
		return models.SLAAtRisk
	default:
		return models.SLAOnTime
	}
}

// Start begins the clock at now. Calling it on a started clock is a no-op.
func (c *Clock) Start(s *models.TicketSLA, now time.Time) bool {
	if !s.Configured() || s.StartTime != nil {
		return false
	}
	start := now
	deadline := c.CalculateDeadline(start, s.Hours, s.UseBusinessHours)
	s.StartTime = &start
	s.Deadline = &deadline
	s.Status = models.SLAOnTime
	s.RemainingHours = s.Hours
	return true
}

// Pause freezes the clock, snapshotting the budget already consumed.
func (c *Clock) Pause(s *models.TicketSLA, reason string) error {
	if !s.Active() {
		return fmt.Errorf("%w: clock is not running", ErrPreconditionFailed)
	}
	now := c.now()
	elapsed := c.elapsed(*s.StartTime, now, s.UseBusinessHours) - c.pausedDuration(s)
	if elapsed < 0 {
		elapsed = 0
	}

	s.RemainingHours = c.CalculateRemainingHours(now, *s.Deadline, s.UseBusinessHours)
	s.IsPaused = true
	s.PausedAt = &now
	s.PauseReason = reason
	s.ElapsedHoursBeforePause = elapsed.Hours()
	s.Status = models.SLAPaused
	return nil
}

// pausedDuration is the budget-relevant time covered by completed pauses.
func (c *Clock) pausedDuration(s *models.TicketSLA) time.Duration {
	var d time.Duration
	for _, p := range s.PauseHistory {
		d += c.elapsed(p.PausedAt, p.ResumedAt, s.UseBusinessHours)
	}
	return d
}

// Resume restarts a paused clock with the unconsumed budget and records the pause.
func (c *Clock) Resume(s *models.TicketSLA) error {
	if !s.IsPaused || s.PausedAt == nil {
		return fmt.Errorf("%w: clock is not paused", ErrPreconditionFailed)
	}
	now := c.now()
	pausedAt := *s.PausedAt

	remaining := utils.HoursToDuration(s.Hours) - utils.HoursToDuration(s.ElapsedHoursBeforePause)
	if remaining < 0 {
		remaining = 0
	}
	deadline := c.CalculateDeadline(now, remaining.Hours(), s.UseBusinessHours)

	s.PauseHistory = append(s.PauseHistory, models.SLAPauseRecord{
		PausedAt:      pausedAt,
		ResumedAt:     now,
		DurationHours: utils.RoundHours(now.Sub(pausedAt).Hours()),
		Reason:        s.PauseReason,
	})
	s.Deadline = &deadline
	s.IsPaused = false
	s.PausedAt = nil
	s.PauseReason = ""
	s.ElapsedHoursBeforePause = 0
	s.RemainingHours = c.CalculateRemainingHours(now, deadline, s.UseBusinessHours)
	s.Status = c.Classify(s.RemainingHours, s.Hours, false)
	return nil
}

// UpdateStatus recomputes (status, remaining) for a running clock without mutating it.
// changed reports whether either value differs from what is stored.
func (c *Clock) UpdateStatus(s *models.TicketSLA) (status string, remaining float64, changed bool) {
	if !s.Started() || s.IsPaused {
		return s.Status, s.RemainingHours, false
	}
	remaining = c.CalculateRemainingHours(c.now(), *s.Deadline, s.UseBusinessHours)
	status = c.Classify(remaining, s.Hours, false)
	return status, remaining, status != s.Status || remaining != s.RemainingHours
}
