package sla

import (
	"fmt"
	"time"

	"helpdesk/internal/config"
	"helpdesk/pkg/utils"
)

// maxDaySkips bounds the forward search for the next working day.
const maxDaySkips = 400

// MonthDay is a holiday that recurs every year.
type MonthDay struct {
	Month time.Month
	Day   int
}

// BusinessCalendar answers working-time questions for a fixed timezone,
// a working window [StartHour, EndHour), a weekday set and yearly holidays.
// A calendar is immutable once built.
type BusinessCalendar struct {
	startHour int
	endHour   int
	loc       *time.Location
	weekdays  map[time.Weekday]bool
	holidays  map[MonthDay]bool
}

// NewBusinessCalendar builds a calendar from configuration.
func NewBusinessCalendar(cfg config.BusinessHoursConfig) (*BusinessCalendar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	cal := &BusinessCalendar{
		startHour: cfg.StartHour,
		endHour:   cfg.EndHour,
		loc:       loc,
		weekdays:  make(map[time.Weekday]bool, len(cfg.WorkingDays)),
		holidays:  make(map[MonthDay]bool, len(cfg.Holidays)),
	}
	for _, name := range cfg.WorkingDays {
		d, err := config.ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		cal.weekdays[d] = true
	}
	for _, h := range cfg.Holidays {
		m, d, err := config.ParseMonthDay(h)
		if err != nil {
			return nil, err
		}
		cal.holidays[MonthDay{Month: m, Day: d}] = true
	}
	return cal, nil
}

// WithHolidays returns a copy of the calendar with extra holidays.
func (c *BusinessCalendar) WithHolidays(days ...MonthDay) *BusinessCalendar {
	next := &BusinessCalendar{
		startHour: c.startHour,
		endHour:   c.endHour,
		loc:       c.loc,
		weekdays:  c.weekdays,
		holidays:  make(map[MonthDay]bool, len(c.holidays)+len(days)),
	}
	for k := range c.holidays {
		next.holidays[k] = true
	}
	for _, d := range days {
		next.holidays[d] = true
	}
	return next
}

// Location is the calendar's timezone.
func (c *BusinessCalendar) Location() *time.Location {
	return c.loc
}

// IsWorkingDay reports whether t falls on a working weekday that is not a holiday.
func (c *BusinessCalendar) IsWorkingDay(t time.Time) bool {
	local := t.In(c.loc)
	if !c.weekdays[local.Weekday()] {
		return false
	}
	return !c.holidays[MonthDay{Month: local.Month(), Day: local.Day()}]
}

// IsWorkingHours reports whether t's local hour is inside the working window.
func (c *BusinessCalendar) IsWorkingHours(t time.Time) bool {
	h := t.In(c.loc).Hour()
	return h >= c.startHour && h < c.endHour
}

// NextWorkingInstant returns t when it is already inside working time,
// otherwise the start of the next working window.
func (c *BusinessCalendar) NextWorkingInstant(t time.Time) time.Time {
	if c.IsWorkingDay(t) && c.IsWorkingHours(t) {
		return t
	}
	local := t.In(c.loc)
	cur := c.windowStart(local)
	if local.Hour() >= c.endHour {
		cur = c.windowStart(local.AddDate(0, 0, 1))
	}
	for i := 0; i < maxDaySkips && !c.IsWorkingDay(cur); i++ {
		cur = c.windowStart(cur.AddDate(0, 0, 1))
	}
	return cur
}

// WorkingHoursBetween returns the working hours in [start, end), rounded to 2 decimals.
func (c *BusinessCalendar) WorkingHoursBetween(start, end time.Time) float64 {
	return utils.RoundHours(c.workingDuration(start, end).Hours())
}

// workingDuration is the unrounded working time in [start, end).
func (c *BusinessCalendar) workingDuration(start, end time.Time) time.Duration {
	if !end.After(start) {
		return 0
	}
	var total time.Duration
	day := start.In(c.loc)
	for !c.windowStart(day).After(end) {
		if c.IsWorkingDay(day) {
			from, to := c.windowStart(day), c.windowEnd(day)
			if start.After(from) {
				from = start
			}
			if end.Before(to) {
				to = end
			}
			if to.After(from) {
				total += to.Sub(from)
			}
		}
		day = c.windowStart(day.AddDate(0, 0, 1))
	}
	return total
}

// AddWorkingHours advances start by the given number of working hours.
// Non-positive budgets return start unchanged.
func (c *BusinessCalendar) AddWorkingHours(start time.Time, hours float64) time.Time {
	remaining := utils.HoursToDuration(hours)
	if remaining <= 0 {
		return start
	}
	cur := c.NextWorkingInstant(start)
	for {
		avail := c.windowEnd(cur).Sub(cur)
		if remaining <= avail {
			return cur.Add(remaining)
		}
		remaining -= avail
		cur = c.NextWorkingInstant(c.windowEnd(cur))
	}
}

func (c *BusinessCalendar) windowStart(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), c.startHour, 0, 0, 0, c.loc)
}

func (c *BusinessCalendar) windowEnd(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), c.endHour, 0, 0, 0, c.loc)
}
