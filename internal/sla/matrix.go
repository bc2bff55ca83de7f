package sla

import (
	"strings"

	"helpdesk/internal/config"
)

// Matrix maps priority x category to an SLA budget in hours.
type Matrix struct {
	hours        map[string]map[string]float64
	defaultHours float64
}

// NewMatrix copies the configured matrix; keys are matched case-insensitively.
func NewMatrix(cfg config.SLAConfig) *Matrix {
	m := &Matrix{
		hours:        make(map[string]map[string]float64, len(cfg.Matrix)),
		defaultHours: cfg.DefaultHours,
	}
	for priority, row := range cfg.Matrix {
		p := strings.ToLower(priority)
		if m.hours[p] == nil {
			m.hours[p] = make(map[string]float64, len(row))
		}
		for category, h := range row {
			m.hours[p][strings.ToLower(category)] = h
		}
	}
	return m
}

// HoursFor returns the budget for a ticket, falling back to the default when unmapped.
func (m *Matrix) HoursFor(priority, category string) float64 {
	if row, ok := m.hours[strings.ToLower(priority)]; ok {
		if h, ok := row[strings.ToLower(category)]; ok && h > 0 {
			return h
		}
	}
	return m.defaultHours
}
