package priority

import (
	"strings"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/models"
	"helpdesk/pkg/utils"
)

// Breakdown keys, also used in the persisted audit record.
const (
	SignalWaitingTime = "waiting_time"
	SignalSLAStatus   = "sla_status"
	SignalReopenCount = "reopen_count"
	SignalKeywords    = "keywords"
	SignalUserHistory = "user_history"
)

// UserHistory summarizes the requester's recent activity.
type UserHistory struct {
	// OpenRecent counts the requester's other open or in-progress tickets inside the history window.
	OpenRecent int64 `json:"open_recent"`
	// TotalTickets counts every ticket the requester has filed, this one included.
	TotalTickets int64 `json:"total_tickets"`
}

// Breakdown is a full scoring result.
type Breakdown struct {
	Signals   map[string]float64 `json:"signals"`
	Total     float64            `json:"total"`
	Suggested string             `json:"suggested"`
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Updated   bool      `json:"updated"`
	Reason    string    `json:"reason,omitempty"`
	Previous  string    `json:"previous"`
	Priority  string    `json:"priority"`
	Breakdown Breakdown `json:"breakdown"`
}

// Scorer computes a 0-100 priority score from five weighted signals.
type Scorer struct {
	weights  config.PriorityWeights
	critical []string
	urgent   []string
	now      func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates a Scorer from configuration.
func NewScorer(cfg config.PriorityConfig, opts ...Option) *Scorer {
	s := &Scorer{
		weights:  cfg.Weights,
		critical: normalize(cfg.CriticalKeywords),
		urgent:   normalize(cfg.UrgentKeywords),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WaitingScore is a step function over hours since creation.
func WaitingScore(hours float64) float64 {
	switch {
	case hours < 1:
		return 10
	case hours < 4:
		return 30
	case hours < 8:
		return 50
	case hours < 24:
		return 70
	case hours < 48:
		return 85
	default:
		return 100
	}
}

// SLAScore rates how close the ticket is to its deadline.
func SLAScore(s models.TicketSLA) float64 {
	switch s.Status {
	case models.SLABreached:
		return 100
	case models.SLAAtRisk:
		return 80
	case models.SLAOnTime:
		if s.Hours <= 0 {
			return 20
		}
		ratio := s.RemainingHours / s.Hours
		switch {
		case ratio > 0.5:
			return 20
		case ratio >= 0.2:
			return 40
		default:
			return 60
		}
	default:
		return 0
	}
}

// ReopenScore grows by 30 per reopen, capped at 100.
func ReopenScore(reopens int) float64 {
	score := float64(reopens) * 30
	if score > 100 {
		return 100
	}
	return score
}

// KeywordScore scans title and description for critical, then urgent keywords.
func (s *Scorer) KeywordScore(title, description string) float64 {
	text := strings.ToLower(title + " " + description)
	for _, kw := range s.critical {
		if strings.Contains(text, kw) {
			return 100
		}
	}
	for _, kw := range s.urgent {
		if strings.Contains(text, kw) {
			return 70
		}
	}
	return 0
}

// UserHistoryScore damps heavy filers and boosts first-time requesters.
func UserHistoryScore(h UserHistory) float64 {
	switch {
	case h.OpenRecent > 3:
		return -20
	case h.OpenRecent > 1:
		return -10
	case h.TotalTickets <= 1:
		return 30
	default:
		return 0
	}
}

// SuggestedPriority maps a total score to a priority level.
func SuggestedPriority(total float64) string {
	switch {
	case total >= 80:
		return models.PriorityUrgent
	case total >= 60:
		return models.PriorityHigh
	case total >= 30:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// Score computes the breakdown for a ticket.
func (s *Scorer) Score(t *models.Ticket, history UserHistory) Breakdown {
	waited := s.now().Sub(t.CreatedAt).Hours()
	if waited < 0 {
		waited = 0
	}
	signals := map[string]float64{
		SignalWaitingTime: WaitingScore(waited),
		SignalSLAStatus:   SLAScore(t.SLA),
		SignalReopenCount: ReopenScore(t.Metrics.ReopenCount),
		SignalKeywords:    s.KeywordScore(t.Title, t.Description),
		SignalUserHistory: UserHistoryScore(history),
	}

	total := signals[SignalWaitingTime]*s.weights.WaitingTime +
		signals[SignalSLAStatus]*s.weights.SLAStatus +
		signals[SignalReopenCount]*s.weights.ReopenCount +
		signals[SignalKeywords]*s.weights.Keywords +
		signals[SignalUserHistory]*s.weights.UserHistory
	total = utils.RoundHours(clamp(total, 0, 100))

	return Breakdown{Signals: signals, Total: total, Suggested: SuggestedPriority(total)}
}

// Evaluate scores t and applies the suggested priority according to the update policy.
// On update the ticket's priority changes and an audit record is appended.
func (s *Scorer) Evaluate(t *models.Ticket, history UserHistory, force bool) Decision {
	d := Decision{Previous: t.Priority, Priority: t.Priority}
	if t.IsTerminal() {
		d.Reason = "terminal"
		return d
	}

	d.Breakdown = s.Score(t, history)
	if !force && d.Breakdown.Suggested == t.Priority {
		d.Reason = "unchanged"
		return d
	}

	t.PriorityAudits = append(t.PriorityAudits, models.PriorityAudit{
		PreviousPriority: t.Priority,
		NewPriority:      d.Breakdown.Suggested,
		Score:            d.Breakdown.Total,
		Breakdown:        d.Breakdown.Signals,
		Forced:           force,
		ChangedAt:        s.now(),
	})
	t.Priority = d.Breakdown.Suggested
	d.Priority = t.Priority
	d.Updated = true
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalize(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
