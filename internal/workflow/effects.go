package workflow

import "time"

// EffectKind names a side effect the caller must dispatch after persisting.
type EffectKind string

const (
	EffectStatusChanged EffectKind = "status_changed"
	EffectFirstResponse EffectKind = "first_response"
	EffectSLAStarted    EffectKind = "sla_started"
	EffectResolved      EffectKind = "resolved"
	EffectClosed        EffectKind = "closed"
	EffectReopened      EffectKind = "reopened"
	EffectCancelled     EffectKind = "cancelled"
)

// Effect is a side-effect descriptor produced by a transition.
type Effect struct {
	Kind     EffectKind `json:"kind"`
	At       time.Time  `json:"at"`
	Actor    uint       `json:"actor"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Has reports whether effects contains kind.
func Has(effects []Effect, kind EffectKind) bool {
	for _, e := range effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
