package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Registry holds process-local counters for the SLA engine.
// Safe for concurrent use from the monitor, services and handlers.
type Registry struct {
	sweeps          uint64
	sweepsSkipped   uint64
	ticketsChecked  uint64
	slaUpdated      uint64
	breaches        uint64
	atRisk          uint64
	sweepFailures   uint64
	priorityChanges uint64
	lastSweepNanos  int64

	mu          sync.Mutex
	transitions map[string]uint64
	notifyErrs  map[string]uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		transitions: make(map[string]uint64),
		notifyErrs:  make(map[string]uint64),
	}
}

// Default is the process-wide registry.
var Default = NewRegistry()

// SweepResult mirrors the counts of one monitor sweep.
type SweepResult struct {
	Checked  int
	Updated  int
	Breached int
	AtRisk   int
	Failed   int
}

// ObserveSweep records one completed sweep.
func (r *Registry) ObserveSweep(res SweepResult, took time.Duration) {
	atomic.AddUint64(&r.sweeps, 1)
	atomic.AddUint64(&r.ticketsChecked, uint64(res.Checked))
	atomic.AddUint64(&r.slaUpdated, uint64(res.Updated))
	atomic.AddUint64(&r.breaches, uint64(res.Breached))
	atomic.AddUint64(&r.atRisk, uint64(res.AtRisk))
	atomic.AddUint64(&r.sweepFailures, uint64(res.Failed))
	atomic.StoreInt64(&r.lastSweepNanos, int64(took))
}

// IncSweepSkipped counts sweeps skipped because another one was running.
func (r *Registry) IncSweepSkipped() { atomic.AddUint64(&r.sweepsSkipped, 1) }

// IncPriorityChange counts applied priority updates.
func (r *Registry) IncPriorityChange() { atomic.AddUint64(&r.priorityChanges, 1) }

// IncTransition counts a status change keyed by "from->to".
func (r *Registry) IncTransition(from, to string) {
	r.mu.Lock()
	r.transitions[from+"->"+to]++
	r.mu.Unlock()
}

// IncNotifyError counts failed deliveries per event kind.
func (r *Registry) IncNotifyError(kind string) {
	r.mu.Lock()
	r.notifyErrs[kind]++
	r.mu.Unlock()
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	Sweeps          uint64            `json:"sweeps"`
	SweepsSkipped   uint64            `json:"sweeps_skipped"`
	TicketsChecked  uint64            `json:"tickets_checked"`
	SLAUpdated      uint64            `json:"sla_updated"`
	Breaches        uint64            `json:"breaches"`
	AtRisk          uint64            `json:"at_risk"`
	SweepFailures   uint64            `json:"sweep_failures"`
	PriorityChanges uint64            `json:"priority_changes"`
	LastSweepMillis int64             `json:"last_sweep_ms"`
	Transitions     map[string]uint64 `json:"transitions"`
	NotifyErrors    map[string]uint64 `json:"notify_errors"`
}

// Snapshot returns a copy of the current counters.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		Sweeps:          atomic.LoadUint64(&r.sweeps),
		SweepsSkipped:   atomic.LoadUint64(&r.sweepsSkipped),
		TicketsChecked:  atomic.LoadUint64(&r.ticketsChecked),
		SLAUpdated:      atomic.LoadUint64(&r.slaUpdated),
		Breaches:        atomic.LoadUint64(&r.breaches),
		AtRisk:          atomic.LoadUint64(&r.atRisk),
		SweepFailures:   atomic.LoadUint64(&r.sweepFailures),
		PriorityChanges: atomic.LoadUint64(&r.priorityChanges),
		LastSweepMillis: time.Duration(atomic.LoadInt64(&r.lastSweepNanos)).Milliseconds(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Transitions = make(map[string]uint64, len(r.transitions))
	for k, v := range r.transitions {
		s.Transitions[k] = v
	}
	s.NotifyErrors = make(map[string]uint64, len(r.notifyErrs))
	for k, v := range r.notifyErrs {
		s.NotifyErrors[k] = v
	}
	return s
}

// WritePrometheus renders the snapshot in the Prometheus text format.
func (s Snapshot) WritePrometheus(w io.Writer) {
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
	}
	counter("helpdesk_sla_sweeps_total", "Completed SLA sweeps", s.Sweeps)
	counter("helpdesk_sla_sweeps_skipped_total", "Sweeps skipped while another was running", s.SweepsSkipped)
	counter("helpdesk_sla_tickets_checked_total", "Tickets examined by sweeps", s.TicketsChecked)
	counter("helpdesk_sla_updated_total", "SLA records persisted by sweeps", s.SLAUpdated)
	counter("helpdesk_sla_breaches_total", "SLA breach alerts raised", s.Breaches)
	counter("helpdesk_sla_at_risk_total", "SLA at-risk alerts raised", s.AtRisk)
	counter("helpdesk_sla_sweep_failures_total", "Tickets that failed during a sweep", s.SweepFailures)
	counter("helpdesk_priority_changes_total", "Applied priority changes", s.PriorityChanges)
	fmt.Fprintf(w, "# HELP helpdesk_sla_last_sweep_ms Duration of the last sweep\n# TYPE helpdesk_sla_last_sweep_ms gauge\nhelpdesk_sla_last_sweep_ms %d\n", s.LastSweepMillis)

	fmt.Fprintf(w, "# HELP helpdesk_ticket_transitions_total Ticket status changes\n# TYPE helpdesk_ticket_transitions_total counter\n")
	for _, k := range sortedKeys(s.Transitions) {
		fmt.Fprintf(w, "helpdesk_ticket_transitions_total{transition=%q} %d\n", k, s.Transitions[k])
	}
	fmt.Fprintf(w, "# HELP helpdesk_notify_errors_total Failed notification deliveries\n# TYPE helpdesk_notify_errors_total counter\n")
	for _, k := range sortedKeys(s.NotifyErrors) {
		fmt.Fprintf(w, "helpdesk_notify_errors_total{kind=%q} %d\n", k, s.NotifyErrors[k])
	}
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
