package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"helpdesk/internal/metrics"
	"helpdesk/internal/models"
	"helpdesk/internal/notify"
	"helpdesk/internal/repository"
	"helpdesk/internal/sla"
	"helpdesk/pkg/utils"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultSweepSchedule = "@every 5m"
	sweepTimeout         = 4 * time.Minute
)

// SweepLocker 跨实例互斥锁，保证同一时刻只有一个实例巡检
type SweepLocker interface {
	TryAcquire(ctx context.Context) (bool, func(context.Context) error, error)
}

// AlertGate 跨实例告警去重
type AlertGate interface {
	Allow(ctx context.Context, kind string, ticketID uint) (bool, error)
}

// SweepStats 单次巡检统计
type SweepStats struct {
	Checked  int `json:"checked"`
	Updated  int `json:"updated"`
	Breached int `json:"breached"`
	AtRisk   int `json:"at_risk"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// SLAMonitor 周期性巡检 SLA 状态并发出告警
type SLAMonitor struct {
	store    repository.TicketStore
	clock    *sla.Clock
	sink     notify.Sink
	lock     SweepLocker
	gate     AlertGate
	schedule string
	location *time.Location
	metrics  *metrics.Registry
	logger   *logrus.Logger
	tracer   trace.Tracer

	running atomic.Bool
	mu      sync.Mutex
	cron    *cron.Cron
}

// MonitorOption SLAMonitor 选项
type MonitorOption func(*SLAMonitor)

// WithSweepLock 启用跨实例巡检锁
func WithSweepLock(l SweepLocker) MonitorOption {
	return func(m *SLAMonitor) { m.lock = l }
}

// WithAlertGate 启用告警去重
func WithAlertGate(g AlertGate) MonitorOption {
	return func(m *SLAMonitor) { m.gate = g }
}

// WithSchedule 设置 cron 表达式
func WithSchedule(spec string) MonitorOption {
	return func(m *SLAMonitor) {
		if spec != "" {
			m.schedule = spec
		}
	}
}

// WithLocation 设置调度时区
func WithLocation(loc *time.Location) MonitorOption {
	return func(m *SLAMonitor) {
		if loc != nil {
			m.location = loc
		}
	}
}

// WithMonitorMetrics 指定指标注册表
func WithMonitorMetrics(r *metrics.Registry) MonitorOption {
	return func(m *SLAMonitor) { m.metrics = r }
}

// NewSLAMonitor 创建 SLA 巡检器
func NewSLAMonitor(store repository.TicketStore, clock *sla.Clock, sink notify.Sink, logger *logrus.Logger, opts ...MonitorOption) *SLAMonitor {
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = notify.Nop{}
	}
	m := &SLAMonitor{
		store:    store,
		clock:    clock,
		sink:     sink,
		schedule: defaultSweepSchedule,
		location: clock.Calendar().Location(),
		metrics:  metrics.Default,
		logger:   logger,
		tracer:   otel.Tracer("helpdesk.monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunOnce 执行一次巡检；上一轮未结束时返回 ErrSweepInProgress
func (m *SLAMonitor) RunOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	if !m.running.CompareAndSwap(false, true) {
		m.metrics.IncSweepSkipped()
		return stats, ErrSweepInProgress
	}
	defer m.running.Store(false)

	ctx, span := m.tracer.Start(ctx, "sla.sweep")
	defer span.End()

	if m.lock != nil {
		acquired, release, err := m.lock.TryAcquire(ctx)
		switch {
		case err != nil:
			m.logger.Warnf("SLA sweep lock unavailable, sweeping locally: %v", err)
		case !acquired:
			m.metrics.IncSweepSkipped()
			m.logger.Debug("SLA sweep already running on another instance")
			return stats, ErrSweepInProgress
		default:
			defer func() {
				if err := release(context.Background()); err != nil {
					m.logger.Warnf("Failed to release SLA sweep lock: %v", err)
				}
			}()
		}
	}

	started := time.Now()
	tickets, err := m.store.FindActiveSLA(ctx)
	if err != nil {
		span.RecordError(err)
		return stats, fmt.Errorf("sla sweep: %w", err)
	}

	for i := range tickets {
		stats.Checked++
		if err := m.checkTicket(ctx, &tickets[i], &stats); err != nil {
			stats.Failed++
			m.logger.WithField("ticket_id", tickets[i].ID).Errorf("SLA check failed: %v", err)
		}
	}

	m.metrics.ObserveSweep(metrics.SweepResult{
		Checked:  stats.Checked,
		Updated:  stats.Updated,
		Breached: stats.Breached,
		AtRisk:   stats.AtRisk,
		Failed:   stats.Failed,
	}, time.Since(started))
	span.SetAttributes(
		attribute.Int("sweep.checked", stats.Checked),
		attribute.Int("sweep.updated", stats.Updated),
		attribute.Int("sweep.breached", stats.Breached),
		attribute.Int("sweep.at_risk", stats.AtRisk),
		attribute.Int("sweep.failed", stats.Failed),
	)
	m.logger.Infof("SLA sweep finished: checked=%d updated=%d breached=%d at_risk=%d failed=%d skipped=%d",
		stats.Checked, stats.Updated, stats.Breached, stats.AtRisk, stats.Failed, stats.Skipped)
	return stats, nil
}

// checkTicket 仅在状态或剩余时长变化时写库；breach 告警由 Notified 保证只发一次
func (m *SLAMonitor) checkTicket(ctx context.Context, t *models.Ticket, stats *SweepStats) error {
	status, remaining, changed := m.clock.UpdateStatus(&t.SLA)
	needsBreachAlert := status == models.SLABreached && !t.SLA.Notified
	if !changed && !needsBreachAlert {
		return nil
	}

	previous := t.SLA.Status
	t.SLA.Status = status
	t.SLA.RemainingHours = remaining

	var events []notify.Event
	if needsBreachAlert {
		t.SLA.Notified = true
		t.Metrics.EscalationCount++
		events = append(events, notify.NewEvent(notify.KindBreach, t.ID, m.eventDetails(t, previous)))
	} else if status == models.SLAAtRisk && previous != models.SLAAtRisk {
		events = append(events, notify.NewEvent(notify.KindAtRisk, t.ID, m.eventDetails(t, previous)))
	}

	ok, err := m.store.SaveSLA(ctx, t, false)
	if err != nil {
		return err
	}
	if !ok {
		// paused concurrently; the next sweep re-reads it
		stats.Skipped++
		return nil
	}
	stats.Updated++

	for _, e := range events {
		switch e.Kind {
		case notify.KindBreach:
			stats.Breached++
		case notify.KindAtRisk:
			stats.AtRisk++
		}
		if !m.allow(ctx, e) {
			continue
		}
		dispatch(ctx, m.sink, m.metrics, m.logger, e)
	}
	return nil
}

func (m *SLAMonitor) allow(ctx context.Context, e notify.Event) bool {
	if m.gate == nil {
		return true
	}
	ok, err := m.gate.Allow(ctx, string(e.Kind), e.TicketID)
	if err != nil {
		m.logger.Warnf("Alert dedup unavailable for ticket %d: %v", e.TicketID, err)
		return true
	}
	return ok
}

func (m *SLAMonitor) eventDetails(t *models.Ticket, previous string) map[string]interface{} {
	return map[string]interface{}{
		"previous_status": previous,
		"status":          t.SLA.Status,
		"deadline":        utils.FormatTimePtr(t.SLA.Deadline),
		"remaining_hours": t.SLA.RemainingHours,
		"priority":        t.Priority,
	}
}

// Start 按 cron 计划启动周期巡检
func (m *SLAMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return nil
	}

	cl := cronLogger{logger: m.logger}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithLocation(m.location),
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(m.schedule, func() { m.tick(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", m.schedule, err)
	}
	c.Start()
	m.cron = c
	m.logger.Infof("SLA monitor started (schedule=%s, tz=%s)", m.schedule, m.location)
	return nil
}

// Stop 停止调度并等待正在执行的巡检结束
func (m *SLAMonitor) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	m.logger.Info("SLA monitor stopped")
}

func (m *SLAMonitor) tick(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, sweepTimeout)
	defer cancel()
	if _, err := m.RunOnce(ctx); err != nil && err != ErrSweepInProgress {
		m.logger.Errorf("SLA sweep failed: %v", err)
	}
}

// cronLogger 将 cron 日志接入 logrus
type cronLogger struct {
	logger *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
