package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/metrics"
	"helpdesk/internal/models"
	"helpdesk/internal/notify"
	"helpdesk/internal/priority"
	"helpdesk/internal/repository"
	"helpdesk/internal/sla"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testActor uint = 7

type fakeTime struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeTime) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSink) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) count(kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingSink) last(kind notify.Kind) *notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			e := r.events[i]
			return &e
		}
	}
	return nil
}

type testEnv struct {
	db       *gorm.DB
	store    *repository.GormTicketStore
	clock    *sla.Clock
	now      *fakeTime
	sink     *recordingSink
	reg      *metrics.Registry
	cfg      *config.Config
	tickets  *TicketService
	priority *PriorityService
	logger   *logrus.Logger
}

// monday is 2024-01-08, a regular working day.
func at(day, hour, min int) time.Time {
	return time.Date(2024, 1, day, hour, min, 0, 0, time.UTC)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Ticket{}, &models.TicketStatusHistory{}))

	cfg := config.GetDefaultConfig()
	cal, err := sla.NewBusinessCalendar(cfg.BusinessHours)
	require.NoError(t, err)

	ft := &fakeTime{t: at(8, 9, 0)}
	clock := sla.NewClock(cal, sla.WithNow(ft.Now), sla.WithAtRiskRatio(cfg.SLA.AtRiskRatio))

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	env := &testEnv{
		db:     db,
		store:  repository.NewGormTicketStore(db),
		clock:  clock,
		now:    ft,
		sink:   &recordingSink{},
		reg:    metrics.NewRegistry(),
		cfg:    cfg,
		logger: log,
	}
	env.tickets = NewTicketService(env.store, clock, cfg.SLA, ContextActorResolver{}, env.sink, log, WithMetrics(env.reg))
	env.priority = NewPriorityService(env.store, priority.NewScorer(cfg.Priority, priority.WithNow(ft.Now)), cfg.Priority, env.sink, log, WithMetrics(env.reg))
	env.priority.SetNow(ft.Now)
	return env
}

func (e *testEnv) monitor(opts ...MonitorOption) *SLAMonitor {
	opts = append([]MonitorOption{WithMonitorMetrics(e.reg)}, opts...)
	return NewSLAMonitor(e.store, e.clock, e.sink, e.logger, opts...)
}

func actorCtx() context.Context {
	return WithActor(context.Background(), testActor)
}

// startedTicket creates a ticket and moves it to in_progress at the current fake time.
func (e *testEnv) startedTicket(t *testing.T, req *TicketCreateRequest) *models.Ticket {
	t.Helper()
	tk, err := e.tickets.CreateTicket(actorCtx(), req)
	require.NoError(t, err)
	tk, err = e.tickets.TransitionTicket(actorCtx(), tk.ID, models.StatusInProgress, "picked up")
	require.NoError(t, err)
	return tk
}
