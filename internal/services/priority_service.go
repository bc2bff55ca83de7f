package services

import (
	"context"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/metrics"
	"helpdesk/internal/models"
	"helpdesk/internal/notify"
	"helpdesk/internal/priority"
	"helpdesk/internal/repository"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PriorityService 动态优先级评估服务
type PriorityService struct {
	store         repository.TicketStore
	scorer        *priority.Scorer
	sink          notify.Sink
	historyWindow time.Duration
	now           func() time.Time
	metrics       *metrics.Registry
	logger        *logrus.Logger
	tracer        trace.Tracer
}

// BulkResult 批量重算结果
type BulkResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// NewPriorityService 创建优先级服务
func NewPriorityService(
	store repository.TicketStore,
	scorer *priority.Scorer,
	cfg config.PriorityConfig,
	sink notify.Sink,
	logger *logrus.Logger,
	opts ...Option,
) *PriorityService {
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = notify.Nop{}
	}
	window := cfg.HistoryWindow
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	o := buildOptions(opts)
	return &PriorityService{
		store:         store,
		scorer:        scorer,
		sink:          sink,
		historyWindow: window,
		now:           time.Now,
		metrics:       o.metrics,
		logger:        logger,
		tracer:        otel.Tracer("helpdesk.services"),
	}
}

// SetNow 替换时间源（测试用）
func (s *PriorityService) SetNow(now func() time.Time) { s.now = now }

// Preview 计算评分明细，不修改工单
func (s *PriorityService) Preview(ctx context.Context, id uint) (*priority.Breakdown, error) {
	ctx, span := s.tracer.Start(ctx, "priority.preview")
	defer span.End()

	ticket, err := s.store.LoadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	hist, err := s.history(ctx, ticket)
	if err != nil {
		return nil, err
	}
	b := s.scorer.Score(ticket, hist)
	return &b, nil
}

// UpdatePriority 重新评分并按策略更新优先级
func (s *PriorityService) UpdatePriority(ctx context.Context, id uint, force bool) (*priority.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "priority.update")
	defer span.End()
	span.SetAttributes(attribute.Int64("ticket.id", int64(id)), attribute.Bool("priority.force", force))

	ticket, err := s.store.LoadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, ticket, force)
}

func (s *PriorityService) apply(ctx context.Context, ticket *models.Ticket, force bool) (*priority.Decision, error) {
	hist, err := s.history(ctx, ticket)
	if err != nil {
		return nil, err
	}
	d := s.scorer.Evaluate(ticket, hist, force)
	if !d.Updated {
		return &d, nil
	}
	if err := s.store.SavePriority(ctx, ticket); err != nil {
		return nil, err
	}

	s.metrics.IncPriorityChange()
	s.logger.Infof("Ticket %d priority %s -> %s (score %.2f)", ticket.ID, d.Previous, d.Priority, d.Breakdown.Total)
	if d.Previous != d.Priority {
		dispatch(ctx, s.sink, s.metrics, s.logger, notify.NewEvent(notify.KindPriorityChanged, ticket.ID, map[string]interface{}{
			"previous_priority": d.Previous,
			"priority":          d.Priority,
			"score":             d.Breakdown.Total,
		}))
	}
	return &d, nil
}

// RecalculateAll 重算所有未结工单；单个失败不影响其余工单
func (s *PriorityService) RecalculateAll(ctx context.Context, force bool) (BulkResult, error) {
	ctx, span := s.tracer.Start(ctx, "priority.recalculate_all")
	defer span.End()

	var res BulkResult
	tickets, err := s.store.FindOpen(ctx)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	for i := range tickets {
		t := &tickets[i]
		res.Checked++
		d, err := s.apply(ctx, t, force)
		if err != nil {
			res.Failed++
			s.logger.WithField("ticket_id", t.ID).Errorf("Failed to recalculate priority: %v", err)
			continue
		}
		if d.Updated {
			res.Updated++
		}
	}
	span.SetAttributes(
		attribute.Int("priority.checked", res.Checked),
		attribute.Int("priority.updated", res.Updated),
	)
	s.logger.Infof("Priority recalculation finished: checked=%d updated=%d failed=%d", res.Checked, res.Updated, res.Failed)
	return res, nil
}

func (s *PriorityService) history(ctx context.Context, t *models.Ticket) (priority.UserHistory, error) {
	return s.store.RequesterHistory(ctx, t.RequesterID, t.ID, s.now().Add(-s.historyWindow))
}
