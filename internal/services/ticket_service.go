package services

import (
	"context"
	"fmt"
	"strings"

	"helpdesk/internal/config"
	"helpdesk/internal/metrics"
	"helpdesk/internal/models"
	"helpdesk/internal/notify"
	"helpdesk/internal/repository"
	"helpdesk/internal/sla"
	"helpdesk/internal/workflow"
	"helpdesk/pkg/utils"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TicketService 工单流转与 SLA 计时服务
type TicketService struct {
	store            repository.TicketStore
	clock            *sla.Clock
	matrix           *sla.Matrix
	machine          *workflow.StateMachine
	actors           ActorResolver
	sink             notify.Sink
	useBusinessHours bool
	metrics          *metrics.Registry
	logger           *logrus.Logger
	tracer           trace.Tracer
}

// NewTicketService 创建工单服务
func NewTicketService(
	store repository.TicketStore,
	clock *sla.Clock,
	slaCfg config.SLAConfig,
	actors ActorResolver,
	sink notify.Sink,
	logger *logrus.Logger,
	opts ...Option,
) *TicketService {
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = notify.Nop{}
	}
	if actors == nil {
		actors = ContextActorResolver{}
	}
	o := buildOptions(opts)
	return &TicketService{
		store:            store,
		clock:            clock,
		matrix:           sla.NewMatrix(slaCfg),
		machine:          workflow.NewStateMachine(clock),
		actors:           actors,
		sink:             sink,
		useBusinessHours: slaCfg.UseBusinessHours,
		metrics:          o.metrics,
		logger:           logger,
		tracer:           otel.Tracer("helpdesk.services"),
	}
}

// TicketCreateRequest 创建工单请求
type TicketCreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	RequesterID uint   `json:"requester_id"`
}

// TransitionRequest 状态流转请求
type TransitionRequest struct {
	Status  string `json:"status" binding:"required"`
	Comment string `json:"comment"`
}

// SLAView SLA 实时视图（不落库）
type SLAView struct {
	TicketID       uint                    `json:"ticket_id"`
	Hours          float64                 `json:"hours"`
	Status         string                  `json:"status"`
	RemainingHours float64                 `json:"remaining_hours"`
	StartTime      string                  `json:"start_time,omitempty"`
	Deadline       string                  `json:"deadline,omitempty"`
	IsPaused       bool                    `json:"is_paused"`
	PauseReason    string                  `json:"pause_reason,omitempty"`
	PauseHistory   []models.SLAPauseRecord `json:"pause_history"`
}

// CreateTicket 创建工单并按优先级与分类分配 SLA 时长
func (s *TicketService) CreateTicket(ctx context.Context, req *TicketCreateRequest) (*models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "tickets.create")
	defer span.End()

	actor, err := s.actors.ResolveActor(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if !models.ValidPriority(req.Priority) {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, req.Priority)
	}
	if req.Category == "" {
		req.Category = models.CategoryOther
	}
	if req.RequesterID == 0 {
		req.RequesterID = actor
	}

	now := s.clock.Now()
	ticket := &models.Ticket{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		RequesterID: req.RequesterID,
		Priority:    req.Priority,
		Status:      models.StatusOpen,
		CreatedAt:   now,
		SLA: models.TicketSLA{
			Hours:            s.matrix.HoursFor(req.Priority, req.Category),
			UseBusinessHours: s.useBusinessHours,
			Status:           models.SLANotStarted,
		},
		StatusHistory: []models.TicketStatusHistory{{
			Status:    models.StatusOpen,
			ChangedBy: actor,
			ChangedAt: now,
			Comment:   "工单创建",
		}},
	}

	if err := s.store.Create(ctx, ticket); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("ticket.id", int64(ticket.ID)))

	s.logger.Infof("Created ticket %d for requester %d (priority=%s, sla=%.1fh)",
		ticket.ID, ticket.RequesterID, ticket.Priority, ticket.SLA.Hours)
	return ticket, nil
}

// GetTicket 获取工单
func (s *TicketService) GetTicket(ctx context.Context, id uint) (*models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "tickets.get")
	defer span.End()
	return s.store.LoadByID(ctx, id)
}

// TransitionTicket 变更工单状态并分发副作用事件
func (s *TicketService) TransitionTicket(ctx context.Context, id uint, to, comment string) (*models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "tickets.transition")
	defer span.End()
	span.SetAttributes(attribute.Int64("ticket.id", int64(id)), attribute.String("ticket.to", to))

	actor, err := s.actors.ResolveActor(ctx)
	if err != nil {
		return nil, err
	}
	ticket, err := s.store.LoadByID(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.machine.Transition(ticket, to, actor, comment)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !res.Changed {
		return ticket, nil
	}

	if err := s.store.Save(ctx, ticket); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.IncTransition(res.From, res.To)
	s.logger.Infof("Ticket %d status %s -> %s by %d", ticket.ID, res.From, res.To, actor)

	s.dispatchEffects(ctx, ticket, res)
	return ticket, nil
}

func (s *TicketService) dispatchEffects(ctx context.Context, t *models.Ticket, res *workflow.Result) {
	for _, eff := range res.Effects {
		switch eff.Kind {
		case workflow.EffectStatusChanged:
			dispatch(ctx, s.sink, s.metrics, s.logger, notify.NewEvent(notify.KindStatusChanged, t.ID, map[string]interface{}{
				"previous_status": res.From,
				"status":          res.To,
				"actor":           eff.Actor,
			}))
		case workflow.EffectSLAStarted:
			dispatch(ctx, s.sink, s.metrics, s.logger, notify.NewEvent(notify.KindSLAStarted, t.ID, map[string]interface{}{
				"hours":    t.SLA.Hours,
				"deadline": utils.FormatTimePtr(eff.Deadline),
			}))
		}
	}
}

// loadMutable 解析操作人并加载工单；已关闭或取消的工单不允许再改动 SLA
func (s *TicketService) loadMutable(ctx context.Context, id uint) (*models.Ticket, uint, error) {
	actor, err := s.actors.ResolveActor(ctx)
	if err != nil {
		return nil, 0, err
	}
	ticket, err := s.store.LoadByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if ticket.IsTerminal() {
		return nil, 0, fmt.Errorf("%w: ticket %d is %s", sla.ErrPreconditionFailed, id, ticket.Status)
	}
	return ticket, actor, nil
}

// PauseSLA 暂停 SLA 计时；重新加载后再校验，避免与巡检互相覆盖
func (s *TicketService) PauseSLA(ctx context.Context, id uint, reason string) (*models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "sla.pause")
	defer span.End()
	span.SetAttributes(attribute.Int64("ticket.id", int64(id)))

	ticket, actor, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.clock.Pause(&ticket.SLA, reason); err != nil {
		return nil, err
	}
	ok, err := s.store.SaveSLA(ctx, ticket, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: ticket %d was paused concurrently", ErrConflictingState, id)
	}

	s.logger.Infof("Paused SLA for ticket %d by %d (%s), %.2fh remaining", id, actor, reason, ticket.SLA.RemainingHours)
	dispatch(ctx, s.sink, s.metrics, s.logger, notify.NewEvent(notify.KindSLAPaused, id, map[string]interface{}{
		"reason":          reason,
		"remaining_hours": ticket.SLA.RemainingHours,
		"actor":           actor,
	}))
	return ticket, nil
}

// ResumeSLA 恢复 SLA 计时并按剩余预算重算截止时间
func (s *TicketService) ResumeSLA(ctx context.Context, id uint) (*models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "sla.resume")
	defer span.End()
	span.SetAttributes(attribute.Int64("ticket.id", int64(id)))

	ticket, actor, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.clock.Resume(&ticket.SLA); err != nil {
		return nil, err
	}
	ok, err := s.store.SaveSLA(ctx, ticket, true)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: ticket %d was resumed concurrently", ErrConflictingState, id)
	}

	s.logger.Infof("Resumed SLA for ticket %d by %d, new deadline %s", id, actor, utils.FormatTimePtr(ticket.SLA.Deadline))
	dispatch(ctx, s.sink, s.metrics, s.logger, notify.NewEvent(notify.KindSLAResumed, id, map[string]interface{}{
		"deadline":        utils.FormatTimePtr(ticket.SLA.Deadline),
		"remaining_hours": ticket.SLA.RemainingHours,
		"status":          ticket.SLA.Status,
		"actor":           actor,
	}))
	return ticket, nil
}

// SLAStatus 返回实时 SLA 状态，不写库
func (s *TicketService) SLAStatus(ctx context.Context, id uint) (*SLAView, error) {
	ctx, span := s.tracer.Start(ctx, "sla.status")
	defer span.End()

	ticket, err := s.store.LoadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	status, remaining, _ := s.clock.UpdateStatus(&ticket.SLA)
	view := &SLAView{
		TicketID:       ticket.ID,
		Hours:          ticket.SLA.Hours,
		Status:         status,
		RemainingHours: remaining,
		StartTime:      utils.FormatTimePtr(ticket.SLA.StartTime),
		Deadline:       utils.FormatTimePtr(ticket.SLA.Deadline),
		IsPaused:       ticket.SLA.IsPaused,
		PauseReason:    ticket.SLA.PauseReason,
		PauseHistory:   ticket.SLA.PauseHistory,
	}
	if view.PauseHistory == nil {
		view.PauseHistory = []models.SLAPauseRecord{}
	}
	return view, nil
}

// AllowedTransitions 当前状态可流转的目标状态
func (s *TicketService) AllowedTransitions(ctx context.Context, id uint) ([]string, error) {
	ticket, err := s.store.LoadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return workflow.AllowedTargets(ticket.Status), nil
}
