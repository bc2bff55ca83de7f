package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"helpdesk/internal/models"
	"helpdesk/internal/priority"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTicketNotFound 工单不存在
var ErrTicketNotFound = errors.New("ticket not found")

var (
	activeStatuses      = []string{models.StatusOpen, models.StatusInProgress}
	nonTerminalStatuses = []string{models.StatusOpen, models.StatusInProgress, models.StatusResolved}
)

// TicketStore 工单持久化接口
type TicketStore interface {
	Create(ctx context.Context, t *models.Ticket) error
	LoadByID(ctx context.Context, id uint) (*models.Ticket, error)
	Save(ctx context.Context, t *models.Ticket) error
	// SaveSLA 仅当库中 sla_is_paused 仍等于 expectPaused 时写入 SLA 与指标字段
	SaveSLA(ctx context.Context, t *models.Ticket, expectPaused bool) (bool, error)
	// SavePriority 只写入优先级与审计记录
	SavePriority(ctx context.Context, t *models.Ticket) error
	FindActiveSLA(ctx context.Context) ([]models.Ticket, error)
	FindOpen(ctx context.Context) ([]models.Ticket, error)
	RequesterHistory(ctx context.Context, requesterID, excludeID uint, since time.Time) (priority.UserHistory, error)
}

// GormTicketStore 基于 gorm 的工单存储
type GormTicketStore struct {
	db     *gorm.DB
	tracer trace.Tracer
}

// NewGormTicketStore 创建工单存储
func NewGormTicketStore(db *gorm.DB) *GormTicketStore {
	return &GormTicketStore{db: db, tracer: otel.Tracer("helpdesk.repository")}
}

// Create 创建工单（含初始状态记录）
func (s *GormTicketStore) Create(ctx context.Context, t *models.Ticket) error {
	ctx, span := s.tracer.Start(ctx, "tickets.create")
	defer span.End()

	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	span.SetAttributes(attribute.Int64("ticket.id", int64(t.ID)))
	return nil
}

// LoadByID 加载工单及状态历史
func (s *GormTicketStore) LoadByID(ctx context.Context, id uint) (*models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "tickets.load")
	defer span.End()
	span.SetAttributes(attribute.Int64("ticket.id", int64(id)))

	var t models.Ticket
	err := s.db.WithContext(ctx).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("changed_at ASC, id ASC")
		}).
		First(&t, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id=%d", ErrTicketNotFound, id)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load ticket %d: %w", id, err)
	}
	return &t, nil
}

// Save 保存工单；状态历史只追加未入库的记录
func (s *GormTicketStore) Save(ctx context.Context, t *models.Ticket) error {
	ctx, span := s.tracer.Start(ctx, "tickets.save")
	defer span.End()
	span.SetAttributes(attribute.Int64("ticket.id", int64(t.ID)))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(t).Error; err != nil {
			return err
		}
		for i := range t.StatusHistory {
			h := &t.StatusHistory[i]
			if h.ID != 0 {
				continue
			}
			h.TicketID = t.ID
			if err := tx.Create(h).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save ticket %d: %w", t.ID, err)
	}
	return nil
}

// SaveSLA 条件更新 SLA 字段，返回是否写入成功
func (s *GormTicketStore) SaveSLA(ctx context.Context, t *models.Ticket, expectPaused bool) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "tickets.save_sla")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("ticket.id", int64(t.ID)),
		attribute.String("sla.status", t.SLA.Status),
	)

	res := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND sla_is_paused = ?", t.ID, expectPaused).
		Updates(slaColumns(t))
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to save SLA for ticket %d: %w", t.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SavePriority 只更新 priority 与 priority_audits，不覆盖并发写入的 SLA 字段
func (s *GormTicketStore) SavePriority(ctx context.Context, t *models.Ticket) error {
	ctx, span := s.tracer.Start(ctx, "tickets.save_priority")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("ticket.id", int64(t.ID)),
		attribute.String("ticket.priority", t.Priority),
	)

	err := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"priority":        t.Priority,
			"priority_audits": t.PriorityAudits,
		}).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save priority for ticket %d: %w", t.ID, err)
	}
	return nil
}

func slaColumns(t *models.Ticket) map[string]interface{} {
	s := t.SLA
	return map[string]interface{}{
		"sla_start_time":                 s.StartTime,
		"sla_deadline":                   s.Deadline,
		"sla_status":                     s.Status,
		"sla_remaining_hours":            s.RemainingHours,
		"sla_notified":                   s.Notified,
		"sla_is_paused":                  s.IsPaused,
		"sla_paused_at":                  s.PausedAt,
		"sla_pause_reason":               s.PauseReason,
		"sla_elapsed_hours_before_pause": s.ElapsedHoursBeforePause,
		"sla_pause_history":              s.PauseHistory,
		"metrics_escalation_count":       t.Metrics.EscalationCount,
	}
}

// FindActiveSLA 查询 SLA 计时中的工单（已启动、未暂停、处理中）
func (s *GormTicketStore) FindActiveSLA(ctx context.Context) ([]models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "tickets.find_active_sla")
	defer span.End()

	var tickets []models.Ticket
	err := s.db.WithContext(ctx).
		Where("sla_start_time IS NOT NULL AND sla_deadline IS NOT NULL").
		Where("sla_is_paused = ?", false).
		Where("status IN ?", activeStatuses).
		Order("id ASC").
		Find(&tickets).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query active SLA tickets: %w", err)
	}
	span.SetAttributes(attribute.Int("tickets.count", len(tickets)))
	return tickets, nil
}

// FindOpen 查询所有未终结工单
func (s *GormTicketStore) FindOpen(ctx context.Context) ([]models.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "tickets.find_open")
	defer span.End()

	var tickets []models.Ticket
	if err := s.db.WithContext(ctx).Where("status IN ?", nonTerminalStatuses).Order("id ASC").Find(&tickets).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query open tickets: %w", err)
	}
	return tickets, nil
}

// RequesterHistory 统计提单人的近期未结工单数与历史总数
func (s *GormTicketStore) RequesterHistory(ctx context.Context, requesterID, excludeID uint, since time.Time) (priority.UserHistory, error) {
	ctx, span := s.tracer.Start(ctx, "tickets.requester_history")
	defer span.End()
	span.SetAttributes(attribute.Int64("requester.id", int64(requesterID)))

	var h priority.UserHistory
	db := s.db.WithContext(ctx).Model(&models.Ticket{})
	if err := db.Where("requester_id = ? AND id <> ? AND status IN ? AND created_at >= ?",
		requesterID, excludeID, activeStatuses, since).
		Count(&h.OpenRecent).Error; err != nil {
		span.RecordError(err)
		return h, fmt.Errorf("failed to count open tickets: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("requester_id = ?", requesterID).
		Count(&h.TotalTickets).Error; err != nil {
		span.RecordError(err)
		return h, fmt.Errorf("failed to count tickets: %w", err)
	}
	return h, nil
}
