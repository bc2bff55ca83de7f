package models

import (
	"time"

	"gorm.io/datatypes"
)

// 工单状态
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
	StatusCancelled  = "cancelled"
)

// 工单优先级
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// SLA 合规状态
const (
	SLANotStarted = "not_started"
	SLAOnTime     = "on_time"
	SLAAtRisk     = "at_risk"
	SLABreached   = "breached"
	SLAPaused     = "paused"
)

// 工单分类
const (
	CategoryHardware = "Hardware"
	CategorySoftware = "Software"
	CategoryNetwork  = "Network"
	CategoryAccess   = "Access"
	CategoryOther    = "Other"
)

// Ticket 工单模型
type Ticket struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	Category        string     `gorm:"index" json:"category"` // Hardware, Software, Network, Access, Other
	RequesterID     uint       `gorm:"index" json:"requester_id"`
	AssigneeID      *uint      `gorm:"index" json:"assignee_id"`
	Priority        string     `gorm:"default:'medium'" json:"priority"`   // low, medium, high, urgent
	Status          string     `gorm:"default:'open';index" json:"status"` // open, in_progress, resolved, closed, cancelled
	FirstResponseAt *time.Time `json:"first_response_at"`
	ResolvedAt      *time.Time `json:"resolved_at"`
	ClosedAt        *time.Time `json:"closed_at"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	SLA            TicketSLA                          `gorm:"embedded;embeddedPrefix:sla_" json:"sla"`
	Metrics        TicketMetrics                      `gorm:"embedded;embeddedPrefix:metrics_" json:"metrics"`
	PriorityAudits datatypes.JSONSlice[PriorityAudit] `json:"priority_audits,omitempty"`

	// 关联关系
	StatusHistory []TicketStatusHistory `gorm:"foreignKey:TicketID" json:"status_history,omitempty"`
}

// IsTerminal 关闭或取消的工单不再允许变更
func (t *Ticket) IsTerminal() bool {
	return t.Status == StatusClosed || t.Status == StatusCancelled
}

// TicketSLA 工单 SLA 计时信息
// Hours 为 0 表示该工单未配置 SLA
type TicketSLA struct {
	Hours                   float64                             `json:"hours"`
	UseBusinessHours        bool                                `json:"use_business_hours"`
	StartTime               *time.Time                          `gorm:"index" json:"start_time"`
	Deadline                *time.Time                          `json:"deadline"`
	Status                  string                              `gorm:"default:'not_started'" json:"status"` // not_started, on_time, at_risk, breached, paused
	RemainingHours          float64                             `json:"remaining_hours"`
	Notified                bool                                `json:"notified"`
	IsPaused                bool                                `gorm:"index" json:"is_paused"`
	PausedAt                *time.Time                          `json:"paused_at"`
	PauseReason             string                              `json:"pause_reason"`
	ElapsedHoursBeforePause float64                             `json:"elapsed_hours_before_pause"`
	PauseHistory            datatypes.JSONSlice[SLAPauseRecord] `json:"pause_history,omitempty"`
}

// Configured 是否配置了 SLA 预算
func (s *TicketSLA) Configured() bool {
	return s.Hours > 0
}

// Started 时钟是否已启动
func (s *TicketSLA) Started() bool {
	return s.StartTime != nil && s.Deadline != nil
}

// Active 已启动且未暂停
func (s *TicketSLA) Active() bool {
	return s.Started() && !s.IsPaused
}

// SLAPauseRecord SLA 暂停记录
type SLAPauseRecord struct {
	PausedAt      time.Time `json:"paused_at"`
	ResumedAt     time.Time `json:"resumed_at"`
	DurationHours float64   `json:"duration_hours"`
	Reason        string    `json:"reason"`
}

// TicketMetrics 工单时效指标（单位：小时）
type TicketMetrics struct {
	ResponseTime    float64 `json:"response_time"`
	ResolutionTime  float64 `json:"resolution_time"`
	ReopenCount     int     `json:"reopen_count"`
	EscalationCount int     `json:"escalation_count"`
}

// TicketStatusHistory 工单状态变更记录
type TicketStatusHistory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TicketID   uint      `gorm:"index" json:"ticket_id"`
	FromStatus string    `json:"from_status"`
	Status     string    `gorm:"not null" json:"status"`
	ChangedBy  uint      `gorm:"not null;index" json:"changed_by"`
	ChangedAt  time.Time `json:"changed_at"`
	Comment    string    `gorm:"type:text" json:"comment,omitempty"`
}

// PriorityAudit 优先级调整审计
type PriorityAudit struct {
	PreviousPriority string             `json:"previous_priority"`
	NewPriority      string             `json:"new_priority"`
	Score            float64            `json:"score"`
	Breakdown        map[string]float64 `json:"breakdown"`
	Forced           bool               `json:"forced"`
	ChangedAt        time.Time          `json:"changed_at"`
}

// ValidStatus 校验工单状态取值
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// ValidPriority 校验优先级取值
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
