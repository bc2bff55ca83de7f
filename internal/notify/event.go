package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind 事件类型
type Kind string

const (
	KindBreach          Kind = "breach"
	KindAtRisk          Kind = "at_risk"
	KindPriorityChanged Kind = "priority_changed"
	KindStatusChanged   Kind = "status_changed"
	KindSLAStarted      Kind = "sla_started"
	KindSLAPaused       Kind = "sla_paused"
	KindSLAResumed      Kind = "sla_resumed"
)

// Event 通知事件
type Event struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	TicketID  uint                   `json:"ticket_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent 创建事件
func NewEvent(kind Kind, ticketID uint, details map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		TicketID:  ticketID,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// Sink 通知投递接口；失败不影响工单状态
type Sink interface {
	Notify(ctx context.Context, e Event) error
}

// SinkFunc 函数适配
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// Multi 依次投递到所有渠道，汇总错误
type Multi []Sink

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
