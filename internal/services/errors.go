package services

import (
	"context"
	"errors"

	"helpdesk/internal/metrics"
	"helpdesk/internal/notify"

	"github.com/sirupsen/logrus"
)

var (
	// ErrConflictingState 工单在读取后被并发修改（如监控与暂停同时发生）
	ErrConflictingState = errors.New("conflicting ticket state")
	// ErrInvalidRequest 请求参数不合法
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSweepInProgress 上一次巡检尚未结束
	ErrSweepInProgress = errors.New("sla sweep already in progress")
)

// Option 服务通用选项
type Option func(*options)

type options struct {
	metrics *metrics.Registry
}

// WithMetrics 指定指标注册表，缺省使用 metrics.Default
func WithMetrics(r *metrics.Registry) Option {
	return func(o *options) { o.metrics = r }
}

func buildOptions(opts []Option) options {
	o := options{metrics: metrics.Default}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// dispatch 投递事件；通知失败只记录，不影响工单状态
func dispatch(ctx context.Context, sink notify.Sink, reg *metrics.Registry, logger *logrus.Logger, e notify.Event) {
	if sink == nil {
		return
	}
	if err := sink.Notify(ctx, e); err != nil {
		reg.IncNotifyError(string(e.Kind))
		logger.WithFields(logrus.Fields{
			"ticket_id": e.TicketID,
			"kind":      e.Kind,
		}).Warnf("Failed to deliver event: %v", err)
	}
}
