package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink 将事件写入日志
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink 创建日志通知渠道
func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, e Event) error {
	entry := s.logger.WithFields(logrus.Fields{
		"event_id":  e.ID,
		"kind":      e.Kind,
		"ticket_id": e.TicketID,
	})
	for k, v := range e.Details {
		entry = entry.WithField(k, v)
	}
	switch e.Kind {
	case KindBreach:
		entry.Warn("SLA breached")
	case KindAtRisk:
		entry.Warn("SLA at risk")
	default:
		entry.Info("ticket event")
	}
	return nil
}
