package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"helpdesk/internal/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TelegramSink 通过 Telegram Bot API 推送 SLA 告警
type TelegramSink struct {
	baseURL string
	token   string
	chatID  string
	kinds   map[Kind]bool
	http    *http.Client
}

// NewTelegramSink 创建 Telegram 通知渠道；只推送告警类事件
func NewTelegramSink(cfg config.TelegramConfig) *TelegramSink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramSink{
		baseURL: baseURL,
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		kinds:   map[Kind]bool{KindBreach: true, KindAtRisk: true, KindPriorityChanged: true},
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *TelegramSink) Notify(ctx context.Context, e Event) error {
	if !s.kinds[e.Kind] {
		return nil
	}
	if s.token == "" || s.chatID == "" {
		return fmt.Errorf("telegram: missing token or chat id")
	}

	body := map[string]any{
		"chat_id":                  s.chatID,
		"text":                     FormatMessage(e),
		"disable_web_page_preview": true,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telegram: encode message: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram sendMessage status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// FormatMessage 渲染纯文本告警内容
func FormatMessage(e Event) string {
	var sb strings.Builder
	switch e.Kind {
	case KindBreach:
		fmt.Fprintf(&sb, "SLA BREACHED: ticket #%d", e.TicketID)
	case KindAtRisk:
		fmt.Fprintf(&sb, "SLA at risk: ticket #%d", e.TicketID)
	case KindPriorityChanged:
		fmt.Fprintf(&sb, "Priority changed: ticket #%d", e.TicketID)
	default:
		fmt.Fprintf(&sb, "%s: ticket #%d", e.Kind, e.TicketID)
	}
	for _, key := range []string{"previous_status", "status", "deadline", "remaining_hours", "previous_priority", "priority", "score"} {
		if v, ok := e.Details[key]; ok {
			fmt.Fprintf(&sb, "\n%s: %v", key, v)
		}
	}
	return sb.String()
}
