package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const alertKeyPrefix = "helpdesk:sla_alert:"

// AlertGate suppresses duplicate SLA alerts for the same ticket and kind
// when several monitor instances share one Redis.
type AlertGate struct {
	client   redis.UniversalClient
	cooldown time.Duration
}

// NewAlertGate creates an AlertGate with the given cooldown.
func NewAlertGate(client redis.UniversalClient, cooldown time.Duration) *AlertGate {
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}
	return &AlertGate{client: client, cooldown: cooldown}
}

// Format: helpdesk:sla_alert:{kind}:{ticket_id}
func (g *AlertGate) buildKey(kind string, ticketID uint) string {
	return fmt.Sprintf("%s%s:%d", alertKeyPrefix, kind, ticketID)
}

// Allow atomically claims the alert slot. False means another instance already sent it.
func (g *AlertGate) Allow(ctx context.Context, kind string, ticketID uint) (bool, error) {
	acquired, err := g.client.SetNX(ctx, g.buildKey(kind, ticketID), "1", g.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire alert lock: %w", err)
	}
	return acquired, nil
}

// Clear drops the cooldown, e.g. after an SLA is resumed with a fresh deadline.
func (g *AlertGate) Clear(ctx context.Context, kind string, ticketID uint) error {
	if err := g.client.Del(ctx, g.buildKey(kind, ticketID)).Err(); err != nil {
		return fmt.Errorf("failed to clear alert: %w", err)
	}
	return nil
}

// RemainingCooldown returns 0 when no cooldown is active.
func (g *AlertGate) RemainingCooldown(ctx context.Context, kind string, ticketID uint) (time.Duration, error) {
	ttl, err := g.client.TTL(ctx, g.buildKey(kind, ticketID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get cooldown: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
