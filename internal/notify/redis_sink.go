package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink 将事件以 JSON 发布到 Redis 频道
type RedisSink struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisSink 创建 Redis 发布渠道
func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis sink: encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis sink: publish to %s: %w", s.channel, err)
	}
	return nil
}
