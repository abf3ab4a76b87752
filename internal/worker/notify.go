package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NotifyChannel 是迁移结果的 Redis Pub/Sub 频道。
const NotifyChannel = "migration_notify"

// MigrationNotifyMessage 是迁移任务完成后发布的消息。
type MigrationNotifyMessage struct {
	Status        string   `json:"status"`
	Scope         string   `json:"scope"`
	TemplateID    uint     `json:"template_id,omitempty"`
	DocumentID    uint     `json:"document_id,omitempty"`
	CorrelationID string   `json:"correlation_id"`
	ErrorCode     int      `json:"error_code"`
	ErrorMessage  string   `json:"error_message"`
	Migrated      int      `json:"migrated"`
	Skipped       int      `json:"skipped"`
	Failed        int      `json:"failed"`
	Errors        []string `json:"errors,omitempty"`
}

// Publisher 发布迁移结果。
type Publisher interface {
	Publish(ctx context.Context, msg MigrationNotifyMessage) error
}

// RedisNotifier 通过 Redis Pub/Sub 发布迁移结果。
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, msg MigrationNotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	if err := n.client.Publish(ctx, NotifyChannel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", NotifyChannel, err)
	}
	return nil
}
