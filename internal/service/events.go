package service

import (
	"context"
	"fmt"
	"time"

	rediscommon "owl-alerts/common/redis"
	"owl-alerts/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// 告警生命周期事件类型
const (
	EventAlertCreated     = "alert.created"
	EventAlertUpdated     = "alert.updated"
	EventAlertDeactivated = "alert.deactivated"
	EventAlertActivated   = "alert.activated"
	EventAlertDeleted     = "alert.deleted"
	EventAlertViewed      = "alert.viewed"
	EventUserDeleted      = "user.deleted"
)

// AlertEvent 写入 alert:events 的事件（data 字段的 JSON）
type AlertEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	AlertID    int64     `json:"alert_id,omitempty"`
	UserID     int64     `json:"user_id,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher 事件发布接口
type EventPublisher interface {
	Publish(ctx context.Context, event *AlertEvent) error
}

// RedisEventPublisher 通过 Redis Streams 发布事件
type RedisEventPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisEventPublisher 创建事件发布器
func NewRedisEventPublisher(client *redis.Client, stream string) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, stream: stream}
}

// Publish 补全 event_id / occurred_at 后写入 stream
func (p *RedisEventPublisher) Publish(ctx context.Context, event *AlertEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if _, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, event); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event.EventType, p.stream, err)
	}
	return nil
}

func newAlertEvent(eventType string, alert *domain.Alert) *AlertEvent {
	return &AlertEvent{
		EventType: eventType,
		AlertID:   alert.ID,
		Severity:  alert.Severity.String(),
	}
}
