package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	rediscommon "owl-alerts/common/redis"
	"owl-alerts/internal/domain"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ViewRecorder 记录已读（由 AlertService 实现）
type ViewRecorder interface {
	RecordView(ctx context.Context, alertID, userID int64) (*domain.AlertView, bool, error)
}

// ViewConsumer 消费 alert:views 中的已读事件
type ViewConsumer struct {
	redisClient  *redis.Client
	recorder     ViewRecorder
	logger       *zap.Logger
	stream       string
	groupName    string
	consumerName string
	batchSize    int64
	block        time.Duration
}

// ViewEvent 已读事件
type ViewEvent struct {
	AlertID int64 `json:"alert_id"`
	UserID  int64 `json:"user_id"`
}

// NewViewConsumer 创建已读事件消费者
// block: 每次读取的最长阻塞时间，< 0 表示不阻塞
func NewViewConsumer(
	redisClient *redis.Client,
	recorder ViewRecorder,
	logger *zap.Logger,
	stream string,
	groupName string,
	consumerName string,
	batchSize int64,
	block time.Duration,
) *ViewConsumer {
	return &ViewConsumer{
		redisClient:  redisClient,
		recorder:     recorder,
		logger:       logger,
		stream:       stream,
		groupName:    groupName,
		consumerName: consumerName,
		batchSize:    batchSize,
		block:        block,
	}
}

// Start 启动消费者，ctx 取消后返回 nil
func (c *ViewConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.stream, c.groupName); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("View consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer_group", c.groupName),
		zap.String("consumer_name", c.consumerName),
	)

	// 指数退避
	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("View consumer stopped")
			return nil
		default:
		}

		if _, err := c.consumeViews(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("Failed to consume view events",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)

			select {
			case <-ctx.Done():
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
		} else {
			backoffDuration = time.Second
		}
	}
}

// consumeViews 读取一批消息，返回成功确认的条数
// 处理失败的消息不确认，留在消费者组的 pending 列表中
func (c *ViewConsumer) consumeViews(ctx context.Context) (int, error) {
	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		c.stream,
		c.groupName,
		c.consumerName,
		c.batchSize,
		c.block,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream: %w", err)
	}

	acked := 0
	for _, msg := range messages {
		if err := c.processView(ctx, msg); err != nil {
			c.logger.Error("Failed to process view event",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		if err := rediscommon.Ack(ctx, c.redisClient, c.stream, c.groupName, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		acked++
	}
	return acked, nil
}

func (c *ViewConsumer) processView(ctx context.Context, msg rediscommon.StreamMessage) error {
	event, err := parseViewEvent(msg)
	if err != nil {
		return fmt.Errorf("failed to parse view event: %w", err)
	}

	_, created, err := c.recorder.RecordView(ctx, event.AlertID, event.UserID)
	if err != nil {
		return err
	}

	c.logger.Debug("Processed view event",
		zap.String("message_id", msg.ID),
		zap.Int64("alert_id", event.AlertID),
		zap.Int64("user_id", event.UserID),
		zap.Bool("created", created),
	)
	return nil
}

// parseViewEvent 优先解析 data 字段中的 JSON，否则读取 alert_id / user_id 字段
func parseViewEvent(msg rediscommon.StreamMessage) (*ViewEvent, error) {
	event := &ViewEvent{}

	if dataStr, ok := msg.Values["data"].(string); ok {
		if err := json.Unmarshal([]byte(dataStr), event); err != nil {
			return nil, fmt.Errorf("invalid data field: %w", err)
		}
	} else {
		var err error
		if event.AlertID, err = int64Field(msg.Values, "alert_id"); err != nil {
			return nil, err
		}
		if event.UserID, err = int64Field(msg.Values, "user_id"); err != nil {
			return nil, err
		}
	}

	if event.AlertID <= 0 || event.UserID <= 0 {
		return nil, fmt.Errorf("invalid view event: alert_id and user_id are required")
	}
	return event, nil
}

func int64Field(values map[string]interface{}, key string) (int64, error) {
	raw, ok := values[key].(string)
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
