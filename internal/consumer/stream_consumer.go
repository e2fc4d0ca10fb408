package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/config"

	rediscommon "github.com/Cloudtempmonitor/templogger/common/redis"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// pendingRetryInterval 未确认消息的重试间隔
const pendingRetryInterval = 30 * time.Second

// StreamConsumer Redis Streams 变更事件消费者
// 处理成功（或消息本身无法解析）才确认；存储错误导致的失败保留在 pending 列表中稍后重试
type StreamConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	router      *Router
	logger      *zap.Logger

	lastPendingScan time.Time
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	router *Router,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		router:      router,
		logger:      logger,
	}
}

// Start 启动消费者，阻塞直到 ctx 结束
func (c *StreamConsumer) Start(ctx context.Context) error {
	trigger := c.config.Trigger
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, trigger.Stream, trigger.Group); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", trigger.Stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", trigger.Stream),
		zap.String("consumer_group", trigger.Group),
		zap.String("consumer_name", trigger.Consumer),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopped")
			return nil
		default:
		}

		if err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume stream",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)

			// 指数退避
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second
	}
}

// consumeOnce 先按间隔重试 pending，再读取新消息
func (c *StreamConsumer) consumeOnce(ctx context.Context) error {
	trigger := c.config.Trigger

	if time.Since(c.lastPendingScan) >= pendingRetryInterval {
		c.lastPendingScan = time.Now()
		if err := c.retryPending(ctx); err != nil {
			return err
		}
	}

	messages, err := rediscommon.ReadFromStream(ctx, c.redisClient, trigger.Stream, trigger.Group, trigger.Consumer, trigger.BatchSize, trigger.Block)
	if err != nil {
		return fmt.Errorf("failed to read from stream %s: %w", trigger.Stream, err)
	}
	c.processAll(ctx, messages)
	return nil
}

// retryPending 按页遍历整个 pending 列表，持续失败的消息不会挡住后面的消息
func (c *StreamConsumer) retryPending(ctx context.Context) error {
	trigger := c.config.Trigger
	afterID := "0"
	retried := 0
	for {
		pending, err := rediscommon.ReadPendingFromStream(ctx, c.redisClient, trigger.Stream, trigger.Group, trigger.Consumer, afterID, trigger.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to read pending messages: %w", err)
		}
		c.processAll(ctx, pending)
		retried += len(pending)

		if len(pending) == 0 || int64(len(pending)) < trigger.BatchSize || ctx.Err() != nil {
			break
		}
		afterID = pending[len(pending)-1].ID
	}
	if retried > 0 {
		c.logger.Info("Retried unacknowledged messages", zap.Int("count", retried))
	}
	return nil
}

func (c *StreamConsumer) processAll(ctx context.Context, messages []rediscommon.StreamMessage) {
	for _, msg := range messages {
		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to process message, left pending",
				zap.String("stream", msg.Stream),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		if err := rediscommon.Ack(ctx, c.redisClient, msg.Stream, c.config.Trigger.Group, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}
}

// processMessage 处理单条消息；无法解析的消息记录后直接确认
func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	raw, _ := msg.Values["data"].(string)
	path, _ := msg.Values["path"].(string)

	change, err := DecodeChange([]byte(raw), path)
	if err != nil {
		c.logger.Warn("Dropping malformed change event",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return nil
	}
	if change.ID == "" {
		change.ID = msg.ID
	}

	return c.router.Dispatch(ctx, change)
}
