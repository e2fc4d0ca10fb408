package consumer

import (
	"context"
	"fmt"
	"strings"

	"github.com/Cloudtempmonitor/templogger/internal/config"

	mqttcommon "github.com/Cloudtempmonitor/templogger/common/mqtt"
	"go.uber.org/zap"
)

// Subscriber MQTT 订阅接口（由 common/mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer MQTT 变更事件消费者
// 主题去掉订阅前缀后即为文档路径，如 templogger/changes/devices/AA:BB:CC
type MQTTConsumer struct {
	config     *config.Config
	subscriber Subscriber
	router     *Router
	logger     *zap.Logger
}

// NewMQTTConsumer 创建 MQTT 消费者
func NewMQTTConsumer(cfg *config.Config, subscriber Subscriber, router *Router, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		subscriber: subscriber,
		router:     router,
		logger:     logger,
	}
}

// Start 订阅并阻塞直到 ctx 结束
func (c *MQTTConsumer) Start(ctx context.Context) error {
	topic := c.config.Trigger.MQTTTopic
	prefix := topicPrefix(topic)

	err := c.subscriber.Subscribe(topic, c.config.MQTT.QoS, func(msgTopic string, payload []byte) error {
		change, err := DecodeChange(payload, strings.TrimPrefix(msgTopic, prefix))
		if err != nil {
			c.logger.Warn("Dropping malformed change event",
				zap.String("topic", msgTopic),
				zap.Error(err),
			)
			return nil
		}
		return c.router.Dispatch(ctx, change)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to change topic: %w", err)
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", topic))

	<-ctx.Done()

	if err := c.subscriber.Unsubscribe(topic); err != nil {
		c.logger.Warn("Failed to unsubscribe", zap.String("topic", topic), zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
	return nil
}

// topicPrefix 订阅主题去掉通配符后的前缀（templogger/changes/# → templogger/changes/）
func topicPrefix(topic string) string {
	if i := strings.IndexAny(topic, "#+"); i >= 0 {
		return topic[:i]
	}
	return strings.TrimSuffix(topic, "/") + "/"
}
