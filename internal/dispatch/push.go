package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Cloudtempmonitor/templogger/common/config"
	"github.com/Cloudtempmonitor/templogger/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// MaxMulticastTokens 单次 multicast 的 token 上限
const MaxMulticastTokens = 500

// TokenResult 单个 token 的投递结果
type TokenResult struct {
	Token   string
	Success bool
	Error   string
}

// PushSender 推送投递服务接口
type PushSender interface {
	// SendMulticast 向一批 token 发送同一条消息，返回逐 token 结果（与 tokens 顺序一致）
	SendMulticast(ctx context.Context, tokens []string, msg models.PushMessage) ([]TokenResult, error)
}

// HTTPPushSender 推送网关 HTTP 客户端
type HTTPPushSender struct {
	httpClient *resty.Client
	ttl        time.Duration
	batchSize  int
	logger     *zap.Logger
}

// NewHTTPPushSender 创建推送网关客户端
func NewHTTPPushSender(cfg *config.PushConfig, logger *zap.Logger) *HTTPPushSender {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > MaxMulticastTokens {
		batchSize = MaxMulticastTokens
	}

	return &HTTPPushSender{
		httpClient: client,
		ttl:        cfg.TTL,
		batchSize:  batchSize,
		logger:     logger,
	}
}

type multicastRequest struct {
	Tokens       []string          `json:"tokens"`
	Notification multicastNotice   `json:"notification"`
	Data         map[string]string `json:"data"`
	Android      multicastAndroid  `json:"android"`
	APNS         multicastAPNS     `json:"apns"`
}

type multicastNotice struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type multicastAndroid struct {
	Priority string `json:"priority"`
	TTL      string `json:"ttl"`
}

type multicastAPNS struct {
	Payload struct {
		Aps struct {
			Sound string `json:"sound"`
			Badge int    `json:"badge"`
		} `json:"aps"`
	} `json:"payload"`
}

type multicastResponse struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
	Responses    []struct {
		Success   bool   `json:"success"`
		MessageID string `json:"messageId"`
		Error     string `json:"error"`
	} `json:"responses"`
}

// SendMulticast 按批发送；单批请求失败时该批 token 全部记为失败，其他批不受影响
func (s *HTTPPushSender) SendMulticast(ctx context.Context, tokens []string, msg models.PushMessage) ([]TokenResult, error) {
	results := make([]TokenResult, 0, len(tokens))
	var lastErr error
	delivered := false

	for start := 0; start < len(tokens); start += s.batchSize {
		end := start + s.batchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		batchResults, err := s.sendBatch(ctx, batch, msg)
		if err != nil {
			s.logger.Error("Push gateway call failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			lastErr = err
			for _, token := range batch {
				results = append(results, TokenResult{Token: token, Error: err.Error()})
			}
			continue
		}
		delivered = true
		results = append(results, batchResults...)
	}

	if !delivered && lastErr != nil {
		return results, fmt.Errorf("failed to send push multicast: %w", lastErr)
	}
	return results, nil
}

func (s *HTTPPushSender) sendBatch(ctx context.Context, batch []string, msg models.PushMessage) ([]TokenResult, error) {
	req := multicastRequest{
		Tokens:       batch,
		Notification: multicastNotice{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
		Android: multicastAndroid{
			Priority: "high",
			TTL:      fmt.Sprintf("%ds", int64(s.ttl/time.Second)),
		},
	}
	req.APNS.Payload.Aps.Sound = "default"
	req.APNS.Payload.Aps.Badge = 1

	var response multicastResponse
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&response).
		Post("/v1/messages:multicast")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("push gateway returned status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	results := make([]TokenResult, len(batch))
	for i, token := range batch {
		results[i] = TokenResult{Token: token}
		if i >= len(response.Responses) {
			results[i].Error = "missing result from push gateway"
			continue
		}
		results[i].Success = response.Responses[i].Success
		results[i].Error = response.Responses[i].Error
	}
	return results, nil
}

// PushDispatcher 推送分发：记录成功/失败计数，单个 token 失败不影响整批
type PushDispatcher struct {
	sender PushSender
	logger *zap.Logger
}

// NewPushDispatcher 创建推送分发器
func NewPushDispatcher(sender PushSender, logger *zap.Logger) *PushDispatcher {
	return &PushDispatcher{
		sender: sender,
		logger: logger,
	}
}

// Dispatch 发送推送；token 为空时不调用投递服务
func (d *PushDispatcher) Dispatch(ctx context.Context, tokens []string, msg models.PushMessage) Result {
	result := Result{Channel: models.ChannelPush}
	if len(tokens) == 0 {
		d.logger.Debug("No push tokens, push skipped",
			zap.String("type", msg.Data["type"]),
			zap.String("device_id", msg.Data["deviceId"]),
		)
		return result
	}

	d.logger.Info("Sending push notification",
		zap.String("type", msg.Data["type"]),
		zap.String("device_id", msg.Data["deviceId"]),
		zap.Int("token_count", len(tokens)),
	)

	responses, err := d.sender.SendMulticast(ctx, tokens, msg)
	if err != nil {
		d.logger.Error("Failed to send push notification",
			zap.String("device_id", msg.Data["deviceId"]),
			zap.Error(err),
		)
		for _, token := range tokens {
			result.add(token, err)
		}
		return result
	}

	for _, r := range responses {
		if r.Success {
			result.add(r.Token, nil)
			continue
		}
		reason := r.Error
		if reason == "" {
			reason = "unknown error"
		}
		result.add(r.Token, errors.New(reason))
		d.logger.Warn("Push token delivery failed",
			zap.String("device_id", msg.Data["deviceId"]),
			zap.String("token_suffix", tokenSuffix(r.Token)),
			zap.String("error", r.Error),
		)
	}

	d.logger.Info("Push notification sent",
		zap.String("device_id", msg.Data["deviceId"]),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
	)
	return result
}

// tokenSuffix 日志里只保留 token 末尾几位
func tokenSuffix(token string) string {
	const keep = 8
	if len(token) <= keep {
		return token
	}
	return "…" + token[len(token)-keep:]
}
