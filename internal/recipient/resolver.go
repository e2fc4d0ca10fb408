package recipient

import (
	"context"
	"strings"

	"github.com/Cloudtempmonitor/templogger/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// UserFinder 用户查询接口（由 repository.UserRepository 实现）
type UserFinder interface {
	FindNotifiableUsers(ctx context.Context, deviceID string, channel models.Channel) ([]models.User, error)
}

// Recipients 某设备的通知受众
type Recipients struct {
	PushTokens []string
	Emails     []string
}

// Resolver 接收人解析器
type Resolver struct {
	users  UserFinder
	logger *zap.Logger
}

// NewResolver 创建接收人解析器
func NewResolver(users UserFinder, logger *zap.Logger) *Resolver {
	return &Resolver{
		users:  users,
		logger: logger,
	}
}

// Resolve 并发解析推送和邮件两个渠道的受众
// 查询失败只影响对应渠道（返回空集合），不会返回错误
func (r *Resolver) Resolve(ctx context.Context, deviceID string) Recipients {
	var out Recipients
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.PushTokens = r.ResolvePushTokens(gctx, deviceID)
		return nil
	})
	g.Go(func() error {
		out.Emails = r.ResolveEmails(gctx, deviceID)
		return nil
	})
	_ = g.Wait()
	return out
}

// ResolvePushTokens 去重后的推送 token（按首次出现顺序）
func (r *Resolver) ResolvePushTokens(ctx context.Context, deviceID string) []string {
	users := r.eligibleUsers(ctx, deviceID, models.ChannelPush)

	seen := make(map[string]struct{})
	tokens := make([]string, 0)
	for _, u := range users {
		for _, token := range u.PushTokens {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			tokens = append(tokens, token)
		}
	}

	r.logger.Debug("Resolved push recipients",
		zap.String("device_id", deviceID),
		zap.Int("user_count", len(users)),
		zap.Int("token_count", len(tokens)),
	)
	return tokens
}

// ResolveEmails 去重后的邮件地址（忽略大小写）
func (r *Resolver) ResolveEmails(ctx context.Context, deviceID string) []string {
	users := r.eligibleUsers(ctx, deviceID, models.ChannelEmail)

	seen := make(map[string]struct{})
	emails := make([]string, 0)
	for _, u := range users {
		addr := strings.TrimSpace(u.Email)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		emails = append(emails, addr)
	}

	r.logger.Debug("Resolved email recipients",
		zap.String("device_id", deviceID),
		zap.Int("user_count", len(users)),
		zap.Int("email_count", len(emails)),
	)
	return emails
}

// eligibleUsers 查询并在本地复核三个条件（active / 设备授权 / 渠道订阅）
func (r *Resolver) eligibleUsers(ctx context.Context, deviceID string, channel models.Channel) []models.User {
	users, err := r.users.FindNotifiableUsers(ctx, deviceID, channel)
	if err != nil {
		r.logger.Error("Failed to query recipients, channel skipped",
			zap.String("device_id", deviceID),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
		return nil
	}

	eligible := users[:0:0]
	for _, u := range users {
		if u.Eligible(deviceID, channel) {
			eligible = append(eligible, u)
		}
	}
	if len(eligible) == 0 {
		r.logger.Info("No users configured to receive alerts for device",
			zap.String("device_id", deviceID),
			zap.String("channel", string(channel)),
		)
	}
	return eligible
}
