package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/Cloudtempmonitor/templogger/common/config"
	"github.com/Cloudtempmonitor/templogger/internal/models"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Mailer 邮件投递服务接口：一次发送一封（单个收件人）
type Mailer interface {
	Send(ctx context.Context, to string, content models.EmailContent) error
}

// SMTPMailer 基于 SMTP 的邮件投递
// 连接参数在第一次发送时构造一次，之后整个进程复用；每封邮件单独建立 SMTP 会话
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger

	once    sync.Once
	opts    []mail.Option
	initErr error
}

// NewSMTPMailer 创建 SMTP 邮件投递
func NewSMTPMailer(cfg config.SMTPConfig, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger,
	}
}

func (m *SMTPMailer) init() {
	if m.cfg.Host == "" {
		m.initErr = fmt.Errorf("smtp host is not configured")
		return
	}
	if m.cfg.From == "" {
		m.initErr = fmt.Errorf("smtp sender address is not configured")
		return
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	m.opts = opts

	m.logger.Info("SMTP transport initialized",
		zap.String("host", m.cfg.Host),
		zap.Int("port", m.cfg.Port),
		zap.String("from", m.cfg.From),
	)
}

// Send 发送一封邮件（from / to / subject / text / html）
func (m *SMTPMailer) Send(ctx context.Context, to string, content models.EmailContent) error {
	m.once.Do(m.init)
	if m.initErr != nil {
		return fmt.Errorf("failed to initialize smtp transport: %w", m.initErr)
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", to, err)
	}
	msg.Subject(content.Subject)
	msg.SetBodyString(mail.TypeTextPlain, content.Text)
	if content.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, content.HTML)
	}

	client, err := mail.NewClient(m.cfg.Host, m.opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// EmailDispatcher 邮件分发：每个地址并发独立发送，全部结束后返回
type EmailDispatcher struct {
	mailer Mailer
	logger *zap.Logger
}

// NewEmailDispatcher 创建邮件分发器
func NewEmailDispatcher(mailer Mailer, logger *zap.Logger) *EmailDispatcher {
	return &EmailDispatcher{
		mailer: mailer,
		logger: logger,
	}
}

// Dispatch 发送邮件；单个地址失败不会影响、也不会重试其他地址
func (d *EmailDispatcher) Dispatch(ctx context.Context, addresses []string, content models.EmailContent) Result {
	result := Result{Channel: models.ChannelEmail}
	if len(addresses) == 0 {
		d.logger.Debug("No email recipients, email skipped",
			zap.String("subject", content.Subject),
		)
		return result
	}

	errs := make([]error, len(addresses))
	var g errgroup.Group
	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			errs[i] = d.mailer.Send(ctx, addr, content)
			return nil
		})
	}
	_ = g.Wait()

	for i, addr := range addresses {
		result.add(addr, errs[i])
		if errs[i] != nil {
			d.logger.Error("Failed to send email",
				zap.String("to", addr),
				zap.Error(errs[i]),
			)
		}
	}

	d.logger.Info("Email notifications sent",
		zap.String("subject", content.Subject),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
	)
	return result
}
