package presence

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler 定时执行离线扫描（同一时刻只有一轮在跑）
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// cronLogger 把 cron 的日志接到 zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewScheduler 创建调度器并注册扫描任务
func NewScheduler(spec string, sweeper *Sweeper, logger *zap.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{
		cron:    c,
		sweeper: sweeper,
		logger:  logger,
	}
	if _, err := c.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start 启动调度器
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("Offline sweep scheduler started")
}

// Stop 停止调度器并等待正在执行的扫描结束
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Offline sweep scheduler stopped")
}

func (s *Scheduler) run() {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error("Offline sweep failed", zap.Error(err))
	}
}
