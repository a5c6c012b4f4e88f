package service

import (
	"context"
	"time"

	"github.com/ceyewan/minichat/internal/clog"
	"github.com/ceyewan/minichat/internal/config"
	"github.com/ceyewan/minichat/internal/repository"
)

// Sweeper 消息保留期清理任务
// 周期性删除超过保留期的消息，保持消息表在一个可控的时间窗口内
type Sweeper struct {
	messages *repository.MessageRepository
	interval time.Duration
	retain   time.Duration
	logger   clog.Logger
}

// NewSweeper 创建清理任务
func NewSweeper(cfg config.BusinessConfig, messages *repository.MessageRepository) *Sweeper {
	interval := cfg.CleanupInterval
	if interval < 5*time.Minute {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		messages: messages,
		interval: interval,
		retain:   time.Duration(cfg.CleanupAfterDays) * 24 * time.Hour,
		logger:   clog.Module("sweeper"),
	}
}

// Run 阻塞运行清理循环，直到 ctx 被取消
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("消息清理任务启动",
		clog.Duration("interval", s.interval),
		clog.Duration("retain", s.retain))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("消息清理任务停止")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.retain)
	deleted, err := s.messages.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		// 清理失败不致命，下个周期重试
		s.logger.Error("清理过期消息失败", clog.Err(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("清理过期消息完成",
			clog.Int64("deleted", deleted),
			clog.Time("cutoff", cutoff))
	}
}
