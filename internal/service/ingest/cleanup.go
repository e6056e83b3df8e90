package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog/log"

	"github.com/ashwinyue/chat-insight/internal/metrics"
	"github.com/ashwinyue/chat-insight/internal/repository"
)

// cleanupTimeout 单次清理任务的超时
const cleanupTimeout = 5 * time.Minute

// Cleaner 定时清理空白消息
type Cleaner struct {
	store repository.Store
	expr  string
	ctab  *crontab.Crontab
}

// NewCleaner 创建清理任务，expr 为标准 5 段 cron 表达式
func NewCleaner(store repository.Store, expr string) *Cleaner {
	return &Cleaner{
		store: store,
		expr:  expr,
		ctab:  crontab.New(),
	}
}

// Run 注册定时任务并阻塞到 ctx 结束
func (c *Cleaner) Run(ctx context.Context) error {
	if err := c.ctab.AddJob(c.expr, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if _, err := c.Sweep(jobCtx); err != nil {
			log.Error().Err(err).Msg("blank message sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule cleanup %q: %w", c.expr, err)
	}
	log.Info().Str("cron", c.expr).Msg("cleanup scheduled")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

// Sweep 立即执行一次清理
func (c *Cleaner) Sweep(ctx context.Context) (int64, error) {
	n, err := c.store.DeleteBlankMessages(ctx)
	if err != nil {
		return 0, err
	}
	metrics.BlankMessagesSwept.Add(float64(n))
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("blank messages swept")
	}
	return n, nil
}
