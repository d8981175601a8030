package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const reloadTimeout = 10 * time.Second

// Reloader 可从存储重建快照的组件
type Reloader interface {
	Reload(ctx context.Context) error
}

// Scheduler 按 cron 表达式定期刷新频道注册表
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler 创建定时刷新任务，spec 为空时返回 nil
func NewScheduler(spec string, target Reloader) (*Scheduler, error) {
	if spec == "" {
		return nil, nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		if err := target.Reload(ctx); err != nil {
			log.Printf("[Scheduler] Registry reload failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid registry reload spec %q: %w", spec, err)
	}
	return &Scheduler{cron: c}, nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	<-s.cron.Stop().Done()
}
