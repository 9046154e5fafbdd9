package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fundrouter.com/internal/core/service"
	"fundrouter.com/pkg/logger"
)

// Loop 余额对账后台循环，固定间隔跑一轮，和路由编排完全独立
type Loop struct {
	svc      *service.ReconcileService
	interval time.Duration
}

func New(svc *service.ReconcileService, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Loop{svc: svc, interval: interval}
}

func (l *Loop) Start(ctx context.Context) {
	logger.Info(ctx, "🔄 余额对账循环启动", zap.Duration("interval", l.interval))

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "🛑 余额对账循环停止")
			return
		case <-ticker.C:
			if _, err := l.svc.ReconcileOnce(ctx); err != nil {
				// 一轮失败不退出循环，下个 tick 再来
				logger.Error(ctx, "余额对账批次失败", zap.Error(err))
			}
		}
	}
}
