package service

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fundrouter.com/internal/domain"
	"fundrouter.com/pkg/logger"
	"fundrouter.com/pkg/metrics"
)

// ReconcileService 余额对账：把链上余额刷到本地快照。
// 只写 balance，永远不碰 status——给外部观察者一个最终一致的视图，
// 不参与任何生命周期决策。
type ReconcileService struct {
	repo  domain.DepositRepo
	chain domain.ChainClient
}

func NewReconcileService(repo domain.DepositRepo, chain domain.ChainClient) *ReconcileService {
	return &ReconcileService{repo: repo, chain: chain}
}

// ReconcileOnce 刷新一轮所有未结清 (pending/proxied) deposit 的余额。
// 单笔查询失败只记日志、保留旧快照，不影响同批其他行；
// 整批写库在一个事务里。返回成功刷新的行数
func (s *ReconcileService) ReconcileOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(metrics.ReconcileDuration)
	defer timer.ObserveDuration()

	deposits, err := s.repo.Query(ctx, domain.DepositFilter{
		Statuses: []domain.DepositStatus{domain.DepositStatusPending, domain.DepositStatusProxied},
	})
	if err != nil {
		return 0, err
	}

	balances := make(map[int64]decimal.Decimal, len(deposits))
	for _, d := range deposits {
		bal, err := s.chain.GetBalance(ctx, d.Address)
		if err != nil {
			// 查不到就保留旧值 (数据变 stale 但不中断整批)
			logger.Warn(ctx, "余额查询失败，保留旧快照",
				zap.Int64("id", d.ID),
				zap.String("address", d.Address.Hex()),
				zap.Error(err))
			continue
		}
		balances[d.ID] = decimal.NewFromBigInt(bal, 0)
	}

	if len(balances) == 0 {
		return 0, nil
	}

	if err := s.repo.UpdateBalanceBatch(ctx, balances); err != nil {
		return 0, err
	}

	logger.Debug(ctx, "余额对账完成",
		zap.Int("selected", len(deposits)),
		zap.Int("refreshed", len(balances)))

	return len(balances), nil
}
