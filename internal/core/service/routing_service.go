package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fundrouter.com/internal/domain"
	"fundrouter.com/pkg/logger"
	"fundrouter.com/pkg/metrics"
)

const (
	defaultSweepConcurrency = 8
	defaultSweepLockTTL     = 10 * time.Minute
)

// RouteOptions 编排范围，Address 非空时只处理这一个收款地址
type RouteOptions struct {
	Address *common.Address
}

// RouteResult 一轮编排的结果
type RouteResult struct {
	// 确认成功的归集交易哈希 (零余额的 no-op 不在里面)
	TxHashes []common.Hash
	// 本轮推进到 routed 的数量
	Routed int
	// 全表按状态的数量快照。在本轮变更之前读取，只做观测，不参与决策
	StatusCounts map[domain.DepositStatus]int64
}

// RoutingService 路由编排器：部署缺失的代理、推进状态机、并发归集资金。
// 这里不做任何自动重试——一轮失败后 deposit 还留在可选集合里，
// 由触发方 (定时器或接口调用) 择机再跑一轮。
type RoutingService struct {
	repo     domain.DepositRepo
	chain    domain.ChainClient
	signer   domain.TxSigner
	locker   SweepLocker
	treasury common.Address

	concurrency int
	lockTTL     time.Duration
}

func NewRoutingService(
	repo domain.DepositRepo,
	chain domain.ChainClient,
	signer domain.TxSigner,
	locker SweepLocker,
	treasury common.Address,
) *RoutingService {
	return &RoutingService{
		repo:        repo,
		chain:       chain,
		signer:      signer,
		locker:      locker,
		treasury:    treasury,
		concurrency: defaultSweepConcurrency,
		lockTTL:     defaultSweepLockTTL,
	}
}

// SetConcurrency 覆盖归集并发度，n <= 0 时保持默认值。
func (s *RoutingService) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// Route 跑一轮编排。
// 部署失败整轮失败 (此时还没有任何状态写入)；单笔归集失败只影响自己。
func (s *RoutingService) Route(ctx context.Context, opts RouteOptions) (*RouteResult, error) {
	// 1. 圈出待处理集合: pending (代理未部署) + proxied (代理已部署待归集)
	filter := domain.DepositFilter{
		Statuses: []domain.DepositStatus{domain.DepositStatusPending, domain.DepositStatusProxied},
	}
	if opts.Address != nil {
		filter.Address = opts.Address
		filter.Limit = 1
	}

	deposits, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	// 2. 状态数量快照 (观测侧信道，在任何变更之前读)
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	result := &RouteResult{StatusCounts: counts}

	// 没有可处理的 deposit 不算错误，空结果返回
	if len(deposits) == 0 {
		return result, nil
	}

	// 3. 批量部署缺失的代理。
	// 适配器内部会按链上字节码过滤已部署的盐，这里不看本地状态做判断
	var pendingIDs []int64
	var pendingSalts []common.Hash
	for _, d := range deposits {
		if d.Status == domain.DepositStatusPending {
			pendingIDs = append(pendingIDs, d.ID)
			pendingSalts = append(pendingSalts, d.Salt)
		}
	}

	if len(pendingSalts) > 0 {
		if _, err := s.chain.DeployProxies(ctx, s.signer, pendingSalts); err != nil {
			// 部署失败对整轮是致命的：不落任何状态变更，错误直接上抛
			metrics.ProxyDeployTotal.WithLabelValues("failed").Inc()
			logger.Error(ctx, "❌ 代理部署失败，本轮终止", zap.Error(err))
			return nil, err
		}
		metrics.ProxyDeployTotal.WithLabelValues("ok").Inc()

		// 4. 部署确认后一个事务里整批推进 pending -> proxied。
		// 先落库再发归集交易：就算马上崩溃，重启后库里的状态也和链上一致
		if err := s.repo.UpdateStatusBatch(ctx, pendingIDs, domain.DepositStatusPending, domain.DepositStatusProxied); err != nil {
			return nil, err
		}
		logger.Info(ctx, "代理部署完成", zap.Int("count", len(pendingIDs)))
	}

	// 5. 并发归集。每笔独立提交自己的结果，一笔失败不影响兄弟任务，
	// 也不允许提前短路——所有任务都收尾后才汇总
	var (
		mu     sync.Mutex
		hashes []common.Hash
		routed int
	)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, d := range deposits {
		dep := d
		g.Go(func() error {
			if txHash, ok := s.sweepOne(ctx, &dep); ok {
				mu.Lock()
				hashes = append(hashes, txHash)
				routed++
				mu.Unlock()
			}
			return nil // 失败在 sweepOne 里消化，不让 errgroup 短路
		})
	}
	_ = g.Wait()

	result.TxHashes = hashes
	result.Routed = routed

	logger.Info(ctx, "🚀 编排完成",
		zap.Int("selected", len(deposits)),
		zap.Int("deployed", len(pendingIDs)),
		zap.Int("routed", routed))

	return result, nil
}

// sweepOne 归集单笔 deposit。
// 返回 (交易哈希, true) 表示这笔确认归集成功并已推进到 routed；
// 零余额、抢不到锁、交易失败都返回 false，状态保持不动。
func (s *RoutingService) sweepOne(ctx context.Context, d *domain.Deposit) (common.Hash, bool) {
	lockKey := fmt.Sprintf("router:sweep:%d", d.ID)
	release, ok, err := s.locker.Acquire(ctx, lockKey, s.lockTTL)
	if err != nil {
		metrics.SweepTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "抢归集锁出错", zap.Int64("id", d.ID), zap.Error(err))
		return common.Hash{}, false
	}
	if !ok {
		// 别的编排轮正在处理这笔，跳过即可
		metrics.SweepTotal.WithLabelValues("locked").Inc()
		logger.Warn(ctx, "归集锁被占用，跳过", zap.Int64("id", d.ID))
		return common.Hash{}, false
	}
	defer release()

	txHash, err := s.chain.TransferOut(ctx, s.signer, d.Address, s.treasury)
	if err != nil {
		// 单笔失败被隔离：记日志、状态不动，等下一轮再试
		metrics.SweepTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "❌ 归集失败",
			zap.Int64("id", d.ID),
			zap.String("proxy", d.Address.Hex()),
			zap.Error(err))
		return common.Hash{}, false
	}

	// 零哈希哨兵 = 余额为零的 no-op，不算成功归集也不算失败
	if txHash == (common.Hash{}) {
		metrics.SweepTotal.WithLabelValues("empty").Inc()
		return common.Hash{}, false
	}

	// 单行原子推进 proxied -> routed 并清空余额快照
	if err := s.repo.UpdateStatusSingle(ctx, d.ID, domain.DepositStatusProxied, domain.DepositStatusRouted, true); err != nil {
		// 链上已经归集成功但状态没写进去：下一轮会发现余额为零做 no-op，
		// 状态推进靠守卫条件保持幂等，这里只能记日志
		metrics.SweepTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "归集成功但状态落库失败",
			zap.Int64("id", d.ID),
			zap.String("tx", txHash.Hex()),
			zap.Error(err))
		return common.Hash{}, false
	}

	metrics.SweepTotal.WithLabelValues("routed").Inc()
	logger.Info(ctx, "✅ 归集成功",
		zap.Int64("id", d.ID),
		zap.String("proxy", d.Address.Hex()),
		zap.String("tx", txHash.Hex()))

	return txHash, true
}
