package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"fundrouter.com/internal/domain"
	"fundrouter.com/pkg/logger"
	"fundrouter.com/pkg/metrics"
)

const (
	defaultQueryLimit = 10
	maxQueryLimit     = 100
)

// DepositService 充值意向的创建和查询
type DepositService struct {
	repo  domain.DepositRepo
	addrs *AddressService
}

func NewDepositService(repo domain.DepositRepo, addrs *AddressService) *DepositService {
	return &DepositService{repo: repo, addrs: addrs}
}

// Create 新建充值意向：推导地址 -> 以 pending 入库。
// address 只在这里算一次，之后不再重算
func (s *DepositService) Create(ctx context.Context, user common.Address) (*domain.Deposit, error) {
	salt, address, err := s.addrs.DeriveAddress(ctx, user)
	if err != nil {
		return nil, err
	}

	d := &domain.Deposit{
		User:    user,
		Salt:    salt,
		Address: address,
		Status:  domain.DepositStatusPending,
	}

	id, err := s.repo.Insert(ctx, d)
	if err != nil {
		return nil, err
	}
	d.ID = id

	metrics.DepositCreatedTotal.Inc()
	logger.Info(ctx, "💰 充值意向已创建",
		zap.Int64("id", id),
		zap.String("user", user.Hex()),
		zap.String("address", address.Hex()))

	return d, nil
}

// List 按条件查询，limit 做默认值和上限兜底
func (s *DepositService) List(ctx context.Context, f domain.DepositFilter) ([]domain.Deposit, error) {
	if f.Limit <= 0 {
		f.Limit = defaultQueryLimit
	}
	if f.Limit > maxQueryLimit {
		f.Limit = maxQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.Query(ctx, f)
}
