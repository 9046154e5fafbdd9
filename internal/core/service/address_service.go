package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"fundrouter.com/internal/domain"
	"fundrouter.com/pkg/logger"
	"fundrouter.com/pkg/xerr"
)

// AddressService 确定性地址推导。
// 纯读操作：不上链、不写库，同一个 user 永远得到同一对 (salt, address)。
type AddressService struct {
	chain  domain.ChainClient
	signer domain.TxSigner // 预测必须用将来部署的同一个 caller
}

func NewAddressService(chain domain.ChainClient, signer domain.TxSigner) *AddressService {
	return &AddressService{chain: chain, signer: signer}
}

// DeriveSalt 盐 = keccak256(user)，user 到盐是单向且确定的
func DeriveSalt(user common.Address) common.Hash {
	return crypto.Keccak256Hash(user.Bytes())
}

// DeriveAddress 推导用户的专属收款地址
func (s *AddressService) DeriveAddress(ctx context.Context, user common.Address) (common.Hash, common.Address, error) {
	if user == (common.Address{}) {
		return common.Hash{}, common.Address{}, xerr.New(xerr.RequestParamsError, "user must not be the zero address")
	}

	salt := DeriveSalt(user)

	addrs, err := s.chain.PredictAddresses(ctx, s.signer.Address(), []common.Hash{salt})
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}
	if len(addrs) != 1 {
		return common.Hash{}, common.Address{}, fmt.Errorf("predict returned %d addresses, want 1", len(addrs))
	}

	logger.Debug(ctx, "地址推导完成",
		zap.String("user", user.Hex()),
		zap.String("salt", salt.Hex()),
		zap.String("address", addrs[0].Hex()))

	return salt, addrs[0], nil
}
