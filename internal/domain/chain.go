package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxSigner 显式的签名能力。不持有进程级全局私钥，
// 由调用方在调用链上把签名者传进来，测试时可以整体替换。
type TxSigner interface {
	// Address 签名者地址 (地址预测和部署必须用同一个 caller)
	Address() common.Address
	// SignTx 对交易签名
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// ChainClient 屏蔽链上细节的适配器接口
type ChainClient interface {
	// GetBalance 查询地址余额 (wei)
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)

	// PredictAddresses 只读模拟，给定盐预测代理地址。
	// caller 必须等于之后部署时的签名者地址，否则预测结果和实际部署对不上。
	PredictAddresses(ctx context.Context, caller common.Address, salts []common.Hash) ([]common.Address, error)

	// DeployProxies 批量部署代理合约:
	// 先过滤掉已有字节码的盐 (幂等跳过)，再模拟拿到完整地址集合，
	// 最后真实上链并等待确认。交易 revert 时返回错误。
	// 没有需要部署的盐时直接返回，不发交易。
	DeployProxies(ctx context.Context, signer TxSigner, salts []common.Hash) ([]common.Address, error)

	// TransferOut 把代理地址上的全部余额归集到金库。
	// 余额为零时返回零哈希哨兵值，不发交易；交易 revert 时返回错误。
	TransferOut(ctx context.Context, signer TxSigner, proxy, treasury common.Address) (common.Hash, error)
}
