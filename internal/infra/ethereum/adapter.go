package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	goeth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"fundrouter.com/internal/domain"
	"fundrouter.com/pkg/logger"
	"fundrouter.com/pkg/xerr"
)

// 确定性部署合约: 预测 + 批量部署
const deployerABI = `[
	{"type":"function","name":"calculateDestinationAddresses","stateMutability":"view","inputs":[{"name":"salts","type":"bytes32[]"}],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"deployMultiple","stateMutability":"nonpayable","inputs":[{"name":"salts","type":"bytes32[]"}],"outputs":[{"name":"","type":"address[]"}]}
]`

// 代理合约上的归集入口
const routerABI = `[
	{"type":"function","name":"transferFunds","stateMutability":"nonpayable","inputs":[{"name":"etherAmount","type":"uint256"},{"name":"tokens","type":"address[]"},{"name":"amounts","type":"uint256[]"},{"name":"treasuryAddress","type":"address"}],"outputs":[]}
]`

type Adapter struct {
	client      *ethclient.Client
	chainID     *big.Int
	deployer    common.Address // DeterministicProxyDeployer 合约地址
	deployerAbi abi.ABI
	routerAbi   abi.ABI
}

// 确保实现接口
var _ domain.ChainClient = (*Adapter)(nil)

func New(rpcURL string, deployer common.Address) (*Adapter, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, xerr.Newf(xerr.ChainRpcError, "dial rpc failed: %v", err)
	}
	// ChainID 启动时取一次 (签名防重放用)
	chainID, err := client.ChainID(context.Background())
	if err != nil {
		return nil, xerr.Newf(xerr.ChainRpcError, "get chain id failed: %v", err)
	}

	dAbi, err := abi.JSON(strings.NewReader(deployerABI))
	if err != nil {
		return nil, err
	}
	rAbi, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, err
	}

	return &Adapter{
		client:      client,
		chainID:     chainID,
		deployer:    deployer,
		deployerAbi: dAbi,
		routerAbi:   rAbi,
	}, nil
}

func (a *Adapter) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := a.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, xerr.Newf(xerr.ChainRpcError, "get balance failed: %v", err)
	}
	return bal, nil
}

// PredictAddresses 用 eth_call 模拟 calculateDestinationAddresses。
// from 必须填未来真正部署的 caller：确定性地址是 (部署合约, salt, caller) 的函数
func (a *Adapter) PredictAddresses(ctx context.Context, caller common.Address, salts []common.Hash) ([]common.Address, error) {
	data, err := a.deployerAbi.Pack("calculateDestinationAddresses", salts)
	if err != nil {
		return nil, err
	}

	out, err := a.client.CallContract(ctx, goeth.CallMsg{
		From: caller,
		To:   &a.deployer,
		Data: data,
	}, nil)
	if err != nil {
		return nil, xerr.Newf(xerr.ChainRpcError, "predict addresses call failed: %v", err)
	}

	res, err := a.deployerAbi.Unpack("calculateDestinationAddresses", out)
	if err != nil {
		return nil, err
	}
	addrs, ok := res[0].([]common.Address)
	if !ok || len(addrs) != len(salts) {
		return nil, fmt.Errorf("unexpected predict result: %d addresses for %d salts", len(addrs), len(salts))
	}
	return addrs, nil
}

func (a *Adapter) DeployProxies(ctx context.Context, signer domain.TxSigner, salts []common.Hash) ([]common.Address, error) {
	if len(salts) == 0 {
		return nil, nil
	}

	// 1. 预测全部地址，逐个查字节码，已经部署过的盐直接跳过 (幂等)
	predicted, err := a.PredictAddresses(ctx, signer.Address(), salts)
	if err != nil {
		return nil, err
	}

	var pending []common.Hash
	for i, addr := range predicted {
		code, err := a.client.CodeAt(ctx, addr, nil)
		if err != nil {
			return nil, xerr.Newf(xerr.ChainRpcError, "get code failed: %v", err)
		}
		if len(code) == 0 {
			pending = append(pending, salts[i])
		}
	}

	// 全部已部署，无事可做
	if len(pending) == 0 {
		logger.Info(ctx, "所有代理已部署，跳过上链", zap.Int("salts", len(salts)))
		return predicted, nil
	}

	data, err := a.deployerAbi.Pack("deployMultiple", pending)
	if err != nil {
		return nil, err
	}

	// 2. 先模拟一遍拿到完整结果地址
	out, err := a.client.CallContract(ctx, goeth.CallMsg{
		From: signer.Address(),
		To:   &a.deployer,
		Data: data,
	}, nil)
	if err != nil {
		return nil, xerr.Newf(xerr.ChainRpcError, "simulate deploy failed: %v", err)
	}
	res, err := a.deployerAbi.Unpack("deployMultiple", out)
	if err != nil {
		return nil, err
	}
	deployed, _ := res[0].([]common.Address)

	// 3. 真实上链并等待确认
	tx, err := a.sendAndWait(ctx, signer, a.deployer, big.NewInt(0), data)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "✅ 代理批量部署确认",
		zap.Int("deployed", len(pending)),
		zap.String("tx", tx.Hex()))

	return deployed, nil
}

func (a *Adapter) TransferOut(ctx context.Context, signer domain.TxSigner, proxy, treasury common.Address) (common.Hash, error) {
	// 先查余额，空代理直接返回零哈希哨兵，不发交易
	amount, err := a.client.BalanceAt(ctx, proxy, nil)
	if err != nil {
		return common.Hash{}, xerr.Newf(xerr.ChainRpcError, "get proxy balance failed: %v", err)
	}
	if amount.Sign() == 0 {
		return common.Hash{}, nil
	}

	logger.Info(ctx, "开始归集",
		zap.String("proxy", proxy.Hex()),
		zap.String("amount_wei", amount.String()))

	data, err := a.routerAbi.Pack("transferFunds", amount, []common.Address{}, []*big.Int{}, treasury)
	if err != nil {
		return common.Hash{}, err
	}

	txHash, err := a.sendAndWait(ctx, signer, proxy, big.NewInt(0), data)
	if err != nil {
		return common.Hash{}, err
	}
	return txHash, nil
}

// sendAndWait 构造 EIP-1559 交易 -> 签名 -> 广播 -> 等待回执。
// 回执 status 为失败时返回 TxRevertedError，调用方据此决定是整体失败还是单笔隔离。
func (a *Adapter) sendAndWait(ctx context.Context, signer domain.TxSigner, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	from := signer.Address()

	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, xerr.Newf(xerr.ChainRpcError, "get nonce failed: %v", err)
	}

	gasTipCap, err := a.client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, xerr.Newf(xerr.ChainRpcError, "get gas tip failed: %v", err)
	}
	head, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, xerr.Newf(xerr.ChainRpcError, "get header failed: %v", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		// 兼容没有 London 的链
		baseFee = big.NewInt(0)
	}
	// MaxFeePerGas = 2*BaseFee + Tip，防止下一个块 BaseFee 上涨导致交易被丢弃
	gasFeeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), gasTipCap)

	gasLimit, err := a.client.EstimateGas(ctx, goeth.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, xerr.Newf(xerr.ChainRpcError, "estimate gas failed: %v", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signedTx, err := signer.SignTx(tx, a.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx failed: %w", err)
	}

	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, xerr.Newf(xerr.ChainRpcError, "broadcast failed: %v", err)
	}

	// 一直等到确认。已广播的交易没法撤回，必须拿到结果才能汇报这笔的结局
	receipt, err := bind.WaitMined(ctx, a.client, signedTx)
	if err != nil {
		return common.Hash{}, xerr.Newf(xerr.ChainRpcError, "wait receipt failed: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, xerr.Newf(xerr.TxRevertedError, "tx reverted: %s", signedTx.Hash().Hex())
	}

	return signedTx.Hash(), nil
}
