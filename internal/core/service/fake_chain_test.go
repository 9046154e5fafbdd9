package service_test

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fundrouter.com/internal/domain"
	"fundrouter.com/internal/infra/persistence"
	"fundrouter.com/pkg/logger"
)

// fakeSigner 固定地址的假签名者。
// 假链不真的发交易，SignTx 原样返回即可
type fakeSigner struct {
	addr common.Address
}

func (s *fakeSigner) Address() common.Address { return s.addr }

func (s *fakeSigner) SignTx(tx *types.Transaction, _ *big.Int) (*types.Transaction, error) {
	return tx, nil
}

// fakeChain 内存里模拟的链：余额表 + 已部署代理集合。
// 行为和真实适配器对齐：部署幂等、零余额归集返回零哈希哨兵
type fakeChain struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	deployed map[common.Address]bool

	// 故障注入
	deployErr  error                   // DeployProxies 整体失败
	revertOn   map[common.Address]bool // 指定代理的归集交易 revert
	balanceErr map[common.Address]bool // 指定地址的余额查询失败
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances:   make(map[common.Address]*big.Int),
		deployed:   make(map[common.Address]bool),
		revertOn:   make(map[common.Address]bool),
		balanceErr: make(map[common.Address]bool),
	}
}

var _ domain.ChainClient = (*fakeChain)(nil)

// fund 给代理地址充值 (模拟用户打款)
func (c *fakeChain) fund(addr common.Address, wei int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = big.NewInt(wei)
}

func (c *fakeChain) balanceOf(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bal, ok := c.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (c *fakeChain) isDeployed(addr common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deployed[addr]
}

func (c *fakeChain) GetBalance(_ context.Context, addr common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balanceErr[addr] {
		return nil, fmt.Errorf("rpc timeout for %s", addr.Hex())
	}
	if bal, ok := c.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

// PredictAddresses 确定性推导：keccak256(caller || salt) 取后 20 字节。
// 和真链一样，同一个 (caller, salt) 永远得到同一个地址
func (c *fakeChain) PredictAddresses(_ context.Context, caller common.Address, salts []common.Hash) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(salts))
	for _, salt := range salts {
		h := crypto.Keccak256(caller.Bytes(), salt.Bytes())
		addrs = append(addrs, common.BytesToAddress(h[12:]))
	}
	return addrs, nil
}

func (c *fakeChain) DeployProxies(ctx context.Context, signer domain.TxSigner, salts []common.Hash) ([]common.Address, error) {
	if c.deployErr != nil {
		return nil, c.deployErr
	}

	addrs, _ := c.PredictAddresses(ctx, signer.Address(), salts)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, addr := range addrs {
		c.deployed[addr] = true // 重复部署是 no-op，保持幂等
	}
	return addrs, nil
}

func (c *fakeChain) TransferOut(_ context.Context, _ domain.TxSigner, proxy, treasury common.Address) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.revertOn[proxy] {
		return common.Hash{}, fmt.Errorf("execution reverted for %s", proxy.Hex())
	}

	bal, ok := c.balances[proxy]
	if !ok || bal.Sign() == 0 {
		// 零余额哨兵
		return common.Hash{}, nil
	}

	// 全额划转到金库
	cur, ok := c.balances[treasury]
	if !ok {
		cur = big.NewInt(0)
	}
	c.balances[treasury] = new(big.Int).Add(cur, bal)
	c.balances[proxy] = big.NewInt(0)

	return crypto.Keccak256Hash(proxy.Bytes(), treasury.Bytes(), bal.Bytes()), nil
}

// newTestRepo 起一个测试专用的内存 sqlite 仓储。
// 每个测试用独立的库名，互相不串数据
func newTestRepo(t *testing.T) *persistence.Repo {
	t.Helper()
	logger.Init("test", "info")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}

	repo := persistence.New(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return repo
}
