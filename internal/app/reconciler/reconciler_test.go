package reconciler_test

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fundrouter.com/internal/app/reconciler"
	"fundrouter.com/internal/core/service"
	"fundrouter.com/internal/domain"
	"fundrouter.com/internal/infra/persistence"
	"fundrouter.com/pkg/logger"
	"fundrouter.com/pkg/safe"
)

// countingChain 记录余额被查了几次的假链
type countingChain struct {
	mu      sync.Mutex
	queries int
}

func (c *countingChain) GetBalance(_ context.Context, _ common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++
	return big.NewInt(7), nil
}

func (c *countingChain) PredictAddresses(_ context.Context, caller common.Address, salts []common.Hash) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(salts))
	for _, salt := range salts {
		h := crypto.Keccak256(caller.Bytes(), salt.Bytes())
		addrs = append(addrs, common.BytesToAddress(h[12:]))
	}
	return addrs, nil
}

func (c *countingChain) DeployProxies(context.Context, domain.TxSigner, []common.Hash) ([]common.Address, error) {
	return nil, nil
}

func (c *countingChain) TransferOut(context.Context, domain.TxSigner, common.Address, common.Address) (common.Hash, error) {
	return common.Hash{}, nil
}

func (c *countingChain) queryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries
}

// TestLoopTicksAndStops 循环按间隔刷新余额，ctx 取消后干净退出
func TestLoopTicksAndStops(t *testing.T) {
	logger.Init("test", "info")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	repo := persistence.New(db)
	require.NoError(t, repo.AutoMigrate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	id, err := repo.Insert(ctx, &domain.Deposit{
		User:    user,
		Salt:    crypto.Keccak256Hash(user.Bytes()),
		Address: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Status:  domain.DepositStatusPending,
	})
	require.NoError(t, err)

	chain := &countingChain{}
	loop := reconciler.New(service.NewReconcileService(repo, chain), 10*time.Millisecond)

	done := make(chan struct{})
	safe.Go(func() {
		loop.Start(ctx)
		close(done)
	})

	// 等几个 tick
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("循环没有在 ctx 取消后退出")
	}

	assert.Greater(t, chain.queryCount(), 1, "至少跑过两轮对账")

	// 快照确实被刷进库里
	rows, err := repo.Query(context.Background(), domain.DepositFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, id, rows[0].ID)
	require.NotNil(t, rows[0].Balance)
	assert.Equal(t, "7", rows[0].Balance.String())
}

// TestLoopDefaultInterval 非法间隔回落到默认值
func TestLoopDefaultInterval(t *testing.T) {
	loop := reconciler.New(nil, 0)
	assert.NotNil(t, loop)
}
