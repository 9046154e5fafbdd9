package service_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundrouter.com/internal/core/service"
	"fundrouter.com/internal/domain"
)

func newDepositFixture(t *testing.T) (*service.DepositService, domain.DepositRepo) {
	t.Helper()
	repo := newTestRepo(t)
	chain := newFakeChain()
	return service.NewDepositService(repo, service.NewAddressService(chain, testSigner)), repo
}

func TestDepositCreate(t *testing.T) {
	ctx := context.Background()
	svc, repo := newDepositFixture(t)

	user := common.HexToAddress("0x7777777777777777777777777777777777777777")
	dep, err := svc.Create(ctx, user)
	require.NoError(t, err)

	assert.NotZero(t, dep.ID)
	assert.Equal(t, user, dep.User)
	assert.Equal(t, service.DeriveSalt(user), dep.Salt)
	assert.Equal(t, domain.DepositStatusPending, dep.Status)
	assert.Nil(t, dep.Balance, "新建意向还没有余额快照")

	// 落库的内容和返回值一致
	rows, err := repo.Query(ctx, domain.DepositFilter{User: &user})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, dep.Address, rows[0].Address)
}

func TestDepositCreateRejectsZeroUser(t *testing.T) {
	svc, _ := newDepositFixture(t)

	_, err := svc.Create(context.Background(), common.Address{})
	require.Error(t, err)
}

// TestDepositListLimits limit 不传给默认值，超上限截断
func TestDepositListLimits(t *testing.T) {
	ctx := context.Background()
	svc, _ := newDepositFixture(t)

	// 造 15 条不同 user 的意向
	for i := 0; i < 15; i++ {
		user := common.BigToAddress(common.Big1)
		user[0] = byte(i + 1)
		_, err := svc.Create(ctx, user)
		require.NoError(t, err)
	}

	// 不传 limit -> 默认 10 条
	rows, err := svc.List(ctx, domain.DepositFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 10)

	// limit 超过上限 -> 截断到 100 (这里只有 15 条，全量返回)
	rows, err = svc.List(ctx, domain.DepositFilter{Limit: 10000})
	require.NoError(t, err)
	assert.Len(t, rows, 15)

	// offset 翻页
	rows, err = svc.List(ctx, domain.DepositFilter{Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestDepositListFilterByStatus(t *testing.T) {
	ctx := context.Background()
	svc, repo := newDepositFixture(t)

	d1, err := svc.Create(ctx, common.HexToAddress("0x8888888888888888888888888888888888888881"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, common.HexToAddress("0x8888888888888888888888888888888888888882"))
	require.NoError(t, err)

	// 手动推进一条到 proxied
	require.NoError(t, repo.UpdateStatusSingle(ctx, d1.ID, domain.DepositStatusPending, domain.DepositStatusProxied, false))

	rows, err := svc.List(ctx, domain.DepositFilter{Statuses: []domain.DepositStatus{domain.DepositStatusProxied}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, d1.ID, rows[0].ID)
}
