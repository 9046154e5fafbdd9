package service_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundrouter.com/internal/core/service"
	"fundrouter.com/pkg/xerr"
)

// TestDeriveSaltDeterministic 同一个 user 永远得到同一个盐，不同 user 不撞
func TestDeriveSaltDeterministic(t *testing.T) {
	u1 := common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	u2 := common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")

	assert.Equal(t, service.DeriveSalt(u1), service.DeriveSalt(u1))
	assert.NotEqual(t, service.DeriveSalt(u1), service.DeriveSalt(u2))
	assert.NotEqual(t, common.Hash{}, service.DeriveSalt(u1))
}

func TestDeriveAddressDeterministic(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain()
	svc := service.NewAddressService(chain, testSigner)

	user := common.HexToAddress("0x1234567890123456789012345678901234567890")

	salt1, addr1, err := svc.DeriveAddress(ctx, user)
	require.NoError(t, err)
	salt2, addr2, err := svc.DeriveAddress(ctx, user)
	require.NoError(t, err)

	// 纯读操作，重复调用结果一致
	assert.Equal(t, salt1, salt2)
	assert.Equal(t, addr1, addr2)
	assert.NotEqual(t, common.Address{}, addr1)
}

// TestDeriveAddressCallerBound 预测结果绑定在签名者地址上：
// 换一个 caller，同一个盐推导出的地址就不一样了
func TestDeriveAddressCallerBound(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain()
	user := common.HexToAddress("0x1234567890123456789012345678901234567890")

	_, addr1, err := service.NewAddressService(chain, testSigner).DeriveAddress(ctx, user)
	require.NoError(t, err)

	otherSigner := &fakeSigner{addr: common.HexToAddress("0x00000000000000000000000000000000000000BB")}
	_, addr2, err := service.NewAddressService(chain, otherSigner).DeriveAddress(ctx, user)
	require.NoError(t, err)

	assert.NotEqual(t, addr1, addr2)
}

func TestDeriveAddressRejectsZeroUser(t *testing.T) {
	svc := service.NewAddressService(newFakeChain(), testSigner)

	_, _, err := svc.DeriveAddress(context.Background(), common.Address{})
	require.Error(t, err)
	assert.True(t, xerr.IsCode(err, xerr.RequestParamsError))
}
