package simulations

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosisguild/siphon/internal/encoding"
	"github.com/gnosisguild/siphon/internal/types"
)

var (
	safeTestDai     = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	safeTestUsdx    = common.HexToAddress("0x0000000000000000000000000000000000007001")
	safeTestLPT     = common.HexToAddress("0x0000000000000000000000000000000000007002")
	safeTestPool    = common.HexToAddress("0x0000000000000000000000000000000000007003")
	safeTestRewards = common.HexToAddress("0x0000000000000000000000000000000000007004")
	safeTestAvatar  = common.HexToAddress("0x0000000000000000000000000000000000007005")
	safeTestUnknown = common.HexToAddress("0x0000000000000000000000000000000000007006")
)

func safeTestWad(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

func newSafeFixture(t *testing.T) (*SimSafe, *Bank, *StableSwapPool, *RewardsPool) {
	t.Helper()

	bank := NewBank()
	pool, err := NewStableSwapPool(PoolConfig{
		Amp:      200,
		FeeBps:   4,
		Tokens:   [2]common.Address{safeTestDai, safeTestUsdx},
		Decimals: [2]int{18, 18},
		LPToken:  safeTestLPT,
		Reserves: [2]sdkmath.Int{safeTestWad(2_000_000), safeTestWad(2_000_000)},
	}, bank)
	require.NoError(t, err)

	bank.Mint(safeTestLPT, safeTestAvatar, safeTestWad(100_000))
	rewards := NewRewardsPool(pool, bank)
	require.NoError(t, rewards.Stake(safeTestAvatar, safeTestWad(70_000)))

	safe := NewSimSafe(SafeConfig{
		Address:     safeTestAvatar,
		Asset:       safeTestDai,
		CurvePool:   safeTestPool,
		ConvexVault: safeTestRewards,
	}, bank, nil, pool, rewards)

	return safe, bank, pool, rewards
}

func TestExecuteRollsBackFailedBatch(t *testing.T) {
	safe, bank, pool, rewards := newSafeFixture(t)
	ctx := context.Background()

	unstake, err := encoding.PackWithdrawAndUnwrap(safeTestWad(50_000), false)
	require.NoError(t, err)
	reservesBefore := pool.Reserves()

	// the unstake on its own would land; the second instruction fails
	err = safe.Execute(ctx, []types.Instruction{
		types.NewCall(safeTestRewards, unstake),
		types.NewCall(safeTestUnknown, unstake),
	})
	require.ErrorIs(t, err, ErrUnknownTarget)

	// the landed instruction must not persist
	assert.Equal(t, safeTestWad(70_000), rewards.StakedBalance(safeTestAvatar))
	assert.Equal(t, safeTestWad(30_000), bank.BalanceOf(safeTestLPT, safeTestAvatar))
	assert.Equal(t, reservesBefore, pool.Reserves())
}

func TestExecuteRollsBackFailedExit(t *testing.T) {
	safe, bank, pool, rewards := newSafeFixture(t)
	ctx := context.Background()

	unstake, err := encoding.PackWithdrawAndUnwrap(safeTestWad(50_000), false)
	require.NoError(t, err)
	// exit more shares than even the unstake leaves in the wallet
	exit, err := encoding.PackRemoveLiquidityOneCoin(safeTestWad(500_000), 0, sdkmath.ZeroInt())
	require.NoError(t, err)

	err = safe.Execute(ctx, []types.Instruction{
		types.NewCall(safeTestRewards, unstake),
		types.NewCall(safeTestPool, exit),
	})
	require.Error(t, err)

	assert.Equal(t, safeTestWad(70_000), rewards.StakedBalance(safeTestAvatar))
	assert.Equal(t, safeTestWad(30_000), bank.BalanceOf(safeTestLPT, safeTestAvatar))
	assert.Equal(t, safeTestWad(2_000_000), pool.Reserves()[0])
	assert.True(t, bank.BalanceOf(safeTestDai, safeTestAvatar).IsZero())
}