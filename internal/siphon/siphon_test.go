package siphon

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosisguild/siphon/internal/debt"
	"github.com/gnosisguild/siphon/internal/liquidity"
	"github.com/gnosisguild/siphon/internal/simulations"
	"github.com/gnosisguild/siphon/internal/types"
)

var (
	testOwner    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	testStranger = common.HexToAddress("0x0000000000000000000000000000000000000bad")
	testDai      = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	testUsdx     = common.HexToAddress("0x0000000000000000000000000000000000006001")
	testLPT      = common.HexToAddress("0x0000000000000000000000000000000000006002")
	testPool     = common.HexToAddress("0x0000000000000000000000000000000000006003")
	testRewards  = common.HexToAddress("0x0000000000000000000000000000000000006004")
	testSafe     = common.HexToAddress("0x0000000000000000000000000000000000006005")
	testWhale    = common.HexToAddress("0x0000000000000000000000000000000000006006")
	testProxy    = common.HexToAddress("0x0000000000000000000000000000000000006007")
	testActions  = common.HexToAddress("0x0000000000000000000000000000000000006008")
	testManager  = common.HexToAddress("0x0000000000000000000000000000000000006009")
	testDaiJoin  = common.HexToAddress("0x000000000000000000000000000000000000600a")
)

const tubeName = "maker-curve"

func mustInt(t *testing.T, s string) sdkmath.Int {
	t.Helper()
	v, ok := sdkmath.NewIntFromString(s)
	require.True(t, ok, "bad integer literal %s", s)
	return v
}

func wad(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

// undercollateralized vault fixture: ratio sits below the trigger
func fixtureVaultState(t *testing.T) debt.VaultState {
	t.Helper()
	return debt.VaultState{
		Ink:  mustInt(t, "73838175926210955510648"),
		Art:  mustInt(t, "22843164136680524273192955"),
		Rate: mustInt(t, "1085236284631994047918634813"),
		Spot: mustInt(t, "1037037037037037037037035624335"),
		Mat:  mustInt(t, "1350000000000000000000000000"),
	}
}

type fixture struct {
	dispatcher *Siphon
	vat        *simulations.MockVat
	bank       *simulations.Bank
	pool       *simulations.StableSwapPool
	rewards    *simulations.RewardsPool
	safe       *simulations.SimSafe
	debt       *debt.Adapter
	liquidity  *liquidity.Adapter
	target     sdkmath.Int
}

// newFixture stands up the whole simulated stack: a 20M/20M lending pool
// where the avatar holds 5M LP shares (3.5M staked) and an
// undercollateralized vault paired with it under one tube.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	bank := simulations.NewBank()
	pool, err := simulations.NewStableSwapPool(simulations.PoolConfig{
		Amp:      200,
		FeeBps:   4,
		Tokens:   [2]common.Address{testDai, testUsdx},
		Decimals: [2]int{18, 18},
		LPToken:  testLPT,
		Reserves: [2]sdkmath.Int{wad(20_000_000), wad(20_000_000)},
	}, bank)
	require.NoError(t, err)

	supply := pool.TotalSupply()
	bank.Mint(testLPT, testSafe, wad(5_000_000))
	bank.Mint(testLPT, testWhale, supply.Sub(wad(5_000_000)))

	rewards := simulations.NewRewardsPool(pool, bank)
	require.NoError(t, rewards.Stake(testSafe, wad(3_500_000)))

	vat := simulations.NewMockVat(fixtureVaultState(t))
	target := mustInt(t, "4586919454964052515806212538")
	trigger := mustInt(t, "4211626045012448219058431512")
	debtAdapter, err := debt.New(debt.Config{
		Asset:        testDai,
		CDPManager:   testManager,
		DaiJoin:      testDaiJoin,
		DSProxy:      testProxy,
		ProxyActions: testActions,
		CDP:          1,
		Owner:        testOwner,
		RatioTarget:  target,
		RatioTrigger: trigger,
	}, vat)
	require.NoError(t, err)

	client := simulations.NewLendingClient(pool, rewards, bank, testSafe, 0)
	strategy, err := liquidity.NewLendingPoolStrategy(liquidity.LendingPoolConfig{
		Pool:      testPool,
		Rewards:   testRewards,
		Reference: testDai,
		Safe:      testSafe,
		CoinIndex: 0,
	}, client)
	require.NoError(t, err)
	liquidityAdapter, err := liquidity.New(liquidity.Config{
		Owner:                testOwner,
		ParityToleranceBps:   20,
		SlippageToleranceBps: 100,
	}, strategy)
	require.NoError(t, err)

	safe := simulations.NewSimSafe(simulations.SafeConfig{
		Address:     testSafe,
		Asset:       testDai,
		DSProxy:     testProxy,
		CurvePool:   testPool,
		ConvexVault: testRewards,
	}, bank, vat, pool, rewards)

	dispatcher, err := New(testOwner, safe)
	require.NoError(t, err)
	require.NoError(t, dispatcher.ConnectTube(testOwner, tubeName, debtAdapter, liquidityAdapter))

	return &fixture{
		dispatcher: dispatcher,
		vat:        vat,
		bank:       bank,
		pool:       pool,
		rewards:    rewards,
		safe:       safe,
		debt:       debtAdapter,
		liquidity:  liquidityAdapter,
		target:     target,
	}
}

func TestRunRestoresTargetRatio(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	balanceBefore, err := f.liquidity.Balance(ctx)
	require.NoError(t, err)

	result, err := f.dispatcher.Run(ctx, tubeName)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRebalance, result.Outcome)

	// the repayment was sized from the measured output and restored the
	// position past its target
	assert.True(t, result.AmountOut.GTE(result.Delta), "received %s, delta %s", result.AmountOut, result.Delta)
	assert.True(t, result.RatioAfter.GTE(f.target), "ratio %s, target %s", result.RatioAfter, f.target)
	assert.True(t, result.RatioAfter.GT(result.RatioBefore))
	assert.Equal(t, 4, result.Instructions) // unstake, exit, approve, wipe

	balanceAfter, err := f.liquidity.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balanceAfter.LT(balanceBefore))

	// a second run finds the position healthy
	result, err = f.dispatcher.Run(ctx, tubeName)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSkipped, result.Outcome)
}

func TestRunSkipsHealthyPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// drop the bounds below the live ratio
	require.NoError(t, f.debt.SetRatioTrigger(testOwner, mustInt(t, "4000000000000000000000000000")))
	require.NoError(t, f.debt.SetRatioTarget(testOwner, mustInt(t, "4100000000000000000000000000")))

	stakedBefore := f.rewards.StakedBalance(testSafe)
	result, err := f.dispatcher.Run(ctx, tubeName)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSkipped, result.Outcome)
	assert.Equal(t, result.RatioBefore, result.RatioAfter)
	assert.Equal(t, stakedBefore, f.rewards.StakedBalance(testSafe))
}

func TestRunBlockedBySandwichedPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// attacker pushes the paired stable above parity before our run
	f.bank.Mint(testDai, testWhale, wad(15_000_000))
	_, err := f.pool.Swap(0, 1, wad(15_000_000), testWhale)
	require.NoError(t, err)

	ratioBefore, err := f.debt.Ratio(ctx)
	require.NoError(t, err)

	result, err := f.dispatcher.Run(ctx, tubeName)
	require.ErrorIs(t, err, liquidity.ErrWithdrawalBlocked)
	assert.Equal(t, types.OutcomeBlocked, result.Outcome)

	// nothing executed: debt and position untouched
	ratioAfter, err := f.debt.Ratio(ctx)
	require.NoError(t, err)
	assert.Equal(t, ratioBefore, ratioAfter)
	assert.Equal(t, wad(3_500_000), f.rewards.StakedBalance(testSafe))
	assert.Equal(t, wad(1_500_000), f.bank.BalanceOf(testLPT, testSafe))
}

func TestRunRecoversWhenParityRestored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bank.Mint(testDai, testWhale, wad(15_000_000))
	out, err := f.pool.Swap(0, 1, wad(15_000_000), testWhale)
	require.NoError(t, err)

	_, err = f.dispatcher.Run(ctx, tubeName)
	require.ErrorIs(t, err, liquidity.ErrWithdrawalBlocked)

	// the attacker's position unwinds and the pool re-pegs
	_, err = f.pool.Swap(1, 0, out, testWhale)
	require.NoError(t, err)

	inParity, err := f.liquidity.IsInParity(ctx)
	require.NoError(t, err)
	require.True(t, inParity)

	result, err := f.dispatcher.Run(ctx, tubeName)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRebalance, result.Outcome)
	assert.True(t, result.RatioAfter.GTE(f.target))

	needs, err := f.debt.NeedsRebalancing(ctx)
	require.NoError(t, err)
	assert.False(t, needs)

	result, err = f.dispatcher.Run(ctx, tubeName)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSkipped, result.Outcome)
}

func TestRunNoOpWithoutLiquidity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// drain the position's shares away
	require.NoError(t, f.rewards.WithdrawAndUnwrap(testSafe, wad(3_500_000)))
	require.NoError(t, f.bank.Burn(testLPT, testSafe, wad(5_000_000)))

	ratioBefore, err := f.debt.Ratio(ctx)
	require.NoError(t, err)

	result, err := f.dispatcher.Run(ctx, tubeName)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeNoOp, result.Outcome)

	ratioAfter, err := f.debt.Ratio(ctx)
	require.NoError(t, err)
	assert.Equal(t, ratioBefore, ratioAfter)
}

func TestRunUnknownTube(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatcher.Run(context.Background(), "no-such-tube")
	require.ErrorIs(t, err, ErrTubeNotFound)
}

// failingExecutor reads balances through the real safe but refuses to
// execute anything.
type failingExecutor struct {
	inner *simulations.SimSafe
}

func (f *failingExecutor) Execute(ctx context.Context, instructions []types.Instruction) error {
	return errors.New("execution reverted")
}

func (f *failingExecutor) TokenBalance(ctx context.Context, token common.Address) (sdkmath.Int, error) {
	return f.inner.TokenBalance(ctx, token)
}

func TestRunAbortsWhenExecutionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dispatcher, err := New(testOwner, &failingExecutor{inner: f.safe})
	require.NoError(t, err)
	require.NoError(t, dispatcher.ConnectTube(testOwner, tubeName, f.debt, f.liquidity))

	ratioBefore, err := f.debt.Ratio(ctx)
	require.NoError(t, err)

	result, err := dispatcher.Run(ctx, tubeName)
	require.Error(t, err)
	assert.Equal(t, types.OutcomeFailed, result.Outcome)

	ratioAfter, err := f.debt.Ratio(ctx)
	require.NoError(t, err)
	assert.Equal(t, ratioBefore, ratioAfter)
}

func TestConnectTubeIsOwnerGated(t *testing.T) {
	f := newFixture(t)

	err := f.dispatcher.ConnectTube(testStranger, "another", f.debt, f.liquidity)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestConnectTubeRejectsDuplicates(t *testing.T) {
	f := newFixture(t)

	err := f.dispatcher.ConnectTube(testOwner, tubeName, f.debt, f.liquidity)
	require.ErrorIs(t, err, ErrTubeExists)
}

func TestConnectTubeValidatesInputs(t *testing.T) {
	f := newFixture(t)

	err := f.dispatcher.ConnectTube(testOwner, "", f.debt, f.liquidity)
	require.ErrorIs(t, err, ErrEmptyTubeName)

	err = f.dispatcher.ConnectTube(testOwner, "another", nil, f.liquidity)
	require.ErrorIs(t, err, ErrNilAdapter)

	err = f.dispatcher.ConnectTube(testOwner, "another", f.debt, nil)
	require.ErrorIs(t, err, ErrNilAdapter)
}

func TestDisconnectTube(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.dispatcher.DisconnectTube(testStranger, tubeName), ErrUnauthorized)
	require.NoError(t, f.dispatcher.DisconnectTube(testOwner, tubeName))
	assert.Empty(t, f.dispatcher.Tubes())

	_, err := f.dispatcher.Run(context.Background(), tubeName)
	require.ErrorIs(t, err, ErrTubeNotFound)
}
