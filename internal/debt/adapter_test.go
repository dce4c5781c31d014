package debt

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosisguild/siphon/internal/encoding"
	"github.com/gnosisguild/siphon/internal/fixedpoint"
)

var (
	testOwner    = common.HexToAddress("0x0000000000000000000000000000000000000A11")
	testStranger = common.HexToAddress("0x0000000000000000000000000000000000000B22")
	testAsset    = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	testDaiJoin  = common.HexToAddress("0x9759A6Ac90977b93B58547b4A71c78317f391A28")
	testManager  = common.HexToAddress("0x5ef30b9986345249bc32d8928B7ee64DE9435E39")
	testProxy    = common.HexToAddress("0xD758500ddEc05172aaA035911387C8E0e789CF6a")
	testActions  = common.HexToAddress("0x82ecD135Dce65Fbc6DbdD0e4237E0AF93FFD5038")
)

func mustInt(t *testing.T, s string) sdkmath.Int {
	t.Helper()
	v, ok := sdkmath.NewIntFromString(s)
	require.True(t, ok, "bad integer literal %q", s)
	return v
}

// Fixed vat/spotter snapshot: ~73.8k collateral at a 1400 spot*mat price
// against ~24.79M of accrued debt.
func fixtureState(t *testing.T) VaultState {
	t.Helper()
	return VaultState{
		Ink:  mustInt(t, "73838175926210955510648"),
		Art:  mustInt(t, "22843164136680524273192955"),
		Rate: mustInt(t, "1085236284631994047918634813"),
		Spot: mustInt(t, "1037037037037037037037035624335"),
		Mat:  mustInt(t, "1350000000000000000000000000"),
	}
}

type stubReader struct {
	state VaultState
	err   error
}

func (s *stubReader) VaultState(context.Context) (VaultState, error) {
	if s.err != nil {
		return VaultState{}, s.err
	}
	return s.state, nil
}

func fixtureAdapter(t *testing.T, reader VaultReader) *Adapter {
	t.Helper()
	adapter, err := New(Config{
		Asset:        testAsset,
		CDPManager:   testManager,
		DaiJoin:      testDaiJoin,
		DSProxy:      testProxy,
		ProxyActions: testActions,
		CDP:          27353,
		Owner:        testOwner,
		RatioTarget:  mustInt(t, "4586919454964052515806212538"),
		RatioTrigger: mustInt(t, "4211626045012448219058431512"),
	}, reader)
	require.NoError(t, err)
	return adapter
}

func TestRatioReturnsExactValue(t *testing.T) {
	adapter := fixtureAdapter(t, &stubReader{state: fixtureState(t)})

	ratio, err := adapter.Ratio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4169926777240047741642011399", ratio.String())
}

func TestDeltaReturnsExactValue(t *testing.T) {
	adapter := fixtureAdapter(t, &stubReader{state: fixtureState(t)})

	delta, err := adapter.Delta(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2479023057692998402742223", delta.String())
}

func TestDeltaIsZeroAtOrAboveTarget(t *testing.T) {
	state := fixtureState(t)
	// doubling collateral puts the ratio well above target
	state.Ink = state.Ink.MulRaw(2)
	adapter := fixtureAdapter(t, &stubReader{state: state})

	delta, err := adapter.Delta(context.Background())
	require.NoError(t, err)
	assert.True(t, delta.IsZero())
}

// Applying the computed delta as a repayment must land the ratio at or
// above the target.
func TestDeltaRepaymentRestoresTarget(t *testing.T) {
	state := fixtureState(t)
	reader := &stubReader{state: state}
	adapter := fixtureAdapter(t, reader)
	ctx := context.Background()

	delta, err := adapter.Delta(ctx)
	require.NoError(t, err)
	require.True(t, delta.IsPositive())

	// wipe: repayment reduces normalized debt by amount*RAY/rate
	dart := delta.Mul(fixedpoint.Ray()).Quo(state.Rate)
	reader.state.Art = state.Art.Sub(dart)

	after, err := adapter.Ratio(ctx)
	require.NoError(t, err)
	assert.True(t, after.GTE(adapter.RatioTarget()),
		"ratio %s below target %s after repayment", after, adapter.RatioTarget())

	deltaAfter, err := adapter.Delta(ctx)
	require.NoError(t, err)
	assert.True(t, deltaAfter.IsZero())
}

func TestNeedsRebalancingHysteresis(t *testing.T) {
	state := fixtureState(t)
	reader := &stubReader{state: state}
	adapter := fixtureAdapter(t, reader)
	ctx := context.Background()

	// fixture ratio sits below the trigger
	needs, err := adapter.NeedsRebalancing(ctx)
	require.NoError(t, err)
	assert.True(t, needs)

	// between trigger and target: inside the hysteresis band, no trigger
	reader.state.Ink = state.Ink.MulRaw(105).QuoRaw(100)
	ratio, err := adapter.Ratio(ctx)
	require.NoError(t, err)
	require.True(t, ratio.GT(adapter.RatioTrigger()))
	require.True(t, ratio.LT(adapter.RatioTarget()))

	needs, err = adapter.NeedsRebalancing(ctx)
	require.NoError(t, err)
	assert.False(t, needs)

	// but delta still aims at the higher target
	delta, err := adapter.Delta(ctx)
	require.NoError(t, err)
	assert.True(t, delta.IsPositive())
}

func TestOracleFailurePropagates(t *testing.T) {
	oracleErr := errors.New("vat call reverted")
	adapter := fixtureAdapter(t, &stubReader{err: oracleErr})

	_, err := adapter.Ratio(context.Background())
	require.ErrorIs(t, err, oracleErr)

	_, err = adapter.Delta(context.Background())
	require.ErrorIs(t, err, oracleErr)
}

func TestInvalidOracleStateIsHardError(t *testing.T) {
	state := fixtureState(t)
	state.Art = sdkmath.ZeroInt()
	adapter := fixtureAdapter(t, &stubReader{state: state})

	_, err := adapter.Ratio(context.Background())
	require.ErrorIs(t, err, ErrInvalidOracleState)
}

func TestPaymentInstructionsEncoding(t *testing.T) {
	adapter := fixtureAdapter(t, &stubReader{state: fixtureState(t)})
	amount := mustInt(t, "2479023057692998402742223")

	instructions, err := adapter.PaymentInstructions(amount)
	require.NoError(t, err)
	require.Len(t, instructions, 2)

	approve := instructions[0]
	assert.Equal(t, testAsset, approve.To)
	assert.True(t, approve.Value.IsZero())
	assert.Equal(t, encoding.ERC20.Methods["approve"].ID, approve.Data[:4])

	args, err := encoding.ERC20.Methods["approve"].Inputs.Unpack(approve.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, testDaiJoin, args[0].(common.Address))
	assert.Equal(t, amount.BigInt(), args[1])

	wipe := instructions[1]
	assert.Equal(t, testProxy, wipe.To)
	assert.Equal(t, encoding.DSProxy.Methods["execute"].ID, wipe.Data[:4])
}

func TestPaymentInstructionsRejectsNonPositiveAmount(t *testing.T) {
	adapter := fixtureAdapter(t, &stubReader{state: fixtureState(t)})

	_, err := adapter.PaymentInstructions(sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSettersAreOwnerGated(t *testing.T) {
	adapter := fixtureAdapter(t, &stubReader{state: fixtureState(t)})

	err := adapter.SetRatioTarget(testStranger, mustInt(t, "5000000000000000000000000000"))
	require.ErrorIs(t, err, ErrUnauthorized)
	err = adapter.SetRatioTrigger(testStranger, mustInt(t, "4300000000000000000000000000"))
	require.ErrorIs(t, err, ErrUnauthorized)

	target := mustInt(t, "5000000000000000000000000000")
	require.NoError(t, adapter.SetRatioTarget(testOwner, target))
	assert.Equal(t, target, adapter.RatioTarget())
}

func TestSettersEnforceOrdering(t *testing.T) {
	adapter := fixtureAdapter(t, &stubReader{state: fixtureState(t)})

	// target at or below trigger is rejected
	err := adapter.SetRatioTarget(testOwner, adapter.RatioTrigger())
	require.ErrorIs(t, err, ErrInvalidRatioBounds)

	// trigger at or above target is rejected
	err = adapter.SetRatioTrigger(testOwner, adapter.RatioTarget())
	require.ErrorIs(t, err, ErrInvalidRatioBounds)
}

func TestNewRejectsInvertedBounds(t *testing.T) {
	_, err := New(Config{
		Owner:        testOwner,
		RatioTarget:  mustInt(t, "4000000000000000000000000000"),
		RatioTrigger: mustInt(t, "4500000000000000000000000000"),
	}, &stubReader{})
	require.ErrorIs(t, err, ErrInvalidRatioBounds)
}
