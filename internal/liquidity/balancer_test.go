package liquidity

import (
	"context"
	"math"
	"math/big"
	"reflect"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosisguild/siphon/internal/encoding"
	"github.com/gnosisguild/siphon/internal/types"
)

var (
	balTestVault = common.HexToAddress("0x0000000000000000000000000000000000009001")
	balTestBPT   = common.HexToAddress("0x0000000000000000000000000000000000009002")
	balTestGauge = common.HexToAddress("0x0000000000000000000000000000000000009003")
	balTestSafe  = common.HexToAddress("0x0000000000000000000000000000000000009004")
	balTestDai   = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	balTestPool  = [32]byte{0x0b, 0xa1}
)

// mockBalancerClient backs both Balancer strategies with linear math:
// one BPT redeems for exactly one reference token.
type mockBalancerClient struct {
	bpt    sdkmath.Int
	staked sdkmath.Int
	liquid sdkmath.Int
	prices []sdkmath.Int
}

func (m *mockBalancerClient) BPTBalance(ctx context.Context) (sdkmath.Int, error) {
	return m.bpt, nil
}

func (m *mockBalancerClient) GaugeBalance(ctx context.Context) (sdkmath.Int, error) {
	return m.staked, nil
}

func (m *mockBalancerClient) SwapOutGivenIn(ctx context.Context, bptIn sdkmath.Int) (sdkmath.Int, error) {
	return bptIn, nil
}

func (m *mockBalancerClient) SwapInGivenOut(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error) {
	return amountOut, nil
}

func (m *mockBalancerClient) ExitOutGivenIn(ctx context.Context, bptIn sdkmath.Int) (sdkmath.Int, error) {
	return bptIn, nil
}

func (m *mockBalancerClient) ExitInGivenOut(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error) {
	return amountOut, nil
}

func (m *mockBalancerClient) LiquidStableBalance(ctx context.Context) (sdkmath.Int, error) {
	return m.liquid, nil
}

func (m *mockBalancerClient) StablePrices(ctx context.Context) ([]sdkmath.Int, error) {
	return m.prices, nil
}

func newBalancerMock() *mockBalancerClient {
	return &mockBalancerClient{
		bpt:    wad(30_000),
		staked: wad(70_000),
		liquid: wad(2_000_000),
		prices: []sdkmath.Int{fixedWad("1000000000000000000"), fixedWad("1000000000000000000")},
	}
}

func fixedWad(s string) sdkmath.Int {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		panic("bad integer literal " + s)
	}
	return v
}

func newBoostedAdapter(t *testing.T, client *mockBalancerClient) *Adapter {
	t.Helper()
	strategy, err := NewBoostedPoolStrategy(BoostedPoolConfig{
		Vault:     balTestVault,
		PoolID:    balTestPool,
		BPT:       balTestBPT,
		Gauge:     balTestGauge,
		Reference: balTestDai,
		Safe:      balTestSafe,
	}, client)
	require.NoError(t, err)
	adapter, err := New(Config{
		Owner:                testOwner,
		ParityToleranceBps:   20,
		SlippageToleranceBps: 50,
	}, strategy)
	require.NoError(t, err)
	return adapter
}

func newStableAdapter(t *testing.T, client *mockBalancerClient) *Adapter {
	t.Helper()
	strategy, err := NewStablePoolStrategy(StablePoolConfig{
		Vault:     balTestVault,
		PoolID:    balTestPool,
		BPT:       balTestBPT,
		Gauge:     balTestGauge,
		Reference: balTestDai,
		Safe:      balTestSafe,
	}, client)
	require.NoError(t, err)
	adapter, err := New(Config{
		Owner:                testOwner,
		ParityToleranceBps:   20,
		SlippageToleranceBps: 50,
	}, strategy)
	require.NoError(t, err)
	return adapter
}

// unpackVaultSwap decodes a vault.swap instruction back into its fields.
func unpackVaultSwap(t *testing.T, instruction types.Instruction) (assetIn, assetOut, sender, recipient common.Address, poolID [32]byte, kind uint8, amount, limit, deadline *big.Int) {
	t.Helper()
	require.Equal(t, balTestVault, instruction.To)

	method, err := encoding.BalancerVault.MethodById(instruction.Data[:4])
	require.NoError(t, err)
	require.Equal(t, "swap", method.Name)

	args, err := method.Inputs.Unpack(instruction.Data[4:])
	require.NoError(t, err)

	swap := reflect.ValueOf(args[0])
	poolID = swap.FieldByName("PoolId").Interface().([32]byte)
	kind = swap.FieldByName("Kind").Interface().(uint8)
	assetIn = swap.FieldByName("AssetIn").Interface().(common.Address)
	assetOut = swap.FieldByName("AssetOut").Interface().(common.Address)
	amount = swap.FieldByName("Amount").Interface().(*big.Int)

	funds := reflect.ValueOf(args[1])
	sender = funds.FieldByName("Sender").Interface().(common.Address)
	recipient = funds.FieldByName("Recipient").Interface().(common.Address)

	limit = args[2].(*big.Int)
	deadline = args[3].(*big.Int)
	return
}

func unpackGaugeWithdraw(t *testing.T, instruction types.Instruction) *big.Int {
	t.Helper()
	require.Equal(t, balTestGauge, instruction.To)

	method, err := encoding.Gauge.MethodById(instruction.Data[:4])
	require.NoError(t, err)
	require.Equal(t, "withdraw", method.Name)

	args, err := method.Inputs.Unpack(instruction.Data[4:])
	require.NoError(t, err)
	return args[0].(*big.Int)
}

func TestBoostedWithdrawalFromUnstakedEncoding(t *testing.T) {
	client := newBalancerMock()
	adapter := newBoostedAdapter(t, client)
	ctx := context.Background()

	instructions, err := adapter.WithdrawalInstructions(ctx, wad(10_000))
	require.NoError(t, err)
	require.Len(t, instructions, 1)

	assetIn, assetOut, sender, recipient, poolID, kind, amount, limit, deadline := unpackVaultSwap(t, instructions[0])
	assert.Equal(t, balTestBPT, assetIn)
	assert.Equal(t, balTestDai, assetOut)
	assert.Equal(t, balTestSafe, sender)
	assert.Equal(t, balTestSafe, recipient)
	assert.Equal(t, balTestPool, poolID)
	assert.Equal(t, uint8(encoding.SwapGivenIn), kind)
	assert.Equal(t, wad(10_000).BigInt(), amount)
	// 50 bps below the requested amount
	assert.Equal(t, wad(10_000).MulRaw(9950).QuoRaw(10000).BigInt(), limit)
	assert.Equal(t, new(big.Int).SetUint64(math.MaxUint64), deadline)
}

func TestBoostedWithdrawalUnstakesShortfall(t *testing.T) {
	client := newBalancerMock()
	adapter := newBoostedAdapter(t, client)
	ctx := context.Background()

	// 50k requested against 30k unstaked: 20k BPT leave the gauge first
	instructions, err := adapter.WithdrawalInstructions(ctx, wad(50_000))
	require.NoError(t, err)
	require.Len(t, instructions, 2)

	assert.Equal(t, wad(20_000).BigInt(), unpackGaugeWithdraw(t, instructions[0]))

	_, _, _, _, _, _, amount, limit, _ := unpackVaultSwap(t, instructions[1])
	assert.Equal(t, wad(50_000).BigInt(), amount)
	assert.Equal(t, wad(50_000).MulRaw(9950).QuoRaw(10000).BigInt(), limit)
}

func TestBoostedWithdrawalFullDrain(t *testing.T) {
	client := newBalancerMock()
	adapter := newBoostedAdapter(t, client)
	ctx := context.Background()

	// more than the position is worth: everything unstakes and exits
	instructions, err := adapter.WithdrawalInstructions(ctx, wad(150_000))
	require.NoError(t, err)
	require.Len(t, instructions, 2)

	assert.Equal(t, wad(70_000).BigInt(), unpackGaugeWithdraw(t, instructions[0]))

	_, _, _, _, _, _, amount, limit, _ := unpackVaultSwap(t, instructions[1])
	assert.Equal(t, wad(100_000).BigInt(), amount)
	// the floor tracks the expected drain output, not the oversized request
	assert.Equal(t, wad(100_000).MulRaw(9950).QuoRaw(10000).BigInt(), limit)
}

func TestStableWithdrawalEncoding(t *testing.T) {
	client := newBalancerMock()
	adapter := newStableAdapter(t, client)
	ctx := context.Background()

	instructions, err := adapter.WithdrawalInstructions(ctx, wad(50_000))
	require.NoError(t, err)
	require.Len(t, instructions, 2)

	assert.Equal(t, wad(20_000).BigInt(), unpackGaugeWithdraw(t, instructions[0]))

	assetIn, assetOut, _, _, poolID, kind, amount, limit, _ := unpackVaultSwap(t, instructions[1])
	assert.Equal(t, balTestBPT, assetIn)
	assert.Equal(t, balTestDai, assetOut)
	assert.Equal(t, balTestPool, poolID)
	assert.Equal(t, uint8(encoding.SwapGivenIn), kind)
	assert.Equal(t, wad(50_000).BigInt(), amount)
	assert.Equal(t, wad(50_000).MulRaw(9950).QuoRaw(10000).BigInt(), limit)
}

func TestSymmetricParityAcrossStables(t *testing.T) {
	cases := []struct {
		name     string
		prices   []string
		inParity bool
	}{
		{"all pegged", []string{"1000000000000000000", "1000000000000000000"}, true},
		{"within tolerance both ways", []string{"1001500000000000000", "998500000000000000"}, true},
		{"one stable depegged down", []string{"1000000000000000000", "997000000000000000"}, false},
		{"one stable depegged up", []string{"1003000000000000000", "1000000000000000000"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newBalancerMock()
			client.prices = make([]sdkmath.Int, len(tc.prices))
			for i, p := range tc.prices {
				client.prices[i] = fixedWad(p)
			}

			for name, adapter := range map[string]*Adapter{
				"boosted": newBoostedAdapter(t, client),
				"stable":  newStableAdapter(t, client),
			} {
				inParity, err := adapter.IsInParity(context.Background())
				require.NoError(t, err, name)
				assert.Equal(t, tc.inParity, inParity, name)

				if !tc.inParity {
					_, err := adapter.WithdrawalInstructions(context.Background(), wad(10_000))
					assert.ErrorIs(t, err, ErrWithdrawalBlocked, name)
				}
			}
		})
	}
}

func TestBoostedZeroUnstakeOmitted(t *testing.T) {
	strategy, err := NewBoostedPoolStrategy(BoostedPoolConfig{
		Vault:     balTestVault,
		PoolID:    balTestPool,
		BPT:       balTestBPT,
		Gauge:     balTestGauge,
		Reference: balTestDai,
		Safe:      balTestSafe,
	}, newBalancerMock())
	require.NoError(t, err)

	instructions, err := strategy.UnstakeInstructions(sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.Empty(t, instructions)

	_, err = strategy.UnstakeInstructions(sdkmath.NewInt(-1))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = strategy.ExitInstructions(sdkmath.ZeroInt(), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrInvalidAmount)
}