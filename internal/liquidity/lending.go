/*

This file contains the Curve/Convex lending pool strategy. Position shares
are Curve LP tokens; the staked balance sits in a Convex reward pool and
is recovered with withdrawAndUnwrap. Exits are single-sided
remove_liquidity_one_coin calls into the reference stable. The parity
guard is one-sided: only an upward depeg lets a sandwicher profit from
our exit, a downward depeg works against them.

*/

package liquidity

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gnosisguild/siphon/internal/encoding"
	"github.com/gnosisguild/siphon/internal/types"
)

// LendingPoolClient exposes the Curve pool and Convex reward reads.
type LendingPoolClient interface {
	LptBalance(ctx context.Context) (sdkmath.Int, error)
	StakedBalance(ctx context.Context) (sdkmath.Int, error)
	// CalcWithdrawOneCoin quotes the reference output for burning lptIn.
	CalcWithdrawOneCoin(ctx context.Context, lptIn sdkmath.Int) (sdkmath.Int, error)
	// CalcLptForWithdraw quotes the LP tokens burned to produce amountOut.
	CalcLptForWithdraw(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error)
	LiquidReserve(ctx context.Context) (sdkmath.Int, error)
	// Price is the wad-scaled price of the paired stable in reference terms.
	Price(ctx context.Context) (sdkmath.Int, error)
}

// LendingPoolConfig carries the pool family's deployment addresses.
type LendingPoolConfig struct {
	Pool      common.Address // Curve pool (deposit zap)
	Rewards   common.Address // Convex reward pool holding staked LP
	Reference common.Address
	Safe      common.Address
	// CoinIndex is the reference asset's index in the Curve pool.
	CoinIndex int64
}

// LendingPoolStrategy implements PoolMathStrategy for Curve lending pools
// staked on Convex.
type LendingPoolStrategy struct {
	cfg    LendingPoolConfig
	client LendingPoolClient
}

// NewLendingPoolStrategy wires the strategy to its on-chain reads.
func NewLendingPoolStrategy(cfg LendingPoolConfig, client LendingPoolClient) (*LendingPoolStrategy, error) {
	if client == nil {
		return nil, ErrNilStrategy
	}
	return &LendingPoolStrategy{cfg: cfg, client: client}, nil
}

func (s *LendingPoolStrategy) ReferenceAsset() common.Address {
	return s.cfg.Reference
}

func (s *LendingPoolStrategy) GuardMode() GuardMode {
	return GuardUpperOnly
}

func (s *LendingPoolStrategy) ShareBalances(ctx context.Context) (sdkmath.Int, sdkmath.Int, error) {
	unstaked, err := s.client.LptBalance(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("lpt balance read failed: %w", err)
	}
	staked, err := s.client.StakedBalance(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("rewards balance read failed: %w", err)
	}
	return unstaked, staked, nil
}

func (s *LendingPoolStrategy) OutGivenIn(ctx context.Context, sharesIn sdkmath.Int) (sdkmath.Int, error) {
	return s.client.CalcWithdrawOneCoin(ctx, sharesIn)
}

func (s *LendingPoolStrategy) InGivenOut(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error) {
	return s.client.CalcLptForWithdraw(ctx, amountOut)
}

func (s *LendingPoolStrategy) MaxAmountOut(ctx context.Context) (sdkmath.Int, error) {
	return s.client.LiquidReserve(ctx)
}

func (s *LendingPoolStrategy) ParityPrices(ctx context.Context) ([]sdkmath.Int, error) {
	price, err := s.client.Price(ctx)
	if err != nil {
		return nil, err
	}
	return []sdkmath.Int{price}, nil
}

// UnstakeInstructions pulls staked LP out of the Convex reward pool,
// unwrapping back to the raw Curve LP token.
func (s *LendingPoolStrategy) UnstakeInstructions(shares sdkmath.Int) ([]types.Instruction, error) {
	if shares.IsNil() || shares.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if shares.IsZero() {
		return nil, nil
	}
	data, err := encoding.PackWithdrawAndUnwrap(shares, false)
	if err != nil {
		return nil, fmt.Errorf("failed to encode withdrawAndUnwrap: %w", err)
	}
	return []types.Instruction{types.NewCall(s.cfg.Rewards, data)}, nil
}

// ExitInstructions burns sharesIn LP tokens single-sided into the
// reference stable.
func (s *LendingPoolStrategy) ExitInstructions(sharesIn, minAmountOut sdkmath.Int) ([]types.Instruction, error) {
	if sharesIn.IsNil() || !sharesIn.IsPositive() {
		return nil, ErrInvalidAmount
	}
	data, err := encoding.PackRemoveLiquidityOneCoin(sharesIn, s.cfg.CoinIndex, minAmountOut)
	if err != nil {
		return nil, fmt.Errorf("failed to encode remove_liquidity_one_coin: %w", err)
	}
	return []types.Instruction{types.NewCall(s.cfg.Pool, data)}, nil
}
