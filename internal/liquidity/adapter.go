/*

This file contains the generic liquidity position adapter. It is a
stateless function of the strategy's live pool reads plus one owner
settable value, the parity tolerance. Withdrawal sizing prefers exact-out
(inGivenOut) math and falls back to full-drain exact-in sizing when the
request exceeds what the position or the pool can deliver.

*/

package liquidity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/gnosisguild/siphon/internal/fixedpoint"
	"github.com/gnosisguild/siphon/internal/logger"
	"github.com/gnosisguild/siphon/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnauthorized       = errors.New("caller is not the adapter owner")
	ErrWithdrawalBlocked  = errors.New("withdrawal blocked: pool is not in parity")
	ErrInvalidOracleState = errors.New("pool oracle returned invalid state")
	ErrInvalidAmount      = errors.New("requested amount cannot be negative")
	ErrNilStrategy        = errors.New("pool math strategy cannot be nil")
)

// Config carries the adapter's deployment-time settings.
type Config struct {
	Owner common.Address
	// ParityToleranceBps is the allowed deviation from 1.0, in basis points.
	ParityToleranceBps uint64
	// SlippageToleranceBps bounds how much less than the sized amount an
	// exit may deliver.
	SlippageToleranceBps uint64
}

// Adapter sizes and encodes withdrawals from one liquidity position.
type Adapter struct {
	strategy PoolMathStrategy
	owner    common.Address
	slippage uint64
	log      zerolog.Logger

	mu              sync.RWMutex
	parityTolerance uint64
}

// New wires an adapter to a pool family strategy.
func New(cfg Config, strategy PoolMathStrategy) (*Adapter, error) {
	if strategy == nil {
		return nil, ErrNilStrategy
	}
	return &Adapter{
		strategy:        strategy,
		owner:           cfg.Owner,
		slippage:        cfg.SlippageToleranceBps,
		parityTolerance: cfg.ParityToleranceBps,
		log:             logger.GetForComponent("liquidity_adapter"),
	}, nil
}

// ParityTolerance returns the configured tolerance in basis points.
func (a *Adapter) ParityTolerance() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.parityTolerance
}

// SetParityTolerance updates the tolerance. Owner-gated.
func (a *Adapter) SetParityTolerance(caller common.Address, bps uint64) error {
	if caller != a.owner {
		return ErrUnauthorized
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.parityTolerance = bps
	return nil
}

// Balance returns the position's total redeemable value in the reference
// asset: the exit valuation of staked plus unstaked shares, capped at the
// pool's liquid reserve.
func (a *Adapter) Balance(ctx context.Context) (sdkmath.Int, error) {
	unstaked, staked, err := a.strategy.ShareBalances(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	total := unstaked.Add(staked)
	if total.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	value, err := a.strategy.OutGivenIn(ctx, total)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	maxOut, err := a.strategy.MaxAmountOut(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if value.GT(maxOut) {
		return maxOut, nil
	}
	return value, nil
}

// IsInParity reports whether every underlying stable trades within the
// parity tolerance of the reference asset. This is the sandwich guard.
func (a *Adapter) IsInParity(ctx context.Context) (bool, error) {
	prices, err := a.strategy.ParityPrices(ctx)
	if err != nil {
		return false, err
	}
	wad := fixedpoint.Wad()
	tolerance := fixedpoint.BasisPoints(a.ParityTolerance())

	for _, price := range prices {
		if price.IsNil() || !price.IsPositive() {
			return false, fmt.Errorf("%w: non-positive parity price", ErrInvalidOracleState)
		}
		above := price.Sub(wad)
		switch a.strategy.GuardMode() {
		case GuardUpperOnly:
			if above.GT(tolerance) {
				return false, nil
			}
		default:
			if above.Abs().GT(tolerance) {
				return false, nil
			}
		}
	}
	return true, nil
}

// WithdrawalInstructions builds the minimal instruction sequence that
// extracts at least requested of the reference asset: an optional unstake
// followed by an exit. The request is silently capped at the pool's liquid
// reserve; requests above the position's value become a full exit. A zero
// request yields no instructions.
func (a *Adapter) WithdrawalInstructions(ctx context.Context, requested sdkmath.Int) ([]types.Instruction, error) {
	if requested.IsNil() || requested.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if requested.IsZero() {
		return nil, nil
	}

	// Hard safety gate: every exit here crosses assets, so a depegged pool
	// blocks the whole withdrawal.
	inParity, err := a.IsInParity(ctx)
	if err != nil {
		return nil, err
	}
	if !inParity {
		return nil, ErrWithdrawalBlocked
	}

	maxOut, err := a.strategy.MaxAmountOut(ctx)
	if err != nil {
		return nil, err
	}
	if requested.GT(maxOut) {
		a.log.Warn().
			Str("requested", requested.String()).
			Str("liquidReserve", maxOut.String()).
			Msg("Capping withdrawal at the pool's liquid reserve")
		requested = maxOut
	}
	if requested.IsZero() {
		return nil, nil
	}

	unstaked, staked, err := a.strategy.ShareBalances(ctx)
	if err != nil {
		return nil, err
	}
	total := unstaked.Add(staked)
	if total.IsZero() {
		return nil, nil
	}

	unstakedValue := sdkmath.ZeroInt()
	if unstaked.IsPositive() {
		unstakedValue, err = a.strategy.OutGivenIn(ctx, unstaked)
		if err != nil {
			return nil, err
		}
	}

	if requested.LTE(unstakedValue) {
		return a.exitFromUnstaked(ctx, requested, unstaked)
	}
	return a.exitWithUnstake(ctx, requested, unstaked, staked)
}

// exitFromUnstaked sizes an exit covered entirely by the unstaked balance.
func (a *Adapter) exitFromUnstaked(ctx context.Context, requested, unstaked sdkmath.Int) ([]types.Instruction, error) {
	sharesIn, err := a.strategy.InGivenOut(ctx, requested)
	if err != nil {
		return nil, err
	}
	if sharesIn.GT(unstaked) {
		// exact-out sizing wants more shares than are unstaked; drain them
		// all and take whatever output that produces
		return a.fullExit(ctx, unstaked, nil)
	}
	minOut, err := fixedpoint.SlippageFloor(requested, a.slippage)
	if err != nil {
		return nil, err
	}
	a.log.Debug().
		Str("requested", requested.String()).
		Str("sharesIn", sharesIn.String()).
		Msg("Sized exit from unstaked shares")
	return a.strategy.ExitInstructions(sharesIn, minOut)
}

// exitWithUnstake covers a shortfall by unstaking before the exit.
func (a *Adapter) exitWithUnstake(ctx context.Context, requested, unstaked, staked sdkmath.Int) ([]types.Instruction, error) {
	total := unstaked.Add(staked)

	sharesIn, err := a.strategy.InGivenOut(ctx, requested)
	if err != nil {
		return nil, err
	}
	if sharesIn.GTE(total) {
		// request exceeds what the position holds: full drain, the caller
		// measures the actual output afterward
		unstake, err := a.strategy.UnstakeInstructions(staked)
		if err != nil {
			return nil, err
		}
		return a.fullExit(ctx, total, unstake)
	}

	toUnstake := sharesIn.Sub(unstaked)
	unstake, err := a.strategy.UnstakeInstructions(toUnstake)
	if err != nil {
		return nil, err
	}
	minOut, err := fixedpoint.SlippageFloor(requested, a.slippage)
	if err != nil {
		return nil, err
	}
	exit, err := a.strategy.ExitInstructions(sharesIn, minOut)
	if err != nil {
		return nil, err
	}
	a.log.Debug().
		Str("requested", requested.String()).
		Str("unstaking", toUnstake.String()).
		Str("sharesIn", sharesIn.String()).
		Msg("Sized exit with partial unstake")
	return append(unstake, exit...), nil
}

// fullExit drains sharesIn via exact-in math, optionally preceded by
// unstake instructions.
func (a *Adapter) fullExit(ctx context.Context, sharesIn sdkmath.Int, unstake []types.Instruction) ([]types.Instruction, error) {
	expected, err := a.strategy.OutGivenIn(ctx, sharesIn)
	if err != nil {
		return nil, err
	}
	minOut, err := fixedpoint.SlippageFloor(expected, a.slippage)
	if err != nil {
		return nil, err
	}
	exit, err := a.strategy.ExitInstructions(sharesIn, minOut)
	if err != nil {
		return nil, err
	}
	a.log.Debug().
		Str("sharesIn", sharesIn.String()).
		Str("expectedOut", expected.String()).
		Msg("Sized full exit")
	return append(unstake, exit...), nil
}
