/*

This file contains the Balancer stable pool strategy. It shares the
boosted family's vault-swap exit encoding but reads its quotes from the
composable stable math, and judges parity pairwise across the pool's
stables. Kept as its own strategy so pool-specific quirks stay out of the
boosted path.

*/

package liquidity

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gnosisguild/siphon/internal/encoding"
	"github.com/gnosisguild/siphon/internal/types"
)

// StablePoolClient exposes the composable stable pool reads.
type StablePoolClient interface {
	BPTBalance(ctx context.Context) (sdkmath.Int, error)
	GaugeBalance(ctx context.Context) (sdkmath.Int, error)
	ExitOutGivenIn(ctx context.Context, bptIn sdkmath.Int) (sdkmath.Int, error)
	ExitInGivenOut(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error)
	LiquidStableBalance(ctx context.Context) (sdkmath.Int, error)
	StablePrices(ctx context.Context) ([]sdkmath.Int, error)
}

// StablePoolConfig carries the pool family's deployment addresses.
type StablePoolConfig struct {
	Vault     common.Address
	PoolID    [32]byte
	BPT       common.Address
	Gauge     common.Address
	Reference common.Address
	Safe      common.Address
}

// StablePoolStrategy implements PoolMathStrategy for composable stable
// pools.
type StablePoolStrategy struct {
	cfg    StablePoolConfig
	client StablePoolClient
}

// NewStablePoolStrategy wires the strategy to its on-chain reads.
func NewStablePoolStrategy(cfg StablePoolConfig, client StablePoolClient) (*StablePoolStrategy, error) {
	if client == nil {
		return nil, ErrNilStrategy
	}
	return &StablePoolStrategy{cfg: cfg, client: client}, nil
}

func (s *StablePoolStrategy) ReferenceAsset() common.Address {
	return s.cfg.Reference
}

func (s *StablePoolStrategy) GuardMode() GuardMode {
	return GuardSymmetric
}

func (s *StablePoolStrategy) ShareBalances(ctx context.Context) (sdkmath.Int, sdkmath.Int, error) {
	unstaked, err := s.client.BPTBalance(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("bpt balance read failed: %w", err)
	}
	staked, err := s.client.GaugeBalance(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("gauge balance read failed: %w", err)
	}
	return unstaked, staked, nil
}

func (s *StablePoolStrategy) OutGivenIn(ctx context.Context, sharesIn sdkmath.Int) (sdkmath.Int, error) {
	return s.client.ExitOutGivenIn(ctx, sharesIn)
}

func (s *StablePoolStrategy) InGivenOut(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error) {
	return s.client.ExitInGivenOut(ctx, amountOut)
}

func (s *StablePoolStrategy) MaxAmountOut(ctx context.Context) (sdkmath.Int, error) {
	return s.client.LiquidStableBalance(ctx)
}

func (s *StablePoolStrategy) ParityPrices(ctx context.Context) ([]sdkmath.Int, error) {
	return s.client.StablePrices(ctx)
}

// UnstakeInstructions withdraws BPT from the gauge back to the safe.
func (s *StablePoolStrategy) UnstakeInstructions(shares sdkmath.Int) ([]types.Instruction, error) {
	if shares.IsNil() || shares.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if shares.IsZero() {
		return nil, nil
	}
	data, err := encoding.PackGaugeWithdraw(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gauge withdraw: %w", err)
	}
	return []types.Instruction{types.NewCall(s.cfg.Gauge, data)}, nil
}

// ExitInstructions swaps sharesIn BPT for the reference stable via the
// Balancer vault.
func (s *StablePoolStrategy) ExitInstructions(sharesIn, minAmountOut sdkmath.Int) ([]types.Instruction, error) {
	if sharesIn.IsNil() || !sharesIn.IsPositive() {
		return nil, ErrInvalidAmount
	}
	swap := encoding.SingleSwap{
		PoolId:   s.cfg.PoolID,
		Kind:     uint8(encoding.SwapGivenIn),
		AssetIn:  s.cfg.BPT,
		AssetOut: s.cfg.Reference,
		Amount:   sharesIn.BigInt(),
		UserData: []byte{},
	}
	funds := encoding.FundManagement{
		Sender:              s.cfg.Safe,
		FromInternalBalance: false,
		Recipient:           s.cfg.Safe,
		ToInternalBalance:   false,
	}
	deadline := new(big.Int).SetUint64(^uint64(0))
	data, err := encoding.PackBalancerSwap(swap, funds, minAmountOut, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vault swap: %w", err)
	}
	return []types.Instruction{types.NewCall(s.cfg.Vault, data)}, nil
}
