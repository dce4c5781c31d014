/*

This file contains the Balancer boosted pool strategy. Position shares are
BPT, staked shares sit in a liquidity gauge. Exits swap BPT directly for
the reference stable through the Balancer vault (boosted pools hold their
own phantom BPT, so a swap is the cheap single-step exit). Parity is
judged symmetrically across every underlying stable.

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

// BoostedPoolClient exposes the boosted pool reads the strategy needs.
// exact-in and exact-out quotes are denominated BPT in, reference out.
type BoostedPoolClient interface {
	BPTBalance(ctx context.Context) (sdkmath.Int, error)
	GaugeBalance(ctx context.Context) (sdkmath.Int, error)
	SwapOutGivenIn(ctx context.Context, bptIn sdkmath.Int) (sdkmath.Int, error)
	SwapInGivenOut(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error)
	LiquidStableBalance(ctx context.Context) (sdkmath.Int, error)
	StablePrices(ctx context.Context) ([]sdkmath.Int, error)
}

// BoostedPoolConfig carries the pool family's deployment addresses.
type BoostedPoolConfig struct {
	Vault     common.Address // Balancer vault
	PoolID    [32]byte
	BPT       common.Address
	Gauge     common.Address
	Reference common.Address // stable the position exits into
	Safe      common.Address // sender and recipient of every swap
}

// BoostedPoolStrategy implements PoolMathStrategy for Balancer boosted
// pools.
type BoostedPoolStrategy struct {
	cfg    BoostedPoolConfig
	client BoostedPoolClient
}

// NewBoostedPoolStrategy wires the strategy to its on-chain reads.
func NewBoostedPoolStrategy(cfg BoostedPoolConfig, client BoostedPoolClient) (*BoostedPoolStrategy, error) {
	if client == nil {
		return nil, ErrNilStrategy
	}
	return &BoostedPoolStrategy{cfg: cfg, client: client}, nil
}

func (s *BoostedPoolStrategy) ReferenceAsset() common.Address {
	return s.cfg.Reference
}

func (s *BoostedPoolStrategy) GuardMode() GuardMode {
	return GuardSymmetric
}

func (s *BoostedPoolStrategy) ShareBalances(ctx context.Context) (sdkmath.Int, sdkmath.Int, error) {
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

func (s *BoostedPoolStrategy) OutGivenIn(ctx context.Context, sharesIn sdkmath.Int) (sdkmath.Int, error) {
	return s.client.SwapOutGivenIn(ctx, sharesIn)
}

func (s *BoostedPoolStrategy) InGivenOut(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error) {
	return s.client.SwapInGivenOut(ctx, amountOut)
}

func (s *BoostedPoolStrategy) MaxAmountOut(ctx context.Context) (sdkmath.Int, error) {
	return s.client.LiquidStableBalance(ctx)
}

func (s *BoostedPoolStrategy) ParityPrices(ctx context.Context) ([]sdkmath.Int, error) {
	return s.client.StablePrices(ctx)
}

// UnstakeInstructions withdraws BPT from the gauge back to the safe.
func (s *BoostedPoolStrategy) UnstakeInstructions(shares sdkmath.Int) ([]types.Instruction, error) {
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
// Balancer vault, enforcing minAmountOut as the swap limit.
func (s *BoostedPoolStrategy) ExitInstructions(sharesIn, minAmountOut sdkmath.Int) ([]types.Instruction, error) {
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
	// no expiry beyond the block the safe executes in
	deadline := new(big.Int).SetUint64(^uint64(0))
	data, err := encoding.PackBalancerSwap(swap, funds, minAmountOut, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vault swap: %w", err)
	}
	return []types.Instruction{types.NewCall(s.cfg.Vault, data)}, nil
}
