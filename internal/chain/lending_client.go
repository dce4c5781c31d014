/*

This file contains the live reads behind the Curve/Convex lending pool
strategy. Exact-out sizing has no on-chain quote on these pools, so it is
derived client side by bisecting calc_withdraw_one_coin.

*/

package chain

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gnosisguild/siphon/internal/encoding"
	"github.com/gnosisguild/siphon/internal/fixedpoint"
)

// LendingClientConfig locates the Curve pool and the Convex reward pool
// holding the staked position.
type LendingClientConfig struct {
	Pool    common.Address
	LPToken common.Address
	Rewards common.Address
	Safe    common.Address
	// CoinIndex is the reference asset's index in the pool.
	CoinIndex int64
	// PairIndex is the paired stable's index, used for the parity probe.
	PairIndex int64
	// PairDecimals are the paired stable's token decimals.
	PairDecimals int
	// ReferenceDecimals are the reference asset's token decimals.
	ReferenceDecimals int
}

// LendingClient implements the lending pool strategy's read surface over
// JSON-RPC.
type LendingClient struct {
	cfg    LendingClientConfig
	client *Client
}

func NewLendingClient(cfg LendingClientConfig, client *Client) (*LendingClient, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client cannot be nil")
	}
	return &LendingClient{cfg: cfg, client: client}, nil
}

func (c *LendingClient) LptBalance(ctx context.Context) (sdkmath.Int, error) {
	return c.erc20Balance(ctx, c.cfg.LPToken)
}

func (c *LendingClient) StakedBalance(ctx context.Context) (sdkmath.Int, error) {
	data, err := encoding.ConvexRewards.Pack("balanceOf", c.cfg.Safe)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to encode rewards balanceOf: %w", err)
	}
	raw, err := c.client.Call(ctx, c.cfg.Rewards, data)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("rewards balanceOf read failed: %w", err)
	}
	out, err := encoding.ConvexRewards.Unpack("balanceOf", raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode rewards balanceOf: %w", err)
	}
	return fromBig(out[0]), nil
}

func (c *LendingClient) CalcWithdrawOneCoin(ctx context.Context, lptIn sdkmath.Int) (sdkmath.Int, error) {
	if lptIn.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	data, err := encoding.CurvePool.Pack("calc_withdraw_one_coin", lptIn.BigInt(), big.NewInt(c.cfg.CoinIndex))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to encode calc_withdraw_one_coin: %w", err)
	}
	raw, err := c.client.Call(ctx, c.cfg.Pool, data)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("calc_withdraw_one_coin read failed: %w", err)
	}
	out, err := encoding.CurvePool.Unpack("calc_withdraw_one_coin", raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode calc_withdraw_one_coin: %w", err)
	}
	return fromBig(out[0]), nil
}

// CalcLptForWithdraw bisects calc_withdraw_one_coin for the smallest
// share amount whose exit covers amountOut. When the whole position
// cannot cover it, the returned amount exceeds the holdings so the
// caller falls back to a full drain.
func (c *LendingClient) CalcLptForWithdraw(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error) {
	unstaked, err := c.LptBalance(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	staked, err := c.StakedBalance(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	total := unstaked.Add(staked)
	if total.IsZero() {
		return sdkmath.ZeroInt(), nil
	}

	maxOut, err := c.CalcWithdrawOneCoin(ctx, total)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if maxOut.LT(amountOut) {
		return total.MulRaw(2), nil
	}

	lo, hi := sdkmath.ZeroInt(), total
	for i := 0; i < 64; i++ {
		mid := lo.Add(hi).QuoRaw(2)
		if mid.Equal(lo) {
			break
		}
		out, err := c.CalcWithdrawOneCoin(ctx, mid)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if out.GTE(amountOut) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

func (c *LendingClient) LiquidReserve(ctx context.Context) (sdkmath.Int, error) {
	data, err := encoding.CurvePool.Pack("balances", big.NewInt(c.cfg.CoinIndex))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to encode balances: %w", err)
	}
	raw, err := c.client.Call(ctx, c.cfg.Pool, data)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("balances read failed: %w", err)
	}
	out, err := encoding.CurvePool.Unpack("balances", raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode balances: %w", err)
	}
	return fromBig(out[0]), nil
}

// Price quotes one unit of the paired stable in reference terms, wad
// scaled.
func (c *LendingClient) Price(ctx context.Context) (sdkmath.Int, error) {
	probe := sdkmath.NewIntWithDecimal(1, c.cfg.PairDecimals)
	data, err := encoding.CurvePool.Pack("get_dy",
		big.NewInt(c.cfg.PairIndex), big.NewInt(c.cfg.CoinIndex), probe.BigInt())
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to encode get_dy: %w", err)
	}
	raw, err := c.client.Call(ctx, c.cfg.Pool, data)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("get_dy read failed: %w", err)
	}
	out, err := encoding.CurvePool.Unpack("get_dy", raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode get_dy: %w", err)
	}
	return fixedpoint.Rescale(fromBig(out[0]), c.cfg.ReferenceDecimals, 18)
}

func (c *LendingClient) erc20Balance(ctx context.Context, token common.Address) (sdkmath.Int, error) {
	data, err := encoding.ERC20.Pack("balanceOf", c.cfg.Safe)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to encode balanceOf: %w", err)
	}
	raw, err := c.client.Call(ctx, token, data)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("balanceOf read failed: %w", err)
	}
	out, err := encoding.ERC20.Unpack("balanceOf", raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode balanceOf: %w", err)
	}
	return fromBig(out[0]), nil
}
