package simulations

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// LendingClient adapts the simulated Curve pool and Convex rewards to the
// read interface the lending strategy expects. The reference coin index
// is fixed per client.
type LendingClient struct {
	pool    *StableSwapPool
	rewards *RewardsPool
	bank    *Bank
	holder  common.Address
	coinIdx int
	pairIdx int
}

func NewLendingClient(pool *StableSwapPool, rewards *RewardsPool, bank *Bank, holder common.Address, coinIdx int) *LendingClient {
	return &LendingClient{
		pool:    pool,
		rewards: rewards,
		bank:    bank,
		holder:  holder,
		coinIdx: coinIdx,
		pairIdx: 1 - coinIdx,
	}
}

func (c *LendingClient) LptBalance(ctx context.Context) (sdkmath.Int, error) {
	return c.bank.BalanceOf(c.pool.LPToken, c.holder), nil
}

func (c *LendingClient) StakedBalance(ctx context.Context) (sdkmath.Int, error) {
	return c.rewards.StakedBalance(c.holder), nil
}

func (c *LendingClient) CalcWithdrawOneCoin(ctx context.Context, lptIn sdkmath.Int) (sdkmath.Int, error) {
	return c.pool.CalcWithdrawOneCoin(lptIn, c.coinIdx)
}

func (c *LendingClient) CalcLptForWithdraw(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error) {
	return c.pool.CalcLptForWithdraw(amountOut, c.coinIdx)
}

func (c *LendingClient) LiquidReserve(ctx context.Context) (sdkmath.Int, error) {
	return c.pool.Reserves()[c.coinIdx], nil
}

func (c *LendingClient) Price(ctx context.Context) (sdkmath.Int, error) {
	return c.pool.SpotPrice(c.pairIdx, c.coinIdx)
}
