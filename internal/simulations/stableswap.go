/*

This file contains a two-coin StableSwap pool with LP share accounting:
the invariant solved by Newton iteration, exact-in and exact-out quotes,
single-sided exits, and the liquidity mutations the sandwich tests use to
manipulate the pool price.

*/

package simulations

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

const nCoins = 2

var (
	ErrNoConvergence        = errors.New("stableswap iteration did not converge")
	ErrInsufficientReserves = errors.New("insufficient pool reserves")
)

// StableSwapPool simulates a Curve-style two-coin pool. Coin amounts are
// raw token units; LP shares are 18 decimals.
type StableSwapPool struct {
	mu sync.Mutex

	// Amp is the amplification coefficient (A).
	Amp sdkmath.Int
	// FeeBps is the swap fee in basis points, charged on outputs.
	FeeBps uint64

	Tokens   [nCoins]common.Address
	Decimals [nCoins]int
	LPToken  common.Address

	reserves    [nCoins]sdkmath.Int
	totalSupply sdkmath.Int
	bank        *Bank
}

// PoolConfig seeds a simulated pool.
type PoolConfig struct {
	Amp      int64
	FeeBps   uint64
	Tokens   [nCoins]common.Address
	Decimals [nCoins]int
	LPToken  common.Address
	Reserves [nCoins]sdkmath.Int
}

// NewStableSwapPool creates a pool with the given reserves and mints the
// initial LP supply to the bank's zero address sink.
func NewStableSwapPool(cfg PoolConfig, bank *Bank) (*StableSwapPool, error) {
	if bank == nil {
		return nil, errors.New("bank cannot be nil")
	}
	if cfg.Amp <= 0 {
		return nil, errors.New("amplification must be positive")
	}
	pool := &StableSwapPool{
		Amp:      sdkmath.NewInt(cfg.Amp),
		FeeBps:   cfg.FeeBps,
		Tokens:   cfg.Tokens,
		Decimals: cfg.Decimals,
		LPToken:  cfg.LPToken,
		reserves: cfg.Reserves,
		bank:     bank,
	}
	d, err := pool.invariant(pool.normalized())
	if err != nil {
		return nil, err
	}
	pool.totalSupply = d
	return pool, nil
}

// poolSnapshot captures the mutable pool state for batch rollback.
type poolSnapshot struct {
	reserves    [nCoins]sdkmath.Int
	totalSupply sdkmath.Int
}

func (p *StableSwapPool) snapshot() poolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return poolSnapshot{reserves: p.reserves, totalSupply: p.totalSupply}
}

func (p *StableSwapPool) restore(s poolSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserves = s.reserves
	p.totalSupply = s.totalSupply
}

// MintInitialShares assigns the whole initial LP supply to holder.
func (p *StableSwapPool) MintInitialShares(holder common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bank.Mint(p.LPToken, holder, p.totalSupply)
}

// Reserves returns a copy of the raw reserves.
func (p *StableSwapPool) Reserves() [nCoins]sdkmath.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserves
}

// TotalSupply returns the LP share supply.
func (p *StableSwapPool) TotalSupply() sdkmath.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalSupply
}

// normalized scales reserves to 18 decimals.
func (p *StableSwapPool) normalized() [nCoins]sdkmath.Int {
	var xp [nCoins]sdkmath.Int
	for i := 0; i < nCoins; i++ {
		xp[i] = scaleUp(p.reserves[i], p.Decimals[i])
	}
	return xp
}

func scaleUp(amount sdkmath.Int, decimals int) sdkmath.Int {
	return amount.Mul(sdkmath.NewIntWithDecimal(1, 18-decimals))
}

func scaleDown(amount sdkmath.Int, decimals int) sdkmath.Int {
	return amount.Quo(sdkmath.NewIntWithDecimal(1, 18-decimals))
}

// invariant computes D for the normalized reserves by Newton iteration.
func (p *StableSwapPool) invariant(xp [nCoins]sdkmath.Int) (sdkmath.Int, error) {
	s := sdkmath.ZeroInt()
	for _, x := range xp {
		s = s.Add(x)
	}
	if s.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	n := sdkmath.NewInt(nCoins)
	ann := p.Amp.MulRaw(nCoins * nCoins)
	d := s
	for i := 0; i < 255; i++ {
		dp := d
		for _, x := range xp {
			dp = dp.Mul(d).Quo(x.Mul(n))
		}
		prev := d
		num := ann.Mul(s).Add(dp.Mul(n)).Mul(d)
		den := ann.Sub(sdkmath.OneInt()).Mul(d).Add(n.Add(sdkmath.OneInt()).Mul(dp))
		d = num.Quo(den)
		if d.Sub(prev).Abs().LTE(sdkmath.OneInt()) {
			return d, nil
		}
	}
	return sdkmath.ZeroInt(), ErrNoConvergence
}

// solveY finds coin j's normalized balance given D and the other coins'
// balances (with coin i replaced by x).
func (p *StableSwapPool) solveY(i, j int, x sdkmath.Int, xp [nCoins]sdkmath.Int, d sdkmath.Int) (sdkmath.Int, error) {
	ann := p.Amp.MulRaw(nCoins * nCoins)
	n := sdkmath.NewInt(nCoins)
	c := d
	s := sdkmath.ZeroInt()
	for k := 0; k < nCoins; k++ {
		if k == j {
			continue
		}
		xk := xp[k]
		if k == i {
			xk = x
		}
		s = s.Add(xk)
		c = c.Mul(d).Quo(xk.Mul(n))
	}
	c = c.Mul(d).Quo(ann.Mul(n))
	b := s.Add(d.Quo(ann))
	y := d
	for iter := 0; iter < 255; iter++ {
		prev := y
		num := y.Mul(y).Add(c)
		den := y.MulRaw(2).Add(b).Sub(d)
		y = num.Quo(den)
		if y.Sub(prev).Abs().LTE(sdkmath.OneInt()) {
			return y, nil
		}
	}
	return sdkmath.ZeroInt(), ErrNoConvergence
}

// solveYFromD finds coin j's normalized balance for a reduced invariant
// with every other coin unchanged.
func (p *StableSwapPool) solveYFromD(j int, xp [nCoins]sdkmath.Int, d sdkmath.Int) (sdkmath.Int, error) {
	return p.solveY(j, j, xp[j], xp, d)
}

// DyGivenDx quotes a swap of dx of coin i for coin j, fee applied.
func (p *StableSwapPool) DyGivenDx(i, j int, dx sdkmath.Int) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dyGivenDx(i, j, dx)
}

func (p *StableSwapPool) dyGivenDx(i, j int, dx sdkmath.Int) (sdkmath.Int, error) {
	xp := p.normalized()
	d, err := p.invariant(xp)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	x := xp[i].Add(scaleUp(dx, p.Decimals[i]))
	y, err := p.solveY(i, j, x, xp, d)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	dy := xp[j].Sub(y).Sub(sdkmath.OneInt())
	dy = applyFee(dy, p.FeeBps)
	if dy.IsNegative() {
		dy = sdkmath.ZeroInt()
	}
	return scaleDown(dy, p.Decimals[j]), nil
}

// Swap executes an exact-in swap against the pool, moving tokens through
// the bank.
func (p *StableSwapPool) Swap(i, j int, dx sdkmath.Int, trader common.Address) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dy, err := p.dyGivenDx(i, j, dx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if dy.GTE(p.reserves[j]) {
		return sdkmath.ZeroInt(), ErrInsufficientReserves
	}
	if err := p.bank.Burn(p.Tokens[i], trader, dx); err != nil {
		return sdkmath.ZeroInt(), err
	}
	p.reserves[i] = p.reserves[i].Add(dx)
	p.reserves[j] = p.reserves[j].Sub(dy)
	p.bank.Mint(p.Tokens[j], trader, dy)
	return dy, nil
}

// CalcWithdrawOneCoin quotes the coin j output for burning lptIn shares.
func (p *StableSwapPool) CalcWithdrawOneCoin(lptIn sdkmath.Int, j int) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calcWithdrawOneCoin(lptIn, j)
}

func (p *StableSwapPool) calcWithdrawOneCoin(lptIn sdkmath.Int, j int) (sdkmath.Int, error) {
	if lptIn.GTE(p.totalSupply) {
		// burning the entire supply empties the pool's j reserve
		return p.reserves[j], nil
	}
	xp := p.normalized()
	d0, err := p.invariant(xp)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	d1 := d0.Sub(lptIn.Mul(d0).Quo(p.totalSupply))
	y, err := p.solveYFromD(j, xp, d1)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	dy := xp[j].Sub(y).Sub(sdkmath.OneInt())
	dy = applyFee(dy, p.FeeBps)
	if dy.IsNegative() {
		dy = sdkmath.ZeroInt()
	}
	out := scaleDown(dy, p.Decimals[j])
	if out.GT(p.reserves[j]) {
		out = p.reserves[j]
	}
	return out, nil
}

// CalcLptForWithdraw quotes how many LP shares must burn to produce
// amountOut of coin j, rounding up so the quoted burn always covers the
// request.
func (p *StableSwapPool) CalcLptForWithdraw(amountOut sdkmath.Int, j int) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if amountOut.GTE(p.reserves[j]) {
		// more than the liquid reserve: no share amount can deliver it
		return p.totalSupply.MulRaw(2), nil
	}
	xp := p.normalized()
	d0, err := p.invariant(xp)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	// gross output before the exit fee
	gross := grossUp(scaleUp(amountOut, p.Decimals[j]), p.FeeBps)
	// the fee gross-up can push a near-reserve request past the reserve
	// itself, leaving no solvable reduced invariant
	if gross.AddRaw(1).GTE(xp[j]) {
		return p.totalSupply.MulRaw(2), nil
	}
	reduced := xp
	reduced[j] = xp[j].Sub(gross).Sub(sdkmath.OneInt())
	d1, err := p.invariant(reduced)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	lpt := d0.Sub(d1).Mul(p.totalSupply).Quo(d0)
	// round up and cushion the Newton truncation
	return lpt.AddRaw(1000), nil
}

// RemoveLiquidityOneCoin burns holder's LP shares for coin j.
func (p *StableSwapPool) RemoveLiquidityOneCoin(lptIn sdkmath.Int, j int, minAmountOut sdkmath.Int, holder common.Address) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out, err := p.calcWithdrawOneCoin(lptIn, j)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if out.LT(minAmountOut) {
		return sdkmath.ZeroInt(), fmt.Errorf("slippage: out %s below minimum %s", out, minAmountOut)
	}
	if err := p.bank.Burn(p.LPToken, holder, lptIn); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if lptIn.GTE(p.totalSupply) {
		p.totalSupply = sdkmath.ZeroInt()
	} else {
		p.totalSupply = p.totalSupply.Sub(lptIn)
	}
	p.reserves[j] = p.reserves[j].Sub(out)
	p.bank.Mint(p.Tokens[j], holder, out)
	return out, nil
}

// AddLiquidity deposits coin amounts and mints shares pro rata to the
// invariant growth. Used by tests to move the pool price.
func (p *StableSwapPool) AddLiquidity(amounts [nCoins]sdkmath.Int, depositor common.Address) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d0, err := p.invariant(p.normalized())
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	for i := 0; i < nCoins; i++ {
		if amounts[i].IsZero() {
			continue
		}
		if err := p.bank.Burn(p.Tokens[i], depositor, amounts[i]); err != nil {
			return sdkmath.ZeroInt(), err
		}
		p.reserves[i] = p.reserves[i].Add(amounts[i])
	}
	d1, err := p.invariant(p.normalized())
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	minted := d1.Sub(d0).Mul(p.totalSupply).Quo(d0)
	p.totalSupply = p.totalSupply.Add(minted)
	p.bank.Mint(p.LPToken, depositor, minted)
	return minted, nil
}

// SpotPrice returns the wad-scaled marginal price of coin i in terms of
// coin j, probed with one unit of coin i.
func (p *StableSwapPool) SpotPrice(i, j int) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	probe := sdkmath.NewIntWithDecimal(1, p.Decimals[i])
	dy, err := p.dyGivenDx(i, j, probe)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return scaleUp(dy, p.Decimals[j]), nil
}

func applyFee(amount sdkmath.Int, feeBps uint64) sdkmath.Int {
	if feeBps == 0 {
		return amount
	}
	keep := sdkmath.NewIntFromUint64(10_000 - feeBps)
	return amount.Mul(keep).QuoRaw(10_000)
}

func grossUp(amount sdkmath.Int, feeBps uint64) sdkmath.Int {
	if feeBps == 0 {
		return amount
	}
	keep := sdkmath.NewIntFromUint64(10_000 - feeBps)
	return amount.MulRaw(10_000).Quo(keep).AddRaw(1)
}
