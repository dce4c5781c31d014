package simulations

import (
	"errors"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

var ErrInsufficientStake = errors.New("insufficient staked balance")

// RewardsPool simulates a Convex-style staking contract holding wrapped
// LP shares for a single account.
type RewardsPool struct {
	mu     sync.Mutex
	pool   *StableSwapPool
	bank   *Bank
	staked map[common.Address]sdkmath.Int
}

func NewRewardsPool(pool *StableSwapPool, bank *Bank) *RewardsPool {
	return &RewardsPool{
		pool:   pool,
		bank:   bank,
		staked: make(map[common.Address]sdkmath.Int),
	}
}

// StakedBalance returns holder's staked share count.
func (r *RewardsPool) StakedBalance(holder common.Address) sdkmath.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.staked[holder]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return bal
}

func (r *RewardsPool) snapshot() map[common.Address]sdkmath.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(map[common.Address]sdkmath.Int, len(r.staked))
	for holder, amount := range r.staked {
		copied[holder] = amount
	}
	return copied
}

func (r *RewardsPool) restore(staked map[common.Address]sdkmath.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staked = staked
}

// Stake moves LP shares from holder's wallet into the rewards pool.
func (r *RewardsPool) Stake(holder common.Address, amount sdkmath.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bank.Burn(r.pool.LPToken, holder, amount); err != nil {
		return err
	}
	bal, ok := r.staked[holder]
	if !ok {
		bal = sdkmath.ZeroInt()
	}
	r.staked[holder] = bal.Add(amount)
	return nil
}

// WithdrawAndUnwrap unstakes shares back to holder's wallet.
func (r *RewardsPool) WithdrawAndUnwrap(holder common.Address, amount sdkmath.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.staked[holder]
	if !ok || bal.LT(amount) {
		return ErrInsufficientStake
	}
	r.staked[holder] = bal.Sub(amount)
	r.bank.Mint(r.pool.LPToken, holder, amount)
	return nil
}
