/*

This package is the simulation backend: an in-memory rendition of the
external protocols the adapters talk to. It backs the test suites and the
keeper's dry-run mode, mirroring how the live chain client backs
production.

This file contains the token bank: ERC20-style balances per token and
holder.

*/

package simulations

import (
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Bank tracks fungible token balances for the simulated world.
type Bank struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]sdkmath.Int
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{balances: make(map[common.Address]map[common.Address]sdkmath.Int)}
}

// BalanceOf returns holder's balance of token, zero when unknown.
func (b *Bank) BalanceOf(token, holder common.Address) sdkmath.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(token, holder)
}

// Mint credits amount of token to holder.
func (b *Bank) Mint(token, holder common.Address, amount sdkmath.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(token, holder, b.get(token, holder).Add(amount))
}

// Burn debits amount of token from holder, failing on insufficient funds.
func (b *Bank) Burn(token, holder common.Address, amount sdkmath.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	balance := b.get(token, holder)
	if balance.LT(amount) {
		return fmt.Errorf("insufficient balance: have %s, need %s", balance, amount)
	}
	b.set(token, holder, balance.Sub(amount))
	return nil
}

// snapshot deep-copies the balance table so a failed batch can restore it.
func (b *Bank) snapshot() map[common.Address]map[common.Address]sdkmath.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := make(map[common.Address]map[common.Address]sdkmath.Int, len(b.balances))
	for token, holders := range b.balances {
		inner := make(map[common.Address]sdkmath.Int, len(holders))
		for holder, amount := range holders {
			inner[holder] = amount
		}
		copied[token] = inner
	}
	return copied
}

func (b *Bank) restore(balances map[common.Address]map[common.Address]sdkmath.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = balances
}

func (b *Bank) get(token, holder common.Address) sdkmath.Int {
	holders, ok := b.balances[token]
	if !ok {
		return sdkmath.ZeroInt()
	}
	amount, ok := holders[holder]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return amount
}

func (b *Bank) set(token, holder common.Address, amount sdkmath.Int) {
	holders, ok := b.balances[token]
	if !ok {
		holders = make(map[common.Address]sdkmath.Int)
		b.balances[token] = holders
	}
	holders[holder] = amount
}
