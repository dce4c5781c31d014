package simulations

import (
	"context"
	"errors"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/gnosisguild/siphon/internal/debt"
	"github.com/gnosisguild/siphon/internal/fixedpoint"
)

var ErrWipeExceedsDebt = errors.New("repayment exceeds outstanding debt")

// MockVat simulates the collateral engine behind a single CDP. It serves
// vault snapshots to the debt adapter and applies repayments.
type MockVat struct {
	mu    sync.Mutex
	state debt.VaultState
	fail  error
}

func NewMockVat(state debt.VaultState) *MockVat {
	return &MockVat{state: state}
}

// VaultState returns the current snapshot, or the injected failure.
func (v *MockVat) VaultState(ctx context.Context) (debt.VaultState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.fail != nil {
		return debt.VaultState{}, v.fail
	}
	return v.state, nil
}

// Wipe repays amount (wad) of stablecoin debt, shrinking normalized debt
// by amount scaled through the accumulated rate.
func (v *MockVat) Wipe(amount sdkmath.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	dart := amount.Mul(fixedpoint.Ray()).Quo(v.state.Rate)
	if dart.GT(v.state.Art) {
		return ErrWipeExceedsDebt
	}
	v.state.Art = v.state.Art.Sub(dart)
	return nil
}

func (v *MockVat) snapshot() debt.VaultState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *MockVat) restore(state debt.VaultState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = state
}

// SetState replaces the snapshot wholesale.
func (v *MockVat) SetState(state debt.VaultState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = state
}

// FailWith makes subsequent VaultState calls return err. Pass nil to
// clear.
func (v *MockVat) FailWith(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fail = err
}
