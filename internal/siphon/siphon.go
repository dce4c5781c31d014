/*

This file contains the dispatcher. It pairs one debt position adapter
with one liquidity position adapter under a named tube and moves capital
between them: withdraw from the pool, measure what actually arrived, pay
the measured amount down on the debt. Every sizing decision is recomputed
from live state and every step either completes or aborts the whole run.

*/

package siphon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/gnosisguild/siphon/internal/fixedpoint"
	"github.com/gnosisguild/siphon/internal/liquidity"
	"github.com/gnosisguild/siphon/internal/logger"
	"github.com/gnosisguild/siphon/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnauthorized  = errors.New("caller is not the siphon owner")
	ErrTubeNotFound  = errors.New("no tube registered under that name")
	ErrTubeExists    = errors.New("a tube is already registered under that name")
	ErrNilAdapter    = errors.New("tube adapters cannot be nil")
	ErrEmptyTubeName = errors.New("tube name cannot be empty")
)

// DebtAdapter is the debt position side of a tube.
type DebtAdapter interface {
	Asset() common.Address
	Ratio(ctx context.Context) (sdkmath.Int, error)
	Delta(ctx context.Context) (sdkmath.Int, error)
	NeedsRebalancing(ctx context.Context) (bool, error)
	PaymentInstructions(amount sdkmath.Int) ([]types.Instruction, error)
}

// LiquidityAdapter is the liquidity position side of a tube.
type LiquidityAdapter interface {
	Balance(ctx context.Context) (sdkmath.Int, error)
	WithdrawalInstructions(ctx context.Context, requested sdkmath.Int) ([]types.Instruction, error)
}

// Executor runs instruction batches through the custodial safe. A batch
// is atomic: either every instruction lands or none do.
type Executor interface {
	Execute(ctx context.Context, instructions []types.Instruction) error
	TokenBalance(ctx context.Context, token common.Address) (sdkmath.Int, error)
}

// Tube is a registered debt/liquidity pairing.
type Tube struct {
	Name      string
	Debt      DebtAdapter
	Liquidity LiquidityAdapter
}

// Result reports what one siphon run did.
type Result struct {
	Outcome     types.CycleOutcome
	RatioBefore sdkmath.Int
	RatioAfter  sdkmath.Int
	Delta       sdkmath.Int
	AmountOut   sdkmath.Int
	// Instructions is the total count executed across both phases.
	Instructions int
}

// Siphon dispatches rebalancing runs across registered tubes.
type Siphon struct {
	owner    common.Address
	executor Executor
	log      zerolog.Logger

	mu    sync.RWMutex
	tubes map[string]Tube
}

// New creates a dispatcher bound to one executor.
func New(owner common.Address, executor Executor) (*Siphon, error) {
	if executor == nil {
		return nil, errors.New("executor cannot be nil")
	}
	return &Siphon{
		owner:    owner,
		executor: executor,
		log:      logger.GetForComponent("siphon"),
		tubes:    make(map[string]Tube),
	}, nil
}

// ConnectTube registers a named debt/liquidity pairing. Owner-gated;
// names are unique.
func (s *Siphon) ConnectTube(caller common.Address, name string, debt DebtAdapter, liquidity LiquidityAdapter) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	if name == "" {
		return ErrEmptyTubeName
	}
	if debt == nil || liquidity == nil {
		return ErrNilAdapter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tubes[name]; exists {
		return fmt.Errorf("%w: %s", ErrTubeExists, name)
	}
	s.tubes[name] = Tube{Name: name, Debt: debt, Liquidity: liquidity}
	s.log.Info().Str("tube", name).Msg("Connected tube")
	return nil
}

// DisconnectTube removes a registered tube. Owner-gated.
func (s *Siphon) DisconnectTube(caller common.Address, name string) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tubes[name]; !exists {
		return fmt.Errorf("%w: %s", ErrTubeNotFound, name)
	}
	delete(s.tubes, name)
	s.log.Info().Str("tube", name).Msg("Disconnected tube")
	return nil
}

// Tubes lists the registered tube names.
func (s *Siphon) Tubes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tubes))
	for name := range s.tubes {
		names = append(names, name)
	}
	return names
}

// TubeBalance reports the named tube's redeemable liquidity in the debt
// asset.
func (s *Siphon) TubeBalance(ctx context.Context, name string) (sdkmath.Int, error) {
	tube, err := s.lookup(name)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return tube.Liquidity.Balance(ctx)
}

func (s *Siphon) lookup(name string) (Tube, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tube, exists := s.tubes[name]
	if !exists {
		return Tube{}, fmt.Errorf("%w: %s", ErrTubeNotFound, name)
	}
	return tube, nil
}

// Run executes one siphon pass over the named tube. Any failing step
// aborts the whole pass; retries re-evaluate from live state.
func (s *Siphon) Run(ctx context.Context, name string) (Result, error) {
	// Step 1: resolve the tube
	tube, err := s.lookup(name)
	if err != nil {
		return Result{Outcome: types.OutcomeFailed}, err
	}
	log := s.log.With().Str("tube", name).Logger()

	ratioBefore, err := tube.Debt.Ratio(ctx)
	if err != nil {
		return Result{Outcome: types.OutcomeFailed}, fmt.Errorf("ratio read failed: %w", err)
	}

	// Step 2: skip healthy positions
	needs, err := tube.Debt.NeedsRebalancing(ctx)
	if err != nil {
		return Result{Outcome: types.OutcomeFailed}, fmt.Errorf("trigger check failed: %w", err)
	}
	if !needs {
		log.Debug().
			Float64("ratio", fixedpoint.LogFloat(ratioBefore, 27)).
			Msg("Position above trigger, nothing to do")
		return Result{Outcome: types.OutcomeSkipped, RatioBefore: ratioBefore, RatioAfter: ratioBefore}, nil
	}

	// Step 3: size the shortfall
	delta, err := tube.Debt.Delta(ctx)
	if err != nil {
		return Result{Outcome: types.OutcomeFailed}, fmt.Errorf("delta computation failed: %w", err)
	}
	log.Info().
		Float64("ratio", fixedpoint.LogFloat(ratioBefore, 27)).
		Float64("delta", fixedpoint.LogFloat(delta, 18)).
		Msg("Position below trigger, siphoning")

	// Step 4: build the withdrawal, parity gate included
	withdrawal, err := tube.Liquidity.WithdrawalInstructions(ctx, delta)
	if err != nil {
		return Result{Outcome: outcomeForWithdrawalError(err), RatioBefore: ratioBefore, Delta: delta},
			fmt.Errorf("withdrawal sizing failed: %w", err)
	}
	if len(withdrawal) == 0 {
		log.Warn().Msg("No liquidity available to withdraw, leaving position untouched")
		return Result{Outcome: types.OutcomeNoOp, RatioBefore: ratioBefore, RatioAfter: ratioBefore, Delta: delta}, nil
	}

	asset := tube.Debt.Asset()
	balanceBefore, err := s.executor.TokenBalance(ctx, asset)
	if err != nil {
		return Result{Outcome: types.OutcomeFailed, RatioBefore: ratioBefore, Delta: delta},
			fmt.Errorf("pre-withdrawal balance read failed: %w", err)
	}

	// Step 5: execute the withdrawal
	if err := s.executor.Execute(ctx, withdrawal); err != nil {
		return Result{Outcome: types.OutcomeFailed, RatioBefore: ratioBefore, Delta: delta},
			fmt.Errorf("withdrawal execution failed: %w", err)
	}

	// Step 6: measure what actually arrived, not what was requested
	balanceAfter, err := s.executor.TokenBalance(ctx, asset)
	if err != nil {
		return Result{Outcome: types.OutcomeFailed, RatioBefore: ratioBefore, Delta: delta},
			fmt.Errorf("post-withdrawal balance read failed: %w", err)
	}
	received := balanceAfter.Sub(balanceBefore)
	if !received.IsPositive() {
		log.Warn().
			Str("balanceBefore", balanceBefore.String()).
			Str("balanceAfter", balanceAfter.String()).
			Msg("Withdrawal produced no output, leaving position untouched")
		return Result{
			Outcome:      types.OutcomeNoOp,
			RatioBefore:  ratioBefore,
			RatioAfter:   ratioBefore,
			Delta:        delta,
			AmountOut:    sdkmath.ZeroInt(),
			Instructions: len(withdrawal),
		}, nil
	}

	// Step 7: pay the measured amount down on the debt
	payment, err := tube.Debt.PaymentInstructions(received)
	if err != nil {
		return Result{Outcome: types.OutcomeFailed, RatioBefore: ratioBefore, Delta: delta, AmountOut: received},
			fmt.Errorf("payment sizing failed: %w", err)
	}
	if err := s.executor.Execute(ctx, payment); err != nil {
		return Result{Outcome: types.OutcomeFailed, RatioBefore: ratioBefore, Delta: delta, AmountOut: received},
			fmt.Errorf("payment execution failed: %w", err)
	}

	// Step 8: confirm the ratio moved
	ratioAfter, err := tube.Debt.Ratio(ctx)
	if err != nil {
		return Result{Outcome: types.OutcomeFailed, RatioBefore: ratioBefore, Delta: delta, AmountOut: received},
			fmt.Errorf("post-payment ratio read failed: %w", err)
	}
	log.Info().
		Float64("ratioBefore", fixedpoint.LogFloat(ratioBefore, 27)).
		Float64("ratioAfter", fixedpoint.LogFloat(ratioAfter, 27)).
		Float64("received", fixedpoint.LogFloat(received, 18)).
		Msg("Siphon complete")

	return Result{
		Outcome:      types.OutcomeRebalance,
		RatioBefore:  ratioBefore,
		RatioAfter:   ratioAfter,
		Delta:        delta,
		AmountOut:    received,
		Instructions: len(withdrawal) + len(payment),
	}, nil
}

// outcomeForWithdrawalError separates a parity-guarded block from a
// genuine failure so the cycle record reflects the distinction.
func outcomeForWithdrawalError(err error) types.CycleOutcome {
	if errors.Is(err, liquidity.ErrWithdrawalBlocked) {
		return types.OutcomeBlocked
	}
	return types.OutcomeFailed
}
