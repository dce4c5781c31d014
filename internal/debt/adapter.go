/*

This file contains the debt position adapter for Maker-style vaults. It
reads live vault state through the VaultReader oracle, derives the current
collateralization ratio, sizes the capital delta needed to repair it, and
builds the repayment instruction sequence for the safe.

Fixed-point conventions follow Maker: ink and art are wad (18 decimals),
rate, spot and mat are ray (27 decimals). The ratio is ray, the delta wad.

*/

package debt

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/gnosisguild/siphon/internal/encoding"
	"github.com/gnosisguild/siphon/internal/fixedpoint"
	"github.com/gnosisguild/siphon/internal/logger"
	"github.com/gnosisguild/siphon/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnauthorized       = errors.New("caller is not the adapter owner")
	ErrInvalidOracleState = errors.New("vault oracle returned invalid state")
	ErrInvalidRatioBounds = errors.New("ratio target must be greater than ratio trigger")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrNilReader          = errors.New("vault reader cannot be nil")
)

// VaultState is one consistent snapshot of the on-chain vault.
type VaultState struct {
	Ink  sdkmath.Int // wad, locked collateral
	Art  sdkmath.Int // wad, normalized debt
	Rate sdkmath.Int // ray, debt accrual index, >= 1
	Spot sdkmath.Int // ray, collateral price with safety margin applied
	Mat  sdkmath.Int // ray, liquidation ratio, >= 1
}

// VaultReader exposes the debt protocol's read-only accounting. Every call
// must return fresh on-chain state; the adapter never caches it.
type VaultReader interface {
	VaultState(ctx context.Context) (VaultState, error)
}

// Config carries the deployment-time wiring of one vault adapter.
type Config struct {
	Asset        common.Address // debt asset (DAI)
	CDPManager   common.Address
	DaiJoin      common.Address // payment relay approved for repayments
	DSProxy      common.Address
	ProxyActions common.Address
	CDP          uint64 // vault identifier (urn)
	Owner        common.Address
	RatioTarget  sdkmath.Int // ray
	RatioTrigger sdkmath.Int // ray
}

// Adapter reads a collateralized debt position and builds repayment
// instructions. All sizing is recomputed from live oracle state on every
// call.
type Adapter struct {
	cfg    Config
	reader VaultReader
	log    zerolog.Logger

	mu           sync.RWMutex
	ratioTarget  sdkmath.Int
	ratioTrigger sdkmath.Int
}

// New validates the configuration and wires the adapter. The
// target/trigger ordering is enforced here and on the setters.
func New(cfg Config, reader VaultReader) (*Adapter, error) {
	if reader == nil {
		return nil, ErrNilReader
	}
	if cfg.RatioTarget.IsNil() || cfg.RatioTrigger.IsNil() ||
		!cfg.RatioTarget.IsPositive() || !cfg.RatioTrigger.IsPositive() {
		return nil, fmt.Errorf("%w: target and trigger must be positive", ErrInvalidRatioBounds)
	}
	if !cfg.RatioTarget.GT(cfg.RatioTrigger) {
		return nil, ErrInvalidRatioBounds
	}
	return &Adapter{
		cfg:          cfg,
		reader:       reader,
		log:          logger.GetForComponent("debt_adapter"),
		ratioTarget:  cfg.RatioTarget,
		ratioTrigger: cfg.RatioTrigger,
	}, nil
}

// Asset returns the debt asset withdrawn liquidity must be denominated in.
func (a *Adapter) Asset() common.Address {
	return a.cfg.Asset
}

// RatioTarget returns the configured target collateralization ratio (ray).
func (a *Adapter) RatioTarget() sdkmath.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ratioTarget
}

// RatioTrigger returns the configured trigger ratio (ray).
func (a *Adapter) RatioTrigger() sdkmath.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ratioTrigger
}

// SetRatioTarget updates the target ratio. Owner-gated; the new target must
// stay above the trigger.
func (a *Adapter) SetRatioTarget(caller common.Address, v sdkmath.Int) error {
	if caller != a.cfg.Owner {
		return ErrUnauthorized
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if v.IsNil() || !v.GT(a.ratioTrigger) {
		return ErrInvalidRatioBounds
	}
	a.ratioTarget = v
	return nil
}

// SetRatioTrigger updates the trigger ratio. Owner-gated; the new trigger
// must stay below the target.
func (a *Adapter) SetRatioTrigger(caller common.Address, v sdkmath.Int) error {
	if caller != a.cfg.Owner {
		return ErrUnauthorized
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if v.IsNil() || !v.IsPositive() || !v.LT(a.ratioTarget) {
		return ErrInvalidRatioBounds
	}
	a.ratioTrigger = v
	return nil
}

// Ratio returns the current collateralization ratio (ray), recomputed from
// a fresh oracle snapshot.
func (a *Adapter) Ratio(ctx context.Context) (sdkmath.Int, error) {
	state, err := a.snapshot(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return ratioFromState(state)
}

// Delta returns the capital (wad, debt asset) required to lift the ratio to
// the target, or zero when the position is already at or above it. Ratio
// and delta are derived from the same snapshot so the decision and its
// sizing cannot diverge.
func (a *Adapter) Delta(ctx context.Context) (sdkmath.Int, error) {
	state, err := a.snapshot(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return deltaFromState(state, a.RatioTarget())
}

// NeedsRebalancing reports whether the ratio has fallen below the trigger.
// The trigger/target pair forms a hysteresis band: repair starts below the
// trigger but always aims at the higher target.
func (a *Adapter) NeedsRebalancing(ctx context.Context) (bool, error) {
	ratio, err := a.Ratio(ctx)
	if err != nil {
		return false, err
	}
	return ratio.LT(a.RatioTrigger()), nil
}

// PaymentInstructions encodes the repayment of amount against the vault:
// an approval of the debt asset to the payment relay, then the wipe call
// through the position's proxy. Amounts are encoded exactly as given.
func (a *Adapter) PaymentInstructions(amount sdkmath.Int) ([]types.Instruction, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}

	approve, err := encoding.PackApprove(a.cfg.DaiJoin, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approval: %w", err)
	}
	wipe, err := encoding.PackWipe(a.cfg.ProxyActions, a.cfg.CDPManager, a.cfg.DaiJoin, a.cfg.CDP, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode wipe: %w", err)
	}

	a.log.Debug().
		Uint64("cdp", a.cfg.CDP).
		Str("amount", amount.String()).
		Msg("Built payment instructions")

	return []types.Instruction{
		types.NewCall(a.cfg.Asset, approve),
		types.NewCall(a.cfg.DSProxy, wipe),
	}, nil
}

// snapshot reads and validates one consistent vault state.
func (a *Adapter) snapshot(ctx context.Context) (VaultState, error) {
	state, err := a.reader.VaultState(ctx)
	if err != nil {
		return VaultState{}, fmt.Errorf("vault oracle read failed: %w", err)
	}
	if err := state.validate(); err != nil {
		return VaultState{}, err
	}
	return state, nil
}

func (s VaultState) validate() error {
	for name, v := range map[string]sdkmath.Int{
		"ink": s.Ink, "art": s.Art, "rate": s.Rate, "spot": s.Spot, "mat": s.Mat,
	} {
		if v.IsNil() || v.IsNegative() {
			return fmt.Errorf("%w: %s is nil or negative", ErrInvalidOracleState, name)
		}
	}
	ray := fixedpoint.Ray()
	if s.Rate.LT(ray) {
		return fmt.Errorf("%w: rate below one", ErrInvalidOracleState)
	}
	if s.Mat.LT(ray) {
		return fmt.Errorf("%w: mat below one", ErrInvalidOracleState)
	}
	if s.Spot.IsZero() {
		return fmt.Errorf("%w: spot price is zero", ErrInvalidOracleState)
	}
	return nil
}

// ratioFromState computes ink*spot*mat / (art*rate), ray-scaled. The order
// of operations is fixed here and covered by an exact-value test; other
// groupings differ in the last ray digit.
func ratioFromState(s VaultState) (sdkmath.Int, error) {
	debt := new(big.Int).Mul(s.Art.BigInt(), s.Rate.BigInt()) // rad (45 decimals)
	if debt.Sign() == 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: position has no debt", ErrInvalidOracleState)
	}
	// The numerator exceeds 256 bits on realistic vault state, so the
	// intermediates stay on big.Int; the quotient fits comfortably.
	num := new(big.Int).Mul(s.Ink.BigInt(), s.Spot.BigInt())
	num.Mul(num, s.Mat.BigInt())
	return sdkmath.NewIntFromBigInt(num.Quo(num, debt)), nil
}

// deltaFromState sizes the repayment that moves the ratio to target,
// assuming repayment reduces debt linearly and leaves collateral unchanged:
// delta = debt * (target - ratio) / ratio.
func deltaFromState(s VaultState, target sdkmath.Int) (sdkmath.Int, error) {
	ratio, err := ratioFromState(s)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if ratio.GTE(target) {
		return sdkmath.ZeroInt(), nil
	}
	debtWad := s.Art.Mul(s.Rate).Quo(fixedpoint.Ray())
	return fixedpoint.MulDiv(debtWad, target.Sub(ratio), ratio)
}
