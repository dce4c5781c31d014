/*

This file contains the pool math strategy boundary. A strategy binds one
pool family (Balancer boosted, Balancer stable, Curve/Convex lending) to
the generic liquidity adapter: it answers sizing queries against the live
pool and encodes the family's unstake and exit transactions. All amounts
referring to the reference asset are wad scaled.

*/

package liquidity

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gnosisguild/siphon/internal/types"
)

// GuardMode selects how the parity gate treats price deviations.
type GuardMode int

const (
	// GuardSymmetric blocks when any price leaves the tolerance band in
	// either direction.
	GuardSymmetric GuardMode = iota
	// GuardUpperOnly blocks only when a price rises above parity beyond the
	// tolerance. Downward deviation makes a sandwich unprofitable for the
	// attacker, so withdrawals stay open.
	GuardUpperOnly
)

// PoolMathStrategy is the per-family boundary consumed by the adapter.
type PoolMathStrategy interface {
	// ReferenceAsset is the asset withdrawals are denominated in.
	ReferenceAsset() common.Address

	// ShareBalances returns the position's unstaked and staked share
	// balances, read live.
	ShareBalances(ctx context.Context) (unstaked, staked sdkmath.Int, err error)

	// OutGivenIn quotes the reference-asset output for exiting sharesIn.
	OutGivenIn(ctx context.Context, sharesIn sdkmath.Int) (sdkmath.Int, error)

	// InGivenOut quotes the shares required to produce amountOut of the
	// reference asset.
	InGivenOut(ctx context.Context, amountOut sdkmath.Int) (sdkmath.Int, error)

	// MaxAmountOut is the reference asset liquidity physically present in
	// the relevant sub-pool right now.
	MaxAmountOut(ctx context.Context) (sdkmath.Int, error)

	// ParityPrices returns the wad-scaled price of every non-reference
	// underlying stable relative to the reference asset (1e18 = parity).
	ParityPrices(ctx context.Context) ([]sdkmath.Int, error)

	// GuardMode is the parity gate direction for this pool family.
	GuardMode() GuardMode

	// UnstakeInstructions moves shares from the staked to the unstaked
	// balance.
	UnstakeInstructions(shares sdkmath.Int) ([]types.Instruction, error)

	// ExitInstructions swaps or exits sharesIn for at least minAmountOut of
	// the reference asset.
	ExitInstructions(sharesIn, minAmountOut sdkmath.Int) ([]types.Instruction, error)
}
