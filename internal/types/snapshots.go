/*

This file contains the types recorded for every siphon attempt. A cycle
snapshot captures what the keeper saw and did for one tube in one cycle,
and is persisted so operators can audit the rebalancing history.

*/

package types

import "time"

// CycleOutcome labels how a siphon attempt for a tube ended.
type CycleOutcome string

const (
	OutcomeSkipped   CycleOutcome = "SKIPPED"   // ratio above trigger, nothing to do
	OutcomeRebalance CycleOutcome = "REBALANCED"
	OutcomeNoOp      CycleOutcome = "NO_OP"   // no liquidity available, nothing executed
	OutcomeBlocked   CycleOutcome = "BLOCKED" // parity gate tripped
	OutcomeFailed    CycleOutcome = "FAILED"
)

// CycleSnapshot is the persisted record of one siphon attempt.
type CycleSnapshot struct {
	SnapshotID   int64        `json:"snapshot_id,omitempty"` // assigned by the database
	CycleID      string       `json:"cycle_id"`              // UUID shared by all tubes in a keeper cycle
	CycleNumber  int          `json:"cycle_number"`
	Tube         string       `json:"tube"`
	Timestamp    time.Time    `json:"timestamp"`
	Outcome      CycleOutcome `json:"outcome"`
	RatioBefore  string       `json:"ratio_before,omitempty"` // ray fixed-point, stringified
	RatioAfter   string       `json:"ratio_after,omitempty"`
	Delta        string       `json:"delta,omitempty"`           // wad, requested capital
	AmountOut    string       `json:"amount_out,omitempty"`      // wad, actually received
	Instructions int          `json:"instructions"`              // number of instructions executed
	Error        string       `json:"error,omitempty"`
}
