/*

This file contains the keeper that drives the dispatcher. Each cycle
walks every registered tube, runs a siphon pass, records the outcome to
Prometheus and, when persistence is enabled, writes a cycle snapshot row
per tube. A failing tube never stops the cycle; the next cycle simply
re-evaluates from live state.

*/

package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gnosisguild/siphon/internal/fixedpoint"
	"github.com/gnosisguild/siphon/internal/logger"
	"github.com/gnosisguild/siphon/internal/metrics"
	"github.com/gnosisguild/siphon/internal/siphon"
	"github.com/gnosisguild/siphon/internal/state"
	"github.com/gnosisguild/siphon/internal/types"
)

// Keeper periodically siphons every registered tube.
type Keeper struct {
	logger     zerolog.Logger
	dispatcher *siphon.Siphon

	// persist controls whether cycle snapshots are written to the database
	persist bool

	// Runtime state
	cycleCount int
}

// Config holds the configuration for creating a new Keeper instance
type Config struct {
	Dispatcher *siphon.Siphon
	Persist    bool
}

// New creates a Keeper with dependency injection
func New(cfg Config) (*Keeper, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	return &Keeper{
		logger:     logger.GetForComponent("keeper"),
		dispatcher: cfg.Dispatcher,
		persist:    cfg.Persist,
	}, nil
}

// RunLoop starts the main keeper loop with the specified interval
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().
		Dur("interval", interval).
		Msg("Starting keeper main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	k.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.RunCycle(ctx)
		}
	}
}

// RunCycle executes one siphon pass over every registered tube
func (k *Keeper) RunCycle(ctx context.Context) {
	cycleStartTime := time.Now()
	metrics.CyclesTotal.Inc()

	// Unique cycle ID for tracing logs across the entire cycle
	cycleID := uuid.New().String()
	cycleLogger := k.logger.With().Str("cycle_id", cycleID).Logger()

	cycleNumber := k.nextCycleNumber(cycleLogger)
	cycleLogger.Info().Int("cycle", cycleNumber).Msg("--- Starting siphon cycle ---")

	tubes := k.dispatcher.Tubes()
	if len(tubes) == 0 {
		cycleLogger.Warn().Msg("No tubes registered, nothing to do")
		return
	}

	for _, tube := range tubes {
		k.runTube(ctx, cycleLogger, cycleID, cycleNumber, tube)
	}

	elapsed := time.Since(cycleStartTime)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	cycleLogger.Info().
		Int("cycle", cycleNumber).
		Dur("elapsed", elapsed).
		Msg("--- Siphon cycle completed ---")
}

func (k *Keeper) runTube(ctx context.Context, cycleLogger zerolog.Logger, cycleID string, cycleNumber int, tube string) {
	log := cycleLogger.With().Str("tube", tube).Logger()

	result, err := k.dispatcher.Run(ctx, tube)
	metrics.RunsTotal.WithLabelValues(tube, string(result.Outcome)).Inc()

	snapshot := types.CycleSnapshot{
		CycleID:      cycleID,
		CycleNumber:  cycleNumber,
		Tube:         tube,
		Timestamp:    time.Now(),
		Outcome:      result.Outcome,
		Instructions: result.Instructions,
	}
	if !result.RatioBefore.IsNil() {
		snapshot.RatioBefore = result.RatioBefore.String()
		metrics.CollateralRatio.WithLabelValues(tube).Set(fixedpoint.LogFloat(result.RatioBefore, 27))
	}
	if !result.RatioAfter.IsNil() {
		snapshot.RatioAfter = result.RatioAfter.String()
		metrics.CollateralRatio.WithLabelValues(tube).Set(fixedpoint.LogFloat(result.RatioAfter, 27))
	}
	if !result.Delta.IsNil() {
		snapshot.Delta = result.Delta.String()
	}
	if !result.AmountOut.IsNil() {
		snapshot.AmountOut = result.AmountOut.String()
		if result.AmountOut.IsPositive() {
			metrics.AmountOut.WithLabelValues(tube).Add(fixedpoint.LogFloat(result.AmountOut, 18))
		}
	}

	if err != nil {
		snapshot.Error = err.Error()
		log.Error().Err(err).Str("outcome", string(result.Outcome)).Msg("Siphon run failed")
	} else {
		log.Info().Str("outcome", string(result.Outcome)).Msg("Siphon run finished")
	}

	if balance, balErr := k.dispatcher.TubeBalance(ctx, tube); balErr == nil {
		metrics.LiquidityBalance.WithLabelValues(tube).Set(fixedpoint.LogFloat(balance, 18))
	}

	if k.persist {
		if _, saveErr := state.SaveCycleSnapshot(snapshot); saveErr != nil {
			log.Error().Err(saveErr).Msg("Failed to persist cycle snapshot")
		}
	}
}

// nextCycleNumber advances the persistent counter, falling back to the
// in-memory count when persistence is off or the database errors.
func (k *Keeper) nextCycleNumber(log zerolog.Logger) int {
	k.cycleCount++
	if !k.persist {
		return k.cycleCount
	}
	number, err := state.IncrementCycleNumber()
	if err != nil {
		log.Error().Err(err).Msg("Failed to increment persistent cycle counter, using in-memory count")
		return k.cycleCount
	}
	return number
}
