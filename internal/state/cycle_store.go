package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gnosisguild/siphon/internal/types"
)

// SaveCycleSnapshot persists the record of one siphon attempt.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_id, cycle_number, tube, snapshot_timestamp, outcome,
			ratio_before, ratio_after, delta, amount_out,
			instructions, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err := DB.QueryRow(
		query,
		snapshot.CycleID, snapshot.CycleNumber, snapshot.Tube, snapshot.Timestamp, string(snapshot.Outcome),
		nullable(snapshot.RatioBefore), nullable(snapshot.RatioAfter), nullable(snapshot.Delta), nullable(snapshot.AmountOut),
		snapshot.Instructions, nullable(snapshot.Error),
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("tube", snapshot.Tube).
		Str("outcome", string(snapshot.Outcome)).
		Msg("Cycle snapshot saved to database")

	return snapshotID, nil
}

// GetRecentCycles returns the most recent snapshots, newest first.
func GetRecentCycles(limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT snapshot_id, cycle_id, cycle_number, tube, snapshot_timestamp, outcome,
		       ratio_before, ratio_after, delta, amount_out, instructions, error
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1;
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetCyclesForTube returns the most recent snapshots for one tube.
func GetCyclesForTube(tube string, limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT snapshot_id, cycle_id, cycle_number, tube, snapshot_timestamp, outcome,
		       ratio_before, ratio_after, delta, amount_out, instructions, error
		FROM cycle_snapshots
		WHERE tube = $1
		ORDER BY snapshot_timestamp DESC
		LIMIT $2;
	`
	rows, err := DB.Query(query, tube, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle snapshots for tube %s: %w", tube, err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func scanSnapshots(rows *sql.Rows) ([]types.CycleSnapshot, error) {
	snapshots := make([]types.CycleSnapshot, 0)
	for rows.Next() {
		var snapshot types.CycleSnapshot
		var ratioBefore, ratioAfter, delta, amountOut, errText sql.NullString
		err := rows.Scan(
			&snapshot.SnapshotID, &snapshot.CycleID, &snapshot.CycleNumber, &snapshot.Tube,
			&snapshot.Timestamp, &snapshot.Outcome,
			&ratioBefore, &ratioAfter, &delta, &amountOut,
			&snapshot.Instructions, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle snapshot row: %w", err)
		}
		snapshot.RatioBefore = ratioBefore.String
		snapshot.RatioAfter = ratioAfter.String
		snapshot.Delta = delta.String
		snapshot.AmountOut = amountOut.String
		snapshot.Error = errText.String
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cycle snapshot iteration failed: %w", err)
	}
	return snapshots, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
