package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/wesm/vibepulse/internal/datekey"
	"github.com/wesm/vibepulse/internal/logger"
	"github.com/wesm/vibepulse/internal/models"
)

// costTolerance is the smallest cost difference maintenance treats as a change.
const costTolerance = 0.0001

type storedSample struct {
	id        int64
	tool      string
	dateKey   string
	totalCost float64
	deltaCost float64
}

// BackfillSampleDeltas recomputes delta_cost for every sample by replaying each
// (tool, day) in recorded order from a zero baseline. Only rows whose delta
// changes are rewritten. It returns the number of rows updated; on failure
// nothing is changed.
func (db *DB) BackfillSampleDeltas() (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var updated int
	err := db.withTx(func(tx *sql.Tx) error {
		samples, err := loadSamplesForBackfill(tx)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(context.Background(), "UPDATE samples SET delta_cost = ? WHERE id = ?")
		if err != nil {
			return fmt.Errorf("prepare delta update: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		var prevTool, prevDateKey string
		var prevTotal float64
		for i, sample := range samples {
			if i == 0 || sample.tool != prevTool || sample.dateKey != prevDateKey {
				prevTool = sample.tool
				prevDateKey = sample.dateKey
				prevTotal = 0
			}

			delta := max(0, sample.totalCost-prevTotal)
			if math.Abs(delta-sample.deltaCost) > costTolerance {
				if _, err := stmt.ExecContext(context.Background(), delta, sample.id); err != nil {
					return fmt.Errorf("update delta of sample %d: %w", sample.id, err)
				}
				updated++
			}

			prevTotal = sample.totalCost
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: backfill sample deltas: %v", ErrMaintenance, err)
	}

	logger.Info("backfilled sample deltas", "updated", updated)
	return updated, nil
}

func loadSamplesForBackfill(tx *sql.Tx) ([]storedSample, error) {
	query := `
		SELECT id, tool, date_key, total_cost, delta_cost
		FROM samples
		ORDER BY tool, date_key, recorded_at ASC, id ASC
	`

	rows, err := tx.QueryContext(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var samples []storedSample
	for rows.Next() {
		var s storedSample
		if err := rows.Scan(&s.id, &s.tool, &s.dateKey, &s.totalCost, &s.deltaCost); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

type storedRollup struct {
	dateKey   string
	totalCost float64
}

// NormalizeDailyRollupDates rewrites tool's rollups stored under a
// non-canonical date key. A row whose canonical key is free is renamed; a row
// colliding with an existing canonical row is merged into it by keeping the
// larger cost, then deleted. It returns the number of rows touched; on failure
// nothing is changed.
func (db *DB) NormalizeDailyRollupDates(tool models.Tool) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var touched int
	err := db.withTx(func(tx *sql.Tx) error {
		rollups, err := loadRollupsForTool(tx, tool)
		if err != nil {
			return err
		}

		for _, rollup := range rollups {
			if datekey.IsCanonical(rollup.dateKey) {
				continue
			}
			normalized, ok := datekey.Normalize(rollup.dateKey)
			if !ok {
				continue
			}

			if err := db.normalizeRollup(tx, tool, rollup, normalized); err != nil {
				return err
			}
			touched++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: normalize %s rollup dates: %v", ErrMaintenance, tool, err)
	}

	logger.Info("normalized daily rollup dates", "tool", tool, "updated", touched)
	return touched, nil
}

func (db *DB) normalizeRollup(tx *sql.Tx, tool models.Tool, rollup storedRollup, normalized string) error {
	ctx := context.Background()

	var existing float64
	err := tx.QueryRowContext(ctx,
		"SELECT total_cost FROM daily_rollups WHERE tool = ? AND date_key = ? LIMIT 1",
		tool.String(), normalized,
	).Scan(&existing)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := tx.ExecContext(ctx,
			"UPDATE daily_rollups SET date_key = ? WHERE tool = ? AND date_key = ?",
			normalized, tool.String(), rollup.dateKey,
		)
		if err != nil {
			return fmt.Errorf("rename rollup %q: %w", rollup.dateKey, err)
		}
		return nil

	case err != nil:
		return fmt.Errorf("load rollup %q: %w", normalized, err)
	}

	merged := max(existing, rollup.totalCost)
	if math.Abs(merged-existing) > costTolerance {
		if err := upsertDailyRollup(tx, tool, normalized, merged, db.now()); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM daily_rollups WHERE tool = ? AND date_key = ?",
		tool.String(), rollup.dateKey,
	)
	if err != nil {
		return fmt.Errorf("delete rollup %q: %w", rollup.dateKey, err)
	}
	return nil
}

func loadRollupsForTool(tx *sql.Tx, tool models.Tool) ([]storedRollup, error) {
	rows, err := tx.QueryContext(context.Background(),
		"SELECT date_key, total_cost FROM daily_rollups WHERE tool = ?",
		tool.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query rollups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rollups []storedRollup
	for rows.Next() {
		var r storedRollup
		if err := rows.Scan(&r.dateKey, &r.totalCost); err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		rollups = append(rollups, r)
	}
	return rollups, rows.Err()
}
