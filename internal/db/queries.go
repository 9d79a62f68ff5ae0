package db

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/wesm/vibepulse/internal/datekey"
	"github.com/wesm/vibepulse/internal/logger"
	"github.com/wesm/vibepulse/internal/models"
)

const upsertDailyRollupQuery = `
	INSERT INTO daily_rollups (date_key, tool, total_cost, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(date_key, tool) DO UPDATE SET
		total_cost = excluded.total_cost,
		updated_at = excluded.updated_at
`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UpsertDailyTotals replaces the rollup for every (dateKey, tool) in totals.
// Each row is written atomically; an error stops the loop and earlier rows stay written.
func (db *DB) UpsertDailyTotals(tool models.Tool, totals []models.DailyTotal) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	updatedAt := db.now()
	for _, total := range totals {
		if err := upsertDailyRollup(db.conn, tool, total.DateKey, total.Cost, updatedAt); err != nil {
			return err
		}
	}
	return nil
}

func upsertDailyRollup(ex execer, tool models.Tool, dateKey string, cost float64, updatedAt time.Time) error {
	_, err := ex.ExecContext(context.Background(), upsertDailyRollupQuery,
		dateKey,
		tool.String(),
		cost,
		toEpoch(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert %s rollup for %s: %v", ErrWrite, tool, dateKey, err)
	}
	return nil
}

// InsertSample appends an observation of tool's cumulative cost at recordedAt.
// Its delta is measured against the latest earlier sample of the same day, and
// never goes below zero.
func (db *DB) InsertSample(tool models.Tool, totalCost float64, recordedAt time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	dateKey := datekey.FromTime(recordedAt)

	baseline, _, err := latestSampleCost(db.conn, dateKey, tool)
	if err != nil {
		return fmt.Errorf("%w: load %s baseline for %s: %v", ErrWrite, tool, dateKey, err)
	}
	deltaCost := max(0, totalCost-baseline)

	query := `
		INSERT INTO samples (tool, recorded_at, total_cost, delta_cost, date_key)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = db.conn.ExecContext(context.Background(), query,
		tool.String(),
		toEpoch(recordedAt),
		totalCost,
		deltaCost,
		dateKey,
	)
	if err != nil {
		return fmt.Errorf("%w: insert %s sample: %v", ErrWrite, tool, err)
	}

	return nil
}

// latestSampleCost returns the total of the most recent sample for the day, if any.
func latestSampleCost(ex execer, dateKey string, tool models.Tool) (float64, bool, error) {
	query := `
		SELECT total_cost
		FROM samples
		WHERE date_key = ? AND tool = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`

	var cost float64
	err := ex.QueryRowContext(context.Background(), query, dateKey, tool.String()).Scan(&cost)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cost, true, nil
}

// FetchSamples returns tool's samples recorded within [from, to].
// Failures are logged and yield an empty result.
func (db *DB) FetchSamples(tool models.Tool, from, to time.Time) []models.Sample {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		SELECT id, recorded_at, total_cost, delta_cost, date_key
		FROM samples
		WHERE tool = ? AND recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at ASC, id ASC
	`

	rows, err := db.conn.QueryContext(context.Background(), query, tool.String(), toEpoch(from), toEpoch(to))
	if err != nil {
		logger.Debug("failed to query samples", "tool", tool, "error", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var samples []models.Sample
	for rows.Next() {
		sample := models.Sample{Tool: tool}
		var recordedAt float64
		if err := rows.Scan(&sample.ID, &recordedAt, &sample.TotalCost, &sample.DeltaCost, &sample.DateKey); err != nil {
			logger.Debug("failed to scan sample", "tool", tool, "error", err)
			return nil
		}
		sample.RecordedAt = fromEpoch(recordedAt)
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		logger.Debug("failed to iterate samples", "tool", tool, "error", err)
		return nil
	}

	return samples
}

// FetchDailyRollups returns the rollups of every tool whose normalized date key
// is on or after sinceDateKey, sorted by date key. Rows with an unrecognized
// date or tool are skipped. Failures are logged and yield an empty result.
func (db *DB) FetchDailyRollups(sinceDateKey string) []models.DailyRollup {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		SELECT date_key, tool, total_cost, updated_at
		FROM daily_rollups
	`

	rows, err := db.conn.QueryContext(context.Background(), query)
	if err != nil {
		logger.Debug("failed to query daily rollups", "error", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var rollups []models.DailyRollup
	for rows.Next() {
		var rawKey, rawTool string
		var totalCost, updatedAt float64
		if err := rows.Scan(&rawKey, &rawTool, &totalCost, &updatedAt); err != nil {
			logger.Debug("failed to scan daily rollup", "error", err)
			return nil
		}

		dateKey, ok := datekey.Normalize(rawKey)
		if !ok || dateKey < sinceDateKey {
			continue
		}
		tool, err := models.ParseTool(rawTool)
		if err != nil {
			continue
		}

		rollups = append(rollups, models.DailyRollup{
			DateKey:   dateKey,
			Tool:      tool,
			TotalCost: totalCost,
			UpdatedAt: fromEpoch(updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		logger.Debug("failed to iterate daily rollups", "error", err)
		return nil
	}

	slices.SortStableFunc(rollups, func(a, b models.DailyRollup) int {
		if c := cmp.Compare(a.DateKey, b.DateKey); c != 0 {
			return c
		}
		return cmp.Compare(a.Tool, b.Tool)
	})

	return rollups
}

// DailyTotal returns the rollup cost for tool on dateKey.
// The second result is false when there is no row or the lookup failed.
func (db *DB) DailyTotal(dateKey string, tool models.Tool) (float64, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		SELECT total_cost
		FROM daily_rollups
		WHERE date_key = ? AND tool = ?
		LIMIT 1
	`

	var cost float64
	err := db.conn.QueryRowContext(context.Background(), query, dateKey, tool.String()).Scan(&cost)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Debug("failed to query daily total", "date_key", dateKey, "tool", tool, "error", err)
		}
		return 0, false
	}
	return cost, true
}

// LatestSample returns the most recent sample of tool on dateKey.
// The second result is false when there is no row or the lookup failed.
func (db *DB) LatestSample(dateKey string, tool models.Tool) (models.Sample, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		SELECT id, recorded_at, total_cost, delta_cost, date_key
		FROM samples
		WHERE date_key = ? AND tool = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`

	sample := models.Sample{Tool: tool}
	var recordedAt float64
	err := db.conn.QueryRowContext(context.Background(), query, dateKey, tool.String()).Scan(
		&sample.ID,
		&recordedAt,
		&sample.TotalCost,
		&sample.DeltaCost,
		&sample.DateKey,
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Debug("failed to query latest sample", "date_key", dateKey, "tool", tool, "error", err)
		}
		return models.Sample{}, false
	}

	sample.RecordedAt = fromEpoch(recordedAt)
	return sample, true
}
