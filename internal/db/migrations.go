package db

import (
	"context"
	"fmt"

	"github.com/wesm/vibepulse/internal/logger"
)

const createSamplesTable = `
	CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tool TEXT NOT NULL,
		recorded_at REAL NOT NULL,
		total_cost REAL NOT NULL,
		delta_cost REAL NOT NULL DEFAULT 0,
		date_key TEXT NOT NULL
	);
`

const createDailyRollupsTable = `
	CREATE TABLE IF NOT EXISTS daily_rollups (
		date_key TEXT NOT NULL,
		tool TEXT NOT NULL,
		total_cost REAL NOT NULL,
		updated_at REAL NOT NULL,
		PRIMARY KEY (date_key, tool)
	);
`

const createSamplesIndex = `
	CREATE INDEX IF NOT EXISTS idx_samples_date_tool ON samples (date_key, tool);
`

// migrate brings the schema up to date. Every step is additive so older
// databases keep their data.
func (db *DB) migrate() error {
	steps := []struct {
		name  string
		query string
	}{
		{"create samples", createSamplesTable},
		{"create daily_rollups", createDailyRollupsTable},
		{"create samples index", createSamplesIndex},
	}

	for _, step := range steps {
		if _, err := db.conn.ExecContext(context.Background(), step.query); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSchema, step.name, err)
		}
	}

	return db.ensureSampleDeltaColumn()
}

// ensureSampleDeltaColumn adds delta_cost to samples tables created before it existed.
func (db *DB) ensureSampleDeltaColumn() error {
	has, err := db.hasColumn("samples", "delta_cost")
	if err != nil {
		return fmt.Errorf("%w: inspect samples: %v", ErrSchema, err)
	}
	if has {
		return nil
	}

	logger.Info("adding delta_cost column to samples")
	query := "ALTER TABLE samples ADD COLUMN delta_cost REAL NOT NULL DEFAULT 0"
	if _, err := db.conn.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("%w: add delta_cost: %v", ErrSchema, err)
	}
	return nil
}

func (db *DB) hasColumn(table, column string) (bool, error) {
	rows, err := db.conn.QueryContext(context.Background(), "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
