package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "pools: per-pool voting weight configuration",
		SQL: `
CREATE TABLE pools (
    pool_id           TEXT PRIMARY KEY,
    multiplier        TEXT NOT NULL,
    max_lock_duration INTEGER NOT NULL CHECK (max_lock_duration > 0),
    configured_at     INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "global_points + slope_changes: pool aggregate decay state",
		SQL: `
CREATE TABLE global_points (
    pool_id     TEXT PRIMARY KEY,
    bias        TEXT NOT NULL,
    slope       TEXT NOT NULL,
    period      INTEGER NOT NULL DEFAULT 0,
    last_update INTEGER NOT NULL
);

CREATE TABLE slope_changes (
    pool_id  TEXT NOT NULL,
    epoch_ts INTEGER NOT NULL,
    delta    TEXT NOT NULL,
    PRIMARY KEY (pool_id, epoch_ts)
);

CREATE INDEX idx_slope_changes_epoch ON slope_changes(pool_id, epoch_ts);
`,
	},
	{
		Version:     3,
		Description: "user_points: per (owner, lock) decay state",
		SQL: `
CREATE TABLE user_points (
    lock_id     INTEGER NOT NULL,
    owner       TEXT NOT NULL,
    pool_id     TEXT NOT NULL,
    bias        TEXT NOT NULL,
    slope       TEXT NOT NULL,
    period      INTEGER NOT NULL,
    last_update INTEGER NOT NULL,
    PRIMARY KEY (owner, lock_id)
);

CREATE INDEX idx_user_points_pool ON user_points(pool_id);
`,
	},
	{
		Version:     4,
		Description: "counters: global lock id allocator",
		SQL: `
CREATE TABLE counters (
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);

INSERT INTO counters (name, value) VALUES ('next_lock_id', 1);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
