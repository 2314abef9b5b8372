package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
)

// Slope changes are signed deltas keyed by (pool, epoch timestamp); the
// rolling pass adds the delta to the global slope when it crosses the epoch
// and then deletes the row, so the table only holds future epochs.

func getSlopeChange(q querier, poolID string, epochTS int64) (*big.Int, error) {
	row := q.QueryRow(
		"SELECT delta FROM slope_changes WHERE pool_id = ? AND epoch_ts = ?",
		poolID, epochTS,
	)
	var delta string
	err := row.Scan(&delta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get slope change %s@%d: %w", poolID, epochTS, err)
	}
	return parseBig(delta)
}

func putSlopeChange(q querier, poolID string, epochTS int64, delta *big.Int) error {
	_, err := q.Exec(`
		INSERT INTO slope_changes (pool_id, epoch_ts, delta) VALUES (?, ?, ?)
		ON CONFLICT(pool_id, epoch_ts) DO UPDATE SET delta = excluded.delta`,
		poolID, epochTS, bigText(delta),
	)
	if err != nil {
		return fmt.Errorf("put slope change %s@%d: %w", poolID, epochTS, err)
	}
	return nil
}

func deleteSlopeChange(q querier, poolID string, epochTS int64) error {
	if _, err := q.Exec(
		"DELETE FROM slope_changes WHERE pool_id = ? AND epoch_ts = ?",
		poolID, epochTS,
	); err != nil {
		return fmt.Errorf("delete slope change %s@%d: %w", poolID, epochTS, err)
	}
	return nil
}

// GetSlopeChange returns the scheduled delta at an epoch, or nil if none.
func (db *DB) GetSlopeChange(poolID string, epochTS int64) (*big.Int, error) {
	return getSlopeChange(db.DB, poolID, epochTS)
}
func (tx *Tx) GetSlopeChange(poolID string, epochTS int64) (*big.Int, error) {
	return getSlopeChange(tx.tx, poolID, epochTS)
}

func (tx *Tx) PutSlopeChange(poolID string, epochTS int64, delta *big.Int) error {
	return putSlopeChange(tx.tx, poolID, epochTS, delta)
}

func (tx *Tx) DeleteSlopeChange(poolID string, epochTS int64) error {
	return deleteSlopeChange(tx.tx, poolID, epochTS)
}
