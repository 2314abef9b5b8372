package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
)

// PointRow is the persisted form of a decaying point.
type PointRow struct {
	Bias       *big.Int
	Slope      *big.Int
	Period     int64
	LastUpdate int64
}

// UserPointRow is a PointRow keyed by (owner, lock id).
type UserPointRow struct {
	LockID int64
	Owner  string
	PoolID string
	PointRow
}

func scanPoint(row *sql.Row, p *PointRow) error {
	var bias, slope string
	if err := row.Scan(&bias, &slope, &p.Period, &p.LastUpdate); err != nil {
		return err
	}
	var err error
	if p.Bias, err = parseBig(bias); err != nil {
		return err
	}
	if p.Slope, err = parseBig(slope); err != nil {
		return err
	}
	return nil
}

func getGlobalPoint(q querier, poolID string) (*PointRow, error) {
	row := q.QueryRow(
		"SELECT bias, slope, period, last_update FROM global_points WHERE pool_id = ?",
		poolID,
	)
	var p PointRow
	err := scanPoint(row, &p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get global point %s: %w", poolID, err)
	}
	return &p, nil
}

func putGlobalPoint(q querier, poolID string, p *PointRow) error {
	_, err := q.Exec(`
		INSERT INTO global_points (pool_id, bias, slope, period, last_update)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pool_id) DO UPDATE SET
			bias = excluded.bias,
			slope = excluded.slope,
			period = excluded.period,
			last_update = excluded.last_update`,
		poolID, bigText(p.Bias), bigText(p.Slope), p.Period, p.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("put global point %s: %w", poolID, err)
	}
	return nil
}

func getUserPoint(q querier, owner string, lockID int64) (*UserPointRow, error) {
	row := q.QueryRow(
		"SELECT pool_id, bias, slope, period, last_update FROM user_points WHERE owner = ? AND lock_id = ?",
		owner, lockID,
	)
	p := UserPointRow{LockID: lockID, Owner: owner}
	var bias, slope string
	err := row.Scan(&p.PoolID, &bias, &slope, &p.Period, &p.LastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user point %s/%d: %w", owner, lockID, err)
	}
	if p.Bias, err = parseBig(bias); err != nil {
		return nil, err
	}
	if p.Slope, err = parseBig(slope); err != nil {
		return nil, err
	}
	return &p, nil
}

func putUserPoint(q querier, p *UserPointRow) error {
	_, err := q.Exec(`
		INSERT INTO user_points (lock_id, owner, pool_id, bias, slope, period, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, lock_id) DO UPDATE SET
			bias = excluded.bias,
			slope = excluded.slope,
			period = excluded.period,
			last_update = excluded.last_update`,
		p.LockID, p.Owner, p.PoolID, bigText(p.Bias), bigText(p.Slope), p.Period, p.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("put user point %s/%d: %w", p.Owner, p.LockID, err)
	}
	return nil
}

func listUserPoints(q querier, poolID string) ([]UserPointRow, error) {
	rows, err := q.Query(
		"SELECT lock_id, owner, bias, slope, period, last_update FROM user_points WHERE pool_id = ? ORDER BY lock_id",
		poolID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user points %s: %w", poolID, err)
	}
	defer rows.Close()

	var out []UserPointRow
	for rows.Next() {
		p := UserPointRow{PoolID: poolID}
		var bias, slope string
		if err := rows.Scan(&p.LockID, &p.Owner, &bias, &slope, &p.Period, &p.LastUpdate); err != nil {
			return nil, fmt.Errorf("scan user point: %w", err)
		}
		if p.Bias, err = parseBig(bias); err != nil {
			return nil, err
		}
		if p.Slope, err = parseBig(slope); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// NextLockID allocates the next lock id. Ids increment forever and are never
// reused, so they stay unique across all pools.
func (tx *Tx) NextLockID() (int64, error) {
	var id int64
	err := tx.tx.QueryRow("SELECT value FROM counters WHERE name = 'next_lock_id'").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read next_lock_id: %w", err)
	}
	if _, err := tx.tx.Exec("UPDATE counters SET value = value + 1 WHERE name = 'next_lock_id'"); err != nil {
		return 0, fmt.Errorf("bump next_lock_id: %w", err)
	}
	return id, nil
}

func (db *DB) GetGlobalPoint(poolID string) (*PointRow, error) { return getGlobalPoint(db.DB, poolID) }
func (tx *Tx) GetGlobalPoint(poolID string) (*PointRow, error) { return getGlobalPoint(tx.tx, poolID) }

func (tx *Tx) PutGlobalPoint(poolID string, p *PointRow) error { return putGlobalPoint(tx.tx, poolID, p) }

func (db *DB) GetUserPoint(owner string, lockID int64) (*UserPointRow, error) {
	return getUserPoint(db.DB, owner, lockID)
}
func (tx *Tx) GetUserPoint(owner string, lockID int64) (*UserPointRow, error) {
	return getUserPoint(tx.tx, owner, lockID)
}

func (tx *Tx) PutUserPoint(p *UserPointRow) error { return putUserPoint(tx.tx, p) }

// ListUserPoints returns every user point ever noted in a pool, expired
// included. Used by tests and debugging endpoints, not by the rolling path.
func (db *DB) ListUserPoints(poolID string) ([]UserPointRow, error) {
	return listUserPoints(db.DB, poolID)
}
