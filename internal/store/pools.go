package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
)

// Pool is one row of per-pool configuration. A pool is configured iff its
// row exists; there is no zero-value sentinel.
type Pool struct {
	PoolID          string
	Multiplier      *big.Int
	MaxLockDuration int64
	ConfiguredAt    int64
}

// Bias, slope and multiplier columns hold arbitrary-precision integers as
// decimal text, matching source-chain 256-bit balances.
func bigText(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func parseBig(s string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed integer column %q", s)
	}
	return x, nil
}

func getPool(q querier, poolID string) (*Pool, error) {
	row := q.QueryRow(
		"SELECT pool_id, multiplier, max_lock_duration, configured_at FROM pools WHERE pool_id = ?",
		poolID,
	)
	var p Pool
	var mult string
	err := row.Scan(&p.PoolID, &mult, &p.MaxLockDuration, &p.ConfiguredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", poolID, err)
	}
	if p.Multiplier, err = parseBig(mult); err != nil {
		return nil, err
	}
	return &p, nil
}

func putPool(q querier, p *Pool) error {
	_, err := q.Exec(
		"INSERT INTO pools (pool_id, multiplier, max_lock_duration, configured_at) VALUES (?, ?, ?, ?)",
		p.PoolID, bigText(p.Multiplier), p.MaxLockDuration, p.ConfiguredAt,
	)
	if err != nil {
		return fmt.Errorf("put pool %s: %w", p.PoolID, err)
	}
	return nil
}

func listPoolIDs(q querier) ([]string, error) {
	rows, err := q.Query("SELECT pool_id FROM pools ORDER BY pool_id")
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pool id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetPool returns the pool's configuration, or nil if never configured.
func (db *DB) GetPool(poolID string) (*Pool, error) { return getPool(db.DB, poolID) }
func (tx *Tx) GetPool(poolID string) (*Pool, error) { return getPool(tx.tx, poolID) }

// PutPool inserts a pool configuration row. Configuration is immutable, so
// there is no update path.
func (tx *Tx) PutPool(p *Pool) error { return putPool(tx.tx, p) }

// ListPoolIDs returns all configured pool ids.
func (db *DB) ListPoolIDs() ([]string, error) { return listPoolIDs(db.DB) }
