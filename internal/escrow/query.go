package escrow

import (
	"math/big"
)

// The query layer is pure: it decays persisted points to now on the fly and
// never writes. Global reads decay the last rolled point by simple
// subtraction without consuming the slope-change schedule, so they are exact
// between scheduled epochs and drift for pools nobody has checkpointed
// recently; mutations and Checkpoint are the authoritative path.

// VotingPower returns the lock's instantaneous voting weight.
func (e *Engine) VotingPower(owner string, lockID int64) (*big.Int, error) {
	up, err := e.DB.GetUserPoint(owner, lockID)
	if err != nil {
		return nil, err
	}
	if up == nil || up.LastUpdate == 0 {
		return nil, ErrNoLockFound
	}
	return rowToPoint(&up.PointRow).ValueAt(e.clock.Now()), nil
}

// GlobalVotingPower returns the pool's aggregate voting weight, decayed
// linearly from the last persisted global point.
func (e *Engine) GlobalVotingPower(poolID string) (*big.Int, error) {
	cfg, err := e.DB.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrPoolNotConfigured
	}
	gp, err := e.DB.GetGlobalPoint(poolID)
	if err != nil {
		return nil, err
	}
	if gp == nil {
		return new(big.Int), nil
	}
	return rowToPoint(gp).ValueAt(e.clock.Now()), nil
}

// LockRef identifies one lock for batched share queries.
type LockRef struct {
	Owner  string
	LockID int64
}

// VotingPowerShare returns the lock's share of the pool's aggregate weight
// as a Scale-fixed fraction, or zero when the pool has no weight.
func (e *Engine) VotingPowerShare(owner, poolID string, lockID int64) (*big.Int, error) {
	shares, err := e.VotingPowerShares(poolID, []LockRef{{Owner: owner, LockID: lockID}})
	if err != nil {
		return nil, err
	}
	return shares[0], nil
}

// VotingPowerShares is the batched variant of VotingPowerShare: one global
// read, one share per reference.
func (e *Engine) VotingPowerShares(poolID string, refs []LockRef) ([]*big.Int, error) {
	total, err := e.GlobalVotingPower(poolID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	shares := make([]*big.Int, len(refs))
	for i, ref := range refs {
		up, err := e.DB.GetUserPoint(ref.Owner, ref.LockID)
		if err != nil {
			return nil, err
		}
		if up == nil || up.LastUpdate == 0 {
			return nil, ErrNoLockFound
		}
		if total.Sign() == 0 {
			shares[i] = new(big.Int)
			continue
		}
		power := rowToPoint(&up.PointRow).ValueAt(now)
		share := power.Mul(power, Scale)
		shares[i] = share.Quo(share, total)
	}
	return shares, nil
}

// IsOpenPool reports whether the pool has been configured.
func (e *Engine) IsOpenPool(poolID string) (bool, error) {
	cfg, err := e.DB.GetPool(poolID)
	if err != nil {
		return false, err
	}
	return cfg != nil, nil
}

// IsOnceNotedPoint reports whether a lock was ever noted, expired included.
func (e *Engine) IsOnceNotedPoint(owner string, lockID int64) (bool, error) {
	up, err := e.DB.GetUserPoint(owner, lockID)
	if err != nil {
		return false, err
	}
	return up != nil && up.LastUpdate != 0, nil
}

// MaximumLockTime returns the pool's maximum lock duration in seconds.
func (e *Engine) MaximumLockTime(poolID string) (int64, error) {
	cfg, err := e.DB.GetPool(poolID)
	if err != nil {
		return 0, err
	}
	if cfg == nil {
		return 0, ErrPoolNotConfigured
	}
	return cfg.MaxLockDuration, nil
}

// Multiplier returns the pool's fixed-point weight multiplier.
func (e *Engine) Multiplier(poolID string) (*big.Int, error) {
	cfg, err := e.DB.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrPoolNotConfigured
	}
	return bigCopy(cfg.Multiplier), nil
}

// GlobalPoint returns the pool's last persisted global point without
// decaying it, or a zero point if the pool was never touched.
func (e *Engine) GlobalPoint(poolID string) (Point, error) {
	gp, err := e.DB.GetGlobalPoint(poolID)
	if err != nil {
		return Point{}, err
	}
	if gp == nil {
		return zeroPoint(0), nil
	}
	return rowToPoint(gp), nil
}

// UserPoint returns the lock's stored point without decaying it.
func (e *Engine) UserPoint(owner string, lockID int64) (Point, error) {
	up, err := e.DB.GetUserPoint(owner, lockID)
	if err != nil {
		return Point{}, err
	}
	if up == nil || up.LastUpdate == 0 {
		return Point{}, ErrNoLockFound
	}
	return rowToPoint(&up.PointRow), nil
}

// EpochTime returns the current week-aligned epoch timestamp.
func (e *Engine) EpochTime() int64 {
	return EpochAlign(e.clock.Now())
}
