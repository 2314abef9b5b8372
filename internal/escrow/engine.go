package escrow

import (
	"math/big"
	"sync"

	"github.com/OlympusDAO/olympus-v3-sub011/internal/store"
)

// Engine converts time-locked balances into continuously decaying voting
// weight and keeps a per-pool aggregate that can be advanced without
// iterating over locks. One decaying point is kept per (owner, lock) and one
// per pool; future slope reductions are batched on week-aligned epochs in
// the slope-change schedule.
//
// The engine has no internal concurrency: each mutation is serialized per
// pool and runs inside a single store transaction, so it fully applies or
// changes nothing. Reads are lock-free snapshots.
type Engine struct {
	DB    *store.DB
	clock Clock

	mu    sync.Mutex
	pools map[string]*sync.Mutex
}

// New creates an Engine over the given store. A nil clock means wall time.
func New(db *store.DB, clock Clock) *Engine {
	if clock == nil {
		clock = WallClock{}
	}
	return &Engine{
		DB:    db,
		clock: clock,
		pools: make(map[string]*sync.Mutex),
	}
}

// poolMu returns the mutex serializing writers for one pool. The rolling
// routine is a read-modify-write of the pool's global point and is not
// commutative, so two mutations of the same pool must never interleave.
func (e *Engine) poolMu(poolID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	mu, ok := e.pools[poolID]
	if !ok {
		mu = &sync.Mutex{}
		e.pools[poolID] = mu
	}
	return mu
}

// lockedBalance is the ephemeral input of a mutation: a balance committed
// until an unlock time. Only its bias/slope effect is persisted.
type lockedBalance struct {
	amount *big.Int
	end    int64
}

// Checkpoint advances the pool's global point to now with no lock-specific
// change, consuming any scheduled slope changes along the way.
func (e *Engine) Checkpoint(poolID string) error {
	mu := e.poolMu(poolID)
	mu.Lock()
	defer mu.Unlock()

	now := e.clock.Now()
	return e.DB.Update(func(tx *store.Tx) error {
		cfg, err := tx.GetPool(poolID)
		if err != nil {
			return err
		}
		if cfg == nil {
			return ErrPoolNotConfigured
		}
		rolled, err := e.rollGlobal(tx, poolID, now)
		if err != nil {
			return err
		}
		return tx.PutGlobalPoint(poolID, pointToRow(rolled))
	})
}

// NoteLockCreation registers a brand new lock and returns its id.
func (e *Engine) NoteLockCreation(owner, poolID string, balance *big.Int, unlockTime int64) (int64, error) {
	mu := e.poolMu(poolID)
	mu.Lock()
	defer mu.Unlock()

	now := e.clock.Now()
	var lockID int64
	err := e.DB.Update(func(tx *store.Tx) error {
		cfg, err := tx.GetPool(poolID)
		if err != nil {
			return err
		}
		if cfg == nil {
			return ErrPoolNotConfigured
		}
		if balance == nil || balance.Sign() <= 0 {
			return ErrZeroLock
		}
		if EpochAlign(unlockTime) != unlockTime {
			return ErrUnalignedUnlock
		}
		if unlockTime < now+Week {
			return ErrLockTooShort
		}
		if unlockTime > now+cfg.MaxLockDuration {
			return ErrLockTooLong
		}

		lockID, err = tx.NextLockID()
		if err != nil {
			return err
		}
		oldLocked := lockedBalance{amount: new(big.Int)}
		newLocked := lockedBalance{amount: bigCopy(balance), end: unlockTime}
		return e.noteLocked(tx, now, poolConfig(cfg), poolID, owner, lockID, oldLocked, newLocked)
	})
	if err != nil {
		return 0, err
	}
	return lockID, nil
}

// NoteLockBalanceChange re-notes a lock after its balance changed; the
// unlock time stays put.
func (e *Engine) NoteLockBalanceChange(owner, poolID string, lockID int64, oldBalance, newBalance *big.Int, unlockTime int64) error {
	mu := e.poolMu(poolID)
	mu.Lock()
	defer mu.Unlock()

	now := e.clock.Now()
	return e.DB.Update(func(tx *store.Tx) error {
		cfg, err := tx.GetPool(poolID)
		if err != nil {
			return err
		}
		if cfg == nil {
			return ErrPoolNotConfigured
		}
		up, err := tx.GetUserPoint(owner, lockID)
		if err != nil {
			return err
		}
		if up == nil || up.LastUpdate == 0 {
			return ErrNoLockFound
		}
		if unlockTime <= now {
			return ErrLockExpired
		}

		oldLocked := lockedBalance{amount: bigCopy(oldBalance), end: unlockTime}
		newLocked := lockedBalance{amount: bigCopy(newBalance), end: unlockTime}
		return e.noteLocked(tx, now, poolConfig(cfg), poolID, owner, lockID, oldLocked, newLocked)
	})
}

// NoteLockExtension re-notes a lock after its unlock time moved. Shortening
// is forbidden; the balance stays put.
func (e *Engine) NoteLockExtension(owner, poolID string, lockID int64, balance *big.Int, oldUnlockTime, newUnlockTime int64) error {
	mu := e.poolMu(poolID)
	mu.Lock()
	defer mu.Unlock()

	now := e.clock.Now()
	return e.DB.Update(func(tx *store.Tx) error {
		cfg, err := tx.GetPool(poolID)
		if err != nil {
			return err
		}
		if cfg == nil {
			return ErrPoolNotConfigured
		}
		up, err := tx.GetUserPoint(owner, lockID)
		if err != nil {
			return err
		}
		if up == nil || up.LastUpdate == 0 {
			return ErrNoLockFound
		}
		if EpochAlign(newUnlockTime) != newUnlockTime {
			return ErrUnalignedUnlock
		}
		if newUnlockTime < now {
			return ErrLockTooShort
		}
		if newUnlockTime < oldUnlockTime {
			return ErrOnlyExtensions
		}
		if newUnlockTime > now+cfg.MaxLockDuration {
			return ErrLockTooLong
		}

		oldLocked := lockedBalance{amount: bigCopy(balance), end: oldUnlockTime}
		newLocked := lockedBalance{amount: bigCopy(balance), end: newUnlockTime}
		return e.noteLocked(tx, now, poolConfig(cfg), poolID, owner, lockID, oldLocked, newLocked)
	})
}

// computePoint derives the bias/slope contribution of one locked balance:
//
//	rawSlope = balance / maxLockDuration
//	slope    = rawSlope * (multiplier * period) / maxLockDuration
//	bias     = slope * (end - now)
//
// All divisions truncate. A lock that has ended or holds no balance
// contributes the zero point.
func computePoint(cfg PoolConfig, locked lockedBalance, period, now int64) Point {
	p := zeroPoint(now)
	p.Period = period
	if locked.end <= now || locked.amount == nil || locked.amount.Sign() == 0 {
		return p
	}

	maxDur := new(big.Int).SetInt64(cfg.MaxLockDuration)
	rawSlope := new(big.Int).Quo(locked.amount, maxDur)

	weighted := new(big.Int).Mul(cfg.Multiplier, new(big.Int).SetInt64(period))
	slope := new(big.Int).Mul(rawSlope, weighted)
	slope.Quo(slope, maxDur)
	clampZero(slope)

	bias := new(big.Int).Mul(slope, new(big.Int).SetInt64(locked.end-now))
	clampZero(bias)

	p.Bias = bias
	p.Slope = slope
	return p
}

// rollGlobal advances the pool's global point to now in week-sized steps,
// applying and consuming scheduled slope changes as it crosses their epochs.
// At most maxRollWeeks steps are taken; a longer gap decays the remaining
// span linearly without schedule consumption (callers are expected to
// checkpoint well within the bound).
func (e *Engine) rollGlobal(tx *store.Tx, poolID string, now int64) (Point, error) {
	row, err := tx.GetGlobalPoint(poolID)
	if err != nil {
		return Point{}, err
	}
	if row == nil {
		return zeroPoint(now), nil
	}
	p := rowToPoint(row)

	bias := bigCopy(p.Bias)
	slope := bigCopy(p.Slope)
	last := p.LastUpdate
	cursor := EpochAlign(last)

	for i := 0; i < maxRollWeeks && last < now; i++ {
		cursor += Week
		if cursor > now {
			cursor = now
		}

		dt := new(big.Int).SetInt64(cursor - last)
		bias.Sub(bias, dt.Mul(dt, slope))
		clampZero(bias)

		delta, err := tx.GetSlopeChange(poolID, cursor)
		if err != nil {
			return Point{}, err
		}
		if delta != nil {
			slope.Add(slope, delta)
			clampZero(slope)
			if err := tx.DeleteSlopeChange(poolID, cursor); err != nil {
				return Point{}, err
			}
		}
		last = cursor
	}

	if last < now {
		dt := new(big.Int).SetInt64(now - last)
		bias.Sub(bias, dt.Mul(dt, slope))
		clampZero(bias)
		last = now
	}

	return Point{Bias: bias, Slope: slope, Period: p.Period, LastUpdate: last}, nil
}

// noteLocked is the rolling+apply routine shared by every mutation: it
// computes the lock's old and new contributions, rolls the global point to
// now, applies the contribution delta, and reschedules the slope changes at
// the affected unlock epochs.
func (e *Engine) noteLocked(tx *store.Tx, now int64, cfg PoolConfig, poolID, owner string, lockID int64, oldLocked, newLocked lockedBalance) error {
	// The lock's weighting period is fixed at creation and carried forward
	// unchanged across later balance changes.
	period := newLocked.end - now
	existing, err := tx.GetUserPoint(owner, lockID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Period != 0 {
		period = existing.Period
	}

	pointOld := computePoint(cfg, oldLocked, period, now)
	pointNew := computePoint(cfg, newLocked, period, now)

	dSlopeOld, err := tx.GetSlopeChange(poolID, oldLocked.end)
	if err != nil {
		return err
	}
	if dSlopeOld == nil {
		dSlopeOld = new(big.Int)
	}
	dSlopeNew := dSlopeOld
	if newLocked.end != oldLocked.end {
		if dSlopeNew, err = tx.GetSlopeChange(poolID, newLocked.end); err != nil {
			return err
		}
		if dSlopeNew == nil {
			dSlopeNew = new(big.Int)
		}
	}

	global, err := e.rollGlobal(tx, poolID, now)
	if err != nil {
		return err
	}

	global.Slope.Add(global.Slope, new(big.Int).Sub(pointNew.Slope, pointOld.Slope))
	global.Bias.Add(global.Bias, new(big.Int).Sub(pointNew.Bias, pointOld.Bias))
	clampZero(global.Slope)
	clampZero(global.Bias)

	if err := tx.PutGlobalPoint(poolID, pointToRow(global)); err != nil {
		return err
	}

	// Reschedule the deltas at the unlock epochs. Schedule entries are the
	// (negative) slope adjustments the rolling pass applies when it crosses
	// that epoch.
	if oldLocked.end > now {
		d := new(big.Int).Add(dSlopeOld, pointOld.Slope)
		if newLocked.end == oldLocked.end {
			d.Sub(d, pointNew.Slope)
		}
		if err := tx.PutSlopeChange(poolID, oldLocked.end, d); err != nil {
			return err
		}
	}
	if newLocked.end > now && newLocked.end > oldLocked.end {
		d := new(big.Int).Sub(dSlopeNew, pointNew.Slope)
		if err := tx.PutSlopeChange(poolID, newLocked.end, d); err != nil {
			return err
		}
	}

	return tx.PutUserPoint(&store.UserPointRow{
		LockID:   lockID,
		Owner:    owner,
		PoolID:   poolID,
		PointRow: *pointToRow(pointNew),
	})
}

func rowToPoint(r *store.PointRow) Point {
	return Point{
		Bias:       bigCopy(r.Bias),
		Slope:      bigCopy(r.Slope),
		Period:     r.Period,
		LastUpdate: r.LastUpdate,
	}
}

func pointToRow(p Point) *store.PointRow {
	return &store.PointRow{
		Bias:       bigCopy(p.Bias),
		Slope:      bigCopy(p.Slope),
		Period:     p.Period,
		LastUpdate: p.LastUpdate,
	}
}
