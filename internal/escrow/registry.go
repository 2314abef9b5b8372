package escrow

import (
	"math/big"

	"github.com/OlympusDAO/olympus-v3-sub011/internal/store"
)

// PoolConfig is a pool's immutable configuration: a voting weight multiplier
// (fixed-point, at least Scale) and the longest lock the pool accepts.
type PoolConfig struct {
	Multiplier      *big.Int
	MaxLockDuration int64
}

// ConfigurePool performs one-time pool setup. Configuration is immutable;
// there are no setters after this.
func (e *Engine) ConfigurePool(poolID string, multiplier *big.Int, maxLockDuration int64) error {
	if multiplier == nil || multiplier.Cmp(Scale) < 0 {
		return ErrMultiplierTooLow
	}
	if maxLockDuration <= 0 {
		return ErrZeroMaxDuration
	}

	mu := e.poolMu(poolID)
	mu.Lock()
	defer mu.Unlock()

	now := e.clock.Now()
	return e.DB.Update(func(tx *store.Tx) error {
		existing, err := tx.GetPool(poolID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyConfigured
		}
		return tx.PutPool(&store.Pool{
			PoolID:          poolID,
			Multiplier:      bigCopy(multiplier),
			MaxLockDuration: maxLockDuration,
			ConfiguredAt:    now,
		})
	})
}

func poolConfig(p *store.Pool) PoolConfig {
	return PoolConfig{
		Multiplier:      p.Multiplier,
		MaxLockDuration: p.MaxLockDuration,
	}
}
