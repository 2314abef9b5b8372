package escrow

import "math/big"

// Time constants, in seconds. Epochs are week-aligned: every scheduled slope
// change lands on a multiple of Week since the unix epoch.
const (
	Week int64 = 7 * 24 * 60 * 60

	// maxRollWeeks bounds the rolling loop. Operating precondition: every
	// pool must be checkpointed at least once per maxRollWeeks weeks; the
	// cron scheduler defaults well inside that.
	maxRollWeeks = 64
)

// Scale is the fixed-point unit: multipliers, biases and slopes carry 18
// decimals, so "1.0" is Scale. Balances are expected in the same base units
// as the source chain (wei-style, 18 decimals).
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// EpochAlign rounds t down to the enclosing week boundary.
func EpochAlign(t int64) int64 {
	return (t / Week) * Week
}

// clampZero floors x at zero in place. Bias and slope must never be
// observably negative, even transiently.
func clampZero(x *big.Int) *big.Int {
	if x.Sign() < 0 {
		x.SetInt64(0)
	}
	return x
}

func bigCopy(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
