package escrow

import "math/big"

// Point is a linearly decaying quantity: at any time t >= LastUpdate its
// instantaneous value is max(0, Bias - Slope*(t-LastUpdate)).
//
// Period records the original duration of the lock that produced this
// point's slope. It is fixed when the lock is first noted and carried
// forward unchanged across later balance changes; it is not itself decayed.
type Point struct {
	Bias       *big.Int
	Slope      *big.Int
	Period     int64
	LastUpdate int64
}

func zeroPoint(now int64) Point {
	return Point{
		Bias:       new(big.Int),
		Slope:      new(big.Int),
		LastUpdate: now,
	}
}

// ValueAt decays the point to t by simple subtraction, without consuming any
// scheduled slope changes. The result is never negative.
func (p Point) ValueAt(t int64) *big.Int {
	v := bigCopy(p.Bias)
	if p.Slope == nil || p.LastUpdate >= t {
		return clampZero(v)
	}
	dt := new(big.Int).SetInt64(t - p.LastUpdate)
	v.Sub(v, dt.Mul(dt, p.Slope))
	return clampZero(v)
}

// Clone returns a deep copy so callers cannot alias the stored big.Ints.
func (p Point) Clone() Point {
	return Point{
		Bias:       bigCopy(p.Bias),
		Slope:      bigCopy(p.Slope),
		Period:     p.Period,
		LastUpdate: p.LastUpdate,
	}
}
