package vault

import "github.com/holiman/uint256"

var one = uint256.NewInt(1)

// ceilingAt computes the spend ceiling at tick now for a given reference
// tick: (ticks since reference + 1) * increment. The +1 keeps the ceiling
// strictly positive at the reference tick itself. A multiply overflow
// saturates; the fee balance bounds spendable value long before that.
func ceilingAt(last, now Tick, increment *uint256.Int) *uint256.Int {
	var elapsed uint64
	if now > last {
		elapsed = uint64(now - last)
	}
	steps := new(uint256.Int).SetUint64(elapsed + 1)
	out := new(uint256.Int)
	if _, overflow := out.MulOverflow(steps, increment); overflow {
		return new(uint256.Int).SetAllOne()
	}
	return out
}

// spendable is min(ceiling, fees): what time allows, capped by what has
// actually been deposited.
func spendable(ceiling, fees *uint256.Int) *uint256.Int {
	if fees.Lt(ceiling) {
		return new(uint256.Int).Set(fees)
	}
	return new(uint256.Int).Set(ceiling)
}

// backdatedTick returns the reference tick at which the ramp, evaluated at
// now, reads at least fees and within one increment of it: now + 1 -
// ceil(fees / increment). When the fee balance implies more ramp history
// than exists, the reference clamps to tick zero. Callers guarantee a
// non-zero increment.
func backdatedTick(now Tick, fees, increment *uint256.Int) Tick {
	steps := new(uint256.Int).Div(fees, increment)
	if !new(uint256.Int).Mod(fees, increment).IsZero() {
		steps.Add(steps, one)
	}
	if !steps.IsUint64() {
		return 0
	}
	n := steps.Uint64()
	if n > uint64(now)+1 {
		return 0
	}
	return now + 1 - Tick(n)
}
