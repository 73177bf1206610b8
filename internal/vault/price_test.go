package vault

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestCeilingAtReferenceTick(t *testing.T) {
	inc := uint256.NewInt(7)
	got := ceilingAt(42, 42, inc)
	if !got.Eq(uint256.NewInt(7)) {
		t.Fatalf("ceiling at reference tick: got %s, want 7", got.Dec())
	}
}

func TestCeilingMonotonicity(t *testing.T) {
	inc := uint256.NewInt(3)
	prev := ceilingAt(10, 10, inc)
	for now := Tick(11); now <= 40; now++ {
		cur := ceilingAt(10, now, inc)
		if cur.Lt(prev) {
			t.Fatalf("ceiling decreased at tick %d: %s < %s", now, cur.Dec(), prev.Dec())
		}
		step := new(uint256.Int).Sub(cur, prev)
		if !step.Eq(inc) {
			t.Fatalf("ceiling step at tick %d: got %s, want %s", now, step.Dec(), inc.Dec())
		}
		prev = cur
	}
}

func TestCeilingClampsWhenNowBeforeReference(t *testing.T) {
	inc := uint256.NewInt(5)
	got := ceilingAt(100, 90, inc)
	if !got.Eq(inc) {
		t.Fatalf("ceiling with stale clock: got %s, want %s", got.Dec(), inc.Dec())
	}
}

func TestSpendableMin(t *testing.T) {
	ceiling := uint256.NewInt(100)
	fees := uint256.NewInt(40)
	if got := spendable(ceiling, fees); !got.Eq(fees) {
		t.Fatalf("spendable capped by fees: got %s", got.Dec())
	}
	fees = uint256.NewInt(500)
	if got := spendable(ceiling, fees); !got.Eq(ceiling) {
		t.Fatalf("spendable capped by ceiling: got %s", got.Dec())
	}
}

func TestBackdatedTickExactDivision(t *testing.T) {
	// 100 units of fees at increment 1 need 100 ramp steps: reference
	// lands at now+1-100 and the recomputed ceiling reads exactly 100.
	now := Tick(200)
	fees := uint256.NewInt(100)
	inc := uint256.NewInt(1)
	last := backdatedTick(now, fees, inc)
	if last != 101 {
		t.Fatalf("backdated tick: got %d, want 101", last)
	}
	if got := ceilingAt(last, now, inc); !got.Eq(fees) {
		t.Fatalf("recomputed ceiling: got %s, want %s", got.Dec(), fees.Dec())
	}
}

func TestBackdatedTickRoundsUp(t *testing.T) {
	now := Tick(100)
	fees := uint256.NewInt(10)
	inc := uint256.NewInt(3)
	last := backdatedTick(now, fees, inc)
	if last != 97 {
		t.Fatalf("backdated tick: got %d, want 97", last)
	}
	ceiling := ceilingAt(last, now, inc)
	if ceiling.Lt(fees) {
		t.Fatalf("recomputed ceiling %s below fees %s", ceiling.Dec(), fees.Dec())
	}
	gap := new(uint256.Int).Sub(ceiling, fees)
	if !gap.Lt(inc) {
		t.Fatalf("recomputed ceiling overshoots by a full step: gap %s", gap.Dec())
	}
}

func TestBackdatedTickClampsAtGenesis(t *testing.T) {
	// More implied history than ticks exist: the reference pins to zero.
	last := backdatedTick(3, uint256.NewInt(100), uint256.NewInt(1))
	if last != 0 {
		t.Fatalf("backdated tick: got %d, want 0", last)
	}
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 130)
	if got := backdatedTick(1000, huge, uint256.NewInt(1)); got != 0 {
		t.Fatalf("oversized fee balance should clamp to 0, got %d", got)
	}
}
