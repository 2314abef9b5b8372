package escrow

import (
	"errors"
	"math/big"
	"testing"

	"github.com/OlympusDAO/olympus-v3-sub011/internal/store"
)

// baseTime is an arbitrary week-aligned timestamp so that now+N*Week stays
// aligned throughout the tests.
var baseTime = EpochAlign(1_800_000_000)

func testEngine(t *testing.T) (*Engine, *ManualClock) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := NewManualClock(baseTime)
	return New(db, clock), clock
}

// tokens returns n whole tokens in 18-decimal base units.
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Scale)
}

func configureDefault(t *testing.T, e *Engine, poolID string) {
	t.Helper()
	if err := e.ConfigurePool(poolID, Scale, 52*Week); err != nil {
		t.Fatalf("ConfigurePool: %v", err)
	}
}

// bruteGlobal independently sums the decayed value of every user point ever
// noted in the pool.
func bruteGlobal(t *testing.T, e *Engine, poolID string, now int64) *big.Int {
	t.Helper()
	points, err := e.DB.ListUserPoints(poolID)
	if err != nil {
		t.Fatalf("ListUserPoints: %v", err)
	}
	sum := new(big.Int)
	for _, p := range points {
		sum.Add(sum, rowToPoint(&p.PointRow).ValueAt(now))
	}
	return sum
}

func TestLockCreationPower(t *testing.T) {
	e, _ := testEngine(t)
	configureDefault(t, e, "P")

	unlock := baseTime + 4*Week
	lockID, err := e.NoteLockCreation("alice", "P", tokens(100), unlock)
	if err != nil {
		t.Fatalf("NoteLockCreation: %v", err)
	}
	if lockID != 1 {
		t.Errorf("lock id = %d, want 1", lockID)
	}

	power, err := e.VotingPower("alice", lockID)
	if err != nil {
		t.Fatalf("VotingPower: %v", err)
	}
	if power.Sign() <= 0 {
		t.Fatalf("power = %s, want > 0", power)
	}

	// Recompute the expected bias from the documented formula.
	maxDur := big.NewInt(52 * Week)
	rawSlope := new(big.Int).Quo(tokens(100), maxDur)
	slope := new(big.Int).Mul(rawSlope, new(big.Int).Mul(Scale, big.NewInt(4*Week)))
	slope.Quo(slope, maxDur)
	wantBias := new(big.Int).Mul(slope, big.NewInt(4*Week))

	if power.Cmp(wantBias) != 0 {
		t.Errorf("power = %s, want %s", power, wantBias)
	}

	up, err := e.UserPoint("alice", lockID)
	if err != nil {
		t.Fatalf("UserPoint: %v", err)
	}
	if up.Bias.Cmp(wantBias) != 0 {
		t.Errorf("bias = %s, want %s", up.Bias, wantBias)
	}
	if up.Slope.Cmp(slope) != 0 {
		t.Errorf("slope = %s, want %s", up.Slope, slope)
	}
	if up.Period != 4*Week {
		t.Errorf("period = %d, want %d", up.Period, 4*Week)
	}
}

func TestLockCreationValidation(t *testing.T) {
	e, _ := testEngine(t)
	configureDefault(t, e, "P")

	cases := []struct {
		name    string
		pool    string
		balance *big.Int
		unlock  int64
		want    error
	}{
		{"unconfigured pool", "missing", tokens(1), baseTime + 4*Week, ErrPoolNotConfigured},
		{"zero balance", "P", new(big.Int), baseTime + 4*Week, ErrZeroLock},
		{"nil balance", "P", nil, baseTime + 4*Week, ErrZeroLock},
		{"unaligned unlock", "P", tokens(1), baseTime + 4*Week + 1, ErrUnalignedUnlock},
		{"below one week", "P", tokens(1), baseTime, ErrLockTooShort},
		{"beyond maximum", "P", tokens(1), baseTime + 53*Week, ErrLockTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.NoteLockCreation("alice", tc.pool, tc.balance, tc.unlock); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	// Nothing was persisted by the failed attempts.
	if _, err := e.VotingPower("alice", 1); !errors.Is(err, ErrNoLockFound) {
		t.Errorf("err = %v, want ErrNoLockFound", err)
	}
}

func TestGlobalDecaysToZero(t *testing.T) {
	e, clock := testEngine(t)
	configureDefault(t, e, "P")

	if _, err := e.NoteLockCreation("alice", "P", tokens(100), baseTime+4*Week); err != nil {
		t.Fatalf("NoteLockCreation: %v", err)
	}

	clock.Advance(4 * Week)
	if err := e.Checkpoint("P"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	power, err := e.GlobalVotingPower("P")
	if err != nil {
		t.Fatalf("GlobalVotingPower: %v", err)
	}
	if power.Sign() != 0 {
		t.Errorf("global power = %s, want 0", power)
	}

	gp, err := e.GlobalPoint("P")
	if err != nil {
		t.Fatalf("GlobalPoint: %v", err)
	}
	if gp.Slope.Sign() != 0 {
		t.Errorf("global slope = %s, want 0", gp.Slope)
	}
}

func TestCheckpointIdempotent(t *testing.T) {
	e, clock := testEngine(t)
	configureDefault(t, e, "P")

	if _, err := e.NoteLockCreation("alice", "P", tokens(42), baseTime+8*Week); err != nil {
		t.Fatalf("NoteLockCreation: %v", err)
	}

	clock.Advance(3*Week + 12345)
	if err := e.Checkpoint("P"); err != nil {
		t.Fatalf("first Checkpoint: %v", err)
	}
	first, err := e.GlobalPoint("P")
	if err != nil {
		t.Fatalf("GlobalPoint: %v", err)
	}

	if err := e.Checkpoint("P"); err != nil {
		t.Fatalf("second Checkpoint: %v", err)
	}
	second, err := e.GlobalPoint("P")
	if err != nil {
		t.Fatalf("GlobalPoint: %v", err)
	}

	if first.Bias.Cmp(second.Bias) != 0 || first.Slope.Cmp(second.Slope) != 0 || first.LastUpdate != second.LastUpdate {
		t.Errorf("checkpoint not idempotent: %+v vs %+v", first, second)
	}
}

func TestCheckpointUnconfigured(t *testing.T) {
	e, _ := testEngine(t)
	if err := e.Checkpoint("nope"); !errors.Is(err, ErrPoolNotConfigured) {
		t.Errorf("err = %v, want ErrPoolNotConfigured", err)
	}
}

func TestVotingPowerMonotonic(t *testing.T) {
	e, clock := testEngine(t)
	configureDefault(t, e, "P")

	lockID, err := e.NoteLockCreation("alice", "P", tokens(100), baseTime+6*Week)
	if err != nil {
		t.Fatalf("NoteLockCreation: %v", err)
	}

	prev, _ := e.VotingPower("alice", lockID)
	for i := 0; i < 14; i++ {
		clock.Advance(Week / 2)
		power, err := e.VotingPower("alice", lockID)
		if err != nil {
			t.Fatalf("VotingPower: %v", err)
		}
		if power.Cmp(prev) > 0 {
			t.Fatalf("power rose from %s to %s with no mutation", prev, power)
		}
		prev = power
	}
	// Clock is now past the unlock time.
	if prev.Sign() != 0 {
		t.Errorf("power = %s after unlock, want 0", prev)
	}
}

func TestTwoLocksConservation(t *testing.T) {
	e, clock := testEngine(t)
	configureDefault(t, e, "P")

	id1, err := e.NoteLockCreation("alice", "P", tokens(100), baseTime+4*Week)
	if err != nil {
		t.Fatalf("create lock 1: %v", err)
	}
	id2, err := e.NoteLockCreation("bob", "P", tokens(250), baseTime+8*Week)
	if err != nil {
		t.Fatalf("create lock 2: %v", err)
	}

	// Before either unlocks: the aggregate equals the sum of both locks.
	clock.Advance(2 * Week)
	if err := e.Checkpoint("P"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	global, _ := e.GlobalVotingPower("P")
	p1, _ := e.VotingPower("alice", id1)
	p2, _ := e.VotingPower("bob", id2)
	sum := new(big.Int).Add(p1, p2)
	if global.Cmp(sum) != 0 {
		t.Errorf("global = %s, want %s (=%s+%s)", global, sum, p1, p2)
	}
	if global.Cmp(bruteGlobal(t, e, "P", clock.Now())) != 0 {
		t.Errorf("global diverges from brute-force sum")
	}

	// After the first unlock epoch is rolled past: only the second remains.
	clock.Advance(4 * Week) // now at base+6w
	if err := e.Checkpoint("P"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	global, _ = e.GlobalVotingPower("P")
	p1, _ = e.VotingPower("alice", id1)
	p2, _ = e.VotingPower("bob", id2)
	if p1.Sign() != 0 {
		t.Errorf("expired lock power = %s, want 0", p1)
	}
	if global.Cmp(p2) != 0 {
		t.Errorf("global = %s, want %s (second lock only)", global, p2)
	}
	if global.Cmp(bruteGlobal(t, e, "P", clock.Now())) != 0 {
		t.Errorf("global diverges from brute-force sum")
	}
}

func TestScheduleConsumption(t *testing.T) {
	e, clock := testEngine(t)
	configureDefault(t, e, "P")

	unlock := baseTime + 4*Week
	if _, err := e.NoteLockCreation("alice", "P", tokens(100), unlock); err != nil {
		t.Fatalf("NoteLockCreation: %v", err)
	}

	up, _ := e.UserPoint("alice", 1)
	delta, err := e.DB.GetSlopeChange("P", unlock)
	if err != nil {
		t.Fatalf("GetSlopeChange: %v", err)
	}
	if delta == nil {
		t.Fatal("expected a scheduled slope change at the unlock epoch")
	}
	wantDelta := new(big.Int).Neg(up.Slope)
	if delta.Cmp(wantDelta) != 0 {
		t.Errorf("delta = %s, want %s", delta, wantDelta)
	}

	// Rolling past the epoch consumes the entry and zeroes the slope.
	clock.Advance(5 * Week)
	if err := e.Checkpoint("P"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	gp, _ := e.GlobalPoint("P")
	if gp.Slope.Sign() != 0 {
		t.Errorf("slope = %s after expiry, want 0", gp.Slope)
	}
	delta, err = e.DB.GetSlopeChange("P", unlock)
	if err != nil {
		t.Fatalf("GetSlopeChange: %v", err)
	}
	if delta != nil {
		t.Errorf("consumed entry still present: %s", delta)
	}
}

func TestBalanceChange(t *testing.T) {
	e, clock := testEngine(t)
	configureDefault(t, e, "P")

	unlock := baseTime + 8*Week
	lockID, err := e.NoteLockCreation("alice", "P", tokens(100), unlock)
	if err != nil {
		t.Fatalf("NoteLockCreation: %v", err)
	}
	before, _ := e.VotingPower("alice", lockID)

	if err := e.NoteLockBalanceChange("alice", "P", lockID, tokens(100), tokens(200), unlock); err != nil {
		t.Fatalf("NoteLockBalanceChange: %v", err)
	}
	after, _ := e.VotingPower("alice", lockID)
	if after.Cmp(before) <= 0 {
		t.Errorf("power %s -> %s, want increase", before, after)
	}

	// The aggregate tracks the change exactly.
	if err := e.Checkpoint("P"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	global, _ := e.GlobalVotingPower("P")
	if global.Cmp(after) != 0 {
		t.Errorf("global = %s, want %s", global, after)
	}

	// Unknown lock id.
	err = e.NoteLockBalanceChange("alice", "P", 999, tokens(1), tokens(2), unlock)
	if !errors.Is(err, ErrNoLockFound) {
		t.Errorf("err = %v, want ErrNoLockFound", err)
	}

	// Mutating an expired lock.
	clock.Advance(9 * Week)
	err = e.NoteLockBalanceChange("alice", "P", lockID, tokens(200), tokens(300), unlock)
	if !errors.Is(err, ErrLockExpired) {
		t.Errorf("err = %v, want ErrLockExpired", err)
	}
}

func TestBalanceChangeToZero(t *testing.T) {
	e, _ := testEngine(t)
	configureDefault(t, e, "P")

	unlock := baseTime + 4*Week
	lockID, err := e.NoteLockCreation("alice", "P", tokens(100), unlock)
	if err != nil {
		t.Fatalf("NoteLockCreation: %v", err)
	}

	if err := e.NoteLockBalanceChange("alice", "P", lockID, tokens(100), new(big.Int), unlock); err != nil {
		t.Fatalf("NoteLockBalanceChange: %v", err)
	}

	power, err := e.VotingPower("alice", lockID)
	if err != nil {
		t.Fatalf("VotingPower: %v", err)
	}
	if power.Sign() != 0 {
		t.Errorf("power = %s, want 0", power)
	}
	if err := e.Checkpoint("P"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	global, _ := e.GlobalVotingPower("P")
	if global.Sign() != 0 {
		t.Errorf("global = %s, want 0", global)
	}

	// The lock remains queryable as once-noted.
	noted, err := e.IsOnceNotedPoint("alice", lockID)
	if err != nil {
		t.Fatalf("IsOnceNotedPoint: %v", err)
	}
	if !noted {
		t.Error("zeroed lock should still be once-noted")
	}
}

func TestExtension(t *testing.T) {
	e, _ := testEngine(t)
	configureDefault(t, e, "P")

	oldUnlock := baseTime + 4*Week
	newUnlock := baseTime + 8*Week
	lockID, err := e.NoteLockCreation("alice", "P", tokens(100), oldUnlock)
	if err != nil {
		t.Fatalf("NoteLockCreation: %v", err)
	}
	before, _ := e.VotingPower("alice", lockID)

	if err := e.NoteLockExtension("alice", "P", lockID, tokens(100), oldUnlock, newUnlock); err != nil {
		t.Fatalf("NoteLockExtension: %v", err)
	}
	after, _ := e.VotingPower("alice", lockID)
	if after.Cmp(before) <= 0 {
		t.Errorf("power %s -> %s, want increase", before, after)
	}

	// The old unlock epoch no longer schedules a change; the new one does.
	oldDelta, _ := e.DB.GetSlopeChange("P", oldUnlock)
	if oldDelta != nil && oldDelta.Sign() != 0 {
		t.Errorf("old epoch delta = %s, want 0", oldDelta)
	}
	newDelta, _ := e.DB.GetSlopeChange("P", newUnlock)
	if newDelta == nil || newDelta.Sign() >= 0 {
		t.Errorf("new epoch delta = %v, want negative", newDelta)
	}

	if err := e.Checkpoint("P"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	global, _ := e.GlobalVotingPower("P")
	if global.Cmp(after) != 0 {
		t.Errorf("global = %s, want %s", global, after)
	}
}

func TestExtensionValidation(t *testing.T) {
	e, clock := testEngine(t)
	configureDefault(t, e, "P")

	oldUnlock := baseTime + 8*Week
	lockID, err := e.NoteLockCreation("alice", "P", tokens(100), oldUnlock)
	if err != nil {
		t.Fatalf("NoteLockCreation: %v", err)
	}

	// Shortening is forbidden.
	err = e.NoteLockExtension("alice", "P", lockID, tokens(100), oldUnlock, baseTime+4*Week)
	if !errors.Is(err, ErrOnlyExtensions) {
		t.Errorf("err = %v, want ErrOnlyExtensions", err)
	}

	err = e.NoteLockExtension("alice", "P", lockID, tokens(100), oldUnlock, baseTime+8*Week+1)
	if !errors.Is(err, ErrUnalignedUnlock) {
		t.Errorf("err = %v, want ErrUnalignedUnlock", err)
	}

	err = e.NoteLockExtension("alice", "P", lockID, tokens(100), oldUnlock, baseTime+53*Week)
	if !errors.Is(err, ErrLockTooLong) {
		t.Errorf("err = %v, want ErrLockTooLong", err)
	}

	err = e.NoteLockExtension("alice", "P", 999, tokens(100), oldUnlock, baseTime+9*Week)
	if !errors.Is(err, ErrNoLockFound) {
		t.Errorf("err = %v, want ErrNoLockFound", err)
	}

	// A new unlock time in the past fails as too short.
	clock.Advance(10 * Week)
	err = e.NoteLockExtension("alice", "P", lockID, tokens(100), oldUnlock, baseTime+9*Week)
	if !errors.Is(err, ErrLockTooShort) {
		t.Errorf("err = %v, want ErrLockTooShort", err)
	}
}

func TestPeriodCarryForward(t *testing.T) {
	e, clock := testEngine(t)
	configureDefault(t, e, "P")

	unlock := baseTime + 8*Week
	lockID, err := e.NoteLockCreation("alice", "P", tokens(100), unlock)
	if err != nil {
		t.Fatalf("NoteLockCreation: %v", err)
	}
	created, _ := e.UserPoint("alice", lockID)

	// Halfway through, re-note with the same balance: the lock's original
	// period keeps feeding the slope, so the slope must not change even
	// though the remaining duration halved.
	clock.Advance(4 * Week)
	if err := e.NoteLockBalanceChange("alice", "P", lockID, tokens(100), tokens(100), unlock); err != nil {
		t.Fatalf("NoteLockBalanceChange: %v", err)
	}
	renoted, _ := e.UserPoint("alice", lockID)

	if renoted.Period != created.Period {
		t.Errorf("period = %d, want %d", renoted.Period, created.Period)
	}
	if renoted.Slope.Cmp(created.Slope) != 0 {
		t.Errorf("slope = %s, want unchanged %s", renoted.Slope, created.Slope)
	}
	wantBias := new(big.Int).Mul(renoted.Slope, big.NewInt(4*Week))
	if renoted.Bias.Cmp(wantBias) != 0 {
		t.Errorf("bias = %s, want %s", renoted.Bias, wantBias)
	}
}

func TestLongGapRollsToZero(t *testing.T) {
	e, clock := testEngine(t)
	configureDefault(t, e, "P")

	if _, err := e.NoteLockCreation("alice", "P", tokens(100), baseTime+4*Week); err != nil {
		t.Fatalf("NoteLockCreation: %v", err)
	}

	// Far beyond the unlock, still inside the rolling bound.
	clock.Advance(60 * Week)
	if err := e.Checkpoint("P"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	global, _ := e.GlobalVotingPower("P")
	if global.Sign() != 0 {
		t.Errorf("global = %s, want 0", global)
	}
	gp, _ := e.GlobalPoint("P")
	if gp.LastUpdate != clock.Now() {
		t.Errorf("last_update = %d, want %d", gp.LastUpdate, clock.Now())
	}
}

func TestLockIDsNeverReused(t *testing.T) {
	e, _ := testEngine(t)
	configureDefault(t, e, "A")
	configureDefault(t, e, "B")

	id1, err := e.NoteLockCreation("alice", "A", tokens(1), baseTime+4*Week)
	if err != nil {
		t.Fatalf("create in A: %v", err)
	}
	id2, err := e.NoteLockCreation("bob", "B", tokens(1), baseTime+4*Week)
	if err != nil {
		t.Fatalf("create in B: %v", err)
	}
	if id2 != id1+1 {
		t.Errorf("ids = %d, %d, want consecutive across pools", id1, id2)
	}
}
