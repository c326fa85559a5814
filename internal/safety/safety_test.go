package safety

import (
	"context"
	"strings"
	"testing"
	"time"

	"bot-core/pkg/store"
)

var noon = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestCooldownDuration(t *testing.T) {
	cases := []struct {
		cd   Cooldown
		want time.Duration
	}{
		{Cooldown{30, UnitSec}, 30 * time.Second},
		{Cooldown{5, UnitMin}, 5 * time.Minute},
		{Cooldown{2, UnitHour}, 2 * time.Hour},
		{Cooldown{10, "bogus"}, 10 * time.Second},
	}
	for _, c := range cases {
		if got := c.cd.Duration(); got != c.want {
			t.Errorf("%+v.Duration() = %v, want %v", c.cd, got, c.want)
		}
	}
}

func TestEvaluateOrderedChecks(t *testing.T) {
	cfg := Config{
		Cooldown:        Cooldown{1, UnitMin},
		OneTradeAtATime: true,
		MaxTradesPerDay: 2,
	}
	armed := Snapshot{Armed: true, DailyCountDate: DateOf(noon)}

	cases := []struct {
		name   string
		snap   Snapshot
		allow  bool
		reason string
	}{
		{"not armed", Snapshot{}, false, "not active"},
		{"in cooldown", withLast(armed, noon.Add(-30*time.Second)), false, "cooldown"},
		{"cooldown elapsed", withLast(armed, noon.Add(-2*time.Minute)), true, ""},
		{"open order blocks", withOrders(armed, 1), false, "one trade at a time"},
		{"daily limit", withDaily(armed, 2), false, "daily limit"},
		{"under daily limit", withDaily(armed, 1), true, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := Evaluate(cfg, c.snap, noon)
			if d.Allowed != c.allow {
				t.Fatalf("allowed = %v, want %v (reason %q)", d.Allowed, c.allow, d.Reason)
			}
			if c.reason != "" && !strings.Contains(d.Reason, c.reason) {
				t.Errorf("reason = %q, want it to mention %q", d.Reason, c.reason)
			}
		})
	}
}

func withLast(s Snapshot, at time.Time) Snapshot { s.LastTriggerTime = at; return s }
func withOrders(s Snapshot, n int) Snapshot     { s.ActiveOrdersCount = n; return s }
func withDaily(s Snapshot, n int) Snapshot      { s.DailyTradeCount = n; return s }

func TestDailyCounterRollsOver(t *testing.T) {
	cfg := Config{MaxTradesPerDay: 1}
	snap := Snapshot{
		Armed:           true,
		DailyTradeCount: 1,
		DailyCountDate:  "2025-06-14", // yesterday
	}
	d := Evaluate(cfg, snap, noon)
	if !d.Allowed {
		t.Fatalf("stale counter should not block: %q", d.Reason)
	}
	if !d.ResetDaily {
		t.Error("expected ResetDaily on date change")
	}

	snap.DailyCountDate = DateOf(noon)
	d = Evaluate(cfg, snap, noon)
	if d.Allowed {
		t.Error("today's counter at the limit should block")
	}
}

func TestFamilyLockMutualExclusion(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	locker := NewLocker(st)

	// first bot fires and takes the lock
	status, err := locker.IsLocked(ctx, "candleStrike", noon)
	if err != nil {
		t.Fatalf("isLocked: %v", err)
	}
	if status.Locked {
		t.Fatal("fresh family should not be locked")
	}
	if err := locker.Acquire(ctx, "candleStrike", "bot-a", noon, 5*time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// second bot within the window is refused
	status, err = locker.IsLocked(ctx, "candleStrike", noon.Add(time.Minute))
	if err != nil {
		t.Fatalf("isLocked: %v", err)
	}
	if !status.Locked {
		t.Fatal("second bot should see the lock held")
	}
	if status.Holder != "bot-a" {
		t.Errorf("holder = %q, want bot-a", status.Holder)
	}
	if status.Remaining != 4*time.Minute {
		t.Errorf("remaining = %v, want 4m", status.Remaining)
	}

	// another family is unaffected
	status, _ = locker.IsLocked(ctx, "grid", noon.Add(time.Minute))
	if status.Locked {
		t.Error("lock leaked across families")
	}

	// window expires
	status, _ = locker.IsLocked(ctx, "candleStrike", noon.Add(6*time.Minute))
	if status.Locked {
		t.Error("lock should expire after the cooldown window")
	}
}

func TestLockReleaseOnlyByHolder(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	locker := NewLocker(st)

	if err := locker.Acquire(ctx, "candleStrike", "bot-a", noon, time.Hour); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := locker.Release(ctx, "candleStrike", "bot-b"); err != nil {
		t.Fatalf("release by non-holder: %v", err)
	}
	status, _ := locker.IsLocked(ctx, "candleStrike", noon.Add(time.Minute))
	if !status.Locked {
		t.Error("non-holder release must not drop the lock")
	}

	if err := locker.Release(ctx, "candleStrike", "bot-a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	status, _ = locker.IsLocked(ctx, "candleStrike", noon.Add(time.Minute))
	if status.Locked {
		t.Error("holder release should drop the lock")
	}
}

func TestLockKeepsExecutionStamps(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	locker := NewLocker(st)

	if err := locker.Record(ctx, "candleStrike", "GREEN", noon); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := locker.Record(ctx, "candleStrike", "RED", noon.Add(time.Minute)); err != nil {
		t.Fatalf("record: %v", err)
	}

	// acquiring the lock must not wipe the stamps
	if err := locker.Acquire(ctx, "candleStrike", "bot-a", noon.Add(2*time.Minute), 5*time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	status, err := locker.IsLocked(ctx, "candleStrike", noon.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("isLocked: %v", err)
	}
	if got := status.LastExecution["GREEN"]; !got.Equal(noon) {
		t.Errorf("lastExecution[GREEN] = %v, want %v", got, noon)
	}
	if got := status.LastExecution["RED"]; !got.Equal(noon.Add(time.Minute)) {
		t.Errorf("lastExecution[RED] = %v, want %v", got, noon.Add(time.Minute))
	}

	// a newer stamp for the same variant replaces the old one
	if err := locker.Record(ctx, "candleStrike", "GREEN", noon.Add(time.Hour)); err != nil {
		t.Fatalf("record: %v", err)
	}
	status, _ = locker.IsLocked(ctx, "candleStrike", noon.Add(time.Hour))
	if got := status.LastExecution["GREEN"]; !got.Equal(noon.Add(time.Hour)) {
		t.Errorf("lastExecution[GREEN] after rewrite = %v, want %v", got, noon.Add(time.Hour))
	}

	// stamps stay family-scoped
	other, _ := locker.IsLocked(ctx, "grid", noon)
	if len(other.LastExecution) != 0 {
		t.Errorf("grid stamps = %+v, want none", other.LastExecution)
	}
}
