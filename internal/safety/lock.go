package safety

import (
	"context"
	"errors"
	"sync"
	"time"

	"bot-core/pkg/store"
)

// LockState is the persisted form of one family lock. LastExecution keeps,
// per signal sub-key (candle color, grid level, and so on), when that
// variant last fired, so a restart does not forget what already ran.
type LockState struct {
	Family        string               `json:"family"`
	Until         time.Time            `json:"until"`
	Holder        string               `json:"holder"`
	LastExecution map[string]time.Time `json:"lastExecution,omitempty"`
}

// LockStatus is the answer to an IsLocked query.
type LockStatus struct {
	Locked        bool
	Remaining     time.Duration
	Holder        string
	LastExecution map[string]time.Time
}

// Locker is the global family lock shared by every bot of a strategy family.
// While one bot holds the lock, no sibling may fire regardless of its own
// cooldown. State is persisted so locks survive restarts.
type Locker struct {
	mu    sync.Mutex
	store *store.Store
}

func NewLocker(st *store.Store) *Locker {
	return &Locker{store: st}
}

func (l *Locker) load(ctx context.Context, family string) (LockState, error) {
	var ls LockState
	err := store.GetTyped(ctx, l.store, store.SafetyStates, family, &ls)
	if errors.Is(err, store.ErrNotFound) {
		return LockState{Family: family}, nil
	}
	return ls, err
}

// IsLocked reports whether the family lock is currently held.
func (l *Locker) IsLocked(ctx context.Context, family string, now time.Time) (LockStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ls, err := l.load(ctx, family)
	if err != nil {
		return LockStatus{}, err
	}
	status := LockStatus{LastExecution: ls.LastExecution}
	if now.Before(ls.Until) {
		status.Locked = true
		status.Remaining = ls.Until.Sub(now)
		status.Holder = ls.Holder
	}
	return status, nil
}

// Acquire records holder as the lock owner until now+cooldown. The caller
// must have checked IsLocked in the same evaluation pass; passes run
// sequentially per family so check-then-acquire is race-free.
func (l *Locker) Acquire(ctx context.Context, family, holder string, now time.Time, cooldown time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ls, err := l.load(ctx, family)
	if err != nil {
		return err
	}
	ls.Until = now.Add(cooldown)
	ls.Holder = holder
	return store.PutTyped(ctx, l.store, store.SafetyStates, family, ls)
}

// Record stamps the execution time of one signal variant, keyed by the
// engine's sub-key. It is called after a successful trigger and is
// independent of lock ownership.
func (l *Locker) Record(ctx context.Context, family, subKey string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ls, err := l.load(ctx, family)
	if err != nil {
		return err
	}
	if ls.LastExecution == nil {
		ls.LastExecution = make(map[string]time.Time)
	}
	ls.LastExecution[subKey] = now
	return store.PutTyped(ctx, l.store, store.SafetyStates, family, ls)
}

// Release drops the lock early, used when a bot is deleted mid-cooldown.
func (l *Locker) Release(ctx context.Context, family, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ls, err := l.load(ctx, family)
	if err != nil {
		return err
	}
	if ls.Holder != holder {
		return nil
	}
	ls.Until = time.Time{}
	return store.PutTyped(ctx, l.store, store.SafetyStates, family, ls)
}
