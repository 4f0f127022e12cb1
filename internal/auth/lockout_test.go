package auth

import (
	"context"
	"errors"
	"testing"
)

// conflictingStore wraps a SessionStore and fails the first n updates with
// ErrVersionConflict, simulating concurrent writers.
type conflictingStore struct {
	SessionStore
	remaining int
}

func (s *conflictingStore) Update(ctx context.Context, st SessionState) error {
	if s.remaining > 0 {
		s.remaining--
		return ErrVersionConflict
	}
	return s.SessionStore.Update(ctx, st)
}

func TestLockoutTrackerThreshold(t *testing.T) {
	store := NewMemoryStore()
	clock := newTestClock()
	tracker := NewLockoutTracker(store, 3, clock.Now)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		st, err := tracker.RecordFailure(ctx, "acct-1")
		if err != nil {
			t.Fatalf("RecordFailure %d: %v", i, err)
		}
		if st.FailedAttempts != i || st.Locked {
			t.Fatalf("after failure %d: %+v", i, st)
		}
	}

	st, err := tracker.RecordFailure(ctx, "acct-1")
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if !st.Locked || st.FailedAttempts != 3 {
		t.Fatalf("expected locked at threshold, got %+v", st)
	}
	if st.LockTime == nil || !st.LockTime.Equal(clock.Now()) {
		t.Fatalf("expected lock time %v, got %v", clock.Now(), st.LockTime)
	}
}

func TestLockoutTrackerSuccessKeepsRefreshSlot(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewLockoutTracker(store, 3, newTestClock().Now)
	ctx := context.Background()

	// Seed a refresh slot alongside two failures.
	if _, err := mutateSession(ctx, store, "acct-1", func(st *SessionState) {
		st.FailedAttempts = 2
		st.RefreshTokenHash = "somehash"
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	if err := tracker.RecordSuccess(ctx, "acct-1"); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	st, _ := store.Get(ctx, "acct-1")
	if st.FailedAttempts != 0 || st.Locked {
		t.Fatalf("expected reset counters, got %+v", st)
	}
	if st.RefreshTokenHash != "somehash" {
		t.Fatalf("refresh slot was clobbered: %+v", st)
	}
}

func TestLockoutTrackerUnlock(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewLockoutTracker(store, 1, newTestClock().Now)
	ctx := context.Background()

	if _, err := tracker.RecordFailure(ctx, "acct-1"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if err := tracker.Unlock(ctx, "acct-1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	st, _ := store.Get(ctx, "acct-1")
	if st.Locked || st.FailedAttempts != 0 || st.LockTime != nil {
		t.Fatalf("expected clean state after unlock, got %+v", st)
	}
}

func TestMutateSessionRetriesOnVersionConflict(t *testing.T) {
	store := &conflictingStore{SessionStore: NewMemoryStore(), remaining: 2}
	ctx := context.Background()

	st, err := mutateSession(ctx, store, "acct-1", func(st *SessionState) {
		st.FailedAttempts++
	})
	if err != nil {
		t.Fatalf("mutateSession: %v", err)
	}
	if st.FailedAttempts != 1 {
		t.Fatalf("unexpected state: %+v", st)
	}
	if store.remaining != 0 {
		t.Fatalf("expected retries to consume conflicts, %d left", store.remaining)
	}
}

func TestMutateSessionStopsOnCancelledContext(t *testing.T) {
	store := &conflictingStore{SessionStore: NewMemoryStore(), remaining: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mutateSession(ctx, store, "acct-1", func(st *SessionState) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSessionStoreVersionSemantics(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// Absent row reads as version zero.
	st, err := store.Get(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Version != 0 {
		t.Fatalf("expected version 0 for absent row, got %d", st.Version)
	}

	// First write lands as version one.
	st.FailedAttempts = 1
	if err := store.Update(ctx, st); err != nil {
		t.Fatalf("Update: %v", err)
	}
	cur, _ := store.Get(ctx, "acct-1")
	if cur.Version != 1 || cur.FailedAttempts != 1 {
		t.Fatalf("unexpected stored state: %+v", cur)
	}

	// A stale writer loses.
	stale := st // still version 0
	if err := store.Update(ctx, stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	fresh := cur
	fresh.Locked = true
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("Update with current version: %v", err)
	}
}
