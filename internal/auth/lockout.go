package auth

import (
	"context"
	"time"
)

// DefaultLockoutThreshold is the number of consecutive failed logins that
// locks an account.
const DefaultLockoutThreshold = 5

// LockoutTracker maintains the per-account failed-attempt state machine.
//
// States are Unlocked and Locked. A failure that brings the counter to the
// threshold transitions to Locked and stamps the lock time. Locks are
// permanent: only a successful login or an explicit administrative unlock
// clears them.
type LockoutTracker struct {
	sessions  SessionStore
	threshold int
	now       func() time.Time
}

// NewLockoutTracker constructs a tracker over the given session store.
func NewLockoutTracker(sessions SessionStore, threshold int, now func() time.Time) *LockoutTracker {
	t := &LockoutTracker{sessions: sessions, threshold: threshold, now: now}
	if t.threshold <= 0 {
		t.threshold = DefaultLockoutThreshold
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// RecordFailure increments the failed-attempt counter and transitions the
// account to Locked once the counter reaches the threshold. The updated state
// is persisted before returning.
func (t *LockoutTracker) RecordFailure(ctx context.Context, accountID string) (SessionState, error) {
	return mutateSession(ctx, t.sessions, accountID, func(st *SessionState) {
		st.FailedAttempts++
		if st.FailedAttempts >= t.threshold && !st.Locked {
			st.Locked = true
			lockTime := t.now().UTC()
			st.LockTime = &lockTime
		}
	})
}

// RecordSuccess resets the failed-attempt counter and clears any lock. The
// refresh-token slot is left untouched.
func (t *LockoutTracker) RecordSuccess(ctx context.Context, accountID string) error {
	_, err := mutateSession(ctx, t.sessions, accountID, func(st *SessionState) {
		st.FailedAttempts = 0
		st.Locked = false
		st.LockTime = nil
	})
	return err
}

// IsLocked is a pure predicate on the lock flag.
func (t *LockoutTracker) IsLocked(st SessionState) bool {
	return st.Locked
}

// Unlock is the administrative transition back to Unlocked. It clears the
// counter and lock time unconditionally.
func (t *LockoutTracker) Unlock(ctx context.Context, accountID string) error {
	_, err := mutateSession(ctx, t.sessions, accountID, func(st *SessionState) {
		st.FailedAttempts = 0
		st.Locked = false
		st.LockTime = nil
	})
	return err
}
