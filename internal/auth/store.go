package auth

import (
	"context"
	"errors"
)

// Directory provides lookup and persistence of accounts.
type Directory interface {
	Create(ctx context.Context, acct *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, acct *Account) error
}

// SessionStore persists per-account session state.
//
// Get returns a zero state (Version 0) when no row exists yet. Update applies
// the given state only when the stored version still equals st.Version; the
// stored version is then incremented. A stale version yields
// ErrVersionConflict so callers can re-read and retry their transition.
type SessionStore interface {
	Get(ctx context.Context, accountID string) (SessionState, error)
	Update(ctx context.Context, st SessionState) error
}

// mutateSession runs a read-modify-write cycle against the session store,
// retrying on version conflicts. fn must be pure with respect to everything
// but the passed state.
func mutateSession(ctx context.Context, store SessionStore, accountID string, fn func(*SessionState)) (SessionState, error) {
	for {
		st, err := store.Get(ctx, accountID)
		if err != nil {
			return SessionState{}, err
		}
		st.AccountID = accountID
		fn(&st)
		err = store.Update(ctx, st)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return SessionState{}, err
		}
		if err := ctx.Err(); err != nil {
			return SessionState{}, err
		}
	}
}
