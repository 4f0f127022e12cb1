package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bloodsync.org/internal/ids"
)

// PGStore implements Directory and SessionStore using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var (
	_ Directory    = (*PGStore)(nil)
	_ SessionStore = (*PGStore)(nil)
)

// OpenPG opens a pooled connection to Postgres through the pgx stdlib driver.
func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing database handle.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

const accountColumns = `id, username, email, password_hash, full_name, role, active, created_at, updated_at`

func scanAccount(row *sql.Row) (*Account, error) {
	var acct Account
	err := row.Scan(&acct.ID, &acct.Username, &acct.Email, &acct.PasswordHash,
		&acct.FullName, &acct.Role, &acct.Active, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *PGStore) Create(ctx context.Context, acct *Account) error {
	if acct.ID == "" {
		acct.ID = ids.New()
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into accounts(id, username, email, password_hash, full_name, role, active, created_at, updated_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$8)
	`, acct.ID, acct.Username, acct.Email, acct.PasswordHash, acct.FullName, acct.Role, acct.Active, now)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PGStore) Find(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where username=$1`, username)
	return scanAccount(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`, email)
	return scanAccount(row)
}

func (s *PGStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from accounts where username=$1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

func (s *PGStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from accounts where email=$1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (s *PGStore) Save(ctx context.Context, acct *Account) error {
	acct.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set username=$2, email=$3, password_hash=$4, full_name=$5, role=$6, active=$7, updated_at=$8
		where id=$1
	`, acct.ID, acct.Username, acct.Email, acct.PasswordHash, acct.FullName, acct.Role, acct.Active, acct.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the session-state row for the account, or a zero state with
// Version 0 when none exists yet.
func (s *PGStore) Get(ctx context.Context, accountID string) (SessionState, error) {
	st := SessionState{AccountID: accountID}
	var (
		lockTime  sql.NullTime
		tokenHash sql.NullString
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select failed_attempts, locked, lock_time, refresh_token_hash, refresh_expires_at, version
		from auth_sessions
		where account_id=$1
	`, accountID).Scan(&st.FailedAttempts, &st.Locked, &lockTime, &tokenHash, &expiresAt, &st.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return SessionState{}, fmt.Errorf("query session state: %w", err)
	}
	if lockTime.Valid {
		v := lockTime.Time.UTC()
		st.LockTime = &v
	}
	if tokenHash.Valid {
		st.RefreshTokenHash = tokenHash.String
	}
	if expiresAt.Valid {
		v := expiresAt.Time.UTC()
		st.RefreshExpiresAt = &v
	}
	return st, nil
}

// Update applies the state with a compare-and-swap on the version column.
// Version 0 inserts the first row; anything else updates only when the
// stored version still matches.
func (s *PGStore) Update(ctx context.Context, st SessionState) error {
	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	if st.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			insert into auth_sessions(account_id, failed_attempts, locked, lock_time, refresh_token_hash, refresh_expires_at, version, updated_at)
			values($1,$2,$3,$4,$5,$6,1,$7)
			on conflict (account_id) do nothing
		`, st.AccountID, st.FailedAttempts, st.Locked, nullTime(st.LockTime), nullString(st.RefreshTokenHash), nullTime(st.RefreshExpiresAt), now)
	} else {
		res, err = s.db.ExecContext(ctx, `
			update auth_sessions
			set failed_attempts=$3, locked=$4, lock_time=$5, refresh_token_hash=$6, refresh_expires_at=$7, version=version+1, updated_at=$8
			where account_id=$1 and version=$2
		`, st.AccountID, st.Version, st.FailedAttempts, st.Locked, nullTime(st.LockTime), nullString(st.RefreshTokenHash), nullTime(st.RefreshExpiresAt), now)
	}
	if err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
