package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

const defaultIssuer = "bloodsync"

// SessionService orchestrates login, registration and refresh flows against
// the user directory, the lockout tracker and the token issuer.
type SessionService struct {
	directory Directory
	sessions  SessionStore
	hasher    PasswordHasher
	issuer    *TokenIssuer
	lockout   *LockoutTracker
	onLockout func(accountID string)
	now       func() time.Time
}

type settings struct {
	now        func() time.Time
	hasher     PasswordHasher
	issuerName string
	accessTTL  time.Duration
	refreshTTL time.Duration
	threshold  int
	onLockout  func(accountID string)
}

// Option configures SessionService behavior.
type Option func(*settings)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *settings) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithHasher overrides the password hashing capability.
func WithHasher(h PasswordHasher) Option {
	return func(s *settings) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithIssuer overrides the issuer claim stamped into access tokens.
func WithIssuer(name string) Option {
	return func(s *settings) {
		if strings.TrimSpace(name) != "" {
			s.issuerName = name
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithLockoutThreshold configures the failed-attempt threshold.
func WithLockoutThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithLockoutNotifier registers a callback invoked once per lock transition,
// with the account id that was locked.
func WithLockoutNotifier(fn func(accountID string)) Option {
	return func(s *settings) {
		if fn != nil {
			s.onLockout = fn
		}
	}
}

// NewSessionService constructs the service. secret signs access tokens and
// must not be empty.
func NewSessionService(directory Directory, sessions SessionStore, secret string, opts ...Option) (*SessionService, error) {
	cfg := settings{
		now:        time.Now,
		hasher:     BcryptHasher{},
		issuerName: defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		threshold:  DefaultLockoutThreshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	issuer, err := NewTokenIssuer(secret, cfg.issuerName, cfg.accessTTL, cfg.refreshTTL, cfg.now)
	if err != nil {
		return nil, err
	}
	return &SessionService{
		directory: directory,
		sessions:  sessions,
		hasher:    cfg.hasher,
		issuer:    issuer,
		lockout:   NewLockoutTracker(sessions, cfg.threshold, cfg.now),
		onLockout: cfg.onLockout,
		now:       cfg.now,
	}, nil
}

// Login verifies credentials and issues a fresh session.
//
// The lock state is checked before the password so a correct password on a
// locked account still fails with ErrAccountLocked. An unknown username is
// reported as ErrInvalidCredentials to avoid revealing which accounts exist.
func (s *SessionService) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	acct, err := s.directory.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !acct.Active {
		return Session{}, ErrAccountInactive
	}

	st, err := s.sessions.Get(ctx, acct.ID)
	if err != nil {
		return Session{}, err
	}
	if s.lockout.IsLocked(st) {
		return Session{}, ErrAccountLocked
	}

	if err := s.hasher.Verify(acct.PasswordHash, password); err != nil {
		after, ferr := s.lockout.RecordFailure(ctx, acct.ID)
		if ferr != nil {
			return Session{}, ferr
		}
		// The account was unlocked on entry, so a locked state here means
		// this failure crossed the threshold.
		if after.Locked && s.onLockout != nil {
			s.onLockout(acct.ID)
		}
		return Session{}, ErrInvalidCredentials
	}

	if err := s.lockout.RecordSuccess(ctx, acct.ID); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, acct)
}

// RegisterParams carries the fields of a registration request.
type RegisterParams struct {
	Username string
	Email    string
	Password string
	FullName string
	Role     Role
}

// Register creates an account and issues a session immediately on success.
// The account starts active, unlocked and with counters at zero; the default
// role applies when none is given.
func (s *SessionService) Register(ctx context.Context, p RegisterParams) (Session, error) {
	p.Username = strings.TrimSpace(strings.ToLower(p.Username))
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	if p.Username == "" || p.Password == "" {
		return Session{}, ErrInvalidInput
	}
	if p.Email == "" || !strings.Contains(p.Email, "@") {
		return Session{}, ErrInvalidInput
	}
	role := p.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return Session{}, ErrInvalidRole
	}

	taken, err := s.directory.ExistsByUsername(ctx, p.Username)
	if err != nil {
		return Session{}, err
	}
	if taken {
		return Session{}, ErrDuplicateUsername
	}
	taken, err = s.directory.ExistsByEmail(ctx, p.Email)
	if err != nil {
		return Session{}, err
	}
	if taken {
		return Session{}, ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return Session{}, err
	}
	acct := &Account{
		Username:     p.Username,
		Email:        p.Email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(p.FullName),
		Role:         role,
		Active:       true,
	}
	if err := s.directory.Create(ctx, acct); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, acct)
}

// Refresh exchanges a valid refresh token for a new token pair, rotating the
// stored refresh token so the presented one can never be used again.
func (s *SessionService) Refresh(ctx context.Context, raw string) (Session, error) {
	accountID, secret, err := SplitRefreshToken(raw)
	if err != nil {
		return Session{}, ErrInvalidRefreshToken
	}
	acct, err := s.directory.Find(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return Session{}, err
	}
	if !acct.Active {
		return Session{}, ErrAccountInactive
	}

	// Rotation runs under the session-state version check. Two concurrent
	// refreshes with the same token both validate against the stored hash,
	// but only one update lands; the loser re-reads the rotated slot and
	// fails validation.
	for {
		st, err := s.sessions.Get(ctx, acct.ID)
		if err != nil {
			return Session{}, err
		}
		if s.lockout.IsLocked(st) {
			return Session{}, ErrAccountLocked
		}
		if err := s.issuer.ValidateRefresh(st, secret); err != nil {
			return Session{}, err
		}

		refresh, hash, refreshExp, err := s.issuer.IssueRefresh(acct.ID)
		if err != nil {
			return Session{}, err
		}
		st.AccountID = acct.ID
		st.RefreshTokenHash = hash
		st.RefreshExpiresAt = &refreshExp

		err = s.sessions.Update(ctx, st)
		if errors.Is(err, ErrVersionConflict) {
			if cerr := ctx.Err(); cerr != nil {
				return Session{}, cerr
			}
			continue
		}
		if err != nil {
			return Session{}, err
		}

		access, accessExp, err := s.issuer.IssueAccess(acct)
		if err != nil {
			return Session{}, err
		}
		return Session{
			AccessToken:      access,
			RefreshToken:     refresh,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: refreshExp,
			Username:         acct.Username,
			Role:             acct.Role,
		}, nil
	}
}

// Authenticate validates a bearer access token and resolves the account it
// belongs to. Inactive and locked accounts are rejected even when the token
// signature is still valid.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*Account, error) {
	claims, err := s.issuer.ParseAccess(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	acct, err := s.directory.FindByUsername(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !acct.Active {
		return nil, ErrAccountInactive
	}
	st, err := s.sessions.Get(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	if s.lockout.IsLocked(st) {
		return nil, ErrAccountLocked
	}
	return acct, nil
}

// Unlock clears a lock administratively.
func (s *SessionService) Unlock(ctx context.Context, username string) error {
	username = strings.TrimSpace(strings.ToLower(username))
	acct, err := s.directory.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.lockout.Unlock(ctx, acct.ID)
}

// ChangePassword verifies the current password and stores a hash of the new
// one.
func (s *SessionService) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if strings.TrimSpace(next) == "" {
		return ErrInvalidInput
	}
	acct, err := s.directory.Find(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.hasher.Verify(acct.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	acct.PasswordHash = hash
	return s.directory.Save(ctx, acct)
}

// issueSession mints the token pair and persists the new refresh slot.
func (s *SessionService) issueSession(ctx context.Context, acct *Account) (Session, error) {
	access, accessExp, err := s.issuer.IssueAccess(acct)
	if err != nil {
		return Session{}, err
	}
	refresh, hash, refreshExp, err := s.issuer.IssueRefresh(acct.ID)
	if err != nil {
		return Session{}, err
	}
	if _, err := mutateSession(ctx, s.sessions, acct.ID, func(st *SessionState) {
		st.RefreshTokenHash = hash
		st.RefreshExpiresAt = &refreshExp
	}); err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		Username:         acct.Username,
		Role:             acct.Role,
	}, nil
}
