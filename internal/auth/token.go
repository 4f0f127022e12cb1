package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
)

// AccessClaims is the claim set carried by signed access tokens.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints signed access tokens and opaque refresh tokens.
//
// Access tokens are HS256 JWTs carrying {sub: username, role, iss, iat, exp}.
// Refresh tokens are opaque "accountID.secret" strings; only the SHA-256 of
// the secret half is ever persisted, in the account's session-state slot.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer signing with the given secret.
func NewTokenIssuer(secret, issuer string, accessTTL, refreshTTL time.Duration, now func() time.Time) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	t := &TokenIssuer{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
	}
	if t.accessTTL <= 0 {
		t.accessTTL = defaultAccessTTL
	}
	if t.refreshTTL <= 0 {
		t.refreshTTL = defaultRefreshTTL
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t, nil
}

// IssueAccess signs a short-lived access token for the account.
func (t *TokenIssuer) IssueAccess(acct *Account) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(t.accessTTL)
	claims := AccessClaims{
		Role: string(acct.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   acct.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess verifies an access token signature and claims.
func (t *TokenIssuer) ParseAccess(token string) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if !Role(claims.Role).Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueRefresh generates a fresh opaque refresh token for the account.
// It returns the plaintext token, the hash to persist and the expiry stamp.
func (t *TokenIssuer) IssueRefresh(accountID string) (token, hash string, expiresAt time.Time, err error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", "", time.Time{}, err
	}
	encoded := base64.RawURLEncoding.EncodeToString(secret)
	sum := sha256.Sum256([]byte(encoded))
	return accountID + "." + encoded,
		hex.EncodeToString(sum[:]),
		t.now().UTC().Add(t.refreshTTL),
		nil
}

// ValidateRefresh checks a presented refresh secret against the stored slot.
// A hash mismatch or empty slot yields ErrInvalidRefreshToken; a matching
// token past its expiry yields ErrRefreshTokenExpired.
func (t *TokenIssuer) ValidateRefresh(st SessionState, secret string) error {
	if st.RefreshTokenHash == "" || secret == "" {
		return ErrInvalidRefreshToken
	}
	sum := sha256.Sum256([]byte(secret))
	presented := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(presented), []byte(st.RefreshTokenHash)) != 1 {
		return ErrInvalidRefreshToken
	}
	if st.RefreshExpiresAt == nil || !t.now().Before(*st.RefreshExpiresAt) {
		return ErrRefreshTokenExpired
	}
	return nil
}

// SplitRefreshToken separates an opaque refresh token into the account ID it
// claims and the secret half. The format is meaningless to clients.
func SplitRefreshToken(raw string) (accountID, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidRefreshToken
	}
	return parts[0], parts[1], nil
}
