package auth

import (
	"strings"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDonor   Role = "donor"
	RolePatient Role = "patient"
	RoleUser    Role = "user"
)

// ParseRole normalizes raw input into a known role.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleDonor:
		return RoleDonor, nil
	case RolePatient:
		return RolePatient, nil
	case RoleUser, "":
		return RoleUser, nil
	default:
		return "", ErrInvalidRole
	}
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDonor, RolePatient, RoleUser:
		return true
	}
	return false
}

// Account is the identity record kept in the user directory.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name,omitempty"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionState holds the lockout counters and the refresh-token slot for one
// account. It lives in its own row, keyed by account ID, so concurrent logins
// contend only on this record and never on profile edits. Version implements
// optimistic concurrency: an update is applied only when the stored version
// still matches the one that was read.
type SessionState struct {
	AccountID        string
	FailedAttempts   int
	Locked           bool
	LockTime         *time.Time
	RefreshTokenHash string
	RefreshExpiresAt *time.Time
	Version          int64
}

// Session is the result of a successful login, registration or refresh.
type Session struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	Username         string    `json:"username"`
	Role             Role      `json:"role"`
}
