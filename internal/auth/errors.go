package auth

import "errors"

var (
	ErrNotFound            = errors.New("auth: account not found")
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrAccountLocked       = errors.New("auth: account is locked")
	ErrAccountInactive     = errors.New("auth: account is inactive")
	ErrDuplicateUsername   = errors.New("auth: username already exists")
	ErrDuplicateEmail      = errors.New("auth: email already exists")
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")
	ErrRefreshTokenExpired = errors.New("auth: refresh token expired")
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrInvalidRole         = errors.New("auth: unknown role")
	ErrInvalidInput        = errors.New("auth: invalid input")

	// ErrVersionConflict is returned by SessionStore.Update when the stored
	// version no longer matches the one that was read.
	ErrVersionConflict = errors.New("auth: session state version conflict")
)
