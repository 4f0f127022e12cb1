package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"bloodsync.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Endpoints that demand a valid bearer token. Everything else either
// authenticates by its own means (login, refresh) or is public.
var protectedPaths = map[string]bool{
	"/v1/auth/unlock":   true,
	"/v1/auth/password": true,
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || !protectedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		acct, err := a.sessions.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			case errors.Is(err, auth.ErrAccountLocked):
				writeError(w, r, http.StatusLocked, "account is locked")
			case errors.Is(err, auth.ErrAccountInactive):
				writeError(w, r, http.StatusForbidden, "account is inactive")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithAccount(r.Context(), acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
