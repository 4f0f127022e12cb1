package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"bloodsync.org/internal/audit"
	"bloodsync.org/internal/auth"
	"bloodsync.org/internal/obs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type unlockRequest struct {
	Username string `json:"username"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type sessionResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	Username         string    `json:"username"`
	Role             string    `json:"role"`
}

func toSessionResponse(s auth.Session) sessionResponse {
	return sessionResponse{
		AccessToken:      s.AccessToken,
		RefreshToken:     s.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  s.AccessExpiresAt,
		RefreshExpiresAt: s.RefreshExpiresAt,
		Username:         s.Username,
		Role:             string(s.Role),
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		obs.ObserveLogin(loginOutcome(err))
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
			"username": strings.TrimSpace(strings.ToLower(req.Username)),
			"reason":   loginOutcome(err),
		})
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveLogin("success")
	_ = audit.LogEvent(r.Context(), "auth.login.success", map[string]any{
		"username": session.Username,
		"role":     string(session.Role),
	})
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}

	session, err := a.sessions.Register(r.Context(), auth.RegisterParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     role,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"username": session.Username,
		"role":     string(session.Role),
	})
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		obs.ObserveRefresh(refreshOutcome(err))
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveRefresh("success")
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"username": session.Username,
	})
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (a *API) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := auth.AccountFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if actor.Role != auth.RoleAdmin {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}
	var req unlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		writeError(w, r, http.StatusBadRequest, "username is required")
		return
	}

	if err := a.sessions.Unlock(r.Context(), req.Username); err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.unlock", map[string]any{
		"username": strings.TrimSpace(strings.ToLower(req.Username)),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := auth.AccountFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.sessions.ChangePassword(r.Context(), actor.ID, req.CurrentPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password.changed", nil)
	w.WriteHeader(http.StatusNoContent)
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrAccountLocked):
		return "locked"
	case errors.Is(err, auth.ErrAccountInactive):
		return "inactive"
	default:
		return "error"
	}
}

func refreshOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		return "invalid"
	case errors.Is(err, auth.ErrRefreshTokenExpired):
		return "expired"
	default:
		return "error"
	}
}
