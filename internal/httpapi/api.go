package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"bloodsync.org/internal/auth"
	"bloodsync.org/internal/obs"
)

// ReadyProbe reports readiness (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the session service.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	sessions   *auth.SessionService

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, sessions *auth.SessionService) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		sessions:   sessions,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/unlock", a.handleUnlock)
	a.mux.HandleFunc("/v1/auth/password", a.handleChangePassword)

	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- health/info handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "bloodsync-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "bloodsync-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError maps domain failures to caller-visible statuses. Internal
// failures are logged in full and surfaced as an opaque 500.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrRefreshTokenExpired),
		errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrAccountLocked):
		writeError(w, r, http.StatusLocked, "account is locked")
	case errors.Is(err, auth.ErrAccountInactive):
		writeError(w, r, http.StatusForbidden, "account is inactive")
	case errors.Is(err, auth.ErrDuplicateUsername):
		writeError(w, r, http.StatusConflict, "username already exists")
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, r, http.StatusConflict, "email already exists")
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrInvalidRole):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "account not found")
	default:
		obs.LogRequest(map[string]any{
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
			"level":      "error",
			"msg":        "auth_operation_failed",
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
