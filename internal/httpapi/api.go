// Package httpapi is the HTTP surface of the PRM backend: authentication,
// current-user and subscription reads, and the metered assistant proxy.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"ainstein.io/internal/assistant"
	"ainstein.io/internal/auth"
	"ainstein.io/internal/obs"
)

// ReadyProbe reports readiness, pinging the database when one is wired.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	assistant  *assistant.Service
	readyProbe ReadyProbe
	version    string
}

func New(authSvc *auth.Service, assistantSvc *assistant.Service, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       authSvc,
		assistant:  assistantSvc,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc(loginPath, a.handleLogin)
	a.mux.HandleFunc(mfaVerifyPath, a.handleMFAVerify)
	a.mux.HandleFunc(changePasswordPath, a.handleChangePassword)
	a.mux.HandleFunc(currentUserPath, a.handleCurrentUser)
	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizationScoped)
	a.mux.HandleFunc(assistantChatPath, a.handleAssistantChat)

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler: metrics on the outside,
// then request ID, logging, hardening and the bearer-token gate.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, 20, 10)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "ainstein-api",
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
		"name":    "ainstein-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
