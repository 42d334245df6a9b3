package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"ainstein.io/internal/auth"
)

func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	bundle, err := a.auth.Bundle(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "account no longer exists")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/organizations/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "subscription" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	a.handleSubscription(w, r, parts[0])
}

func (a *API) handleSubscription(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	role, ok := auth.RoleFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	callerOrg, _ := auth.OrgFromContext(r.Context())

	plan, err := a.auth.Subscription(r.Context(), callerOrg, role, orgID)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, r, http.StatusForbidden, "subscription belongs to another organization")
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "subscription not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, plan)
}
