package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"ainstein.io/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

const (
	loginPath          = "/v1/auth/login"
	mfaVerifyPath      = "/v1/auth/mfa/verify"
	changePasswordPath = "/v1/auth/password"
	currentUserPath    = "/v1/users/current"
	assistantChatPath  = "/v1/assistant/chat"
)

var publicPaths = []string{
	loginPath,
	mfaVerifyPath,
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		account, claims, err := a.auth.AuthenticateToken(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			case errors.Is(err, auth.ErrAccountInactive):
				writeError(w, r, http.StatusUnauthorized, "account is inactive")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		// A token issued for a forced password change opens exactly one
		// door: the password endpoint.
		if claims.Pending && r.URL.Path != changePasswordPath {
			writeError(w, r, http.StatusForbidden, "password change required")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), account.ID, account.Role, account.OrganizationID)
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

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
