package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"ainstein.io/internal/audit"
	"ainstein.io/internal/auth"
	"ainstein.io/prm"
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req prm.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	result, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			_ = audit.LogEvent(r.Context(), "auth.login.rejected", map[string]any{
				"username": req.Username,
			})
			writeError(w, r, http.StatusUnauthorized, "invalid username or password")
		default:
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	if result.MFARequired {
		_ = audit.LogEvent(r.Context(), "auth.login.mfa_challenged", map[string]any{
			"user_id": result.Bundle.User.ID,
		})
		writeJSON(w, http.StatusOK, prm.LoginResponse{
			MFARequired: true,
			MFAToken:    result.MFAToken,
			Bundle:      result.Bundle,
		})
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]any{
		"user_id":              result.Bundle.User.ID,
		"must_change_password": result.MustChangePassword,
	})
	writeJSON(w, http.StatusOK, prm.LoginResponse{
		Token:              result.Token,
		MustChangePassword: result.MustChangePassword,
		Bundle:             result.Bundle,
	})
}

func (a *API) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req prm.MFAVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.MFAToken == "" || req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "mfaToken and code are required")
		return
	}

	token, err := a.auth.VerifyMFA(r.Context(), req.MFAToken, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrAccountInactive):
			_ = audit.LogEvent(r.Context(), "auth.mfa.rejected", nil)
			writeError(w, r, http.StatusUnauthorized, "invalid or expired verification code")
		default:
			writeError(w, r, http.StatusInternalServerError, "verification failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.mfa.verified", nil)
	writeJSON(w, http.StatusOK, prm.MFAVerifyResponse{Token: token})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req prm.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := a.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, "current password is incorrect")
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "password change failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password.changed", nil)
	writeJSON(w, http.StatusOK, prm.ChangePasswordResponse{Token: token})
}
