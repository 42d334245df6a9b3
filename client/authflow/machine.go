// Package authflow owns the client-side authentication session lifecycle:
// login, the MFA and forced-password-change holding states, silent
// bootstrap, refresh and logout. It is the only writer of the session
// store; identity data lives in memory and is re-derived from the token on
// every fresh start.
package authflow

import (
	"context"
	"log/slog"
	"sync"

	"ainstein.io/client/gateway"
	"ainstein.io/client/session"
	"ainstein.io/prm"
)

const (
	loginPath          = "/v1/auth/login"
	mfaVerifyPath      = "/v1/auth/mfa/verify"
	changePasswordPath = "/v1/auth/password"
	currentUserPath    = "/v1/users/current"
)

// Outcome reports where a successful credential check landed.
type Outcome struct {
	// OK is false when the credentials were rejected. The caller renders an
	// inline error; no error value accompanies this expected path.
	OK bool
	// Phase is the resulting machine phase: Authenticated, MFARequired or
	// MustChangePassword.
	Phase Phase
}

type pendingLogin struct {
	token  string
	bundle prm.Bundle
}

type pendingChallenge struct {
	user     prm.User
	mfaToken string
}

// Machine is the authentication state machine. Construct one per
// application root and share it; all methods are safe for concurrent use.
type Machine struct {
	gw     *gateway.Gateway
	tokens session.Store
	log    *slog.Logger

	mu        sync.Mutex
	phase     Phase
	current   prm.Bundle
	pending   *pendingLogin
	challenge *pendingChallenge
}

// Option configures the Machine.
type Option func(*Machine)

// WithLogger overrides the logger used for non-fatal failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// New constructs a Machine in the unauthenticated phase.
func New(gw *gateway.Gateway, tokens session.Store, opts ...Option) *Machine {
	m := &Machine{
		gw:     gw,
		tokens: tokens,
		log:    slog.Default(),
		phase:  PhaseUnauthenticated,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Phase returns the active phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Current returns the committed identity bundle when authenticated.
func (m *Machine) Current() (prm.Bundle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseAuthenticated {
		return prm.Bundle{}, false
	}
	return m.current, true
}

// PendingUser returns the user awaiting MFA verification.
func (m *Machine) PendingUser() (prm.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseMFARequired || m.challenge == nil {
		return prm.User{}, false
	}
	return m.challenge.user, true
}

// Bootstrap attempts a silent session restore. If a token is persisted it
// is validated with one current-user fetch: success commits the session,
// any failure clears the token and leaves the machine unauthenticated.
// There is no retry loop and no user-visible error on this path.
func (m *Machine) Bootstrap(ctx context.Context) {
	if _, ok := m.tokens.Token(); !ok {
		return
	}
	var bundle prm.Bundle
	if err := m.gw.Get(ctx, currentUserPath, &bundle); err != nil {
		m.log.Info("session bootstrap failed, clearing token", "error", err)
		_ = m.tokens.Clear()
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitLocked(bundle)
}

// Login authenticates the credentials. Rejected credentials return a zero
// Outcome and a nil error; transport and unexpected server failures return
// an error. Depending on the account flags the machine lands in
// Authenticated, MFARequired or MustChangePassword.
func (m *Machine) Login(ctx context.Context, username, password string) (Outcome, error) {
	m.mu.Lock()
	if m.phase != PhaseUnauthenticated {
		m.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	m.phase = PhaseAuthenticating
	m.mu.Unlock()

	var resp prm.LoginResponse
	err := m.gw.Post(ctx, loginPath, prm.LoginRequest{Username: username, Password: password}, &resp)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseAuthenticating {
		// Logged out while the request was in flight; the stale response
		// must not mutate state.
		return Outcome{}, ErrBusy
	}
	if err != nil {
		m.resetLocked()
		if gateway.IsAuth(err) {
			// Expected failure: bad credentials. The caller renders the
			// inline error and the machine retains no partial state.
			return Outcome{}, nil
		}
		return Outcome{}, err
	}

	switch {
	case resp.MustChangePassword:
		// The returned token is valid for the password-change call only.
		// Persist it now; the bundle stays uncommitted until the change
		// completes.
		if err := m.tokens.Persist(resp.Token); err != nil {
			m.resetLocked()
			return Outcome{}, err
		}
		m.phase = PhaseMustChangePassword
		m.pending = &pendingLogin{token: resp.Token, bundle: resp.Bundle}
		m.challenge = nil
		return Outcome{OK: true, Phase: PhaseMustChangePassword}, nil

	case resp.MFARequired:
		// No token yet. Only the pending user and the opaque challenge
		// reference are retained.
		m.phase = PhaseMFARequired
		m.challenge = &pendingChallenge{user: resp.User, mfaToken: resp.MFAToken}
		m.pending = nil
		return Outcome{OK: true, Phase: PhaseMFARequired}, nil

	default:
		if err := m.tokens.Persist(resp.Token); err != nil {
			m.resetLocked()
			return Outcome{}, err
		}
		m.commitLocked(resp.Bundle)
		return Outcome{OK: true, Phase: PhaseAuthenticated}, nil
	}
}

// VerifyMFA exchanges the pending challenge and the out-of-band code for a
// session. Identity data captured before the second factor is never
// trusted: the full bundle is re-fetched after the token is minted. A wrong
// code leaves the machine in the MFA phase with nothing committed.
func (m *Machine) VerifyMFA(ctx context.Context, code string) error {
	m.mu.Lock()
	if m.phase != PhaseMFARequired || m.challenge == nil {
		m.mu.Unlock()
		return ErrNoChallenge
	}
	mfaToken := m.challenge.mfaToken
	m.mu.Unlock()

	var verified prm.MFAVerifyResponse
	if err := m.gw.Post(ctx, mfaVerifyPath, prm.MFAVerifyRequest{MFAToken: mfaToken, Code: code}, &verified); err != nil {
		return err
	}
	if err := m.tokens.Persist(verified.Token); err != nil {
		return err
	}

	var bundle prm.Bundle
	if err := m.gw.Get(ctx, currentUserPath, &bundle); err != nil {
		// The fetch failed after the token was minted; drop the token so no
		// half-committed session survives. The challenge stays pending.
		_ = m.tokens.Clear()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseMFARequired {
		// Cancelled or logged out while the request was in flight; the
		// stale response must not mutate state.
		_ = m.tokens.Clear()
		return ErrNoChallenge
	}
	m.commitLocked(bundle)
	return nil
}

// CancelMFA abandons the pending challenge.
func (m *Machine) CancelMFA() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseMFARequired {
		return
	}
	m.resetLocked()
}

// ChangePassword rotates the password during a forced change using the
// pending token, persists the full-scope replacement token the server
// mints, and commits the held login. A rejected current password or policy
// failure surfaces as a gateway error and keeps the machine in the
// must-change phase.
func (m *Machine) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	m.mu.Lock()
	if m.phase != PhaseMustChangePassword || m.pending == nil {
		m.mu.Unlock()
		return ErrNoPendingLogin
	}
	m.mu.Unlock()

	req := prm.ChangePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword}
	var resp prm.ChangePasswordResponse
	if err := m.gw.Post(ctx, changePasswordPath, req, &resp); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseMustChangePassword || m.pending == nil {
		// Logged out while the request was in flight. The replacement token
		// is not persisted; the cleared session stays cleared.
		return ErrNoPendingLogin
	}
	if resp.Token != "" {
		if err := m.tokens.Persist(resp.Token); err != nil {
			return err
		}
	}
	m.commitLocked(m.pending.bundle)
	return nil
}

// CompletePendingLogin commits the bundle held since the original login
// response. It is called only after the password-change screen reports
// success; the committed identity is exactly the one the login returned.
func (m *Machine) CompletePendingLogin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseMustChangePassword || m.pending == nil {
		return ErrNoPendingLogin
	}
	m.commitLocked(m.pending.bundle)
	return nil
}

// Logout clears the token and every piece of in-memory identity state
// unconditionally. No backend confirmation is involved.
func (m *Machine) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.tokens.Clear()
	m.resetLocked()
}

// RefreshUser re-fetches the identity bundle and replaces it in place
// without touching the token. A failure is logged and returned but never
// forces a logout; stale data beats ejecting the user mid-session.
func (m *Machine) RefreshUser(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != PhaseAuthenticated {
		m.mu.Unlock()
		return ErrBusy
	}
	m.mu.Unlock()

	var bundle prm.Bundle
	if err := m.gw.Get(ctx, currentUserPath, &bundle); err != nil {
		m.log.Warn("user refresh failed, keeping stale session", "error", err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseAuthenticated {
		return ErrBusy
	}
	m.current = bundle
	return nil
}

// commitLocked enters the authenticated phase, clearing the holding states.
func (m *Machine) commitLocked(bundle prm.Bundle) {
	m.phase = PhaseAuthenticated
	m.current = bundle
	m.pending = nil
	m.challenge = nil
}

// resetLocked returns to the unauthenticated phase with no partial state.
func (m *Machine) resetLocked() {
	m.phase = PhaseUnauthenticated
	m.current = prm.Bundle{}
	m.pending = nil
	m.challenge = nil
}
