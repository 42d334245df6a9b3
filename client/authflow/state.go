package authflow

import "errors"

// Phase is the active variant of the session state machine. Exactly one
// phase is active at any instant.
type Phase int

const (
	// PhaseUnauthenticated is the initial phase; no identity is committed.
	PhaseUnauthenticated Phase = iota
	// PhaseAuthenticating means a login request is in flight.
	PhaseAuthenticating
	// PhaseMFARequired holds a pending user awaiting second-factor proof.
	PhaseMFARequired
	// PhaseMustChangePassword holds an uncommitted login bundle until the
	// password rotation completes.
	PhaseMustChangePassword
	// PhaseAuthenticated exposes the committed user, organization and
	// subscription.
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseMFARequired:
		return "mfa_required"
	case PhaseMustChangePassword:
		return "must_change_password"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned when an operation is attempted from a phase that
	// does not permit it.
	ErrBusy = errors.New("authflow: operation not valid in current phase")
	// ErrNoPendingLogin is returned by CompletePendingLogin outside the
	// must-change-password phase.
	ErrNoPendingLogin = errors.New("authflow: no pending login to complete")
	// ErrNoChallenge is returned by VerifyMFA outside the MFA phase.
	ErrNoChallenge = errors.New("authflow: no MFA challenge pending")
)
