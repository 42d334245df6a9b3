package auth

import (
	"context"

	"ainstein.io/prm"
)

// Account is a stored user together with its credential hash. The hash
// never leaves this layer.
type Account struct {
	prm.User
	PasswordHash string
}

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Organizations(ctx context.Context) OrganizationStore
	Subscriptions(ctx context.Context) SubscriptionStore
}

// UserStore manages user accounts.
type UserStore interface {
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// UpdatePassword replaces the credential hash and clears the
	// must-change-password flag in the same statement.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// OrganizationStore reads organizations.
type OrganizationStore interface {
	Find(ctx context.Context, id string) (*prm.Organization, error)
}

// SubscriptionStore reads subscription plans with live usage counts.
type SubscriptionStore interface {
	FindByOrg(ctx context.Context, orgID string) (*prm.SubscriptionPlan, error)
	// AddUsage increments a stored usage counter (AI tokens, storage).
	// Countable entities (partners, managers, admins) are derived from
	// their own tables instead.
	AddUsage(ctx context.Context, orgID string, resource prm.Resource, delta int64) error
}
