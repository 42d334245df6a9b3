// Package prm holds the domain types shared by the AInstein PRM backend and
// its client core: users, organizations, subscription plans and the wire
// shapes exchanged during authentication.
package prm

import "time"

// User identifies a human actor inside the platform.
type User struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"displayName"`
	Email              string `json:"email"`
	Role               Role   `json:"role"`
	OrganizationID     string `json:"organizationId,omitempty"`
	PartnerID          string `json:"partnerId,omitempty"`
	Active             bool   `json:"active"`
	MFAEnabled         bool   `json:"mfaEnabled"`
	MustChangePassword bool   `json:"mustChangePassword"`
}

// Organization owns users, partners and exactly one subscription.
type Organization struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Active         bool   `json:"active"`
	SubscriptionID string `json:"subscriptionId"`
}

// SubscriptionStatus enumerates the billing states a plan can be in.
type SubscriptionStatus string

const (
	StatusActive         SubscriptionStatus = "active"
	StatusPendingPayment SubscriptionStatus = "pending_payment"
	StatusCancelled      SubscriptionStatus = "cancelled"
	StatusTrial          SubscriptionStatus = "trial"
	StatusExpired        SubscriptionStatus = "expired"
)

// Resource names a countable quantity gated by a subscription plan.
type Resource string

const (
	ResourcePartners        Resource = "partners"
	ResourcePartnerManagers Resource = "partnerManagers"
	ResourceAdmins          Resource = "admins"
	ResourceAITokens        Resource = "aiTokens"
	ResourceStorage         Resource = "storage"
)

// TrackedResources lists every resource the limit evaluator reports on.
var TrackedResources = []Resource{
	ResourcePartners,
	ResourcePartnerManagers,
	ResourceAdmins,
	ResourceAITokens,
	ResourceStorage,
}

// FeatureLimit is the plan-side cap for one resource.
type FeatureLimit struct {
	Limit int64 `json:"limit"`
}

// ResourceUsage is the current consumption for one resource.
type ResourceUsage struct {
	Current int64 `json:"current"`
}

// SubscriptionPlan describes what an organization has paid for and how much
// of it is consumed. TrialDaysLeft is meaningful only while Status is trial.
type SubscriptionPlan struct {
	ID             string                     `json:"id"`
	OrganizationID string                     `json:"organizationId"`
	Plan           string                     `json:"plan"`
	Status         SubscriptionStatus         `json:"status"`
	RenewsAt       time.Time                  `json:"renewsAt"`
	Features       map[Resource]FeatureLimit  `json:"features"`
	Usage          map[Resource]ResourceUsage `json:"usage"`
	TrialDaysLeft  int                        `json:"trialDaysLeft,omitempty"`
}

// CanAdd reports whether one more unit of the resource may be created.
// The boundary is exclusive: reaching the limit forbids the next creation.
// A resource absent from the features map is unlimited.
func (p *SubscriptionPlan) CanAdd(r Resource) bool {
	if p == nil {
		return false
	}
	feature, ok := p.Features[r]
	if !ok {
		return true
	}
	var current int64
	if usage, ok := p.Usage[r]; ok {
		current = usage.Current
	}
	return current < feature.Limit
}

// Bundle is the identity snapshot returned by login and current-user
// lookups. It is never persisted client-side; only the token is.
type Bundle struct {
	User         User             `json:"user"`
	Organization Organization     `json:"organization"`
	Subscription SubscriptionPlan `json:"subscription"`
}

// LoginRequest is the credential payload for POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the split-shape login result. When MFARequired is set the
// token fields are empty and MFAToken references a pending server-side
// challenge; otherwise Token plus the bundle are populated.
type LoginResponse struct {
	Token              string `json:"token,omitempty"`
	MFARequired        bool   `json:"mfaRequired,omitempty"`
	MFAToken           string `json:"mfaToken,omitempty"`
	MustChangePassword bool   `json:"mustChangePassword,omitempty"`
	Bundle
}

// MFAVerifyRequest exchanges a pending challenge plus the code delivered out
// of band for a real session token.
type MFAVerifyRequest struct {
	MFAToken string `json:"mfaToken"`
	Code     string `json:"code"`
}

// MFAVerifyResponse carries the session token minted after a successful
// second-factor verification.
type MFAVerifyResponse struct {
	Token string `json:"token"`
}

// ChangePasswordRequest rotates the caller's password. The bearer token of
// the pending login authorizes it.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePasswordResponse carries the full-scope token minted after a
// successful rotation, replacing any password-change-scoped one.
type ChangePasswordResponse struct {
	Token string `json:"token"`
}
