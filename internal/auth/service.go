package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ainstein.io/internal/mfa"
	"ainstein.io/prm"
)

// CodeSender delivers a one-time MFA code to the user out of band.
type CodeSender interface {
	Send(ctx context.Context, email, code string) error
}

// logSender is the development fallback: the code lands in the service log
// instead of an email or SMS.
type logSender struct {
	log *slog.Logger
}

func (s logSender) Send(ctx context.Context, email, code string) error {
	s.log.InfoContext(ctx, "mfa code issued", "email", email, "code", code)
	return nil
}

// Service implements the authentication operations behind the HTTP API.
type Service struct {
	store      Store
	challenges *mfa.Service
	sender     CodeSender
	now        func() time.Time
	tokenTTL   time.Duration
	pendingTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithCodeSender overrides the MFA code delivery channel.
func WithCodeSender(sender CodeSender) ServiceOption {
	return func(s *Service) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// WithTokenTTL configures the session token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the auth service.
func NewService(store Store, challenges *mfa.Service, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		challenges: challenges,
		sender:     logSender{log: slog.Default()},
		now:        time.Now,
		tokenTTL:   DefaultTokenTTL,
		pendingTTL: PendingTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginResult is the split-shape outcome of a credential check: either a
// pending MFA challenge or a minted token plus the identity bundle.
type LoginResult struct {
	MFARequired        bool
	MFAToken           string
	Token              string
	MustChangePassword bool
	Bundle             prm.Bundle
}

// Login validates credentials and either mints a session token, issues an
// MFA challenge, or mints a password-change-scoped token. Every failure on
// the credential path collapses to ErrInvalidCredentials so the response
// does not reveal which part was wrong.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	account, err := s.store.Users(ctx).FindByEmail(ctx, username)
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !account.Active {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(account.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if account.MustChangePassword {
		// The pending token authorizes the password change only; the full
		// bundle rides along so the client can commit it after the change.
		token, err := GenerateToken(account.User, s.pendingTTL, true)
		if err != nil {
			return LoginResult{}, err
		}
		bundle, err := s.bundleFor(ctx, &account.User)
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{Token: token, MustChangePassword: true, Bundle: bundle}, nil
	}

	if account.MFAEnabled {
		mfaToken, code, err := s.challenges.Issue(ctx, account.ID, account.Email)
		if err != nil {
			return LoginResult{}, fmt.Errorf("issue mfa challenge: %w", err)
		}
		if err := s.sender.Send(ctx, account.Email, code); err != nil {
			return LoginResult{}, fmt.Errorf("deliver mfa code: %w", err)
		}
		return LoginResult{
			MFARequired: true,
			MFAToken:    mfaToken,
			Bundle:      prm.Bundle{User: account.User},
		}, nil
	}

	token, err := GenerateToken(account.User, s.tokenTTL, false)
	if err != nil {
		return LoginResult{}, err
	}
	bundle, err := s.bundleFor(ctx, &account.User)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, Bundle: bundle}, nil
}

// VerifyMFA exchanges a pending challenge and its code for a session token.
func (s *Service) VerifyMFA(ctx context.Context, mfaToken, code string) (string, error) {
	ch, err := s.challenges.Verify(ctx, mfaToken, code)
	if err != nil {
		if errors.Is(err, mfa.ErrCodeMismatch) || errors.Is(err, mfa.ErrNotFound) || errors.Is(err, mfa.ErrTooManyTries) {
			return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return "", err
	}
	account, err := s.store.Users(ctx).Find(ctx, ch.UserID)
	if err != nil {
		return "", ErrUnauthorized
	}
	if !account.Active {
		return "", ErrAccountInactive
	}
	return GenerateToken(account.User, s.tokenTTL, false)
}

// ChangePassword verifies the current password, enforces the password
// policy and stores the new hash. The must-change flag is cleared in the
// same statement. A fresh full-scope token is returned so callers holding
// a password-change-scoped token can continue without a second login.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (string, error) {
	account, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return "", ErrUnauthorized
	}
	if err := VerifyPassword(account.PasswordHash, currentPassword); err != nil {
		return "", ErrInvalidCredentials
	}
	if err := ValidatePassword(newPassword); err != nil {
		return "", err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return "", err
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, userID, hash); err != nil {
		return "", err
	}
	return GenerateToken(account.User, s.tokenTTL, false)
}

// AuthenticateToken validates a bearer token and loads the account it
// identifies. The returned claims expose whether the token is
// password-change scoped.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (*Account, *Claims, error) {
	claims, err := ParseAndValidate(token)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	account, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if !account.Active {
		return nil, nil, ErrAccountInactive
	}
	return account, claims, nil
}

// Bundle assembles the identity snapshot for the user: the account plus
// its organization and subscription, when the role has one.
func (s *Service) Bundle(ctx context.Context, userID string) (prm.Bundle, error) {
	account, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return prm.Bundle{}, err
	}
	return s.bundleFor(ctx, &account.User)
}

// Subscription returns the plan for an organization. Non-admin callers may
// only read their own organization's plan.
func (s *Service) Subscription(ctx context.Context, callerOrgID string, callerRole prm.Role, orgID string) (*prm.SubscriptionPlan, error) {
	if callerRole != prm.RoleAInsteinAdmin && callerOrgID != orgID {
		return nil, ErrUnauthorized
	}
	return s.store.Subscriptions(ctx).FindByOrg(ctx, orgID)
}

func (s *Service) bundleFor(ctx context.Context, user *prm.User) (prm.Bundle, error) {
	bundle := prm.Bundle{User: *user}
	if user.OrganizationID == "" {
		// The platform admin has no owning organization.
		return bundle, nil
	}
	org, err := s.store.Organizations(ctx).Find(ctx, user.OrganizationID)
	if err != nil {
		return prm.Bundle{}, fmt.Errorf("load organization: %w", err)
	}
	bundle.Organization = *org
	sub, err := s.store.Subscriptions(ctx).FindByOrg(ctx, user.OrganizationID)
	if err != nil {
		return prm.Bundle{}, fmt.Errorf("load subscription: %w", err)
	}
	bundle.Subscription = *sub
	return bundle, nil
}
