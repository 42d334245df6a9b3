package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ainstein.io/internal/mfa"
	"ainstein.io/prm"
)

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	accounts      map[string]*Account
	orgs          map[string]*prm.Organization
	subscriptions map[string]*prm.SubscriptionPlan
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:      map[string]*Account{},
		orgs:          map[string]*prm.Organization{},
		subscriptions: map[string]*prm.SubscriptionPlan{},
	}
}

func (f *fakeStore) Users(context.Context) UserStore                 { return fakeUsers{f} }
func (f *fakeStore) Organizations(context.Context) OrganizationStore { return fakeOrgs{f} }
func (f *fakeStore) Subscriptions(context.Context) SubscriptionStore { return fakeSubs{f} }

type fakeUsers struct{ *fakeStore }

func (f fakeUsers) Find(_ context.Context, id string) (*Account, error) {
	if a, ok := f.accounts[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (f fakeUsers) FindByEmail(_ context.Context, email string) (*Account, error) {
	for _, a := range f.accounts {
		if strings.EqualFold(a.Email, email) {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f fakeUsers) UpdatePassword(_ context.Context, userID, hash string) error {
	a, ok := f.accounts[userID]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	a.MustChangePassword = false
	return nil
}

type fakeOrgs struct{ *fakeStore }

func (f fakeOrgs) Find(_ context.Context, id string) (*prm.Organization, error) {
	if o, ok := f.orgs[id]; ok {
		copied := *o
		return &copied, nil
	}
	return nil, ErrNotFound
}

type fakeSubs struct{ *fakeStore }

func (f fakeSubs) FindByOrg(_ context.Context, orgID string) (*prm.SubscriptionPlan, error) {
	if s, ok := f.subscriptions[orgID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (f fakeSubs) AddUsage(_ context.Context, orgID string, resource prm.Resource, delta int64) error {
	s, ok := f.subscriptions[orgID]
	if !ok {
		return ErrNotFound
	}
	usage := s.Usage[resource]
	usage.Current += delta
	s.Usage[resource] = usage
	return nil
}

type capturedSender struct {
	email string
	code  string
}

func (c *capturedSender) Send(_ context.Context, email, code string) error {
	c.email = email
	c.code = code
	return nil
}

func seedAccount(t *testing.T, store *fakeStore, mutate func(*Account)) *Account {
	t.Helper()
	hash, err := HashPassword("correct-horse-7")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	account := &Account{
		User: prm.User{
			ID:             "user-1",
			DisplayName:    "Dana Partner",
			Email:          "dana@example.com",
			Role:           prm.RoleOrganization,
			OrganizationID: "org-1",
			Active:         true,
		},
		PasswordHash: hash,
	}
	if mutate != nil {
		mutate(account)
	}
	store.accounts[account.ID] = account
	store.orgs[account.OrganizationID] = &prm.Organization{
		ID: "org-1", Name: "Acme Alliances", Active: true, SubscriptionID: "sub-1",
	}
	store.subscriptions["org-1"] = &prm.SubscriptionPlan{
		ID: "sub-1", OrganizationID: "org-1", Plan: "growth", Status: prm.StatusActive,
		Features: map[prm.Resource]prm.FeatureLimit{prm.ResourceAITokens: {Limit: 1000}},
		Usage:    map[prm.Resource]prm.ResourceUsage{prm.ResourceAITokens: {Current: 0}},
	}
	return account
}

func newTestService(t *testing.T, store *fakeStore, opts ...ServiceOption) *Service {
	t.Helper()
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
	return NewService(store, mfa.NewService(mfa.NewMemStore()), opts...)
}

func TestLoginMintsTokenAndBundle(t *testing.T) {
	store := newFakeStore()
	seedAccount(t, store, nil)
	svc := newTestService(t, store)

	result, err := svc.Login(context.Background(), "Dana@Example.com", "correct-horse-7")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.MFARequired || result.MustChangePassword {
		t.Fatalf("expected plain login, got %+v", result)
	}
	if result.Token == "" {
		t.Fatal("expected a session token")
	}
	if result.Bundle.Organization.ID != "org-1" || result.Bundle.Subscription.ID != "sub-1" {
		t.Fatalf("incomplete bundle: %+v", result.Bundle)
	}

	claims, err := ParseAndValidate(result.Token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != prm.RoleOrganization || claims.Pending {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLoginFailuresCollapse(t *testing.T) {
	store := newFakeStore()
	seedAccount(t, store, nil)
	seedAccount(t, store, func(a *Account) {
		a.ID = "user-2"
		a.Email = "off@example.com"
		a.Active = false
	})
	svc := newTestService(t, store)

	cases := []struct{ user, pass string }{
		{"dana@example.com", "wrong"},
		{"nobody@example.com", "correct-horse-7"},
		{"off@example.com", "correct-horse-7"},
		{"", ""},
	}
	for _, tc := range cases {
		if _, err := svc.Login(context.Background(), tc.user, tc.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("login(%q): expected ErrInvalidCredentials, got %v", tc.user, err)
		}
	}
}

func TestLoginMustChangePassword(t *testing.T) {
	store := newFakeStore()
	seedAccount(t, store, func(a *Account) { a.MustChangePassword = true })
	svc := newTestService(t, store)

	result, err := svc.Login(context.Background(), "dana@example.com", "correct-horse-7")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !result.MustChangePassword || result.Token == "" {
		t.Fatalf("expected pending token, got %+v", result)
	}
	claims, err := ParseAndValidate(result.Token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if !claims.Pending {
		t.Fatal("pending token must carry the pending claim")
	}
	// The bundle is returned so the client can commit it after the change.
	if result.Bundle.User.ID != "user-1" {
		t.Fatalf("missing bundle: %+v", result.Bundle)
	}
}

func TestLoginWithMFAIssuesChallenge(t *testing.T) {
	store := newFakeStore()
	seedAccount(t, store, func(a *Account) { a.MFAEnabled = true })
	sender := &capturedSender{}
	svc := newTestService(t, store, WithCodeSender(sender))

	result, err := svc.Login(context.Background(), "dana@example.com", "correct-horse-7")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !result.MFARequired || result.MFAToken == "" {
		t.Fatalf("expected MFA challenge, got %+v", result)
	}
	if result.Token != "" {
		t.Fatal("no session token may be minted before verification")
	}
	if sender.email != "dana@example.com" || len(sender.code) != 6 {
		t.Fatalf("code not delivered: %+v", sender)
	}

	// Wrong code is rejected and mints nothing.
	if _, err := svc.VerifyMFA(context.Background(), result.MFAToken, "000000"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	token, err := svc.VerifyMFA(context.Background(), result.MFAToken, sender.code)
	if err != nil {
		t.Fatalf("VerifyMFA: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-1" || claims.Pending {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestChangePassword(t *testing.T) {
	store := newFakeStore()
	seedAccount(t, store, func(a *Account) { a.MustChangePassword = true })
	svc := newTestService(t, store)

	if _, err := svc.ChangePassword(context.Background(), "user-1", "wrong", "brand-new-pass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.ChangePassword(context.Background(), "user-1", "correct-horse-7", "short1"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	token, err := svc.ChangePassword(context.Background(), "user-1", "correct-horse-7", "brand-new-pass1")
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	account := store.accounts["user-1"]
	if account.MustChangePassword {
		t.Fatal("must-change flag not cleared")
	}
	if err := VerifyPassword(account.PasswordHash, "brand-new-pass1"); err != nil {
		t.Fatalf("new password not stored: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("returned token invalid: %v", err)
	}
	if claims.Pending {
		t.Fatal("reissued token must be full scope")
	}
}

func TestAuthenticateToken(t *testing.T) {
	store := newFakeStore()
	seedAccount(t, store, nil)
	svc := newTestService(t, store)

	result, err := svc.Login(context.Background(), "dana@example.com", "correct-horse-7")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	account, claims, err := svc.AuthenticateToken(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("AuthenticateToken: %v", err)
	}
	if account.ID != "user-1" || claims.Role != prm.RoleOrganization {
		t.Fatalf("unexpected principal: %+v %+v", account.User, claims)
	}

	if _, _, err := svc.AuthenticateToken(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	store.accounts["user-1"].Active = false
	if _, _, err := svc.AuthenticateToken(context.Background(), result.Token); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestSubscriptionScoping(t *testing.T) {
	store := newFakeStore()
	seedAccount(t, store, nil)
	svc := newTestService(t, store)
	ctx := context.Background()

	if _, err := svc.Subscription(ctx, "org-2", prm.RoleOrganization, "org-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("cross-org read must be rejected, got %v", err)
	}
	if _, err := svc.Subscription(ctx, "org-1", prm.RoleOrganization, "org-1"); err != nil {
		t.Fatalf("own-org read: %v", err)
	}
	if _, err := svc.Subscription(ctx, "", prm.RoleAInsteinAdmin, "org-1"); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}

func TestBundleForAdminWithoutOrganization(t *testing.T) {
	store := newFakeStore()
	hash, _ := HashPassword("correct-horse-7")
	store.accounts["admin-1"] = &Account{
		User: prm.User{
			ID: "admin-1", Email: "root@ainstein.io", Role: prm.RoleAInsteinAdmin, Active: true,
		},
		PasswordHash: hash,
	}
	svc := newTestService(t, store)

	bundle, err := svc.Bundle(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if bundle.Organization.ID != "" || bundle.Subscription.ID != "" {
		t.Fatalf("admin bundle must omit org and subscription: %+v", bundle)
	}
}
