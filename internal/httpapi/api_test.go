package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ainstein.io/internal/assistant"
	"ainstein.io/internal/auth"
	"ainstein.io/internal/mfa"
	"ainstein.io/prm"
)

// memStore is an in-memory auth.Store for API tests.
type memStore struct {
	accounts map[string]*auth.Account
	orgs     map[string]*prm.Organization
	subs     map[string]*prm.SubscriptionPlan
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]*auth.Account{},
		orgs:     map[string]*prm.Organization{},
		subs:     map[string]*prm.SubscriptionPlan{},
	}
}

func (m *memStore) Users(context.Context) auth.UserStore                 { return memUsers{m} }
func (m *memStore) Organizations(context.Context) auth.OrganizationStore { return memOrgs{m} }
func (m *memStore) Subscriptions(context.Context) auth.SubscriptionStore { return memSubs{m} }

type memUsers struct{ *memStore }

func (m memUsers) Find(_ context.Context, id string) (*auth.Account, error) {
	if a, ok := m.accounts[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, auth.ErrNotFound
}

func (m memUsers) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			copied := *a
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m memUsers) UpdatePassword(_ context.Context, userID, hash string) error {
	a, ok := m.accounts[userID]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordHash = hash
	a.MustChangePassword = false
	return nil
}

type memOrgs struct{ *memStore }

func (m memOrgs) Find(_ context.Context, id string) (*prm.Organization, error) {
	if o, ok := m.orgs[id]; ok {
		copied := *o
		return &copied, nil
	}
	return nil, auth.ErrNotFound
}

type memSubs struct{ *memStore }

func (m memSubs) FindByOrg(_ context.Context, orgID string) (*prm.SubscriptionPlan, error) {
	if s, ok := m.subs[orgID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, auth.ErrNotFound
}

func (m memSubs) AddUsage(_ context.Context, orgID string, resource prm.Resource, delta int64) error {
	s, ok := m.subs[orgID]
	if !ok {
		return auth.ErrNotFound
	}
	usage := s.Usage[resource]
	usage.Current += delta
	s.Usage[resource] = usage
	return nil
}

type captureSender struct{ code string }

func (c *captureSender) Send(_ context.Context, _, code string) error {
	c.code = code
	return nil
}

type cannedCompleter struct{ reply assistant.Reply }

func (c cannedCompleter) Complete(context.Context, []assistant.Message) (assistant.Reply, error) {
	return c.reply, nil
}

const testPassword = "correct-horse-7"

func seedUser(t *testing.T, store *memStore, mutate func(*auth.Account)) *auth.Account {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	account := &auth.Account{
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
	if account.OrganizationID != "" {
		store.orgs[account.OrganizationID] = &prm.Organization{
			ID: account.OrganizationID, Name: "Acme Alliances", Active: true, SubscriptionID: "sub-1",
		}
		store.subs[account.OrganizationID] = &prm.SubscriptionPlan{
			ID: "sub-1", OrganizationID: account.OrganizationID, Plan: "growth", Status: prm.StatusActive,
			Features: map[prm.Resource]prm.FeatureLimit{prm.ResourceAITokens: {Limit: 100}},
			Usage:    map[prm.Resource]prm.ResourceUsage{prm.ResourceAITokens: {Current: 0}},
		}
	}
	return account
}

type apiFixture struct {
	store  *memStore
	sender *captureSender
	srv    *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	t.Setenv("AINSTEIN_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	store := newMemStore()
	sender := &captureSender{}
	authSvc := auth.NewService(store, mfa.NewService(mfa.NewMemStore()), auth.WithCodeSender(sender))
	assistantSvc := assistant.NewService(
		cannedCompleter{reply: assistant.Reply{Content: "the answer", TokensUsed: 7}},
		memSubs{store}, nil)

	api := New(authSvc, assistantSvc, ReadyProbe{}, "test")
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &apiFixture{store: store, sender: sender, srv: srv}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func errorMessage(t *testing.T, raw []byte) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode error body %q: %v", raw, err)
	}
	return body.Error.Message
}

func login(t *testing.T, f *apiFixture, username, password string) prm.LoginResponse {
	t.Helper()
	resp, raw := f.do(t, http.MethodPost, loginPath, "", prm.LoginRequest{Username: username, Password: password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", resp.StatusCode, raw)
	}
	var out prm.LoginResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return out
}

func TestLoginReturnsTokenAndBundle(t *testing.T) {
	f := newAPIFixture(t)
	seedUser(t, f.store, nil)

	out := login(t, f, "dana@example.com", testPassword)
	if out.Token == "" || out.MFARequired || out.MustChangePassword {
		t.Fatalf("unexpected login response %+v", out)
	}
	if out.User.ID != "user-1" || out.Organization.ID != "org-1" || out.Subscription.ID != "sub-1" {
		t.Fatalf("incomplete bundle %+v", out.Bundle)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newAPIFixture(t)
	seedUser(t, f.store, nil)

	resp, raw := f.do(t, http.MethodPost, loginPath, "", prm.LoginRequest{Username: "dana@example.com", Password: "wrong-pass-1"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if msg := errorMessage(t, raw); msg != "invalid username or password" {
		t.Fatalf("message = %q", msg)
	}
}

func TestCurrentUserRequiresToken(t *testing.T) {
	f := newAPIFixture(t)
	seedUser(t, f.store, nil)

	resp, _ := f.do(t, http.MethodGet, currentUserPath, "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodGet, currentUserPath, "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d", resp.StatusCode)
	}
}

func TestCurrentUserReturnsBundle(t *testing.T) {
	f := newAPIFixture(t)
	seedUser(t, f.store, nil)
	out := login(t, f, "dana@example.com", testPassword)

	resp, raw := f.do(t, http.MethodGet, currentUserPath, out.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	var bundle prm.Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		t.Fatalf("decode bundle: %v", err)
	}
	if bundle.User.Email != "dana@example.com" || bundle.Subscription.Plan != "growth" {
		t.Fatalf("unexpected bundle %+v", bundle)
	}
}

func TestMFALoginFlow(t *testing.T) {
	f := newAPIFixture(t)
	seedUser(t, f.store, func(a *auth.Account) { a.MFAEnabled = true })

	out := login(t, f, "dana@example.com", testPassword)
	if !out.MFARequired || out.MFAToken == "" {
		t.Fatalf("expected MFA challenge, got %+v", out)
	}
	if out.Token != "" {
		t.Fatal("challenge response must not carry a session token")
	}
	if f.sender.code == "" {
		t.Fatal("no code was delivered")
	}

	// Wrong code first: rejected, challenge survives.
	wrong := "000000"
	if wrong == f.sender.code {
		wrong = "000001"
	}
	resp, _ := f.do(t, http.MethodPost, mfaVerifyPath, "", prm.MFAVerifyRequest{MFAToken: out.MFAToken, Code: wrong})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong code status = %d", resp.StatusCode)
	}

	resp, raw := f.do(t, http.MethodPost, mfaVerifyPath, "", prm.MFAVerifyRequest{MFAToken: out.MFAToken, Code: f.sender.code})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d: %s", resp.StatusCode, raw)
	}
	var verified prm.MFAVerifyResponse
	if err := json.Unmarshal(raw, &verified); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}

	resp, _ = f.do(t, http.MethodGet, currentUserPath, verified.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current user with minted token status = %d", resp.StatusCode)
	}
}

func TestPendingTokenOpensOnlyPasswordDoor(t *testing.T) {
	f := newAPIFixture(t)
	seedUser(t, f.store, func(a *auth.Account) { a.MustChangePassword = true })

	out := login(t, f, "dana@example.com", testPassword)
	if !out.MustChangePassword || out.Token == "" {
		t.Fatalf("expected pending login, got %+v", out)
	}

	resp, raw := f.do(t, http.MethodGet, currentUserPath, out.Token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("pending token on current user: status = %d", resp.StatusCode)
	}
	if msg := errorMessage(t, raw); msg != "password change required" {
		t.Fatalf("message = %q", msg)
	}

	resp, raw = f.do(t, http.MethodPost, changePasswordPath, out.Token, prm.ChangePasswordRequest{
		CurrentPassword: testPassword,
		NewPassword:     "brand-new-pass-9",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password status = %d: %s", resp.StatusCode, raw)
	}
	var rotated prm.ChangePasswordResponse
	if err := json.Unmarshal(raw, &rotated); err != nil {
		t.Fatalf("decode rotation response: %v", err)
	}
	if rotated.Token == "" {
		t.Fatal("expected a replacement token")
	}

	// The replacement token is full scope.
	resp, _ = f.do(t, http.MethodGet, currentUserPath, rotated.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current user with replacement token status = %d", resp.StatusCode)
	}

	// A fresh login uses the new password and is no longer pending.
	out = login(t, f, "dana@example.com", "brand-new-pass-9")
	if out.MustChangePassword {
		t.Fatal("must-change flag survived the rotation")
	}
}

func TestChangePasswordEnforcesPolicy(t *testing.T) {
	f := newAPIFixture(t)
	seedUser(t, f.store, nil)
	out := login(t, f, "dana@example.com", testPassword)

	resp, raw := f.do(t, http.MethodPost, changePasswordPath, out.Token, prm.ChangePasswordRequest{
		CurrentPassword: testPassword,
		NewPassword:     "short1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("weak password status = %d: %s", resp.StatusCode, raw)
	}
}

func TestSubscriptionScopedToOwnOrganization(t *testing.T) {
	f := newAPIFixture(t)
	seedUser(t, f.store, nil)
	f.store.subs["org-2"] = &prm.SubscriptionPlan{ID: "sub-2", OrganizationID: "org-2", Plan: "trial", Status: prm.StatusTrial}
	out := login(t, f, "dana@example.com", testPassword)

	resp, raw := f.do(t, http.MethodGet, "/v1/organizations/org-1/subscription", out.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("own org status = %d: %s", resp.StatusCode, raw)
	}
	var plan prm.SubscriptionPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if plan.ID != "sub-1" {
		t.Fatalf("plan = %+v", plan)
	}

	resp, _ = f.do(t, http.MethodGet, "/v1/organizations/org-2/subscription", out.Token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign org status = %d", resp.StatusCode)
	}
}

func TestAdminReadsAnySubscription(t *testing.T) {
	f := newAPIFixture(t)
	seedUser(t, f.store, nil)
	seedUser(t, f.store, func(a *auth.Account) {
		a.ID = "admin-1"
		a.Email = "root@ainstein.io"
		a.Role = prm.RoleAInsteinAdmin
		a.OrganizationID = ""
	})
	out := login(t, f, "root@ainstein.io", testPassword)

	resp, _ := f.do(t, http.MethodGet, "/v1/organizations/org-1/subscription", out.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin cross-org status = %d", resp.StatusCode)
	}
}

func TestAssistantChatMetersTokens(t *testing.T) {
	f := newAPIFixture(t)
	seedUser(t, f.store, nil)
	out := login(t, f, "dana@example.com", testPassword)

	resp, raw := f.do(t, http.MethodPost, assistantChatPath, out.Token, chatRequest{
		Messages: []assistant.Message{{Role: "user", Content: "hello"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d: %s", resp.StatusCode, raw)
	}
	var reply chatResponse
	if err := json.Unmarshal(raw, &reply); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if reply.Content != "the answer" || reply.TokensUsed != 7 {
		t.Fatalf("reply = %+v", reply)
	}
	if got := f.store.subs["org-1"].Usage[prm.ResourceAITokens].Current; got != 7 {
		t.Fatalf("metered usage = %d, want 7", got)
	}
}

func TestAssistantChatStopsAtTokenLimit(t *testing.T) {
	f := newAPIFixture(t)
	seedUser(t, f.store, nil)
	f.store.subs["org-1"].Usage[prm.ResourceAITokens] = prm.ResourceUsage{Current: 100}
	out := login(t, f, "dana@example.com", testPassword)

	resp, raw := f.do(t, http.MethodPost, assistantChatPath, out.Token, chatRequest{
		Messages: []assistant.Message{{Role: "user", Content: "hello"}},
	})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	if msg := errorMessage(t, raw); msg != "ai token limit reached" {
		t.Fatalf("message = %q", msg)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	if rid := resp.Header.Get("X-Request-ID"); rid == "" {
		t.Fatal("missing X-Request-ID header")
	}
}

func TestMethodNotAllowedOnLogin(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodGet, loginPath, "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Fatalf("Allow = %q", allow)
	}
}
