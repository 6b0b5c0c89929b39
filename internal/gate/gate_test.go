package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/identity"
	"github.com/dwongdev/defguard/internal/mfa"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/dwongdev/defguard/internal/pending"
)

type fakeMemberships struct {
	m          map[int64]*model.Membership
	authorized []int64
	authErr    error
}

func (f *fakeMemberships) Get(_ context.Context, id int64) (*model.Membership, error) {
	if m, ok := f.m[id]; ok {
		return m, nil
	}
	return nil, errs.ErrNotFound
}

func (f *fakeMemberships) Authorize(_ context.Context, id int64) error {
	if f.authErr != nil {
		return f.authErr
	}
	f.authorized = append(f.authorized, id)
	return nil
}

type fakeUsers struct {
	byDevice map[int64]*model.User
}

func (f *fakeUsers) DeviceOwner(_ context.Context, deviceID int64) (*model.User, error) {
	if u, ok := f.byDevice[deviceID]; ok {
		return u, nil
	}
	return nil, errs.ErrNotFound
}

type fakeNetworks struct {
	byID map[int64]*model.Network
}

func (f *fakeNetworks) Get(_ context.Context, id int64) (*model.Network, error) {
	if n, ok := f.byID[id]; ok {
		return n, nil
	}
	return nil, errs.ErrNotFound
}

type fakeProvider struct {
	urls      int
	exchanged []string
	identity  *identity.Identity
	err       error
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	f.urls++
	return "https://idp.example.com/authorize?state=" + state
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*identity.Identity, error) {
	f.exchanged = append(f.exchanged, code)
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type fakeVerifier struct {
	challenge string
	beginErr  error
	accept    string
}

func (f *fakeVerifier) Begin(context.Context, *model.User) (string, error) {
	return f.challenge, f.beginErr
}

func (f *fakeVerifier) Verify(_ context.Context, _ *model.User, _, response string) error {
	if response != f.accept {
		return fmt.Errorf("%w: bad assertion", errs.ErrMFAFailed)
	}
	return nil
}

type fakeLimiter struct {
	deny      bool
	blockNext bool
	failures  int
	successes int
}

func (f *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return !f.deny, 0, nil
}

func (f *fakeLimiter) Success(context.Context, string, []byte) error {
	f.successes++
	return nil
}

func (f *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	f.failures++
	return f.blockNext, 0, nil
}

var (
	_ MembershipAuthorizer = (*fakeMemberships)(nil)
	_ UserSource           = (*fakeUsers)(nil)
	_ NetworkSource        = (*fakeNetworks)(nil)
	_ identity.Provider    = (*fakeProvider)(nil)
	_ mfa.Verifier         = (*fakeVerifier)(nil)
)

type fixture struct {
	memberships *fakeMemberships
	users       *fakeUsers
	networks    *fakeNetworks
	provider    *fakeProvider
	verifier    *fakeVerifier
	store       *pending.Memory
	lim         *fakeLimiter
	svc         *ServiceImpl
}

const signKey = "gate-test-secret"

func newFixture() *fixture {
	f := &fixture{
		memberships: &fakeMemberships{m: map[int64]*model.Membership{
			10: {ID: 10, NetworkID: 1, DeviceID: 5},
		}},
		users: &fakeUsers{byDevice: map[int64]*model.User{
			5: {ID: 3, Username: "alice", Email: "alice@example.com", MFAMethod: model.MFAMethodNone, IsActive: true},
		}},
		networks: &fakeNetworks{byID: map[int64]*model.Network{
			1: {ID: 1, Name: "office"},
		}},
		provider: &fakeProvider{identity: &identity.Identity{Subject: "idp-1", Email: "alice@example.com"}},
		verifier: &fakeVerifier{challenge: "chal-1", accept: "good-code"},
		store:    pending.NewMemory(time.Hour),
		lim:      &fakeLimiter{},
	}
	f.svc = NewService(
		f.memberships, f.users, f.networks, f.provider,
		mfa.Registry{model.MFAMethodTOTP: f.verifier, model.MFAMethodEmail: f.verifier},
		f.store, f.lim, []byte(signKey), time.Hour, zap.NewNop(),
	)
	return f
}

func (f *fixture) requireMFA() {
	f.users.byDevice[5].MFAMethod = model.MFAMethodTOTP
	f.networks.byID[1].MFAEnabled = true
}

func beginInput(membershipID int64) BeginInput {
	return BeginInput{
		MembershipID: membershipID,
		ClientID:     "desktop",
		Scope:        "openid email",
		ResponseType: "code",
		RedirectURI:  "http://127.0.0.1:53412/callback",
		State:        "client-state",
		IP:           "198.51.100.7",
	}
}

func mustBegin(t *testing.T, f *fixture) *BeginResult {
	t.Helper()
	res, err := f.svc.Begin(context.Background(), beginInput(10))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return res
}

func parseSession(t *testing.T, token string) string {
	t.Helper()
	tok, err := jwt.Parse(token,
		func(*jwt.Token) (any, error) { return []byte(signKey), nil },
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		t.Fatalf("session token invalid: %v", err)
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		t.Fatalf("session subject: %v", err)
	}
	return sub
}

func TestBegin_ValidatesConsentParams(t *testing.T) {
	t.Parallel()

	mutations := map[string]func(*BeginInput){
		"client_id":     func(in *BeginInput) { in.ClientID = "" },
		"scope":         func(in *BeginInput) { in.Scope = "" },
		"response_type": func(in *BeginInput) { in.ResponseType = "" },
		"redirect_uri":  func(in *BeginInput) { in.RedirectURI = "" },
		"state":         func(in *BeginInput) { in.State = "" },
		"implicit flow": func(in *BeginInput) { in.ResponseType = "token" },
		"relative uri":  func(in *BeginInput) { in.RedirectURI = "/callback" },
	}
	for name, mutate := range mutations {
		f := newFixture()
		in := beginInput(10)
		mutate(&in)
		if _, err := f.svc.Begin(context.Background(), in); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
		if f.provider.urls != 0 {
			t.Fatalf("%s: provider contacted despite invalid params", name)
		}
	}
}

func TestBegin_StartsConsentPendingAttempt(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res := mustBegin(t, f)

	if len(res.Token) != 64 {
		t.Fatalf("unexpected token %q", res.Token)
	}
	if !strings.Contains(res.AuthorizeURL, "state="+res.Token) {
		t.Fatalf("authorize URL must carry the token as state: %q", res.AuthorizeURL)
	}
	r, err := f.store.Get(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("pending record missing: %v", err)
	}
	if r.Status != pending.StatusConsentPending || r.MembershipID != 10 || r.ClientID != "desktop" {
		t.Fatalf("unexpected pending record: %+v", r)
	}
}

func TestBegin_UnknownMembership(t *testing.T) {
	t.Parallel()

	f := newFixture()
	in := beginInput(999)
	if _, err := f.svc.Begin(context.Background(), in); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBegin_OwnerlessDeviceRejected(t *testing.T) {
	t.Parallel()

	f := newFixture()
	delete(f.users.byDevice, 5)
	if _, err := f.svc.Begin(context.Background(), beginInput(10)); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("network devices have nobody to consent, got %v", err)
	}
}

func TestBegin_DisabledAccount(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.users.byDevice[5].IsActive = false
	if _, err := f.svc.Begin(context.Background(), beginInput(10)); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestBegin_RateLimited(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.lim.deny = true
	if _, err := f.svc.Begin(context.Background(), beginInput(10)); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestCompleteConsent_FinalizesWithoutMFA(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res := mustBegin(t, f)

	out, err := f.svc.CompleteConsent(context.Background(), ConsentInput{State: res.Token, Code: "auth-code", IP: "198.51.100.7"})
	if err != nil {
		t.Fatalf("CompleteConsent: %v", err)
	}
	if out.Status != pending.StatusAuthorized {
		t.Fatalf("expected authorized, got %s", out.Status)
	}
	if sub := parseSession(t, out.SessionToken); sub != "3" {
		t.Fatalf("session bound to wrong user: %s", sub)
	}
	if out.RedirectURI != "http://127.0.0.1:53412/callback" || out.State != "client-state" {
		t.Fatalf("client redirect context lost: %+v", out)
	}
	if len(f.memberships.authorized) != 1 || f.memberships.authorized[0] != 10 {
		t.Fatalf("membership not granted: %v", f.memberships.authorized)
	}
	if f.lim.successes != 1 {
		t.Fatalf("limiter not reset on success")
	}

	// The attempt is consumed: a poll now reads expired.
	st, err := f.svc.Status(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != pending.StatusExpired {
		t.Fatalf("finished attempt should be gone, got %s", st.Status)
	}
}

func TestCompleteConsent_EntersMFAPending(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.requireMFA()
	res := mustBegin(t, f)

	out, err := f.svc.CompleteConsent(context.Background(), ConsentInput{State: res.Token, Code: "auth-code"})
	if err != nil {
		t.Fatalf("CompleteConsent: %v", err)
	}
	if out.Status != pending.StatusMFAPending || out.MFAMethod != model.MFAMethodTOTP {
		t.Fatalf("expected mfa_pending/totp, got %+v", out)
	}
	if out.SessionToken != "" {
		t.Fatalf("no session before the second factor")
	}
	if len(f.memberships.authorized) != 0 {
		t.Fatalf("membership granted before MFA")
	}
	r, err := f.store.Get(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("pending record missing: %v", err)
	}
	if r.MFAChallenge != "chal-1" || r.UserID != 3 {
		t.Fatalf("challenge state not persisted: %+v", r)
	}
}

func TestCompleteConsent_UnknownStateLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture()
	mustBegin(t, f)

	_, err := f.svc.CompleteConsent(context.Background(), ConsentInput{State: "forged-state", Code: "auth-code"})
	if !errors.Is(err, errs.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if len(f.memberships.authorized) != 0 {
		t.Fatalf("store mutated on forged state")
	}
	if len(f.provider.exchanged) != 0 {
		t.Fatalf("code exchanged despite unknown state")
	}
}

func TestCompleteConsent_ContextMismatchDenied(t *testing.T) {
	t.Parallel()

	cases := map[string]ConsentInput{
		"missing code":       {Code: ""},
		"client_id mismatch": {Code: "auth-code", ClientID: "other-app"},
		"scope mismatch":     {Code: "auth-code", Scope: "admin"},
	}
	for name, in := range cases {
		f := newFixture()
		res := mustBegin(t, f)
		in.State = res.Token

		if _, err := f.svc.CompleteConsent(context.Background(), in); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
		if len(f.memberships.authorized) != 0 {
			t.Fatalf("%s: store mutated on denied consent", name)
		}
		st, err := f.svc.Status(context.Background(), res.Token)
		if err != nil || st.Status != pending.StatusDenied {
			t.Fatalf("%s: attempt not denied: %+v %v", name, st, err)
		}
	}
}

func TestCompleteConsent_ForeignIdentityDenied(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.provider.identity = &identity.Identity{Subject: "idp-2", Email: "mallory@example.com"}
	res := mustBegin(t, f)

	_, err := f.svc.CompleteConsent(context.Background(), ConsentInput{State: res.Token, Code: "auth-code"})
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(f.memberships.authorized) != 0 {
		t.Fatalf("store mutated on foreign identity")
	}
	st, _ := f.svc.Status(context.Background(), res.Token)
	if st.Status != pending.StatusDenied {
		t.Fatalf("attempt not denied: %+v", st)
	}
	if f.lim.failures == 0 {
		t.Fatalf("denial must count against the limiter")
	}
}

func TestCompleteConsent_ReplayDenied(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.requireMFA()
	res := mustBegin(t, f)

	if _, err := f.svc.CompleteConsent(context.Background(), ConsentInput{State: res.Token, Code: "auth-code"}); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	// Replaying the callback against the mfa_pending attempt denies it.
	if _, err := f.svc.CompleteConsent(context.Background(), ConsentInput{State: res.Token, Code: "auth-code"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected ErrValidation on replay, got %v", err)
	}
}

func completeToMFA(t *testing.T, f *fixture) string {
	t.Helper()
	res := mustBegin(t, f)
	out, err := f.svc.CompleteConsent(context.Background(), ConsentInput{State: res.Token, Code: "auth-code"})
	if err != nil {
		t.Fatalf("CompleteConsent: %v", err)
	}
	if out.Status != pending.StatusMFAPending {
		t.Fatalf("fixture must land on mfa_pending, got %s", out.Status)
	}
	return res.Token
}

func TestCompleteMFA_Finalizes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.requireMFA()
	token := completeToMFA(t, f)

	out, err := f.svc.CompleteMFA(context.Background(), MFAInput{Token: token, Assertion: "good-code", IP: "198.51.100.7"})
	if err != nil {
		t.Fatalf("CompleteMFA: %v", err)
	}
	if sub := parseSession(t, out.SessionToken); sub != "3" {
		t.Fatalf("session bound to wrong user: %s", sub)
	}
	if len(f.memberships.authorized) != 1 {
		t.Fatalf("membership not granted after MFA")
	}
	st, _ := f.svc.Status(context.Background(), token)
	if st.Status != pending.StatusExpired {
		t.Fatalf("finished attempt should be gone, got %s", st.Status)
	}
}

func TestCompleteMFA_WrongAnswerKeepsAttemptOpen(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.requireMFA()
	token := completeToMFA(t, f)

	_, err := f.svc.CompleteMFA(context.Background(), MFAInput{Token: token, Assertion: "wrong"})
	if !errors.Is(err, errs.ErrMFAFailed) {
		t.Fatalf("expected ErrMFAFailed, got %v", err)
	}
	if len(f.memberships.authorized) != 0 {
		t.Fatalf("store mutated on failed MFA")
	}
	if f.lim.failures != 1 {
		t.Fatalf("failure not counted")
	}

	// The attempt survives for another try.
	out, err := f.svc.CompleteMFA(context.Background(), MFAInput{Token: token, Assertion: "good-code"})
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	parseSession(t, out.SessionToken)
}

func TestCompleteMFA_LockoutAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.requireMFA()
	token := completeToMFA(t, f)

	f.lim.blockNext = true
	if _, err := f.svc.CompleteMFA(context.Background(), MFAInput{Token: token, Assertion: "wrong"}); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestCompleteMFA_WithoutPendingChallenge(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res := mustBegin(t, f)

	// Still consent_pending: answering a challenge that was never issued.
	_, err := f.svc.CompleteMFA(context.Background(), MFAInput{Token: res.Token, Assertion: "good-code"})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestStatus_UnknownTokenReadsExpired(t *testing.T) {
	t.Parallel()

	f := newFixture()
	st, err := f.svc.Status(context.Background(), "never-issued")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != pending.StatusExpired {
		t.Fatalf("expected expired, got %s", st.Status)
	}
}

func TestStatus_ReportsPendingMethod(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.requireMFA()
	token := completeToMFA(t, f)

	st, err := f.svc.Status(context.Background(), token)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != pending.StatusMFAPending || st.MFAMethod != model.MFAMethodTOTP {
		t.Fatalf("unexpected status: %+v", st)
	}
}
