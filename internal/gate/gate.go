// Package gate drives authorization attempts through identity-provider
// consent and MFA to the membership grant. Attempt state lives in a
// TTL-bound pending store, so the human-timescale waits between steps hold
// no database state.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dwongdev/defguard/internal/crypto"
	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/identity"
	"github.com/dwongdev/defguard/internal/limiter"
	"github.com/dwongdev/defguard/internal/mfa"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/dwongdev/defguard/internal/pending"
)

// DefaultSessionTTL bounds the session token issued on a finished attempt.
const DefaultSessionTTL = 24 * time.Hour

// MembershipAuthorizer is the slice of the membership service the gate drives.
type MembershipAuthorizer interface {
	Get(ctx context.Context, id int64) (*model.Membership, error)
	Authorize(ctx context.Context, id int64) error
}

// UserSource resolves the account that must pass consent and MFA.
type UserSource interface {
	DeviceOwner(ctx context.Context, deviceID int64) (*model.User, error)
}

// NetworkSource reads the MFA policy of the network being joined.
type NetworkSource interface {
	Get(ctx context.Context, id int64) (*model.Network, error)
}

// BeginInput carries a new authorization attempt: the membership to grant
// plus the five consent parameters of the requesting client.
type BeginInput struct {
	MembershipID int64
	ClientID     string
	Scope        string
	ResponseType string
	RedirectURI  string
	State        string
	IP           string
}

// BeginResult hands the client its attempt token and the identity-provider
// URL to open.
type BeginResult struct {
	Token        string
	AuthorizeURL string
}

// ConsentInput is the identity-provider callback: the state parameter echoes
// the attempt token, the code buys the user identity. ClientID and Scope are
// checked against the stored attempt when the callback asserts them.
type ConsentInput struct {
	State    string
	Code     string
	ClientID string
	Scope    string
	IP       string
}

// ConsentResult reports where the attempt went after consent: straight to
// authorized, or parked on an MFA challenge.
type ConsentResult struct {
	Token        string
	Status       pending.Status
	MFAMethod    model.MFAMethod
	SessionToken string
	ExpiresAt    time.Time
	RedirectURI  string
	State        string
}

// MFAInput answers the pending challenge of one attempt.
type MFAInput struct {
	Token     string
	Assertion string
	IP        string
}

// MFAResult is a finished attempt: session token plus the client's original
// redirect target and state echo.
type MFAResult struct {
	SessionToken string
	ExpiresAt    time.Time
	RedirectURI  string
	State        string
}

// StatusResult is the poll view of one attempt.
type StatusResult struct {
	Token     string          `json:"token"`
	Status    pending.Status  `json:"status"`
	MFAMethod model.MFAMethod `json:"mfa_method,omitempty"`
}

// Service runs the authorization gate state machine. Consent and MFA
// failures never touch the store of record; only a finished attempt calls
// Authorize, which in turn announces the peer to gateways.
type Service interface {
	// Begin validates the consent parameters, persists the attempt and
	// returns the provider redirect. Nothing is stored on validation failure.
	Begin(ctx context.Context, in BeginInput) (*BeginResult, error)
	// CompleteConsent consumes the provider callback. A callback that does
	// not match the attempt context denies the attempt without side effects.
	CompleteConsent(ctx context.Context, in ConsentInput) (*ConsentResult, error)
	// CompleteMFA checks the challenge answer. A wrong answer keeps the
	// attempt open and returns ErrMFAFailed.
	CompleteMFA(ctx context.Context, in MFAInput) (*MFAResult, error)
	// Status reports the attempt state; unknown and aged-out tokens read as
	// expired.
	Status(ctx context.Context, token string) (*StatusResult, error)
}

type ServiceImpl struct {
	memberships MembershipAuthorizer
	users       UserSource
	networks    NetworkSource
	provider    identity.Provider
	verifiers   mfa.Registry
	store       pending.Store
	lim         limiter.Limiter
	signKey     []byte
	sessionTTL  time.Duration
	log         *zap.Logger
}

// NewService constructs the gate with required collaborators.
func NewService(
	memberships MembershipAuthorizer,
	users UserSource,
	networks NetworkSource,
	provider identity.Provider,
	verifiers mfa.Registry,
	store pending.Store,
	lim limiter.Limiter,
	signKey []byte,
	sessionTTL time.Duration,
	log *zap.Logger,
) *ServiceImpl {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &ServiceImpl{
		memberships: memberships,
		users:       users,
		networks:    networks,
		provider:    provider,
		verifiers:   verifiers,
		store:       store,
		lim:         lim,
		signKey:     signKey,
		sessionTTL:  sessionTTL,
		log:         log,
	}
}

var _ Service = (*ServiceImpl)(nil)

func (s *ServiceImpl) Begin(ctx context.Context, in BeginInput) (*BeginResult, error) {
	ipHash := limiter.HashIP(in.IP)
	allowed, _, err := s.lim.Allow(ctx, limiterSubject(in.MembershipID), ipHash)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrRateLimited
	}

	if err := validateConsentParams(in); err != nil {
		return nil, err
	}

	m, err := s.memberships.Get(ctx, in.MembershipID)
	if err != nil {
		return nil, err
	}
	owner, err := s.users.DeviceOwner(ctx, m.DeviceID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: membership has no user to consent", errs.ErrValidation)
		}
		return nil, err
	}
	if !owner.IsActive {
		return nil, fmt.Errorf("%w: account disabled", errs.ErrUnauthorized)
	}

	token, err := crypto.NewToken()
	if err != nil {
		return nil, err
	}
	r := &pending.Request{
		Token:        token,
		MembershipID: m.ID,
		DeviceID:     m.DeviceID,
		NetworkID:    m.NetworkID,
		ClientID:     in.ClientID,
		Scope:        in.Scope,
		ResponseType: in.ResponseType,
		RedirectURI:  in.RedirectURI,
		State:        in.State,
		Status:       pending.StatusConsentPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("persist pending authorization: %w", err)
	}

	s.log.Info("authorization attempt started",
		zap.Int64("membership_id", m.ID),
		zap.Int64("network_id", m.NetworkID))
	return &BeginResult{Token: token, AuthorizeURL: s.provider.AuthCodeURL(token)}, nil
}

func (s *ServiceImpl) CompleteConsent(ctx context.Context, in ConsentInput) (*ConsentResult, error) {
	r, err := s.store.Get(ctx, in.State)
	if err != nil {
		// Unknown state matches no issued attempt: nothing to deny, the
		// store of record stays untouched.
		return nil, err
	}
	ipHash := limiter.HashIP(in.IP)

	if r.Status != pending.StatusConsentPending {
		return nil, s.deny(ctx, r, ipHash, "callback out of order")
	}
	if in.Code == "" {
		return nil, s.deny(ctx, r, ipHash, "callback without code")
	}
	if in.ClientID != "" && in.ClientID != r.ClientID {
		return nil, s.deny(ctx, r, ipHash, "client_id mismatch")
	}
	if in.Scope != "" && in.Scope != r.Scope {
		return nil, s.deny(ctx, r, ipHash, "scope mismatch")
	}

	id, err := s.provider.Exchange(ctx, in.Code)
	if err != nil {
		s.log.Warn("identity exchange failed", zap.Int64("membership_id", r.MembershipID), zap.Error(err))
		return nil, s.denyUnauthorized(ctx, r, ipHash, "identity exchange failed")
	}

	owner, err := s.users.DeviceOwner(ctx, r.DeviceID)
	if err != nil {
		// Lookup errors are masked: the caller learns nothing about accounts.
		return nil, s.denyUnauthorized(ctx, r, ipHash, "device owner lookup failed")
	}
	if !owner.IsActive {
		return nil, s.denyUnauthorized(ctx, r, ipHash, "account disabled")
	}
	if !strings.EqualFold(owner.Email, id.Email) {
		return nil, s.denyUnauthorized(ctx, r, ipHash, "consent given by a different account")
	}

	n, err := s.networks.Get(ctx, r.NetworkID)
	if err != nil {
		return nil, err
	}

	r.UserID = owner.ID
	if n.MFAEnabled && owner.MFAMethod != model.MFAMethodNone && owner.MFAMethod != "" {
		v, err := s.verifiers.For(owner.MFAMethod)
		if err != nil {
			return nil, err
		}
		challenge, err := v.Begin(ctx, owner)
		if err != nil {
			return nil, err
		}
		r.Status = pending.StatusMFAPending
		r.MFAMethod = string(owner.MFAMethod)
		r.MFAChallenge = challenge
		if err := s.store.Put(ctx, r); err != nil {
			return nil, fmt.Errorf("persist pending authorization: %w", err)
		}
		return &ConsentResult{
			Token:       r.Token,
			Status:      pending.StatusMFAPending,
			MFAMethod:   owner.MFAMethod,
			RedirectURI: r.RedirectURI,
			State:       r.State,
		}, nil
	}

	session, exp, err := s.finalize(ctx, r, ipHash)
	if err != nil {
		return nil, err
	}
	return &ConsentResult{
		Token:        r.Token,
		Status:       pending.StatusAuthorized,
		SessionToken: session,
		ExpiresAt:    exp,
		RedirectURI:  r.RedirectURI,
		State:        r.State,
	}, nil
}

func (s *ServiceImpl) CompleteMFA(ctx context.Context, in MFAInput) (*MFAResult, error) {
	r, err := s.store.Get(ctx, in.Token)
	if err != nil {
		return nil, err
	}
	if r.Status != pending.StatusMFAPending {
		return nil, fmt.Errorf("%w: no mfa challenge pending", errs.ErrValidation)
	}

	ipHash := limiter.HashIP(in.IP)
	allowed, _, err := s.lim.Allow(ctx, limiterSubject(r.MembershipID), ipHash)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrRateLimited
	}

	owner, err := s.users.DeviceOwner(ctx, r.DeviceID)
	if err != nil {
		return nil, s.denyUnauthorized(ctx, r, ipHash, "device owner lookup failed")
	}
	v, err := s.verifiers.For(model.MFAMethod(r.MFAMethod))
	if err != nil {
		return nil, err
	}
	if err := v.Verify(ctx, owner, r.MFAChallenge, in.Assertion); err != nil {
		if errors.Is(err, errs.ErrMFAFailed) {
			// The attempt stays open for another try until blocked.
			if blocked, _, ferr := s.lim.Failure(ctx, limiterSubject(r.MembershipID), ipHash); ferr == nil && blocked {
				return nil, errs.ErrRateLimited
			}
		}
		return nil, err
	}

	session, exp, err := s.finalize(ctx, r, ipHash)
	if err != nil {
		return nil, err
	}
	return &MFAResult{
		SessionToken: session,
		ExpiresAt:    exp,
		RedirectURI:  r.RedirectURI,
		State:        r.State,
	}, nil
}

func (s *ServiceImpl) Status(ctx context.Context, token string) (*StatusResult, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", errs.ErrValidation)
	}
	r, err := s.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, errs.ErrExpired) {
			return &StatusResult{Token: token, Status: pending.StatusExpired}, nil
		}
		return nil, err
	}
	return &StatusResult{Token: r.Token, Status: r.Status, MFAMethod: model.MFAMethod(r.MFAMethod)}, nil
}

// finalize grants the membership, hands out a session token and retires the
// attempt. The pending record is kept until Authorize succeeded, so a
// transient store failure leaves the attempt retryable.
func (s *ServiceImpl) finalize(ctx context.Context, r *pending.Request, ipHash []byte) (string, time.Time, error) {
	if err := s.memberships.Authorize(ctx, r.MembershipID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			_ = s.deny(ctx, r, ipHash, "membership vanished")
		}
		return "", time.Time{}, err
	}
	session, exp, err := s.issueSessionToken(r.UserID)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.store.Delete(ctx, r.Token); err != nil {
		s.log.Warn("pending authorization cleanup failed", zap.Int64("membership_id", r.MembershipID), zap.Error(err))
	}
	_ = s.lim.Success(ctx, limiterSubject(r.MembershipID), ipHash)

	s.log.Info("authorization granted",
		zap.Int64("membership_id", r.MembershipID),
		zap.Int64("network_id", r.NetworkID),
		zap.Int64("user_id", r.UserID))
	return session, exp, nil
}

// deny parks the attempt in its terminal denied state. The marker stays
// readable for polls until the TTL clears it; the store of record is never
// touched.
func (s *ServiceImpl) deny(ctx context.Context, r *pending.Request, ipHash []byte, reason string) error {
	r.Status = pending.StatusDenied
	if err := s.store.Put(ctx, r); err != nil {
		s.log.Warn("denied marker not persisted", zap.Int64("membership_id", r.MembershipID), zap.Error(err))
	}
	_, _, _ = s.lim.Failure(ctx, limiterSubject(r.MembershipID), ipHash)
	s.log.Info("authorization denied",
		zap.Int64("membership_id", r.MembershipID),
		zap.String("reason", reason))
	return fmt.Errorf("%w: %s", errs.ErrValidation, reason)
}

// denyUnauthorized denies like deny but reports ErrUnauthorized, for
// failures of the identity itself rather than the request shape.
func (s *ServiceImpl) denyUnauthorized(ctx context.Context, r *pending.Request, ipHash []byte, reason string) error {
	_ = s.deny(ctx, r, ipHash, reason)
	return errs.ErrUnauthorized
}

// issueSessionToken creates a signed HS256 JWT for the given subject.
func (s *ServiceImpl) issueSessionToken(userID int64) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.sessionTTL)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

func validateConsentParams(in BeginInput) error {
	params := []struct{ name, value string }{
		{"client_id", in.ClientID},
		{"scope", in.Scope},
		{"response_type", in.ResponseType},
		{"redirect_uri", in.RedirectURI},
		{"state", in.State},
	}
	for _, p := range params {
		if p.value == "" {
			return fmt.Errorf("%w: missing consent parameter %q", errs.ErrValidation, p.name)
		}
	}
	if in.ResponseType != "code" {
		return fmt.Errorf("%w: unsupported response_type %q", errs.ErrValidation, in.ResponseType)
	}
	if u, err := url.Parse(in.RedirectURI); err != nil || !u.IsAbs() {
		return fmt.Errorf("%w: redirect_uri must be absolute", errs.ErrValidation)
	}
	return nil
}

func limiterSubject(membershipID int64) string {
	return "m-" + strconv.FormatInt(membershipID, 10)
}
