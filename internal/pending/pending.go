// Package pending stores in-flight authorization attempts between the
// consent redirect and its completion. Attempts carry a TTL so
// human-timescale waits never hold database state.
package pending

import (
	"context"
	"time"
)

// Status is the lifecycle position of one attempt.
type Status string

const (
	StatusRequested      Status = "requested"
	StatusConsentPending Status = "consent_pending"
	StatusMFAPending     Status = "mfa_pending"
	StatusAuthorized     Status = "authorized"
	StatusDenied         Status = "denied"
	// StatusExpired is never stored: it is what a poll reports for a token
	// the store no longer holds.
	StatusExpired Status = "expired"
)

// Request is one in-flight authorization attempt. Token identifies it and
// doubles as the OAuth state parameter of the identity redirect.
type Request struct {
	Token        string    `json:"token"`
	MembershipID int64     `json:"membership_id"`
	DeviceID     int64     `json:"device_id"`
	NetworkID    int64     `json:"network_id"`
	UserID       int64     `json:"user_id,omitempty"` // filled after identity exchange
	ClientID     string    `json:"client_id"`
	Scope        string    `json:"scope"`
	ResponseType string    `json:"response_type"`
	RedirectURI  string    `json:"redirect_uri"`
	State        string    `json:"state"`
	Status       Status    `json:"status"`
	MFAMethod    string    `json:"mfa_method,omitempty"`
	MFAChallenge string    `json:"mfa_challenge,omitempty"` // server-side verifier state (e-mailed code, WebAuthn challenge)
	CreatedAt    time.Time `json:"created_at"`
}

// Store keeps pending requests for their TTL. Reading a token that was
// never stored or already aged out yields ErrExpired.
type Store interface {
	Put(ctx context.Context, r *Request) error
	Get(ctx context.Context, token string) (*Request, error)
	Delete(ctx context.Context, token string) error
}
