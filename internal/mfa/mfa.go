// Package mfa implements the second factors accepted by the authorization
// gate: time-based one-time codes, e-mailed codes and delegated WebAuthn
// assertions. MFAMethodNone has no Verifier; the gate finalizes those
// attempts without a second factor.
package mfa

import (
	"context"
	"fmt"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
)

// Verifier issues and checks challenges for one MFA method.
type Verifier interface {
	// Begin starts a challenge for the user and returns server-side state to
	// keep alongside the pending authorization, empty for stateless methods.
	Begin(ctx context.Context, u *model.User) (challenge string, err error)

	// Verify checks the user's response against the challenge. A wrong or
	// rejected response is errs.ErrMFAFailed.
	Verify(ctx context.Context, u *model.User, challenge, response string) error
}

// Registry maps MFA methods to their verifiers.
type Registry map[model.MFAMethod]Verifier

// For picks the verifier for a method. MFAMethodNone and unknown methods
// have none.
func (r Registry) For(m model.MFAMethod) (Verifier, error) {
	v, ok := r[m]
	if !ok {
		return nil, fmt.Errorf("%w: no verifier for mfa method %q", errs.ErrValidation, m)
	}
	return v, nil
}
