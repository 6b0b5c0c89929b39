package mfa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
)

// WebAuthn delegates assertion checks to an external verifier service, the
// component that holds the credential store and origin policy. Begin fetches
// a challenge to relay to the client; Verify posts the client's assertion
// back together with that challenge.
type WebAuthn struct {
	baseURL string
	client  *http.Client
}

var _ Verifier = (*WebAuthn)(nil)

func NewWebAuthn(baseURL string, client *http.Client) *WebAuthn {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebAuthn{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (w *WebAuthn) Begin(ctx context.Context, u *model.User) (string, error) {
	var out struct {
		Challenge string `json:"challenge"`
	}
	err := w.post(ctx, "/assertion/begin", map[string]string{"username": u.Username}, &out)
	if err != nil {
		return "", err
	}
	return out.Challenge, nil
}

func (w *WebAuthn) Verify(ctx context.Context, u *model.User, challenge, assertion string) error {
	var out struct {
		Verified bool `json:"verified"`
	}
	err := w.post(ctx, "/assertion/finish", map[string]string{
		"username":  u.Username,
		"challenge": challenge,
		"assertion": assertion,
	}, &out)
	if err != nil {
		return err
	}
	if !out.Verified {
		return fmt.Errorf("%w: webauthn assertion rejected", errs.ErrMFAFailed)
	}
	return nil
}

func (w *WebAuthn) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode verifier request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build verifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webauthn verifier: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webauthn verifier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode verifier response: %w", err)
	}
	return nil
}
