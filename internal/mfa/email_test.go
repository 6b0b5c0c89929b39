package mfa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
)

type fakeSender struct {
	to, subject, body string
	err               error
}

func (f *fakeSender) Send(to, subject, body string) error {
	f.to, f.subject, f.body = to, subject, body
	return f.err
}

var _ Sender = (*fakeSender)(nil)

func TestEmail_BeginMailsSixDigitCode(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	code, err := NewEmail(sender).Begin(context.Background(), &model.User{Email: "dev@example.com"})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected six digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in code %q", code)
		}
	}
	if sender.to != "dev@example.com" {
		t.Fatalf("mailed wrong recipient: %q", sender.to)
	}
	if !strings.Contains(sender.body, code) {
		t.Fatalf("mail body must carry the code: %q", sender.body)
	}
}

func TestEmail_BeginPropagatesSendFailure(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{err: errors.New("relay down")}
	if _, err := NewEmail(sender).Begin(context.Background(), &model.User{Email: "dev@example.com"}); err == nil {
		t.Fatalf("send failure must propagate")
	}
}

func TestEmail_Verify(t *testing.T) {
	t.Parallel()

	v := NewEmail(&fakeSender{})
	if err := v.Verify(context.Background(), nil, "123456", "123456"); err != nil {
		t.Fatalf("matching code rejected: %v", err)
	}
	if err := v.Verify(context.Background(), nil, "123456", "654321"); !errors.Is(err, errs.ErrMFAFailed) {
		t.Fatalf("expected ErrMFAFailed, got %v", err)
	}
	// A pending request without a stored code must never verify.
	if err := v.Verify(context.Background(), nil, "", ""); !errors.Is(err, errs.ErrMFAFailed) {
		t.Fatalf("expected ErrMFAFailed for empty challenge, got %v", err)
	}
}
