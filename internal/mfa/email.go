package mfa

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"net/smtp"
	"strings"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
)

// Sender delivers a one-time code to a mailbox.
type Sender interface {
	Send(to, subject, body string) error
}

// Email mails a six-digit code on Begin and compares it on Verify. The code
// lives on the pending authorization and expires with it.
type Email struct {
	sender Sender
}

var _ Verifier = (*Email)(nil)

func NewEmail(sender Sender) *Email {
	return &Email{sender: sender}
}

func (e *Email) Begin(_ context.Context, u *model.User) (string, error) {
	code, err := newCode()
	if err != nil {
		return "", err
	}
	body := fmt.Sprintf("Your verification code is: %s\n\nEnter it to finish authorizing your device.", code)
	if err := e.sender.Send(u.Email, "Device authorization code", body); err != nil {
		return "", fmt.Errorf("send mfa code: %w", err)
	}
	return code, nil
}

func (e *Email) Verify(_ context.Context, _ *model.User, challenge, response string) error {
	if challenge == "" || subtle.ConstantTimeCompare([]byte(challenge), []byte(response)) != 1 {
		return fmt.Errorf("%w: email code mismatch", errs.ErrMFAFailed)
	}
	return nil
}

// newCode draws a uniform six-digit code.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate mfa code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// SMTPSender sends mail through a plain SMTP relay.
type SMTPSender struct {
	Addr string // host:port
	From string
	Auth smtp.Auth // nil for unauthenticated relays
}

var _ Sender = (*SMTPSender)(nil)

func (s *SMTPSender) Send(to, subject, body string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	if err := smtp.SendMail(s.Addr, s.Auth, s.From, []string{to}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
