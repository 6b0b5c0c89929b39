package mfa

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
)

// TOTP verifies RFC 6238 time-based codes against the user's shared secret.
// SHA-1 per the RFC; authenticator apps default to it. The zero value uses a
// 30-second step, six digits and one step of clock skew either way.
type TOTP struct {
	Step   time.Duration
	Digits int
	Skew   int

	now func() time.Time
}

var _ Verifier = (*TOTP)(nil)

func NewTOTP() *TOTP {
	return &TOTP{now: time.Now}
}

// Begin is a no-op: the authenticator app already holds the secret.
func (t *TOTP) Begin(context.Context, *model.User) (string, error) {
	return "", nil
}

func (t *TOTP) Verify(_ context.Context, u *model.User, _, code string) error {
	if len(u.TOTPSecret) == 0 {
		return fmt.Errorf("%w: totp secret not provisioned", errs.ErrValidation)
	}
	step, digits, skew := t.Step, t.Digits, t.Skew
	if step <= 0 {
		step = 30 * time.Second
	}
	if digits <= 0 {
		digits = 6
	}
	if skew <= 0 {
		skew = 1
	}
	now := time.Now
	if t.now != nil {
		now = t.now
	}

	counter := now().Unix() / int64(step/time.Second)
	for off := int64(-skew); off <= int64(skew); off++ {
		want := hotp(u.TOTPSecret, uint64(counter+off), digits)
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return nil
		}
	}
	return fmt.Errorf("%w: totp code mismatch", errs.ErrMFAFailed)
}

// hotp computes the RFC 4226 dynamically truncated code for one counter value.
func hotp(secret []byte, counter uint64, digits int) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)
	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)
	off := sum[len(sum)-1] & 0x0f
	v := binary.BigEndian.Uint32(sum[off:off+4]) & 0x7fffffff
	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, v%mod)
}
