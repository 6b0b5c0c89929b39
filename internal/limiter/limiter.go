// Package limiter defines interfaces and implementations for rate limiting
// authorization attempts.
package limiter

import (
	"context"
	"time"
)

// Limiter controls consent and MFA attempts per (subject, ip) and applies
// temporary lockouts after repeated failures.
type Limiter interface {
	// Allow reports whether an attempt is currently allowed and optional retry-after.
	Allow(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a completed authorization.
	Success(ctx context.Context, subject string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error)
}
