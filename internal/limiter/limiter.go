// Package limiter defines interfaces and implementations for attempt rate
// limiting. It guards both owner logins and public-link token lookups.
package limiter

import (
	"context"
	"time"
)

// Limiter controls failed attempts and temporary lockouts per (principal, ip).
// The principal is an email for logins and an opaque token digest for
// public-link lookups.
type Limiter interface {
	// Allow reports whether attempts are currently allowed and optional retry-after.
	Allow(ctx context.Context, principal string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful attempt.
	Success(ctx context.Context, principal string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, principal string, ipHash []byte) (bool, time.Duration, error)
}
