package credential

import (
	"context"
	"errors"
	"time"
)

// ErrStorageUnavailable wraps failures of the underlying storage medium on
// the write path. Callers must treat the session as unauthenticated when a
// write fails with it.
var ErrStorageUnavailable = errors.New("credential storage unavailable")

// DefaultSkewMargin is subtracted from the declared expiry when deciding
// whether the access credential is still usable.
const DefaultSkewMargin = 60 * time.Second

// Pair is the stored credential triple. ExpiresAt is always computed from
// the server-declared lifetime at the moment of storage, never recomputed
// from the token contents.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Store persists exactly one credential pair. Implementations own the pair
// exclusively: callers only ever get point-in-time copies.
type Store interface {
	// SetCredentials replaces the stored pair wholesale, computing the
	// expiry instant from lifetime. Fails only with ErrStorageUnavailable.
	SetCredentials(ctx context.Context, access, refresh string, lifetime time.Duration) error

	// UpdateAccessOnly stores a renewed access credential while preserving
	// the existing refresh credential, for renewals that do not rotate it.
	UpdateAccessOnly(ctx context.Context, access string, lifetime time.Duration) error

	// Credentials returns a copy of the stored pair, or ok=false when
	// absent. It never fails.
	Credentials(ctx context.Context) (Pair, bool)

	// AccessToken returns the access credential only while it is not
	// expired under the skew margin; otherwise ok=false. This forces
	// callers through renewal rather than sending a token known stale.
	AccessToken(ctx context.Context) (string, bool)

	// IsAccessExpired reports now >= expiresAt - skewMargin. Absent
	// credentials count as expired.
	IsAccessExpired(ctx context.Context) bool

	// Clear wipes the stored pair. Idempotent; succeeds when nothing was
	// stored.
	Clear(ctx context.Context) error
}

func normalizeSkew(skew time.Duration) time.Duration {
	if skew == 0 {
		return DefaultSkewMargin
	}
	if skew < 0 {
		return 0
	}
	return skew
}

func pairExpired(p Pair, ok bool, now time.Time, skew time.Duration) bool {
	if !ok {
		return true
	}
	return !now.Before(p.ExpiresAt.Add(-skew))
}

func pairComplete(p Pair) bool {
	return p.AccessToken != "" && p.RefreshToken != "" && !p.ExpiresAt.IsZero()
}
