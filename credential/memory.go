package credential

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the credential pair in process memory. It is the
// default backend: sessions do not survive a restart, which matches the
// lifetime of an interactive client.
type MemoryStore struct {
	mu      sync.Mutex
	pair    Pair
	present bool
	skew    time.Duration
	now     func() time.Time
}

// NewMemoryStore returns an empty in-memory store. A zero skew selects
// [DefaultSkewMargin].
func NewMemoryStore(skew time.Duration) *MemoryStore {
	return &MemoryStore{
		skew: normalizeSkew(skew),
		now:  time.Now,
	}
}

// SetCredentials replaces the stored pair wholesale.
func (s *MemoryStore) SetCredentials(_ context.Context, access, refresh string, lifetime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    s.now().Add(lifetime),
	}
	s.present = true
	return nil
}

// UpdateAccessOnly stores a renewed access credential, preserving the
// refresh credential exactly.
func (s *MemoryStore) UpdateAccessOnly(_ context.Context, access string, lifetime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair.AccessToken = access
	s.pair.ExpiresAt = s.now().Add(lifetime)
	s.present = true
	return nil
}

// Credentials returns a copy of the stored pair.
func (s *MemoryStore) Credentials(_ context.Context) (Pair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.present || !pairComplete(s.pair) {
		return Pair{}, false
	}
	return s.pair, true
}

// AccessToken returns the access credential while unexpired.
func (s *MemoryStore) AccessToken(ctx context.Context) (string, bool) {
	pair, ok := s.Credentials(ctx)
	if pairExpired(pair, ok, s.now(), s.skew) {
		return "", false
	}
	return pair.AccessToken, true
}

// IsAccessExpired reports whether the access credential is past the skew
// boundary or absent.
func (s *MemoryStore) IsAccessExpired(ctx context.Context) bool {
	pair, ok := s.Credentials(ctx)
	return pairExpired(pair, ok, s.now(), s.skew)
}

// Clear wipes the pair. Idempotent.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = Pair{}
	s.present = false
	return nil
}
