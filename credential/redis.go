package credential

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccess  = "access_token"
	fieldRefresh = "refresh_token"
	fieldExpires = "expires_at"
)

// RedisStore keeps the credential pair in a Redis hash, for headless
// agents that share one session across processes (schedulers, report
// exporters). The hash carries a TTL slightly past the access expiry so an
// abandoned session does not linger forever; the refresh credential's own
// server-side lifetime still governs whether renewal succeeds.
type RedisStore struct {
	redis redis.UniversalClient
	key   string
	skew  time.Duration
	now   func() time.Time
}

// NewRedisStore returns a store writing to key on the given client. A zero
// skew selects [DefaultSkewMargin].
func NewRedisStore(client redis.UniversalClient, key string, skew time.Duration) *RedisStore {
	return &RedisStore{
		redis: client,
		key:   key,
		skew:  normalizeSkew(skew),
		now:   time.Now,
	}
}

const redisRetention = 30 * 24 * time.Hour

// SetCredentials replaces the stored pair wholesale.
func (s *RedisStore) SetCredentials(ctx context.Context, access, refresh string, lifetime time.Duration) error {
	expiresAt := s.now().Add(lifetime).UnixMilli()
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key,
			fieldAccess, access,
			fieldRefresh, refresh,
			fieldExpires, expiresAt,
		)
		pipe.Expire(ctx, s.key, redisRetention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// UpdateAccessOnly stores a renewed access credential, leaving the refresh
// field untouched.
func (s *RedisStore) UpdateAccessOnly(ctx context.Context, access string, lifetime time.Duration) error {
	expiresAt := s.now().Add(lifetime).UnixMilli()
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key,
			fieldAccess, access,
			fieldExpires, expiresAt,
		)
		pipe.Expire(ctx, s.key, redisRetention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Credentials returns a copy of the stored pair. Backend failures read as
// absent: the read path never surfaces an error.
func (s *RedisStore) Credentials(ctx context.Context) (Pair, bool) {
	fields, err := s.redis.HGetAll(ctx, s.key).Result()
	if err != nil || len(fields) == 0 {
		return Pair{}, false
	}

	millis, err := strconv.ParseInt(fields[fieldExpires], 10, 64)
	if err != nil {
		return Pair{}, false
	}
	pair := Pair{
		AccessToken:  fields[fieldAccess],
		RefreshToken: fields[fieldRefresh],
		ExpiresAt:    time.UnixMilli(millis),
	}
	if !pairComplete(pair) {
		return Pair{}, false
	}
	return pair, true
}

// AccessToken returns the access credential while unexpired.
func (s *RedisStore) AccessToken(ctx context.Context) (string, bool) {
	pair, ok := s.Credentials(ctx)
	if pairExpired(pair, ok, s.now(), s.skew) {
		return "", false
	}
	return pair.AccessToken, true
}

// IsAccessExpired reports whether the access credential is past the skew
// boundary or absent.
func (s *RedisStore) IsAccessExpired(ctx context.Context) bool {
	pair, ok := s.Credentials(ctx)
	return pairExpired(pair, ok, s.now(), s.skew)
}

// Clear deletes the hash. Idempotent.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
