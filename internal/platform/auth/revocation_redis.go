package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationStore shares revocations between server replicas. Keys
// expire with the tokens they cover.
type RedisRevocationStore struct {
	client    redis.Cmdable
	keyPrefix string
}

func NewRedisRevocationStore(client redis.Cmdable, keyPrefix string) *RedisRevocationStore {
	if keyPrefix == "" {
		keyPrefix = "saude"
	}
	return &RedisRevocationStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisRevocationStore) jtiKey(jti string) string {
	return s.keyPrefix + ":revoked:jti:" + jti
}

func (s *RedisRevocationStore) userKey(userID string) string {
	return s.keyPrefix + ":revoked:user:" + userID
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.jtiKey(jti), userID, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) RevokeUser(ctx context.Context, userID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	cutoff := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.client.Set(ctx, s.userKey(userID), cutoff, ttl).Err(); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, claims *Claims) (bool, error) {
	if claims.ID != "" {
		n, err := s.client.Exists(ctx, s.jtiKey(claims.ID)).Result()
		if err != nil {
			return false, fmt.Errorf("check token revocation: %w", err)
		}
		if n > 0 {
			return true, nil
		}
	}
	raw, err := s.client.Get(ctx, s.userKey(claims.Subject)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user revocation: %w", err)
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse user revocation cutoff: %w", err)
	}
	return issuedNotAfter(claims, time.Unix(unix, 0)), nil
}
