package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenRevoker keeps the denylist in Redis so revocation survives
// restarts and is shared across instances. Entries expire with the token.
type RedisTokenRevoker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisTokenRevoker(client redis.UniversalClient, prefix string) *RedisTokenRevoker {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "banque"
	}
	return &RedisTokenRevoker{client: client, prefix: trimmed}
}

func (r *RedisTokenRevoker) key(tokenID string) string {
	return fmt.Sprintf("%s:auth:revoked:%s", r.prefix, tokenID)
}

func (r *RedisTokenRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return r.client.Set(ctx, r.key(tokenID), "1", ttl).Err()
}

func (r *RedisTokenRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
