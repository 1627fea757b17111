package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "verification:session:"

// releaseScript deletes the key only when it still carries the value
// written at acquire time, so a stale release never evicts a newer
// session.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRegistry is the multi-instance Registry backed by Redis SET NX.
// Keys carry a safety TTL so a crashed instance cannot wedge a
// requester or ticket out of future interaction forever.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisRegistry constructs a registry over the given client.
func NewRedisRegistry(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisRegistry{client: client, ttl: ttl, logger: logger}
}

// TryAcquire claims key for holder.
func (r *RedisRegistry) TryAcquire(ctx context.Context, key, holder string) (Token, error) {
	nonce := uuid.NewString()
	value := holder + "|" + nonce
	redisKey := keyPrefix + key

	ok, err := r.client.SetNX(ctx, redisKey, value, r.ttl).Result()
	if err != nil {
		return Token{}, err
	}
	if !ok {
		current, err := r.client.Get(ctx, redisKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return Token{}, err
		}
		holder, _, _ := strings.Cut(current, "|")
		return Token{}, &AlreadyHeldError{Key: key, Holder: holder}
	}
	return Token{key: key, nonce: value}, nil
}

// Release frees the key claimed by token.
func (r *RedisRegistry) Release(ctx context.Context, token Token) {
	if token.zero() {
		return
	}
	if err := releaseScript.Run(ctx, r.client, []string{keyPrefix + token.key}, token.nonce).Err(); err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Warn("session release failed", zap.String("key", token.key), zap.Error(err))
	}
}
