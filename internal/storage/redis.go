package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"index-anomaly-alerts/internal/config"
)

// releaseLockScript deletes the lock only while it still holds our token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient builds a client from the redis section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisStore keeps the envelope JSON under a single key with a TTL.
type RedisStore struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	lockTTL time.Duration
}

// NewRedisStore wraps client. A zero ttl keeps the key forever.
func NewRedisStore(client *redis.Client, key string, ttl, lockTTL time.Duration) *RedisStore {
	if lockTTL <= 0 {
		lockTTL = defaultLockStaleAfter
	}
	return &RedisStore{client: client, key: key, ttl: ttl, lockTTL: lockTTL}
}

// Close releases the client connections.
func (s *RedisStore) Close() {
	if s == nil || s.client == nil {
		return
	}
	_ = s.client.Close()
}

// Load fetches the envelope key.
func (s *RedisStore) Load(ctx context.Context) (*Envelope, error) {
	if s == nil || s.client == nil {
		return nil, ErrNotConfigured
	}
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &env, nil
}

// Save overwrites the envelope key.
func (s *RedisStore) Save(ctx context.Context, env Envelope) error {
	if s == nil || s.client == nil {
		return ErrNotConfigured
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// TryLock takes <key>:lock with SET NX and an expiry.
func (s *RedisStore) TryLock(ctx context.Context) (func(), bool, error) {
	if s == nil || s.client == nil {
		return nil, false, ErrNotConfigured
	}
	lockKey := s.key + ":lock"
	token := strconv.FormatInt(time.Now().UnixNano(), 36)

	ok, err := s.client.SetNX(ctx, lockKey, token, s.lockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", lockKey, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseLockScript.Run(ctxUnlock, s.client, []string{lockKey}, token).Err()
	}
	return unlock, true, nil
}
