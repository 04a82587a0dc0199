package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/collectdesk/collectdesk/internal/config"
	"github.com/collectdesk/collectdesk/internal/logger"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// ErrLockLost is returned by Extend and Release when the key expired or was
// taken over
var ErrLockLost = errors.New("lock expired before release")

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the key still holds our token
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements ports.Locker with SET NX PX
type RedisLocker struct {
	client *redis.Client
	logger logger.Logger
}

// NewRedisLocker connects to Redis. When locking is disabled a NoopLocker is
// returned instead.
func NewRedisLocker(cfg config.LockConfig, log logger.Logger) (ports.Locker, error) {
	if !cfg.Enabled {
		log.Info(context.Background(), "Distributed locking disabled", nil)
		return NoopLocker{}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info(ctx, "Redis locker initialized", map[string]interface{}{
		"addr": opt.Addr,
		"db":   opt.DB,
		"ttl":  cfg.TTL.String(),
	})

	return NewRedisLockerWithClient(client, log), nil
}

// NewRedisLockerWithClient wraps an existing client
func NewRedisLockerWithClient(client *redis.Client, log logger.Logger) *RedisLocker {
	return &RedisLocker{client: client, logger: log}
}

// Acquire takes key for ttl, or fails with ports.ErrLockHeld
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ports.Lock, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		l.logger.Debug(ctx, "Lock held elsewhere", map[string]interface{}{"key": key})
		return nil, ports.ErrLockHeld
	}

	l.logger.Debug(ctx, "Lock acquired", map[string]interface{}{
		"key": key,
		"ttl": ttl.String(),
	})
	return &redisLock{client: l.client, key: key, token: token}, nil
}

// Close closes the Redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

func (k *redisLock) Extend(ctx context.Context, ttl time.Duration) error {
	extended, err := extendScript.Run(ctx, k.client, []string{k.key}, k.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if extended == 0 {
		return ErrLockLost
	}
	return nil
}

func (k *redisLock) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, k.client, []string{k.key}, k.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if deleted == 0 {
		return ErrLockLost
	}
	return nil
}

// NoopLocker grants every lock immediately
type NoopLocker struct{}

// Acquire always succeeds
func (NoopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ports.Lock, error) {
	return noopLock{}, nil
}

type noopLock struct{}

func (noopLock) Extend(ctx context.Context, ttl time.Duration) error { return nil }

func (noopLock) Release(ctx context.Context) error { return nil }
