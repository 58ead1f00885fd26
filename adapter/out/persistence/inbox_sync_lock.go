package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"inbox_server/core/port/out"
	"inbox_server/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	SyncLockTTL       = time.Minute
	SyncLockRetry     = 200 * time.Millisecond
	DeliveryDedupTTL  = 5 * time.Minute
	syncLockKeyPrefix = "inbox:synclock:"
	dedupKeyPrefix    = "webhook:idempotent:"
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// renewScript extends the lease only if this holder still owns it.
var renewScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`)

// RedisAccountLocker serializes per-account work across replicas.
// A held lease is renewed every ttl/3 until released.
type RedisAccountLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	renew  time.Duration
}

// NewRedisAccountLocker creates a locker. The TTL bounds how long a crashed holder blocks others.
func NewRedisAccountLocker(client *redis.Client, ttl time.Duration) *RedisAccountLocker {
	if ttl <= 0 {
		ttl = SyncLockTTL
	}
	return &RedisAccountLocker{client: client, ttl: ttl, retry: SyncLockRetry, renew: ttl / 3}
}

var _ out.AccountLocker = (*RedisAccountLocker)(nil)

func syncLockKey(accountID int64) string {
	return fmt.Sprintf("%s%d", syncLockKeyPrefix, accountID)
}

// Lock polls SET NX until acquired or ctx is done.
func (l *RedisAccountLocker) Lock(ctx context.Context, accountID int64) (func(), error) {
	key := syncLockKey(accountID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("acquire sync lock: %w", err)
		}
		if ok {
			return l.hold(key, token, accountID), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// hold keeps the lease alive and returns the release func.
func (l *RedisAccountLocker) hold(key, token string, accountID int64) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.renew)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			rctx, cancel := context.WithTimeout(context.Background(), l.renew)
			n, err := renewScript.Run(rctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil && !errors.Is(err, redis.Nil) {
				logger.Warn("[SyncLock] renew account=%d failed: %v", accountID, err)
				continue
			}
			if n == 0 {
				logger.Error("[SyncLock] lease for account=%d lost", accountID)
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Released on a fresh context so a cancelled caller still frees the key.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				logger.Warn("[SyncLock] release account=%d failed: %v", accountID, err)
			}
		})
	}
}

// RedisDeliveryDeduper remembers push deliveries for a TTL.
type RedisDeliveryDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeliveryDeduper creates a deduper.
func NewRedisDeliveryDeduper(client *redis.Client, ttl time.Duration) *RedisDeliveryDeduper {
	if ttl <= 0 {
		ttl = DeliveryDedupTTL
	}
	return &RedisDeliveryDeduper{client: client, ttl: ttl}
}

var _ out.DeliveryDeduper = (*RedisDeliveryDeduper)(nil)

// FirstSeen is true the first time key is offered within the TTL.
func (d *RedisDeliveryDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKeyPrefix+key, "1", d.ttl).Result()
	if err != nil {
		return true, err
	}
	return ok, nil
}
