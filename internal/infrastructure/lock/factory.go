package lock

import (
	"context"
	"fmt"

	appcustody "github.com/erp/custody/internal/application/custody"
	"github.com/erp/custody/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend is the locker selected from configuration together with the
// resources it owns.
type Backend struct {
	Locker appcustody.AdvanceLocker
	redis  *redis.Client
}

// Close releases the Redis connection when one was opened
func (b *Backend) Close() error {
	if b.redis == nil {
		return nil
	}
	return b.redis.Close()
}

// NewBackend builds the locker named by cfg.Lock.Backend. The memory backend
// only serializes within this process.
func NewBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Lock.Backend {
	case config.LockBackendMemory:
		logger.Info("Using in-process advance locker")
		return &Backend{Locker: appcustody.NewLocalAdvanceLocker()}, nil
	case config.LockBackendRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Redis advance locker",
			zap.String("addr", cfg.Redis.Addr()),
			zap.Duration("ttl", cfg.Lock.TTL),
		)
		return &Backend{
			Locker: NewRedisAdvanceLocker(client, RedisLockerOptions{
				TTL:        cfg.Lock.TTL,
				RetryDelay: cfg.Lock.RetryDelay,
				MaxWait:    cfg.Lock.MaxWait,
			}, logger),
			redis: client,
		}, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend)
	}
}

// Ping checks the Redis connection; the memory backend is always reachable
func (b *Backend) Ping(ctx context.Context) error {
	if b.redis == nil {
		return nil
	}
	return b.redis.Ping(ctx).Err()
}
