package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	appcustody "github.com/erp/custody/internal/application/custody"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "custody:advance-lock:"

// ErrLockTimeout is returned when an advance stays locked past MaxWait
var ErrLockTimeout = errors.New("timed out waiting for advance lock")

// RedisLockerOptions tunes lock acquisition
type RedisLockerOptions struct {
	// TTL bounds how long a crashed holder can block the advance.
	TTL        time.Duration
	RetryDelay time.Duration
	MaxWait    time.Duration
	KeyPrefix  string
}

// RedisAdvanceLocker is an AdvanceLocker backed by Redis leases, shared by
// every replica pointing at the same Redis.
type RedisAdvanceLocker struct {
	client *redislock.Client
	opts   RedisLockerOptions
	logger *zap.Logger
}

// NewRedisAdvanceLocker creates a locker over an existing Redis client
func NewRedisAdvanceLocker(rdb redis.UniversalClient, opts RedisLockerOptions, logger *zap.Logger) *RedisAdvanceLocker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 15 * time.Second
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisAdvanceLocker{
		client: redislock.New(rdb),
		opts:   opts,
		logger: logger,
	}
}

// Lock obtains the advance's lease, polling every RetryDelay until MaxWait or ctx ends
func (l *RedisAdvanceLocker) Lock(ctx context.Context, advanceID uuid.UUID) (func(), error) {
	key := l.key(advanceID)

	waitCtx, cancel := context.WithTimeout(ctx, l.opts.MaxWait)
	defer cancel()

	lease, err := l.client.Obtain(waitCtx, key, l.opts.TTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.opts.RetryDelay),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			l.logger.Warn("Advance lock not obtained",
				zap.String("advance_id", advanceID.String()),
				zap.Duration("max_wait", l.opts.MaxWait),
			)
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, advanceID)
		}
		return nil, fmt.Errorf("failed to obtain advance lock: %w", err)
	}

	return func() { l.release(lease, advanceID) }, nil
}

func (l *RedisAdvanceLocker) release(lease *redislock.Lock, advanceID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := lease.Release(ctx); err != nil {
		// ErrLockNotHeld means the TTL lapsed while the mutation was still running.
		l.logger.Error("Failed to release advance lock",
			zap.String("advance_id", advanceID.String()),
			zap.Error(err),
		)
	}
}

func (l *RedisAdvanceLocker) key(advanceID uuid.UUID) string {
	return l.opts.KeyPrefix + advanceID.String()
}

var _ appcustody.AdvanceLocker = (*RedisAdvanceLocker)(nil)
