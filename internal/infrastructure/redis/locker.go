package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/jhoicas/branch-ledger/internal/application/inventory"
	"github.com/jhoicas/branch-ledger/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

var _ inventory.Locker = (*Locker)(nil)

// Locker lock distribuido con redislock; coordina reconstrucciones entre instancias.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewLocker construye el locker. ttl es la vida máxima del lock si el proceso muere.
func NewLocker(rdb goredis.UniversalClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: redislock.New(rdb), ttl: ttl}
}

// Lock reintenta con backoff lineal hasta obtener el lock o que ctx expire.
func (l *Locker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("lock %s ocupado: %w", key, domain.ErrConcurrencyConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
