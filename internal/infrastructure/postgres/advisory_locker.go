package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/branch-ledger/internal/application/inventory"
)

var _ inventory.Locker = (*AdvisoryLocker)(nil)

// AdvisoryLocker lock por clave con pg_advisory_lock. El lock vive en una conexión dedicada
// del pool hasta que se libera.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

// NewAdvisoryLocker construye el locker.
func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool}
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		defer conn.Release()
		if _, err := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
			// una conexión cerrada se descarta del pool y con ella el lock
			_ = conn.Conn().Close(context.Background())
			return fmt.Errorf("advisory unlock %s: %w", key, err)
		}
		return nil
	}, nil
}
