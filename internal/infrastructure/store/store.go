// Package store arma el backend de persistencia del kardex según APP_STORE y la presencia de Redis.
package store

import (
	"context"
	"fmt"

	"github.com/jhoicas/branch-ledger/internal/application/inventory"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/jhoicas/branch-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/branch-ledger/internal/infrastructure/postgres"
	ledgerredis "github.com/jhoicas/branch-ledger/internal/infrastructure/redis"
	"github.com/jhoicas/branch-ledger/pkg/config"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Backend repositorios y servicios de coordinación listos para los casos de uso.
type Backend struct {
	TxRunner  inventory.TxRunner
	Movements repository.MovementRepository
	Batches   repository.BatchRepository
	Snapshots repository.SnapshotRepository
	Branches  repository.BranchRepository
	Products  repository.ProductRepository
	Sequencer inventory.DocumentSequencer
	Locker    inventory.Locker
	// Redis nil si no está configurado.
	Redis *goredis.Client

	closers []func()
}

// Close libera conexiones en orden inverso a su apertura.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Open construye el backend. Con Redis configurado, numeración y locks de rebuild van a Redis;
// si no, a PostgreSQL (o a memoria con APP_STORE=memory).
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Backend, error) {
	b := &Backend{}
	switch cfg.App.Store {
	case "memory":
		s := memory.NewStore()
		b.TxRunner = s
		b.Movements, b.Batches, b.Snapshots = s.Movements(), s.Batches(), s.Snapshots()
		b.Branches, b.Products = s.Branches(), s.Products()
		b.Sequencer = memory.NewSequencer()
		b.Locker = memory.NewLocker()
		log.Warn().Msg("store en memoria: los datos se pierden al reiniciar")
	default:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			b.Close()
			return nil, err
		}
		b.TxRunner = postgres.NewTxRunner(pool)
		b.Movements = postgres.NewMovementRepository(pool)
		b.Batches = postgres.NewBatchRepository(pool)
		b.Snapshots = postgres.NewSnapshotRepository(pool)
		b.Branches = postgres.NewBranchRepository(pool)
		b.Products = postgres.NewProductRepository(pool)
		b.Sequencer = postgres.NewSequencer(pool)
		b.Locker = postgres.NewAdvisoryLocker(pool)
	}

	if cfg.Redis.Enabled() {
		rdb, err := ledgerredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("conexión a Redis: %w", err)
		}
		b.closers = append(b.closers, func() { _ = rdb.Close() })
		b.Redis = rdb
		b.Sequencer = ledgerredis.NewSequencer(rdb)
		b.Locker = ledgerredis.NewLocker(rdb, cfg.Redis.LockTTL)
	}
	return b, nil
}
