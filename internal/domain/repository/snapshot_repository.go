package repository

import (
	"context"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// SnapshotRepository puerto del saldo cacheado por (sucursal, producto).
type SnapshotRepository interface {
	Get(ctx context.Context, branchCode, productID string) (*entity.Snapshot, error)
	// ApplyDelta suma delta a on_hand de forma atómica (upsert) y sobrescribe costo/precio
	// cuando vienen informados.
	ApplyDelta(ctx context.Context, branchCode, productID string, delta decimal.Decimal, unitCost, unitPrice *decimal.Decimal, at time.Time) (*entity.Snapshot, error)
	// LockForRebuild bloquea la fila del snapshot hasta el fin de la transacción.
	LockForRebuild(ctx context.Context, branchCode, productID string) error
	Replace(ctx context.Context, s *entity.Snapshot) error
	ListByBranch(ctx context.Context, branchCode string) ([]*entity.Snapshot, error)
}
