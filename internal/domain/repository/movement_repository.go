package repository

import (
	"context"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
)

// MovementFilter filtros para listar movimientos de una sucursal.
type MovementFilter struct {
	ProductID string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// MovementRepository puerto del kardex append-only. No existe borrado ni actualización.
type MovementRepository interface {
	// Create inserta el movimiento y sus líneas, asignando Sequence.
	// Devuelve domain.ErrDuplicate si la clave de idempotencia o el reverso ya existen.
	Create(ctx context.Context, m *entity.Movement) error
	GetByID(ctx context.Context, id string) (*entity.Movement, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.Movement, error)
	// GetReversalOf devuelve el movimiento que compensa a id, o nil.
	GetReversalOf(ctx context.Context, id string) (*entity.Movement, error)
	ListByBranch(ctx context.Context, branchCode string, f MovementFilter) ([]*entity.Movement, error)
	// ListForReplay devuelve, en orden de secuencia, los movimientos con líneas del producto
	// (solo esas líneas) en la sucursal.
	ListForReplay(ctx context.Context, branchCode, productID string) ([]*entity.Movement, error)
	// ListStockKeys pares (sucursal, producto) con historia en el kardex.
	ListStockKeys(ctx context.Context) ([]entity.StockKey, error)
}
