package repository

import (
	"context"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// BatchRepository puerto de lotes y del registro de asignaciones.
// Usado dentro de transacciones; TryConsume es la única mutación concurrente.
type BatchRepository interface {
	// Create registra el lote de una línea IN. domain.ErrDuplicate si la clave ya existe.
	Create(ctx context.Context, b *entity.Batch) error
	Get(ctx context.Context, branchCode, productID, batchKey string) (*entity.Batch, error)
	// ListByProduct lotes del producto; sin includeExhausted omite los agotados.
	ListByProduct(ctx context.Context, branchCode, productID string, includeExhausted bool) ([]*entity.Batch, error)
	// TryConsume decrementa remaining en qty solo si remaining >= qty, de forma atómica.
	// ok=false indica que la condición no se cumplió (otro escritor ganó la carrera).
	TryConsume(ctx context.Context, branchCode, productID, batchKey string, qty decimal.Decimal) (remaining decimal.Decimal, ok bool, err error)
	// Restore incrementa remaining sin superar original (reverso administrativo).
	Restore(ctx context.Context, branchCode, productID, batchKey string, qty decimal.Decimal) error
	AppendAllocation(ctx context.Context, a *entity.Allocation) error
	ListAllocations(ctx context.Context, branchCode, productID, batchKey string) ([]*entity.Allocation, error)
	ListAllocationsByMovement(ctx context.Context, movementID string) ([]*entity.Allocation, error)
}
