package inventory

import (
	"context"

	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	dominv "github.com/jhoicas/branch-ledger/internal/domain/inventory"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

// LedgerQueries consultas de solo lectura sobre el kardex para conciliación.
type LedgerQueries struct {
	movRepo   repository.MovementRepository
	batchRepo repository.BatchRepository
}

// NewLedgerQueries construye las consultas con repositorios no transaccionales.
func NewLedgerQueries(movRepo repository.MovementRepository, batchRepo repository.BatchRepository) *LedgerQueries {
	return &LedgerQueries{movRepo: movRepo, batchRepo: batchRepo}
}

// GetMovement devuelve un movimiento con sus líneas y asignaciones.
func (q *LedgerQueries) GetMovement(ctx context.Context, id string) (*entity.Movement, error) {
	m, err := q.movRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.NotFound("movimiento", id)
	}
	return m, nil
}

// ListMovements movimientos de una sucursal, más recientes primero.
func (q *LedgerQueries) ListMovements(ctx context.Context, branchCode string, f repository.MovementFilter) ([]*entity.Movement, error) {
	if branchCode == "" {
		return nil, domain.Invalid("branch_code", "es requerido")
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return q.movRepo.ListByBranch(ctx, branchCode, f)
}

// ListBatches estados de lote derivados del kardex, en orden cronológico (FIFO).
func (q *LedgerQueries) ListBatches(ctx context.Context, branchCode, productID string, includeExhausted bool) ([]*entity.Batch, error) {
	if branchCode == "" || productID == "" {
		return nil, domain.Invalid("", "branch_code y product_id son requeridos")
	}
	list, err := q.batchRepo.ListByProduct(ctx, branchCode, productID, includeExhausted)
	if err != nil {
		return nil, err
	}
	return dominv.FIFO{}.Order(list), nil
}

// BatchAudit compara el saldo almacenado del lote con el derivado del registro de asignaciones.
type BatchAudit struct {
	Batch            *entity.Batch
	AllocatedTotal   decimal.Decimal
	DerivedRemaining decimal.Decimal
	Consistent       bool
}

// VerifyBatch recalcula remaining = original - Σ asignaciones y lo compara con el almacenado.
func (q *LedgerQueries) VerifyBatch(ctx context.Context, branchCode, productID, batchKey string) (*BatchAudit, error) {
	b, err := q.batchRepo.Get(ctx, branchCode, productID, batchKey)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.NotFound("lote", batchKey)
	}
	allocs, err := q.batchRepo.ListAllocations(ctx, branchCode, productID, batchKey)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Quantity)
	}
	derived := b.OriginalQuantity.Sub(total)
	return &BatchAudit{
		Batch:            b,
		AllocatedTotal:   total,
		DerivedRemaining: derived,
		Consistent:       derived.Equal(b.RemainingQuantity),
	}, nil
}
