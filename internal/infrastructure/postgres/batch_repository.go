package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.BatchRepository = (*BatchRepo)(nil)

const batchColumns = `branch_code, product_id, batch_key, movement_id, sequence, occurred_at,
	original_quantity, remaining_quantity, unit_cost, created_at, updated_at`

// BatchRepo lotes y registro de asignaciones sobre PostgreSQL (usable con pool o tx).
type BatchRepo struct {
	q Querier
}

// NewBatchRepository construye el adaptador. Pasar pool o tx (Querier).
func NewBatchRepository(q Querier) *BatchRepo {
	return &BatchRepo{q: q}
}

// Create registra el lote de una línea de entrada.
func (r *BatchRepo) Create(ctx context.Context, b *entity.Batch) error {
	query := `INSERT INTO batches (` + batchColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(ctx, query,
		b.BranchCode, b.ProductID, b.BatchKey, b.MovementID, b.Sequence, b.OccurredAt,
		b.OriginalQuantity, b.RemainingQuantity, b.UnitCost, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// Get obtiene un lote por su clave.
func (r *BatchRepo) Get(ctx context.Context, branchCode, productID, batchKey string) (*entity.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE branch_code = $1 AND product_id = $2 AND batch_key = $3`
	b, err := scanBatch(r.q.QueryRow(ctx, query, branchCode, productID, batchKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

// ListByProduct lotes del producto en orden FIFO.
func (r *BatchRepo) ListByProduct(ctx context.Context, branchCode, productID string, includeExhausted bool) ([]*entity.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches
		WHERE branch_code = $1 AND product_id = $2 AND ($3 OR remaining_quantity > 0)
		ORDER BY occurred_at, sequence`
	rows, err := r.q.Query(ctx, query, branchCode, productID, includeExhausted)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()
	list := []*entity.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// TryConsume decremento condicional: la fila solo cambia si remaining >= qty.
func (r *BatchRepo) TryConsume(ctx context.Context, branchCode, productID, batchKey string, qty decimal.Decimal) (decimal.Decimal, bool, error) {
	query := `
		UPDATE batches SET remaining_quantity = remaining_quantity - $4, updated_at = now()
		WHERE branch_code = $1 AND product_id = $2 AND batch_key = $3 AND remaining_quantity >= $4
		RETURNING remaining_quantity`
	var remaining decimal.Decimal
	err := r.q.QueryRow(ctx, query, branchCode, productID, batchKey, qty).Scan(&remaining)
	if err == nil {
		return remaining, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, fmt.Errorf("consume batch: %w", err)
	}
	b, err := r.Get(ctx, branchCode, productID, batchKey)
	if err != nil || b == nil {
		return decimal.Zero, false, err
	}
	return b.RemainingQuantity, false, nil
}

// Restore devuelve cantidad al lote sin superar la original.
func (r *BatchRepo) Restore(ctx context.Context, branchCode, productID, batchKey string, qty decimal.Decimal) error {
	query := `
		UPDATE batches SET remaining_quantity = remaining_quantity + $4, updated_at = now()
		WHERE branch_code = $1 AND product_id = $2 AND batch_key = $3 AND remaining_quantity + $4 <= original_quantity`
	tag, err := r.q.Exec(ctx, query, branchCode, productID, batchKey, qty)
	if err != nil {
		return fmt.Errorf("restore batch: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	b, err := r.Get(ctx, branchCode, productID, batchKey)
	if err != nil {
		return err
	}
	if b == nil {
		return domain.NotFound("lote", batchKey)
	}
	return fmt.Errorf("restituir %s en lote %s supera la cantidad original: %w", qty, batchKey, domain.ErrConflict)
}

// AppendAllocation agrega un tramo al registro de asignaciones.
func (r *BatchRepo) AppendAllocation(ctx context.Context, a *entity.Allocation) error {
	query := `
		INSERT INTO batch_allocations (movement_id, line_no, branch_code, product_id, batch_key, quantity, unit_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := r.q.QueryRow(ctx, query, a.MovementID, a.LineNo, a.BranchCode, a.ProductID, a.BatchKey, a.Quantity, a.UnitCost, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

// ListAllocations tramos registrados contra un lote.
func (r *BatchRepo) ListAllocations(ctx context.Context, branchCode, productID, batchKey string) ([]*entity.Allocation, error) {
	return r.listAllocations(ctx, `WHERE branch_code = $1 AND product_id = $2 AND batch_key = $3`, branchCode, productID, batchKey)
}

// ListAllocationsByMovement tramos de un movimiento.
func (r *BatchRepo) ListAllocationsByMovement(ctx context.Context, movementID string) ([]*entity.Allocation, error) {
	return r.listAllocations(ctx, `WHERE movement_id = $1`, movementID)
}

func (r *BatchRepo) listAllocations(ctx context.Context, where string, args ...any) ([]*entity.Allocation, error) {
	query := `SELECT id, movement_id, line_no, branch_code, product_id, batch_key, quantity, unit_cost, created_at
		FROM batch_allocations ` + where + ` ORDER BY id`
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()
	list := []*entity.Allocation{}
	for rows.Next() {
		var a entity.Allocation
		if err := rows.Scan(&a.ID, &a.MovementID, &a.LineNo, &a.BranchCode, &a.ProductID, &a.BatchKey, &a.Quantity, &a.UnitCost, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}

func scanBatch(row pgx.Row) (*entity.Batch, error) {
	var b entity.Batch
	err := row.Scan(&b.BranchCode, &b.ProductID, &b.BatchKey, &b.MovementID, &b.Sequence, &b.OccurredAt,
		&b.OriginalQuantity, &b.RemainingQuantity, &b.UnitCost, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
