package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.SnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo saldo cacheado por (sucursal, producto) sobre PostgreSQL (usable con pool o tx).
type SnapshotRepo struct {
	q Querier
}

// NewSnapshotRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSnapshotRepository(q Querier) *SnapshotRepo {
	return &SnapshotRepo{q: q}
}

// Get obtiene el snapshot; nil si el par no tiene historia.
func (r *SnapshotRepo) Get(ctx context.Context, branchCode, productID string) (*entity.Snapshot, error) {
	query := `
		SELECT branch_code, product_id, on_hand, last_unit_cost, last_unit_price, updated_at
		FROM stock_snapshots WHERE branch_code = $1 AND product_id = $2`
	s, err := scanSnapshot(r.q.QueryRow(ctx, query, branchCode, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return s, nil
}

// ApplyDelta suma delta en un único upsert; la fila queda bloqueada hasta el fin de la tx.
func (r *SnapshotRepo) ApplyDelta(ctx context.Context, branchCode, productID string, delta decimal.Decimal, unitCost, unitPrice *decimal.Decimal, at time.Time) (*entity.Snapshot, error) {
	query := `
		INSERT INTO stock_snapshots (branch_code, product_id, on_hand, last_unit_cost, last_unit_price, updated_at)
		VALUES ($1, $2, $3, COALESCE($4::numeric, 0), COALESCE($5::numeric, 0), $6)
		ON CONFLICT (branch_code, product_id) DO UPDATE SET
			on_hand         = stock_snapshots.on_hand + EXCLUDED.on_hand,
			last_unit_cost  = COALESCE($4::numeric, stock_snapshots.last_unit_cost),
			last_unit_price = COALESCE($5::numeric, stock_snapshots.last_unit_price),
			updated_at      = EXCLUDED.updated_at
		RETURNING branch_code, product_id, on_hand, last_unit_cost, last_unit_price, updated_at`
	s, err := scanSnapshot(r.q.QueryRow(ctx, query, branchCode, productID, delta, unitCost, unitPrice, at))
	if err != nil {
		return nil, fmt.Errorf("apply snapshot delta: %w", err)
	}
	return s, nil
}

// LockForRebuild asegura que la fila exista y la bloquea; los escritores del par esperan
// hasta que la reconstrucción confirme.
func (r *SnapshotRepo) LockForRebuild(ctx context.Context, branchCode, productID string) error {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO stock_snapshots (branch_code, product_id) VALUES ($1, $2)
		ON CONFLICT (branch_code, product_id) DO NOTHING`, branchCode, productID); err != nil {
		return fmt.Errorf("ensure snapshot row: %w", err)
	}
	var one int
	err := r.q.QueryRow(ctx, `
		SELECT 1 FROM stock_snapshots WHERE branch_code = $1 AND product_id = $2 FOR UPDATE`,
		branchCode, productID).Scan(&one)
	if err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	return nil
}

// Replace sobrescribe el snapshot completo (reconstrucción).
func (r *SnapshotRepo) Replace(ctx context.Context, s *entity.Snapshot) error {
	query := `
		INSERT INTO stock_snapshots (branch_code, product_id, on_hand, last_unit_cost, last_unit_price, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (branch_code, product_id) DO UPDATE SET
			on_hand = EXCLUDED.on_hand,
			last_unit_cost = EXCLUDED.last_unit_cost,
			last_unit_price = EXCLUDED.last_unit_price,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.q.Exec(ctx, query, s.BranchCode, s.ProductID, s.OnHand, s.LastUnitCost, s.LastUnitPrice, s.UpdatedAt); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// ListByBranch saldos de la sucursal ordenados por producto.
func (r *SnapshotRepo) ListByBranch(ctx context.Context, branchCode string) ([]*entity.Snapshot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT branch_code, product_id, on_hand, last_unit_cost, last_unit_price, updated_at
		FROM stock_snapshots WHERE branch_code = $1 ORDER BY product_id`, branchCode)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	list := []*entity.Snapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanSnapshot(row pgx.Row) (*entity.Snapshot, error) {
	var s entity.Snapshot
	if err := row.Scan(&s.BranchCode, &s.ProductID, &s.OnHand, &s.LastUnitCost, &s.LastUnitPrice, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
