package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
)

var _ repository.MovementRepository = (*MovementRepo)(nil)

const movementColumns = `m.id, m.branch_code, m.sequence, m.document_number, m.direction, m.reason,
	m.occurred_at, m.performed_by, m.idempotency_key, m.reverses_id, m.created_at`

// MovementRepo kardex append-only sobre PostgreSQL (usable con pool o tx).
type MovementRepo struct {
	q Querier
}

// NewMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMovementRepository(q Querier) *MovementRepo {
	return &MovementRepo{q: q}
}

// Create inserta cabecera y líneas. La secuencia la asigna movement_seq.
func (r *MovementRepo) Create(ctx context.Context, m *entity.Movement) error {
	query := `
		INSERT INTO movements (id, branch_code, document_number, direction, reason, occurred_at, performed_by, idempotency_key, reverses_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING sequence`
	err := r.q.QueryRow(ctx, query,
		m.ID, m.BranchCode, m.DocumentNumber, m.Direction, m.Reason, m.OccurredAt, m.PerformedBy,
		nullIfEmpty(m.IdempotencyKey), nullIfEmpty(m.ReversesID), m.CreatedAt,
	).Scan(&m.Sequence)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert movement: %w", err)
	}

	lineQuery := `
		INSERT INTO movement_lines (movement_id, line_no, product_id, batch_key, quantity, unit_cost, unit_price, allocations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, l := range m.Lines {
		allocs, err := json.Marshal(nonNilParts(l.Allocations))
		if err != nil {
			return fmt.Errorf("encode allocations: %w", err)
		}
		if _, err := r.q.Exec(ctx, lineQuery, m.ID, l.LineNo, l.ProductID, l.BatchKey, l.Quantity, l.UnitCost, l.UnitPrice, allocs); err != nil {
			return fmt.Errorf("insert movement line %d: %w", l.LineNo, err)
		}
	}
	return nil
}

// GetByID obtiene un movimiento con sus líneas.
func (r *MovementRepo) GetByID(ctx context.Context, id string) (*entity.Movement, error) {
	return r.getOne(ctx, `SELECT `+movementColumns+` FROM movements m WHERE m.id = $1`, id)
}

// GetByIdempotencyKey obtiene el movimiento registrado con esa clave.
func (r *MovementRepo) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Movement, error) {
	return r.getOne(ctx, `SELECT `+movementColumns+` FROM movements m WHERE m.idempotency_key = $1`, key)
}

// GetReversalOf obtiene el reverso de id, si existe.
func (r *MovementRepo) GetReversalOf(ctx context.Context, id string) (*entity.Movement, error) {
	return r.getOne(ctx, `SELECT `+movementColumns+` FROM movements m WHERE m.reverses_id = $1`, id)
}

func (r *MovementRepo) getOne(ctx context.Context, query string, arg any) (*entity.Movement, error) {
	m, err := scanMovement(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	if err := r.attachLines(ctx, []*entity.Movement{m}, ""); err != nil {
		return nil, err
	}
	return m, nil
}

// ListByBranch movimientos de la sucursal, más recientes primero.
func (r *MovementRepo) ListByBranch(ctx context.Context, branchCode string, f repository.MovementFilter) ([]*entity.Movement, error) {
	query, args := listByBranchQuery(branchCode, f)
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	list, err := collectMovements(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, list, ""); err != nil {
		return nil, err
	}
	return list, nil
}

// listByBranchQuery arma la consulta con los filtros opcionales.
func listByBranchQuery(branchCode string, f repository.MovementFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + movementColumns + ` FROM movements m WHERE m.branch_code = $1`)
	args := []any{branchCode}
	pos := 2
	if f.ProductID != "" {
		fmt.Fprintf(&b, " AND EXISTS (SELECT 1 FROM movement_lines l WHERE l.movement_id = m.id AND l.product_id = $%d)", pos)
		args = append(args, f.ProductID)
		pos++
	}
	if f.From != nil {
		fmt.Fprintf(&b, " AND m.occurred_at >= $%d", pos)
		args = append(args, *f.From)
		pos++
	}
	if f.To != nil {
		fmt.Fprintf(&b, " AND m.occurred_at <= $%d", pos)
		args = append(args, *f.To)
		pos++
	}
	fmt.Fprintf(&b, " ORDER BY m.sequence DESC LIMIT $%d OFFSET $%d", pos, pos+1)
	args = append(args, f.Limit, f.Offset)
	return b.String(), args
}

// ListForReplay movimientos con líneas del producto, en orden de secuencia, solo con esas líneas.
func (r *MovementRepo) ListForReplay(ctx context.Context, branchCode, productID string) ([]*entity.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements m
		WHERE m.branch_code = $1
		  AND EXISTS (SELECT 1 FROM movement_lines l WHERE l.movement_id = m.id AND l.product_id = $2)
		ORDER BY m.sequence`
	rows, err := r.q.Query(ctx, query, branchCode, productID)
	if err != nil {
		return nil, fmt.Errorf("list movements for replay: %w", err)
	}
	list, err := collectMovements(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, list, productID); err != nil {
		return nil, err
	}
	return list, nil
}

// ListStockKeys pares (sucursal, producto) con al menos un movimiento.
func (r *MovementRepo) ListStockKeys(ctx context.Context) ([]entity.StockKey, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT m.branch_code, l.product_id
		FROM movements m JOIN movement_lines l ON l.movement_id = m.id
		ORDER BY 1, 2`)
	if err != nil {
		return nil, fmt.Errorf("list stock keys: %w", err)
	}
	defer rows.Close()
	var keys []entity.StockKey
	for rows.Next() {
		var k entity.StockKey
		if err := rows.Scan(&k.BranchCode, &k.ProductID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// attachLines carga las líneas de los movimientos; productID no vacío filtra por producto.
func (r *MovementRepo) attachLines(ctx context.Context, list []*entity.Movement, productID string) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	byID := make(map[string]*entity.Movement, len(list))
	for i, m := range list {
		ids[i] = m.ID
		byID[m.ID] = m
		m.Lines = m.Lines[:0]
	}
	query := `
		SELECT movement_id, line_no, product_id, batch_key, quantity, unit_cost, unit_price, allocations
		FROM movement_lines WHERE movement_id = ANY($1) AND ($2 = '' OR product_id = $2)
		ORDER BY movement_id, line_no`
	rows, err := r.q.Query(ctx, query, ids, productID)
	if err != nil {
		return fmt.Errorf("list movement lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var movementID string
		var l entity.MovementLine
		var allocs []byte
		if err := rows.Scan(&movementID, &l.LineNo, &l.ProductID, &l.BatchKey, &l.Quantity, &l.UnitCost, &l.UnitPrice, &allocs); err != nil {
			return err
		}
		if err := json.Unmarshal(allocs, &l.Allocations); err != nil {
			return fmt.Errorf("decode allocations: %w", err)
		}
		if m, ok := byID[movementID]; ok {
			m.Lines = append(m.Lines, l)
		}
	}
	return rows.Err()
}

func scanMovement(row pgx.Row) (*entity.Movement, error) {
	var m entity.Movement
	var idem, reverses *string
	err := row.Scan(&m.ID, &m.BranchCode, &m.Sequence, &m.DocumentNumber, &m.Direction, &m.Reason,
		&m.OccurredAt, &m.PerformedBy, &idem, &reverses, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.IdempotencyKey = fromNull(idem)
	m.ReversesID = fromNull(reverses)
	return &m, nil
}

func collectMovements(rows pgx.Rows) ([]*entity.Movement, error) {
	defer rows.Close()
	list := []*entity.Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func nonNilParts(p []entity.AllocationPart) []entity.AllocationPart {
	if p == nil {
		return []entity.AllocationPart{}
	}
	return p
}
