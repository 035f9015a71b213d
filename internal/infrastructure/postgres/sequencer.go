package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/branch-ledger/internal/application/inventory"
)

var _ inventory.DocumentSequencer = (*Sequencer)(nil)

// Sequencer numeración de documentos persistida en document_sequences. Se usa cuando no hay Redis.
// Corre fuera de la transacción del movimiento, así que un rollback deja un hueco.
type Sequencer struct {
	q Querier
}

// NewSequencer construye el secuenciador sobre el pool.
func NewSequencer(q Querier) *Sequencer {
	return &Sequencer{q: q}
}

func (s *Sequencer) Next(ctx context.Context, branchCode, prefix string) (string, error) {
	var n int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO document_sequences (branch_code, prefix, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (branch_code, prefix)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`, branchCode, prefix).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("next document number: %w", err)
	}
	return fmt.Sprintf("%s-%s-%06d", prefix, branchCode, n), nil
}
