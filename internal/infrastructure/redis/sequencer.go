package redis

import (
	"context"
	"fmt"

	"github.com/jhoicas/branch-ledger/internal/application/inventory"
	goredis "github.com/redis/go-redis/v9"
)

var _ inventory.DocumentSequencer = (*Sequencer)(nil)

// Sequencer numeración de documentos con INCR atómico por (sucursal, prefijo).
// Los números pueden tener huecos si la transacción posterior falla.
type Sequencer struct {
	rdb goredis.UniversalClient
}

// NewSequencer construye el secuenciador.
func NewSequencer(rdb goredis.UniversalClient) *Sequencer {
	return &Sequencer{rdb: rdb}
}

func (s *Sequencer) Next(ctx context.Context, branchCode, prefix string) (string, error) {
	n, err := s.rdb.Incr(ctx, sequenceKey(branchCode, prefix)).Result()
	if err != nil {
		return "", fmt.Errorf("incr document sequence: %w", err)
	}
	return formatDocumentNumber(prefix, branchCode, n), nil
}

func sequenceKey(branchCode, prefix string) string {
	return "ledger:docseq:" + branchCode + ":" + prefix
}

func formatDocumentNumber(prefix, branchCode string, n int64) string {
	return fmt.Sprintf("%s-%s-%06d", prefix, branchCode, n)
}
