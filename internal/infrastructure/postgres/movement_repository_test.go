package postgres

import (
	"testing"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/stretchr/testify/assert"
)

func TestListByBranchQuery(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := listByBranchQuery("SUC1", repository.MovementFilter{ProductID: "P1", From: &from, Limit: 20, Offset: 40})

	assert.Contains(t, query, "l.product_id = $2")
	assert.Contains(t, query, "m.occurred_at >= $3")
	assert.NotContains(t, query, "m.occurred_at <=")
	assert.Contains(t, query, "LIMIT $4 OFFSET $5")
	assert.Equal(t, []any{"SUC1", "P1", from, 20, 40}, args)
}

func TestListByBranchQuery_SinFiltros(t *testing.T) {
	query, args := listByBranchQuery("SUC1", repository.MovementFilter{Limit: 10})
	assert.Contains(t, query, "ORDER BY m.sequence DESC LIMIT $2 OFFSET $3")
	assert.Len(t, args, 3)
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "k", *nullIfEmpty("k"))
	assert.Equal(t, "", fromNull(nil))
}
