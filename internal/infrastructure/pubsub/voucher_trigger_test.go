package pubsub

import (
	"encoding/json"
	"testing"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVoucherMessage(t *testing.T) {
	m := &entity.Movement{
		ID: "m1", BranchCode: "SUC1", DocumentNumber: "OUT-SUC1-000001", Reason: entity.ReasonPOSSale,
		Lines: []entity.MovementLine{
			{ProductID: "P1", Quantity: decimal.RequireFromString("2"), UnitCost: decimal.RequireFromString("10"), UnitPrice: decimal.RequireFromString("15")},
			{ProductID: "P2", Quantity: decimal.RequireFromString("1.5"), UnitCost: decimal.RequireFromString("4"), UnitPrice: decimal.RequireFromString("6")},
		},
	}
	msg := NewVoucherMessage(m)
	assert.True(t, msg.TotalCost.Equal(decimal.RequireFromString("26")))
	assert.True(t, msg.TotalPrice.Equal(decimal.RequireFromString("39")))
	assert.Len(t, msg.Lines, 2)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"document_number":"OUT-SUC1-000001"`)
}
