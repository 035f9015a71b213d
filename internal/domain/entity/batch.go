package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de un lote. Solo avanzan (OPEN → PARTIALLY_CONSUMED → EXHAUSTED) salvo por reverso administrativo.
const (
	BatchStateOpen              = "OPEN"
	BatchStatePartiallyConsumed = "PARTIALLY_CONSUMED"
	BatchStateExhausted         = "EXHAUSTED"
)

// Batch es un lote de entrada de un producto en una sucursal, identificado por BatchKey
// (por ejemplo el número de orden de compra). OriginalQuantity, UnitCost y BatchKey no cambian;
// RemainingQuantity = OriginalQuantity - suma de asignaciones.
type Batch struct {
	BranchCode        string
	ProductID         string
	BatchKey          string
	MovementID        string
	Sequence          int64
	OccurredAt        time.Time
	OriginalQuantity  decimal.Decimal
	RemainingQuantity decimal.Decimal
	UnitCost          decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// State deriva el estado del lote a partir de las cantidades.
func (b *Batch) State() string {
	switch {
	case b.RemainingQuantity.LessThanOrEqual(decimal.Zero):
		return BatchStateExhausted
	case b.RemainingQuantity.Equal(b.OriginalQuantity):
		return BatchStateOpen
	default:
		return BatchStatePartiallyConsumed
	}
}

// HasCapacity indica si al lote le queda cantidad disponible.
func (b *Batch) HasCapacity() bool {
	return b.RemainingQuantity.GreaterThan(decimal.Zero)
}

// Consumed cantidad ya asignada a salidas.
func (b *Batch) Consumed() decimal.Decimal {
	return b.OriginalQuantity.Sub(b.RemainingQuantity)
}
