package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dirección de un movimiento del kardex.
const (
	DirectionIN  = "IN"  // entrada: crea lotes
	DirectionOUT = "OUT" // salida: consume lotes FIFO
)

// Razones de negocio conocidas. Reason es texto libre; estas constantes son las que
// el motor interpreta (comprobantes, reversos, traslados).
const (
	ReasonPurchase        = "purchase"
	ReasonSale            = "sale"
	ReasonPOSSale         = "pos_sale"
	ReasonCreditSale      = "credit_sale"
	ReasonReturn          = "return"
	ReasonPaymentReceived = "payment_received"
	ReasonDepositReceived = "deposit_received"
	ReasonTransferIn      = "transfer_in"
	ReasonTransferOut     = "transfer_out"
	ReasonReversal        = "reversal"
)

// Movement es un asiento inmutable del kardex por sucursal.
// Sequence es monótono creciente y desempata el orden FIFO cuando OccurredAt coincide.
type Movement struct {
	ID             string
	BranchCode     string
	Sequence       int64
	DocumentNumber string
	Direction      string
	Reason         string
	OccurredAt     time.Time
	PerformedBy    string
	IdempotencyKey string
	ReversesID     string // movimiento compensado por este (vacío si no es reverso)
	Lines          []MovementLine
	CreatedAt      time.Time
}

// MovementLine es una línea del movimiento. En salidas UnitCost es el costo promedio
// ponderado de los lotes consumidos y Allocations detalla cada lote tomado.
type MovementLine struct {
	LineNo      int
	ProductID   string
	BatchKey    string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	UnitPrice   decimal.Decimal
	Allocations []AllocationPart
}

// IsIN indica si el movimiento es una entrada.
func (m *Movement) IsIN() bool { return m.Direction == DirectionIN }

// IsReversal indica si el movimiento compensa a otro.
func (m *Movement) IsReversal() bool { return m.ReversesID != "" }

// SignedQuantity devuelve la cantidad con signo (+ entrada, - salida) de una línea.
func (m *Movement) SignedQuantity(l MovementLine) decimal.Decimal {
	if m.IsIN() {
		return l.Quantity
	}
	return l.Quantity.Neg()
}

// ValidDirection indica si d es IN u OUT.
func ValidDirection(d string) bool {
	return d == DirectionIN || d == DirectionOUT
}
