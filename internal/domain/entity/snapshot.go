package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot saldo cacheado por (sucursal, producto). OnHand = Σ entradas - Σ salidas del kardex;
// si diverge, el kardex manda y el snapshot se reconstruye por replay.
type Snapshot struct {
	BranchCode    string
	ProductID     string
	OnHand        decimal.Decimal
	LastUnitCost  decimal.Decimal
	LastUnitPrice decimal.Decimal
	UpdatedAt     time.Time
}

// StockKey identifica un par (sucursal, producto).
type StockKey struct {
	BranchCode string
	ProductID  string
}

// Key devuelve la clave del snapshot.
func (s *Snapshot) Key() StockKey {
	return StockKey{BranchCode: s.BranchCode, ProductID: s.ProductID}
}
