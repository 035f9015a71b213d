package inventory

import (
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// WeightedAverageCost implementa el costo promedio ponderado de una línea de salida (servicio de dominio).
// Costo = Σ(cantidadTomada_i * costo_i) / Σ cantidadTomada_i
func WeightedAverageCost(parts []entity.AllocationPart) decimal.Decimal {
	qty := decimal.Zero
	num := decimal.Zero
	for _, p := range parts {
		qty = qty.Add(p.QuantityTaken)
		num = num.Add(p.QuantityTaken.Mul(p.UnitCost))
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return num.Div(qty)
}

// EffectiveCost costo con el que contribuye un lote. Con fallback activo, un lote de costo cero
// aporta el precio de venta de la línea (si es positivo) para no generar costo de venta en cero.
func EffectiveCost(batchCost, unitPrice decimal.Decimal, fallbackToPrice bool) decimal.Decimal {
	if fallbackToPrice && batchCost.IsZero() && unitPrice.GreaterThan(decimal.Zero) {
		return unitPrice
	}
	return batchCost
}
