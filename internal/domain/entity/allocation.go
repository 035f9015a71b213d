package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Allocation es el registro append-only del consumo de un lote por una línea de salida.
// Quantity positiva consume; negativa restituye (reverso administrativo).
type Allocation struct {
	ID         int64
	MovementID string
	LineNo     int
	BranchCode string
	ProductID  string
	BatchKey   string
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	CreatedAt  time.Time
}

// AllocationPart es un tramo de la asignación de una línea: cuánto se tomó de qué lote y a qué costo.
type AllocationPart struct {
	BatchKey      string          `json:"batch_key"`
	QuantityTaken decimal.Decimal `json:"quantity_taken"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	// Exhausted indica que este tramo dejó el lote en cero.
	Exhausted bool `json:"-"`
}

// AllocationResult resultado efímero de asignar una línea de salida.
// La suma de QuantityTaken es exactamente Quantity.
type AllocationResult struct {
	BranchCode string
	ProductID  string
	Quantity   decimal.Decimal
	Parts      []AllocationPart
	UnitCost   decimal.Decimal // promedio ponderado de Parts
}

// BatchKey devuelve la clave del lote más antiguo consumido (la que adopta la línea).
func (r *AllocationResult) BatchKey() string {
	if r == nil || len(r.Parts) == 0 {
		return ""
	}
	return r.Parts[0].BatchKey
}
