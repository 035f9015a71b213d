package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa un producto o SKU del catálogo.
// El costo no vive aquí: se resuelve por lote en el kardex de cada sucursal.
type Product struct {
	ID          string
	SKU         string // código único
	Name        string
	Description string
	Price       decimal.Decimal // precio de lista
	UnitMeasure string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
