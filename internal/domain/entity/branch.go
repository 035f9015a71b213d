package entity

import "time"

// Branch representa una sucursal (tienda o bodega) con kardex propio.
type Branch struct {
	Code      string
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
