package dto

import "time"

// CreateBranchRequest entrada para registrar una sucursal.
type CreateBranchRequest struct {
	Code    string `json:"code" validate:"required,min=1,max=20,alphanum"`
	Name    string `json:"name" validate:"required,min=1,max=200"`
	Address string `json:"address"`
}

// BranchResponse salida de una sucursal.
type BranchResponse struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BranchListResponse lista paginada de sucursales.
type BranchListResponse struct {
	Items []BranchResponse `json:"items"`
	Page  PageResponse     `json:"page"`
}
