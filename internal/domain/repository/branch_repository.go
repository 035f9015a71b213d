package repository

import (
	"context"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
)

// BranchRepository define el puerto de persistencia para sucursales (DIP).
type BranchRepository interface {
	Create(ctx context.Context, branch *entity.Branch) error
	GetByCode(ctx context.Context, code string) (*entity.Branch, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Branch, error)
}
