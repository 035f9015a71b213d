package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
)

var (
	_ repository.BranchRepository  = (*branchRepo)(nil)
	_ repository.ProductRepository = (*productRepo)(nil)
)

type branchRepo struct {
	mu    sync.RWMutex
	items map[string]*entity.Branch
}

func (r *branchRepo) Create(_ context.Context, b *entity.Branch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[b.Code]; ok {
		return domain.ErrDuplicate
	}
	c := *b
	r.items[b.Code] = &c
	return nil
}

func (r *branchRepo) GetByCode(_ context.Context, code string) (*entity.Branch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[code]
	if !ok {
		return nil, nil
	}
	c := *b
	return &c, nil
}

func (r *branchRepo) List(_ context.Context, limit, offset int) ([]*entity.Branch, error) {
	r.mu.RLock()
	list := make([]*entity.Branch, 0, len(r.items))
	for _, b := range r.items {
		c := *b
		list = append(list, &c)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return page(list, limit, offset), nil
}

type productRepo struct {
	mu    sync.RWMutex
	items map[string]*entity.Product
}

func (r *productRepo) Create(_ context.Context, p *entity.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[p.ID]; ok {
		return domain.ErrDuplicate
	}
	for _, existing := range r.items {
		if existing.SKU == p.SKU {
			return domain.ErrDuplicate
		}
	}
	c := *p
	r.items[p.ID] = &c
	return nil
}

func (r *productRepo) GetByID(_ context.Context, id string) (*entity.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r *productRepo) GetBySKU(_ context.Context, sku string) (*entity.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.items {
		if p.SKU == sku {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (r *productRepo) List(_ context.Context, limit, offset int) ([]*entity.Product, error) {
	r.mu.RLock()
	list := make([]*entity.Product, 0, len(r.items))
	for _, p := range r.items {
		c := *p
		list = append(list, &c)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].SKU < list[j].SKU })
	return page(list, limit, offset), nil
}

func page[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return []T{}
	}
	list = list[offset:]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}
