package memory

import (
	"context"
	"sort"

	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
)

var _ repository.MovementRepository = (*movementRepo)(nil)

type movementRepo struct {
	t *tx
}

func (r *movementRepo) Create(_ context.Context, m *entity.Movement) error {
	t := r.t
	t.rlock()
	dup := false
	if m.IdempotencyKey != "" {
		_, dup = t.s.idem[m.IdempotencyKey]
	}
	if m.ReversesID != "" {
		if _, ok := t.s.reversals[m.ReversesID]; ok {
			dup = true
		}
	}
	t.runlock()
	if dup {
		return domain.ErrDuplicate
	}
	m.Sequence = t.s.seq.Add(1)
	t.movements = append(t.movements, cloneMovement(m))
	return t.autoCommit()
}

func (r *movementRepo) GetByID(_ context.Context, id string) (*entity.Movement, error) {
	for _, m := range r.t.movements {
		if m.ID == id {
			return cloneMovement(m), nil
		}
	}
	r.t.rlock()
	defer r.t.runlock()
	m, ok := r.t.s.movements[id]
	if !ok {
		return nil, nil
	}
	return cloneMovement(m), nil
}

func (r *movementRepo) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Movement, error) {
	r.t.rlock()
	id, ok := r.t.s.idem[key]
	r.t.runlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *movementRepo) GetReversalOf(ctx context.Context, id string) (*entity.Movement, error) {
	r.t.rlock()
	revID, ok := r.t.s.reversals[id]
	r.t.runlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, revID)
}

func (r *movementRepo) ListByBranch(_ context.Context, branchCode string, f repository.MovementFilter) ([]*entity.Movement, error) {
	r.t.rlock()
	var list []*entity.Movement
	for _, m := range r.t.s.movements {
		if m.BranchCode != branchCode {
			continue
		}
		if f.From != nil && m.OccurredAt.Before(*f.From) {
			continue
		}
		if f.To != nil && m.OccurredAt.After(*f.To) {
			continue
		}
		if f.ProductID != "" && !hasProduct(m, f.ProductID) {
			continue
		}
		list = append(list, cloneMovement(m))
	}
	r.t.runlock()

	sort.SliceStable(list, func(i, j int) bool { return list[i].Sequence > list[j].Sequence })
	if f.Offset >= len(list) {
		return []*entity.Movement{}, nil
	}
	list = list[f.Offset:]
	if f.Limit > 0 && len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, nil
}

func (r *movementRepo) ListForReplay(_ context.Context, branchCode, productID string) ([]*entity.Movement, error) {
	r.t.rlock()
	var list []*entity.Movement
	for _, m := range r.t.s.movements {
		if m.BranchCode != branchCode || !hasProduct(m, productID) {
			continue
		}
		c := cloneMovement(m)
		lines := c.Lines[:0]
		for _, l := range c.Lines {
			if l.ProductID == productID {
				lines = append(lines, l)
			}
		}
		c.Lines = lines
		list = append(list, c)
	}
	r.t.runlock()
	sortBySequence(list)
	return list, nil
}

func (r *movementRepo) ListStockKeys(_ context.Context) ([]entity.StockKey, error) {
	r.t.rlock()
	seen := make(map[entity.StockKey]struct{})
	var keys []entity.StockKey
	for _, m := range r.t.s.movements {
		for _, l := range m.Lines {
			k := entity.StockKey{BranchCode: m.BranchCode, ProductID: l.ProductID}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	r.t.runlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].BranchCode != keys[j].BranchCode {
			return keys[i].BranchCode < keys[j].BranchCode
		}
		return keys[i].ProductID < keys[j].ProductID
	})
	return keys, nil
}

func hasProduct(m *entity.Movement, productID string) bool {
	for _, l := range m.Lines {
		if l.ProductID == productID {
			return true
		}
	}
	return false
}
