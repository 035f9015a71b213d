package memory

import (
	"context"
	"fmt"

	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.BatchRepository = (*batchRepo)(nil)

type batchRepo struct {
	t *tx
}

func (r *batchRepo) staged(id batchID) *entity.Batch {
	for _, b := range r.t.batches {
		if idOf(b) == id {
			return b
		}
	}
	return nil
}

func (r *batchRepo) Create(_ context.Context, b *entity.Batch) error {
	id := idOf(b)
	if r.staged(id) != nil {
		return domain.ErrDuplicate
	}
	r.t.rlock()
	_, exists := r.t.s.batches[id]
	r.t.runlock()
	if exists {
		return domain.ErrDuplicate
	}
	r.t.batches = append(r.t.batches, cloneBatch(b))
	return r.t.autoCommit()
}

func (r *batchRepo) Get(_ context.Context, branchCode, productID, batchKey string) (*entity.Batch, error) {
	id := batchID{branch: branchCode, product: productID, key: batchKey}
	if b := r.staged(id); b != nil {
		return cloneBatch(b), nil
	}
	r.t.rlock()
	defer r.t.runlock()
	b, ok := r.t.s.batches[id]
	if !ok {
		return nil, nil
	}
	return cloneBatch(b), nil
}

func (r *batchRepo) ListByProduct(_ context.Context, branchCode, productID string, includeExhausted bool) ([]*entity.Batch, error) {
	var list []*entity.Batch
	r.t.rlock()
	for id, b := range r.t.s.batches {
		if id.branch != branchCode || id.product != productID {
			continue
		}
		if !includeExhausted && !b.HasCapacity() {
			continue
		}
		list = append(list, cloneBatch(b))
	}
	r.t.runlock()
	for _, b := range r.t.batches {
		if b.BranchCode == branchCode && b.ProductID == productID && (includeExhausted || b.HasCapacity()) {
			list = append(list, cloneBatch(b))
		}
	}
	return list, nil
}

// TryConsume aplica el decremento condicional bajo el lock del store. Sobre un lote ya
// confirmado el cambio es visible para otras transacciones antes del commit y se deshace
// si la transacción no confirma.
func (r *batchRepo) TryConsume(_ context.Context, branchCode, productID, batchKey string, qty decimal.Decimal) (decimal.Decimal, bool, error) {
	id := batchID{branch: branchCode, product: productID, key: batchKey}
	if b := r.staged(id); b != nil {
		if b.RemainingQuantity.LessThan(qty) {
			return b.RemainingQuantity, false, nil
		}
		b.RemainingQuantity = b.RemainingQuantity.Sub(qty)
		return b.RemainingQuantity, true, nil
	}

	r.t.lock()
	b, ok := r.t.s.batches[id]
	if !ok {
		r.t.unlock()
		return decimal.Zero, false, nil
	}
	if b.RemainingQuantity.LessThan(qty) {
		remaining := b.RemainingQuantity
		r.t.unlock()
		return remaining, false, nil
	}
	b.RemainingQuantity = b.RemainingQuantity.Sub(qty)
	remaining := b.RemainingQuantity
	r.t.undo = append(r.t.undo, func() { b.RemainingQuantity = b.RemainingQuantity.Add(qty) })
	r.t.unlock()
	return remaining, true, r.t.autoCommit()
}

func (r *batchRepo) Restore(_ context.Context, branchCode, productID, batchKey string, qty decimal.Decimal) error {
	id := batchID{branch: branchCode, product: productID, key: batchKey}
	r.t.lock()
	b, ok := r.t.s.batches[id]
	if !ok {
		r.t.unlock()
		return domain.NotFound("lote", batchKey)
	}
	if b.RemainingQuantity.Add(qty).GreaterThan(b.OriginalQuantity) {
		r.t.unlock()
		return fmt.Errorf("restituir %s en lote %s supera la cantidad original: %w", qty, batchKey, domain.ErrConflict)
	}
	b.RemainingQuantity = b.RemainingQuantity.Add(qty)
	r.t.undo = append(r.t.undo, func() { b.RemainingQuantity = b.RemainingQuantity.Sub(qty) })
	r.t.unlock()
	return r.t.autoCommit()
}

func (r *batchRepo) AppendAllocation(_ context.Context, a *entity.Allocation) error {
	c := *a
	r.t.allocations = append(r.t.allocations, &c)
	return r.t.autoCommit()
}

func (r *batchRepo) ListAllocations(_ context.Context, branchCode, productID, batchKey string) ([]*entity.Allocation, error) {
	r.t.rlock()
	defer r.t.runlock()
	var out []*entity.Allocation
	for _, a := range r.t.s.allocations {
		if a.BranchCode == branchCode && a.ProductID == productID && a.BatchKey == batchKey {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *batchRepo) ListAllocationsByMovement(_ context.Context, movementID string) ([]*entity.Allocation, error) {
	r.t.rlock()
	defer r.t.runlock()
	var out []*entity.Allocation
	for _, a := range r.t.s.allocations {
		if a.MovementID == movementID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}
