package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.SnapshotRepository = (*snapshotRepo)(nil)

type snapshotRepo struct {
	t *tx
}

func (r *snapshotRepo) Get(_ context.Context, branchCode, productID string) (*entity.Snapshot, error) {
	r.t.rlock()
	defer r.t.runlock()
	s, ok := r.t.s.snapshots[entity.StockKey{BranchCode: branchCode, ProductID: productID}]
	if !ok {
		return nil, nil
	}
	return cloneSnapshot(s), nil
}

// ApplyDelta queda pendiente hasta el commit; el snapshot devuelto se completa con el valor
// confirmado al publicar la transacción.
func (r *snapshotRepo) ApplyDelta(_ context.Context, branchCode, productID string, delta decimal.Decimal, unitCost, unitPrice *decimal.Decimal, at time.Time) (*entity.Snapshot, error) {
	key := entity.StockKey{BranchCode: branchCode, ProductID: productID}

	preview := &entity.Snapshot{BranchCode: branchCode, ProductID: productID}
	r.t.rlock()
	if cur, ok := r.t.s.snapshots[key]; ok {
		*preview = *cur
	}
	r.t.runlock()
	for _, d := range r.t.deltas {
		if d.key == key {
			preview.OnHand = preview.OnHand.Add(d.delta)
		}
	}
	preview.OnHand = preview.OnHand.Add(delta)
	if unitCost != nil {
		preview.LastUnitCost = *unitCost
	}
	if unitPrice != nil {
		preview.LastUnitPrice = *unitPrice
	}
	preview.UpdatedAt = at

	r.t.deltas = append(r.t.deltas, &stagedDelta{key: key, delta: delta, cost: unitCost, price: unitPrice, at: at, target: preview})
	if err := r.t.autoCommit(); err != nil {
		return nil, err
	}
	return preview, nil
}

// LockForRebuild vuelve exclusiva la transacción: ningún commit concurrente se intercala
// entre la lectura del kardex y el reemplazo del snapshot.
func (r *snapshotRepo) LockForRebuild(_ context.Context, _, _ string) error {
	if r.t.auto {
		return nil
	}
	r.t.becomeExclusive()
	return nil
}

func (r *snapshotRepo) Replace(_ context.Context, s *entity.Snapshot) error {
	r.t.replaces = append(r.t.replaces, cloneSnapshot(s))
	return r.t.autoCommit()
}

func (r *snapshotRepo) ListByBranch(_ context.Context, branchCode string) ([]*entity.Snapshot, error) {
	r.t.rlock()
	var out []*entity.Snapshot
	for k, s := range r.t.s.snapshots {
		if k.BranchCode == branchCode {
			out = append(out, cloneSnapshot(s))
		}
	}
	r.t.runlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
