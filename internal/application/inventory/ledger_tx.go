package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

// ledgerTx agrupa los repositorios atados a una transacción y las escrituras del kardex.
type ledgerTx struct {
	movs      repository.MovementRepository
	batches   repository.BatchRepository
	snaps     repository.SnapshotRepository
	allocator *BatchAllocator
	now       time.Time
}

// exhaustedBatch lote que llegó a cero dentro de la transacción.
type exhaustedBatch struct {
	BranchCode string
	ProductID  string
	BatchKey   string
}

// writeOutcome lo que la transacción deja para los efectos post-commit.
type writeOutcome struct {
	Snapshots []*entity.Snapshot
	Exhausted []exhaustedBatch
}

func (o *writeOutcome) merge(other *writeOutcome) {
	o.Snapshots = append(o.Snapshots, other.Snapshots...)
	o.Exhausted = append(o.Exhausted, other.Exhausted...)
}

// appendIN inserta el movimiento de entrada y crea un lote por línea (remaining = original).
func (t *ledgerTx) appendIN(ctx context.Context, m *entity.Movement) (*writeOutcome, error) {
	if err := t.movs.Create(ctx, m); err != nil {
		return nil, err
	}
	for _, l := range m.Lines {
		b := &entity.Batch{
			BranchCode:        m.BranchCode,
			ProductID:         l.ProductID,
			BatchKey:          l.BatchKey,
			MovementID:        m.ID,
			Sequence:          m.Sequence,
			OccurredAt:        m.OccurredAt,
			OriginalQuantity:  l.Quantity,
			RemainingQuantity: l.Quantity,
			UnitCost:          l.UnitCost,
			CreatedAt:         t.now,
			UpdatedAt:         t.now,
		}
		if err := t.batches.Create(ctx, b); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return nil, fmt.Errorf("lote %s del producto %s ya existe en %s: %w", l.BatchKey, l.ProductID, m.BranchCode, domain.ErrDuplicate)
			}
			return nil, err
		}
	}
	return t.applySnapshots(ctx, m)
}

// appendOUT asigna cada línea contra los lotes, fija su costo promedio ponderado, inserta el
// movimiento y registra una asignación por tramo consumido.
func (t *ledgerTx) appendOUT(ctx context.Context, m *entity.Movement) (*writeOutcome, error) {
	out := &writeOutcome{}
	for i := range m.Lines {
		l := &m.Lines[i]
		res, err := t.allocator.Allocate(ctx, t.batches, AllocationRequest{
			BranchCode:   m.BranchCode,
			ProductID:    l.ProductID,
			BatchKeyHint: l.BatchKey,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
		})
		if err != nil {
			var short *domain.InsufficientStockError
			if errors.As(err, &short) {
				return nil, productShortfall(m, i, short)
			}
			return nil, err
		}
		l.UnitCost = res.UnitCost
		l.Allocations = res.Parts
		if l.BatchKey == "" {
			l.BatchKey = res.BatchKey()
		}
		for _, p := range res.Parts {
			if p.Exhausted {
				out.Exhausted = append(out.Exhausted, exhaustedBatch{BranchCode: m.BranchCode, ProductID: l.ProductID, BatchKey: p.BatchKey})
			}
		}
	}

	if err := t.movs.Create(ctx, m); err != nil {
		return nil, err
	}
	if err := t.appendAllocations(ctx, m, decimal.NewFromInt(1)); err != nil {
		return nil, err
	}

	snaps, err := t.applySnapshots(ctx, m)
	if err != nil {
		return nil, err
	}
	out.merge(snaps)
	return out, nil
}

// appendAllocations registra los tramos de cada línea; sign -1 registra restituciones.
func (t *ledgerTx) appendAllocations(ctx context.Context, m *entity.Movement, sign decimal.Decimal) error {
	for _, l := range m.Lines {
		for _, p := range l.Allocations {
			a := &entity.Allocation{
				MovementID: m.ID,
				LineNo:     l.LineNo,
				BranchCode: m.BranchCode,
				ProductID:  l.ProductID,
				BatchKey:   p.BatchKey,
				Quantity:   p.QuantityTaken.Mul(sign),
				UnitCost:   p.UnitCost,
				CreatedAt:  t.now,
			}
			if err := t.batches.AppendAllocation(ctx, a); err != nil {
				return err
			}
		}
	}
	return nil
}

// applySnapshots llama ApplyDelta una sola vez por (sucursal, producto) tocado por el movimiento.
func (t *ledgerTx) applySnapshots(ctx context.Context, m *entity.Movement) (*writeOutcome, error) {
	deltas := aggregateDeltas(m)
	out := &writeOutcome{Snapshots: make([]*entity.Snapshot, 0, len(deltas))}
	for _, d := range deltas {
		s, err := t.snaps.ApplyDelta(ctx, m.BranchCode, d.ProductID, d.Delta, d.UnitCost, d.UnitPrice, t.now)
		if err != nil {
			return nil, fmt.Errorf("apply snapshot delta %s/%s: %w", m.BranchCode, d.ProductID, err)
		}
		out.Snapshots = append(out.Snapshots, s)
	}
	return out, nil
}

// productDelta cambio neto y valores de lista de precios de un producto dentro de un movimiento.
type productDelta struct {
	ProductID string
	Delta     decimal.Decimal
	UnitCost  *decimal.Decimal
	UnitPrice *decimal.Decimal
}

// aggregateDeltas agrupa las líneas por producto conservando el orden de aparición.
// Costo y precio quedan con los de la última línea; los reversos no tocan la lista de precios
// y un precio cero no sobrescribe el vigente.
func aggregateDeltas(m *entity.Movement) []productDelta {
	var order []string
	byProduct := make(map[string]*productDelta)
	for _, l := range m.Lines {
		d, ok := byProduct[l.ProductID]
		if !ok {
			d = &productDelta{ProductID: l.ProductID, Delta: decimal.Zero}
			byProduct[l.ProductID] = d
			order = append(order, l.ProductID)
		}
		d.Delta = d.Delta.Add(m.SignedQuantity(l))
		cost, price := priceBookValues(m, l)
		if cost != nil {
			d.UnitCost = cost
		}
		if price != nil {
			d.UnitPrice = price
		}
	}
	out := make([]productDelta, 0, len(order))
	for _, p := range order {
		out = append(out, *byProduct[p])
	}
	return out
}

// priceBookValues costo y precio que una línea deja en el snapshot (nil = no sobrescribe).
func priceBookValues(m *entity.Movement, l entity.MovementLine) (cost, price *decimal.Decimal) {
	if m.IsReversal() {
		return nil, nil
	}
	c := l.UnitCost
	cost = &c
	if l.UnitPrice.GreaterThan(decimal.Zero) {
		p := l.UnitPrice
		price = &p
	}
	return cost, price
}

// productShortfall expresa el faltante de la línea i en totales del producto dentro del
// movimiento: lo solicitado por todas sus líneas y lo que las líneas anteriores ya tomaron
// más lo que alcanzó la línea i.
func productShortfall(m *entity.Movement, i int, short *domain.InsufficientStockError) *domain.InsufficientStockError {
	product := m.Lines[i].ProductID
	requested, available := decimal.Zero, short.Available
	for j, l := range m.Lines {
		if l.ProductID != product {
			continue
		}
		requested = requested.Add(l.Quantity)
		if j < i {
			for _, p := range l.Allocations {
				available = available.Add(p.QuantityTaken)
			}
		}
	}
	return &domain.InsufficientStockError{
		BranchCode: short.BranchCode,
		ProductID:  product,
		Requested:  requested,
		Available:  available,
	}
}
