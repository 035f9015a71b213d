// Package memory implementa los puertos del kardex en memoria para tests y modo desarrollo.
//
// Semántica transaccional:
//   - los decrementos condicionales (TryConsume/Restore) se aplican al momento sobre el lote
//     compartido y se deshacen si la transacción no confirma. Hasta entonces las demás
//     transacciones ven el saldo ya descontado (lectura sucia): una salida concurrente puede
//     recibir InsufficientStock por stock que luego vuelve al lote. Postgres no tiene esta
//     ventana; este backend es solo para tests y desarrollo;
//   - movimientos, lotes nuevos, asignaciones y deltas de snapshot quedan en la transacción y
//     se publican juntos en el commit, bajo el mismo lock;
//   - LockForRebuild vuelve exclusiva la transacción hasta su fin.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

type batchID struct {
	branch, product, key string
}

func idOf(b *entity.Batch) batchID {
	return batchID{branch: b.BranchCode, product: b.ProductID, key: b.BatchKey}
}

// Store estado compartido del kardex en memoria.
type Store struct {
	mu          sync.RWMutex
	seq         atomic.Int64
	allocSeq    int64
	movements   map[string]*entity.Movement
	idem        map[string]string
	reversals   map[string]string
	batches     map[batchID]*entity.Batch
	allocations []*entity.Allocation
	snapshots   map[entity.StockKey]*entity.Snapshot

	branches *branchRepo
	products *productRepo
}

// NewStore crea un store vacío.
func NewStore() *Store {
	return &Store{
		movements: make(map[string]*entity.Movement),
		idem:      make(map[string]string),
		reversals: make(map[string]string),
		batches:   make(map[batchID]*entity.Batch),
		snapshots: make(map[entity.StockKey]*entity.Snapshot),
		branches:  &branchRepo{items: make(map[string]*entity.Branch)},
		products:  &productRepo{items: make(map[string]*entity.Product)},
	}
}

// Run ejecuta fn en una transacción en memoria. Si fn falla o ctx expira antes del commit,
// nada queda aplicado.
func (s *Store) Run(ctx context.Context, fn func(
	movRepo repository.MovementRepository,
	batchRepo repository.BatchRepository,
	snapRepo repository.SnapshotRepository,
) error) error {
	t := &tx{s: s}
	if err := fn(&movementRepo{t: t}, &batchRepo{t: t}, &snapshotRepo{t: t}); err != nil {
		t.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		t.rollback()
		return err
	}
	return t.commit()
}

// Movements repositorio de movimientos fuera de transacción.
func (s *Store) Movements() repository.MovementRepository {
	return &movementRepo{t: &tx{s: s, auto: true}}
}

// Batches repositorio de lotes fuera de transacción (cada escritura confirma sola).
func (s *Store) Batches() repository.BatchRepository {
	return &batchRepo{t: &tx{s: s, auto: true}}
}

// Snapshots repositorio de snapshots fuera de transacción.
func (s *Store) Snapshots() repository.SnapshotRepository {
	return &snapshotRepo{t: &tx{s: s, auto: true}}
}

// Branches catálogo de sucursales.
func (s *Store) Branches() repository.BranchRepository { return s.branches }

// Products catálogo de productos.
func (s *Store) Products() repository.ProductRepository { return s.products }

// ────────────────────────────────────────────────────────────────────────────
// Transacción
// ────────────────────────────────────────────────────────────────────────────

type stagedDelta struct {
	key    entity.StockKey
	delta  decimal.Decimal
	cost   *decimal.Decimal
	price  *decimal.Decimal
	at     time.Time
	target *entity.Snapshot
}

type tx struct {
	s         *Store
	auto      bool
	exclusive bool

	movements   []*entity.Movement
	batches     []*entity.Batch
	allocations []*entity.Allocation
	deltas      []*stagedDelta
	replaces    []*entity.Snapshot
	undo        []func()
}

func (t *tx) lock() {
	if !t.exclusive {
		t.s.mu.Lock()
	}
}

func (t *tx) unlock() {
	if !t.exclusive {
		t.s.mu.Unlock()
	}
}

func (t *tx) rlock() {
	if !t.exclusive {
		t.s.mu.RLock()
	}
}

func (t *tx) runlock() {
	if !t.exclusive {
		t.s.mu.RUnlock()
	}
}

// becomeExclusive toma el lock de escritura hasta commit o rollback.
func (t *tx) becomeExclusive() {
	if t.exclusive {
		return
	}
	t.s.mu.Lock()
	t.exclusive = true
}

func (t *tx) reset() {
	t.movements, t.batches, t.allocations, t.deltas, t.replaces, t.undo = nil, nil, nil, nil, nil, nil
}

func (t *tx) rollback() {
	t.lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.reset()
	if t.exclusive {
		t.exclusive = false
		t.s.mu.Unlock()
		return
	}
	t.s.mu.Unlock()
}

// autoCommit confirma al instante cuando el repositorio no está en una transacción.
func (t *tx) autoCommit() error {
	if !t.auto {
		return nil
	}
	return t.commit()
}

func (t *tx) commit() error {
	t.lock()
	if err := t.validateLocked(); err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		t.reset()
		t.release()
		return err
	}
	s := t.s
	for _, m := range t.movements {
		s.movements[m.ID] = m
		if m.IdempotencyKey != "" {
			s.idem[m.IdempotencyKey] = m.ID
		}
		if m.ReversesID != "" {
			s.reversals[m.ReversesID] = m.ID
		}
	}
	for _, b := range t.batches {
		s.batches[idOf(b)] = b
	}
	for _, a := range t.allocations {
		s.allocSeq++
		a.ID = s.allocSeq
		s.allocations = append(s.allocations, a)
	}
	for _, r := range t.replaces {
		s.snapshots[r.Key()] = r
	}
	for _, d := range t.deltas {
		cur, ok := s.snapshots[d.key]
		if !ok {
			cur = &entity.Snapshot{BranchCode: d.key.BranchCode, ProductID: d.key.ProductID}
			s.snapshots[d.key] = cur
		}
		cur.OnHand = cur.OnHand.Add(d.delta)
		if d.cost != nil {
			cur.LastUnitCost = *d.cost
		}
		if d.price != nil {
			cur.LastUnitPrice = *d.price
		}
		cur.UpdatedAt = d.at
		*d.target = *cur
	}
	t.reset()
	t.release()
	return nil
}

func (t *tx) release() {
	if t.exclusive {
		t.exclusive = false
	}
	t.s.mu.Unlock()
}

// validateLocked revisa unicidad contra lo ya confirmado por otras transacciones.
func (t *tx) validateLocked() error {
	s := t.s
	for _, m := range t.movements {
		if m.IdempotencyKey != "" {
			if _, ok := s.idem[m.IdempotencyKey]; ok {
				return domain.ErrDuplicate
			}
		}
		if m.ReversesID != "" {
			if _, ok := s.reversals[m.ReversesID]; ok {
				return domain.ErrDuplicate
			}
		}
	}
	for _, b := range t.batches {
		if _, ok := s.batches[idOf(b)]; ok {
			return domain.ErrDuplicate
		}
	}
	return nil
}

// ────────────────────────────────────────────────────────────────────────────
// Copias (el estado compartido nunca sale del store)
// ────────────────────────────────────────────────────────────────────────────

func cloneMovement(m *entity.Movement) *entity.Movement {
	c := *m
	c.Lines = make([]entity.MovementLine, len(m.Lines))
	for i, l := range m.Lines {
		l.Allocations = append([]entity.AllocationPart(nil), l.Allocations...)
		c.Lines[i] = l
	}
	return &c
}

func cloneBatch(b *entity.Batch) *entity.Batch {
	c := *b
	return &c
}

func cloneSnapshot(s *entity.Snapshot) *entity.Snapshot {
	c := *s
	return &c
}

func sortBySequence(list []*entity.Movement) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Sequence < list[j].Sequence })
}
