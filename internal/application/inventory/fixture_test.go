package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	dominv "github.com/jhoicas/branch-ledger/internal/domain/inventory"
	"github.com/jhoicas/branch-ledger/internal/infrastructure/memory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []entity.LedgerEvent
}

func (s *recordingSink) Enqueue(ev entity.LedgerEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func (s *recordingSink) ofType(typ string) []entity.LedgerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.LedgerEvent
	for _, ev := range s.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fakeVoucher struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (v *fakeVoucher) Trigger(_ context.Context, m *entity.Movement) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, m.ID)
	return v.err
}

type fixture struct {
	store    *memory.Store
	record   *RecordMovementUseCase
	reverse  *ReverseMovementUseCase
	transfer *TransferUseCase
	snaps    *SnapshotService
	queries  *LedgerQueries
	events   *recordingSink
	voucher  *fakeVoucher
}

type fixtureOption func(*AllocatorConfig, *dominv.SelectionStrategy)

func withLIFO() fixtureOption {
	return func(_ *AllocatorConfig, s *dominv.SelectionStrategy) { *s = dominv.LIFO{} }
}

func withoutCostFallback() fixtureOption {
	return func(c *AllocatorConfig, _ *dominv.SelectionStrategy) { c.CostFallbackToPrice = false }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	for _, code := range []string{"SUC1", "SUC2"} {
		require.NoError(t, store.Branches().Create(ctx, &entity.Branch{Code: code, Name: code}))
	}
	for _, id := range []string{"P1", "P2"} {
		require.NoError(t, store.Products().Create(ctx, &entity.Product{ID: id, SKU: "SKU-" + id, Name: id}))
	}

	cfg := AllocatorConfig{CostFallbackToPrice: true, MaxConsumeRetries: 3}
	var strategy dominv.SelectionStrategy = dominv.FIFO{}
	for _, o := range opts {
		o(&cfg, &strategy)
	}
	log := zerolog.Nop()
	allocator := NewBatchAllocator(strategy, cfg, log)
	seq := memory.NewSequencer()
	events := &recordingSink{}
	voucher := &fakeVoucher{}
	effects := SideEffectsConfig{
		Events:         events,
		Voucher:        voucher,
		VoucherReasons: []string{entity.ReasonSale, entity.ReasonPOSSale},
		VoucherTimeout: time.Second,
	}

	return &fixture{
		store:    store,
		record:   NewRecordMovementUseCase(store, store.Movements(), store.Branches(), store.Products(), allocator, seq, effects, log),
		reverse:  NewReverseMovementUseCase(store, store.Movements(), seq, effects, log),
		transfer: NewTransferUseCase(store, store.Branches(), store.Products(), allocator, seq, effects, log),
		snaps:    NewSnapshotService(store, store.Movements(), store.Snapshots(), memory.NewLocker(), log),
		queries:  NewLedgerQueries(store.Movements(), store.Batches()),
		events:   events,
		voucher:  voucher,
	}
}

// receive registra una entrada de un lote en SUC1.
func (f *fixture) receive(t *testing.T, product, key, qty, cost string, at time.Time) *entity.Movement {
	t.Helper()
	res, err := f.record.Record(context.Background(), RecordMovementInput{
		BranchCode: "SUC1",
		Direction:  entity.DirectionIN,
		Reason:     entity.ReasonPurchase,
		OccurredAt: at,
		Lines:      []MovementLineInput{{ProductID: product, BatchKey: key, Quantity: dec(qty), UnitCost: dec(cost)}},
	})
	require.NoError(t, err)
	return res.Movement
}

// sell registra una salida de venta en SUC1.
func (f *fixture) sell(product, qty, price string) (*RecordMovementResult, error) {
	return f.record.Record(context.Background(), RecordMovementInput{
		BranchCode: "SUC1",
		Direction:  entity.DirectionOUT,
		Reason:     entity.ReasonSale,
		Lines:      []MovementLineInput{{ProductID: product, Quantity: dec(qty), UnitPrice: dec(price)}},
	})
}

func (f *fixture) batch(t *testing.T, branch, product, key string) *entity.Batch {
	t.Helper()
	b, err := f.store.Batches().Get(context.Background(), branch, product, key)
	require.NoError(t, err)
	require.NotNil(t, b, "lote %s", key)
	return b
}

func (f *fixture) onHand(t *testing.T, branch, product string) decimal.Decimal {
	t.Helper()
	s, err := f.snaps.GetSnapshot(context.Background(), branch, product)
	require.NoError(t, err)
	return s.OnHand
}

// remainingTotal suma el saldo de todos los lotes del par.
func (f *fixture) remainingTotal(t *testing.T, branch, product string) decimal.Decimal {
	t.Helper()
	list, err := f.store.Batches().ListByProduct(context.Background(), branch, product, true)
	require.NoError(t, err)
	total := decimal.Zero
	for _, b := range list {
		total = total.Add(b.RemainingQuantity)
	}
	return total
}

var errVoucherDown = errors.New("contabilidad no disponible")
