package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func seedBatch(t *testing.T, s *Store, key, qty string) {
	t.Helper()
	err := s.Batches().Create(context.Background(), &entity.Batch{
		BranchCode: "SUC1", ProductID: "P1", BatchKey: key,
		OriginalQuantity: dec(qty), RemainingQuantity: dec(qty), UnitCost: dec("10"),
	})
	require.NoError(t, err)
}

func TestTryConsume_VisibleAntesDelCommit(t *testing.T) {
	s := NewStore()
	seedBatch(t, s, "B1", "5")
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Run(ctx, func(_ repository.MovementRepository, batches repository.BatchRepository, _ repository.SnapshotRepository) error {
		_, ok, err := batches.TryConsume(ctx, "SUC1", "P1", "B1", dec("5"))
		require.NoError(t, err)
		require.True(t, ok)

		// otra transacción ve el lote agotado y pierde el decremento
		_, ok, err = s.Batches().TryConsume(ctx, "SUC1", "P1", "B1", dec("1"))
		require.NoError(t, err)
		assert.False(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := s.Batches().Get(ctx, "SUC1", "P1", "B1")
	require.NoError(t, err)
	assert.True(t, b.RemainingQuantity.Equal(dec("5")))
}

func TestRun_RollbackDeshaceTodo(t *testing.T) {
	s := NewStore()
	seedBatch(t, s, "B1", "5")
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Run(ctx, func(movs repository.MovementRepository, batches repository.BatchRepository, snaps repository.SnapshotRepository) error {
		require.NoError(t, movs.Create(ctx, &entity.Movement{ID: "m1", BranchCode: "SUC1", Direction: entity.DirectionOUT}))
		_, ok, err := batches.TryConsume(ctx, "SUC1", "P1", "B1", dec("3"))
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, batches.AppendAllocation(ctx, &entity.Allocation{MovementID: "m1", BranchCode: "SUC1", ProductID: "P1", BatchKey: "B1", Quantity: dec("3")}))
		_, err = snaps.ApplyDelta(ctx, "SUC1", "P1", dec("-3"), nil, nil, time.Now())
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := s.Batches().Get(ctx, "SUC1", "P1", "B1")
	require.NoError(t, err)
	assert.True(t, b.RemainingQuantity.Equal(dec("5")))
	m, err := s.Movements().GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, m)
	allocs, err := s.Batches().ListAllocationsByMovement(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, allocs)
	snap, err := s.Snapshots().Get(ctx, "SUC1", "P1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRun_CommitPublicaSnapshot(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	var got *entity.Snapshot
	cost := dec("7")

	err := s.Run(ctx, func(_ repository.MovementRepository, _ repository.BatchRepository, snaps repository.SnapshotRepository) error {
		var err error
		got, err = snaps.ApplyDelta(ctx, "SUC1", "P1", dec("4"), &cost, nil, time.Now())
		return err
	})
	require.NoError(t, err)
	assert.True(t, got.OnHand.Equal(dec("4")))
	assert.True(t, got.LastUnitCost.Equal(cost))

	stored, err := s.Snapshots().Get(ctx, "SUC1", "P1")
	require.NoError(t, err)
	assert.True(t, stored.OnHand.Equal(dec("4")))
}

func TestTryConsume_Condicional(t *testing.T) {
	s := NewStore()
	seedBatch(t, s, "B1", "5")
	ctx := context.Background()

	remaining, ok, err := s.Batches().TryConsume(ctx, "SUC1", "P1", "B1", dec("6"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, remaining.Equal(dec("5")))

	remaining, ok, err = s.Batches().TryConsume(ctx, "SUC1", "P1", "B1", dec("5"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, remaining.IsZero())

	_, ok, err = s.Batches().TryConsume(ctx, "SUC1", "P1", "NOPE", dec("1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTryConsume_Concurrente(t *testing.T) {
	s := NewStore()
	seedBatch(t, s, "B1", "10")
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Batches().TryConsume(ctx, "SUC1", "P1", "B1", dec("1"))
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, wins)
	b, _ := s.Batches().Get(ctx, "SUC1", "P1", "B1")
	assert.True(t, b.RemainingQuantity.IsZero())
}

func TestRestore_NoSuperaOriginal(t *testing.T) {
	s := NewStore()
	seedBatch(t, s, "B1", "5")
	ctx := context.Background()

	err := s.Batches().Restore(ctx, "SUC1", "P1", "B1", dec("1"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = s.Batches().Restore(ctx, "SUC1", "P1", "NOPE", dec("1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMovementCreate_ClavesUnicas(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	movs := s.Movements()

	require.NoError(t, movs.Create(ctx, &entity.Movement{ID: "m1", BranchCode: "SUC1", IdempotencyKey: "k1"}))
	err := movs.Create(ctx, &entity.Movement{ID: "m2", BranchCode: "SUC1", IdempotencyKey: "k1"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	require.NoError(t, movs.Create(ctx, &entity.Movement{ID: "r1", BranchCode: "SUC1", ReversesID: "m1"}))
	err = movs.Create(ctx, &entity.Movement{ID: "r2", BranchCode: "SUC1", ReversesID: "m1"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	rev, err := movs.GetReversalOf(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "r1", rev.ID)
}

func TestMovementCreate_SecuenciaMonotona(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := &entity.Movement{ID: "a", BranchCode: "SUC1"}
	b := &entity.Movement{ID: "b", BranchCode: "SUC1"}
	require.NoError(t, s.Movements().Create(ctx, a))
	require.NoError(t, s.Movements().Create(ctx, b))
	assert.Greater(t, b.Sequence, a.Sequence)

	list, err := s.Movements().ListByBranch(ctx, "SUC1", repository.MovementFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
}

func TestLockForRebuild_BloqueaEscritores(t *testing.T) {
	s := NewStore()
	seedBatch(t, s, "B1", "5")
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = s.Run(ctx, func(_ repository.MovementRepository, _ repository.BatchRepository, snaps repository.SnapshotRepository) error {
			require.NoError(t, snaps.LockForRebuild(ctx, "SUC1", "P1"))
			close(locked)
			<-release
			return snaps.Replace(ctx, &entity.Snapshot{BranchCode: "SUC1", ProductID: "P1", OnHand: dec("5")})
		})
	}()
	<-locked

	go func() {
		_, _, _ = s.Batches().TryConsume(ctx, "SUC1", "P1", "B1", dec("1"))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("el decremento no debe avanzar mientras la reconstrucción tiene el lock")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-done

	b, _ := s.Batches().Get(ctx, "SUC1", "P1", "B1")
	assert.True(t, b.RemainingQuantity.Equal(dec("4")))
	snap, _ := s.Snapshots().Get(ctx, "SUC1", "P1")
	assert.True(t, snap.OnHand.Equal(dec("5")))
}

func TestListByProduct_FiltraAgotados(t *testing.T) {
	s := NewStore()
	seedBatch(t, s, "B1", "5")
	seedBatch(t, s, "B2", "3")
	ctx := context.Background()
	_, ok, err := s.Batches().TryConsume(ctx, "SUC1", "P1", "B1", dec("5"))
	require.NoError(t, err)
	require.True(t, ok)

	open, err := s.Batches().ListByProduct(ctx, "SUC1", "P1", false)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "B2", open[0].BatchKey)

	all, err := s.Batches().ListByProduct(ctx, "SUC1", "P1", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCatalog(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Branches().Create(ctx, &entity.Branch{Code: "SUC1", Name: "Centro"}))
	assert.ErrorIs(t, s.Branches().Create(ctx, &entity.Branch{Code: "SUC1"}), domain.ErrDuplicate)

	require.NoError(t, s.Products().Create(ctx, &entity.Product{ID: "p1", SKU: "A-1"}))
	assert.ErrorIs(t, s.Products().Create(ctx, &entity.Product{ID: "p2", SKU: "A-1"}), domain.ErrDuplicate)

	p, err := s.Products().GetBySKU(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)

	list, err := s.Branches().List(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSequencer(t *testing.T) {
	seq := NewSequencer()
	ctx := context.Background()
	a, _ := seq.Next(ctx, "SUC1", "OUT")
	b, _ := seq.Next(ctx, "SUC1", "OUT")
	c, _ := seq.Next(ctx, "SUC2", "OUT")
	assert.Equal(t, "OUT-SUC1-000001", a)
	assert.Equal(t, "OUT-SUC1-000002", b)
	assert.Equal(t, "OUT-SUC2-000001", c)
}

func TestLocker_EsperaYCancela(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()
	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(cctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx))
	unlock2, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}
