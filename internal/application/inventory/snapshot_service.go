package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// SnapshotService lectura del saldo cacheado y su reconstrucción desde el kardex.
type SnapshotService struct {
	txRunner TxRunner
	movRepo  repository.MovementRepository
	snapRepo repository.SnapshotRepository
	locker   Locker
	log      zerolog.Logger
	now      func() time.Time
}

// NewSnapshotService construye el servicio. locker puede ser nil (sin lock distribuido).
func NewSnapshotService(txRunner TxRunner, movRepo repository.MovementRepository, snapRepo repository.SnapshotRepository, locker Locker, log zerolog.Logger) *SnapshotService {
	return &SnapshotService{txRunner: txRunner, movRepo: movRepo, snapRepo: snapRepo, locker: locker, log: log, now: time.Now}
}

// GetSnapshot devuelve el saldo vigente de (sucursal, producto).
func (s *SnapshotService) GetSnapshot(ctx context.Context, branchCode, productID string) (*entity.Snapshot, error) {
	if branchCode == "" || productID == "" {
		return nil, domain.Invalid("", "branch_code y product_id son requeridos")
	}
	snap, err := s.snapRepo.Get(ctx, branchCode, productID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, domain.NotFound("snapshot", branchCode+"/"+productID)
	}
	return snap, nil
}

// ListByBranch saldos de todos los productos de una sucursal.
func (s *SnapshotService) ListByBranch(ctx context.Context, branchCode string) ([]*entity.Snapshot, error) {
	return s.snapRepo.ListByBranch(ctx, branchCode)
}

// Rebuild recalcula el snapshot reproduciendo el kardex completo del par y lo reemplaza.
// Es idempotente: sin movimientos nuevos produce siempre el mismo OnHand.
func (s *SnapshotService) Rebuild(ctx context.Context, branchCode, productID string) (*entity.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "SnapshotService.Rebuild", trace.WithAttributes(
		attribute.String("branch", branchCode),
		attribute.String("product", productID),
	))
	defer span.End()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, "ledger:rebuild:"+branchCode+":"+productID)
		if err != nil {
			return nil, fmt.Errorf("lock rebuild %s/%s: %w", branchCode, productID, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn().Err(err).Str("branch", branchCode).Str("product", productID).Msg("liberar lock de reconstrucción")
			}
		}()
	}

	var rebuilt *entity.Snapshot
	err := s.txRunner.Run(ctx, func(
		movRepo repository.MovementRepository,
		_ repository.BatchRepository,
		snapRepo repository.SnapshotRepository,
	) error {
		if err := snapRepo.LockForRebuild(ctx, branchCode, productID); err != nil {
			return err
		}
		movements, err := movRepo.ListForReplay(ctx, branchCode, productID)
		if err != nil {
			return err
		}
		rebuilt = ReplaySnapshot(branchCode, productID, movements, s.now())
		return snapRepo.Replace(ctx, rebuilt)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.log.Info().
		Str("branch", branchCode).
		Str("product", productID).
		Str("on_hand", rebuilt.OnHand.String()).
		Msg("snapshot reconstruido")
	return rebuilt, nil
}

// RebuildAll reconstruye todos los pares con historia, con concurrencia acotada.
func (s *SnapshotService) RebuildAll(ctx context.Context, concurrency int) (int, error) {
	keys, err := s.movRepo.ListStockKeys(ctx)
	if err != nil {
		return 0, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, k := range keys {
		k := k
		g.Go(func() error {
			_, err := s.Rebuild(gctx, k.BranchCode, k.ProductID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// ReplaySnapshot calcula el snapshot de un par a partir de sus movimientos en orden de secuencia:
// OnHand = Σ entradas - Σ salidas; costo y precio según la misma regla que ApplyDelta.
func ReplaySnapshot(branchCode, productID string, movements []*entity.Movement, at time.Time) *entity.Snapshot {
	snap := &entity.Snapshot{
		BranchCode:    branchCode,
		ProductID:     productID,
		OnHand:        decimal.Zero,
		LastUnitCost:  decimal.Zero,
		LastUnitPrice: decimal.Zero,
		UpdatedAt:     at,
	}
	for _, m := range movements {
		if m.BranchCode != branchCode {
			continue
		}
		for _, l := range m.Lines {
			if l.ProductID != productID {
				continue
			}
			snap.OnHand = snap.OnHand.Add(m.SignedQuantity(l))
			cost, price := priceBookValues(m, l)
			if cost != nil {
				snap.LastUnitCost = *cost
			}
			if price != nil {
				snap.LastUnitPrice = *price
			}
		}
	}
	return snap
}
