package inventory

import (
	"context"
	"fmt"

	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	dominv "github.com/jhoicas/branch-ledger/internal/domain/inventory"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/jhoicas/branch-ledger/internal/application/inventory")

// AllocatorConfig reglas de negocio del asignador.
type AllocatorConfig struct {
	CostFallbackToPrice bool
	MaxConsumeRetries   int
}

// BatchAllocator asigna salidas contra lotes de entrada según la estrategia (FIFO por defecto)
// usando decrementos condicionales atómicos, sin lock global.
type BatchAllocator struct {
	strategy dominv.SelectionStrategy
	cfg      AllocatorConfig
	log      zerolog.Logger
}

// NewBatchAllocator construye el asignador. strategy nil = FIFO.
func NewBatchAllocator(strategy dominv.SelectionStrategy, cfg AllocatorConfig, log zerolog.Logger) *BatchAllocator {
	if strategy == nil {
		strategy = dominv.FIFO{}
	}
	if cfg.MaxConsumeRetries < 0 {
		cfg.MaxConsumeRetries = 0
	}
	return &BatchAllocator{strategy: strategy, cfg: cfg, log: log}
}

// AllocationRequest una línea de salida a asignar.
type AllocationRequest struct {
	BranchCode   string
	ProductID    string
	BatchKeyHint string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
}

// Allocate toma min(remaining, pendiente) del lote que elige PickFirst, hasta cubrir la demanda.
// El primer tramo es el lote que adoptan las líneas sin clave de lote.
// Si la demanda no se cubre devuelve InsufficientStockError; los decrementos ya hechos se
// descartan con el rollback de la transacción del llamador.
func (a *BatchAllocator) Allocate(ctx context.Context, batches repository.BatchRepository, req AllocationRequest) (*entity.AllocationResult, error) {
	ctx, span := tracer.Start(ctx, "BatchAllocator.Allocate", trace.WithAttributes(
		attribute.String("branch", req.BranchCode),
		attribute.String("product", req.ProductID),
		attribute.String("quantity", req.Quantity.String()),
	))
	defer span.End()

	if !req.Quantity.GreaterThan(decimal.Zero) {
		return nil, domain.Invalid("quantity", "debe ser mayor que cero")
	}

	candidates, err := a.eligible(ctx, batches, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	outstanding := req.Quantity
	var parts []entity.AllocationPart
	for pending := candidates; outstanding.GreaterThan(decimal.Zero); {
		b := dominv.PickFirst(a.strategy, pending)
		if b == nil {
			break
		}
		pending = withoutBatch(pending, b)
		part, err := a.consume(ctx, batches, b, outstanding, req.UnitPrice)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "consume")
			return nil, err
		}
		if part == nil {
			continue
		}
		parts = append(parts, *part)
		outstanding = outstanding.Sub(part.QuantityTaken)
	}

	if outstanding.GreaterThan(decimal.Zero) {
		err := &domain.InsufficientStockError{
			BranchCode: req.BranchCode,
			ProductID:  req.ProductID,
			Requested:  req.Quantity,
			Available:  req.Quantity.Sub(outstanding),
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &entity.AllocationResult{
		BranchCode: req.BranchCode,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		Parts:      parts,
		UnitCost:   dominv.WeightedAverageCost(parts),
	}, nil
}

// eligible con pista: solo ese lote (NotFound si no existe); sin pista: lotes con saldo.
func (a *BatchAllocator) eligible(ctx context.Context, batches repository.BatchRepository, req AllocationRequest) ([]*entity.Batch, error) {
	if req.BatchKeyHint != "" {
		b, err := batches.Get(ctx, req.BranchCode, req.ProductID, req.BatchKeyHint)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, domain.NotFound("lote", req.BatchKeyHint)
		}
		return []*entity.Batch{b}, nil
	}
	return batches.ListByProduct(ctx, req.BranchCode, req.ProductID, false)
}

// consume intenta el decremento condicional sobre un lote. Si otro escritor ganó la carrera
// relee el lote y reintenta con el saldo vigente hasta MaxConsumeRetries veces.
// Devuelve nil, nil si el lote quedó sin saldo.
func (a *BatchAllocator) consume(ctx context.Context, batches repository.BatchRepository, b *entity.Batch, outstanding, unitPrice decimal.Decimal) (*entity.AllocationPart, error) {
	remaining := b.RemainingQuantity
	for attempt := 0; ; attempt++ {
		if !remaining.GreaterThan(decimal.Zero) {
			return nil, nil
		}
		take := decimal.Min(remaining, outstanding)

		after, ok, err := batches.TryConsume(ctx, b.BranchCode, b.ProductID, b.BatchKey, take)
		if err != nil {
			return nil, fmt.Errorf("consume batch %s: %w", b.BatchKey, err)
		}
		if ok {
			return &entity.AllocationPart{
				BatchKey:      b.BatchKey,
				QuantityTaken: take,
				UnitCost:      dominv.EffectiveCost(b.UnitCost, unitPrice, a.cfg.CostFallbackToPrice),
				Exhausted:     after.IsZero(),
			}, nil
		}

		fresh, err := batches.Get(ctx, b.BranchCode, b.ProductID, b.BatchKey)
		if err != nil {
			return nil, err
		}
		if fresh == nil || !fresh.HasCapacity() {
			return nil, nil
		}
		if attempt >= a.cfg.MaxConsumeRetries {
			return nil, fmt.Errorf("lote %s tras %d reintentos: %w", b.BatchKey, attempt, domain.ErrConcurrencyConflict)
		}
		a.log.Debug().
			Str("branch", b.BranchCode).
			Str("product", b.ProductID).
			Str("batch", b.BatchKey).
			Int("attempt", attempt+1).
			Msg("decremento condicional perdido, reintentando con saldo vigente")
		remaining = fresh.RemainingQuantity
	}
}

func withoutBatch(list []*entity.Batch, b *entity.Batch) []*entity.Batch {
	out := make([]*entity.Batch, 0, len(list))
	for _, x := range list {
		if x != b {
			out = append(out, x)
		}
	}
	return out
}
