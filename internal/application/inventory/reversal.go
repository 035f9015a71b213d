package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReverseMovementUseCase reverso administrativo. El kardex no admite borrados: un movimiento
// se anula agregando otro en sentido contrario que restituye lotes y snapshot.
type ReverseMovementUseCase struct {
	txRunner  TxRunner
	movRepo   repository.MovementRepository
	sequencer DocumentSequencer
	effects   *sideEffects
	log       zerolog.Logger
	now       func() time.Time
}

// NewReverseMovementUseCase construye el caso de uso.
func NewReverseMovementUseCase(txRunner TxRunner, movRepo repository.MovementRepository, sequencer DocumentSequencer, effects SideEffectsConfig, log zerolog.Logger) *ReverseMovementUseCase {
	return &ReverseMovementUseCase{
		txRunner:  txRunner,
		movRepo:   movRepo,
		sequencer: sequencer,
		effects:   newSideEffects(effects, log),
		log:       log,
		now:       time.Now,
	}
}

// ReverseInput datos del reverso.
type ReverseInput struct {
	MovementID  string
	PerformedBy string
	Note        string
}

// Reverse compensa el movimiento indicado.
//   - Salida: entrada de reverso que devuelve cada tramo a su lote (asignación negativa).
//   - Entrada: salida de reverso que consume los lotes completos; solo si siguen OPEN.
func (uc *ReverseMovementUseCase) Reverse(ctx context.Context, in ReverseInput) (*RecordMovementResult, error) {
	ctx, span := tracer.Start(ctx, "LedgerWriter.Reverse", trace.WithAttributes(attribute.String("movement_id", in.MovementID)))
	defer span.End()

	if in.MovementID == "" {
		return nil, domain.Invalid("movement_id", "es requerido")
	}
	orig, err := uc.movRepo.GetByID(ctx, in.MovementID)
	if err != nil {
		return nil, err
	}
	if orig == nil {
		return nil, domain.NotFound("movimiento", in.MovementID)
	}
	if orig.IsReversal() {
		return nil, domain.Invalid("movement_id", "un reverso no se puede reversar")
	}
	// Un tramo de traslado por sí solo descuadra las dos sucursales.
	if orig.Reason == entity.ReasonTransferOut || orig.Reason == entity.ReasonTransferIn {
		return nil, fmt.Errorf("movimiento %s es parte del traslado %s: %w", orig.ID, orig.DocumentNumber, domain.ErrConflict)
	}
	if prev, err := uc.movRepo.GetReversalOf(ctx, orig.ID); err != nil {
		return nil, err
	} else if prev != nil {
		return nil, fmt.Errorf("movimiento %s ya reversado por %s: %w", orig.ID, prev.ID, domain.ErrConflict)
	}

	now := uc.now()
	rev := buildReversal(orig, in, now)
	var warnings []string
	if num, err := nextDocumentNumber(ctx, uc.sequencer, orig.BranchCode, "REV"); err != nil {
		uc.log.Warn().Err(err).Msg("número de documento no asignado")
		warnings = append(warnings, "número de documento no asignado")
	} else {
		rev.DocumentNumber = num
	}

	var outcome *writeOutcome
	err = uc.txRunner.Run(ctx, func(
		movRepo repository.MovementRepository,
		batchRepo repository.BatchRepository,
		snapRepo repository.SnapshotRepository,
	) error {
		t := &ledgerTx{movs: movRepo, batches: batchRepo, snaps: snapRepo, now: now}
		var err error
		if orig.IsIN() {
			outcome, err = uc.reverseIN(ctx, t, orig, rev)
		} else {
			outcome, err = uc.reverseOUT(ctx, t, orig, rev)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, fmt.Errorf("movimiento %s ya reversado: %w", orig.ID, domain.ErrConflict)
		}
		span.RecordError(err)
		return nil, err
	}

	uc.log.Info().
		Str("movement_id", orig.ID).
		Str("reversal_id", rev.ID).
		Str("performed_by", in.PerformedBy).
		Str("note", in.Note).
		Msg("movimiento reversado")

	uc.effects.emit(rev, outcome.Exhausted)
	return &RecordMovementResult{Movement: rev, Snapshots: outcome.Snapshots, Warnings: warnings}, nil
}

func buildReversal(orig *entity.Movement, in ReverseInput, now time.Time) *entity.Movement {
	dir := entity.DirectionIN
	if orig.IsIN() {
		dir = entity.DirectionOUT
	}
	rev := &entity.Movement{
		ID:          uuid.New().String(),
		BranchCode:  orig.BranchCode,
		Direction:   dir,
		Reason:      entity.ReasonReversal,
		OccurredAt:  now.UTC(),
		PerformedBy: in.PerformedBy,
		ReversesID:  orig.ID,
		CreatedAt:   now,
		Lines:       make([]entity.MovementLine, 0, len(orig.Lines)),
	}
	for _, l := range orig.Lines {
		rev.Lines = append(rev.Lines, entity.MovementLine{
			LineNo:      l.LineNo,
			ProductID:   l.ProductID,
			BatchKey:    l.BatchKey,
			Quantity:    l.Quantity,
			UnitCost:    l.UnitCost,
			UnitPrice:   l.UnitPrice,
			Allocations: append([]entity.AllocationPart(nil), l.Allocations...),
		})
	}
	return rev
}

// reverseOUT restituye cada tramo consumido por la salida original.
func (uc *ReverseMovementUseCase) reverseOUT(ctx context.Context, t *ledgerTx, orig, rev *entity.Movement) (*writeOutcome, error) {
	if err := t.movs.Create(ctx, rev); err != nil {
		return nil, err
	}
	for _, l := range rev.Lines {
		for _, p := range l.Allocations {
			if err := t.batches.Restore(ctx, orig.BranchCode, l.ProductID, p.BatchKey, p.QuantityTaken); err != nil {
				return nil, err
			}
		}
	}
	if err := t.appendAllocations(ctx, rev, decimal.NewFromInt(-1)); err != nil {
		return nil, err
	}
	return t.applySnapshots(ctx, rev)
}

// reverseIN consume por completo los lotes creados por la entrada original.
func (uc *ReverseMovementUseCase) reverseIN(ctx context.Context, t *ledgerTx, orig, rev *entity.Movement) (*writeOutcome, error) {
	out := &writeOutcome{}
	for i := range rev.Lines {
		l := &rev.Lines[i]
		b, err := t.batches.Get(ctx, orig.BranchCode, l.ProductID, l.BatchKey)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, domain.NotFound("lote", l.BatchKey)
		}
		if b.State() != entity.BatchStateOpen {
			return nil, fmt.Errorf("lote %s ya tiene consumos: %w", b.BatchKey, domain.ErrConflict)
		}
		_, ok, err := t.batches.TryConsume(ctx, b.BranchCode, b.ProductID, b.BatchKey, b.OriginalQuantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("lote %s consumido concurrentemente: %w", b.BatchKey, domain.ErrConflict)
		}
		l.Allocations = []entity.AllocationPart{{BatchKey: b.BatchKey, QuantityTaken: b.OriginalQuantity, UnitCost: b.UnitCost, Exhausted: true}}
		out.Exhausted = append(out.Exhausted, exhaustedBatch{BranchCode: b.BranchCode, ProductID: b.ProductID, BatchKey: b.BatchKey})
	}
	if err := t.movs.Create(ctx, rev); err != nil {
		return nil, err
	}
	if err := t.appendAllocations(ctx, rev, decimal.NewFromInt(1)); err != nil {
		return nil, err
	}
	snaps, err := t.applySnapshots(ctx, rev)
	if err != nil {
		return nil, err
	}
	out.merge(snaps)
	return out, nil
}
