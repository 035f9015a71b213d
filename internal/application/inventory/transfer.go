package inventory

import (
	"context"
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

// TransferUseCase traslado entre sucursales: salida FIFO en origen y entrada en destino
// en la misma transacción, conservando el costo de cada lote de origen.
type TransferUseCase struct {
	txRunner    TxRunner
	branchRepo  repository.BranchRepository
	productRepo repository.ProductRepository
	allocator   *BatchAllocator
	sequencer   DocumentSequencer
	effects     *sideEffects
	log         zerolog.Logger
	now         func() time.Time
}

// NewTransferUseCase construye el caso de uso.
func NewTransferUseCase(
	txRunner TxRunner,
	branchRepo repository.BranchRepository,
	productRepo repository.ProductRepository,
	allocator *BatchAllocator,
	sequencer DocumentSequencer,
	effects SideEffectsConfig,
	log zerolog.Logger,
) *TransferUseCase {
	return &TransferUseCase{
		txRunner:    txRunner,
		branchRepo:  branchRepo,
		productRepo: productRepo,
		allocator:   allocator,
		sequencer:   sequencer,
		effects:     newSideEffects(effects, log),
		log:         log,
		now:         time.Now,
	}
}

// TransferLineInput producto a trasladar; BatchKey opcional fija el lote de origen.
type TransferLineInput struct {
	ProductID string
	BatchKey  string
	Quantity  decimal.Decimal
}

// TransferInput datos del traslado.
type TransferInput struct {
	FromBranch  string
	ToBranch    string
	PerformedBy string
	Lines       []TransferLineInput
}

// TransferResult los dos movimientos registrados.
type TransferResult struct {
	Out       *entity.Movement
	In        *entity.Movement
	Snapshots []*entity.Snapshot
	Warnings  []string
}

// Transfer registra el traslado. Cada tramo consumido en origen se convierte en un lote
// en destino con clave "<lote origen>/<documento>".
func (uc *TransferUseCase) Transfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	ctx, span := tracer.Start(ctx, "LedgerWriter.Transfer", trace.WithAttributes(
		attribute.String("from", in.FromBranch),
		attribute.String("to", in.ToBranch),
	))
	defer span.End()

	if in.FromBranch == "" || in.ToBranch == "" {
		field := "from_branch"
		if in.FromBranch != "" {
			field = "to_branch"
		}
		return nil, domain.Invalid(field, "es requerido")
	}
	if in.FromBranch == in.ToBranch {
		return nil, domain.Invalid("to_branch", "debe ser distinta de la sucursal de origen")
	}
	if len(in.Lines) == 0 {
		return nil, domain.Invalid("lines", "debe tener al menos una línea")
	}
	var products []string
	seen := map[string]struct{}{}
	for i, l := range in.Lines {
		if l.ProductID == "" {
			return nil, domain.Invalid(fmt.Sprintf("lines[%d].product_id", i), "es requerido")
		}
		if !l.Quantity.GreaterThan(decimal.Zero) {
			return nil, domain.Invalid(fmt.Sprintf("lines[%d].quantity", i), "debe ser mayor que cero")
		}
		if _, ok := seen[l.ProductID]; !ok {
			seen[l.ProductID] = struct{}{}
			products = append(products, l.ProductID)
		}
	}
	if err := resolveBranchAndProducts(ctx, uc.branchRepo, uc.productRepo, []string{in.FromBranch, in.ToBranch}, products); err != nil {
		return nil, err
	}

	now := uc.now()
	outMov := &entity.Movement{
		ID:          uuid.New().String(),
		BranchCode:  in.FromBranch,
		Direction:   entity.DirectionOUT,
		Reason:      entity.ReasonTransferOut,
		OccurredAt:  now.UTC(),
		PerformedBy: in.PerformedBy,
		CreatedAt:   now,
	}
	for i, l := range in.Lines {
		outMov.Lines = append(outMov.Lines, entity.MovementLine{LineNo: i + 1, ProductID: l.ProductID, BatchKey: l.BatchKey, Quantity: l.Quantity})
	}
	var warnings []string
	if num, err := nextDocumentNumber(ctx, uc.sequencer, in.FromBranch, "TR"); err != nil {
		uc.log.Warn().Err(err).Msg("número de documento no asignado")
		warnings = append(warnings, "número de documento no asignado")
	} else {
		outMov.DocumentNumber = num
	}
	ref := outMov.DocumentNumber
	if ref == "" {
		ref = outMov.ID[:8]
	}

	inMov := &entity.Movement{
		ID:             uuid.New().String(),
		BranchCode:     in.ToBranch,
		Direction:      entity.DirectionIN,
		Reason:         entity.ReasonTransferIn,
		OccurredAt:     now.UTC(),
		PerformedBy:    in.PerformedBy,
		DocumentNumber: outMov.DocumentNumber,
		CreatedAt:      now,
	}

	outcome := &writeOutcome{}
	err := uc.txRunner.Run(ctx, func(
		movRepo repository.MovementRepository,
		batchRepo repository.BatchRepository,
		snapRepo repository.SnapshotRepository,
	) error {
		t := &ledgerTx{movs: movRepo, batches: batchRepo, snaps: snapRepo, allocator: uc.allocator, now: now}
		o, err := t.appendOUT(ctx, outMov)
		if err != nil {
			return err
		}
		outcome.merge(o)

		inMov.Lines = transferReceipts(outMov, ref)
		o, err = t.appendIN(ctx, inMov)
		if err != nil {
			return err
		}
		outcome.merge(o)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	uc.log.Info().
		Str("from", in.FromBranch).
		Str("to", in.ToBranch).
		Str("out_id", outMov.ID).
		Str("in_id", inMov.ID).
		Msg("traslado registrado")

	uc.effects.emit(outMov, outcome.Exhausted)
	uc.effects.emit(inMov, nil)
	return &TransferResult{Out: outMov, In: inMov, Snapshots: outcome.Snapshots, Warnings: warnings}, nil
}

// transferReceipts arma las líneas de entrada en destino: un lote por (producto, lote de origen).
// Varias líneas que consumen el mismo lote de origen se suman en una sola recepción.
func transferReceipts(out *entity.Movement, ref string) []entity.MovementLine {
	type receiptKey struct{ product, batch string }
	idx := map[receiptKey]int{}
	var lines []entity.MovementLine
	for _, l := range out.Lines {
		for _, p := range l.Allocations {
			k := receiptKey{product: l.ProductID, batch: p.BatchKey}
			if i, ok := idx[k]; ok {
				lines[i].Quantity = lines[i].Quantity.Add(p.QuantityTaken)
				continue
			}
			idx[k] = len(lines)
			lines = append(lines, entity.MovementLine{
				LineNo:    len(lines) + 1,
				ProductID: l.ProductID,
				BatchKey:  p.BatchKey + "/" + ref,
				Quantity:  p.QuantityTaken,
				UnitCost:  p.UnitCost,
			})
		}
	}
	return lines
}
