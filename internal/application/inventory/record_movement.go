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
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RecordMovementUseCase es el escritor del kardex: valida, asigna salidas FIFO, persiste el
// movimiento con sus lotes/asignaciones y actualiza el snapshot en una sola transacción.
type RecordMovementUseCase struct {
	txRunner    TxRunner
	movRepo     repository.MovementRepository
	branchRepo  repository.BranchRepository
	productRepo repository.ProductRepository
	allocator   *BatchAllocator
	sequencer   DocumentSequencer
	effects     *sideEffects
	log         zerolog.Logger
	now         func() time.Time
}

// NewRecordMovementUseCase construye el caso de uso. movRepo se usa fuera de la transacción
// (idempotencia); sequencer puede ser nil.
func NewRecordMovementUseCase(
	txRunner TxRunner,
	movRepo repository.MovementRepository,
	branchRepo repository.BranchRepository,
	productRepo repository.ProductRepository,
	allocator *BatchAllocator,
	sequencer DocumentSequencer,
	effects SideEffectsConfig,
	log zerolog.Logger,
) *RecordMovementUseCase {
	return &RecordMovementUseCase{
		txRunner:    txRunner,
		movRepo:     movRepo,
		branchRepo:  branchRepo,
		productRepo: productRepo,
		allocator:   allocator,
		sequencer:   sequencer,
		effects:     newSideEffects(effects, log),
		log:         log,
		now:         time.Now,
	}
}

// MovementLineInput línea solicitada. BatchKey obligatorio en IN; opcional en OUT.
type MovementLineInput struct {
	ProductID string
	BatchKey  string
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	UnitPrice decimal.Decimal
}

// RecordMovementInput entrada del escritor del kardex.
type RecordMovementInput struct {
	BranchCode     string
	Direction      string
	Reason         string
	PerformedBy    string
	OccurredAt     time.Time // cero = ahora
	IdempotencyKey string
	Lines          []MovementLineInput
}

// RecordMovementResult movimiento persistido con el costo resuelto por línea.
type RecordMovementResult struct {
	Movement  *entity.Movement
	Snapshots []*entity.Snapshot
	Warnings  []string
	// Replayed indica que se devolvió un movimiento existente con la misma clave de idempotencia.
	Replayed bool
}

// Record registra el movimiento. Todas las líneas se aplican o ninguna.
func (uc *RecordMovementUseCase) Record(ctx context.Context, in RecordMovementInput) (*RecordMovementResult, error) {
	ctx, span := tracer.Start(ctx, "LedgerWriter.Record", trace.WithAttributes(
		attribute.String("branch", in.BranchCode),
		attribute.String("direction", in.Direction),
		attribute.Int("lines", len(in.Lines)),
	))
	defer span.End()

	if err := validateMovementInput(in); err != nil {
		return nil, err
	}
	if in.IdempotencyKey != "" {
		existing, err := uc.movRepo.GetByIdempotencyKey(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return replayedResult(existing, in)
		}
	}
	if err := uc.resolveReferences(ctx, in); err != nil {
		return nil, err
	}

	now := uc.now()
	mov := buildMovement(in, now)
	var warnings []string
	if num, err := nextDocumentNumber(ctx, uc.sequencer, in.BranchCode, in.Direction); err != nil {
		uc.log.Warn().Err(err).Str("branch", in.BranchCode).Msg("número de documento no asignado")
		warnings = append(warnings, "número de documento no asignado")
	} else {
		mov.DocumentNumber = num
	}

	var outcome *writeOutcome
	err := uc.txRunner.Run(ctx, func(
		movRepo repository.MovementRepository,
		batchRepo repository.BatchRepository,
		snapRepo repository.SnapshotRepository,
	) error {
		t := &ledgerTx{movs: movRepo, batches: batchRepo, snaps: snapRepo, allocator: uc.allocator, now: now}
		var err error
		if mov.IsIN() {
			outcome, err = t.appendIN(ctx, mov)
		} else {
			outcome, err = t.appendOUT(ctx, mov)
		}
		return err
	})
	if err != nil {
		if in.IdempotencyKey != "" && errors.Is(err, domain.ErrDuplicate) {
			if existing, getErr := uc.movRepo.GetByIdempotencyKey(ctx, in.IdempotencyKey); getErr == nil && existing != nil {
				return replayedResult(existing, in)
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	uc.log.Info().
		Str("movement_id", mov.ID).
		Str("branch", mov.BranchCode).
		Str("direction", mov.Direction).
		Str("reason", mov.Reason).
		Int64("sequence", mov.Sequence).
		Msg("movimiento registrado")

	uc.effects.emit(mov, outcome.Exhausted)
	warnings = append(warnings, uc.effects.triggerVoucher(ctx, mov)...)

	return &RecordMovementResult{Movement: mov, Snapshots: outcome.Snapshots, Warnings: warnings}, nil
}

// validateMovementInput valida forma antes de tocar la base (ValidationError).
func validateMovementInput(in RecordMovementInput) error {
	if in.BranchCode == "" {
		return domain.Invalid("branch_code", "es requerido")
	}
	if in.Direction == "" {
		return domain.Invalid("direction", "es requerido")
	}
	if !entity.ValidDirection(in.Direction) {
		return domain.Invalid("direction", "debe ser IN u OUT")
	}
	if len(in.Lines) == 0 {
		return domain.Invalid("lines", "debe tener al menos una línea")
	}
	seen := make(map[string]struct{}, len(in.Lines))
	for i, l := range in.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if l.ProductID == "" {
			return domain.Invalid(field+".product_id", "es requerido")
		}
		if !l.Quantity.GreaterThan(decimal.Zero) {
			return domain.Invalid(field+".quantity", "debe ser mayor que cero")
		}
		if l.UnitCost.IsNegative() {
			return domain.Invalid(field+".unit_cost", "no puede ser negativo")
		}
		if l.UnitPrice.IsNegative() {
			return domain.Invalid(field+".unit_price", "no puede ser negativo")
		}
		if in.Direction == entity.DirectionIN {
			if l.BatchKey == "" {
				return domain.Invalid(field+".batch_key", "es requerido en entradas")
			}
			k := l.ProductID + "\x00" + l.BatchKey
			if _, dup := seen[k]; dup {
				return domain.Invalid(field+".batch_key", "repetido para el mismo producto")
			}
			seen[k] = struct{}{}
		}
	}
	return nil
}

// resolveReferences verifica sucursal y productos antes de cualquier mutación (NotFound).
func (uc *RecordMovementUseCase) resolveReferences(ctx context.Context, in RecordMovementInput) error {
	return resolveBranchAndProducts(ctx, uc.branchRepo, uc.productRepo, []string{in.BranchCode}, productIDs(in.Lines))
}

func resolveBranchAndProducts(ctx context.Context, branches repository.BranchRepository, products repository.ProductRepository, branchCodes, productIDs []string) error {
	for _, code := range branchCodes {
		b, err := branches.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		if b == nil {
			return domain.NotFound("sucursal", code)
		}
	}
	for _, id := range productIDs {
		p, err := products.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.NotFound("producto", id)
		}
	}
	return nil
}

func productIDs(lines []MovementLineInput) []string {
	seen := make(map[string]struct{}, len(lines))
	var out []string
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		out = append(out, l.ProductID)
	}
	return out
}

func buildMovement(in RecordMovementInput, now time.Time) *entity.Movement {
	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	mov := &entity.Movement{
		ID:             uuid.New().String(),
		BranchCode:     in.BranchCode,
		Direction:      in.Direction,
		Reason:         in.Reason,
		OccurredAt:     occurred.UTC(),
		PerformedBy:    in.PerformedBy,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
		Lines:          make([]entity.MovementLine, 0, len(in.Lines)),
	}
	for i, l := range in.Lines {
		line := entity.MovementLine{
			LineNo:    i + 1,
			ProductID: l.ProductID,
			BatchKey:  l.BatchKey,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
		if in.Direction == entity.DirectionIN {
			line.UnitCost = l.UnitCost
		}
		mov.Lines = append(mov.Lines, line)
	}
	return mov
}

// nextDocumentNumber pide el número legible; sin secuenciador no asigna número.
func nextDocumentNumber(ctx context.Context, seq DocumentSequencer, branchCode, prefix string) (string, error) {
	if seq == nil {
		return "", nil
	}
	return seq.Next(ctx, branchCode, prefix)
}

// replayedResult devuelve el movimiento ya registrado con la misma clave de idempotencia.
// Si la clave se reutiliza para otra sucursal o dirección es un conflicto.
func replayedResult(existing *entity.Movement, in RecordMovementInput) (*RecordMovementResult, error) {
	if existing.BranchCode != in.BranchCode || existing.Direction != in.Direction {
		return nil, fmt.Errorf("clave de idempotencia %s usada por otro movimiento: %w", in.IdempotencyKey, domain.ErrConflict)
	}
	return &RecordMovementResult{Movement: existing, Replayed: true}, nil
}
