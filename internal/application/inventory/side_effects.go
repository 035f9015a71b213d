package inventory

import (
	"context"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SideEffectsConfig colaboradores post-commit. Todos son opcionales.
type SideEffectsConfig struct {
	Events         EventSink
	Voucher        VoucherTrigger
	VoucherReasons []string
	VoucherTimeout time.Duration
}

// sideEffects efectos posteriores al commit: eventos (fire-and-forget) y comprobantes
// (best-effort, su falla se devuelve como advertencia).
type sideEffects struct {
	events         EventSink
	voucher        VoucherTrigger
	voucherReasons map[string]struct{}
	voucherTimeout time.Duration
	log            zerolog.Logger
}

func newSideEffects(cfg SideEffectsConfig, log zerolog.Logger) *sideEffects {
	reasons := make(map[string]struct{}, len(cfg.VoucherReasons))
	for _, r := range cfg.VoucherReasons {
		reasons[r] = struct{}{}
	}
	timeout := cfg.VoucherTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &sideEffects{
		events:         cfg.Events,
		voucher:        cfg.Voucher,
		voucherReasons: reasons,
		voucherTimeout: timeout,
		log:            log,
	}
}

// emit encola movement.recorded por producto y batch.exhausted por lote agotado.
func (s *sideEffects) emit(m *entity.Movement, exhausted []exhaustedBatch) {
	if s.events == nil {
		return
	}
	for _, d := range aggregateDeltas(m) {
		s.events.Enqueue(entity.LedgerEvent{
			Type:       entity.EventMovementRecorded,
			MovementID: m.ID,
			BranchCode: m.BranchCode,
			ProductID:  d.ProductID,
			Direction:  m.Direction,
			Quantity:   d.Delta,
			OccurredAt: m.OccurredAt,
		})
	}
	for _, b := range exhausted {
		s.events.Enqueue(entity.LedgerEvent{
			Type:       entity.EventBatchExhausted,
			MovementID: m.ID,
			BranchCode: b.BranchCode,
			ProductID:  b.ProductID,
			BatchKey:   b.BatchKey,
			Quantity:   decimal.Zero,
			OccurredAt: m.OccurredAt,
		})
	}
}

// triggerVoucher notifica el comprobante para salidas con razón configurada.
// Devuelve las advertencias a incluir en la respuesta.
func (s *sideEffects) triggerVoucher(ctx context.Context, m *entity.Movement) []string {
	if s.voucher == nil || m.Direction != entity.DirectionOUT || m.IsReversal() {
		return nil
	}
	if _, ok := s.voucherReasons[m.Reason]; !ok {
		return nil
	}
	// El comprobante no hereda la cancelación del request: el movimiento ya está confirmado.
	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.voucherTimeout)
	defer cancel()
	if err := s.voucher.Trigger(vctx, m); err != nil {
		s.log.Warn().Err(err).
			Str("movement_id", m.ID).
			Str("reason", m.Reason).
			Msg("comprobante contable no generado")
		return []string{"comprobante contable no generado: " + err.Error()}
	}
	return nil
}
