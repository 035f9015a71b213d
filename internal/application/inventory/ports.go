package inventory

import (
	"context"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción, pasando repositorios atados a esa tx.
// Movimiento, lotes, asignaciones y snapshot se confirman juntos o no se confirman.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		movRepo repository.MovementRepository,
		batchRepo repository.BatchRepository,
		snapRepo repository.SnapshotRepository,
	) error) error
}

// EventPublisher entrega eventos del kardex a un bus externo (Redis, log, ...).
type EventPublisher interface {
	Publish(ctx context.Context, ev entity.LedgerEvent) error
}

// EventSink recibe eventos post-commit sin bloquear al escritor.
type EventSink interface {
	Enqueue(ev entity.LedgerEvent) bool
}

// VoucherTrigger crea el comprobante contable de una salida. Best-effort: su falla
// nunca revierte el movimiento.
type VoucherTrigger interface {
	Trigger(ctx context.Context, m *entity.Movement) error
}

// DocumentSequencer entrega números de documento legibles (opacos para el kardex).
type DocumentSequencer interface {
	Next(ctx context.Context, branchCode, prefix string) (string, error)
}

// Locker lock distribuido por clave. unlock debe llamarse aunque ctx haya expirado.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}
