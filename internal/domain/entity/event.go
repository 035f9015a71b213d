package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de evento emitidos tras el commit.
const (
	EventMovementRecorded = "movement.recorded"
	EventBatchExhausted   = "batch.exhausted"
)

// LedgerEvent notificación post-commit para refresco de UI en tiempo real.
type LedgerEvent struct {
	Type       string          `json:"type"`
	MovementID string          `json:"movement_id"`
	BranchCode string          `json:"branch_code"`
	ProductID  string          `json:"product_id,omitempty"`
	BatchKey   string          `json:"batch_key,omitempty"`
	Direction  string          `json:"direction,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	OccurredAt time.Time       `json:"occurred_at"`
}
