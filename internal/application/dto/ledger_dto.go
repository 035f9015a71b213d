package dto

import (
	"time"

	"github.com/jhoicas/branch-ledger/internal/application/inventory"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// RecordMovementRequest body para POST /api/ledger/movements.
type RecordMovementRequest struct {
	BranchCode     string                `json:"branch_code" validate:"required"`
	Direction      string                `json:"direction" validate:"required,oneof=IN OUT"`
	Reason         string                `json:"reason" validate:"required,max=50"`
	OccurredAt     *time.Time            `json:"occurred_at,omitempty"`
	IdempotencyKey string                `json:"idempotency_key,omitempty" validate:"omitempty,max=100"`
	Lines          []MovementLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// MovementLineRequest una línea del movimiento. En entradas BatchKey es obligatorio;
// en salidas es opcional y restringe la asignación a ese lote.
type MovementLineRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	BatchKey  string          `json:"batch_key,omitempty" validate:"omitempty,max=100"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ToInput convierte la solicitud HTTP al input del caso de uso.
func (r RecordMovementRequest) ToInput(performedBy string) inventory.RecordMovementInput {
	in := inventory.RecordMovementInput{
		BranchCode:     r.BranchCode,
		Direction:      r.Direction,
		Reason:         r.Reason,
		PerformedBy:    performedBy,
		IdempotencyKey: r.IdempotencyKey,
		Lines:          make([]inventory.MovementLineInput, 0, len(r.Lines)),
	}
	if r.OccurredAt != nil {
		in.OccurredAt = *r.OccurredAt
	}
	for _, l := range r.Lines {
		in.Lines = append(in.Lines, inventory.MovementLineInput{
			ProductID: l.ProductID,
			BatchKey:  l.BatchKey,
			Quantity:  l.Quantity,
			UnitCost:  l.UnitCost,
			UnitPrice: l.UnitPrice,
		})
	}
	return in
}

// ReverseMovementRequest body para POST /api/ledger/movements/:id/reversal.
type ReverseMovementRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// TransferRequest body para POST /api/ledger/transfers.
type TransferRequest struct {
	FromBranch string                `json:"from_branch" validate:"required"`
	ToBranch   string                `json:"to_branch" validate:"required,nefield=FromBranch"`
	Lines      []TransferLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// TransferLineRequest producto y cantidad a trasladar.
type TransferLineRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	BatchKey  string          `json:"batch_key,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// ToInput convierte la solicitud HTTP al input del caso de uso.
func (r TransferRequest) ToInput(performedBy string) inventory.TransferInput {
	in := inventory.TransferInput{FromBranch: r.FromBranch, ToBranch: r.ToBranch, PerformedBy: performedBy}
	for _, l := range r.Lines {
		in.Lines = append(in.Lines, inventory.TransferLineInput{ProductID: l.ProductID, BatchKey: l.BatchKey, Quantity: l.Quantity})
	}
	return in
}

// AllocationPartResponse tramo de lote consumido por una línea de salida.
type AllocationPartResponse struct {
	BatchKey      string          `json:"batch_key"`
	QuantityTaken decimal.Decimal `json:"quantity_taken"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
}

// MovementLineResponse línea registrada.
type MovementLineResponse struct {
	LineNo      int                      `json:"line_no"`
	ProductID   string                   `json:"product_id"`
	BatchKey    string                   `json:"batch_key"`
	Quantity    decimal.Decimal          `json:"quantity"`
	UnitCost    decimal.Decimal          `json:"unit_cost"`
	UnitPrice   decimal.Decimal          `json:"unit_price"`
	Allocations []AllocationPartResponse `json:"allocations,omitempty"`
}

// MovementResponse movimiento del kardex.
type MovementResponse struct {
	ID             string                 `json:"id"`
	BranchCode     string                 `json:"branch_code"`
	Sequence       int64                  `json:"sequence"`
	DocumentNumber string                 `json:"document_number,omitempty"`
	Direction      string                 `json:"direction"`
	Reason         string                 `json:"reason"`
	OccurredAt     time.Time              `json:"occurred_at"`
	PerformedBy    string                 `json:"performed_by"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	ReversesID     string                 `json:"reverses_id,omitempty"`
	Lines          []MovementLineResponse `json:"lines"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewMovementResponse mapea un movimiento a su representación HTTP.
func NewMovementResponse(m *entity.Movement) *MovementResponse {
	if m == nil {
		return nil
	}
	out := &MovementResponse{
		ID:             m.ID,
		BranchCode:     m.BranchCode,
		Sequence:       m.Sequence,
		DocumentNumber: m.DocumentNumber,
		Direction:      m.Direction,
		Reason:         m.Reason,
		OccurredAt:     m.OccurredAt,
		PerformedBy:    m.PerformedBy,
		IdempotencyKey: m.IdempotencyKey,
		ReversesID:     m.ReversesID,
		Lines:          make([]MovementLineResponse, 0, len(m.Lines)),
		CreatedAt:      m.CreatedAt,
	}
	for _, l := range m.Lines {
		line := MovementLineResponse{
			LineNo:    l.LineNo,
			ProductID: l.ProductID,
			BatchKey:  l.BatchKey,
			Quantity:  l.Quantity,
			UnitCost:  l.UnitCost,
			UnitPrice: l.UnitPrice,
		}
		for _, p := range l.Allocations {
			line.Allocations = append(line.Allocations, AllocationPartResponse{BatchKey: p.BatchKey, QuantityTaken: p.QuantityTaken, UnitCost: p.UnitCost})
		}
		out.Lines = append(out.Lines, line)
	}
	return out
}

// MovementListResponse página de movimientos.
type MovementListResponse struct {
	Items []MovementResponse `json:"items"`
	Page  PageResponse       `json:"page"`
}

// NewMovementListResponse arma la página a partir de la lista del repositorio.
func NewMovementListResponse(list []*entity.Movement, limit, offset int) *MovementListResponse {
	items := make([]MovementResponse, 0, len(list))
	for _, m := range list {
		items = append(items, *NewMovementResponse(m))
	}
	return &MovementListResponse{Items: items, Page: PageResponse{Limit: limit, Offset: offset}}
}

// SnapshotResponse saldo de un producto en una sucursal.
type SnapshotResponse struct {
	BranchCode    string          `json:"branch_code"`
	ProductID     string          `json:"product_id"`
	OnHand        decimal.Decimal `json:"on_hand"`
	LastUnitCost  decimal.Decimal `json:"last_unit_cost"`
	LastUnitPrice decimal.Decimal `json:"last_unit_price"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewSnapshotResponse mapea un snapshot.
func NewSnapshotResponse(s *entity.Snapshot) *SnapshotResponse {
	if s == nil {
		return nil
	}
	return &SnapshotResponse{
		BranchCode:    s.BranchCode,
		ProductID:     s.ProductID,
		OnHand:        s.OnHand,
		LastUnitCost:  s.LastUnitCost,
		LastUnitPrice: s.LastUnitPrice,
		UpdatedAt:     s.UpdatedAt,
	}
}

func newSnapshotResponses(list []*entity.Snapshot) []SnapshotResponse {
	out := make([]SnapshotResponse, 0, len(list))
	for _, s := range list {
		out = append(out, *NewSnapshotResponse(s))
	}
	return out
}

// RecordMovementResponse respuesta de registro o reverso.
type RecordMovementResponse struct {
	Movement  *MovementResponse  `json:"movement"`
	Snapshots []SnapshotResponse `json:"snapshots"`
	Warnings  []string           `json:"warnings,omitempty"`
	Replayed  bool               `json:"replayed,omitempty"`
}

// NewRecordMovementResponse mapea el resultado del caso de uso.
func NewRecordMovementResponse(r *inventory.RecordMovementResult) *RecordMovementResponse {
	return &RecordMovementResponse{
		Movement:  NewMovementResponse(r.Movement),
		Snapshots: newSnapshotResponses(r.Snapshots),
		Warnings:  r.Warnings,
		Replayed:  r.Replayed,
	}
}

// TransferResponse los dos movimientos del traslado.
type TransferResponse struct {
	Out       *MovementResponse  `json:"out"`
	In        *MovementResponse  `json:"in"`
	Snapshots []SnapshotResponse `json:"snapshots"`
	Warnings  []string           `json:"warnings,omitempty"`
}

// NewTransferResponse mapea el resultado del traslado.
func NewTransferResponse(r *inventory.TransferResult) *TransferResponse {
	return &TransferResponse{
		Out:       NewMovementResponse(r.Out),
		In:        NewMovementResponse(r.In),
		Snapshots: newSnapshotResponses(r.Snapshots),
		Warnings:  r.Warnings,
	}
}

// BatchResponse estado de un lote.
type BatchResponse struct {
	BatchKey          string          `json:"batch_key"`
	ProductID         string          `json:"product_id"`
	MovementID        string          `json:"movement_id"`
	OccurredAt        time.Time       `json:"occurred_at"`
	OriginalQuantity  decimal.Decimal `json:"original_quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	State             string          `json:"state"`
}

// NewBatchResponse mapea un lote con su estado derivado.
func NewBatchResponse(b *entity.Batch) BatchResponse {
	return BatchResponse{
		BatchKey:          b.BatchKey,
		ProductID:         b.ProductID,
		MovementID:        b.MovementID,
		OccurredAt:        b.OccurredAt,
		OriginalQuantity:  b.OriginalQuantity,
		RemainingQuantity: b.RemainingQuantity,
		UnitCost:          b.UnitCost,
		State:             b.State(),
	}
}

// BatchListResponse lotes de un producto en una sucursal, en orden de consumo.
type BatchListResponse struct {
	BranchCode string          `json:"branch_code"`
	ProductID  string          `json:"product_id"`
	Items      []BatchResponse `json:"items"`
}

// NewBatchListResponse mapea la lista de lotes.
func NewBatchListResponse(branchCode, productID string, list []*entity.Batch) *BatchListResponse {
	items := make([]BatchResponse, 0, len(list))
	for _, b := range list {
		items = append(items, NewBatchResponse(b))
	}
	return &BatchListResponse{BranchCode: branchCode, ProductID: productID, Items: items}
}

// BatchAuditResponse conciliación del lote contra el registro de asignaciones.
type BatchAuditResponse struct {
	Batch            BatchResponse   `json:"batch"`
	AllocatedTotal   decimal.Decimal `json:"allocated_total"`
	DerivedRemaining decimal.Decimal `json:"derived_remaining"`
	Consistent       bool            `json:"consistent"`
}

// NewBatchAuditResponse mapea el resultado de VerifyBatch.
func NewBatchAuditResponse(a *inventory.BatchAudit) *BatchAuditResponse {
	return &BatchAuditResponse{
		Batch:            NewBatchResponse(a.Batch),
		AllocatedTotal:   a.AllocatedTotal,
		DerivedRemaining: a.DerivedRemaining,
		Consistent:       a.Consistent,
	}
}

// RebuildAllResponse resultado de reconstruir todos los snapshots.
type RebuildAllResponse struct {
	Rebuilt int `json:"rebuilt"`
}
