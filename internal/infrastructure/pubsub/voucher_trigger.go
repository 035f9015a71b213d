// Package pubsub publica solicitudes de comprobante contable en Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/jhoicas/branch-ledger/internal/application/inventory"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/pkg/config"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
)

var _ inventory.VoucherTrigger = (*VoucherTrigger)(nil)

// VoucherMessage mensaje consumido por el servicio contable.
type VoucherMessage struct {
	MovementID     string          `json:"movement_id"`
	BranchCode     string          `json:"branch_code"`
	DocumentNumber string          `json:"document_number"`
	Reason         string          `json:"reason"`
	OccurredAt     time.Time       `json:"occurred_at"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	Lines          []VoucherLine   `json:"lines"`
}

// VoucherLine línea del comprobante con su costo resuelto por lotes.
type VoucherLine struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// VoucherTrigger publica un mensaje por salida y espera la confirmación del servidor.
type VoucherTrigger struct {
	client *gpubsub.Client
	topic  *gpubsub.Topic
}

// NewVoucherTrigger crea el cliente. Sin credenciales explícitas usa Application Default Credentials.
func NewVoucherTrigger(ctx context.Context, cfg config.PubSubConfig) (*VoucherTrigger, error) {
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := gpubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client (project %s): %w", cfg.ProjectID, err)
	}
	return &VoucherTrigger{client: client, topic: client.Topic(cfg.VoucherTopic)}, nil
}

// Trigger publica y bloquea hasta el ack del servidor o el fin de ctx.
func (v *VoucherTrigger) Trigger(ctx context.Context, m *entity.Movement) error {
	data, err := json.Marshal(NewVoucherMessage(m))
	if err != nil {
		return fmt.Errorf("encode voucher: %w", err)
	}
	res := v.topic.Publish(ctx, &gpubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"movement_id": m.ID,
			"branch_code": m.BranchCode,
			"reason":      m.Reason,
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish voucher %s: %w", m.ID, err)
	}
	return nil
}

// Close detiene el topic y cierra el cliente.
func (v *VoucherTrigger) Close() error {
	v.topic.Stop()
	return v.client.Close()
}

// NewVoucherMessage arma el mensaje con totales a costo y a precio.
func NewVoucherMessage(m *entity.Movement) VoucherMessage {
	msg := VoucherMessage{
		MovementID:     m.ID,
		BranchCode:     m.BranchCode,
		DocumentNumber: m.DocumentNumber,
		Reason:         m.Reason,
		OccurredAt:     m.OccurredAt,
		TotalCost:      decimal.Zero,
		TotalPrice:     decimal.Zero,
		Lines:          make([]VoucherLine, 0, len(m.Lines)),
	}
	for _, l := range m.Lines {
		msg.Lines = append(msg.Lines, VoucherLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitCost: l.UnitCost, UnitPrice: l.UnitPrice})
		msg.TotalCost = msg.TotalCost.Add(l.Quantity.Mul(l.UnitCost))
		msg.TotalPrice = msg.TotalPrice.Add(l.Quantity.Mul(l.UnitPrice))
	}
	return msg
}
