package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jhoicas/branch-ledger/internal/application/inventory"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	goredis "github.com/redis/go-redis/v9"
)

var _ inventory.EventPublisher = (*Publisher)(nil)

// Publisher publica eventos del kardex como JSON en un canal de Redis.
type Publisher struct {
	rdb     goredis.UniversalClient
	channel string
}

// NewPublisher construye el publicador sobre channel.
func NewPublisher(rdb goredis.UniversalClient, channel string) *Publisher {
	return &Publisher{rdb: rdb, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, ev entity.LedgerEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}
