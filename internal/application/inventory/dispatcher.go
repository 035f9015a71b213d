package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/rs/zerolog"
)

var _ EventSink = (*Dispatcher)(nil)

// Dispatcher cola acotada de eventos post-commit. Enqueue nunca bloquea al escritor:
// si la cola está llena el evento se descarta y se registra.
type Dispatcher struct {
	ch        chan entity.LedgerEvent
	publisher EventPublisher
	workers   int
	timeout   time.Duration
	log       zerolog.Logger
	dropped   atomic.Int64
	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewDispatcher construye el despachador con buffer y número de workers.
func NewDispatcher(publisher EventPublisher, buffer, workers int, log zerolog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		ch:        make(chan entity.LedgerEvent, buffer),
		publisher: publisher,
		workers:   workers,
		timeout:   5 * time.Second,
		log:       log,
	}
}

// Enqueue encola sin bloquear. Devuelve false si el evento se descartó.
func (d *Dispatcher) Enqueue(ev entity.LedgerEvent) bool {
	select {
	case d.ch <- ev:
		return true
	default:
		n := d.dropped.Add(1)
		d.log.Warn().
			Str("type", ev.Type).
			Str("movement_id", ev.MovementID).
			Int64("dropped_total", n).
			Msg("cola de eventos llena, evento descartado")
		return false
	}
}

// Dropped total de eventos descartados.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Start lanza los workers; terminan cuando ctx se cancela, tras vaciar lo ya encolado.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.loop(ctx)
		}
	})
}

// Wait espera a que los workers terminen.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case ev := <-d.ch:
			d.publish(context.Background(), ev)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.ch:
			d.publish(context.Background(), ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(parent context.Context, ev entity.LedgerEvent) {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()
	if err := d.publisher.Publish(ctx, ev); err != nil {
		d.log.Warn().Err(err).
			Str("type", ev.Type).
			Str("movement_id", ev.MovementID).
			Msg("publicación de evento fallida")
	}
}

var _ EventPublisher = LogPublisher{}

// LogPublisher publica eventos en el log; se usa cuando no hay bus configurado.
type LogPublisher struct {
	Log zerolog.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev entity.LedgerEvent) error {
	p.Log.Info().
		Str("type", ev.Type).
		Str("movement_id", ev.MovementID).
		Str("branch", ev.BranchCode).
		Str("product", ev.ProductID).
		Str("batch", ev.BatchKey).
		Msg("evento de kardex")
	return nil
}
