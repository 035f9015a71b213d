package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/jhoicas/branch-ledger/internal/domain/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_SalidaFIFO(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "10", t0)
	f.receive(t, "P1", "B2", "5", "20", t0.Add(1))

	res, err := f.sell("P1", "7", "30")
	require.NoError(t, err)

	line := res.Movement.Lines[0]
	assert.Equal(t, "12.857", line.UnitCost.Round(3).String())
	assert.Equal(t, "B1", line.BatchKey)
	require.Len(t, line.Allocations, 2)
	assert.Equal(t, "B1", line.Allocations[0].BatchKey)
	assert.True(t, line.Allocations[0].QuantityTaken.Equal(dec("5")))
	assert.Equal(t, "B2", line.Allocations[1].BatchKey)
	assert.True(t, line.Allocations[1].QuantityTaken.Equal(dec("2")))

	assert.True(t, f.batch(t, "SUC1", "P1", "B1").RemainingQuantity.IsZero())
	assert.True(t, f.batch(t, "SUC1", "P1", "B2").RemainingQuantity.Equal(dec("3")))
	assert.Equal(t, entity.BatchStateExhausted, f.batch(t, "SUC1", "P1", "B1").State())
	assert.Equal(t, entity.BatchStatePartiallyConsumed, f.batch(t, "SUC1", "P1", "B2").State())
	assert.True(t, f.onHand(t, "SUC1", "P1").Equal(dec("3")))
	assert.Equal(t, "OUT-SUC1-000001", res.Movement.DocumentNumber)
}

func TestRecord_FIFOEmpatePorSecuencia(t *testing.T) {
	f := newFixture(t)
	// mismo instante: gana el registrado primero aunque su clave sea mayor
	f.receive(t, "P1", "Z9", "2", "10", t0)
	f.receive(t, "P1", "A1", "2", "20", t0)

	res, err := f.sell("P1", "1", "30")
	require.NoError(t, err)
	assert.Equal(t, "Z9", res.Movement.Lines[0].Allocations[0].BatchKey)
}

func TestRecord_LIFO(t *testing.T) {
	f := newFixture(t, withLIFO())
	f.receive(t, "P1", "B1", "5", "10", t0)
	f.receive(t, "P1", "B2", "5", "20", t0.Add(1))

	res, err := f.sell("P1", "7", "30")
	require.NoError(t, err)
	assert.Equal(t, "17.143", res.Movement.Lines[0].UnitCost.Round(3).String())
	assert.Equal(t, "B2", res.Movement.Lines[0].BatchKey)
	assert.True(t, f.batch(t, "SUC1", "P1", "B2").RemainingQuantity.IsZero())
	assert.True(t, f.batch(t, "SUC1", "P1", "B1").RemainingQuantity.Equal(dec("3")))
}

func TestRecord_StockInsuficienteNoTocaLotes(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "10", t0)
	f.receive(t, "P1", "B2", "5", "20", t0.Add(1))

	_, err := f.sell("P1", "11", "30")
	require.Error(t, err)
	var ise *domain.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.True(t, ise.Requested.Equal(dec("11")))
	assert.True(t, ise.Available.Equal(dec("10")))
	assert.Contains(t, err.Error(), "solicitado 11, disponible 10")
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	assert.True(t, f.batch(t, "SUC1", "P1", "B1").RemainingQuantity.Equal(dec("5")))
	assert.True(t, f.batch(t, "SUC1", "P1", "B2").RemainingQuantity.Equal(dec("5")))
	assert.True(t, f.onHand(t, "SUC1", "P1").Equal(dec("10")))
	list, err := f.queries.ListMovements(context.Background(), "SUC1", repository.MovementFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRecord_MultilineaTodoONada(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "10", t0)
	f.receive(t, "P2", "C1", "1", "10", t0)

	_, err := f.record.Record(context.Background(), RecordMovementInput{
		BranchCode: "SUC1",
		Direction:  entity.DirectionOUT,
		Reason:     entity.ReasonSale,
		Lines: []MovementLineInput{
			{ProductID: "P1", Quantity: dec("3")},
			{ProductID: "P2", Quantity: dec("2")},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.True(t, f.batch(t, "SUC1", "P1", "B1").RemainingQuantity.Equal(dec("5")))
	assert.True(t, f.onHand(t, "SUC1", "P1").Equal(dec("5")))
}

func TestRecord_FaltanteEnTotalesDelProducto(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "10", "10", t0)
	f.receive(t, "P2", "C1", "5", "10", t0)

	_, err := f.record.Record(context.Background(), RecordMovementInput{
		BranchCode: "SUC1",
		Direction:  entity.DirectionOUT,
		Reason:     entity.ReasonSale,
		Lines: []MovementLineInput{
			{ProductID: "P1", Quantity: dec("6")},
			{ProductID: "P2", Quantity: dec("1")},
			{ProductID: "P1", Quantity: dec("6")},
		},
	})
	var ise *domain.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "P1", ise.ProductID)
	assert.True(t, ise.Requested.Equal(dec("12")))
	assert.True(t, ise.Available.Equal(dec("10")))
	assert.Contains(t, err.Error(), "solicitado 12, disponible 10")

	assert.True(t, f.batch(t, "SUC1", "P1", "B1").RemainingQuantity.Equal(dec("10")))
	assert.True(t, f.batch(t, "SUC1", "P2", "C1").RemainingQuantity.Equal(dec("5")))
}

func TestRecord_PistaDeLote(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "10", t0)
	f.receive(t, "P1", "B2", "5", "20", t0.Add(1))

	res, err := f.record.Record(context.Background(), RecordMovementInput{
		BranchCode: "SUC1", Direction: entity.DirectionOUT, Reason: entity.ReasonReturn,
		Lines: []MovementLineInput{{ProductID: "P1", BatchKey: "B2", Quantity: dec("2")}},
	})
	require.NoError(t, err)
	assert.True(t, res.Movement.Lines[0].UnitCost.Equal(dec("20")))
	assert.True(t, f.batch(t, "SUC1", "P1", "B1").RemainingQuantity.Equal(dec("5")))

	_, err = f.record.Record(context.Background(), RecordMovementInput{
		BranchCode: "SUC1", Direction: entity.DirectionOUT, Reason: entity.ReasonReturn,
		Lines: []MovementLineInput{{ProductID: "P1", BatchKey: "NOPE", Quantity: dec("1")}},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// la pista limita la asignación a ese lote
	_, err = f.record.Record(context.Background(), RecordMovementInput{
		BranchCode: "SUC1", Direction: entity.DirectionOUT, Reason: entity.ReasonReturn,
		Lines: []MovementLineInput{{ProductID: "P1", BatchKey: "B2", Quantity: dec("4")}},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestRecord_CostoCeroUsaPrecio(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "0", t0)

	res, err := f.sell("P1", "2", "15")
	require.NoError(t, err)
	assert.True(t, res.Movement.Lines[0].UnitCost.Equal(dec("15")))

	g := newFixture(t, withoutCostFallback())
	g.receive(t, "P1", "B1", "5", "0", t0)
	res, err = g.sell("P1", "2", "15")
	require.NoError(t, err)
	assert.True(t, res.Movement.Lines[0].UnitCost.IsZero())
}

func TestRecord_Validaciones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tests := []struct {
		name string
		in   RecordMovementInput
		want error
	}{
		{"sin sucursal", RecordMovementInput{Direction: "IN", Lines: []MovementLineInput{{ProductID: "P1", BatchKey: "B", Quantity: dec("1")}}}, domain.ErrInvalidInput},
		{"dirección inválida", RecordMovementInput{BranchCode: "SUC1", Direction: "SIDEWAYS", Lines: []MovementLineInput{{ProductID: "P1", Quantity: dec("1")}}}, domain.ErrInvalidInput},
		{"sin líneas", RecordMovementInput{BranchCode: "SUC1", Direction: "OUT"}, domain.ErrInvalidInput},
		{"cantidad cero", RecordMovementInput{BranchCode: "SUC1", Direction: "OUT", Lines: []MovementLineInput{{ProductID: "P1", Quantity: dec("0")}}}, domain.ErrInvalidInput},
		{"entrada sin lote", RecordMovementInput{BranchCode: "SUC1", Direction: "IN", Lines: []MovementLineInput{{ProductID: "P1", Quantity: dec("1")}}}, domain.ErrInvalidInput},
		{"costo negativo", RecordMovementInput{BranchCode: "SUC1", Direction: "IN", Lines: []MovementLineInput{{ProductID: "P1", BatchKey: "B", Quantity: dec("1"), UnitCost: dec("-1")}}}, domain.ErrInvalidInput},
		{"lote repetido", RecordMovementInput{BranchCode: "SUC1", Direction: "IN", Lines: []MovementLineInput{
			{ProductID: "P1", BatchKey: "B", Quantity: dec("1")},
			{ProductID: "P1", BatchKey: "B", Quantity: dec("1")},
		}}, domain.ErrInvalidInput},
		{"sucursal inexistente", RecordMovementInput{BranchCode: "X", Direction: "OUT", Lines: []MovementLineInput{{ProductID: "P1", Quantity: dec("1")}}}, domain.ErrNotFound},
		{"producto inexistente", RecordMovementInput{BranchCode: "SUC1", Direction: "OUT", Lines: []MovementLineInput{{ProductID: "NOPE", Quantity: dec("1")}}}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.record.Record(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecord_LoteDuplicado(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "10", t0)

	_, err := f.record.Record(context.Background(), RecordMovementInput{
		BranchCode: "SUC1", Direction: entity.DirectionIN, Reason: entity.ReasonPurchase,
		Lines: []MovementLineInput{{ProductID: "P1", BatchKey: "B1", Quantity: dec("1")}},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.True(t, f.onHand(t, "SUC1", "P1").Equal(dec("5")))
}

func TestRecord_LotesInmutables(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "10", t0)
	before := f.batch(t, "SUC1", "P1", "B1")

	_, err := f.sell("P1", "4", "30")
	require.NoError(t, err)

	after := f.batch(t, "SUC1", "P1", "B1")
	assert.Equal(t, before.BatchKey, after.BatchKey)
	assert.True(t, before.OriginalQuantity.Equal(after.OriginalQuantity))
	assert.True(t, before.UnitCost.Equal(after.UnitCost))
	assert.Equal(t, before.Sequence, after.Sequence)
	assert.True(t, after.RemainingQuantity.Equal(dec("1")))
}

func TestRecord_SalidasConcurrentesSinDobleConsumo(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "4", "10", t0)
	f.receive(t, "P1", "B2", "6", "20", t0.Add(1))

	const workers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, insufficient := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sell("P1", "1", "30")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficient++
			default:
				t.Errorf("error inesperado: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, workers-10, insufficient)
	assert.True(t, f.remainingTotal(t, "SUC1", "P1").IsZero())
	assert.True(t, f.onHand(t, "SUC1", "P1").IsZero())

	for _, key := range []string{"B1", "B2"} {
		audit, err := f.queries.VerifyBatch(context.Background(), "SUC1", "P1", key)
		require.NoError(t, err)
		assert.True(t, audit.Consistent, key)
	}
}

func TestRecord_ConservacionSnapshotLotes(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "10", t0)
	f.receive(t, "P1", "B2", "3.5", "12", t0.Add(1))
	_, err := f.sell("P1", "2.25", "30")
	require.NoError(t, err)
	f.receive(t, "P1", "B3", "1", "11", t0.Add(2))
	_, err = f.sell("P1", "4", "30")
	require.NoError(t, err)

	assert.True(t, f.onHand(t, "SUC1", "P1").Equal(f.remainingTotal(t, "SUC1", "P1")))
	assert.True(t, f.onHand(t, "SUC1", "P1").Equal(dec("3.25")))
}

func TestRecord_Idempotencia(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "10", t0)
	in := RecordMovementInput{
		BranchCode: "SUC1", Direction: entity.DirectionOUT, Reason: entity.ReasonSale, IdempotencyKey: "pos-77",
		Lines: []MovementLineInput{{ProductID: "P1", Quantity: dec("2"), UnitPrice: dec("30")}},
	}
	first, err := f.record.Record(context.Background(), in)
	require.NoError(t, err)
	second, err := f.record.Record(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Movement.ID, second.Movement.ID)
	assert.True(t, f.onHand(t, "SUC1", "P1").Equal(dec("3")))

	in.Direction = entity.DirectionIN
	in.Lines[0].BatchKey = "X"
	_, err = f.record.Record(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRecord_ComprobanteYEventos(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "10", t0)
	assert.Empty(t, f.voucher.calls, "las entradas no generan comprobante")

	res, err := f.sell("P1", "5", "30")
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []string{res.Movement.ID}, f.voucher.calls)

	recorded := f.events.ofType(entity.EventMovementRecorded)
	require.Len(t, recorded, 2)
	assert.True(t, recorded[1].Quantity.Equal(dec("-5")))
	exhausted := f.events.ofType(entity.EventBatchExhausted)
	require.Len(t, exhausted, 1)
	assert.Equal(t, "B1", exhausted[0].BatchKey)
}

func TestRecord_FallaDeComprobanteEsAdvertencia(t *testing.T) {
	f := newFixture(t)
	f.voucher.err = errVoucherDown
	f.receive(t, "P1", "B1", "5", "10", t0)

	res, err := f.sell("P1", "1", "30")
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "contabilidad no disponible")

	m, err := f.queries.GetMovement(context.Background(), res.Movement.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Movement.ID, m.ID)
	assert.True(t, f.onHand(t, "SUC1", "P1").Equal(dec("4")))
}

func TestRecord_RazonSinComprobante(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "10", t0)
	_, err := f.record.Record(context.Background(), RecordMovementInput{
		BranchCode: "SUC1", Direction: entity.DirectionOUT, Reason: "shrinkage",
		Lines: []MovementLineInput{{ProductID: "P1", Quantity: dec("1")}},
	})
	require.NoError(t, err)
	assert.Empty(t, f.voucher.calls)
}

func TestRecord_ListaDePrecios(t *testing.T) {
	f := newFixture(t)
	_, err := f.record.Record(context.Background(), RecordMovementInput{
		BranchCode: "SUC1", Direction: entity.DirectionIN, Reason: entity.ReasonPurchase,
		Lines: []MovementLineInput{{ProductID: "P1", BatchKey: "B1", Quantity: dec("5"), UnitCost: dec("10"), UnitPrice: dec("25")}},
	})
	require.NoError(t, err)
	// precio cero no pisa el vigente
	_, err = f.sell("P1", "1", "0")
	require.NoError(t, err)

	s, err := f.snaps.GetSnapshot(context.Background(), "SUC1", "P1")
	require.NoError(t, err)
	assert.True(t, s.LastUnitPrice.Equal(dec("25")))
	assert.True(t, s.LastUnitCost.Equal(dec("10")))
}
