package inventory

import (
	"context"
	"testing"

	"github.com/jhoicas/branch-ledger/internal/domain"
	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverse_SalidaRestituyeLotes(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "5", "10", t0)
	f.receive(t, "P1", "B2", "5", "20", t0.Add(1))
	sale, err := f.sell("P1", "7", "30")
	require.NoError(t, err)

	res, err := f.reverse.Reverse(context.Background(), ReverseInput{MovementID: sale.Movement.ID, PerformedBy: "admin", Note: "venta anulada"})
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionIN, res.Movement.Direction)
	assert.Equal(t, sale.Movement.ID, res.Movement.ReversesID)
	assert.Equal(t, "REV-SUC1-000001", res.Movement.DocumentNumber)

	assert.True(t, f.batch(t, "SUC1", "P1", "B1").RemainingQuantity.Equal(dec("5")))
	assert.True(t, f.batch(t, "SUC1", "P1", "B2").RemainingQuantity.Equal(dec("5")))
	assert.True(t, f.onHand(t, "SUC1", "P1").Equal(dec("10")))

	audit, err := f.queries.VerifyBatch(context.Background(), "SUC1", "P1", "B1")
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
	assert.True(t, audit.AllocatedTotal.IsZero())

	// el reverso no altera la lista de precios
	s, err := f.snaps.GetSnapshot(context.Background(), "SUC1", "P1")
	require.NoError(t, err)
	assert.True(t, s.LastUnitPrice.Equal(dec("30")))
}

func TestReverse_EntradaAbierta(t *testing.T) {
	f := newFixture(t)
	in := f.receive(t, "P1", "B1", "5", "10", t0)

	res, err := f.reverse.Reverse(context.Background(), ReverseInput{MovementID: in.ID})
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionOUT, res.Movement.Direction)
	assert.True(t, f.batch(t, "SUC1", "P1", "B1").RemainingQuantity.IsZero())
	assert.True(t, f.onHand(t, "SUC1", "P1").IsZero())
	assert.Empty(t, f.voucher.calls, "un reverso nunca dispara comprobante")
}

func TestReverse_EntradaConConsumos(t *testing.T) {
	f := newFixture(t)
	in := f.receive(t, "P1", "B1", "5", "10", t0)
	_, err := f.sell("P1", "1", "30")
	require.NoError(t, err)

	_, err = f.reverse.Reverse(context.Background(), ReverseInput{MovementID: in.ID})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.True(t, f.batch(t, "SUC1", "P1", "B1").RemainingQuantity.Equal(dec("4")))
}

func TestReverse_UnaSolaVez(t *testing.T) {
	f := newFixture(t)
	in := f.receive(t, "P1", "B1", "5", "10", t0)
	sale, err := f.sell("P1", "2", "30")
	require.NoError(t, err)

	rev, err := f.reverse.Reverse(context.Background(), ReverseInput{MovementID: sale.Movement.ID})
	require.NoError(t, err)

	_, err = f.reverse.Reverse(context.Background(), ReverseInput{MovementID: sale.Movement.ID})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.reverse.Reverse(context.Background(), ReverseInput{MovementID: rev.Movement.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.reverse.Reverse(context.Background(), ReverseInput{MovementID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.True(t, f.onHand(t, "SUC1", "P1").Equal(dec("5")))
	assert.NotEmpty(t, in.ID)
}

func TestReverse_TramosDeTrasladoNoSeReversan(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "P1", "B1", "10", "10", t0)
	tr, err := f.transfer.Transfer(context.Background(), TransferInput{
		FromBranch: "SUC1", ToBranch: "SUC2", PerformedBy: "u1",
		Lines: []TransferLineInput{{ProductID: "P1", Quantity: dec("4")}},
	})
	require.NoError(t, err)

	for _, m := range []*entity.Movement{tr.Out, tr.In} {
		_, err := f.reverse.Reverse(context.Background(), ReverseInput{MovementID: m.ID, PerformedBy: "admin"})
		assert.ErrorIs(t, err, domain.ErrConflict, m.Reason)
	}

	// entre las dos sucursales sigue existiendo solo lo recibido
	assert.True(t, f.onHand(t, "SUC1", "P1").Equal(dec("6")))
	assert.True(t, f.onHand(t, "SUC2", "P1").Equal(dec("4")))
	assert.True(t, f.batch(t, "SUC1", "P1", "B1").RemainingQuantity.Equal(dec("6")))
}
