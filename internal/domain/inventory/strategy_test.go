package inventory

import (
	"testing"
	"time"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batch(key string, at time.Time, seq int64, remaining string) *entity.Batch {
	return &entity.Batch{BatchKey: key, OccurredAt: at, Sequence: seq, OriginalQuantity: d("5"), RemainingQuantity: d(remaining)}
}

func keys(bs []*entity.Batch) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.BatchKey)
	}
	return out
}

func TestFIFO_OrdenPorFechaYSecuencia(t *testing.T) {
	t0 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	in := []*entity.Batch{
		batch("Z-older", t0, 7, "5"),
		batch("A-newer", t0.Add(time.Hour), 3, "5"),
		batch("M-same-time-later-seq", t0, 9, "5"),
	}

	got := FIFO{}.Order(in)
	assert.Equal(t, []string{"Z-older", "M-same-time-later-seq", "A-newer"}, keys(got))
	// la entrada no se modifica
	assert.Equal(t, "Z-older", in[0].BatchKey)
	assert.Equal(t, "A-newer", in[1].BatchKey)
}

func TestLIFO_Orden(t *testing.T) {
	t0 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	in := []*entity.Batch{batch("B1", t0, 1, "5"), batch("B2", t0.Add(time.Minute), 2, "5")}
	assert.Equal(t, []string{"B2", "B1"}, keys(LIFO{}.Order(in)))
}

func TestPickFirst_SaltaAgotados(t *testing.T) {
	t0 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	in := []*entity.Batch{batch("B2", t0.Add(time.Hour), 2, "5"), batch("B1", t0, 1, "0")}

	got := PickFirst(FIFO{}, in)
	require.NotNil(t, got)
	assert.Equal(t, "B2", got.BatchKey)

	assert.Nil(t, PickFirst(FIFO{}, []*entity.Batch{batch("B1", t0, 1, "0")}))
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyFIFO, s.Name())

	s, err = NewStrategy(StrategyLIFO)
	require.NoError(t, err)
	assert.Equal(t, StrategyLIFO, s.Name())

	_, err = NewStrategy("FEFO")
	assert.Error(t, err)
}
