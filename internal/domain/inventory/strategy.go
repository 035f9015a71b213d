package inventory

import (
	"fmt"
	"sort"

	"github.com/jhoicas/branch-ledger/internal/domain/entity"
)

// Nombres de estrategia aceptados en configuración.
const (
	StrategyFIFO = "FIFO"
	StrategyLIFO = "LIFO"
)

// SelectionStrategy decide el orden en que se consumen los lotes elegibles.
type SelectionStrategy interface {
	Name() string
	// Order devuelve una copia ordenada; no modifica la entrada.
	Order(batches []*entity.Batch) []*entity.Batch
}

// NewStrategy construye la estrategia por nombre.
func NewStrategy(name string) (SelectionStrategy, error) {
	switch name {
	case "", StrategyFIFO:
		return FIFO{}, nil
	case StrategyLIFO:
		return LIFO{}, nil
	default:
		return nil, fmt.Errorf("estrategia de asignación desconocida: %s", name)
	}
}

// FIFO consume primero el lote más antiguo: OccurredAt ascendente, empate por secuencia del kardex.
// Nunca desempata por la clave del lote.
type FIFO struct{}

func (FIFO) Name() string { return StrategyFIFO }

func (FIFO) Order(batches []*entity.Batch) []*entity.Batch {
	out := append([]*entity.Batch(nil), batches...)
	sort.SliceStable(out, func(i, j int) bool { return olderThan(out[i], out[j]) })
	return out
}

// LIFO consume primero el lote más reciente.
type LIFO struct{}

func (LIFO) Name() string { return StrategyLIFO }

func (LIFO) Order(batches []*entity.Batch) []*entity.Batch {
	out := append([]*entity.Batch(nil), batches...)
	sort.SliceStable(out, func(i, j int) bool { return olderThan(out[j], out[i]) })
	return out
}

func olderThan(a, b *entity.Batch) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.Before(b.OccurredAt)
	}
	return a.Sequence < b.Sequence
}

// PickFirst devuelve el primer lote con capacidad según la estrategia, o nil.
// Con FIFO es el lote compatible más antiguo.
func PickFirst(s SelectionStrategy, batches []*entity.Batch) *entity.Batch {
	for _, b := range s.Order(batches) {
		if b.HasCapacity() {
			return b
		}
	}
	return nil
}
