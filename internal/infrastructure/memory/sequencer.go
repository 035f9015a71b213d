package memory

import (
	"context"
	"fmt"
	"sync"
)

// Sequencer contador de documentos por (sucursal, prefijo) en proceso.
type Sequencer struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewSequencer crea el contador.
func NewSequencer() *Sequencer {
	return &Sequencer{counters: make(map[string]int64)}
}

// Next devuelve PREFIJO-SUCURSAL-000001, PREFIJO-SUCURSAL-000002, ...
func (s *Sequencer) Next(_ context.Context, branchCode, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefix + ":" + branchCode
	s.counters[key]++
	return fmt.Sprintf("%s-%s-%06d", prefix, branchCode, s.counters[key]), nil
}
