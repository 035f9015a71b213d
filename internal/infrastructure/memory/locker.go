package memory

import (
	"context"
	"sync"
)

// Locker lock por clave dentro del proceso.
type Locker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocker crea el locker.
func NewLocker() *Locker {
	return &Locker{slots: make(map[string]chan struct{})}
}

// Lock espera el lock de key o la cancelación de ctx.
func (l *Locker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func(context.Context) error {
			once.Do(func() { <-slot })
			return nil
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
