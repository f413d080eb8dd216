// Copyright © 2024 The ELPS authors

package analysis

import (
	"context"
	"errors"
	"sync"
)

// ErrModified is the cancellation cause of a read interrupted by Modify.
var ErrModified = errors.New("program model modified during read")

// Model guards the program model that analysis reads.  Reads run
// concurrently.  A modification cancels in-flight reads, which restart once
// the modification is done.
type Model struct {
	mu      sync.RWMutex
	readers sync.Mutex
	cancels map[int]context.CancelCauseFunc
	next    int
}

// NewModel returns an unlocked Model.
func NewModel() *Model {
	return &Model{cancels: make(map[int]context.CancelCauseFunc)}
}

// Read runs fn under the read lock.  When a modification interrupts fn, the
// context passed to fn is cancelled with cause ErrModified and fn is run
// again.  fn must not have side effects outside its result.
func (m *Model) Read(ctx context.Context, fn func(ctx context.Context) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		restart, err := m.readOnce(ctx, fn)
		if !restart {
			return err
		}
	}
}

func (m *Model) readOnce(ctx context.Context, fn func(ctx context.Context) error) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rctx, cancel := context.WithCancelCause(ctx)
	id := m.register(cancel)
	defer func() {
		m.unregister(id)
		cancel(nil)
	}()
	err := fn(rctx)
	if errors.Is(context.Cause(rctx), ErrModified) && ctx.Err() == nil {
		return true, nil
	}
	return false, err
}

func (m *Model) register(cancel context.CancelCauseFunc) int {
	m.readers.Lock()
	defer m.readers.Unlock()
	if m.cancels == nil {
		m.cancels = make(map[int]context.CancelCauseFunc)
	}
	m.next++
	m.cancels[m.next] = cancel
	return m.next
}

func (m *Model) unregister(id int) {
	m.readers.Lock()
	defer m.readers.Unlock()
	delete(m.cancels, id)
}

// Modify cancels in-flight reads and runs fn under the write lock.
func (m *Model) Modify(fn func()) {
	m.readers.Lock()
	for _, cancel := range m.cancels {
		cancel(ErrModified)
	}
	m.readers.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}
