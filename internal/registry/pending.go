// internal/registry/pending.go
package registry

import (
	"errors"
	"fmt"
	"sync"
)

var ErrCallInUse = errors.New("registry: call id already pending")

// Pending correlates in-flight calls with their completion callbacks. Each
// entry completes at most once: Resolve and Abandon both remove it, and a
// Resolve for an id that is gone is a successful no-op.
type Pending[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]func(V)
}

// NewPending creates an empty table.
func NewPending[K comparable, V any]() *Pending[K, V] {
	return &Pending[K, V]{entries: make(map[K]func(V))}
}

// Add registers fn as the completion for id. IDs may be reused only after the
// previous entry has been resolved or abandoned.
func (p *Pending[K, V]) Add(id K, fn func(V)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[id]; ok {
		return fmt.Errorf("%w: %v", ErrCallInUse, id)
	}
	p.entries[id] = fn
	return nil
}

// Resolve completes id with v. It reports whether an entry was waiting. The
// completion runs outside the table lock so it may register new calls.
func (p *Pending[K, V]) Resolve(id K, v V) bool {
	p.mu.Lock()
	fn, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	p.mu.Unlock()

	if ok && fn != nil {
		fn(v)
	}
	return ok
}

// Abandon drops id without completing it.
func (p *Pending[K, V]) Abandon(id K) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[id]
	delete(p.entries, id)
	return ok
}

// Has reports whether id is still waiting.
func (p *Pending[K, V]) Has(id K) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[id]
	return ok
}

// Len reports the number of waiting entries.
func (p *Pending[K, V]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
