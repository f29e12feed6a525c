// internal/registry/functions.go
package registry

import (
	"errors"
	"sync"
)

// FunctionID identifies a host function exposed to script.
type FunctionID int64

// CallID identifies one in-flight script to host call. The host never
// interprets it; it is echoed back with the result.
type CallID int64

// FunctionIDBase is the reserved low range. The first issued FunctionID is
// FunctionIDBase+1.
const FunctionIDBase = 5432

// functionIDs is process scoped so that IDs stay unique across windows.
var functionIDs = NewSequence(FunctionIDBase)

var ErrNilHandler = errors.New("registry: nil handler")

// Functions maps FunctionIDs to handlers for one window. Entries live as long
// as the window does; there is no removal because the native layer has no
// unbind primitive.
type Functions struct {
	mu       sync.RWMutex
	handlers map[FunctionID]Handler

	firstOnce sync.Once
	onFirst   func()
}

// NewFunctions creates an empty table. onFirst, when non-nil, runs exactly
// once, synchronously, during the first successful Register call.
func NewFunctions(onFirst func()) *Functions {
	return &Functions{
		handlers: make(map[FunctionID]Handler),
		onFirst:  onFirst,
	}
}

// Register stores h under a fresh FunctionID.
func (f *Functions) Register(h Handler) (FunctionID, error) {
	if h == nil {
		return 0, ErrNilHandler
	}
	switch fn := h.(type) {
	case FireAndForget:
		if fn == nil {
			return 0, ErrNilHandler
		}
	case Returning:
		if fn == nil {
			return 0, ErrNilHandler
		}
	}

	id := FunctionID(functionIDs.Next())

	f.mu.Lock()
	f.handlers[id] = h
	f.mu.Unlock()

	// The relay must exist before script can call the new ID, so the hook
	// runs before Register returns.
	if f.onFirst != nil {
		f.firstOnce.Do(f.onFirst)
	}
	return id, nil
}

// Lookup returns the handler for id. A miss is not an error: it means a stale
// or forged callback, which the caller ignores.
func (f *Functions) Lookup(id FunctionID) (Handler, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h, ok := f.handlers[id]
	return h, ok
}

// Len reports how many handlers are registered.
func (f *Functions) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers)
}
