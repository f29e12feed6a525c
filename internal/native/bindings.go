// internal/native/bindings.go
package native

import (
	"sync"

	"github.com/xkilldash9x/webbridge/internal/registry"
)

// handlerIDs is shared by every in-process backend so ids never collide
// across windows.
var handlerIDs = registry.NewSequence(0)

// Binding is one registered dispatch target.
type Binding struct {
	ID      HandlerID
	Element string
	Fn      DispatchFunc
}

// Bindings is the routing table backends use to fan events out to Bind
// registrations. Callback events go to the exact name only; clicks go to the
// exact element and to every all-events binding; lifecycle events go to the
// all-events bindings.
type Bindings struct {
	mu      sync.RWMutex
	entries []Binding
}

// Add stores fn and returns its new id. A nil fn is rejected with
// InvalidHandler.
func (b *Bindings) Add(element string, fn DispatchFunc) HandlerID {
	if fn == nil {
		return InvalidHandler
	}
	id := HandlerID(handlerIDs.Next())
	b.mu.Lock()
	b.entries = append(b.entries, Binding{ID: id, Element: element, Fn: fn})
	b.mu.Unlock()
	return id
}

// Match returns the bindings that should see an event of type t on element.
func (b *Bindings) Match(t EventType, element string) []Binding {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Binding
	for _, e := range b.entries {
		switch t {
		case EventCallback:
			if e.Element == element {
				out = append(out, e)
			}
		case EventMouseClick:
			if e.Element == "" || e.Element == element {
				out = append(out, e)
			}
		default:
			if e.Element == "" {
				out = append(out, e)
			}
		}
	}
	return out
}

// Clickable reports whether a click on element has any receiver.
func (b *Bindings) Clickable(element string) bool {
	return len(b.Match(EventMouseClick, element)) > 0
}

// Len reports the number of bindings.
func (b *Bindings) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
