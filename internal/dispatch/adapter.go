// internal/dispatch/adapter.go
package dispatch

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/native"
)

var (
	ErrInvalidHandler = errors.New("dispatch: native bind returned an invalid handler id")
	ErrWindowAlive    = errors.New("dispatch: window is still valid")
	ErrReleased       = errors.New("dispatch: adapter released")
)

// State tracks the adapter lifecycle.
type State int32

const (
	StateUnbound State = iota
	StateBound
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// EventHandler handles one dispatched event. For Callback events a non-nil
// return value is sent back to script as the response.
type EventHandler func(e *Event) any

type registration struct {
	element string
	handler EventHandler
	fn      native.DispatchFunc
	id      native.HandlerID
}

// Adapter turns native dispatches into EventHandler calls for one window.
// Every trampoline handed to the native layer is kept reachable in the arena
// until Release, since native code may call it at any time before then.
type Adapter struct {
	lib     native.Library
	win     native.WindowHandle
	invoker Invoker
	logger  *zap.Logger

	state atomic.Int32

	mu    sync.Mutex
	arena []*registration
}

// New creates an adapter for win. A nil invoker means Direct.
func New(lib native.Library, win native.WindowHandle, invoker Invoker, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if invoker == nil {
		invoker = Direct{}
	}
	return &Adapter{
		lib:     lib,
		win:     win,
		invoker: invoker,
		logger:  logger.Named("dispatch"),
	}
}

// Window returns the handle this adapter serves.
func (a *Adapter) Window() native.WindowHandle { return a.win }

// Library returns the native surface behind the adapter.
func (a *Adapter) Library() native.Library { return a.lib }

// Invoker returns the invoker handlers run on.
func (a *Adapter) Invoker() Invoker { return a.invoker }

// State reports the lifecycle state.
func (a *Adapter) State() State { return State(a.state.Load()) }

// Bind registers h for element ("" for every event). On ErrInvalidHandler the
// registration is still retained because native may hold the pointer.
func (a *Adapter) Bind(element string, h EventHandler) (native.HandlerID, error) {
	if h == nil {
		return native.InvalidHandler, errors.New("dispatch: nil handler")
	}

	reg := &registration{element: element, handler: h}
	reg.fn = a.trampoline(reg)

	// 1. Root the trampoline before native sees it.
	a.mu.Lock()
	if a.State() == StateReleased {
		a.mu.Unlock()
		return native.InvalidHandler, ErrReleased
	}
	a.arena = append(a.arena, reg)
	a.state.CompareAndSwap(int32(StateUnbound), int32(StateBound))
	a.mu.Unlock()

	// 2. Hand it over.
	id := a.lib.Bind(a.win, element, reg.fn)

	a.mu.Lock()
	reg.id = id
	a.mu.Unlock()

	if id == native.InvalidHandler {
		a.logger.Warn("Native bind failed.", zap.String("element", element))
		return id, fmt.Errorf("%w: element %q", ErrInvalidHandler, element)
	}
	a.logger.Debug("Bound handler.", zap.String("element", element), zap.Uint64("handler_id", uint64(id)))
	return id, nil
}

// Registrations reports how many trampolines are rooted.
func (a *Adapter) Registrations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.arena)
}

// Release drops every trampoline. It is refused while the native window is
// still valid, because native could still call into a released trampoline.
func (a *Adapter) Release() error {
	if a.State() == StateReleased {
		return nil
	}
	if a.lib.IsValid(a.win) {
		return ErrWindowAlive
	}

	a.mu.Lock()
	n := len(a.arena)
	a.arena = nil
	a.state.Store(int32(StateReleased))
	a.mu.Unlock()

	a.logger.Debug("Released trampolines.", zap.Int("count", n))
	return nil
}

func (a *Adapter) trampoline(reg *registration) native.DispatchFunc {
	return func(win native.WindowHandle, code uint, element string, ev native.EventID, bind native.HandlerID) {
		// Nothing may unwind into the native caller.
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("Panic in dispatch trampoline.",
					zap.Any("panic_value", r),
					zap.String("stack", string(debug.Stack())))
			}
		}()

		typ := native.EventType(code)
		if !typ.Valid() {
			a.logger.Debug("Dropping event with unknown type code.", zap.Uint("code", code), zap.String("element", element))
			return
		}
		if a.State() == StateReleased {
			return
		}

		e := &Event{
			Window:    win,
			Type:      typ,
			Element:   element,
			ID:        ev,
			HandlerID: bind,
			lib:       a.lib,
		}
		value := a.invoker.Invoke(func() any { return a.call(reg, e) })

		if typ != native.EventCallback || value == nil {
			return
		}
		a.lib.SetResponse(win, ev, responseString(value))
	}
}

func (a *Adapter) call(reg *registration, e *Event) (value any) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Event handler panicked.",
				zap.String("element", reg.element),
				zap.Stringer("event_type", e.Type),
				zap.Any("panic_value", r),
				zap.String("stack", string(debug.Stack())))
			value = nil
		}
	}()
	return reg.handler(e)
}

func responseString(v any) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
