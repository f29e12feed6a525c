// internal/dispatch/default_handler.go
package dispatch

import (
	"sync/atomic"

	"github.com/xkilldash9x/webbridge/internal/native"
)

// DefaultHandler receives the window lifecycle events. Nil callbacks are
// skipped.
type DefaultHandler struct {
	OnConnect    func()
	OnDisconnect func()
	OnClick      func(element string)
	OnNavigation func(url string)
}

// BindDefault registers d on the all-events filter. Dispatches that carry a
// different handler id are ignored.
func (a *Adapter) BindDefault(d DefaultHandler) (native.HandlerID, error) {
	var own atomic.Uint64
	id, err := a.Bind("", func(e *Event) any {
		if bound := own.Load(); bound != 0 && native.HandlerID(bound) != e.HandlerID {
			return nil
		}
		switch e.Type {
		case native.EventConnect:
			if d.OnConnect != nil {
				d.OnConnect()
			}
		case native.EventDisconnect:
			if d.OnDisconnect != nil {
				d.OnDisconnect()
			}
		case native.EventMouseClick:
			if d.OnClick != nil {
				d.OnClick(e.Element)
			}
		case native.EventNavigation:
			if d.OnNavigation != nil {
				d.OnNavigation(e.String(0))
			}
		}
		return nil
	})
	own.Store(uint64(id))
	return id, err
}
