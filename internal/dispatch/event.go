// internal/dispatch/event.go
package dispatch

import "github.com/xkilldash9x/webbridge/internal/native"

// Event is one native dispatch. Arguments are read lazily from the native
// layer by index; nothing is copied up front.
type Event struct {
	Window    native.WindowHandle
	Type      native.EventType
	Element   string
	ID        native.EventID
	HandlerID native.HandlerID

	lib native.Library
}

func (e *Event) alive() bool {
	return e.lib != nil && e.lib.IsValid(e.Window)
}

// Int reads argument index as an integer.
func (e *Event) Int(index uint) int64 {
	if !e.alive() {
		return 0
	}
	return e.lib.Int(e.Window, e.ID, index)
}

func (e *Event) Float(index uint) float64 {
	if !e.alive() {
		return 0
	}
	return e.lib.Float(e.Window, e.ID, index)
}

func (e *Event) String(index uint) string {
	if !e.alive() {
		return ""
	}
	return e.lib.String(e.Window, e.ID, index)
}

func (e *Event) Bool(index uint) bool {
	if !e.alive() {
		return false
	}
	return e.lib.Bool(e.Window, e.ID, index)
}

// Size returns the byte length of argument index.
func (e *Event) Size(index uint) uint {
	if !e.alive() {
		return 0
	}
	return e.lib.Size(e.Window, e.ID, index)
}

// Bytes returns argument index as raw bytes, trimmed to its reported size.
func (e *Event) Bytes(index uint) []byte {
	if !e.alive() {
		return nil
	}
	s := e.lib.String(e.Window, e.ID, index)
	if n := e.lib.Size(e.Window, e.ID, index); n < uint(len(s)) {
		s = s[:n]
	}
	return []byte(s)
}
