// internal/native/native.go
package native

import "fmt"

// WindowHandle identifies a native window. The value is opaque to the host.
type WindowHandle uintptr

// HandlerID is the native identifier for one bind registration. Zero means
// the registration failed.
type HandlerID uint64

// InvalidHandler is the sentinel returned by a failed Bind.
const InvalidHandler HandlerID = 0

// EventID identifies one dispatched event for the per-event accessors.
type EventID uintptr

// EventType is the event code carried by every dispatch.
type EventType uint

const (
	EventDisconnect EventType = iota
	EventConnect
	EventMouseClick
	EventNavigation
	EventCallback
)

// Valid reports whether t is one of the known event codes.
func (t EventType) Valid() bool {
	return t <= EventCallback
}

func (t EventType) String() string {
	switch t {
	case EventDisconnect:
		return "disconnect"
	case EventConnect:
		return "connect"
	case EventMouseClick:
		return "click"
	case EventNavigation:
		return "navigation"
	case EventCallback:
		return "callback"
	default:
		return fmt.Sprintf("event(%d)", uint(t))
	}
}

// DispatchFunc is the callback shape the native layer invokes. The event type
// arrives as a raw code so that unknown values can be observed and dropped.
type DispatchFunc func(win WindowHandle, eventType uint, element string, ev EventID, bind HandlerID)

// FileHandlerFunc serves a virtual path. A nil result means not found and
// lets the native layer fall back to its own resolution.
type FileHandlerFunc func(path string) []byte

// Library is the capability surface of the embedded browser. Implementations
// must be safe for concurrent use; dispatch callbacks arrive on a goroutine
// owned by the implementation.
type Library interface {
	// Bind registers fn for clicks on element, or for every event when element
	// is empty. It returns InvalidHandler on failure.
	Bind(win WindowHandle, element string, fn DispatchFunc) HandlerID

	// Script evaluates code and waits for its result. A timeout of zero waits
	// indefinitely. ok is false on timeout or exception, in which case the
	// bytes carry the error text.
	Script(win WindowHandle, code string, timeoutSeconds uint) (ok bool, result []byte)

	// Run evaluates code without waiting.
	Run(win WindowHandle, code string)

	// SendRaw calls the script function fn with data as a Uint8Array.
	SendRaw(win WindowHandle, fn string, data []byte)

	// SetFileHandler installs the handler consulted for every served path.
	SetFileHandler(win WindowHandle, h FileHandlerFunc)

	Int(win WindowHandle, ev EventID, index uint) int64
	Float(win WindowHandle, ev EventID, index uint) float64
	String(win WindowHandle, ev EventID, index uint) string
	Bool(win WindowHandle, ev EventID, index uint) bool
	Size(win WindowHandle, ev EventID, index uint) uint

	// SetResponse answers the script side of a Callback event.
	SetResponse(win WindowHandle, ev EventID, response string)

	// IsValid reports whether the window still exists.
	IsValid(win WindowHandle) bool

	// Destroy closes the window. Dispatch stops once it returns.
	Destroy(win WindowHandle)
}
