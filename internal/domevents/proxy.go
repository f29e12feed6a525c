// internal/domevents/proxy.go
package domevents

import (
	"errors"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/api/schemas"
	"github.com/xkilldash9x/webbridge/internal/bridge"
	"github.com/xkilldash9x/webbridge/internal/registry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrNoEventType = errors.New("domevents: event type is required")
	ErrNoCallback  = errors.New("domevents: callback is required")
	ErrBadCapture  = errors.New("domevents: capture needs a label and a path")
)

// Registrar is the part of the bridge the proxy needs.
type Registrar interface {
	Register(name string, h registry.Handler) (registry.FunctionID, error)
	Invoke(fn string, args ...any)
}

var _ Registrar = (*bridge.Bridge)(nil)

// Proxy attaches page DOM listeners whose events are delivered to host
// callbacks.
type Proxy struct {
	reg    Registrar
	logger *zap.Logger

	mu        sync.Mutex
	listeners []schemas.ListenerDescriptor
}

// New creates a proxy on top of reg.
func New(reg Registrar, logger *zap.Logger) *Proxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{reg: reg, logger: logger.Named("domevents")}
}

// AddEventListener listens for eventType on the element with id elementID
// ("window" and "document" address the globals when no element has that id).
// Each capture copies the event value at its dot path into
// CapturedEvent.AdditionalProps under its label.
func (p *Proxy) AddEventListener(
	eventType, elementID string,
	fn func(schemas.CapturedEvent),
	opts *schemas.ListenerOptions,
	captures ...schemas.Capture,
) (registry.FunctionID, error) {
	if eventType == "" {
		return 0, ErrNoEventType
	}
	if fn == nil {
		return 0, ErrNoCallback
	}
	for _, c := range captures {
		if c.Label == "" || c.Path == "" {
			return 0, fmt.Errorf("%w: %+v", ErrBadCapture, c)
		}
	}

	log := p.logger.With(zap.String("event_type", eventType), zap.String("element_id", elementID))
	fid, err := p.reg.Register("", registry.FireAndForget(func(payload string) {
		var events []schemas.CapturedEvent
		if err := json.UnmarshalFromString(payload, &events); err != nil {
			log.Warn("Dropping undecodable DOM event.", zap.Error(err))
			return
		}
		if len(events) == 0 {
			log.Debug("Dropping empty DOM event payload.")
			return
		}
		fn(events[0])
	}))
	if err != nil {
		return 0, fmt.Errorf("domevents: register listener: %w", err)
	}

	// Optional arguments travel as JSON text or null.
	var capArg, optArg any
	if len(captures) > 0 {
		capArg = captureObject(captures)
	}
	if opts != nil {
		optArg = *opts
	}
	p.reg.Invoke("window.WebUINet.addHostEventListener", eventType, elementID, int64(fid), capArg, optArg)

	var copied *schemas.ListenerOptions
	if opts != nil {
		o := *opts
		copied = &o
	}
	p.mu.Lock()
	p.listeners = append(p.listeners, schemas.ListenerDescriptor{
		EventType:  eventType,
		ElementID:  elementID,
		FunctionID: int64(fid),
		Captures:   append([]schemas.Capture(nil), captures...),
		Options:    copied,
	})
	p.mu.Unlock()

	log.Debug("Added DOM listener.", zap.Int64("function_id", int64(fid)))
	return fid, nil
}

// Abort removes every listener registered with abortKey. The page forgets the
// key, so a later listener with the same key starts a new group.
func (p *Proxy) Abort(abortKey string) {
	if abortKey == "" {
		return
	}
	p.reg.Invoke("window.WebUINet.abortHostListeners", abortKey)

	p.mu.Lock()
	kept := p.listeners[:0]
	for _, l := range p.listeners {
		if l.AbortKey() != abortKey {
			kept = append(kept, l)
		}
	}
	p.listeners = kept
	p.mu.Unlock()
	p.logger.Debug("Aborted DOM listeners.", zap.String("abort_key", abortKey))
}

// Listeners returns the listeners that have not been aborted.
func (p *Proxy) Listeners() []schemas.ListenerDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]schemas.ListenerDescriptor(nil), p.listeners...)
}

// captureObject lays captures out as the {label: path} object the page reads,
// in caller order.
func captureObject(captures []schemas.Capture) schemas.Props {
	out := make(schemas.Props, 0, len(captures))
	for _, c := range captures {
		out = append(out, schemas.Prop{Label: c.Label, Value: c.Path})
	}
	return out
}
