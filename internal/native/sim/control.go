// internal/native/sim/control.go
package sim

import (
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/native"
)

// The methods below drive the page the way a user or the browser would.

// Connect announces the page to the all-events bindings.
func (p *Page) Connect() {
	ev := native.EventID(p.eventIDs.Next())
	p.dispatchQ.Push(func() { p.fire(native.EventConnect, "", ev) })
}

// Navigate changes location and reports the navigation with the url as
// argument 0.
func (p *Page) Navigate(url string) {
	p.do(func() {
		if err := p.callPage("navigate", url); err != nil {
			p.logger.Warn("Navigation failed.", zap.Error(err))
		}
	})
	ev := native.EventID(p.eventIDs.Next())
	p.setArgs(ev, []any{url})
	p.dispatchQ.Push(func() {
		p.fire(native.EventNavigation, "", ev)
		p.dropArgs(ev)
	})
}

// AddElement creates an element with id under the document.
func (p *Page) AddElement(id, tag string) error {
	var err error
	if !p.do(func() { err = p.callPage("addElement", id, tag) }) {
		return ErrPageClosed
	}
	return err
}

// DispatchEvent fires a bubbling DOM event of type at the element with id
// targetID ("window" and "document" address the globals). props are copied
// onto the event object.
func (p *Page) DispatchEvent(targetID, eventType string, props map[string]any) error {
	var (
		found bool
		err   error
	)
	if !p.do(func() {
		var v goja.Value
		v, err = p.callPageValue("fire", targetID, eventType, props)
		if err == nil {
			found = v.ToBoolean()
		}
	}) {
		return ErrPageClosed
	}
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: target %q", ErrNotFound, targetID)
	}
	return nil
}

// Click dispatches a primary button click on the element.
func (p *Page) Click(id string) error {
	return p.DispatchEvent(id, "click", map[string]any{
		"button":  0,
		"buttons": 1,
		"detail":  1,
		"ctrlKey": false,
	})
}

// DispatchRaw delivers an arbitrary event code with args straight to the
// bindings of element, bypassing the page. Unknown codes are routed like a
// click so that both exact and all-events bindings see them.
func (p *Page) DispatchRaw(code uint, element string, args ...any) {
	route := native.EventType(code)
	if !route.Valid() {
		route = native.EventMouseClick
	}
	ev := native.EventID(p.eventIDs.Next())
	p.setArgs(ev, args)
	p.dispatchQ.Push(func() {
		p.fireCode(code, route, element, ev)
		p.dropArgs(ev)
	})
}

// Fetch asks the installed file handler for path, as the browser would.
func (p *Page) Fetch(path string) ([]byte, bool) {
	p.filesMu.RLock()
	h := p.files
	p.filesMu.RUnlock()
	if h == nil {
		return nil, false
	}
	body := h(path)
	return body, body != nil
}

// LoadScript fetches path and runs it in the page, like a script tag.
func (p *Page) LoadScript(path string) error {
	body, ok := p.Fetch(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	var err error
	if !p.do(func() { _, err = p.vm.RunScript(path, string(body)) }) {
		return ErrPageClosed
	}
	return err
}

// Settle waits until work queued so far on the page loop, and the dispatches
// it triggered, have run.
func (p *Page) Settle() {
	for i := 0; i < 2; i++ {
		p.do(func() {})
		done := make(chan struct{})
		if p.dispatchQ.Push(func() { close(done) }) {
			<-done
		}
	}
	p.do(func() {})
}

func (p *Page) callPage(method string, args ...any) error {
	_, err := p.callPageValue(method, args...)
	return err
}

func (p *Page) callPageValue(method string, args ...any) (goja.Value, error) {
	obj := p.vm.Get("__simPage").ToObject(p.vm)
	fn, ok := goja.AssertFunction(obj.Get(method))
	if !ok {
		return nil, fmt.Errorf("sim: page method %s missing", method)
	}
	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = p.vm.ToValue(a)
	}
	return fn(obj, vals...)
}
