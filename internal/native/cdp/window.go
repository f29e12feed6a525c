// internal/native/cdp/window.go
package cdp

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/gabriel-vasile/mimetype"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/native"
	"github.com/xkilldash9x/webbridge/internal/registry"
)

// DispatchBinding is the page global the shim posts through.
const DispatchBinding = "__webui_dispatch"

//go:embed shim.js
var shimTemplate string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// shimSource returns the page shim wired to DispatchBinding.
func shimSource() string {
	return strings.Replace(shimTemplate, "{{DISPATCH}}", DispatchBinding, 1)
}

// message is what the shim posts through the dispatch binding.
type message struct {
	Kind    string `json:"kind"`
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Element string `json:"element"`
	Args    []any  `json:"args"`
}

func decodeMessage(payload string) (message, error) {
	var m message
	if err := json.UnmarshalFromString(payload, &m); err != nil {
		return message{}, fmt.Errorf("decode dispatch payload: %w", err)
	}
	switch m.Kind {
	case "call":
		if m.ID <= 0 || m.Name == "" {
			return message{}, fmt.Errorf("call payload without id or name")
		}
	case "click":
		if m.Element == "" {
			return message{}, fmt.Errorf("click payload without element")
		}
	default:
		return message{}, fmt.Errorf("unknown payload kind %q", m.Kind)
	}
	return m, nil
}

// window is one browser tab.
type window struct {
	handle native.WindowHandle
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	bindings  native.Bindings
	pending   *registry.Pending[native.EventID, string]
	eventIDs  *registry.Sequence
	dispatchQ *native.Queue
	done      chan struct{}

	// Fire-and-forget scripts keep their call order.
	runQ     *native.Queue
	runDone  chan struct{}
	evaluate func(ctx context.Context, code string) error

	argsMu sync.RWMutex
	args   map[native.EventID][]any

	filesMu sync.RWMutex
	files   native.FileHandlerFunc

	valid     atomic.Bool
	closeOnce sync.Once
}

func newWindow(ctx context.Context, cancel context.CancelFunc, handle native.WindowHandle, logger *zap.Logger) *window {
	w := &window{
		handle:    handle,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		pending:   registry.NewPending[native.EventID, string](),
		eventIDs:  registry.NewSequence(0),
		dispatchQ: native.NewQueue(),
		done:      make(chan struct{}),
		runQ:      native.NewQueue(),
		runDone:   make(chan struct{}),
		evaluate:  evaluateNoWait,
		args:      make(map[native.EventID][]any),
	}
	w.valid.Store(true)
	return w
}

// start hooks the tab's events, installs the shim and begins dispatching.
func (w *window) start() error {
	go func() {
		defer close(w.done)
		w.dispatchQ.Run(w.execDispatch)
	}()
	go w.drainRuns()

	// Listeners must never block, everything is handed to the dispatch queue.
	chromedp.ListenTarget(w.ctx, w.onTargetEvent)

	err := chromedp.Run(w.ctx,
		cdpruntime.AddBinding(DispatchBinding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(shimSource()).Do(ctx)
			return err
		}),
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*", RequestStage: fetch.RequestStageRequest}}),
	)
	if err != nil {
		w.close()
		return fmt.Errorf("install page shim: %w", err)
	}

	go func() {
		<-w.ctx.Done()
		w.close()
	}()
	return nil
}

func (w *window) onTargetEvent(ev any) {
	switch ev := ev.(type) {
	case *cdpruntime.EventBindingCalled:
		if ev.Name == DispatchBinding {
			w.onDispatch(ev.Payload)
		}
	case *page.EventLoadEventFired:
		w.dispatchQ.Push(func() { w.fire(native.EventConnect, "", w.nextEvent()) })
	case *page.EventFrameNavigated:
		if ev.Frame == nil || ev.Frame.ParentID != "" {
			return
		}
		id := w.nextEvent()
		w.setArgs(id, []any{ev.Frame.URL})
		w.dispatchQ.Push(func() {
			w.fire(native.EventNavigation, "", id)
			w.dropArgs(id)
		})
	case *fetch.EventRequestPaused:
		go w.serve(ev)
	}
}

func (w *window) onDispatch(payload string) {
	m, err := decodeMessage(payload)
	if err != nil {
		w.logger.Warn("Dropping malformed page message.", zap.Error(err))
		return
	}

	switch m.Kind {
	case "click":
		if !w.bindings.Clickable(m.Element) {
			return
		}
		id := w.nextEvent()
		w.dispatchQ.Push(func() { w.fire(native.EventMouseClick, m.Element, id) })
	case "call":
		id := w.nextEvent()
		w.setArgs(id, m.Args)
		pageCall := m.ID
		_ = w.pending.Add(id, func(resp string) {
			go w.settle(pageCall, resp)
		})
		w.dispatchQ.Push(func() {
			w.fire(native.EventCallback, m.Name, id)
			// An unanswered call resolves to an empty string.
			w.pending.Resolve(id, "")
			w.dropArgs(id)
		})
	}
}

// settle resolves the page promise behind a webui.call.
func (w *window) settle(pageCall int64, resp string) {
	quoted, err := json.MarshalToString(resp)
	if err != nil {
		w.logger.Error("Could not encode call response.", zap.Error(err))
		return
	}
	script := fmt.Sprintf("window.webui.__settle(%d, %s)", pageCall, quoted)
	if err := chromedp.Run(w.ctx, chromedp.Evaluate(script, nil)); err != nil && w.valid.Load() {
		w.logger.Warn("Could not settle page call.", zap.Int64("call", pageCall), zap.Error(err))
	}
}

func (w *window) serve(ev *fetch.EventRequestPaused) {
	var body []byte
	if ev.Request != nil {
		body = w.lookupFile(ev.Request.URL)
	}

	var action chromedp.Action
	if body == nil {
		action = fetch.ContinueRequest(ev.RequestID)
	} else {
		action = fetch.FulfillRequest(ev.RequestID, 200).
			WithResponseHeaders([]*fetch.HeaderEntry{{Name: "Content-Type", Value: contentType(ev.Request.URL, body)}}).
			WithBody(base64.StdEncoding.EncodeToString(body))
	}
	if err := chromedp.Run(w.ctx, action); err != nil && w.valid.Load() {
		w.logger.Debug("Could not answer paused request.", zap.Error(err))
	}
}

func (w *window) lookupFile(rawURL string) []byte {
	w.filesMu.RLock()
	h := w.files
	w.filesMu.RUnlock()
	if h == nil {
		return nil
	}
	path := pathOf(rawURL)
	if path == "" {
		path = "/"
	}
	return h(path)
}

// contentType picks a MIME type from the extension, falling back to
// sniffing the body.
func contentType(rawURL string, body []byte) string {
	path := pathOf(rawURL)
	switch {
	case strings.HasSuffix(path, ".js"):
		return "application/javascript"
	case strings.HasSuffix(path, ".css"):
		return "text/css"
	}
	return mimetype.Detect(body).String()
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}

func (w *window) execDispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Panic in dispatch.", zap.Any("panic_value", r), zap.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}

func (w *window) fire(t native.EventType, element string, ev native.EventID) {
	for _, b := range w.bindings.Match(t, element) {
		b.Fn(w.handle, uint(t), element, ev, b.ID)
	}
}

func (w *window) nextEvent() native.EventID {
	return native.EventID(w.eventIDs.Next())
}

func (w *window) setArgs(ev native.EventID, args []any) {
	w.argsMu.Lock()
	w.args[ev] = args
	w.argsMu.Unlock()
}

func (w *window) dropArgs(ev native.EventID) {
	w.argsMu.Lock()
	delete(w.args, ev)
	w.argsMu.Unlock()
}

func (w *window) arg(ev native.EventID, index uint) (any, bool) {
	w.argsMu.RLock()
	defer w.argsMu.RUnlock()
	args := w.args[ev]
	if int(index) >= len(args) {
		return nil, false
	}
	return args[index], true
}

func (w *window) argString(ev native.EventID, index uint) string {
	v, ok := w.arg(ev, index)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	s, _ := json.MarshalToString(v)
	return s
}

// script evaluates code as an async function body and returns its result.
func (w *window) script(code string, timeout time.Duration) (bool, []byte) {
	ctx := w.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var res *cdpruntime.RemoteObject
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		expr := "(async function () {\n" + code + "\n})()"
		obj, exc, err := cdpruntime.Evaluate(expr).
			WithAwaitPromise(true).
			WithReturnByValue(true).
			WithSilent(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		res = obj
		return nil
	}))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return false, []byte(fmt.Sprintf("script timed out after %s", timeout))
		}
		return false, []byte(err.Error())
	}
	return true, valueBytes(res)
}

// valueBytes renders a by-value result the way a string conversion in the
// page would: strings bare, everything else as JSON text.
func valueBytes(obj *cdpruntime.RemoteObject) []byte {
	if obj == nil || obj.Type == cdpruntime.TypeUndefined || obj.Subtype == cdpruntime.SubtypeNull {
		return nil
	}
	if obj.UnserializableValue != "" {
		return []byte(obj.UnserializableValue.String())
	}
	if len(obj.Value) == 0 {
		return nil
	}
	if obj.Type == cdpruntime.TypeString {
		var s string
		if err := json.Unmarshal([]byte(obj.Value), &s); err == nil {
			return []byte(s)
		}
	}
	return []byte(obj.Value)
}

func evaluateNoWait(ctx context.Context, code string) error {
	return chromedp.Run(ctx, chromedp.Evaluate(code, nil))
}

// run queues code behind every earlier run, so a listener registration can
// never be overtaken by the abort that follows it.
func (w *window) run(code string) {
	if !w.runQ.Push(func() { w.evalQueued(code) }) {
		w.logger.Debug("Dropping script for closed window.")
	}
}

func (w *window) evalQueued(code string) {
	if err := w.evaluate(w.ctx, code); err != nil && w.valid.Load() {
		w.logger.Debug("Fire-and-forget script failed.", zap.Error(err))
	}
}

func (w *window) drainRuns() {
	defer close(w.runDone)
	w.runQ.Run(func(job func()) { job() })
}

func (w *window) sendRaw(fn string, data []byte) {
	code := fmt.Sprintf(
		"(function(){var s=atob(%q),b=new Uint8Array(s.length);for(var i=0;i<s.length;i++){b[i]=s.charCodeAt(i);}%s(b);})()",
		base64.StdEncoding.EncodeToString(data), fn)
	w.run(code)
}

// close marks the window dead, emits Disconnect and stops dispatch. It is
// safe to call more than once.
func (w *window) close() {
	w.closeOnce.Do(func() {
		w.valid.Store(false)
		w.dispatchQ.Push(func() { w.fire(native.EventDisconnect, "", w.nextEvent()) })
		w.dispatchQ.Close()
		w.runQ.Close()
		w.cancel()
	})
}
