// internal/native/sim/page.go
package sim

import (
	_ "embed"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/native"
	"github.com/xkilldash9x/webbridge/internal/registry"
)

//go:embed prelude.js
var prelude string

var (
	ErrPageClosed = errors.New("sim: page closed")
	ErrNotFound   = errors.New("sim: not found")
)

// Page is one simulated window: a goja runtime owned by a single loop
// goroutine plus a separate goroutine that runs native dispatches.
type Page struct {
	win    native.WindowHandle
	logger *zap.Logger

	vm        *goja.Runtime
	loop      *native.Queue
	dispatchQ *native.Queue
	done      sync.WaitGroup

	bindings native.Bindings
	pending  *registry.Pending[native.EventID, string]
	eventIDs *registry.Sequence

	argsMu sync.RWMutex
	args   map[native.EventID][]any

	filesMu sync.RWMutex
	files   native.FileHandlerFunc

	valid atomic.Bool

	// running guards interrupts so a timed out script never interrupts
	// a job that is not its own.
	runMu   sync.Mutex
	running uint64
	jobIDs  atomic.Uint64

	timersMu sync.Mutex
	timers   map[int64]*time.Timer
	timerIDs int64

	stringify goja.Callable
}

func newPage(win native.WindowHandle, url string, logger *zap.Logger) (*Page, error) {
	p := &Page{
		win:       win,
		logger:    logger,
		vm:        goja.New(),
		loop:      native.NewQueue(),
		dispatchQ: native.NewQueue(),
		pending:   registry.NewPending[native.EventID, string](),
		eventIDs:  registry.NewSequence(0),
		args:      make(map[native.EventID][]any),
		timers:    make(map[int64]*time.Timer),
	}

	// 1. Host hooks the prelude builds on.
	start := time.Now()
	hooks := p.vm.NewObject()
	for name, v := range map[string]any{
		"navigationStart": float64(start.UnixMicro()) / 1e3,
		"url":             url,
		"now":             func() float64 { return float64(time.Now().UnixMicro()) / 1e3 },
		"log":             p.jsLog,
		"call":            p.jsCall,
		"click":           p.jsClick,
		"setTimeout":      p.jsSetTimeout,
		"clearTimeout":    p.jsClearTimeout,
	} {
		if err := hooks.Set(name, v); err != nil {
			return nil, fmt.Errorf("sim: install hook %s: %w", name, err)
		}
	}
	if err := p.vm.Set("__sim", hooks); err != nil {
		return nil, fmt.Errorf("sim: install hooks: %w", err)
	}

	// 2. DOM prelude.
	if _, err := p.vm.RunString(prelude); err != nil {
		return nil, fmt.Errorf("sim: prelude: %w", err)
	}
	stringify, ok := goja.AssertFunction(p.vm.Get("JSON").ToObject(p.vm).Get("stringify"))
	if !ok {
		return nil, errors.New("sim: JSON.stringify missing")
	}
	p.stringify = stringify

	// 3. Start the loops.
	p.valid.Store(true)
	p.done.Add(2)
	go func() {
		defer p.done.Done()
		p.loop.Run(p.execJob)
	}()
	go func() {
		defer p.done.Done()
		p.dispatchQ.Run(p.execDispatch)
	}()
	return p, nil
}

// Window returns the native handle of the page.
func (p *Page) Window() native.WindowHandle { return p.win }

func (p *Page) execJob(fn func()) {
	id := p.jobIDs.Add(1)
	p.runMu.Lock()
	p.running = id
	p.vm.ClearInterrupt()
	p.runMu.Unlock()

	defer func() {
		p.runMu.Lock()
		p.running = 0
		p.runMu.Unlock()
		if r := recover(); r != nil {
			p.logger.Error("Panic in page job.", zap.Any("panic_value", r), zap.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}

func (p *Page) execDispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic in dispatch.", zap.Any("panic_value", r), zap.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}

// do runs fn on the loop and waits for it. It reports false if the page is
// closed.
func (p *Page) do(fn func()) bool {
	done := make(chan struct{})
	if !p.loop.Push(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	<-done
	return true
}

// -- JS hooks, all called on the loop goroutine --

func (p *Page) jsLog(level, msg string) {
	switch level {
	case "debug":
		p.logger.Debug(msg)
	case "warn":
		p.logger.Warn(msg)
	case "error":
		p.logger.Error(msg)
	default:
		p.logger.Info(msg)
	}
}

func (p *Page) jsCall(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	args := make([]any, 0, len(call.Arguments))
	for _, a := range call.Arguments[1:] {
		args = append(args, a.Export())
	}

	promise, resolve, _ := p.vm.NewPromise()
	ev := native.EventID(p.eventIDs.Next())
	p.setArgs(ev, args)
	_ = p.pending.Add(ev, func(resp string) {
		p.loop.Push(func() {
			if err := resolve(resp); err != nil {
				p.logger.Warn("Could not settle page call.", zap.Error(err))
			}
		})
	})

	p.dispatchQ.Push(func() {
		p.fire(native.EventCallback, name, ev)
		// webui answers an unanswered call with an empty string.
		p.pending.Resolve(ev, "")
		p.dropArgs(ev)
	})
	return p.vm.ToValue(promise)
}

func (p *Page) jsClick(id string) {
	if !p.bindings.Clickable(id) {
		return
	}
	ev := native.EventID(p.eventIDs.Next())
	p.dispatchQ.Push(func() { p.fire(native.EventMouseClick, id, ev) })
}

func (p *Page) jsSetTimeout(fn goja.Callable, ms int64) int64 {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	p.timerIDs++
	id := p.timerIDs
	p.timers[id] = time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		p.timersMu.Lock()
		_, live := p.timers[id]
		delete(p.timers, id)
		p.timersMu.Unlock()
		if live {
			p.loop.Push(func() {
				if _, err := fn(goja.Undefined()); err != nil {
					p.logger.Warn("Timer callback failed.", zap.Error(err))
				}
			})
		}
	})
	return id
}

func (p *Page) jsClearTimeout(id int64) {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	if t, ok := p.timers[id]; ok {
		t.Stop()
		delete(p.timers, id)
	}
}

// -- dispatch --

// fire runs every matching binding. Called on the dispatch goroutine.
func (p *Page) fire(t native.EventType, element string, ev native.EventID) {
	p.fireCode(uint(t), t, element, ev)
}

func (p *Page) fireCode(code uint, route native.EventType, element string, ev native.EventID) {
	for _, b := range p.bindings.Match(route, element) {
		b.Fn(p.win, code, element, ev, b.ID)
	}
}

func (p *Page) setArgs(ev native.EventID, args []any) {
	p.argsMu.Lock()
	p.args[ev] = args
	p.argsMu.Unlock()
}

func (p *Page) dropArgs(ev native.EventID) {
	p.argsMu.Lock()
	delete(p.args, ev)
	p.argsMu.Unlock()
}

func (p *Page) arg(ev native.EventID, index uint) (any, bool) {
	p.argsMu.RLock()
	defer p.argsMu.RUnlock()
	args := p.args[ev]
	if int(index) >= len(args) {
		return nil, false
	}
	return args[index], true
}

func (p *Page) argString(ev native.EventID, index uint) string {
	v, ok := p.arg(ev, index)
	if !ok || v == nil {
		return ""
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

// -- script evaluation --

type scriptResult struct {
	ok  bool
	out []byte
}

func (p *Page) script(code string, timeout time.Duration) (bool, []byte) {
	if !p.valid.Load() {
		return false, []byte(ErrPageClosed.Error())
	}

	done := make(chan scriptResult, 1)
	var jobID atomic.Uint64
	queued := p.loop.Push(func() {
		p.runMu.Lock()
		jobID.Store(p.running)
		p.runMu.Unlock()
		p.evalAsync(code, done)
	})
	if !queued {
		return false, []byte(ErrPageClosed.Error())
	}

	if timeout <= 0 {
		r := <-done
		return r.ok, r.out
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.ok, r.out
	case <-timer.C:
		p.runMu.Lock()
		if id := jobID.Load(); id != 0 && p.running == id {
			p.vm.Interrupt("script timeout")
		}
		p.runMu.Unlock()
		return false, []byte(fmt.Sprintf("script timed out after %s", timeout))
	}
}

// evalAsync runs code as an async function body and reports its settled
// value on done.
func (p *Page) evalAsync(code string, done chan<- scriptResult) {
	fnVal, err := p.vm.RunString("(async function () {\n" + code + "\n})")
	if err != nil {
		done <- scriptResult{false, []byte(err.Error())}
		return
	}
	fn, _ := goja.AssertFunction(fnVal)
	res, err := fn(goja.Undefined())
	if err != nil {
		done <- scriptResult{false, []byte(err.Error())}
		return
	}

	promise, ok := res.Export().(*goja.Promise)
	if !ok {
		done <- scriptResult{true, p.valueBytes(res)}
		return
	}
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		done <- scriptResult{true, p.valueBytes(promise.Result())}
		return
	case goja.PromiseStateRejected:
		done <- scriptResult{false, []byte(promise.Result().String())}
		return
	}

	then, _ := goja.AssertFunction(res.ToObject(p.vm).Get("then"))
	onOK := p.vm.ToValue(func(v goja.Value) { done <- scriptResult{true, p.valueBytes(v)} })
	onErr := p.vm.ToValue(func(v goja.Value) { done <- scriptResult{false, []byte(v.String())} })
	if _, err := then(res, onOK, onErr); err != nil {
		done <- scriptResult{false, []byte(err.Error())}
	}
}

func (p *Page) valueBytes(v goja.Value) []byte {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if _, isObj := v.(*goja.Object); !isObj {
		return []byte(v.String())
	}
	out, err := p.stringify(goja.Undefined(), v)
	if err != nil || goja.IsUndefined(out) {
		return []byte(v.String())
	}
	return []byte(out.String())
}

func (p *Page) run(code string) {
	p.loop.Push(func() {
		if _, err := p.vm.RunString(code); err != nil {
			p.logger.Warn("Script failed.", zap.Error(err))
		}
	})
}

func (p *Page) sendRaw(fn string, data []byte) {
	buf := append([]byte(nil), data...)
	p.loop.Push(func() {
		target, err := p.vm.RunString(fn)
		if err != nil {
			p.logger.Warn("Raw target lookup failed.", zap.String("function", fn), zap.Error(err))
			return
		}
		call, ok := goja.AssertFunction(target)
		if !ok {
			p.logger.Warn("Raw target is not a function.", zap.String("function", fn))
			return
		}
		arr, err := p.vm.New(p.vm.Get("Uint8Array"), p.vm.ToValue(p.vm.NewArrayBuffer(buf)))
		if err != nil {
			p.logger.Warn("Could not build Uint8Array.", zap.Error(err))
			return
		}
		if _, err := call(goja.Undefined(), arr); err != nil {
			p.logger.Warn("Raw call failed.", zap.String("function", fn), zap.Error(err))
		}
	})
}

// -- lifecycle --

func (p *Page) destroy() {
	if !p.valid.CompareAndSwap(true, false) {
		return
	}
	p.dispatchQ.Push(func() { p.fire(native.EventDisconnect, "", native.EventID(p.eventIDs.Next())) })
	p.dispatchQ.Close()
	p.loop.Close()

	p.timersMu.Lock()
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.timersMu.Unlock()
	p.logger.Debug("Page destroyed.")
}

func (p *Page) wait() { p.done.Wait() }
