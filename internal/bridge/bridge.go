// internal/bridge/bridge.go
package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/dispatch"
	"github.com/xkilldash9x/webbridge/internal/native"
	"github.com/xkilldash9x/webbridge/internal/registry"
)

const (
	// RelayName is the native binding every script to host call arrives on.
	RelayName = "webuiNet_Callback"

	jsNamespace = "window.WebUINet"
)

var (
	ErrClosed       = errors.New("bridge: closed")
	ErrRelayBinding = errors.New("bridge: relay binding failed")
)

// ScriptError is returned when the page reports a failed evaluation.
type ScriptError struct {
	Script  string
	Message string
}

func (e *ScriptError) Error() string {
	if e.Message == "" {
		return "bridge: script evaluation failed"
	}
	return "bridge: script evaluation failed: " + e.Message
}

// Options tunes a Bridge. Zero durations take the defaults below.
type Options struct {
	Debug           bool
	EvalTimeout     time.Duration
	DeliveryTimeout time.Duration
}

const (
	DefaultEvalTimeout     = 30 * time.Second
	DefaultDeliveryTimeout = 10 * time.Second
)

type exposure struct {
	id      registry.FunctionID
	name    string
	returns bool
}

// Bridge carries calls in both directions for one window.
type Bridge struct {
	adapter *dispatch.Adapter
	lib     native.Library
	win     native.WindowHandle
	boot    *Bootstrap
	logger  *zap.Logger
	opts    Options

	functions *registry.Functions
	relayErr  error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	exposed []exposure
}

// New creates the bridge for the adapter's window and installs the bootstrap
// file handler.
func New(adapter *dispatch.Adapter, opts Options, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.EvalTimeout <= 0 {
		opts.EvalTimeout = DefaultEvalTimeout
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultDeliveryTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		adapter: adapter,
		lib:     adapter.Library(),
		win:     adapter.Window(),
		logger:  logger.Named("bridge"),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
	b.boot = NewBootstrap(b.lib, b.win, b.logger)
	b.functions = registry.NewFunctions(b.bindRelay)
	b.boot.Install()
	return b
}

// Bootstrap returns the file handler composer for this window.
func (b *Bridge) Bootstrap() *Bootstrap { return b.boot }

// SetFileHandler installs h behind the bridge script path.
func (b *Bridge) SetFileHandler(h native.FileHandlerFunc) { b.boot.SetFileHandler(h) }

// Functions exposes the function table, mainly for inspection.
func (b *Bridge) Functions() *registry.Functions { return b.functions }

// -- Host to script --

// Invoke calls fn in the page without waiting for it.
func (b *Bridge) Invoke(fn string, args ...any) {
	b.lib.Run(b.win, EncodeCall(fn, args...))
}

// InvokeRaw calls fn in the page with data as a Uint8Array.
func (b *Bridge) InvokeRaw(fn string, data []byte) {
	b.lib.SendRaw(b.win, fn, data)
}

// InvokeAndWait evaluates script as a function body and waits up to timeout,
// rounded up to whole seconds. A zero timeout waits indefinitely.
func (b *Bridge) InvokeAndWait(script string, timeout time.Duration) (bool, []byte) {
	return b.lib.Script(b.win, script, seconds(timeout))
}

// Evaluate calls method with args in the page and returns the string form of
// its result, awaiting it if it is a promise.
func (b *Bridge) Evaluate(ctx context.Context, method string, args ...any) (string, error) {
	return b.evaluate(ctx, "return "+EncodeCall(method, args...)+";")
}

// EvaluateInto calls method and decodes its JSON encoded result into out.
func (b *Bridge) EvaluateInto(ctx context.Context, out any, method string, args ...any) error {
	return b.EvaluateJSON(ctx, "return JSON.stringify(await "+EncodeCall(method, args...)+");", out)
}

// EvaluateJSON runs script as a function body and decodes its result as JSON.
func (b *Bridge) EvaluateJSON(ctx context.Context, script string, out any) error {
	res, err := b.evaluate(ctx, script)
	if err != nil {
		return err
	}
	if res == "" {
		return nil
	}
	if err := json.UnmarshalFromString(res, out); err != nil {
		return fmt.Errorf("bridge: decode script result: %w", err)
	}
	return nil
}

func (b *Bridge) evaluate(ctx context.Context, script string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	timeout := b.opts.EvalTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return "", context.DeadlineExceeded
		}
	}

	type result struct {
		ok  bool
		out []byte
	}
	done := make(chan result, 1)
	go func() {
		ok, out := b.lib.Script(b.win, script, seconds(timeout))
		done <- result{ok, out}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if !r.ok {
			return "", &ScriptError{Script: script, Message: string(r.out)}
		}
		return string(r.out), nil
	}
}

// SetDebug toggles verbose logging in the page script.
func (b *Bridge) SetDebug(on bool) {
	b.mu.Lock()
	b.opts.Debug = on
	b.mu.Unlock()
	b.Invoke(jsNamespace+".setDebug", on)
}

// -- Script to host --

// RegisterFunction exposes fn to the page as window[name]. Calls resolve
// immediately; nothing is sent back.
func (b *Bridge) RegisterFunction(name string, fn registry.FireAndForget) (registry.FunctionID, error) {
	return b.Register(name, fn)
}

// RegisterAsyncFunction exposes fn to the page as window[name] returning a
// promise for the function's result.
func (b *Bridge) RegisterAsyncFunction(name string, fn registry.Returning) (registry.FunctionID, error) {
	return b.Register(name, fn)
}

// Register stores h and, when name is not empty, exposes it to the page.
func (b *Bridge) Register(name string, h registry.Handler) (registry.FunctionID, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	id, err := b.functions.Register(h)
	if err != nil {
		return 0, err
	}
	if b.relayErr != nil {
		return id, b.relayErr
	}
	if name == "" {
		return id, nil
	}

	e := exposure{id: id, name: name, returns: h.Kind() == registry.KindReturning}
	b.mu.Lock()
	b.exposed = append(b.exposed, e)
	b.mu.Unlock()
	b.expose(e)
	return id, nil
}

func (b *Bridge) expose(e exposure) {
	b.Invoke(jsNamespace+".addHostFunction", int64(e.id), e.name, e.returns)
	b.logger.Debug("Exposed host function.", zap.String("name", e.name), zap.Int64("function_id", int64(e.id)))
}

// Reexpose announces every named function again, e.g. after the page
// reloaded and lost its globals.
func (b *Bridge) Reexpose() {
	b.mu.Lock()
	all := append([]exposure(nil), b.exposed...)
	debugOn := b.opts.Debug
	b.mu.Unlock()

	if debugOn {
		b.Invoke(jsNamespace+".setDebug", true)
	}
	for _, e := range all {
		b.expose(e)
	}
}

// bindRelay runs once, on the first registration.
func (b *Bridge) bindRelay() {
	if _, err := b.adapter.Bind(RelayName, b.relay); err != nil {
		b.relayErr = fmt.Errorf("%w: %w", ErrRelayBinding, err)
		b.logger.Error("Could not bind relay.", zap.Error(err))
		return
	}
	// A fresh page has none of our globals; announce them on every connect.
	if _, err := b.adapter.Bind("", func(e *dispatch.Event) any {
		if e.Type == native.EventConnect {
			b.Reexpose()
		}
		return nil
	}); err != nil {
		b.logger.Warn("Could not bind connect hook.", zap.Error(err))
	}
}

func (b *Bridge) relay(e *dispatch.Event) any {
	fid := registry.FunctionID(e.Int(0))
	callID := registry.CallID(e.Int(1))
	args := e.String(2)

	h, ok := b.functions.Lookup(fid)
	if !ok {
		b.logger.Debug("Ignoring call for unknown function.", zap.Int64("function_id", int64(fid)))
		return nil
	}

	switch fn := h.(type) {
	case registry.FireAndForget:
		b.runFire(fid, fn, args)
	case registry.Returning:
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			b.logger.Debug("Dropping call after close.", zap.Int64("call_id", int64(callID)))
			return nil
		}
		b.wg.Add(1)
		b.mu.Unlock()
		go b.runReturning(fid, callID, fn, args)
	}
	return nil
}

func (b *Bridge) runFire(fid registry.FunctionID, fn registry.FireAndForget, args string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Host function panicked.",
				zap.Int64("function_id", int64(fid)),
				zap.Any("panic_value", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()
	fn(args)
}

type outcome struct {
	result string
	err    error
}

// runReturning runs off the dispatch goroutine, but the handler itself still
// goes through the adapter's invoker so it keeps the host's thread affinity.
func (b *Bridge) runReturning(fid registry.FunctionID, callID registry.CallID, fn registry.Returning, args string) {
	defer b.wg.Done()
	v := b.adapter.Invoker().Invoke(func() any {
		result, err := b.callReturning(fid, fn, args)
		return outcome{result, err}
	})
	o, ok := v.(outcome)
	if !ok {
		o.err = errors.New("host function returned no outcome")
	}
	b.deliver(callID, o.result, o.err)
}

func (b *Bridge) callReturning(fid registry.FunctionID, fn registry.Returning, args string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Host function panicked.",
				zap.Int64("function_id", int64(fid)),
				zap.Any("panic_value", r),
				zap.String("stack", string(debug.Stack())))
			result, err = "", fmt.Errorf("host function panicked: %v", r)
		}
	}()
	return fn(b.ctx, args)
}

func (b *Bridge) deliver(callID registry.CallID, result string, err error) {
	var code string
	if err != nil {
		code = EncodeCall(jsNamespace+".setHostResult", int64(callID), "", err.Error())
	} else {
		code = EncodeCall(jsNamespace+".setHostResult", int64(callID), result)
	}
	if ok, out := b.lib.Script(b.win, code, seconds(b.opts.DeliveryTimeout)); !ok {
		b.logger.Warn("Result delivery failed.",
			zap.Int64("call_id", int64(callID)),
			zap.ByteString("error", out))
	}
}

// Close stops accepting new host calls and waits for in-flight results to be
// delivered. If ctx ends first the handlers' context is cancelled.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}

// Destroy closes the bridge, destroys the native window and releases the
// dispatch trampolines.
func (b *Bridge) Destroy(ctx context.Context) error {
	closeErr := b.Close(ctx)
	b.lib.Destroy(b.win)
	if err := b.adapter.Release(); err != nil {
		return errors.Join(closeErr, fmt.Errorf("bridge: release dispatch: %w", err))
	}
	return closeErr
}

func seconds(d time.Duration) uint {
	if d <= 0 {
		return 0
	}
	return uint((d + time.Second - 1) / time.Second)
}
