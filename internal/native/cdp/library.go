// internal/native/cdp/library.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/native"
	"github.com/xkilldash9x/webbridge/internal/registry"
)

// ErrUnknownWindow is returned for handles the library did not create.
var ErrUnknownWindow = errors.New("cdp: unknown window")

var windowIDs = registry.NewSequence(0)

// Library is a native.Library that drives Chromium over the DevTools
// protocol. Every window is one tab of a single browser process.
type Library struct {
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu      sync.RWMutex
	windows map[native.WindowHandle]*window
}

var _ native.Library = (*Library)(nil)

// New launches the browser. The process lives until Close or until ctx is
// cancelled.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Library, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cdp")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Warnf),
	)

	// 1. Start the process with an empty run so launch errors surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("cdp: start browser: %w", err)
	}

	logger.Info("Browser started.", zap.Bool("headless", opts.Headless))
	return &Library{
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		windows:       make(map[native.WindowHandle]*window),
	}, nil
}

// NewWindow opens a blank tab with the page shim installed.
func (l *Library) NewWindow() (native.WindowHandle, error) {
	handle := native.WindowHandle(windowIDs.Next())
	logger := l.logger.With(zap.Uint64("window", uint64(handle)), zap.String("session_id", uuid.NewString()))

	tabCtx, tabCancel := chromedp.NewContext(l.browserCtx)
	w := newWindow(tabCtx, tabCancel, handle, logger)
	if err := w.start(); err != nil {
		return 0, fmt.Errorf("cdp: new window: %w", err)
	}

	l.mu.Lock()
	l.windows[handle] = w
	l.mu.Unlock()
	logger.Debug("Window created.")
	return handle, nil
}

// Show navigates the window to url and waits for the load to finish.
func (l *Library) Show(win native.WindowHandle, url string) error {
	w := l.window(win)
	if w == nil {
		return ErrUnknownWindow
	}
	if err := chromedp.Run(w.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("cdp: show %s: %w", url, err)
	}
	return nil
}

// Wait blocks until the window is gone or ctx is done.
func (l *Library) Wait(ctx context.Context, win native.WindowHandle) error {
	w := l.window(win)
	if w == nil {
		return ErrUnknownWindow
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close destroys every window and stops the browser.
func (l *Library) Close() {
	l.mu.Lock()
	windows := make([]*window, 0, len(l.windows))
	for _, w := range l.windows {
		windows = append(windows, w)
	}
	l.mu.Unlock()

	for _, w := range windows {
		w.close()
	}
	for _, w := range windows {
		<-w.done
		<-w.runDone
	}
	l.browserCancel()
	l.allocCancel()
	l.logger.Info("Browser stopped.")
}

func (l *Library) window(win native.WindowHandle) *window {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.windows[win]
}

func (l *Library) Bind(win native.WindowHandle, element string, fn native.DispatchFunc) native.HandlerID {
	w := l.window(win)
	if w == nil || !w.valid.Load() {
		return native.InvalidHandler
	}
	return w.bindings.Add(element, fn)
}

func (l *Library) Script(win native.WindowHandle, code string, timeoutSeconds uint) (bool, []byte) {
	w := l.window(win)
	if w == nil {
		return false, []byte(ErrUnknownWindow.Error())
	}
	return w.script(code, time.Duration(timeoutSeconds)*time.Second)
}

func (l *Library) Run(win native.WindowHandle, code string) {
	if w := l.window(win); w != nil {
		w.run(code)
	}
}

func (l *Library) SendRaw(win native.WindowHandle, fn string, data []byte) {
	if w := l.window(win); w != nil {
		w.sendRaw(fn, data)
	}
}

func (l *Library) SetFileHandler(win native.WindowHandle, h native.FileHandlerFunc) {
	if w := l.window(win); w != nil {
		w.filesMu.Lock()
		w.files = h
		w.filesMu.Unlock()
	}
}

func (l *Library) Int(win native.WindowHandle, ev native.EventID, index uint) int64 {
	if w := l.window(win); w != nil {
		if v, ok := w.arg(ev, index); ok {
			return cast.ToInt64(v)
		}
	}
	return 0
}

func (l *Library) Float(win native.WindowHandle, ev native.EventID, index uint) float64 {
	if w := l.window(win); w != nil {
		if v, ok := w.arg(ev, index); ok {
			return cast.ToFloat64(v)
		}
	}
	return 0
}

func (l *Library) String(win native.WindowHandle, ev native.EventID, index uint) string {
	if w := l.window(win); w != nil {
		return w.argString(ev, index)
	}
	return ""
}

func (l *Library) Bool(win native.WindowHandle, ev native.EventID, index uint) bool {
	if w := l.window(win); w != nil {
		if v, ok := w.arg(ev, index); ok {
			return cast.ToBool(v)
		}
	}
	return false
}

func (l *Library) Size(win native.WindowHandle, ev native.EventID, index uint) uint {
	return uint(len(l.String(win, ev, index)))
}

func (l *Library) SetResponse(win native.WindowHandle, ev native.EventID, response string) {
	if w := l.window(win); w != nil {
		w.pending.Resolve(ev, response)
	}
}

func (l *Library) IsValid(win native.WindowHandle) bool {
	w := l.window(win)
	return w != nil && w.valid.Load()
}

func (l *Library) Destroy(win native.WindowHandle) {
	if w := l.window(win); w != nil {
		w.close()
	}
}
