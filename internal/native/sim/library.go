// internal/native/sim/library.go
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/native"
	"github.com/xkilldash9x/webbridge/internal/registry"
)

var windowIDs = registry.NewSequence(0)

// Library is an in-process native.Library backed by simulated pages. It
// serves tests and headless runs where no browser is available.
type Library struct {
	logger *zap.Logger

	mu    sync.RWMutex
	pages map[native.WindowHandle]*Page
}

var _ native.Library = (*Library)(nil)

// New creates an empty library.
func New(logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{
		logger: logger.Named("sim"),
		pages:  make(map[native.WindowHandle]*Page),
	}
}

// NewWindow creates a page showing url. The page is not connected until
// Connect is called, mirroring a browser that has not loaded yet.
func (l *Library) NewWindow(url string) (*Page, error) {
	win := native.WindowHandle(windowIDs.Next())
	logger := l.logger.With(zap.Uint64("window", uint64(win)), zap.String("page_id", uuid.NewString()))
	p, err := newPage(win, url, logger)
	if err != nil {
		return nil, fmt.Errorf("sim: new window: %w", err)
	}

	l.mu.Lock()
	l.pages[win] = p
	l.mu.Unlock()
	logger.Debug("Page created.", zap.String("url", url))
	return p, nil
}

// Page returns the page behind win.
func (l *Library) Page(win native.WindowHandle) (*Page, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.pages[win]
	return p, ok
}

// Close destroys every page and waits for their goroutines. It must not be
// called from a dispatch handler.
func (l *Library) Close() {
	l.mu.Lock()
	pages := make([]*Page, 0, len(l.pages))
	for _, p := range l.pages {
		pages = append(pages, p)
	}
	l.mu.Unlock()

	for _, p := range pages {
		p.destroy()
	}
	for _, p := range pages {
		p.wait()
	}
}

func (l *Library) page(win native.WindowHandle) *Page {
	p, ok := l.Page(win)
	if !ok {
		return nil
	}
	return p
}

func (l *Library) Bind(win native.WindowHandle, element string, fn native.DispatchFunc) native.HandlerID {
	p := l.page(win)
	if p == nil || !p.valid.Load() {
		return native.InvalidHandler
	}
	return p.bindings.Add(element, fn)
}

func (l *Library) Script(win native.WindowHandle, code string, timeoutSeconds uint) (bool, []byte) {
	p := l.page(win)
	if p == nil {
		return false, []byte(ErrNotFound.Error())
	}
	return p.script(code, time.Duration(timeoutSeconds)*time.Second)
}

func (l *Library) Run(win native.WindowHandle, code string) {
	if p := l.page(win); p != nil {
		p.run(code)
	}
}

func (l *Library) SendRaw(win native.WindowHandle, fn string, data []byte) {
	if p := l.page(win); p != nil {
		p.sendRaw(fn, data)
	}
}

func (l *Library) SetFileHandler(win native.WindowHandle, h native.FileHandlerFunc) {
	if p := l.page(win); p != nil {
		p.filesMu.Lock()
		p.files = h
		p.filesMu.Unlock()
	}
}

func (l *Library) Int(win native.WindowHandle, ev native.EventID, index uint) int64 {
	if p := l.page(win); p != nil {
		if v, ok := p.arg(ev, index); ok {
			return cast.ToInt64(v)
		}
	}
	return 0
}

func (l *Library) Float(win native.WindowHandle, ev native.EventID, index uint) float64 {
	if p := l.page(win); p != nil {
		if v, ok := p.arg(ev, index); ok {
			return cast.ToFloat64(v)
		}
	}
	return 0
}

func (l *Library) String(win native.WindowHandle, ev native.EventID, index uint) string {
	if p := l.page(win); p != nil {
		return p.argString(ev, index)
	}
	return ""
}

func (l *Library) Bool(win native.WindowHandle, ev native.EventID, index uint) bool {
	if p := l.page(win); p != nil {
		if v, ok := p.arg(ev, index); ok {
			return cast.ToBool(v)
		}
	}
	return false
}

func (l *Library) Size(win native.WindowHandle, ev native.EventID, index uint) uint {
	return uint(len(l.String(win, ev, index)))
}

func (l *Library) SetResponse(win native.WindowHandle, ev native.EventID, response string) {
	if p := l.page(win); p != nil {
		p.pending.Resolve(ev, response)
	}
}

func (l *Library) IsValid(win native.WindowHandle) bool {
	p := l.page(win)
	return p != nil && p.valid.Load()
}

func (l *Library) Destroy(win native.WindowHandle) {
	if p := l.page(win); p != nil {
		p.destroy()
	}
}
