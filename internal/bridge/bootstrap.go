// internal/bridge/bootstrap.go
package bridge

import (
	_ "embed"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/native"
)

// BridgePath is the virtual path the bridge script is served from.
const BridgePath = "/webui_net.js"

//go:embed bridge.js
var bridgeScript []byte

// Script returns a copy of the embedded bridge script.
func Script() []byte {
	out := make([]byte, len(bridgeScript))
	copy(out, bridgeScript)
	return out
}

// ScriptTag returns the element a page includes to load the bridge.
func ScriptTag() string {
	return `<script src="` + BridgePath + `"></script>`
}

// Bootstrap owns the window's file handler so the bridge script is always
// reachable, whatever handler the application installs.
type Bootstrap struct {
	lib    native.Library
	win    native.WindowHandle
	logger *zap.Logger

	once sync.Once
	mu   sync.RWMutex
	app  native.FileHandlerFunc
}

// NewBootstrap prepares, but does not install, the composed handler.
func NewBootstrap(lib native.Library, win native.WindowHandle, logger *zap.Logger) *Bootstrap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrap{lib: lib, win: win, logger: logger.Named("bootstrap")}
}

// Install registers the composed handler with the native layer. Only the
// first call has an effect.
func (b *Bootstrap) Install() {
	b.once.Do(func() {
		b.lib.SetFileHandler(b.win, b.Serve)
		b.logger.Debug("Installed bridge file handler.", zap.String("path", BridgePath))
	})
}

// SetFileHandler sets the application handler consulted after the bridge
// path. A nil handler leaves every other path to native resolution.
func (b *Bootstrap) SetFileHandler(h native.FileHandlerFunc) {
	b.mu.Lock()
	b.app = h
	b.mu.Unlock()
	b.Install()
}

// Serve answers one request. The bridge path always wins.
func (b *Bootstrap) Serve(path string) []byte {
	clean := path
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	if clean == BridgePath {
		return Script()
	}

	b.mu.RLock()
	app := b.app
	b.mu.RUnlock()
	if app == nil {
		return nil
	}
	return app(path)
}
