// File: cmd/session.go
package cmd

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/bridge"
	"github.com/xkilldash9x/webbridge/internal/config"
	"github.com/xkilldash9x/webbridge/internal/dispatch"
	"github.com/xkilldash9x/webbridge/internal/domevents"
	"github.com/xkilldash9x/webbridge/internal/native"
	"github.com/xkilldash9x/webbridge/internal/native/cdp"
	"github.com/xkilldash9x/webbridge/internal/native/sim"
)

// DefaultStartURL is intercepted by the cdp backend, so it never reaches the
// network.
const DefaultStartURL = "http://webbridge.localhost/"

//go:embed demo.html
var demoPage []byte

// session is one window with a bridge and a DOM proxy on top of it.
type session struct {
	cfg    config.Interface
	logger *zap.Logger

	lib     native.Library
	win     native.WindowHandle
	adapter *dispatch.Adapter
	bridge  *bridge.Bridge
	proxy   *domevents.Proxy
	serial  *dispatch.Serial

	// Backend specific hooks.
	show     func(ctx context.Context, url string) error
	shutdown func()

	connected    chan struct{}
	disconnected chan struct{}
	connectOnce  sync.Once
	closeOnce    sync.Once
}

// openSession starts the configured backend and wires the bridge into a new
// window. Nothing is shown until show is called.
func openSession(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*session, error) {
	s := &session{
		cfg:          cfg,
		logger:       logger,
		connected:    make(chan struct{}),
		disconnected: make(chan struct{}),
	}

	// 1. Backend and window.
	var err error
	switch cfg.Browser().Backend {
	case config.BackendSim:
		err = s.openSim()
	case config.BackendCDP:
		err = s.openCDP(ctx)
	default:
		err = fmt.Errorf("unknown browser backend %q", cfg.Browser().Backend)
	}
	if err != nil {
		return nil, err
	}

	// 2. Dispatch adapter, optionally marshaled onto one goroutine.
	var invoker dispatch.Invoker = dispatch.Direct{}
	if cfg.Bridge().Dispatcher == config.DispatcherSerial {
		s.serial = dispatch.NewSerial(logger)
		invoker = s.serial
	}
	s.adapter = dispatch.New(s.lib, s.win, invoker, logger)
	if _, err := s.adapter.BindDefault(dispatch.DefaultHandler{
		OnConnect: func() {
			logger.Info("Window connected.")
			s.connectOnce.Do(func() { close(s.connected) })
		},
		OnDisconnect: func() {
			logger.Info("Window disconnected.")
			s.closeOnce.Do(func() { close(s.disconnected) })
		},
		OnNavigation: func(url string) {
			logger.Debug("Window navigated.", zap.String("url", url))
		},
	}); err != nil {
		s.shutdown()
		return nil, fmt.Errorf("binding lifecycle handler: %w", err)
	}

	// 3. Bridge and DOM proxy.
	s.bridge = bridge.New(s.adapter, bridge.Options{
		Debug:           cfg.Bridge().Debug,
		EvalTimeout:     cfg.Bridge().EvalTimeout,
		DeliveryTimeout: cfg.Bridge().DeliveryTimeout,
	}, logger)
	s.bridge.SetFileHandler(appFiles(cfg.Browser().RootFolder, logger))
	s.proxy = domevents.New(s.bridge, logger)
	return s, nil
}

func (s *session) openCDP(ctx context.Context) error {
	b := s.cfg.Browser()
	lib, err := cdp.New(ctx, cdp.Options{ExecPath: b.ExecPath, Headless: b.Headless, Args: b.Args}, s.logger)
	if err != nil {
		return err
	}
	win, err := lib.NewWindow()
	if err != nil {
		lib.Close()
		return err
	}
	s.lib, s.win = lib, win
	s.show = func(_ context.Context, url string) error { return lib.Show(win, url) }
	s.shutdown = lib.Close
	return nil
}

func (s *session) openSim() error {
	lib := sim.New(s.logger)
	page, err := lib.NewWindow(DefaultStartURL)
	if err != nil {
		return err
	}
	s.lib, s.win = lib, page.Window()
	s.show = func(_ context.Context, url string) error {
		// The simulated page has no HTML parser, so the demo markup is
		// rebuilt by hand.
		page.Navigate(url)
		if err := page.LoadScript(bridge.BridgePath); err != nil {
			return fmt.Errorf("loading bridge script: %w", err)
		}
		for id, tag := range map[string]string{"go": "button", "out": "span"} {
			if err := page.AddElement(id, tag); err != nil {
				return err
			}
		}
		page.Connect()
		return nil
	}
	s.shutdown = lib.Close
	return nil
}

// startURL is the configured start URL or the built-in demo page.
func (s *session) startURL() string {
	if u := s.cfg.Browser().StartURL; u != "" {
		return u
	}
	return DefaultStartURL
}

// waitConnected blocks until the page reports Connect.
func (s *session) waitConnected(ctx context.Context) error {
	select {
	case <-s.connected:
		return nil
	case <-s.disconnected:
		return errors.New("window closed before connecting")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close tears the session down within timeout.
func (s *session) close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.bridge.Destroy(ctx); err != nil {
		s.logger.Warn("Bridge teardown incomplete.", zap.Error(err))
	}
	s.shutdown()
	if s.serial != nil {
		s.serial.Close()
	}
}

// appFiles serves the demo page at "/" unless root holds an index.html, and
// every other path from root.
func appFiles(root string, logger *zap.Logger) native.FileHandlerFunc {
	return func(p string) []byte {
		clean := path.Clean("/" + p)
		if root != "" {
			if body := readUnder(root, clean); body != nil {
				return body
			}
		}
		if clean == "/" || clean == "/index.html" {
			return demoPage
		}
		logger.Debug("No file for path.", zap.String("path", p))
		return nil
	}
}

func readUnder(root, clean string) []byte {
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" {
		rel = "index.html"
	}
	if !filepath.IsLocal(rel) {
		return nil
	}
	body, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil
	}
	return body
}
