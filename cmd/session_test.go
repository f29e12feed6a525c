// File: cmd/session_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webbridge/internal/bridge"
	"github.com/xkilldash9x/webbridge/internal/config"
)

func simConfig(dispatcher string) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.SetBrowserBackend(config.BackendSim)
	cfg.BridgeCfg.Dispatcher = dispatcher
	cfg.BridgeCfg.EvalTimeout = 5 * time.Second
	return cfg
}

func TestAppFiles(t *testing.T) {
	logger := zap.NewNop()

	t.Run("Demo page without root", func(t *testing.T) {
		serve := appFiles("", logger)
		assert.Equal(t, demoPage, serve("/"))
		assert.Equal(t, demoPage, serve("/index.html"))
		assert.Nil(t, serve("/style.css"))
	})

	t.Run("Root folder wins", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<p>mine</p>"), 0o600))
		require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(root, "css", "a.css"), []byte("p{}"), 0o600))

		serve := appFiles(root, logger)
		assert.Equal(t, []byte("<p>mine</p>"), serve("/"))
		assert.Equal(t, []byte("p{}"), serve("/css/a.css"))
		assert.Nil(t, serve("/missing.js"))
	})

	t.Run("No escape from root", func(t *testing.T) {
		parent := t.TempDir()
		root := filepath.Join(parent, "site")
		require.NoError(t, os.MkdirAll(root, 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(parent, "secret"), []byte("x"), 0o600))

		serve := appFiles(root, logger)
		assert.Nil(t, serve("/../secret"))
		assert.Nil(t, serve("../secret"))
	})
}

func TestDemoPageLoadsBridge(t *testing.T) {
	assert.Contains(t, string(demoPage), `<script src="`+bridge.BridgePath+`"></script>`)
	assert.Contains(t, string(demoPage), `id="go"`)
}

func TestRunDemo_Sim(t *testing.T) {
	for _, dispatcher := range []string{config.DispatcherDirect, config.DispatcherSerial} {
		t.Run(dispatcher, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()

			var out bytes.Buffer
			err := runDemo(ctx, simConfig(dispatcher), zaptest.NewLogger(t), &out)
			require.NoError(t, err)
			assert.Equal(t, "add(2, 3) = 5\n", out.String())
		})
	}
}

func TestEvalScript_Sim(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	t.Run("Result printed", func(t *testing.T) {
		var out bytes.Buffer
		err := evalScript(ctx, simConfig(config.DispatcherDirect), zaptest.NewLogger(t), "return 40 + 2", time.Second, &out)
		require.NoError(t, err)
		assert.Equal(t, "42\n", out.String())
	})

	t.Run("Bridge present", func(t *testing.T) {
		var out bytes.Buffer
		err := evalScript(ctx, simConfig(config.DispatcherDirect), zaptest.NewLogger(t), "return typeof window.WebUINet", time.Second, &out)
		require.NoError(t, err)
		assert.Equal(t, "object\n", out.String())
	})

	t.Run("Exception is a ScriptError", func(t *testing.T) {
		var out bytes.Buffer
		err := evalScript(ctx, simConfig(config.DispatcherDirect), zaptest.NewLogger(t), "throw new Error('nope')", time.Second, &out)
		var scriptErr *bridge.ScriptError
		require.True(t, errors.As(err, &scriptErr), "got %v", err)
		assert.Contains(t, scriptErr.Message, "nope")
		assert.Empty(t, out.String())
	})
}

func TestOpenSession_UnknownBackend(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.SetBrowserBackend("webkit")
	_, err := openSession(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, `unknown browser backend "webkit"`)
}
