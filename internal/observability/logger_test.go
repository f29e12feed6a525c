// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/webbridge/internal/config"
)

// lockedBuffer is a WriteSyncer safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Sync() error { return nil }

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func initInto(t *testing.T, cfg config.LoggerConfig) *lockedBuffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	out := &lockedBuffer{}
	Initialize(cfg, out)
	return out
}

func TestInitialize(t *testing.T) {
	t.Run("console logger with colors", func(t *testing.T) {
		out := initInto(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "webbridge",
			Colors:      config.ColorConfig{Info: "green"},
		})
		GetLogger().Named("bridge").Info("Relay bound.")
		Sync()

		line := out.String()
		assert.Contains(t, line, ansi["green"]+"INFO"+colorReset)
		assert.Contains(t, line, "webbridge.bridge.")
		assert.Contains(t, line, "Relay bound.")
	})

	t.Run("uncolored level prints plain", func(t *testing.T) {
		out := initInto(t, config.LoggerConfig{Level: "debug", Format: "console"})
		GetLogger().Warn("plain")
		assert.Contains(t, out.String(), "WARN")
		assert.NotContains(t, out.String(), colorReset)
	})

	t.Run("json logger", func(t *testing.T) {
		out := initInto(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"})
		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

		var entry map[string]any
		require.NoError(t, jsoniter.UnmarshalFromString(strings.TrimSpace(out.String()), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "This is a JSON message.", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("level filter", func(t *testing.T) {
		out := initInto(t, config.LoggerConfig{Level: "warn", Format: "json"})
		GetLogger().Info("hidden")
		assert.Empty(t, out.String())
	})

	t.Run("bad level falls back to info", func(t *testing.T) {
		out := initInto(t, config.LoggerConfig{Level: "loud", Format: "json"})
		GetLogger().Debug("hidden")
		GetLogger().Info("shown")
		assert.NotContains(t, out.String(), "hidden")
		assert.Contains(t, out.String(), "shown")
	})

	t.Run("rotating file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "webbridge.log")
		initInto(t, config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"This should go to the file."`)
	})

	t.Run("only once", func(t *testing.T) {
		out := initInto(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"})
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		assert.Same(t, first, GetLogger())

		GetLogger().Info("test")
		assert.Contains(t, out.String(), "First")
		assert.NotContains(t, out.String(), "Second")
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	require.NotNil(t, GetLogger())
	assert.Nil(t, globalLogger.Load(), "fallback must not become the global logger")
}
