// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "console", cfg.Logger().Format)
	assert.Equal(t, "webbridge", cfg.Logger().ServiceName)
	assert.Equal(t, "green", cfg.Logger().Colors.Info)
	assert.False(t, cfg.Bridge().Debug)
	assert.Equal(t, 30*time.Second, cfg.Bridge().EvalTimeout)
	assert.Equal(t, 10*time.Second, cfg.Bridge().DeliveryTimeout)
	assert.Equal(t, DispatcherDirect, cfg.Bridge().Dispatcher)
	assert.Equal(t, BackendCDP, cfg.Browser().Backend)
	assert.True(t, cfg.Browser().Headless)
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Logger Format", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.LoggerCfg.Format = "xml"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger.format")
	})

	t.Run("Bridge Validation", func(t *testing.T) {
		valid := BridgeConfig{DeliveryTimeout: time.Second, Dispatcher: DispatcherSerial}
		assert.NoError(t, valid.Validate())

		noTimeout := valid
		noTimeout.EvalTimeout = 0
		assert.NoError(t, noTimeout.Validate(), "zero eval timeout means wait forever")

		negative := valid
		negative.EvalTimeout = -time.Second
		assert.ErrorContains(t, negative.Validate(), "eval_timeout must not be negative")

		noDelivery := valid
		noDelivery.DeliveryTimeout = 0
		assert.ErrorContains(t, noDelivery.Validate(), "delivery_timeout must be positive")

		badDispatcher := valid
		badDispatcher.Dispatcher = "pool"
		assert.ErrorContains(t, badDispatcher.Validate(), `got "pool"`)
	})

	t.Run("Browser Validation", func(t *testing.T) {
		b := BrowserConfig{Backend: BackendSim}
		assert.NoError(t, b.Validate())
		b.Backend = "webkit"
		assert.ErrorContains(t, b.Validate(), "backend must be")

		cfg := NewDefaultConfig()
		cfg.BrowserCfg.Backend = "webkit"
		assert.ErrorContains(t, cfg.Validate(), "browser configuration invalid")
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetBridgeDebug(true)
	cfg.SetBrowserBackend(BackendSim)
	cfg.SetBrowserHeadless(false)
	cfg.SetBrowserStartURL("http://localhost:8080/")

	assert.True(t, cfg.Bridge().Debug)
	assert.Equal(t, BackendSim, cfg.Browser().Backend)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "http://localhost:8080/", cfg.Browser().StartURL)
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
bridge:
  dispatcher: serial
  eval_timeout: 5s
browser:
  backend: sim
  args: ["--lang=de", "mute-audio"]
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, DispatcherSerial, cfg.Bridge().Dispatcher)
		assert.Equal(t, 5*time.Second, cfg.Bridge().EvalTimeout)
		assert.Equal(t, BackendSim, cfg.Browser().Backend)
		assert.Equal(t, []string{"--lang=de", "mute-audio"}, cfg.Browser().Args)
		// Untouched keys keep their defaults.
		assert.Equal(t, 10*time.Second, cfg.Bridge().DeliveryTimeout)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("bridge.dispatcher", "pool")

		cfg, err := NewConfigFromViper(v)
		assert.Nil(t, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "dispatcher must be")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString("browser:\n  backend: cdp\n")))
		BindEnv(v)

		t.Setenv("WEBBRIDGE_BROWSER_BACKEND", "sim")
		t.Setenv("WEBBRIDGE_BRIDGE_DEBUG", "true")
		t.Setenv("WEBBRIDGE_BRIDGE_DELIVERY_TIMEOUT", "250ms")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		// The environment wins over the config file.
		assert.Equal(t, BackendSim, cfg.Browser().Backend)
		assert.True(t, cfg.Bridge().Debug)
		assert.Equal(t, 250*time.Millisecond, cfg.Bridge().DeliveryTimeout)
	})

	t.Run("Root Folder Expansion", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("browser.root_folder", "~/site")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		root := cfg.Browser().RootFolder
		assert.False(t, strings.HasPrefix(root, "~"))
		assert.Equal(t, "site", filepath.Base(root))
	})
}
