package bridge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webbridge/internal/bridge"
	"github.com/xkilldash9x/webbridge/internal/mocks"
	"github.com/xkilldash9x/webbridge/internal/native"
)

func TestBootstrap_BridgePathWins(t *testing.T) {
	lib := new(mocks.MockLibrary)
	var installed native.FileHandlerFunc
	lib.On("SetFileHandler", win, mock.Anything).Run(func(args mock.Arguments) {
		installed = args.Get(1).(native.FileHandlerFunc)
	}).Return().Once()

	boot := bridge.NewBootstrap(lib, win, zaptest.NewLogger(t))
	boot.SetFileHandler(func(path string) []byte {
		switch path {
		case bridge.BridgePath:
			return []byte("shadowed")
		case "/index.html":
			return []byte("<html></html>")
		}
		return nil
	})
	boot.SetFileHandler(func(path string) []byte {
		if path == "/index.html" {
			return []byte("<html>v2</html>")
		}
		return nil
	})
	require.NotNil(t, installed)
	lib.AssertNumberOfCalls(t, "SetFileHandler", 1)

	assert.Equal(t, bridge.Script(), installed(bridge.BridgePath))
	assert.Equal(t, bridge.Script(), installed(bridge.BridgePath+"?v=2"))
	assert.Equal(t, []byte("<html>v2</html>"), installed("/index.html"))
	assert.Nil(t, installed("/missing.png"), "unknown paths fall through to native")
}

func TestBootstrap_NoApplicationHandler(t *testing.T) {
	lib := new(mocks.MockLibrary)
	lib.On("SetFileHandler", win, mock.Anything).Return().Once()

	boot := bridge.NewBootstrap(lib, win, nil)
	boot.Install()
	boot.Install()

	assert.Nil(t, boot.Serve("/index.html"))
	assert.Contains(t, string(boot.Serve(bridge.BridgePath)), "window.WebUINet")
	lib.AssertExpectations(t)
}

func TestScriptTag(t *testing.T) {
	assert.Equal(t, `<script src="/webui_net.js"></script>`, bridge.ScriptTag())
}
