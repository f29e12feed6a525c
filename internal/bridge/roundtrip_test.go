package bridge_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webbridge/internal/bridge"
	"github.com/xkilldash9x/webbridge/internal/dispatch"
	"github.com/xkilldash9x/webbridge/internal/native/sim"
)

func newSimBridge(t *testing.T) (*sim.Library, *sim.Page, *bridge.Bridge) {
	t.Helper()
	return newSimBridgeWith(t, nil, zaptest.NewLogger(t))
}

func newSimBridgeWith(t *testing.T, invoker dispatch.Invoker, logger *zap.Logger) (*sim.Library, *sim.Page, *bridge.Bridge) {
	t.Helper()
	lib := sim.New(logger)
	page, err := lib.NewWindow("http://sim.local/")
	require.NoError(t, err)

	b := bridge.New(dispatch.New(lib, page.Window(), invoker, logger), bridge.Options{}, logger)
	require.NoError(t, page.LoadScript(bridge.BridgePath))
	t.Cleanup(func() {
		_ = b.Destroy(context.Background())
		lib.Close()
	})
	return lib, page, b
}

func TestRoundTrip_TypesPreserved(t *testing.T) {
	lib, page, b := newSimBridge(t)

	var received string
	_, err := b.RegisterAsyncFunction("echo", func(_ context.Context, args string) (string, error) {
		received = args
		return args, nil
	})
	require.NoError(t, err)

	ok, out := lib.Script(page.Window(), `
		var v = JSON.parse(await echo("a", 2));
		return typeof v[0] + ":" + v[0] + "," + typeof v[1] + ":" + v[1];
	`, 5)
	require.True(t, ok, string(out))
	assert.Equal(t, "string:a,number:2", string(out))
	assert.Equal(t, `["a",2]`, received)
}

func TestRoundTrip_FireAndForgetResolvesImmediately(t *testing.T) {
	lib, page, b := newSimBridge(t)

	logged := make(chan string, 1)
	_, err := b.RegisterFunction("log", func(args string) { logged <- args })
	require.NoError(t, err)

	ok, out := lib.Script(page.Window(), `var r = await log("hello"); return String(r) + ":" + WebUINet.pendingCalls();`, 5)
	require.True(t, ok, string(out))
	assert.Equal(t, "undefined:0", string(out))
	assert.Equal(t, `["hello"]`, <-logged)
}

func TestRoundTrip_ErrorRejectsPromise(t *testing.T) {
	lib, page, b := newSimBridge(t)

	_, err := b.RegisterDescriptor(bridge.Descriptor{
		Name:   "divide",
		Params: []bridge.Param{{Name: "a", Kind: bridge.ParamFloat}, {Name: "b", Kind: bridge.ParamFloat}},
		Return: func(_ context.Context, a bridge.Args) (any, error) {
			if a.Float(1) == 0 {
				return nil, assert.AnError
			}
			return a.Float(0) / a.Float(1), nil
		},
	})
	require.NoError(t, err)

	ok, out := lib.Script(page.Window(), `return await divide(9, 3);`, 5)
	require.True(t, ok, string(out))
	assert.Equal(t, "3", string(out))

	ok, out = lib.Script(page.Window(), `try { await divide(1, 0); return "resolved"; } catch (e) { return "rejected:" + e.message; }`, 5)
	require.True(t, ok, string(out))
	assert.Equal(t, "rejected:"+assert.AnError.Error(), string(out))
}

func TestRoundTrip_EvaluateAndInvoke(t *testing.T) {
	lib, page, b := newSimBridge(t)
	win := page.Window()

	lib.Run(win, "var seen = []; function note(x, y) { seen.push(typeof y + ':' + x); }")
	b.Invoke("note", "it's", 3)

	got, err := b.Evaluate(context.Background(), "seen.join")
	require.NoError(t, err)
	assert.Equal(t, "number:it's", got)

	var arr []string
	require.NoError(t, b.EvaluateInto(context.Background(), &arr, "seen.slice"))
	assert.Equal(t, []string{"number:it's"}, arr)
}

func TestRoundTrip_InvokeAndWaitTimeout(t *testing.T) {
	_, _, b := newSimBridge(t)
	ok, out := b.InvokeAndWait("while (true) {}", 1)
	assert.False(t, ok)
	assert.NotEmpty(t, out)
}

// countingInvoker wraps Serial and records whether a handler is running
// inside it.
type countingInvoker struct {
	*dispatch.Serial
	calls  atomic.Int32
	inside atomic.Bool
}

func (c *countingInvoker) Invoke(fn func() any) any {
	return c.Serial.Invoke(func() any {
		c.calls.Add(1)
		c.inside.Store(true)
		defer c.inside.Store(false)
		return fn()
	})
}

func TestRoundTrip_ReturningHandlerRunsOnInvoker(t *testing.T) {
	logger := zaptest.NewLogger(t)
	inv := &countingInvoker{Serial: dispatch.NewSerial(logger)}
	t.Cleanup(inv.Close)
	lib, page, b := newSimBridgeWith(t, inv, logger)

	var onInvoker atomic.Bool
	_, err := b.RegisterAsyncFunction("twice", func(_ context.Context, args string) (string, error) {
		onInvoker.Store(inv.inside.Load())
		return args + args, nil
	})
	require.NoError(t, err)

	before := inv.calls.Load()
	ok, out := lib.Script(page.Window(), `return await twice();`, 5)
	require.True(t, ok, string(out))
	assert.Equal(t, "[][]", string(out))

	assert.True(t, onInvoker.Load(), "handler must run inside the invoker")
	// One for the relay dispatch, one for the handler itself.
	assert.Equal(t, int32(2), inv.calls.Load()-before)
}

func TestRoundTrip_AbandonedCallIgnoresLateResult(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	lib, page, b := newSimBridgeWith(t, nil, zap.New(core))
	win := page.Window()

	entered := make(chan struct{})
	release := make(chan struct{})
	_, err := b.RegisterAsyncFunction("slow", func(context.Context, string) (string, error) {
		close(entered)
		<-release
		return "late", nil
	})
	require.NoError(t, err)

	ok, out := lib.Script(win, `
		var p = slow();
		var abandoned = WebUINet.abandonCall(p.callId);
		var msg = "";
		try { await p; } catch (e) { msg = e.message; }
		return abandoned + ":" + msg + ":" + WebUINet.pendingCalls();
	`, 5)
	require.True(t, ok, string(out))
	assert.Equal(t, "true:call abandoned:0", string(out))

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("host function never ran")
	}
	close(release)
	// Close waits until the late result has been delivered.
	require.NoError(t, b.Close(context.Background()))

	ok, out = lib.Script(win, `return WebUINet.pendingCalls() + ":" + WebUINet.abandonCall(1234);`, 5)
	require.True(t, ok, string(out))
	assert.Equal(t, "0:false", string(out))
	assert.Zero(t, logs.Len(), "late delivery must not fail")
}

func TestRoundTrip_CallHostWithinTimesOut(t *testing.T) {
	lib, page, b := newSimBridge(t)

	release := make(chan struct{})
	fid, err := b.RegisterAsyncFunction("", func(context.Context, string) (string, error) {
		<-release
		return "late", nil
	})
	require.NoError(t, err)

	ok, out := lib.Script(page.Window(), fmt.Sprintf(`
		var msg = "";
		try { await WebUINet.callHostWithin(20, %d); } catch (e) { msg = e.message; }
		return msg + ":" + WebUINet.pendingCalls();
	`, fid), 5)
	close(release)
	require.True(t, ok, string(out))
	assert.Equal(t, "host call timed out:0", string(out))
}
