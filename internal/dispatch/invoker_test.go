package dispatch_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webbridge/internal/dispatch"
	"github.com/xkilldash9x/webbridge/internal/mocks"
	"github.com/xkilldash9x/webbridge/internal/native"
)

func TestSerial_NeverRunsConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := dispatch.NewSerial(zaptest.NewLogger(t))
	var (
		active  atomic.Int32
		overlap atomic.Bool
		ran     atomic.Int32
	)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got := s.Invoke(func() any {
				if active.Add(1) > 1 {
					overlap.Store(true)
				}
				ran.Add(1)
				active.Add(-1)
				return i * 2
			})
			assert.Equal(t, i*2, got)
		}(i)
	}
	wg.Wait()
	s.Close()

	assert.False(t, overlap.Load())
	assert.Equal(t, int32(50), ran.Load())
}

func TestSerial_RecoversPanicAndKeepsRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := dispatch.NewSerial(zaptest.NewLogger(t))
	defer s.Close()

	assert.Nil(t, s.Invoke(func() any { panic("bad") }))
	assert.Equal(t, "ok", s.Invoke(func() any { return "ok" }))
}

func TestSerial_InvokeAfterCloseRunsInline(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := dispatch.NewSerial(nil)
	s.Close()
	s.Close()
	assert.Equal(t, 1, s.Invoke(func() any { return 1 }))
}

func TestAdapter_SerialInvokerMarshalsHandler(t *testing.T) {
	defer goleak.VerifyNone(t)

	lib := new(mocks.MockLibrary)
	lib.On("Bind", testWindow, "sum", mock.Anything).Return(native.HandlerID(3))
	lib.On("SetResponse", testWindow, native.EventID(1), "true").Return()

	s := dispatch.NewSerial(zaptest.NewLogger(t))
	defer s.Close()

	a := newAdapter(t, lib, s)
	_, err := a.Bind("sum", func(*dispatch.Event) any { return true })
	require.NoError(t, err)

	lib.Dispatcher("sum")(testWindow, uint(native.EventCallback), "sum", 1, 3)
	lib.AssertExpectations(t)
}
