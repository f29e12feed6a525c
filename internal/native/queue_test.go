package native_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/webbridge/internal/native"
)

func TestQueue_FIFOAndDrainOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := native.NewQueue()
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		require.True(t, q.Push(func() { got = append(got, i) }))
	}
	q.Close()
	assert.False(t, q.Push(func() { t.Error("ran after close") }))

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(func(fn func()) { fn() })
	}()
	<-done

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueue_PushFromJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := native.NewQueue()
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(func(fn func()) { fn() })
	}()

	// A job that feeds the queue it runs on must not deadlock.
	finished := make(chan struct{})
	q.Push(func() {
		q.Push(func() { close(finished) })
	})
	<-finished
	q.Close()
	<-done
}
