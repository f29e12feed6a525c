// internal/dispatch/invoker.go
package dispatch

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Invoker decides which goroutine runs a handler. Invoke blocks until fn has
// returned and hands back its result.
type Invoker interface {
	Invoke(fn func() any) any
}

// Direct runs handlers on the calling goroutine, which for dispatch is the
// native event goroutine.
type Direct struct{}

// Invoke implements Invoker.
func (Direct) Invoke(fn func() any) any { return fn() }

type serialJob struct {
	fn     func() any
	result chan any
}

// Serial marshals every call onto one dedicated goroutine, giving handlers the
// same thread affinity a UI loop would. A handler running on the Serial
// goroutine must not call Invoke on the same Serial; that would deadlock.
type Serial struct {
	logger *zap.Logger
	jobs   chan serialJob
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewSerial starts the worker goroutine. Call Close to stop it.
func NewSerial(logger *zap.Logger) *Serial {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Serial{
		logger: logger.Named("serial_invoker"),
		jobs:   make(chan serialJob),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Serial) loop() {
	defer close(s.done)
	for job := range s.jobs {
		job.result <- s.run(job.fn)
	}
}

func (s *Serial) run(fn func() any) (v any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in marshaled call.",
				zap.Any("panic_value", r),
				zap.String("stack", string(debug.Stack())))
			v = nil
		}
	}()
	return fn()
}

// Invoke implements Invoker. After Close, calls run on the caller's goroutine.
func (s *Serial) Invoke(fn func() any) any {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return s.run(fn)
	}
	job := serialJob{fn: fn, result: make(chan any, 1)}
	s.jobs <- job
	s.mu.RUnlock()
	return <-job.result
}

// Close waits for the job in progress and stops the worker. It is idempotent.
func (s *Serial) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	<-s.done
}
