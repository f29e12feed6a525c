// File: internal/mocks/mocks.go
package mocks

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webbridge/internal/native"
)

// -- Native Library Mock --

// MockLibrary mocks native.Library. Bind also records every trampoline it is
// given so tests can drive dispatches by hand.
type MockLibrary struct {
	mock.Mock

	mu    sync.Mutex
	bound map[string][]native.DispatchFunc
}

var _ native.Library = (*MockLibrary)(nil)

func (m *MockLibrary) Bind(win native.WindowHandle, element string, fn native.DispatchFunc) native.HandlerID {
	m.mu.Lock()
	if m.bound == nil {
		m.bound = make(map[string][]native.DispatchFunc)
	}
	m.bound[element] = append(m.bound[element], fn)
	m.mu.Unlock()

	args := m.Called(win, element, fn)
	return args.Get(0).(native.HandlerID)
}

// Dispatcher returns the most recent trampoline bound for element.
func (m *MockLibrary) Dispatcher(element string) native.DispatchFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	fns := m.bound[element]
	if len(fns) == 0 {
		return nil
	}
	return fns[len(fns)-1]
}

func (m *MockLibrary) Script(win native.WindowHandle, code string, timeoutSeconds uint) (bool, []byte) {
	args := m.Called(win, code, timeoutSeconds)
	var out []byte
	if b := args.Get(1); b != nil {
		out = b.([]byte)
	}
	return args.Bool(0), out
}

func (m *MockLibrary) Run(win native.WindowHandle, code string) {
	m.Called(win, code)
}

func (m *MockLibrary) SendRaw(win native.WindowHandle, fn string, data []byte) {
	m.Called(win, fn, data)
}

func (m *MockLibrary) SetFileHandler(win native.WindowHandle, h native.FileHandlerFunc) {
	m.Called(win, h)
}

// --- Event accessors ---

func (m *MockLibrary) Int(win native.WindowHandle, ev native.EventID, index uint) int64 {
	args := m.Called(win, ev, index)
	return args.Get(0).(int64)
}

func (m *MockLibrary) Float(win native.WindowHandle, ev native.EventID, index uint) float64 {
	args := m.Called(win, ev, index)
	return args.Get(0).(float64)
}

func (m *MockLibrary) String(win native.WindowHandle, ev native.EventID, index uint) string {
	args := m.Called(win, ev, index)
	return args.String(0)
}

func (m *MockLibrary) Bool(win native.WindowHandle, ev native.EventID, index uint) bool {
	args := m.Called(win, ev, index)
	return args.Bool(0)
}

func (m *MockLibrary) Size(win native.WindowHandle, ev native.EventID, index uint) uint {
	args := m.Called(win, ev, index)
	return args.Get(0).(uint)
}

func (m *MockLibrary) SetResponse(win native.WindowHandle, ev native.EventID, response string) {
	m.Called(win, ev, response)
}

func (m *MockLibrary) IsValid(win native.WindowHandle) bool {
	args := m.Called(win)
	return args.Bool(0)
}

func (m *MockLibrary) Destroy(win native.WindowHandle) {
	m.Called(win)
}
