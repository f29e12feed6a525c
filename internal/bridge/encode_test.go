package bridge_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/webbridge/internal/bridge"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestEncodeCall(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		args []any
		want string
	}{
		{"no args", "f", nil, "f()"},
		{"numbers inline", "add", []any{2, int64(3), 1.5}, "add(2,3,1.5)"},
		{"bool and nil", "g", []any{true, false, nil}, "g(true,false,null)"},
		{"string quoting", "log", []any{"it's"}, `log('it\'s')`},
		{"escapes", "log", []any{"a\\b\r\n\tc"}, `log('a\\b\r\n\tc')`},
		{"struct becomes quoted json", "WebUINet.set", []any{point{1, 2}}, `WebUINet.set('{"x":1,"y":2}')`},
		{"map with quote", "h", []any{map[string]string{"k": "o'k"}}, `h('{"k":"o\'k"}')`},
		{"slice", "h", []any{[]string{"a", "b"}}, `h('["a","b"]')`},
		{"non finite", "h", []any{math.Inf(1), math.NaN()}, "h(Infinity,NaN)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bridge.EncodeCall(tt.fn, tt.args...))
		})
	}
}

func TestLiteral_UnencodableFallsBack(t *testing.T) {
	ch := make(chan int)
	got := bridge.Literal(ch)
	assert.NotEmpty(t, got)
	assert.Equal(t, byte('\''), got[0])
	assert.Equal(t, byte('\''), got[len(got)-1])
}

func TestLiteral_LineSeparators(t *testing.T) {
	assert.Equal(t, `'a\u2028b'`, bridge.Literal("a\u2028b"))
}
