// internal/bridge/encode.go
package bridge

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\r", `\r`,
	"\n", `\n`,
	"\t", `\t`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// EncodeCall renders fn(args...) as a script expression. Numbers and booleans
// are inlined, nil becomes null, strings are single quoted, and anything else
// is JSON encoded and passed as a quoted string for the callee to parse.
func EncodeCall(fn string, args ...any) string {
	var b strings.Builder
	b.WriteString(fn)
	b.WriteByte('(')
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(Literal(arg))
	}
	b.WriteByte(')')
	return b.String()
}

// Literal renders one argument as EncodeCall would.
func Literal(arg any) string {
	switch v := arg.(type) {
	case nil:
		return "null"
	case string:
		return quote(v)
	case []byte:
		return quote(string(v))
	case bool:
		return strconv.FormatBool(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return cast.ToString(v)
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case fmt.Stringer:
		return quote(v.String())
	}

	out, err := json.Marshal(arg)
	if err != nil {
		// Keep the call stream intact.
		s, castErr := cast.ToStringE(arg)
		if castErr != nil {
			s = fmt.Sprint(arg)
		}
		return quote(s)
	}
	return quote(string(out))
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

func quote(s string) string {
	return "'" + quoteReplacer.Replace(s) + "'"
}
