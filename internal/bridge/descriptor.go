// internal/bridge/descriptor.go
package bridge

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/registry"
)

// ParamKind is the JSON shape a parameter must have.
type ParamKind int

const (
	ParamAny ParamKind = iota
	ParamString
	ParamInt
	ParamFloat
	ParamBool
	ParamJSON
)

func (k ParamKind) String() string {
	switch k {
	case ParamAny:
		return "any"
	case ParamString:
		return "string"
	case ParamInt:
		return "int"
	case ParamFloat:
		return "float"
	case ParamBool:
		return "bool"
	case ParamJSON:
		return "json"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Param describes one positional argument. A missing argument takes Default;
// a missing argument without a Default is an error.
type Param struct {
	Name    string
	Kind    ParamKind
	Default any
}

// Descriptor declares a host function and its parameters explicitly. Exactly
// one of Fire or Return must be set.
type Descriptor struct {
	Name   string
	Params []Param
	Fire   func(Args)
	Return func(ctx context.Context, args Args) (any, error)
}

var (
	ErrBadDescriptor = errors.New("bridge: descriptor needs exactly one of Fire or Return")
	ErrArgument      = errors.New("bridge: bad argument")
)

// Args holds decoded arguments in parameter order.
type Args struct {
	names  []string
	values []any
}

// Len returns the number of decoded arguments.
func (a Args) Len() int { return len(a.values) }

// Value returns argument i, or nil when out of range.
func (a Args) Value(i int) any {
	if i < 0 || i >= len(a.values) {
		return nil
	}
	return a.values[i]
}

// Named returns the argument declared with name.
func (a Args) Named(name string) (any, bool) {
	for i, n := range a.names {
		if n == name {
			return a.values[i], true
		}
	}
	return nil, false
}

func (a Args) String(i int) string {
	s, _ := a.Value(i).(string)
	return s
}

func (a Args) Int(i int) int64 {
	n, _ := a.Value(i).(int64)
	return n
}

func (a Args) Float(i int) float64 {
	switch v := a.Value(i).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func (a Args) Bool(i int) bool {
	b, _ := a.Value(i).(bool)
	return b
}

// Decode unmarshals a ParamJSON argument into out.
func (a Args) Decode(i int, out any) error {
	raw, ok := a.Value(i).(jsoniter.RawMessage)
	if !ok {
		return fmt.Errorf("%w: argument %d is not raw json", ErrArgument, i)
	}
	return json.Unmarshal(raw, out)
}

// DecodeArgs decodes the JSON argument array a page call carries against params.
func DecodeArgs(params []Param, payload string) (Args, error) {
	var raw []jsoniter.RawMessage
	if payload != "" && payload != "null" {
		if err := json.UnmarshalFromString(payload, &raw); err != nil {
			return Args{}, fmt.Errorf("%w: payload is not a json array: %w", ErrArgument, err)
		}
	}

	args := Args{names: make([]string, len(params)), values: make([]any, len(params))}
	for i, p := range params {
		args.names[i] = p.Name
		if i >= len(raw) || string(raw[i]) == "null" {
			if p.Default == nil {
				if i >= len(raw) {
					return Args{}, fmt.Errorf("%w: missing %q", ErrArgument, p.Name)
				}
				continue
			}
			args.values[i] = p.Default
			continue
		}
		v, err := decodeParam(p, raw[i])
		if err != nil {
			return Args{}, err
		}
		args.values[i] = v
	}
	return args, nil
}

func decodeParam(p Param, raw jsoniter.RawMessage) (any, error) {
	mismatch := func() error {
		return fmt.Errorf("%w: %q wants %s, got %s", ErrArgument, p.Name, p.Kind, string(raw))
	}
	val := jsoniter.Get(raw)
	switch p.Kind {
	case ParamString:
		if val.ValueType() != jsoniter.StringValue {
			return nil, mismatch()
		}
		return val.ToString(), nil
	case ParamInt:
		var n int64
		if val.ValueType() != jsoniter.NumberValue || json.Unmarshal(raw, &n) != nil {
			return nil, mismatch()
		}
		return n, nil
	case ParamFloat:
		if val.ValueType() != jsoniter.NumberValue {
			return nil, mismatch()
		}
		return val.ToFloat64(), nil
	case ParamBool:
		if val.ValueType() != jsoniter.BoolValue {
			return nil, mismatch()
		}
		return val.ToBool(), nil
	case ParamJSON:
		return raw, nil
	default:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, mismatch()
		}
		return v, nil
	}
}

// RegisterDescriptor builds the handler d describes and registers it under
// d.Name.
func (b *Bridge) RegisterDescriptor(d Descriptor) (registry.FunctionID, error) {
	if (d.Fire == nil) == (d.Return == nil) {
		return 0, ErrBadDescriptor
	}

	if d.Fire != nil {
		return b.Register(d.Name, registry.FireAndForget(func(payload string) {
			args, err := DecodeArgs(d.Params, payload)
			if err != nil {
				b.logger.Warn("Dropping call with bad arguments.", zap.String("name", d.Name), zap.Error(err))
				return
			}
			d.Fire(args)
		}))
	}

	return b.Register(d.Name, registry.Returning(func(ctx context.Context, payload string) (string, error) {
		args, err := DecodeArgs(d.Params, payload)
		if err != nil {
			return "", err
		}
		v, err := d.Return(ctx, args)
		if err != nil {
			return "", err
		}
		return resultString(v)
	}))
}

func resultString(v any) (string, error) {
	switch r := v.(type) {
	case nil:
		return "", nil
	case string:
		return r, nil
	case []byte:
		return string(r), nil
	}
	out, err := json.MarshalToString(v)
	if err != nil {
		return "", fmt.Errorf("bridge: encode result: %w", err)
	}
	return out, nil
}
