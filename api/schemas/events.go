package schemas

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// -- DOM Event Proxy Schemas --

// Capture asks the page to copy one property of the DOM event, addressed by a
// dot separated path such as "detail.user.id", into the captured event under
// Label. Several labels may share a path.
type Capture struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// ListenerOptions mirrors the addEventListener options the page applies.
// Passive defaults to true when unset.
type ListenerOptions struct {
	Capture  bool   `json:"capture,omitempty"`
	Once     bool   `json:"once,omitempty"`
	Passive  *bool  `json:"passive,omitempty"`
	AbortKey string `json:"abortKey,omitempty"`
}

// ListenerDescriptor records one proxied listener as the host registered it.
type ListenerDescriptor struct {
	EventType  string           `json:"eventType"`
	ElementID  string           `json:"elementId"`
	FunctionID int64            `json:"functionId"`
	Captures   []Capture        `json:"captures,omitempty"`
	Options    *ListenerOptions `json:"options,omitempty"`
}

// AbortKey returns the abort group of the listener, or "" if it is permanent.
func (d ListenerDescriptor) AbortKey() string {
	if d.Options == nil {
		return ""
	}
	return d.Options.AbortKey
}

// CapturedEvent is the serializable snapshot the page sends for each DOM event.
type CapturedEvent struct {
	CurrentTargetID  string      `json:"currentTargetId"`
	OriginalTargetID string      `json:"originalTargetId"`
	Timestamp        EpochMillis `json:"timestamp"`
	Type             string      `json:"type"`
	AdditionalProps  Props       `json:"additionalProps,omitempty"`
}

// EpochMillis is a point in time carried on the wire as fractional
// milliseconds since the Unix epoch. Numeric strings are accepted too.
type EpochMillis time.Time

// Time returns the value as a time.Time.
func (m EpochMillis) Time() time.Time { return time.Time(m) }

func (m EpochMillis) MarshalJSON() ([]byte, error) {
	t := time.Time(m)
	if t.IsZero() {
		return []byte("0"), nil
	}
	ms := float64(t.UnixMicro()) / 1e3
	return strconv.AppendFloat(nil, ms, 'f', -1, 64), nil
}

func (m *EpochMillis) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*m = EpochMillis{}
		return nil
	}
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return fmt.Errorf("invalid epoch milliseconds %q", raw)
	}
	if ms == 0 {
		*m = EpochMillis{}
		return nil
	}
	*m = EpochMillis(time.UnixMicro(int64(math.Round(ms * 1e3))))
	return nil
}

// Prop is one captured label/value pair.
type Prop struct {
	Label string
	Value string
}

// Props keeps captured values in the order the page reported them. On the
// wire it is a JSON object; numbers and booleans are kept as their literal
// text, null values are dropped and nested values keep their raw JSON.
type Props []Prop

// Get returns the value stored under label.
func (p Props) Get(label string) (string, bool) {
	for _, kv := range p {
		if kv.Label == label {
			return kv.Value, true
		}
	}
	return "", false
}

// Map returns the props as a map, losing order.
func (p Props) Map() map[string]string {
	out := make(map[string]string, len(p))
	for _, kv := range p {
		out[kv.Label] = kv.Value
	}
	return out
}

func (p Props) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, kv := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := wireJSON.Marshal(kv.Label)
		if err != nil {
			return nil, err
		}
		v, err := wireJSON.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func (p *Props) UnmarshalJSON(data []byte) error {
	iter := wireJSON.BorrowIterator(data)
	defer wireJSON.ReturnIterator(iter)

	if iter.WhatIsNext() == jsoniter.NilValue {
		iter.ReadNil()
		*p = nil
		return nil
	}

	out := Props{}
	iter.ReadMapCB(func(it *jsoniter.Iterator, label string) bool {
		switch it.WhatIsNext() {
		case jsoniter.StringValue:
			out = append(out, Prop{Label: label, Value: it.ReadString()})
		case jsoniter.NumberValue:
			out = append(out, Prop{Label: label, Value: string(it.ReadNumber())})
		case jsoniter.BoolValue:
			out = append(out, Prop{Label: label, Value: strconv.FormatBool(it.ReadBool())})
		case jsoniter.NilValue:
			it.Skip()
		default:
			out = append(out, Prop{Label: label, Value: string(it.SkipAndReturnBytes())})
		}
		return it.Error == nil
	})
	if iter.Error != nil && iter.Error != io.EOF {
		return fmt.Errorf("decode additionalProps: %w", iter.Error)
	}
	*p = out
	return nil
}

// CommonEventTypes lists DOM event names callers usually listen for.
var CommonEventTypes = []string{
	"click", "dblclick", "contextmenu", "auxclick",
	"mousedown", "mouseup", "mousemove", "mouseover", "mouseout", "mouseenter", "mouseleave",
	"pointerdown", "pointerup", "pointermove", "pointercancel",
	"wheel",
	"keydown", "keyup",
	"focus", "blur", "focusin", "focusout",
	"input", "change", "submit", "reset", "invalid", "select",
	"touchstart", "touchend", "touchmove", "touchcancel",
	"dragstart", "drag", "dragenter", "dragleave", "dragover", "drop", "dragend",
	"copy", "cut", "paste",
	"scroll", "resize",
	"load", "unload", "beforeunload", "DOMContentLoaded",
	"visibilitychange", "hashchange", "popstate",
	"play", "pause", "ended", "volumechange", "timeupdate",
	"animationstart", "animationend", "transitionend",
	"online", "offline", "storage", "message", "error",
}
