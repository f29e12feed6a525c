// internal/registry/handler.go
package registry

import "context"

// Kind tells the relay how a bound function must be driven.
type Kind int

const (
	// KindFireAndForget handlers are invoked and nothing is sent back to script.
	KindFireAndForget Kind = iota
	// KindReturning handlers produce a value that is delivered to script later.
	KindReturning
)

func (k Kind) String() string {
	switch k {
	case KindFireAndForget:
		return "fire_and_forget"
	case KindReturning:
		return "returning"
	default:
		return "unknown"
	}
}

// Handler is a host function callable from script. Exactly two shapes exist,
// FireAndForget and Returning; the set is closed.
type Handler interface {
	Kind() Kind
	sealed()
}

// FireAndForget receives the JSON encoded argument array and returns nothing.
type FireAndForget func(args string)

// Kind implements Handler.
func (FireAndForget) Kind() Kind { return KindFireAndForget }
func (FireAndForget) sealed()    {}

// Returning receives the JSON encoded argument array and produces the string
// handed back to the waiting script promise. It may block; the relay never
// calls it on the native dispatch goroutine.
type Returning func(ctx context.Context, args string) (string, error)

// Kind implements Handler.
func (Returning) Kind() Kind { return KindReturning }
func (Returning) sealed()    {}
