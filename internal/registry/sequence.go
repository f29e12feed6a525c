// internal/registry/sequence.go
package registry

import "sync/atomic"

// Sequence hands out monotonically increasing identifiers. It is safe for
// concurrent use and never returns the same value twice.
type Sequence struct {
	last atomic.Int64
}

// NewSequence returns a sequence whose first value is start+1.
func NewSequence(start int64) *Sequence {
	s := &Sequence{}
	s.last.Store(start)
	return s
}

// Next returns the next identifier.
func (s *Sequence) Next() int64 {
	return s.last.Add(1)
}

// Last returns the most recently issued identifier (or the start value).
func (s *Sequence) Last() int64 {
	return s.last.Load()
}
