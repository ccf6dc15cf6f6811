package vm

import "github.com/deepnoodle-ai/riv/sexp"

// Stack is the interpreter's growable value stack. Slots near the top are
// addressed by offset-from-top in constant time.
type Stack struct {
	vals []sexp.Value
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{vals: make([]sexp.Value, 0, 64)}
}

// Len returns the current stack height.
func (s *Stack) Len() int { return len(s.vals) }

// Ensure grows the stack's capacity so that at least n more values can be
// pushed without reallocation.
func (s *Stack) Ensure(n int) {
	if need := len(s.vals) + n; need > cap(s.vals) {
		grown := make([]sexp.Value, len(s.vals), need*2)
		copy(grown, s.vals)
		s.vals = grown
	}
}

// Push adds a value on top.
func (s *Stack) Push(v sexp.Value) { s.vals = append(s.vals, v) }

// Pop removes and returns the top value.
func (s *Stack) Pop() sexp.Value {
	v := s.vals[len(s.vals)-1]
	s.vals[len(s.vals)-1] = nil
	s.vals = s.vals[:len(s.vals)-1]
	return v
}

// Top returns the top value without removing it.
func (s *Stack) Top() sexp.Value { return s.vals[len(s.vals)-1] }

// At returns the value n slots below the top; At(0) is the top.
func (s *Stack) At(n int) sexp.Value { return s.vals[len(s.vals)-1-n] }

// SetAt replaces the value n slots below the top.
func (s *Stack) SetAt(n int, v sexp.Value) { s.vals[len(s.vals)-1-n] = v }

// TruncateTo drops values until the stack height is n again.
func (s *Stack) TruncateTo(n int) {
	for i := n; i < len(s.vals); i++ {
		s.vals[i] = nil
	}
	s.vals = s.vals[:n]
}

// Swap exchanges the top two values.
func (s *Stack) Swap() {
	top := len(s.vals) - 1
	s.vals[top], s.vals[top-1] = s.vals[top-1], s.vals[top]
}

// Pick moves the value n slots below the top to the top, shifting the
// values above it down.
func (s *Stack) Pick(n int) {
	top := len(s.vals) - 1
	v := s.vals[top-n]
	copy(s.vals[top-n:], s.vals[top-n+1:])
	s.vals[top] = v
}

// Put is the inverse of Pick: it moves the top value down n slots, shifting
// the values beneath it up.
func (s *Stack) Put(n int) {
	top := len(s.vals) - 1
	v := s.vals[top]
	copy(s.vals[top-n+1:], s.vals[top-n:top])
	s.vals[top-n] = v
}
