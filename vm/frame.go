package vm

import "github.com/deepnoodle-ai/riv/sexp"

// FrameKind classifies a call frame.
type FrameKind int

const (
	TopLevelFrame FrameKind = iota
	LoopFrame
	FunctionFrame
	BrowserFrame
	BuiltinFrame
)

func (k FrameKind) String() string {
	switch k {
	case TopLevelFrame:
		return "toplevel"
	case LoopFrame:
		return "loop"
	case FunctionFrame:
		return "function"
	case BrowserFrame:
		return "browser"
	case BuiltinFrame:
		return "builtin"
	default:
		return "frame"
	}
}

// Frame is one entry in the call-frame chain. Loop frames record the resume
// and break positions inside their owning evalCode invocation; function
// frames record the call, the callee, the pending arguments, and the
// environments on both sides of the call.
type Frame struct {
	next     *Frame
	kind     FrameKind
	stackTop int   // value-stack height snapshot, marker included
	owner    any   // evalCode invocation that installed a loop frame
	resumePC int   // loop body start, where next lands
	breakPC  int   // post-loop position, where break lands
	callEnv  *sexp.Env
	funEnv   *sexp.Env
	closure  sexp.Value
	args     sexp.Value
	call     sexp.Value
	exit     func() // on-exit handler, run when the frame is popped
}

// Kind returns the frame's kind.
func (f *Frame) Kind() FrameKind { return f.kind }

// Call returns the call AST that created the frame, or nil.
func (f *Frame) Call() sexp.Value { return f.call }

// pushFrame installs a frame on top of the chain.
func (vm *VM) pushFrame(kind FrameKind) *Frame {
	f := &Frame{next: vm.frame, kind: kind}
	vm.frame = f
	return f
}

// popFrame removes the top frame, running its exit handler.
func (vm *VM) popFrame() *Frame {
	f := vm.frame
	if f == nil {
		return nil
	}
	vm.frame = f.next
	if f.exit != nil {
		f.exit()
	}
	return f
}

// frameDepth returns the number of installed frames, for tracing.
func (vm *VM) frameDepth() int {
	n := 0
	for f := vm.frame; f != nil; f = f.next {
		n++
	}
	return n
}

// frameMarker is the value pushed onto the value stack when a frame is
// installed, so that stack snapshots and frame lifetimes stay in lock step.
type frameMarker struct {
	frame *Frame
}

func (m *frameMarker) Kind() sexp.Kind { return sexp.CntxtKind }
func (m *frameMarker) String() string  { return "<context>" }
