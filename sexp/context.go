package sexp

import "context"

// Evaluator is the interface builtins use to call back into the interpreter:
// evaluating expressions, forcing promises, invoking callables, and running
// loop bodies under a loop frame. The virtual machine implements it and
// places itself in the context passed to every builtin.
type Evaluator interface {
	// Eval evaluates an expression (AST, compiled code, or self-evaluating
	// value) in the given environment.
	Eval(ctx context.Context, expr Value, env *Env) (Value, error)

	// Force resolves a promise, evaluating it on first use.
	Force(ctx context.Context, p *Promise) (Value, error)

	// CallFunction applies a callable to an already-built argument list of
	// promises or values, with the given call AST for diagnostics.
	CallFunction(ctx context.Context, fn Value, call Value, args Value, env *Env) (Value, error)

	// LoopContext installs a loop frame around body, so that break and next
	// signals raised inside it (including non-locally) land here.
	LoopContext(ctx context.Context, call Value, env *Env, body func(context.Context) error) error

	// FrameInfo describes the innermost function-call frame: the call AST,
	// the pending argument list, and the function's evaluation environment.
	// ok is false at top level.
	FrameInfo() (call Value, args Value, env *Env, ok bool)

	// SetVisible sets the runtime's visibility flag.
	SetVisible(on bool)

	// Warningf reports a warning attached to the given call without
	// interrupting execution.
	Warningf(call Value, format string, args ...any)
}

type evaluatorKey struct{}

// WithEvaluator stores an evaluator in the context.
func WithEvaluator(ctx context.Context, ev Evaluator) context.Context {
	return context.WithValue(ctx, evaluatorKey{}, ev)
}

// EvaluatorFrom retrieves the evaluator from the context. The bool result is
// false when running outside an interpreter, which is a programming error
// for every builtin that needs to re-enter evaluation.
func EvaluatorFrom(ctx context.Context) (Evaluator, bool) {
	ev, ok := ctx.Value(evaluatorKey{}).(Evaluator)
	return ev, ok
}
