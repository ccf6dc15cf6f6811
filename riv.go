// Package riv embeds the riv compiler and virtual machine: a bytecode
// execution engine for a lazily evaluated, lexically scoped language with
// first-class functions, promises, and generic dispatch.
//
// The usual flow is to create a Runtime, compile an expression, and
// evaluate it in an environment:
//
//	rt := riv.New()
//	fn, err := rt.Compile(expr)
//	if err != nil { ... }
//	result, err := rt.EvalFunction(ctx, fn, rt.GlobalEnv())
//
// EvalExpr combines the two steps and short-circuits self-evaluating
// values without compiling.
package riv

import (
	"context"

	"github.com/deepnoodle-ai/riv/builtins"
	"github.com/deepnoodle-ai/riv/bytecode"
	"github.com/deepnoodle-ai/riv/sexp"
	"github.com/deepnoodle-ai/riv/vm"
)

// Runtime bundles a virtual machine with a base environment populated with
// the builtin functions.
type Runtime struct {
	machine *vm.VM
}

// New creates a runtime with a fresh base and global environment.
func New(opts ...vm.Option) *Runtime {
	options := append([]vm.Option{vm.WithBaseEnv(builtins.NewEnv())}, opts...)
	return &Runtime{machine: vm.New(options...)}
}

// VM returns the underlying virtual machine.
func (r *Runtime) VM() *vm.VM { return r.machine }

// GlobalEnv returns the runtime's global environment.
func (r *Runtime) GlobalEnv() *sexp.Env { return r.machine.GlobalEnv() }

// BaseEnv returns the runtime's base environment.
func (r *Runtime) BaseEnv() *sexp.Env { return r.machine.BaseEnv() }

// Compile lowers a top-level expression into a function object.
func (r *Runtime) Compile(expr sexp.Value) (*bytecode.FunctionObject, error) {
	return r.machine.Compiler().CompileExpr(expr)
}

// CompileFunction lowers a closure body with its formals.
func (r *Runtime) CompileFunction(formals, body sexp.Value) (*bytecode.FunctionObject, error) {
	return r.machine.Compiler().Compile(formals, body)
}

// EvalFunction evaluates a compiled function's entry body in env.
func (r *Runtime) EvalFunction(ctx context.Context, fn *bytecode.FunctionObject, env *sexp.Env) (sexp.Value, error) {
	return r.machine.EvalFunction(ctx, fn, env)
}

// EvalExpr evaluates an expression in env, compiling when needed.
func (r *Runtime) EvalExpr(ctx context.Context, expr sexp.Value, env *sexp.Env) (sexp.Value, error) {
	return r.machine.Eval(ctx, expr, env)
}

// EvalPromise evaluates a promise body in env.
func (r *Runtime) EvalPromise(ctx context.Context, code *bytecode.CodeObject, env *sexp.Env) (sexp.Value, error) {
	return r.machine.EvalPromise(ctx, code, env)
}

// Visible reports whether the most recent result would auto-print.
func (r *Runtime) Visible() bool { return r.machine.Visible() }
