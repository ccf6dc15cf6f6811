package vm

import "github.com/deepnoodle-ai/riv/sexp"

// Option configures a VM.
type Option func(*VM)

// WithBaseEnv supplies the base environment holding the builtin bindings.
// The global environment is created as its child.
func WithBaseEnv(base *sexp.Env) Option {
	return func(vm *VM) { vm.base = base }
}

// WithObserver installs an execution observer.
func WithObserver(o Observer) Option {
	return func(vm *VM) { vm.observer = o }
}
