package sexp

// Promise is a suspended computation: an expression (or compiled code body)
// plus the environment to evaluate it in, and a slot for the eventual value.
// Once forced, further forces return the stored value without re-evaluating.
type Promise struct {
	attrib
	expr  Value     // source expression, or nil for code-backed promises
	code  CodeValue // compiled body, or nil for expression promises
	owner Value     // function object owning code, kept reachable
	env     *Env
	value   Value // nil until forced
	forcing bool
}

// NewPromise builds a promise over a source expression.
func NewPromise(expr Value, env *Env) *Promise {
	return &Promise{expr: expr, env: env}
}

// NewCodePromise builds a promise over a compiled code body. The owning
// function object is retained so the code cannot outlive its container.
func NewCodePromise(code CodeValue, owner Value, env *Env) *Promise {
	return &Promise{code: code, owner: owner, env: env}
}

// NewForcedPromise builds an already-evaluated promise that just attaches an
// expression to a value.
func NewForcedPromise(expr Value, value Value, env *Env) *Promise {
	return &Promise{expr: expr, env: env, value: value}
}

func (p *Promise) Kind() Kind     { return PromKind }
func (p *Promise) String() string { return "<promise>" }

// Expr returns the promise's source expression, or nil-value for code-backed
// promises.
func (p *Promise) Expr() Value {
	if p.expr == nil {
		return Nil
	}
	return p.expr
}

// Code returns the compiled body, or nil.
func (p *Promise) Code() CodeValue { return p.code }

// Owner returns the function object owning the compiled body, or nil.
func (p *Promise) Owner() Value { return p.owner }

// Env returns the promise's defining environment.
func (p *Promise) Env() *Env { return p.env }

// Value returns the forced value, or nil if the promise is unforced.
func (p *Promise) Value() Value { return p.value }

// IsForced reports whether the promise has been evaluated.
func (p *Promise) IsForced() bool { return p.value != nil }

// Forcing reports whether the promise is currently under evaluation, which
// makes a second force a cycle.
func (p *Promise) Forcing() bool { return p.forcing }

// SetForcing marks the promise as under evaluation.
func (p *Promise) SetForcing(on bool) { p.forcing = on }

// SetValue stores the forced value; the defining environment stays attached.
// The value's reference indicator is raised so it will not be mutated in
// place through the promise.
func (p *Promise) SetValue(v Value) {
	p.value = v
	SetNamed(v, 2)
}
