package sexp

// Closure is a user-defined function: formals, body, and the defining
// environment. The compiled body, once present, is an opaque handle owned by
// the bytecode layer.
type Closure struct {
	attrib
	formals Value // pair list: tag = parameter name, car = default or Missing
	body    Value
	env     *Env
	code    Value // compiled function object, set on demand
}

// NewClosure builds a closure.
func NewClosure(formals Value, body Value, env *Env) *Closure {
	return &Closure{formals: formals, body: body, env: env}
}

func (c *Closure) Kind() Kind     { return CloKind }
func (c *Closure) String() string { return "function" }

// Formals returns the formal parameter list.
func (c *Closure) Formals() Value { return c.formals }

// Body returns the source body.
func (c *Closure) Body() Value { return c.body }

// Env returns the defining environment.
func (c *Closure) Env() *Env { return c.env }

// Compiled returns the compiled function object, or nil when the closure has
// not been compiled yet.
func (c *Closure) Compiled() Value { return c.code }

// SetCompiled caches the compiled body.
func (c *Closure) SetCompiled(code Value) { c.code = code }

// FormalNames returns the parameter names in order.
func (c *Closure) FormalNames() []*Symbol {
	var names []*Symbol
	for it := c.formals; !IsNil(it); it = Cdr(it) {
		names = append(names, Tag(it))
	}
	return names
}
