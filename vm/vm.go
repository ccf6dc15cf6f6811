// Package vm provides the stack-based virtual machine that executes
// compiled code against an environment: the dispatch loop, promise forcing,
// the call protocol, generic dispatch, and loop/return non-local transfer.
//
// The VM is the runtime handle: it owns the constant and source pools, the
// value stack, the call-frame chain, and the visibility flag. There is one
// interpreter per runtime and no preemption; re-entrancy happens whenever a
// builtin or special calls back into evaluation.
package vm

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/riv/bytecode"
	"github.com/deepnoodle-ai/riv/compiler"
	"github.com/deepnoodle-ai/riv/errz"
	"github.com/deepnoodle-ai/riv/op"
	"github.com/deepnoodle-ai/riv/pool"
	"github.com/deepnoodle-ai/riv/sexp"
)

// stackSlack is the headroom reserved beyond a code object's recorded stack
// depth, so call instructions can store intermediate values.
const stackSlack = 5

// Warning is a condition reported without interrupting execution.
type Warning struct {
	Call    sexp.Value
	Message string
}

// VM is a virtual machine instance together with the runtime state it
// executes against.
type VM struct {
	consts   *pool.Pool
	srcs     *pool.Pool
	comp     *compiler.Compiler
	base     *sexp.Env
	global   *sexp.Env
	stack    *Stack
	frame    *Frame
	visible  bool
	warnings []Warning
	observer Observer
}

var _ sexp.Evaluator = (*VM)(nil)

// New creates a virtual machine. Unless a base environment is supplied, an
// empty one is created; the global environment is always a fresh child of
// the base.
func New(opts ...Option) *VM {
	vm := &VM{
		consts:  pool.New(),
		srcs:    pool.New(),
		stack:   NewStack(),
		visible: true,
	}
	for _, o := range opts {
		o(vm)
	}
	if vm.base == nil {
		vm.base = sexp.NewEnv(nil)
	}
	vm.global = sexp.NewEnv(vm.base)
	vm.frame = &Frame{kind: TopLevelFrame}
	vm.comp = compiler.New(vm.consts, vm.srcs)
	vm.comp.SetForcer(func(p *sexp.Promise) (sexp.Value, error) {
		return vm.Force(vm.initCtx(context.Background()), p)
	})
	return vm
}

// Compiler returns the compiler bound to this runtime's pools.
func (vm *VM) Compiler() *compiler.Compiler { return vm.comp }

// Constants returns the runtime's constant pool.
func (vm *VM) Constants() *pool.Pool { return vm.consts }

// Sources returns the runtime's source pool.
func (vm *VM) Sources() *pool.Pool { return vm.srcs }

// BaseEnv returns the base environment.
func (vm *VM) BaseEnv() *sexp.Env { return vm.base }

// GlobalEnv returns the global environment.
func (vm *VM) GlobalEnv() *sexp.Env { return vm.global }

// Visible reports the visibility flag, which tracks whether the most recent
// result would auto-print.
func (vm *VM) Visible() bool { return vm.visible }

// SetVisible sets the visibility flag.
func (vm *VM) SetVisible(on bool) { vm.visible = on }

// Warningf records a warning without interrupting execution.
func (vm *VM) Warningf(call sexp.Value, format string, args ...any) {
	vm.warnings = append(vm.warnings, Warning{Call: call, Message: fmt.Sprintf(format, args...)})
}

// Warnings returns the warnings collected so far.
func (vm *VM) Warnings() []Warning { return vm.warnings }

// StackLen returns the current value-stack height, for tests and
// invariants.
func (vm *VM) StackLen() int { return vm.stack.Len() }

// FrameInfo describes the innermost function frame.
func (vm *VM) FrameInfo() (call sexp.Value, args sexp.Value, env *sexp.Env, ok bool) {
	for f := vm.frame; f != nil; f = f.next {
		if f.kind == FunctionFrame {
			return f.call, f.args, f.funEnv, true
		}
	}
	return nil, nil, nil, false
}

func (vm *VM) initCtx(ctx context.Context) context.Context {
	if _, ok := sexp.EvaluatorFrom(ctx); ok {
		return ctx
	}
	return sexp.WithEvaluator(ctx, vm)
}

// EvalFunction evaluates a compiled function's entry body in env.
func (vm *VM) EvalFunction(ctx context.Context, fn *bytecode.FunctionObject, env *sexp.Env) (sexp.Value, error) {
	return vm.evalCode(vm.initCtx(ctx), fn.Entry(), env)
}

// EvalPromise evaluates a promise body in env.
func (vm *VM) EvalPromise(ctx context.Context, code *bytecode.CodeObject, env *sexp.Env) (sexp.Value, error) {
	return vm.evalCode(vm.initCtx(ctx), code, env)
}

// Eval evaluates an expression in env: language calls compile and run,
// symbols look up (forcing promises), and self-evaluating values return
// directly, marked fully named so weird calls to replacement functions
// cannot mutate constants in expressions.
func (vm *VM) Eval(ctx context.Context, e sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ctx = vm.initCtx(ctx)
	vm.visible = true
	switch e := e.(type) {
	case *sexp.Lang:
		fn, err := vm.comp.CompileExpr(e)
		if err != nil {
			return nil, err
		}
		return vm.evalCode(ctx, fn.Entry(), env)
	case *sexp.Symbol:
		return vm.evalSymbol(ctx, e, env)
	case *sexp.Promise:
		return vm.promiseValue(ctx, e)
	case *bytecode.FunctionObject:
		return vm.evalCode(ctx, e.Entry(), env)
	case *bytecode.CodeObject:
		return vm.evalCode(ctx, e, env)
	case *sexp.Dots:
		return nil, errz.New(errz.ErrRuntime, e, "'...' used in an incorrect context")
	default:
		sexp.SetNamed(e, 2)
		return e, nil
	}
}

func (vm *VM) evalSymbol(ctx context.Context, sym *sexp.Symbol, env *sexp.Env) (sexp.Value, error) {
	if sym == sexp.DotsSym {
		return nil, errz.New(errz.ErrRuntime, sym, "'...' used in an incorrect context")
	}
	var val sexp.Value
	var err error
	if sym.DDVal() > 0 {
		val, err = env.DDFind(sym.DDVal(), vm.forcer(ctx))
		if err != nil {
			return nil, err
		}
	} else {
		val = env.Find(sym)
	}
	if val == sexp.Unbound {
		return nil, errz.New(errz.ErrUnboundVariable, sym, "object not found")
	}
	if val == sexp.Missing {
		return nil, errz.Newf(errz.ErrMissingArgument, sym,
			"argument %q is missing, with no default", sym.Name())
	}
	if p, ok := val.(*sexp.Promise); ok {
		return vm.promiseValue(ctx, p)
	}
	if sexp.Named(val) == 0 && !sexp.IsNil(val) {
		sexp.SetNamed(val, 1)
	}
	return val, nil
}

// Force resolves a promise, evaluating its body on first use. Forcing is
// idempotent; once a value is stored, it is returned locked against
// in-place mutation.
func (vm *VM) Force(ctx context.Context, p *sexp.Promise) (sexp.Value, error) {
	return vm.promiseValue(vm.initCtx(ctx), p)
}

func (vm *VM) promiseValue(ctx context.Context, p *sexp.Promise) (sexp.Value, error) {
	if p.IsForced() {
		v := p.Value()
		sexp.SetNamed(v, 2)
		return v, nil
	}
	if p.Forcing() {
		return nil, errz.New(errz.ErrRuntime, p.Expr(),
			"promise already under evaluation: recursive default argument reference or earlier problems?")
	}
	p.SetForcing(true)
	defer p.SetForcing(false)
	var v sexp.Value
	var err error
	if code := p.Code(); code != nil {
		v, err = vm.evalCode(ctx, code.(*bytecode.CodeObject), p.Env())
	} else {
		v, err = vm.Eval(ctx, p.Expr(), p.Env())
	}
	if err != nil {
		return nil, err
	}
	p.SetValue(v)
	return v, nil
}

func (vm *VM) forcer(ctx context.Context) sexp.Forcer {
	return func(p *sexp.Promise) (sexp.Value, error) {
		return vm.promiseValue(ctx, p)
	}
}

// LoopContext installs a loop frame around body. Break and next signals
// that bubble out of body land here instead of escaping further.
func (vm *VM) LoopContext(ctx context.Context, call sexp.Value, env *sexp.Env, body func(context.Context) error) error {
	fr := vm.pushFrame(LoopFrame)
	fr.call = call
	fr.callEnv = env
	vm.stack.Push(&frameMarker{frame: fr})
	fr.stackTop = vm.stack.Len()

	err := body(ctx)

	vm.stack.TruncateTo(fr.stackTop - 1)
	vm.popFrame()
	if j, ok := err.(*sexp.Jump); ok {
		switch j.Kind {
		case sexp.BreakJump, sexp.NextJump:
			return nil
		}
	}
	return err
}

// evalToken identifies one evalCode invocation; loop frames record it so a
// non-local break or next can tell whether the innermost loop belongs to
// the invocation that caught the signal.
type evalToken struct{ _ byte }

// evalCode runs one code body against an environment. On success exactly
// one value, the result, has passed over the entry stack height.
func (vm *VM) evalCode(ctx context.Context, c *bytecode.CodeObject, env *sexp.Env) (sexp.Value, error) {
	if env == nil {
		return nil, errz.New(errz.ErrInternal, nil, "environment cannot be nil")
	}
	vm.stack.Ensure(c.StackDepth() + stackSlack)
	entry := vm.stack.Len()
	token := &evalToken{}
	vm.visible = true

	pc := 0
	for pc < len(c.Ops()) {
		insPC := pc
		code := c.OpAt(pc)
		info := op.GetInfo(code)
		if info.Name == "" {
			return nil, vm.unwindError(token, entry,
				errz.Newf(errz.ErrInternal, nil, "unknown opcode %d at %d", code, pc))
		}
		pc += info.Size()

		if vm.observer != nil {
			ev := StepEvent{
				PC:         insPC,
				Opcode:     code,
				OpcodeName: info.Name,
				StackDepth: vm.stack.Len(),
				FrameDepth: vm.frameDepth(),
			}
			if !vm.observer.OnStep(ev) {
				return nil, vm.unwindError(token, entry,
					errz.New(errz.ErrRuntime, nil, "execution halted by observer"))
			}
		}

		var err error
		switch code {
		case op.Push:
			vm.visible = true
			vm.stack.Push(vm.constAt(c, insPC, 0))

		case op.LdFun:
			err = vm.insLdFun(ctx, c, insPC, env)

		case op.LdVar:
			err = vm.insLdVar(ctx, c, insPC, env, false)

		case op.LdDdVar:
			err = vm.insLdVar(ctx, c, insPC, env, true)

		case op.PushCode:
			vm.stack.Push(c.Function().CodeAt(int(c.ImmAt(insPC, 0))))

		case op.MkProm:
			body := c.Function().CodeAt(int(c.ImmAt(insPC, 0)))
			vm.stack.Push(sexp.NewCodePromise(body, c.Function(), env))

		case op.Force:
			p, ok := vm.stack.Pop().(*sexp.Promise)
			if !ok {
				err = errz.New(errz.ErrInternal, nil, "force expects a promise")
				break
			}
			var v sexp.Value
			if v, err = vm.promiseValue(ctx, p); err == nil {
				vm.stack.Push(v)
			}

		case op.Call:
			err = vm.insCall(ctx, c, insPC, env)

		case op.CallStack:
			err = vm.insCallStack(ctx, c, insPC, env)

		case op.Dispatch:
			err = vm.insDispatch(ctx, c, insPC, env)

		case op.Br:
			pc += int(c.ImmAt(insPC, 0))

		case op.BrTrue:
			if truthOf(vm.stack.Pop()) == 1 {
				pc += int(c.ImmAt(insPC, 0))
			}

		case op.BrFalse:
			if truthOf(vm.stack.Pop()) == 0 {
				pc += int(c.ImmAt(insPC, 0))
			}

		case op.BrObj:
			if sexp.IsObject(vm.stack.Top()) {
				pc += int(c.ImmAt(insPC, 0))
			}

		case op.BeginLoop:
			fr := vm.pushFrame(LoopFrame)
			fr.owner = token
			fr.callEnv = env
			fr.resumePC = pc
			fr.breakPC = pc + int(c.ImmAt(insPC, 0))
			vm.stack.Push(&frameMarker{frame: fr})
			fr.stackTop = vm.stack.Len()

		case op.EndContext:
			marker, ok := vm.stack.Pop().(*frameMarker)
			if !ok || vm.frame != marker.frame {
				err = errz.New(errz.ErrInternal, nil, "frame chain out of sync with value stack")
				break
			}
			vm.popFrame()

		case op.Ret:
			if vm.stack.Len() != entry+1 {
				return nil, vm.unwindError(token, entry, errz.Newf(errz.ErrInternal, nil,
					"stack height %d at ret, expected %d", vm.stack.Len(), entry+1))
			}
			return vm.escape(vm.stack.Pop()), nil

		case op.Pop:
			vm.stack.Pop()

		case op.Dup:
			vm.stack.Push(vm.stack.Top())

		case op.Dup2:
			a, b := vm.stack.At(1), vm.stack.At(0)
			vm.stack.Push(a)
			vm.stack.Push(b)

		case op.Swap:
			vm.stack.Swap()

		case op.Pick:
			vm.stack.Pick(int(c.ImmAt(insPC, 0)))

		case op.Put:
			vm.stack.Put(int(c.ImmAt(insPC, 0)))

		case op.AsBool:
			err = vm.insAsBool(c, insPC)

		case op.AsLogical:
			vm.stack.Push(lglResult(sexp.AsLogical(vm.stack.Pop())))

		case op.LglAnd:
			x2 := truthOf(vm.stack.Pop())
			x1 := truthOf(vm.stack.Pop())
			switch {
			case x1 == 1 && x2 == 1:
				vm.stack.Push(sexp.True)
			case x1 == 0 || x2 == 0:
				vm.stack.Push(sexp.False)
			default:
				vm.stack.Push(sexp.NAValue)
			}

		case op.LglOr:
			x2 := truthOf(vm.stack.Pop())
			x1 := truthOf(vm.stack.Pop())
			switch {
			case x1 == 1 || x2 == 1:
				vm.stack.Push(sexp.True)
			case x1 == 0 && x2 == 0:
				vm.stack.Push(sexp.False)
			default:
				vm.stack.Push(sexp.NAValue)
			}

		case op.Is:
			err = vm.insIs(c, insPC)

		case op.StVar:
			sym := vm.constAt(c, insPC, 0).(*sexp.Symbol)
			val := vm.escape(vm.stack.Pop())
			sexp.IncrementNamed(val)
			env.Define(sym, val)

		case op.Lt, op.Add, op.Sub:
			err = vm.insArith(ctx, c, insPC, code, env)

		case op.Inc:
			err = vm.insInc()

		case op.Extract1:
			err = vm.insExtract(ctx, c, insPC, env, true)

		case op.Subset1:
			err = vm.insExtract(ctx, c, insPC, env, false)

		case op.Invisible:
			vm.visible = false

		case op.Uniq:
			v := vm.stack.Top()
			if sexp.MaybeShared(v) {
				v = sexp.ShallowDuplicate(v)
				vm.stack.SetAt(0, v)
			}
			if sexp.Named(v) < 1 {
				sexp.SetNamed(v, 1)
			}

		case op.AsAst:
			p, ok := vm.stack.Pop().(*sexp.Promise)
			if !ok {
				err = errz.New(errz.ErrInternal, nil, "asast expects a promise")
				break
			}
			if code := p.Code(); code != nil {
				vm.stack.Push(vm.srcs.Get(code.SourceKey()))
			} else {
				vm.stack.Push(p.Expr())
			}

		case op.IsFun:
			err = vm.insIsFun(c, insPC)

		case op.IsSpecial:
			var taken bool
			taken, err = vm.insIsSpecial(ctx, c, insPC, env)
			if err == nil && taken {
				pc += int(c.ImmAt(insPC, 1))
			}

		default:
			err = errz.Newf(errz.ErrInternal, nil, "unimplemented opcode %s", info.Name)
		}

		if err != nil {
			// A break or next signal landing in a loop frame installed by
			// this invocation resumes here; everything else unwinds.
			if j, ok := err.(*sexp.Jump); ok {
				fr := vm.frame
				if fr != nil && fr.kind == LoopFrame && fr.owner == token &&
					(j.Kind == sexp.BreakJump || j.Kind == sexp.NextJump) {
					vm.stack.TruncateTo(fr.stackTop)
					if j.Kind == sexp.BreakJump {
						pc = fr.breakPC
					} else {
						pc = fr.resumePC
					}
					continue
				}
			}
			return nil, vm.unwindError(token, entry, err)
		}
	}
	return nil, vm.unwindError(token, entry,
		errz.New(errz.ErrInternal, nil, "fell off the end of the instruction stream"))
}

// unwindError pops every frame this invocation still owns and restores the
// stack to its entry height before propagating the error.
func (vm *VM) unwindError(token any, entry int, err error) error {
	for vm.frame != nil && vm.frame.owner == token {
		vm.popFrame()
	}
	vm.stack.TruncateTo(entry)
	return err
}

// escape converts compiled code objects that would leak out as values back
// into their source expressions.
func (vm *VM) escape(v sexp.Value) sexp.Value {
	switch cv := v.(type) {
	case *bytecode.CodeObject:
		return vm.srcs.Get(cv.SourceKey())
	case *bytecode.FunctionObject:
		return vm.srcs.Get(cv.Entry().SourceKey())
	}
	return v
}

func (vm *VM) constAt(c *bytecode.CodeObject, insPC, operand int) sexp.Value {
	return vm.consts.Get(uint32(c.ImmAt(insPC, operand)))
}

func (vm *VM) srcAt(c *bytecode.CodeObject, insPC int) sexp.Value {
	return vm.srcs.Get(c.SrcKeyAtPC(insPC))
}

// truthOf reads the first logical element of a value: 1, 0, or NA.
func truthOf(v sexp.Value) sexp.Lgl {
	return sexp.AsLogical(v)
}

// lglResult maps a three-valued logical to the shared scalar singletons.
func lglResult(l sexp.Lgl) sexp.Value {
	switch l {
	case 1:
		return sexp.True
	case 0:
		return sexp.False
	default:
		return sexp.NAValue
	}
}

func (vm *VM) insLdFun(ctx context.Context, c *bytecode.CodeObject, insPC int, env *sexp.Env) error {
	sym := vm.constAt(c, insPC, 0).(*sexp.Symbol)
	val, err := env.FindFun(sym, vm.forcer(ctx))
	if err != nil {
		return err
	}
	if val == sexp.Unbound {
		return errz.Newf(errz.ErrUnboundVariable, vm.srcAt(c, insPC),
			"could not find function %q", sym.Name())
	}
	switch fn := val.(type) {
	case *sexp.Closure:
		if err := vm.jit(fn); err != nil {
			return err
		}
	case *sexp.Builtin:
	default:
		return errz.New(errz.ErrNonFunction, vm.srcAt(c, insPC),
			"attempt to apply non-function")
	}
	vm.stack.Push(val)
	return nil
}

func (vm *VM) insLdVar(ctx context.Context, c *bytecode.CodeObject, insPC int, env *sexp.Env, dd bool) error {
	sym := vm.constAt(c, insPC, 0).(*sexp.Symbol)
	vm.visible = true
	var val sexp.Value
	var err error
	if dd {
		val, err = env.DDFind(sym.DDVal(), vm.forcer(ctx))
		if err != nil {
			return err
		}
	} else {
		val = env.Find(sym)
	}
	if val == sexp.Unbound {
		return errz.New(errz.ErrUnboundVariable, vm.srcAt(c, insPC), "object not found")
	}
	if val == sexp.Missing {
		if dd {
			return errz.New(errz.ErrMissingArgument, vm.srcAt(c, insPC),
				"argument is missing, with no default")
		}
		return errz.Newf(errz.ErrMissingArgument, vm.srcAt(c, insPC),
			"argument %q is missing, with no default", sym.Name())
	}
	if p, ok := val.(*sexp.Promise); ok {
		val, err = vm.promiseValue(ctx, p)
		if err != nil {
			return err
		}
	}
	if sexp.Named(val) == 0 && !sexp.IsNil(val) {
		sexp.SetNamed(val, 1)
	}
	vm.stack.Push(val)
	return nil
}

// jit ensures a closure has a compiled body, compiling on demand.
func (vm *VM) jit(fn *sexp.Closure) error {
	if fn.Compiled() != nil {
		return nil
	}
	compiled, err := vm.comp.Compile(fn.Formals(), fn.Body())
	if err != nil {
		return err
	}
	fn.SetCompiled(compiled)
	return nil
}

func (vm *VM) insAsBool(c *bytecode.CodeObject, insPC int) error {
	t := vm.stack.Top()
	if sexp.Length(t) > 1 {
		vm.Warningf(vm.srcAt(c, insPC),
			"the condition has length > 1 and only the first element will be used")
	}
	cond := sexp.LglNA
	if sexp.Length(t) > 0 {
		cond = sexp.AsLogical(t)
	}
	if cond == sexp.LglNA {
		var msg string
		switch {
		case sexp.Length(t) == 0:
			msg = "argument is of length zero"
		case t.Kind() == sexp.LglKind:
			msg = "missing value where TRUE/FALSE needed"
		default:
			msg = "argument is not interpretable as logical"
		}
		return errz.New(errz.ErrBadCondition, vm.srcAt(c, insPC), msg)
	}
	vm.stack.Pop()
	if cond == 1 {
		vm.stack.Push(sexp.True)
	} else {
		vm.stack.Push(sexp.False)
	}
	return nil
}

func (vm *VM) insIs(c *bytecode.CodeObject, insPC int) error {
	test := vm.stack.Pop()
	kind := sexp.Kind(c.ImmAt(insPC, 0))
	var res bool
	switch kind {
	case sexp.NilKind, sexp.LglKind, sexp.IntKind, sexp.RealKind, sexp.StrKind:
		res = test.Kind() == kind
	case sexp.ListKind:
		// Generic vectors and pair lists both count as lists.
		res = test.Kind() == sexp.ListKind || test.Kind() == sexp.PairKind
	case sexp.PairKind:
		// The empty pair list is nil.
		res = test.Kind() == sexp.PairKind || test.Kind() == sexp.NilKind
	default:
		return errz.Newf(errz.ErrInternal, nil, "is: unsupported type tag %d", kind)
	}
	if res {
		vm.stack.Push(sexp.True)
	} else {
		vm.stack.Push(sexp.False)
	}
	return nil
}

func (vm *VM) insInc() error {
	n, ok := vm.stack.Top().(*sexp.IntVector)
	if !ok || n.Len() != 1 {
		return errz.New(errz.ErrInternal, nil, "inc expects a scalar integer")
	}
	if sexp.MaybeShared(n) {
		vm.stack.Pop()
		vm.stack.Push(sexp.ScalarInt(n.Int(0) + 1))
	} else {
		n.SetInt(0, n.Int(0)+1)
	}
	return nil
}

func (vm *VM) insIsFun(c *bytecode.CodeObject, insPC int) error {
	switch fn := vm.stack.Top().(type) {
	case *sexp.Closure:
		return vm.jit(fn)
	case *sexp.Builtin:
		return nil
	default:
		return errz.New(errz.ErrNonFunction, vm.srcAt(c, insPC),
			"attempt to apply non-function")
	}
}

// insIsSpecial guards an inlined special form. When the binding still is a
// builtin or special the guard falls through; otherwise the original call
// is evaluated dynamically, its result pushed, and the inlined form skipped
// via the side-exit offset.
func (vm *VM) insIsSpecial(ctx context.Context, c *bytecode.CodeObject, insPC int, env *sexp.Env) (taken bool, err error) {
	sym := vm.constAt(c, insPC, 0).(*sexp.Symbol)
	for e := env; e != nil; e = e.Parent() {
		v, ok := e.FindLocal(sym)
		if !ok {
			continue
		}
		if _, isBuiltin := v.(*sexp.Builtin); isBuiltin {
			return false, nil
		}
		// Shadowed (or shadowed behind a promise): abandon the inlined
		// form and evaluate the original call dynamically.
		call, isCall := vm.srcAt(c, insPC).(*sexp.Lang)
		if !isCall {
			return false, errz.New(errz.ErrInternal, nil,
				"isspecial guard without a call source")
		}
		res, err := vm.dynamicCall(ctx, call, env)
		if err != nil {
			return false, err
		}
		vm.stack.Push(res)
		return true, nil
	}
	// Unbound: the inlined semantics are as good as it gets.
	return false, nil
}

func (vm *VM) insArith(ctx context.Context, c *bytecode.CodeObject, insPC int, code op.Code, env *sexp.Env) error {
	rhs := vm.stack.Pop()
	lhs := vm.stack.Pop()
	l, lok := lhs.(*sexp.RealVector)
	r, rok := rhs.(*sexp.RealVector)
	if lok && rok && l.Len() == 1 && r.Len() == 1 {
		switch code {
		case op.Add:
			res := sexp.ScalarReal(l.Real(0) + r.Real(0))
			sexp.SetNamed(res, 1)
			vm.stack.Push(res)
		case op.Sub:
			res := sexp.ScalarReal(l.Real(0) - r.Real(0))
			sexp.SetNamed(res, 1)
			vm.stack.Push(res)
		case op.Lt:
			if l.Real(0) < r.Real(0) {
				vm.stack.Push(sexp.True)
			} else {
				vm.stack.Push(sexp.False)
			}
		}
		return nil
	}
	var name string
	switch code {
	case op.Add:
		name = "+"
	case op.Sub:
		name = "-"
	case op.Lt:
		name = "<"
	}
	fn := vm.base.Find(sexp.Install(name))
	b, ok := fn.(*sexp.Builtin)
	if !ok {
		return errz.Newf(errz.ErrInternal, nil, "no %q builtin for the fast-path fallback", name)
	}
	args := sexp.Cons(lhs, sexp.Cons(rhs, sexp.Nil))
	res, err := b.Call(ctx, vm.srcAt(c, insPC), args, env)
	if err != nil {
		return err
	}
	vm.stack.Push(res)
	return nil
}

func (vm *VM) insExtract(ctx context.Context, c *bytecode.CodeObject, insPC int, env *sexp.Env, single bool) error {
	idx := vm.stack.Pop()
	val := vm.stack.Pop()

	if res, ok := scalarFastExtract(val, idx); ok {
		vm.visible = true
		vm.stack.Push(res)
		return nil
	}

	var res sexp.Value
	var err error
	if single {
		res, err = sexp.Extract2Default(val, idx)
	} else {
		res, err = sexp.SubsetDefault(val, idx)
	}
	if err != nil {
		return errz.New(errz.ErrOutOfRange, vm.srcAt(c, insPC), err.Error())
	}
	vm.visible = true
	vm.stack.Push(res)
	return nil
}

// scalarFastExtract handles attribute-free numeric vectors indexed by an
// attribute-free scalar. Everything else, including out-of-range indexes,
// falls through to the default builtin behavior.
func scalarFastExtract(val, idx sexp.Value) (sexp.Value, bool) {
	if a, ok := val.(sexp.Attributed); !ok || len(a.Attrs()) != 0 {
		return nil, false
	}
	if a, ok := idx.(sexp.Attributed); !ok || len(a.Attrs()) != 0 || sexp.Length(idx) != 1 {
		return nil, false
	}
	switch idx.Kind() {
	case sexp.LglKind, sexp.IntKind, sexp.RealKind:
	default:
		return nil, false
	}
	i := sexp.AsInt(idx) - 1
	if i < 0 || i >= sexp.Length(val) {
		return nil, false
	}
	switch val := val.(type) {
	case *sexp.RealVector:
		return sexp.ScalarReal(val.Real(i)), true
	case *sexp.IntVector:
		return sexp.ScalarInt(val.Int(i)), true
	case *sexp.LglVector:
		return sexp.NewLglVector([]sexp.Lgl{val.Lgl(i)}), true
	}
	return nil, false
}
