package vm

import (
	"context"

	"github.com/deepnoodle-ai/riv/bytecode"
	"github.com/deepnoodle-ai/riv/errz"
	"github.com/deepnoodle-ai/riv/sexp"
)

func (vm *VM) insCall(ctx context.Context, c *bytecode.CodeObject, insPC int, env *sexp.Env) error {
	argsVec, ok := vm.constAt(c, insPC, 0).(*sexp.IntVector)
	if !ok {
		return errz.New(errz.ErrInternal, nil, "call: malformed argument index vector")
	}
	names := vm.constAt(c, insPC, 1)
	callee := vm.stack.Pop()
	call := vm.srcAt(c, insPC)

	res, err := vm.doCall(ctx, c.Function(), call, callee, argsVec.Values(), names, env)
	if err != nil {
		return err
	}
	vm.stack.Push(res)
	return nil
}

func (vm *VM) insDispatch(ctx context.Context, c *bytecode.CodeObject, insPC int, env *sexp.Env) error {
	argsVec, ok := vm.constAt(c, insPC, 0).(*sexp.IntVector)
	if !ok {
		return errz.New(errz.ErrInternal, nil, "dispatch: malformed argument index vector")
	}
	names := vm.constAt(c, insPC, 1)
	selector := vm.constAt(c, insPC, 2).(*sexp.Symbol)
	obj := vm.stack.Pop()
	call := vm.srcAt(c, insPC)

	res, err := vm.doDispatch(ctx, c.Function(), call, selector, obj, argsVec.Values(), names, env)
	if err != nil {
		return err
	}
	vm.stack.Push(res)
	return nil
}

// doCall performs a call whose arguments are identified by promise-body
// indices. Specials get the raw call AST; builtins get an eagerly evaluated
// argument list; closures get unforced promises.
func (vm *VM) doCall(ctx context.Context, fnObj *bytecode.FunctionObject, call sexp.Value, callee sexp.Value, argIdx []int, names sexp.Value, env *sexp.Env) (sexp.Value, error) {
	switch fn := callee.(type) {
	case *sexp.Builtin:
		if fn.Kind() == sexp.SpecialKind {
			return vm.callSpecial(ctx, fn, call, env)
		}
		args, err := vm.createArgsList(ctx, fnObj, argIdx, call, names, env, true)
		if err != nil {
			return nil, err
		}
		return vm.callBuiltin(ctx, fn, call, args, env)
	case *sexp.Closure:
		actuals, err := vm.createArgsList(ctx, fnObj, argIdx, call, names, env, false)
		if err != nil {
			return nil, err
		}
		return vm.applyClosure(ctx, call, fn, actuals, env)
	default:
		return nil, errz.New(errz.ErrNonFunction, call, "attempt to apply non-function")
	}
}

// callSpecial invokes a special with the unevaluated argument ASTs. The
// stack snapshot around the call re-establishes a consistent stack when the
// special re-entered evaluation and failed partway.
func (vm *VM) callSpecial(ctx context.Context, fn *sexp.Builtin, call sexp.Value, env *sexp.Env) (sexp.Value, error) {
	vm.applyVisibility(fn)
	snapshot := vm.stack.Len()
	res, err := fn.Call(ctx, call, sexp.Cdr(call), env)
	if err != nil {
		vm.stack.TruncateTo(snapshot)
		return nil, err
	}
	vm.applyVisibility(fn)
	return res, nil
}

// callBuiltin invokes an eager builtin with an already-evaluated argument
// list.
func (vm *VM) callBuiltin(ctx context.Context, fn *sexp.Builtin, call sexp.Value, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	vm.applyVisibility(fn)
	snapshot := vm.stack.Len()
	res, err := fn.Call(ctx, call, args, env)
	if err != nil {
		vm.stack.TruncateTo(snapshot)
		return nil, err
	}
	vm.applyVisibility(fn)
	return res, nil
}

func (vm *VM) applyVisibility(fn *sexp.Builtin) {
	if fn.Visibility() != sexp.VisiblePreserve {
		vm.visible = fn.Visibility() != sexp.VisibleOff
	}
}

// createArgsList materializes the argument list for a call instruction. In
// eager mode every promise body is evaluated immediately; otherwise
// arguments become unforced promises over their code bodies. The dots
// sentinel expands the "..." binding inline, carrying tags; the missing
// sentinel forwards a missing argument, which eager callees reject.
func (vm *VM) createArgsList(ctx context.Context, fn *bytecode.FunctionObject, argIdx []int, call sexp.Value, names sexp.Value, env *sexp.Env, eager bool) (sexp.Value, error) {
	b := sexp.NewListBuilder()
	nameAt := func(i int) *sexp.Symbol {
		list, ok := names.(*sexp.List)
		if !ok || i >= list.Len() {
			return nil
		}
		sym, _ := list.Elem(i).(*sexp.Symbol)
		return sym
	}
	for i, idx := range argIdx {
		switch idx {
		case bytecode.DotsArgIdx:
			if err := vm.expandDots(ctx, b, env, eager); err != nil {
				return nil, err
			}
		case bytecode.MissingArgIdx:
			if eager {
				return nil, errz.Newf(errz.ErrMissingArgument, call,
					"argument %d is empty", i+1)
			}
			b.Append(sexp.Missing, nil)
		default:
			body := fn.CodeAt(idx)
			if eager {
				val, err := vm.evalCode(ctx, body, env)
				if err != nil {
					return nil, err
				}
				b.Append(val, nameAt(i))
			} else {
				b.Append(sexp.NewCodePromise(body, fn, env), nameAt(i))
			}
		}
	}
	return b.List(), nil
}

// expandDots inlines the pending "..." arguments from the environment,
// forcing them in eager mode.
func (vm *VM) expandDots(ctx context.Context, b *sexp.ListBuilder, env *sexp.Env, eager bool) error {
	dots, ok := env.Find(sexp.DotsSym).(*sexp.Dots)
	if !ok {
		return nil
	}
	for it := sexp.Value(dots); !sexp.IsNil(it); it = sexp.Cdr(it) {
		arg := sexp.Car(it)
		if eager {
			if p, isProm := arg.(*sexp.Promise); isProm {
				forced, err := vm.promiseValue(ctx, p)
				if err != nil {
					return err
				}
				arg = forced
			}
		}
		b.Append(arg, sexp.Tag(it))
	}
	return nil
}

// insCallStack performs a call whose callee and arguments are already on
// the stack, the callee beneath the arguments. When the attached call AST
// carries getter or setter placeholders, they are substituted with the
// current target (and value) before the callee sees the call.
func (vm *VM) insCallStack(ctx context.Context, c *bytecode.CodeObject, insPC int, env *sexp.Env) error {
	nargs := int(c.ImmAt(insPC, 0))
	names := vm.constAt(c, insPC, 1)
	call := vm.srcAt(c, insPC)

	callee := vm.stack.At(nargs)

	call = vm.patchPlaceholders(call, callee, nargs)

	popAll := func() {
		for i := 0; i <= nargs; i++ {
			vm.stack.Pop()
		}
	}

	var res sexp.Value
	var err error
	switch fn := callee.(type) {
	case *sexp.Builtin:
		if fn.Kind() == sexp.SpecialKind {
			popAll()
			res, err = vm.callSpecial(ctx, fn, call, env)
		} else {
			var args sexp.Value
			args, err = vm.createArgsListStack(ctx, nargs, names, env, call, true)
			if err != nil {
				return err
			}
			popAll()
			res, err = vm.callBuiltin(ctx, fn, call, args, env)
		}
	case *sexp.Closure:
		var actuals sexp.Value
		actuals, err = vm.createArgsListStack(ctx, nargs, names, env, call, false)
		if err != nil {
			return err
		}
		popAll()
		res, err = vm.applyClosure(ctx, call, fn, actuals, env)
	default:
		return errz.New(errz.ErrNonFunction, call, "attempt to apply non-function")
	}
	if err != nil {
		return err
	}
	vm.stack.Push(res)
	return nil
}

// patchPlaceholders substitutes the complex-assignment placeholders in a
// rewritten call AST with the current top-of-stack target and value. A
// substituted value that is itself a language or symbol node is wrapped in
// quote(...) to prevent re-evaluation.
func (vm *VM) patchPlaceholders(call sexp.Value, callee sexp.Value, nargs int) sexp.Value {
	lang, ok := call.(*sexp.Lang)
	if !ok {
		return call
	}
	switch callee.(type) {
	case *sexp.Builtin, *sexp.Closure:
	default:
		return call
	}
	first := sexp.Cadr(lang)
	if first != sexp.GetterPlaceholder && first != sexp.SetterPlaceholder {
		return call
	}
	setter := first == sexp.SetterPlaceholder

	dup := sexp.ShallowDuplicateCall(lang)
	target := vm.escape(vm.stack.At(nargs - 1))
	sexp.ListElem(dup.Cdr(), 0).SetCar(sexp.QuoteIfAST(target))

	if setter {
		last := sexp.ListElem(dup.Cdr(), sexp.ListLength(dup.Cdr())-1)
		val := vm.escape(vm.stack.Top())
		sexp.IncrementNamed(val)
		last.SetCar(sexp.QuoteIfAST(val))
	}
	return dup
}

// createArgsListStack builds the argument list from values already on the
// stack. A dots symbol on the stack expands the environment's "..."
// binding; promises are forced in eager mode.
func (vm *VM) createArgsListStack(ctx context.Context, nargs int, names sexp.Value, env *sexp.Env, call sexp.Value, eager bool) (sexp.Value, error) {
	b := sexp.NewListBuilder()
	nameAt := func(i int) *sexp.Symbol {
		list, ok := names.(*sexp.List)
		if !ok || i >= list.Len() {
			return nil
		}
		sym, _ := list.Elem(i).(*sexp.Symbol)
		return sym
	}
	for i := 0; i < nargs; i++ {
		arg := vm.stack.At(nargs - 1 - i)
		if arg == sexp.DotsSym {
			if err := vm.expandDots(ctx, b, env, eager); err != nil {
				return nil, err
			}
			continue
		}
		if arg == sexp.Missing {
			if eager {
				return nil, errz.Newf(errz.ErrMissingArgument, call,
					"argument %d is empty", i+1)
			}
			b.Append(sexp.Missing, nil)
			continue
		}
		if eager {
			if p, isProm := arg.(*sexp.Promise); isProm {
				forced, err := vm.promiseValue(ctx, p)
				if err != nil {
					return nil, err
				}
				arg = forced
			}
		}
		b.Append(arg, nameAt(i))
	}
	return b.List(), nil
}

// applyClosure calls a closure with a prepared argument list, compiling the
// body on demand.
func (vm *VM) applyClosure(ctx context.Context, call sexp.Value, fn *sexp.Closure, actuals sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := vm.jit(fn); err != nil {
		return nil, err
	}
	return vm.callCompiledClosure(ctx, call, fn, actuals, env)
}

// callCompiledClosure binds the formals into a fresh child of the closure's
// defining environment, installs a function frame, and runs the entry body
// under a trampoline. A return signal unwinding to this frame restores the
// stack snapshot and produces the carried value; a restart token re-enters
// the body from the start.
func (vm *VM) callCompiledClosure(ctx context.Context, call sexp.Value, fn *sexp.Closure, actuals sexp.Value, env *sexp.Env) (sexp.Value, error) {
	fnObj, ok := fn.Compiled().(*bytecode.FunctionObject)
	if !ok {
		return nil, errz.New(errz.ErrInternal, call, "closure has no compiled body")
	}
	newEnv, err := vm.matchArgs(call, fn, fnObj, actuals)
	if err != nil {
		return nil, err
	}

	fr := vm.pushFrame(FunctionFrame)
	fr.call = call
	fr.closure = fn
	fr.args = actuals
	fr.callEnv = env
	fr.funEnv = newEnv
	vm.stack.Push(&frameMarker{frame: fr})
	fr.stackTop = vm.stack.Len()

	if vm.observer != nil {
		ev := CallEvent{Call: callString(call), FrameDepth: vm.frameDepth()}
		if !vm.observer.OnCall(ev) {
			vm.stack.TruncateTo(fr.stackTop - 1)
			vm.popFrame()
			return nil, errz.New(errz.ErrRuntime, call, "execution halted by observer")
		}
	}

	var result sexp.Value
	for {
		result, err = vm.evalCode(ctx, fnObj.Entry(), newEnv)
		if err == nil {
			break
		}
		if j, isJump := err.(*sexp.Jump); isJump {
			switch j.Kind {
			case sexp.ReturnJump:
				if j.Env != nil && j.Env != newEnv {
					// Targets an enclosing function; keep unwinding.
					break
				}
				vm.stack.TruncateTo(fr.stackTop)
				result, err = j.Value, nil
			case sexp.RestartJump:
				// A restart token re-enters the same body.
				vm.stack.TruncateTo(fr.stackTop)
				continue
			case sexp.BreakJump, sexp.NextJump:
				// Loops beyond a function boundary are out of reach.
				err = errz.New(errz.ErrRuntime, call, j.Error())
			}
		}
		if err != nil {
			vm.stack.TruncateTo(fr.stackTop - 1)
			vm.popFrame()
			return nil, err
		}
		break
	}

	if vm.observer != nil {
		if !vm.observer.OnReturn(ReturnEvent{Call: callString(call), FrameDepth: vm.frameDepth()}) {
			vm.stack.TruncateTo(fr.stackTop - 1)
			vm.popFrame()
			return nil, errz.New(errz.ErrRuntime, call, "execution halted by observer")
		}
	}

	vm.stack.TruncateTo(fr.stackTop - 1) // drop the frame marker
	vm.popFrame()
	return result, nil
}

func callString(call sexp.Value) string {
	if call == nil {
		return ""
	}
	return call.String()
}

// matchArgs is the formal-matching routine: exact tag matches first, then
// positional filling up to the dots formal, with the remainder collected
// into "...". Unmatched formals bind their compiled default promise, or the
// missing sentinel.
func (vm *VM) matchArgs(call sexp.Value, fn *sexp.Closure, fnObj *bytecode.FunctionObject, actuals sexp.Value) (*sexp.Env, error) {
	newEnv := sexp.NewEnv(fn.Env())

	type formal struct {
		name    *sexp.Symbol
		defIdx  int
		matched sexp.Value
	}
	var formals []formal
	fidx := fnObj.FormalIndexes()
	i := 0
	for it := fn.Formals(); !sexp.IsNil(it); it = sexp.Cdr(it) {
		def := bytecode.MissingArgIdx
		if i < len(fidx) {
			def = fidx[i]
		}
		formals = append(formals, formal{name: sexp.Tag(it), defIdx: def})
		i++
	}

	type supplied struct {
		tag  *sexp.Symbol
		val  sexp.Value
		used bool
	}
	var args []supplied
	for it := actuals; !sexp.IsNil(it); it = sexp.Cdr(it) {
		args = append(args, supplied{tag: sexp.Tag(it), val: sexp.Car(it)})
	}

	// Exact tag matching.
	for ai := range args {
		if args[ai].tag == nil {
			continue
		}
		for fi := range formals {
			if formals[fi].name == args[ai].tag && formals[fi].matched == nil {
				formals[fi].matched = args[ai].val
				args[ai].used = true
				break
			}
		}
	}

	// Positional matching of untagged arguments, stopping at "...".
	ai := 0
	for fi := range formals {
		if formals[fi].name == sexp.DotsSym {
			break
		}
		if formals[fi].matched != nil {
			continue
		}
		for ai < len(args) && (args[ai].used || args[ai].tag != nil) {
			ai++
		}
		if ai >= len(args) {
			break
		}
		formals[fi].matched = args[ai].val
		args[ai].used = true
	}

	// Collect everything left into "...", in supplied order.
	hasDots := false
	for fi := range formals {
		if formals[fi].name == sexp.DotsSym {
			hasDots = true
			b := sexp.NewListBuilder()
			for ai := range args {
				if !args[ai].used {
					b.Append(args[ai].val, args[ai].tag)
					args[ai].used = true
				}
			}
			if b.Len() == 0 {
				formals[fi].matched = sexp.Missing
			} else {
				formals[fi].matched = sexp.NewDots(b.List())
			}
		}
	}
	if !hasDots {
		for ai := range args {
			if !args[ai].used {
				return nil, errz.Newf(errz.ErrRuntime, call, "unused argument %d", ai+1)
			}
		}
	}

	// Bind: matched value, default promise, or missing.
	for _, f := range formals {
		if f.name == nil {
			continue
		}
		switch {
		case f.matched != nil:
			newEnv.Define(f.name, f.matched)
		case f.defIdx != bytecode.MissingArgIdx:
			def := sexp.NewCodePromise(fnObj.CodeAt(f.defIdx), fnObj, newEnv)
			newEnv.Define(f.name, def)
		default:
			newEnv.Define(f.name, sexp.Missing)
		}
	}
	return newEnv, nil
}

// doDispatch implements the dispatch instruction: S4 when the object is
// formal and the selector has registered methods, then S3 through
// usemethod, then an ordinary call on the selector's function binding. The
// already-evaluated object is patched into the first argument promise.
func (vm *VM) doDispatch(ctx context.Context, fnObj *bytecode.FunctionObject, call sexp.Value, selector *sexp.Symbol, obj sexp.Value, argIdx []int, names sexp.Value, env *sexp.Env) (sexp.Value, error) {
	actuals, err := vm.createArgsList(ctx, fnObj, argIdx, call, names, env, false)
	if err != nil {
		return nil, err
	}
	if first, ok := sexp.Car(actuals).(*sexp.Promise); ok {
		first.SetValue(obj)
	}

	snapshot := vm.stack.Len()
	restore := func() { vm.stack.TruncateTo(snapshot) }

	// First try S4.
	if sexp.IsS4(obj) && sexp.HasMethods(selector) {
		res, found, err := sexp.PossibleDispatch(ctx, call, selector, obj, actuals, env)
		if err != nil {
			restore()
			return nil, err
		}
		if found {
			restore()
			return res, nil
		}
	}

	// Then try S3.
	rho1 := sexp.NewEnv(env)
	res, found, err := sexp.UseMethod(ctx, selector.Name(), obj, call, actuals, rho1, env, vm.base)
	if err != nil {
		restore()
		return nil, err
	}
	if found {
		restore()
		return res, nil
	}

	// Now an ordinary call on the selector's binding.
	callee, err := env.FindFun(selector, vm.forcer(ctx))
	if err != nil {
		restore()
		return nil, err
	}
	if callee == sexp.Unbound {
		return nil, errz.Newf(errz.ErrUnboundVariable, call,
			"could not find function %q", selector.Name())
	}
	res, err = vm.CallFunction(ctx, callee, call, actuals, env)
	if err != nil {
		restore()
		return nil, err
	}
	restore()
	return res, nil
}

// CallFunction applies a callable to an already-built argument list of
// promises or values. Specials see the call AST; builtins see forced
// values; closures see the list as is.
func (vm *VM) CallFunction(ctx context.Context, callee sexp.Value, call sexp.Value, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ctx = vm.initCtx(ctx)
	switch fn := callee.(type) {
	case *sexp.Builtin:
		if fn.Kind() == sexp.SpecialKind {
			return vm.callSpecial(ctx, fn, call, env)
		}
		eager := sexp.NewListBuilder()
		for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
			arg := sexp.Car(it)
			if p, isProm := arg.(*sexp.Promise); isProm {
				forced, err := vm.promiseValue(ctx, p)
				if err != nil {
					return nil, err
				}
				arg = forced
			}
			eager.Append(arg, sexp.Tag(it))
		}
		return vm.callBuiltin(ctx, fn, call, eager.List(), env)
	case *sexp.Closure:
		return vm.applyClosure(ctx, call, fn, args, env)
	default:
		return nil, errz.New(errz.ErrNonFunction, call, "attempt to apply non-function")
	}
}

// dynamicCall evaluates a call AST without going through compiled code: the
// callee is resolved afresh and the arguments become expression promises.
// The isspecial side exit uses it when an inlined special has been
// shadowed.
func (vm *VM) dynamicCall(ctx context.Context, call *sexp.Lang, env *sexp.Env) (sexp.Value, error) {
	var callee sexp.Value
	var err error
	switch fun := call.Car().(type) {
	case *sexp.Symbol:
		callee, err = env.FindFun(fun, vm.forcer(ctx))
		if err != nil {
			return nil, err
		}
		if callee == sexp.Unbound {
			return nil, errz.Newf(errz.ErrUnboundVariable, call,
				"could not find function %q", fun.Name())
		}
	default:
		callee, err = vm.Eval(ctx, fun, env)
		if err != nil {
			return nil, err
		}
	}
	args := vm.promiseArgs(call.Cdr(), env)
	return vm.CallFunction(ctx, callee, call, args, env)
}

// promiseArgs wraps each argument expression of a call in a promise over
// env, expanding "..." inline.
func (vm *VM) promiseArgs(args sexp.Value, env *sexp.Env) sexp.Value {
	b := sexp.NewListBuilder()
	for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
		arg := sexp.Car(it)
		switch {
		case arg == sexp.DotsSym:
			if dots, ok := env.Find(sexp.DotsSym).(*sexp.Dots); ok {
				for d := sexp.Value(dots); !sexp.IsNil(d); d = sexp.Cdr(d) {
					b.Append(sexp.Car(d), sexp.Tag(d))
				}
			}
		case arg == sexp.Missing:
			b.Append(sexp.Missing, sexp.Tag(it))
		default:
			b.Append(sexp.NewPromise(arg, env), sexp.Tag(it))
		}
	}
	return b.List()
}
