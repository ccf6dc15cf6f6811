package builtins

import (
	"context"

	"github.com/deepnoodle-ai/riv/errz"
	"github.com/deepnoodle-ai/riv/sexp"
)

// condValue reduces a condition result to a single truth value, with the
// usual diagnostics for conditions of the wrong shape.
func condValue(ev sexp.Evaluator, call sexp.Value, t sexp.Value) (bool, error) {
	if sexp.Length(t) > 1 {
		ev.Warningf(call, "the condition has length > 1 and only the first element will be used")
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
		return false, errz.New(errz.ErrBadCondition, call, msg)
	}
	return cond == 1, nil
}

func doIf(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ev, err := evaluator(ctx, call)
	if err != nil {
		return nil, err
	}
	condVal, err := ev.Eval(ctx, sexp.Car(args), env)
	if err != nil {
		return nil, err
	}
	cond, err := condValue(ev, call, condVal)
	if err != nil {
		return nil, err
	}
	if cond {
		return ev.Eval(ctx, sexp.Cadr(args), env)
	}
	if alt := sexp.Caddr(args); sexp.ListLength(args) > 2 {
		return ev.Eval(ctx, alt, env)
	}
	ev.SetVisible(false)
	return sexp.Nil, nil
}

func doFor(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ev, err := evaluator(ctx, call)
	if err != nil {
		return nil, err
	}
	sym, ok := sexp.Car(args).(*sexp.Symbol)
	if !ok {
		return nil, errz.New(errz.ErrRuntime, call, "non-symbol loop variable")
	}
	seq, err := ev.Eval(ctx, sexp.Cadr(args), env)
	if err != nil {
		return nil, err
	}
	body := sexp.Caddr(args)

	err = ev.LoopContext(ctx, call, env, func(ctx context.Context) error {
		n := sexp.Length(seq)
		for i := 0; i < n; i++ {
			env.Define(sym, sexp.ElementAt(seq, i))
			if _, err := ev.Eval(ctx, body, env); err != nil {
				if j, isJump := err.(*sexp.Jump); isJump {
					if j.Kind == sexp.NextJump {
						continue
					}
					if j.Kind == sexp.BreakJump {
						return nil
					}
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ev.SetVisible(false)
	return sexp.Nil, nil
}

func doWhile(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ev, err := evaluator(ctx, call)
	if err != nil {
		return nil, err
	}
	cond := sexp.Car(args)
	body := sexp.Cadr(args)

	err = ev.LoopContext(ctx, call, env, func(ctx context.Context) error {
		for {
			condVal, err := ev.Eval(ctx, cond, env)
			if err != nil {
				return err
			}
			ok, err := condValue(ev, call, condVal)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if _, err := ev.Eval(ctx, body, env); err != nil {
				if j, isJump := err.(*sexp.Jump); isJump {
					if j.Kind == sexp.NextJump {
						continue
					}
					if j.Kind == sexp.BreakJump {
						return nil
					}
				}
				return err
			}
		}
	})
	if err != nil {
		return nil, err
	}
	ev.SetVisible(false)
	return sexp.Nil, nil
}

func doRepeat(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ev, err := evaluator(ctx, call)
	if err != nil {
		return nil, err
	}
	body := sexp.Car(args)

	err = ev.LoopContext(ctx, call, env, func(ctx context.Context) error {
		for {
			if _, err := ev.Eval(ctx, body, env); err != nil {
				if j, isJump := err.(*sexp.Jump); isJump {
					if j.Kind == sexp.NextJump {
						continue
					}
					if j.Kind == sexp.BreakJump {
						return nil
					}
				}
				return err
			}
		}
	})
	if err != nil {
		return nil, err
	}
	ev.SetVisible(false)
	return sexp.Nil, nil
}

func doBreak(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	return nil, sexp.NewBreak()
}

func doNext(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	return nil, sexp.NewNext()
}

func doReturn(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ev, err := evaluator(ctx, call)
	if err != nil {
		return nil, err
	}
	value := sexp.Value(sexp.Nil)
	if !sexp.IsNil(args) {
		value, err = ev.Eval(ctx, sexp.Car(args), env)
		if err != nil {
			return nil, err
		}
	}
	return nil, sexp.NewReturn(value, env)
}

func doFunction(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	formals := sexp.Car(args)
	body := sexp.Cadr(args)
	return sexp.NewClosure(formals, body, env), nil
}

func doBegin(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ev, err := evaluator(ctx, call)
	if err != nil {
		return nil, err
	}
	result := sexp.Value(sexp.Nil)
	for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
		result, err = ev.Eval(ctx, sexp.Car(it), env)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func doQuote(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := arity(call, args, 1); err != nil {
		return nil, err
	}
	return sexp.Car(args), nil
}

// doAssign is the dynamic assignment special: the fallback for compiled
// code whose inlined form was abandoned, and the implementation used when
// assignment is invoked through dynamic evaluation.
func doAssign(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ev, err := evaluator(ctx, call)
	if err != nil {
		return nil, err
	}
	if err := arity(call, args, 2); err != nil {
		return nil, err
	}
	lhs := sexp.Car(args)
	value, err := ev.Eval(ctx, sexp.Cadr(args), env)
	if err != nil {
		return nil, err
	}
	if err := assignTo(ctx, ev, call, env, lhs, value); err != nil {
		return nil, err
	}
	ev.SetVisible(false)
	return value, nil
}

// assignTo recursively rewrites a (possibly nested) assignment target:
// f(x, i) <- v  becomes  x <- `f<-`(x, i, value = v).
func assignTo(ctx context.Context, ev sexp.Evaluator, call sexp.Value, env *sexp.Env, lhs sexp.Value, value sexp.Value) error {
	switch l := lhs.(type) {
	case *sexp.Symbol:
		sexp.IncrementNamed(value)
		env.Define(l, value)
		return nil
	case *sexp.StrVector:
		if l.Len() != 1 {
			return errz.New(errz.ErrBadAssignmentTarget, call, "invalid left-hand side to assignment")
		}
		sexp.IncrementNamed(value)
		env.Define(sexp.Install(l.Str(0)), value)
		return nil
	case *sexp.Lang:
		gfun, ok := l.Car().(*sexp.Symbol)
		if !ok {
			return errz.New(errz.ErrBadAssignmentTarget, call, "invalid left-hand side to assignment")
		}
		setterSym := sexp.Install(gfun.Name() + "<-")
		setter, err := env.FindFun(setterSym, func(p *sexp.Promise) (sexp.Value, error) {
			return ev.Force(ctx, p)
		})
		if err != nil {
			return err
		}
		if setter == sexp.Unbound {
			return errz.Newf(errz.ErrUnboundVariable, call,
				"could not find function %q", setterSym.Name())
		}
		inner := sexp.Cadr(l)
		target, err := ev.Eval(ctx, inner, env)
		if err != nil {
			return err
		}

		// Build the setter call: target, the original extra arguments, and
		// the value under the reserved tag.
		b := sexp.NewListBuilder()
		b.Append(target, nil)
		for it := sexp.Cdr(l.Cdr()); !sexp.IsNil(it); it = sexp.Cdr(it) {
			b.Append(sexp.NewPromise(sexp.Car(it), env), sexp.Tag(it))
		}
		sexp.IncrementNamed(value)
		b.Append(value, sexp.ValueSym)

		synth := sexp.NewLang(setterSym, synthArgs(target, l, value))
		newTarget, err := ev.CallFunction(ctx, setter, synth, b.List(), env)
		if err != nil {
			return err
		}
		return assignTo(ctx, ev, call, env, inner, newTarget)
	default:
		return errz.New(errz.ErrBadAssignmentTarget, call, "invalid left-hand side to assignment")
	}
}

// synthArgs builds the argument AST of a rewritten setter call, embedding
// the evaluated target and value (quoted when they are themselves code).
func synthArgs(target sexp.Value, l *sexp.Lang, value sexp.Value) sexp.Value {
	b := sexp.NewListBuilder()
	b.Append(sexp.QuoteIfAST(target), nil)
	for it := sexp.Cdr(l.Cdr()); !sexp.IsNil(it); it = sexp.Cdr(it) {
		b.Append(sexp.Car(it), sexp.Tag(it))
	}
	b.Append(sexp.QuoteIfAST(value), sexp.ValueSym)
	return b.List()
}

// doLogic2 builds the dynamic short-circuit specials.
func doLogic2(and bool) sexp.BuiltinFunc {
	return func(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
		ev, err := evaluator(ctx, call)
		if err != nil {
			return nil, err
		}
		lhsVal, err := ev.Eval(ctx, sexp.Car(args), env)
		if err != nil {
			return nil, err
		}
		x1 := sexp.AsLogical(lhsVal)
		if and && x1 == 0 {
			return sexp.False, nil
		}
		if !and && x1 == 1 {
			return sexp.True, nil
		}
		rhsVal, err := ev.Eval(ctx, sexp.Cadr(args), env)
		if err != nil {
			return nil, err
		}
		x2 := sexp.AsLogical(rhsVal)
		if and {
			switch {
			case x1 == 1 && x2 == 1:
				return sexp.True, nil
			case x1 == 0 || x2 == 0:
				return sexp.False, nil
			default:
				return sexp.NAValue, nil
			}
		}
		switch {
		case x1 == 1 || x2 == 1:
			return sexp.True, nil
		case x1 == 0 && x2 == 0:
			return sexp.False, nil
		default:
			return sexp.NAValue, nil
		}
	}
}

func doMissing(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	sym, ok := sexp.Car(args).(*sexp.Symbol)
	if !ok {
		return nil, errz.New(errz.ErrRuntime, call, "invalid use of 'missing'")
	}
	v, found := env.FindLocal(sym)
	if !found {
		return nil, errz.Newf(errz.ErrRuntime, call,
			"'missing' can only be used for arguments, %q not found", sym.Name())
	}
	if v == sexp.Missing {
		return sexp.True, nil
	}
	return sexp.False, nil
}

// makeUseMethod builds the UseMethod special: S3 dispatch on the first
// argument of the innermost function call, followed by a non-local return
// of the method's result from the generic.
func makeUseMethod(base *sexp.Env) sexp.BuiltinFunc {
	return func(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
		ev, err := evaluator(ctx, call)
		if err != nil {
			return nil, err
		}
		genericVal, err := ev.Eval(ctx, sexp.Car(args), env)
		if err != nil {
			return nil, err
		}
		gs, ok := genericVal.(*sexp.StrVector)
		if !ok || gs.Len() != 1 {
			return nil, errz.New(errz.ErrRuntime, call, "'generic' must be a character string")
		}
		generic := gs.Str(0)

		fcall, factuals, fenv, inFunction := ev.FrameInfo()
		if !inFunction {
			return nil, errz.New(errz.ErrRuntime, call, "UseMethod called from outside a function")
		}
		obj := sexp.Car(factuals)
		if p, isProm := obj.(*sexp.Promise); isProm {
			obj, err = ev.Force(ctx, p)
			if err != nil {
				return nil, err
			}
		}
		res, found, err := sexp.UseMethod(ctx, generic, obj, fcall, factuals, sexp.NewEnv(env), fenv, base)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errz.Newf(errz.ErrRuntime, call,
				"no applicable method for %q applied to an object of class %q",
				generic, sexp.DispatchClasses(obj)[0])
		}
		// UseMethod returns from the generic, not to it.
		return nil, sexp.NewReturn(res, fenv)
	}
}

// doDollar extracts a named element. The element name is taken from the
// unevaluated argument, a symbol or a string.
func doDollar(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ev, err := evaluator(ctx, call)
	if err != nil {
		return nil, err
	}
	if err := arity(call, args, 2); err != nil {
		return nil, err
	}
	x, err := ev.Eval(ctx, sexp.Car(args), env)
	if err != nil {
		return nil, err
	}
	name, err := elementName(call, sexp.Cadr(args))
	if err != nil {
		return nil, err
	}
	return sexp.GetByName(x, name)
}

// doDollarAssign replaces a named element, returning the modified
// container.
func doDollarAssign(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ev, err := evaluator(ctx, call)
	if err != nil {
		return nil, err
	}
	if err := arity(call, args, 3); err != nil {
		return nil, err
	}
	x, err := ev.Eval(ctx, sexp.Car(args), env)
	if err != nil {
		return nil, err
	}
	name, err := elementName(call, sexp.Cadr(args))
	if err != nil {
		return nil, err
	}
	value, err := ev.Eval(ctx, sexp.Caddr(args), env)
	if err != nil {
		return nil, err
	}
	out, err := sexp.SetByName(x, name, value)
	if err != nil {
		return nil, errz.New(errz.ErrRuntime, call, err.Error())
	}
	return out, nil
}

func elementName(call sexp.Value, v sexp.Value) (string, error) {
	switch v := v.(type) {
	case *sexp.Symbol:
		return v.Name(), nil
	case *sexp.StrVector:
		if v.Len() == 1 {
			return v.Str(0), nil
		}
	}
	return "", errz.New(errz.ErrRuntime, call, "invalid subscript type")
}
