// Package builtins provides the base environment consumed by the compiler
// and virtual machine: the builtin and special function table, including
// the dynamic fallbacks for every special form the compiler inlines.
package builtins

import (
	"context"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/riv/errz"
	"github.com/deepnoodle-ai/riv/sexp"
)

// NewEnv builds a fresh base environment with every builtin bound.
func NewEnv() *sexp.Env {
	env := sexp.NewEnv(nil)

	special := func(name string, vis sexp.Visibility, fn sexp.BuiltinFunc) {
		env.Define(sexp.Install(name), sexp.NewSpecial(name, vis, fn))
	}
	builtin := func(name string, vis sexp.Visibility, fn sexp.BuiltinFunc) {
		env.Define(sexp.Install(name), sexp.NewBuiltin(name, vis, fn))
	}

	// Control flow and binding specials.
	special("if", sexp.VisiblePreserve, doIf)
	special("for", sexp.VisibleOff, doFor)
	special("while", sexp.VisibleOff, doWhile)
	special("repeat", sexp.VisibleOff, doRepeat)
	special("break", sexp.VisibleOn, doBreak)
	special("next", sexp.VisibleOn, doNext)
	special("return", sexp.VisibleOn, doReturn)
	special("function", sexp.VisibleOn, doFunction)
	special("{", sexp.VisiblePreserve, doBegin)
	special("quote", sexp.VisibleOn, doQuote)
	special("<-", sexp.VisibleOff, doAssign)
	special("=", sexp.VisibleOff, doAssign)
	special("&&", sexp.VisibleOn, doLogic2(true))
	special("||", sexp.VisibleOn, doLogic2(false))
	special("missing", sexp.VisibleOn, doMissing)
	special("UseMethod", sexp.VisibleOn, makeUseMethod(env))
	special("$", sexp.VisibleOn, doDollar)
	special("$<-", sexp.VisibleOff, doDollarAssign)

	// Eager builtins.
	builtin("(", sexp.VisibleOn, doParen)
	builtin("invisible", sexp.VisibleOff, doInvisible)
	builtin("c", sexp.VisibleOn, doCombine)
	builtin("list", sexp.VisibleOn, doList)
	builtin("length", sexp.VisibleOn, doLength)
	builtin(":", sexp.VisibleOn, doColon)
	builtin("stop", sexp.VisibleOn, doStop)
	builtin("warning", sexp.VisibleOn, doWarning)
	builtin("eval", sexp.VisiblePreserve, doEval)
	builtin("print", sexp.VisiblePreserve, makePrint(env))
	builtin("class", sexp.VisibleOn, doClass)
	builtin("class<-", sexp.VisibleOff, doClassAssign)
	builtin("attr", sexp.VisibleOn, doAttr)
	builtin("attr<-", sexp.VisibleOff, doAttrAssign)
	builtin("names", sexp.VisibleOn, doNames)
	builtin("is.null", sexp.VisibleOn, isKind(sexp.NilKind))
	builtin("is.list", sexp.VisibleOn, isKind(sexp.ListKind))
	builtin("is.pairlist", sexp.VisibleOn, isKind(sexp.PairKind))
	builtin("is.function", sexp.VisibleOn, doIsFunction)
	builtin("[", sexp.VisibleOn, makeSubset(env, false))
	builtin("[[", sexp.VisibleOn, makeSubset(env, true))
	builtin("[<-", sexp.VisibleOff, doSubsetAssign)
	builtin("[[<-", sexp.VisibleOff, doSubsetAssign)

	registerArith(env, builtin)
	return env
}

// evaluator pulls the interpreter out of the context; every special needs
// it to re-enter evaluation.
func evaluator(ctx context.Context, call sexp.Value) (sexp.Evaluator, error) {
	ev, ok := sexp.EvaluatorFrom(ctx)
	if !ok {
		return nil, errz.New(errz.ErrInternal, call, "no evaluator in context")
	}
	return ev, nil
}

// arity checks the argument count of a call.
func arity(call sexp.Value, args sexp.Value, want int) error {
	if n := sexp.ListLength(args); n != want {
		return errz.Newf(errz.ErrRuntime, call, "%d arguments passed to a function requiring %d",
			sexp.ListLength(args), want)
	}
	return nil
}

func doParen(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := arity(call, args, 1); err != nil {
		return nil, err
	}
	return sexp.Car(args), nil
}

func doInvisible(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if sexp.IsNil(args) {
		return sexp.Nil, nil
	}
	return sexp.Car(args), nil
}

func doLength(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := arity(call, args, 1); err != nil {
		return nil, err
	}
	return sexp.ScalarInt(sexp.Length(sexp.Car(args))), nil
}

func doColon(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := arity(call, args, 2); err != nil {
		return nil, err
	}
	from := sexp.AsInt(sexp.Car(args))
	to := sexp.AsInt(sexp.Cadr(args))
	if from == sexp.IntNA || to == sexp.IntNA {
		return nil, errz.New(errz.ErrRuntime, call, "NA/NaN argument")
	}
	var vals []int
	if from <= to {
		for i := from; i <= to; i++ {
			vals = append(vals, i)
		}
	} else {
		for i := from; i >= to; i-- {
			vals = append(vals, i)
		}
	}
	return sexp.NewIntVector(vals), nil
}

func doCombine(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	// Determine the result type: any non-vector element forces a list;
	// otherwise the types promote logical < integer < double < character.
	kind := sexp.NilKind
	total := 0
	for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
		v := sexp.Car(it)
		total += sexp.Length(v)
		kind = promoteKind(kind, v.Kind())
	}
	if total == 0 {
		return sexp.Nil, nil
	}

	names := make([]string, 0, total)
	haveNames := false
	collectName := func(tag *sexp.Symbol, n int) {
		base := ""
		if tag != nil {
			base = tag.Name()
			haveNames = true
		}
		for i := 0; i < n; i++ {
			names = append(names, base)
		}
	}

	var out sexp.Value
	switch kind {
	case sexp.ListKind:
		vals := make([]sexp.Value, 0, total)
		for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
			v := sexp.Car(it)
			n := sexp.Length(v)
			if v.Kind() == sexp.NilKind {
				continue
			}
			for i := 0; i < n; i++ {
				vals = append(vals, sexp.ElementAt(v, i))
			}
			collectName(sexp.Tag(it), n)
		}
		out = sexp.NewList(vals)
	case sexp.StrKind:
		vals := make([]string, 0, total)
		for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
			v := sexp.Car(it)
			n := sexp.Length(v)
			for i := 0; i < n; i++ {
				vals = append(vals, asString(sexp.ElementAt(v, i)))
			}
			collectName(sexp.Tag(it), n)
		}
		out = sexp.NewStrVector(vals)
	case sexp.RealKind:
		vals := make([]float64, 0, total)
		for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
			v := sexp.Car(it)
			n := sexp.Length(v)
			for i := 0; i < n; i++ {
				vals = append(vals, sexp.AsReal(sexp.ElementAt(v, i)))
			}
			collectName(sexp.Tag(it), n)
		}
		out = sexp.NewRealVector(vals)
	case sexp.IntKind:
		vals := make([]int, 0, total)
		for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
			v := sexp.Car(it)
			n := sexp.Length(v)
			for i := 0; i < n; i++ {
				vals = append(vals, sexp.AsInt(sexp.ElementAt(v, i)))
			}
			collectName(sexp.Tag(it), n)
		}
		out = sexp.NewIntVector(vals)
	default:
		vals := make([]sexp.Lgl, 0, total)
		for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
			v := sexp.Car(it)
			n := sexp.Length(v)
			for i := 0; i < n; i++ {
				vals = append(vals, sexp.AsLogical(sexp.ElementAt(v, i)))
			}
			collectName(sexp.Tag(it), n)
		}
		out = sexp.NewLglVector(vals)
	}
	if haveNames {
		if a, ok := out.(sexp.Attributed); ok {
			a.SetAttr(sexp.NamesSym, sexp.NewStrVector(names))
		}
	}
	return out, nil
}

func asString(v sexp.Value) string {
	if s, ok := v.(*sexp.StrVector); ok && s.Len() > 0 {
		return s.Str(0)
	}
	return v.String()
}

func promoteKind(a, b sexp.Kind) sexp.Kind {
	rank := func(k sexp.Kind) int {
		switch k {
		case sexp.NilKind:
			return 0
		case sexp.LglKind:
			return 1
		case sexp.IntKind:
			return 2
		case sexp.RealKind:
			return 3
		case sexp.StrKind:
			return 4
		default:
			return 5 // anything else forces a list
		}
	}
	ra, rb := rank(a), rank(b)
	if rb > ra {
		ra = rb
	}
	switch ra {
	case 0:
		return sexp.NilKind
	case 1:
		return sexp.LglKind
	case 2:
		return sexp.IntKind
	case 3:
		return sexp.RealKind
	case 4:
		return sexp.StrKind
	default:
		return sexp.ListKind
	}
}

func doList(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	var vals []sexp.Value
	var names []string
	haveNames := false
	for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
		vals = append(vals, sexp.Car(it))
		if tag := sexp.Tag(it); tag != nil {
			names = append(names, tag.Name())
			haveNames = true
		} else {
			names = append(names, "")
		}
	}
	out := sexp.NewList(vals)
	if haveNames {
		out.SetAttr(sexp.NamesSym, sexp.NewStrVector(names))
	}
	return out, nil
}

func doStop(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	var parts []string
	for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
		if s, ok := sexp.Car(it).(*sexp.StrVector); ok && s.Len() > 0 {
			parts = append(parts, s.Str(0))
		} else {
			parts = append(parts, sexp.Car(it).String())
		}
	}
	msg := strings.Join(parts, "")
	if msg == "" {
		msg = "error"
	}
	return nil, errz.New(errz.ErrRuntime, call, msg)
}

func doWarning(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ev, err := evaluator(ctx, call)
	if err != nil {
		return nil, err
	}
	var parts []string
	for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
		if s, ok := sexp.Car(it).(*sexp.StrVector); ok && s.Len() > 0 {
			parts = append(parts, s.Str(0))
		} else {
			parts = append(parts, sexp.Car(it).String())
		}
	}
	msg := strings.Join(parts, "")
	ev.Warningf(call, "%s", msg)
	if len(parts) > 0 {
		return sexp.ScalarStr(msg), nil
	}
	return sexp.Nil, nil
}

func doEval(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	ev, err := evaluator(ctx, call)
	if err != nil {
		return nil, err
	}
	expr := sexp.Car(args)
	target := env
	if e, ok := sexp.Cadr(args).(*sexp.Env); ok {
		target = e
	}
	return ev.Eval(ctx, expr, target)
}

func doClass(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := arity(call, args, 1); err != nil {
		return nil, err
	}
	x := sexp.Car(args)
	if cls := sexp.ClassOf(x); !sexp.IsNil(cls) {
		return cls, nil
	}
	implicit := sexp.ImplicitClass(x)
	return sexp.ScalarStr(implicit[0]), nil
}

func doClassAssign(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := arity(call, args, 2); err != nil {
		return nil, err
	}
	x := sexp.Car(args)
	value := sexp.Cadr(args)
	if sexp.MaybeShared(x) {
		x = sexp.ShallowDuplicate(x)
	}
	a, ok := x.(sexp.Attributed)
	if !ok {
		return nil, errz.New(errz.ErrRuntime, call, "invalid object to set the class of")
	}
	a.SetAttr(sexp.ClassSym, value)
	return x, nil
}

func doAttr(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := arity(call, args, 2); err != nil {
		return nil, err
	}
	x := sexp.Car(args)
	which, ok := sexp.Cadr(args).(*sexp.StrVector)
	if !ok || which.Len() != 1 {
		return nil, errz.New(errz.ErrRuntime, call, "'which' must be of mode character")
	}
	if a, isAttr := x.(sexp.Attributed); isAttr {
		return a.Attr(sexp.Install(which.Str(0))), nil
	}
	return sexp.Nil, nil
}

func doAttrAssign(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := arity(call, args, 3); err != nil {
		return nil, err
	}
	x := sexp.Car(args)
	which, ok := sexp.Cadr(args).(*sexp.StrVector)
	if !ok || which.Len() != 1 {
		return nil, errz.New(errz.ErrRuntime, call, "'which' must be of mode character")
	}
	value := sexp.Caddr(args)
	if sexp.MaybeShared(x) {
		x = sexp.ShallowDuplicate(x)
	}
	a, isAttr := x.(sexp.Attributed)
	if !isAttr {
		return nil, errz.New(errz.ErrRuntime, call, "attempt to set an attribute on an immutable value")
	}
	a.SetAttr(sexp.Install(which.Str(0)), value)
	return x, nil
}

func doNames(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := arity(call, args, 1); err != nil {
		return nil, err
	}
	if a, ok := sexp.Car(args).(sexp.Attributed); ok {
		return a.Attr(sexp.NamesSym), nil
	}
	return sexp.Nil, nil
}

func isKind(kind sexp.Kind) sexp.BuiltinFunc {
	return func(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
		if err := arity(call, args, 1); err != nil {
			return nil, err
		}
		k := sexp.Car(args).Kind()
		var res bool
		switch kind {
		case sexp.ListKind:
			res = k == sexp.ListKind || k == sexp.PairKind
		case sexp.PairKind:
			res = k == sexp.PairKind || k == sexp.NilKind
		default:
			res = k == kind
		}
		if res {
			return sexp.True, nil
		}
		return sexp.False, nil
	}
}

func doIsFunction(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := arity(call, args, 1); err != nil {
		return nil, err
	}
	if sexp.IsFunction(sexp.Car(args)) {
		return sexp.True, nil
	}
	return sexp.False, nil
}

// makePrint builds the print builtin, which dispatches to print.<class>
// methods before falling back to default printing.
func makePrint(base *sexp.Env) sexp.BuiltinFunc {
	return func(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
		ev, err := evaluator(ctx, call)
		if err != nil {
			return nil, err
		}
		x := sexp.Car(args)
		if sexp.IsObject(x) {
			res, found, err := sexp.UseMethod(ctx, "print", x, call, args, sexp.NewEnv(env), env, base)
			if err != nil {
				return nil, err
			}
			if found {
				ev.SetVisible(false)
				return res, nil
			}
		}
		fmt.Println(x.String())
		ev.SetVisible(false)
		return x, nil
	}
}
