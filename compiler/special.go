package compiler

import (
	"github.com/deepnoodle-ai/riv/bytecode"
	"github.com/deepnoodle-ai/riv/errz"
	"github.com/deepnoodle-ai/riv/op"
	"github.com/deepnoodle-ai/riv/sexp"
)

// compileSpecialCall inlines recognized special forms. It returns true when
// the call was fully lowered, false when the caller should fall back to a
// dynamic call. Each inlined form starts with an isspecial guard carrying
// the call's source reference and a side exit: when the binding has been
// shadowed at run time, the interpreter evaluates the original call
// dynamically and skips the inlined form entirely.
func (fc *fnCtx) compileSpecialCall(ast *sexp.Lang, fun *sexp.Symbol, args sexp.Value) (bool, error) {
	cs := fc.cs()
	nargs := sexp.ListLength(args)

	guard := func(exit bytecode.Label) {
		cs.EmitGuard(fc.poolIdx(fun), exit)
		cs.AddSrc(fc.srcIdx(ast))
	}

	switch {
	case fun == sexp.AndSym && nargs == 2:
		next := cs.MkLabel()
		guard(next)
		if err := fc.compileExpr(sexp.Car(args)); err != nil {
			return false, err
		}
		cs.Emit(op.AsLogical)
		cs.AddSrc(fc.srcIdx(sexp.Car(args)))
		cs.Emit(op.Dup)
		cs.EmitJump(op.BrFalse, next)
		if err := fc.compileExpr(sexp.Cadr(args)); err != nil {
			return false, err
		}
		cs.Emit(op.AsLogical)
		cs.AddSrc(fc.srcIdx(sexp.Cadr(args)))
		cs.Emit(op.LglAnd)
		cs.Bind(next)
		return true, nil

	case fun == sexp.OrSym && nargs == 2:
		next := cs.MkLabel()
		guard(next)
		if err := fc.compileExpr(sexp.Car(args)); err != nil {
			return false, err
		}
		cs.Emit(op.AsLogical)
		cs.AddSrc(fc.srcIdx(sexp.Car(args)))
		cs.Emit(op.Dup)
		cs.EmitJump(op.BrTrue, next)
		if err := fc.compileExpr(sexp.Cadr(args)); err != nil {
			return false, err
		}
		cs.Emit(op.AsLogical)
		cs.AddSrc(fc.srcIdx(sexp.Cadr(args)))
		cs.Emit(op.LglOr)
		cs.Bind(next)
		return true, nil

	case fun == sexp.QuoteSym && nargs == 1:
		idx, err := fc.compilePromise(sexp.Car(args))
		if err != nil {
			return false, err
		}
		end := cs.MkLabel()
		guard(end)
		cs.Emit(op.PushCode, int32(idx))
		cs.Bind(end)
		return true, nil

	case (fun == sexp.AssignSym || fun == sexp.Assign2Sym) && nargs == 2:
		return fc.compileAssign(ast, fun, args)

	case fun == sexp.InternalSym:
		return false, nil

	case fun == sexp.IsNullSym && nargs == 1:
		return true, fc.compileIsTest(ast, fun, sexp.Car(args), sexp.NilKind)

	case fun == sexp.IsListSym && nargs == 1:
		return true, fc.compileIsTest(ast, fun, sexp.Car(args), sexp.ListKind)

	case fun == sexp.IsPairlstSym && nargs == 1:
		return true, fc.compileIsTest(ast, fun, sexp.Car(args), sexp.PairKind)

	case (fun == sexp.Bracket2Sym || fun == sexp.BracketSym) && nargs == 2:
		return fc.compileSubset(ast, fun, args)

	case fun == sexp.WhileSym && nargs == 2:
		return true, fc.compileLoop(ast, fun, sexp.Car(args), sexp.Cadr(args))

	case fun == sexp.RepeatSym && nargs == 1:
		return true, fc.compileLoop(ast, fun, nil, sexp.Car(args))

	case fun == sexp.NextSym && fc.inLoop():
		end := cs.MkLabel()
		guard(end)
		cs.EmitJump(op.Br, fc.loop().next)
		cs.Bind(end)
		return true, nil

	case fun == sexp.BreakSym && fc.inLoop():
		end := cs.MkLabel()
		guard(end)
		cs.EmitJump(op.Br, fc.loop().brk)
		cs.Bind(end)
		return true, nil
	}
	return false, nil
}

func (fc *fnCtx) compileIsTest(ast *sexp.Lang, fun *sexp.Symbol, arg sexp.Value, kind sexp.Kind) error {
	cs := fc.cs()
	end := cs.MkLabel()
	cs.EmitGuard(fc.poolIdx(fun), end)
	cs.AddSrc(fc.srcIdx(ast))
	if err := fc.compileExpr(arg); err != nil {
		return err
	}
	cs.Emit(op.Is, int32(kind))
	cs.Bind(end)
	return nil
}

// compileSubset inlines the two-argument forms of [[ and [ with a fast
// extract path and a dispatch side exit for objects.
func (fc *fnCtx) compileSubset(ast *sexp.Lang, fun *sexp.Symbol, args sexp.Value) (bool, error) {
	lhs := sexp.Car(args)
	idxCell := sexp.ListElem(args, 1)
	idx := idxCell.Car()
	if idx == sexp.DotsSym || idx == sexp.Missing || idxCell.Tag() != nil {
		return false, nil
	}

	cs := fc.cs()
	objBranch := cs.MkLabel()
	next := cs.MkLabel()

	cs.EmitGuard(fc.poolIdx(fun), next)
	cs.AddSrc(fc.srcIdx(ast))
	if err := fc.compileExpr(lhs); err != nil {
		return false, err
	}
	cs.EmitJump(op.BrObj, objBranch)

	if err := fc.compileExpr(idx); err != nil {
		return false, err
	}
	if fun == sexp.Bracket2Sym {
		cs.Emit(op.Extract1)
	} else {
		cs.Emit(op.Subset1)
	}
	cs.AddSrc(fc.srcIdx(ast))
	cs.EmitJump(op.Br, next)

	cs.Bind(objBranch)
	if err := fc.compileDispatch(fun, ast, args); err != nil {
		return false, err
	}
	cs.Bind(next)
	return true, nil
}

// compileLoop lowers while (with a condition) and repeat (cond == nil).
func (fc *fnCtx) compileLoop(ast *sexp.Lang, fun *sexp.Symbol, cond, body sexp.Value) error {
	cs := fc.cs()
	end := cs.MkLabel()
	cs.EmitGuard(fc.poolIdx(fun), end)
	cs.AddSrc(fc.srcIdx(ast))

	loopBranch := cs.MkLabel()
	nextBranch := cs.MkLabel()
	fc.pushLoop(loopBranch, nextBranch)
	defer fc.popLoop()

	cs.EmitJump(op.BeginLoop, nextBranch)
	cs.Bind(loopBranch)

	if cond != nil {
		if err := fc.compileExpr(cond); err != nil {
			return err
		}
		cs.Emit(op.AsBool)
		cs.AddSrc(fc.srcIdx(cond))
		cs.EmitJump(op.BrFalse, nextBranch)
	}

	if err := fc.compileExpr(body); err != nil {
		return err
	}
	cs.Emit(op.Pop)
	cs.EmitJump(op.Br, loopBranch)

	cs.Bind(nextBranch)
	cs.Emit(op.EndContext)
	cs.Emit(op.Push, fc.poolIdx(sexp.Nil))
	cs.Emit(op.Invisible)
	cs.Bind(end)
	return nil
}

// compileAssign inlines the three shapes of assignment: symbol target,
// string target, and a nested getter chain ending in a symbol. A chain whose
// intermediate call heads are not symbols cannot be rewritten statically and
// falls back to the dynamic special; a target that is no call, symbol, or
// string at all is a malformed assignment.
func (fc *fnCtx) compileAssign(ast *sexp.Lang, fun *sexp.Symbol, args sexp.Value) (bool, error) {
	cs := fc.cs()
	lhs := sexp.Car(args)
	rhs := sexp.Cadr(args)

	// Verify the left-hand side is statically rewritable.
	l := lhs
	for l != nil && !sexp.IsNil(l) {
		switch node := l.(type) {
		case *sexp.Lang:
			if _, ok := node.Car().(*sexp.Symbol); !ok {
				return false, nil
			}
			l = sexp.Cadr(node)
		case *sexp.Symbol:
			l = nil
		case *sexp.StrVector:
			l = nil
		default:
			return false, errz.New(errz.ErrBadAssignmentTarget, ast,
				"invalid left-hand side to assignment")
		}
	}

	end := cs.MkLabel()
	cs.EmitGuard(fc.poolIdx(fun), end)
	cs.AddSrc(fc.srcIdx(ast))

	// Plain symbol or string target.
	if target := assignTargetSym(lhs); target != nil {
		if err := fc.compileExpr(rhs); err != nil {
			return false, err
		}
		cs.Emit(op.Dup)
		cs.Emit(op.StVar, fc.poolIdx(target))
		cs.Emit(op.Invisible)
		cs.Bind(end)
		return true, nil
	}

	if err := fc.compileExpr(rhs); err != nil {
		return false, err
	}
	cs.Emit(op.Dup)

	// Decompose the chain into its parts, innermost target last:
	// f(g(x, i2), i1) <- v  yields  [f(...), g(...), x].
	var parts []sexp.Value
	var target *sexp.Symbol
	l = lhs
	for target == nil {
		switch node := l.(type) {
		case *sexp.Lang:
			parts = append(parts, node)
			l = sexp.Cadr(node)
		case *sexp.Symbol:
			parts = append(parts, node)
			target = node
		case *sexp.StrVector:
			target = sexp.Install(node.Str(0))
			parts = append(parts, target)
		default:
			return false, errz.New(errz.ErrBadAssignmentTarget, ast,
				"invalid left-hand side to assignment")
		}
	}

	// Evaluate the getters innermost-first, keeping each intermediate value
	// on the stack for the setter pass.
	for i := len(parts) - 1; i > 0; i-- {
		switch g := parts[i].(type) {
		case *sexp.Symbol:
			cs.Emit(op.LdVar, fc.poolIdx(g))
		case *sexp.Lang:
			if err := fc.compileGetterCall(g); err != nil {
				return false, err
			}
		}
		if i > 1 {
			cs.Emit(op.Dup)
		}
		// Setter internals may modify the target in place, so it must not
		// be shared.
		cs.Emit(op.Uniq)
		if i > 1 {
			cs.Emit(op.Swap)
		}
	}

	// Pull the initial right-hand side value back to the top.
	cs.Emit(op.Pick, int32(len(parts)-1))

	// Run the setters outermost-first.
	for i := 0; i+1 < len(parts); i++ {
		if err := fc.compileSetterCall(parts[i].(*sexp.Lang)); err != nil {
			return false, err
		}
		cs.Emit(op.Uniq)
	}

	cs.Emit(op.StVar, fc.poolIdx(target))
	cs.Emit(op.Invisible)
	cs.Bind(end)
	return true, nil
}

func assignTargetSym(lhs sexp.Value) *sexp.Symbol {
	switch node := lhs.(type) {
	case *sexp.Symbol:
		return node
	case *sexp.StrVector:
		if node.Len() == 1 {
			return sexp.Install(node.Str(0))
		}
	}
	return nil
}

// compileGetterCall emits one getter of a complex assignment. The getter's
// first argument is already on the stack; the attached source AST carries a
// getter placeholder that the interpreter patches with that value at call
// time.
func (fc *fnCtx) compileGetterCall(g *sexp.Lang) error {
	cs := fc.cs()
	gfun, ok := g.Car().(*sexp.Symbol)
	if !ok {
		return errz.New(errz.ErrBadAssignmentTarget, g,
			"invalid left-hand side to assignment")
	}
	names := []sexp.Value{sexp.Nil} // first arg is the target on the stack
	hasNames := false

	cs.Emit(op.LdFun, fc.poolIdx(gfun))
	cs.Emit(op.Swap)

	// Skip the first argument; it is already on the stack.
	for it := sexp.Cdr(g.Cdr()); !sexp.IsNil(it); it = sexp.Cdr(it) {
		arg := sexp.Car(it)
		if arg == sexp.DotsSym || arg == sexp.Missing {
			names = append(names, sexp.Nil)
			fc.compileConst(arg)
			continue
		}
		if tag := sexp.Tag(it); tag != nil {
			names = append(names, tag)
			hasNames = true
		} else {
			names = append(names, sexp.Nil)
		}
		if err := fc.compilePromisedArg(arg); err != nil {
			return err
		}
	}

	fc.emitCallStack(len(names), names, hasNames)

	rewrite := sexp.ShallowDuplicateCall(g)
	if cell := sexp.ListElem(rewrite.Cdr(), 0); cell != nil {
		cell.SetCar(sexp.GetterPlaceholder)
	}
	cs.AddSrc(fc.srcIdx(rewrite))
	return nil
}

// compileSetterCall emits one setter of a complex assignment. The target and
// the value are on the stack; the rewritten source AST carries setter
// placeholders in the first and last argument positions.
func (fc *fnCtx) compileSetterCall(g *sexp.Lang) error {
	cs := fc.cs()
	gfun := g.Car().(*sexp.Symbol)
	setterName := sexp.Install(gfun.Name() + "<-")

	names := []sexp.Value{sexp.Nil}

	// Load the setter beneath the target and the value carried over from
	// the previous setter.
	cs.Emit(op.LdFun, fc.poolIdx(setterName))
	cs.Emit(op.Put, 2)

	nargs := 0
	for it := sexp.Cdr(g.Cdr()); !sexp.IsNil(it); it = sexp.Cdr(it) {
		arg := sexp.Car(it)
		nargs++
		if arg == sexp.DotsSym || arg == sexp.Missing {
			names = append(names, sexp.Nil)
			fc.compileConst(arg)
			continue
		}
		if tag := sexp.Tag(it); tag != nil {
			names = append(names, tag)
		} else {
			names = append(names, sexp.Nil)
		}
		if err := fc.compilePromisedArg(arg); err != nil {
			return err
		}
	}

	names = append(names, sexp.ValueSym)
	// The value comes last; if arguments were pushed after it, pull it back
	// up.
	if nargs > 0 {
		fc.cs().Emit(op.Pick, int32(nargs))
	}

	fc.emitCallStack(len(names), names, true)

	rewrite := sexp.ShallowDuplicateCall(g)
	rewrite.SetCar(setterName)
	if cell := sexp.ListElem(rewrite.Cdr(), 0); cell != nil {
		cell.SetCar(sexp.SetterPlaceholder)
	}
	last := sexp.ListElem(rewrite.Cdr(), sexp.ListLength(rewrite.Cdr())-1)
	valueCell := sexp.ConsTag(sexp.SetterPlaceholder, sexp.Nil, sexp.ValueSym)
	last.SetCdr(valueCell)
	cs.AddSrc(fc.srcIdx(rewrite))
	return nil
}

// compilePromisedArg wraps symbol and call arguments in promises; immediate
// values are compiled inline.
func (fc *fnCtx) compilePromisedArg(arg sexp.Value) error {
	switch arg.(type) {
	case *sexp.Lang, *sexp.Symbol:
		idx, err := fc.compilePromise(arg)
		if err != nil {
			return err
		}
		fc.cs().Emit(op.MkProm, int32(idx))
		return nil
	default:
		return fc.compileExpr(arg)
	}
}

func (fc *fnCtx) emitCallStack(nargs int, names []sexp.Value, hasNames bool) {
	namesIdx := int32(0)
	if hasNames {
		namesIdx = fc.poolIdx(sexp.NewList(names))
	}
	fc.cs().Emit(op.CallStack, int32(nargs), namesIdx)
}
