// Package compiler lowers source expressions into bytecode.
//
// A closure body compiles to a function object: an entry code body plus one
// nested code body per argument promise created while compiling it. Function
// application compiles each argument into its own promise body and emits a
// call instruction carrying the vector of promise indices; laziness is
// preserved because the promise bodies only run when forced.
//
// A handful of special forms are inlined instead of compiled as calls:
// short-circuit logic, quote, assignment (including the complex-assignment
// rewriting of nested getter/setter chains), the type predicates, the
// two-argument subset operators, while/repeat loops, and next/break inside a
// compiled loop. Every inlined form is preceded by an isspecial guard so the
// interpreter can side-exit to a dynamic call when the binding has been
// shadowed.
package compiler

import (
	"github.com/deepnoodle-ai/riv/bytecode"
	"github.com/deepnoodle-ai/riv/errz"
	"github.com/deepnoodle-ai/riv/op"
	"github.com/deepnoodle-ai/riv/pool"
	"github.com/deepnoodle-ai/riv/sexp"
)

// MaxArgs is the maximum number of arguments at a single call site.
const MaxArgs = 255

// Compiler lowers ASTs into function objects against a runtime's constant
// and source pools.
type Compiler struct {
	consts *pool.Pool
	srcs   *pool.Pool
	force  sexp.Forcer // for promises embedded in source; may be nil
}

// New creates a compiler that interns constants and source references into
// the given pools.
func New(consts, srcs *pool.Pool) *Compiler {
	return &Compiler{consts: consts, srcs: srcs}
}

// SetForcer provides the promise forcer used when a promise node is found
// embedded in a source AST.
func (c *Compiler) SetForcer(force sexp.Forcer) { c.force = force }

// Compile lowers a closure body and its formals into a function object. Each
// formal's default expression becomes a promise body; the returned function
// object records the promise index per formal.
func (c *Compiler) Compile(formals, body sexp.Value) (*bytecode.FunctionObject, error) {
	fc := &fnCtx{c: c, fn: bytecode.NewFunctionObject()}
	fc.fn.ReserveEntry()

	var formalIdx []int
	for it := formals; !sexp.IsNil(it); it = sexp.Cdr(it) {
		def := sexp.Car(it)
		if def == sexp.Missing {
			formalIdx = append(formalIdx, bytecode.MissingArgIdx)
			continue
		}
		idx, err := fc.compilePromise(def)
		if err != nil {
			return nil, err
		}
		formalIdx = append(formalIdx, idx)
	}
	fc.fn.SetFormalIndexes(formalIdx)

	fc.push(body)
	if err := fc.compileExpr(body); err != nil {
		return nil, err
	}
	fc.cs().Emit(op.Ret)
	fc.popEntry()
	return fc.fn, nil
}

// CompileExpr lowers a top-level expression.
func (c *Compiler) CompileExpr(expr sexp.Value) (*bytecode.FunctionObject, error) {
	return c.Compile(sexp.Nil, expr)
}

// loopLabels holds the jump targets of the innermost inlined loop.
type loopLabels struct {
	next bytecode.Label
	brk  bytecode.Label
}

// codeCtx is one code body under construction.
type codeCtx struct {
	cs    *bytecode.CodeStream
	loops []loopLabels
}

// fnCtx is the compilation state for one function object.
type fnCtx struct {
	c     *Compiler
	fn    *bytecode.FunctionObject
	stack []*codeCtx
}

func (fc *fnCtx) cs() *bytecode.CodeStream { return fc.stack[len(fc.stack)-1].cs }

func (fc *fnCtx) top() *codeCtx { return fc.stack[len(fc.stack)-1] }

func (fc *fnCtx) push(ast sexp.Value) {
	srcKey := fc.c.srcs.Insert(ast)
	fc.stack = append(fc.stack, &codeCtx{cs: bytecode.NewCodeStream(srcKey)})
}

func (fc *fnCtx) pop() int {
	idx := fc.cs().Finalize(fc.fn)
	fc.stack = fc.stack[:len(fc.stack)-1]
	return idx
}

func (fc *fnCtx) popEntry() {
	fc.cs().FinalizeEntry(fc.fn)
	fc.stack = fc.stack[:len(fc.stack)-1]
}

func (fc *fnCtx) inLoop() bool { return len(fc.top().loops) > 0 }

func (fc *fnCtx) loop() loopLabels {
	loops := fc.top().loops
	return loops[len(loops)-1]
}

func (fc *fnCtx) pushLoop(next, brk bytecode.Label) {
	fc.top().loops = append(fc.top().loops, loopLabels{next: next, brk: brk})
}

func (fc *fnCtx) popLoop() {
	fc.top().loops = fc.top().loops[:len(fc.top().loops)-1]
}

func (fc *fnCtx) poolIdx(v sexp.Value) int32 {
	return int32(fc.c.consts.Insert(v))
}

func (fc *fnCtx) srcIdx(v sexp.Value) uint32 {
	return fc.c.srcs.Insert(v)
}

// compilePromise lowers an expression into its own code body ending in ret,
// returning the body's index within the function object.
func (fc *fnCtx) compilePromise(exp sexp.Value) (int, error) {
	fc.push(exp)
	if err := fc.compileExpr(exp); err != nil {
		return 0, err
	}
	fc.cs().Emit(op.Ret)
	return fc.pop(), nil
}

// compileExpr dispatches on the AST node type.
func (fc *fnCtx) compileExpr(exp sexp.Value) error {
	switch exp := exp.(type) {
	case *sexp.Lang:
		return fc.compileCall(exp)
	case *sexp.Symbol:
		fc.compileGetvar(exp)
		return nil
	case *sexp.Promise:
		// A promise embedded in a source tree: force it now and emit the
		// value as a constant carrying the promise's expression.
		val := exp.Value()
		if val == nil {
			if fc.c.force == nil {
				return errz.New(errz.ErrInternal, exp.Expr(),
					"unforced promise in source with no forcer configured")
			}
			forced, err := fc.c.force(exp)
			if err != nil {
				return err
			}
			val = forced
		}
		fc.compileConst(val)
		fc.cs().AddSrc(fc.srcIdx(exp.Expr()))
		return nil
	default:
		fc.compileConst(exp)
		return nil
	}
}

// compileGetvar emits the lookup for a symbol reference.
func (fc *fnCtx) compileGetvar(sym *sexp.Symbol) {
	switch {
	case sym.DDVal() > 0:
		fc.cs().Emit(op.LdDdVar, fc.poolIdx(sym))
	case sym == sexp.Missing:
		fc.cs().Emit(op.Push, fc.poolIdx(sexp.Missing))
	default:
		fc.cs().Emit(op.LdVar, fc.poolIdx(sym))
	}
}

// compileConst emits a constant push. The value is marked fully named so it
// cannot be mutated in place. Attribute-free scalar numbers go through the
// pool's deduplicating intern tables.
func (fc *fnCtx) compileConst(v sexp.Value) {
	sexp.SetNamed(v, 2)
	switch n := v.(type) {
	case *sexp.IntVector:
		if n.Len() == 1 && len(n.Attrs()) == 0 && n.Int(0) != sexp.IntNA {
			fc.cs().Emit(op.Push, int32(fc.c.consts.InsertInt(n.Int(0))))
			return
		}
	case *sexp.RealVector:
		if n.Len() == 1 && len(n.Attrs()) == 0 {
			fc.cs().Emit(op.Push, int32(fc.c.consts.InsertReal(n.Real(0))))
			return
		}
	}
	fc.cs().Emit(op.Push, fc.poolIdx(v))
}

// compileCall lowers a function application. A symbol callee may hit an
// inlined special form; otherwise the callee is resolved with ldfun (symbol
// path) or evaluated and checked with isfun (expression path).
func (fc *fnCtx) compileCall(ast *sexp.Lang) error {
	fun := ast.Car()
	args := ast.Cdr()

	if sym, ok := fun.(*sexp.Symbol); ok {
		done, err := fc.compileSpecialCall(ast, sym, args)
		if err != nil || done {
			return err
		}
		fc.cs().Emit(op.LdFun, fc.poolIdx(sym))
	} else {
		if err := fc.compileExpr(fun); err != nil {
			return err
		}
		fc.cs().Emit(op.IsFun)
		fc.cs().AddSrc(fc.srcIdx(ast))
	}

	argIdx, namesIdx, err := fc.compileArgs(args)
	if err != nil {
		return err
	}
	fc.cs().Emit(op.Call, argIdx, namesIdx)
	fc.cs().AddSrc(fc.srcIdx(ast))
	return nil
}

// compileArgs wraps each argument in a promise body and returns the pool
// indices of the packed argument-index vector and the tag list.
func (fc *fnCtx) compileArgs(args sexp.Value) (argIdx, namesIdx int32, err error) {
	var callArgs []int
	var names []sexp.Value
	hasNames := false
	for it := args; !sexp.IsNil(it); it = sexp.Cdr(it) {
		arg := sexp.Car(it)
		if arg == sexp.DotsSym {
			callArgs = append(callArgs, bytecode.DotsArgIdx)
			names = append(names, sexp.Nil)
			continue
		}
		if arg == sexp.Missing {
			callArgs = append(callArgs, bytecode.MissingArgIdx)
			names = append(names, sexp.Nil)
			continue
		}
		prom, err := fc.compilePromise(arg)
		if err != nil {
			return 0, 0, err
		}
		callArgs = append(callArgs, prom)
		if tag := sexp.Tag(it); tag != nil {
			names = append(names, tag)
			hasNames = true
		} else {
			names = append(names, sexp.Nil)
		}
	}
	if len(callArgs) > MaxArgs {
		return 0, 0, errz.Newf(errz.ErrInternal, args,
			"call exceeds the argument limit of %d", MaxArgs)
	}
	argIdx = fc.poolIdx(sexp.NewIntVector(callArgs))
	namesIdx = 0
	if hasNames {
		namesIdx = fc.poolIdx(sexp.NewList(names))
	}
	return argIdx, namesIdx, nil
}

// compileDispatch lowers a generic-dispatch call site for the given
// selector.
func (fc *fnCtx) compileDispatch(selector *sexp.Symbol, ast *sexp.Lang, args sexp.Value) error {
	argIdx, namesIdx, err := fc.compileArgs(args)
	if err != nil {
		return err
	}
	fc.cs().Emit(op.Dispatch, argIdx, namesIdx, fc.poolIdx(selector))
	fc.cs().AddSrc(fc.srcIdx(ast))
	return nil
}
