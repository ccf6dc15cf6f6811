package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/riv/bytecode"
	"github.com/deepnoodle-ai/riv/errz"
	"github.com/deepnoodle-ai/riv/internal/rtest"
	"github.com/deepnoodle-ai/riv/op"
	"github.com/deepnoodle-ai/riv/pool"
	"github.com/deepnoodle-ai/riv/sexp"
)

type instr struct {
	code op.Code
	imms []int32
}

func decode(c *bytecode.CodeObject) []instr {
	var out []instr
	ops := c.Ops()
	for pc := 0; pc < len(ops); {
		code := op.Code(ops[pc])
		info := op.GetInfo(code)
		in := instr{code: code}
		for i := range info.Operands {
			in.imms = append(in.imms, c.ImmAt(pc, i))
		}
		out = append(out, in)
		pc += info.Size()
	}
	return out
}

func opcodes(c *bytecode.CodeObject) []op.Code {
	var out []op.Code
	for _, in := range decode(c) {
		out = append(out, in.code)
	}
	return out
}

func find(c *bytecode.CodeObject, code op.Code) (instr, bool) {
	for _, in := range decode(c) {
		if in.code == code {
			return in, true
		}
	}
	return instr{}, false
}

func newCompiler() (*Compiler, *pool.Pool, *pool.Pool) {
	consts := pool.New()
	srcs := pool.New()
	return New(consts, srcs), consts, srcs
}

func TestCompileConstant(t *testing.T) {
	c, consts, _ := newCompiler()
	fn, err := c.CompileExpr(rtest.Real(1.5))
	require.NoError(t, err)
	require.Equal(t, 1, fn.NumCodes())

	ins := decode(fn.Entry())
	require.Len(t, ins, 2)
	assert.Equal(t, op.Push, ins[0].code)
	assert.Equal(t, op.Ret, ins[1].code)

	v := consts.Get(uint32(ins[0].imms[0]))
	assert.Equal(t, 1.5, v.(*sexp.RealVector).Real(0))
	// Constants are locked against in-place mutation.
	assert.Equal(t, 2, sexp.Named(v))
}

func TestScalarConstantsInterned(t *testing.T) {
	c, _, _ := newCompiler()
	a, err := c.CompileExpr(rtest.Real(2))
	require.NoError(t, err)
	b, err := c.CompileExpr(rtest.Real(2))
	require.NoError(t, err)
	ai := decode(a.Entry())[0].imms[0]
	bi := decode(b.Entry())[0].imms[0]
	assert.Equal(t, ai, bi)
}

func TestCompileVariableLookups(t *testing.T) {
	c, consts, _ := newCompiler()

	fn, err := c.CompileExpr(rtest.Sym("x"))
	require.NoError(t, err)
	ins := decode(fn.Entry())
	assert.Equal(t, op.LdVar, ins[0].code)
	assert.Equal(t, sexp.Value(sexp.Install("x")), consts.Get(uint32(ins[0].imms[0])))

	fn, err = c.CompileExpr(rtest.Sym("..2"))
	require.NoError(t, err)
	assert.Equal(t, op.LdDdVar, decode(fn.Entry())[0].code)

	fn, err = c.CompileExpr(sexp.Missing)
	require.NoError(t, err)
	assert.Equal(t, op.Push, decode(fn.Entry())[0].code)
}

func TestCompileCall(t *testing.T) {
	c, consts, srcs := newCompiler()
	call := rtest.Call("f", rtest.Sym("x"), rtest.Named("n", rtest.Real(3)))
	fn, err := c.CompileExpr(call)
	require.NoError(t, err)

	// Entry plus one promise body per argument.
	require.Equal(t, 3, fn.NumCodes())

	ins := decode(fn.Entry())
	assert.Equal(t, op.LdFun, ins[0].code)
	assert.Equal(t, op.Call, ins[1].code)
	assert.Equal(t, op.Ret, ins[2].code)

	args := consts.Get(uint32(ins[1].imms[0])).(*sexp.IntVector)
	assert.Equal(t, []int{1, 2}, args.Values())

	names := consts.Get(uint32(ins[1].imms[1])).(*sexp.List)
	assert.Equal(t, sexp.Value(sexp.Nil), names.Elem(0))
	assert.Equal(t, sexp.Value(sexp.Install("n")), names.Elem(1))

	// The call instruction's source reference is the call itself.
	callPC := 5 // after the 5-byte ldfun
	assert.Equal(t, sexp.Value(call), srcs.Get(fn.Entry().SrcKeyAtPC(callPC)))

	// Promise bodies end in ret and know their source.
	prom := fn.CodeAt(1)
	assert.Equal(t, []op.Code{op.LdVar, op.Ret}, opcodes(prom))
	assert.Equal(t, sexp.Value(sexp.Install("x")), srcs.Get(prom.SourceKey()))
}

func TestCompileCallSentinels(t *testing.T) {
	c, consts, _ := newCompiler()
	call := rtest.Call("f", sexp.DotsSym, sexp.Missing)
	fn, err := c.CompileExpr(call)
	require.NoError(t, err)
	require.Equal(t, 1, fn.NumCodes()) // no promise bodies

	ins, ok := find(fn.Entry(), op.Call)
	require.True(t, ok)
	args := consts.Get(uint32(ins.imms[0])).(*sexp.IntVector)
	assert.Equal(t, []int{bytecode.DotsArgIdx, bytecode.MissingArgIdx}, args.Values())
}

func TestCompileExpressionCallee(t *testing.T) {
	c, _, _ := newCompiler()
	fn, err := c.CompileExpr(rtest.Call(rtest.Call("getf"), rtest.Real(1)))
	require.NoError(t, err)
	codes := opcodes(fn.Entry())
	assert.Contains(t, codes, op.IsFun)
}

func TestCompileShortCircuitAnd(t *testing.T) {
	c, _, _ := newCompiler()
	fn, err := c.CompileExpr(rtest.Call("&&", rtest.Lgl(true), rtest.Lgl(false)))
	require.NoError(t, err)
	codes := opcodes(fn.Entry())
	assert.Equal(t, op.IsSpecial, codes[0])
	assert.Contains(t, codes, op.AsLogical)
	assert.Contains(t, codes, op.Dup)
	assert.Contains(t, codes, op.BrFalse)
	assert.Contains(t, codes, op.LglAnd)
	// Arguments are compiled inline, not as a dynamic call.
	assert.NotContains(t, codes, op.Call)
}

func TestCompileQuote(t *testing.T) {
	c, _, srcs := newCompiler()
	quoted := rtest.Call("+", rtest.Sym("x"), rtest.Real(1))
	fn, err := c.CompileExpr(rtest.Call("quote", quoted))
	require.NoError(t, err)

	ins, ok := find(fn.Entry(), op.PushCode)
	require.True(t, ok)
	body := fn.CodeAt(int(ins.imms[0]))
	assert.Equal(t, sexp.Value(quoted), srcs.Get(body.SourceKey()))
}

func TestCompileSimpleAssignment(t *testing.T) {
	c, _, _ := newCompiler()
	fn, err := c.CompileExpr(rtest.Call("<-", rtest.Sym("x"), rtest.Real(1)))
	require.NoError(t, err)
	codes := opcodes(fn.Entry())
	assert.Equal(t, []op.Code{op.IsSpecial, op.Push, op.Dup, op.StVar, op.Invisible, op.Ret}, codes)
}

func TestCompileStringTargetAssignment(t *testing.T) {
	c, consts, _ := newCompiler()
	fn, err := c.CompileExpr(rtest.Call("<-", rtest.Str("x"), rtest.Real(1)))
	require.NoError(t, err)
	ins, ok := find(fn.Entry(), op.StVar)
	require.True(t, ok)
	assert.Equal(t, sexp.Value(sexp.Install("x")), consts.Get(uint32(ins.imms[0])))
}

func TestCompileComplexAssignment(t *testing.T) {
	c, consts, srcs := newCompiler()
	// x$a$b <- 2
	lhs := rtest.Call("$", rtest.Call("$", rtest.Sym("x"), rtest.Sym("a")), rtest.Sym("b"))
	fn, err := c.CompileExpr(rtest.Call("<-", lhs, rtest.Real(2)))
	require.NoError(t, err)

	var callStacks []instr
	var pcs []int
	ops := fn.Entry().Ops()
	for pc := 0; pc < len(ops); {
		code := op.Code(ops[pc])
		if code == op.CallStack {
			in := instr{code: code, imms: []int32{fn.Entry().ImmAt(pc, 0), fn.Entry().ImmAt(pc, 1)}}
			callStacks = append(callStacks, in)
			pcs = append(pcs, pc)
		}
		pc += op.GetInfo(code).Size()
	}
	// One getter for the inner $, two setters.
	require.Len(t, callStacks, 3)

	// The getter call's source carries the getter placeholder.
	getterSrc := srcs.Get(fn.Entry().SrcKeyAtPC(pcs[0])).(*sexp.Lang)
	assert.Equal(t, sexp.Value(sexp.GetterPlaceholder), sexp.Cadr(getterSrc))

	// The setter calls rewrite to name<- with setter placeholders for the
	// target and the tagged value.
	setterSrc := srcs.Get(fn.Entry().SrcKeyAtPC(pcs[1])).(*sexp.Lang)
	assert.Equal(t, sexp.Value(sexp.Install("$<-")), setterSrc.Car())
	assert.Equal(t, sexp.Value(sexp.SetterPlaceholder), sexp.Cadr(setterSrc))
	lastCell := sexp.ListElem(setterSrc.Cdr(), sexp.ListLength(setterSrc.Cdr())-1)
	assert.Equal(t, sexp.Value(sexp.SetterPlaceholder), lastCell.Car())
	assert.Equal(t, sexp.ValueSym, lastCell.Tag())

	// The setter names end with the reserved value tag.
	names := consts.Get(uint32(callStacks[1].imms[1])).(*sexp.List)
	assert.Equal(t, sexp.Value(sexp.ValueSym), names.Elem(names.Len()-1))

	codes := opcodes(fn.Entry())
	assert.Contains(t, codes, op.Uniq)
	assert.Contains(t, codes, op.Pick)
	assert.Contains(t, codes, op.StVar)
	assert.Contains(t, codes, op.Invisible)
}

func TestCompileAssignmentFallsBackWhenNotStatic(t *testing.T) {
	c, consts, _ := newCompiler()
	// The head of the target call is itself a call, which cannot be
	// rewritten statically: compile as a dynamic call of the special.
	lhs := rtest.Call(rtest.Call("getf"), rtest.Sym("x"))
	fn, err := c.CompileExpr(rtest.Call("<-", lhs, rtest.Real(1)))
	require.NoError(t, err)

	ins, ok := find(fn.Entry(), op.LdFun)
	require.True(t, ok)
	assert.Equal(t, sexp.Value(sexp.AssignSym), consts.Get(uint32(ins.imms[0])))
}

func TestCompileAssignmentRejectsBadTarget(t *testing.T) {
	c, _, _ := newCompiler()
	_, err := c.CompileExpr(rtest.Call("<-", rtest.Real(1), rtest.Real(2)))
	require.Error(t, err)
	assert.Equal(t, errz.ErrBadAssignmentTarget, errz.KindOf(err))
}

func TestCompileIsTests(t *testing.T) {
	c, _, _ := newCompiler()
	for _, name := range []string{"is.null", "is.list", "is.pairlist"} {
		fn, err := c.CompileExpr(rtest.Call(name, rtest.Sym("x")))
		require.NoError(t, err)
		_, ok := find(fn.Entry(), op.Is)
		assert.True(t, ok, name)
	}
}

func TestCompileSubsetFastPath(t *testing.T) {
	c, _, _ := newCompiler()
	fn, err := c.CompileExpr(rtest.Call("[[", rtest.Sym("x"), rtest.Real(2)))
	require.NoError(t, err)
	codes := opcodes(fn.Entry())
	assert.Contains(t, codes, op.BrObj)
	assert.Contains(t, codes, op.Extract1)
	assert.Contains(t, codes, op.Dispatch)

	fn, err = c.CompileExpr(rtest.Call("[", rtest.Sym("x"), rtest.Real(2)))
	require.NoError(t, err)
	assert.Contains(t, opcodes(fn.Entry()), op.Subset1)
}

func TestCompileSubsetNamedIndexFallsBack(t *testing.T) {
	c, _, _ := newCompiler()
	fn, err := c.CompileExpr(rtest.Call("[[", rtest.Sym("x"), rtest.Named("i", rtest.Real(2))))
	require.NoError(t, err)
	codes := opcodes(fn.Entry())
	assert.NotContains(t, codes, op.Extract1)
	assert.Contains(t, codes, op.Call)
}

func TestCompileWhileLoop(t *testing.T) {
	c, _, _ := newCompiler()
	fn, err := c.CompileExpr(rtest.Call("while", rtest.Lgl(true), rtest.Call("break")))
	require.NoError(t, err)
	codes := opcodes(fn.Entry())
	assert.Contains(t, codes, op.BeginLoop)
	assert.Contains(t, codes, op.AsBool)
	assert.Contains(t, codes, op.BrFalse)
	assert.Contains(t, codes, op.EndContext)
	// break compiles to a plain branch, not a call.
	assert.NotContains(t, codes, op.Call)

	require.NoError(t, bytecode.Verify(fn))
}

func TestCompileRepeatLoop(t *testing.T) {
	c, _, _ := newCompiler()
	fn, err := c.CompileExpr(rtest.Call("repeat", rtest.Call("break")))
	require.NoError(t, err)
	codes := opcodes(fn.Entry())
	assert.Contains(t, codes, op.BeginLoop)
	assert.NotContains(t, codes, op.AsBool)
	require.NoError(t, bytecode.Verify(fn))
}

func TestNextOutsideLoopIsDynamic(t *testing.T) {
	c, consts, _ := newCompiler()
	fn, err := c.CompileExpr(rtest.Call("next"))
	require.NoError(t, err)
	ins, ok := find(fn.Entry(), op.LdFun)
	require.True(t, ok)
	assert.Equal(t, sexp.Value(sexp.NextSym), consts.Get(uint32(ins.imms[0])))
}

func TestCompileFormals(t *testing.T) {
	c, _, _ := newCompiler()
	formals := sexp.ConsTag(sexp.Missing,
		sexp.ConsTag(rtest.Real(10), sexp.Nil, sexp.Install("y")),
		sexp.Install("x"))
	fn, err := c.Compile(formals, rtest.Sym("x"))
	require.NoError(t, err)

	idx := fn.FormalIndexes()
	require.Len(t, idx, 2)
	assert.Equal(t, bytecode.MissingArgIdx, idx[0])
	assert.Equal(t, 1, idx[1])

	def := fn.CodeAt(idx[1])
	assert.Equal(t, []op.Code{op.Push, op.Ret}, opcodes(def))
}

func TestStackDepthRecorded(t *testing.T) {
	c, _, _ := newCompiler()
	fn, err := c.CompileExpr(rtest.Call("<-", rtest.Sym("x"), rtest.Real(1)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fn.Entry().StackDepth(), 2)
	require.NoError(t, bytecode.Verify(fn))
}
