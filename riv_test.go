package riv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	riv "github.com/deepnoodle-ai/riv"
	"github.com/deepnoodle-ai/riv/errz"
	"github.com/deepnoodle-ai/riv/internal/rtest"
	"github.com/deepnoodle-ai/riv/sexp"
)

func eval(t *testing.T, rt *riv.Runtime, expr sexp.Value) sexp.Value {
	t.Helper()
	res, err := rt.EvalExpr(context.Background(), expr, rt.GlobalEnv())
	require.NoError(t, err)
	return res
}

func TestLiteralArithmetic(t *testing.T) {
	rt := riv.New()
	res := eval(t, rt, rtest.Call("+", rtest.Real(1), rtest.Real(2)))
	assert.Equal(t, 3.0, res.(*sexp.RealVector).Real(0))
	assert.True(t, rt.Visible())
	assert.Equal(t, 0, rt.VM().StackLen())
}

func TestCompileThenEvalFunction(t *testing.T) {
	rt := riv.New()
	fn, err := rt.Compile(rtest.Call("*", rtest.Real(6), rtest.Real(7)))
	require.NoError(t, err)
	res, err := rt.EvalFunction(context.Background(), fn, rt.GlobalEnv())
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.(*sexp.RealVector).Real(0))
}

func TestSelfEvaluatingShortCircuit(t *testing.T) {
	rt := riv.New()
	v := sexp.NewList([]sexp.Value{sexp.ScalarInt(1)})
	res := eval(t, rt, v)
	assert.Same(t, sexp.Value(v), res)
	// Self-evaluating results come back fully named.
	assert.Equal(t, 2, sexp.Named(res))
}

func TestLazyArgumentNeverForced(t *testing.T) {
	rt := riv.New()
	// f <- function(x) 1
	eval(t, rt, rtest.Call("<-", rtest.Sym("f"),
		rtest.Fn([]rtest.FormalSpec{rtest.Formal("x", nil)}, rtest.Real(1))))

	// f(stop("boom")) returns 1 without raising.
	res := eval(t, rt, rtest.Call("f", rtest.Call("stop", rtest.Str("boom"))))
	assert.Equal(t, 1.0, res.(*sexp.RealVector).Real(0))
}

func TestLazyArgumentForcedOnUse(t *testing.T) {
	rt := riv.New()
	// g <- function(x) x
	eval(t, rt, rtest.Call("<-", rtest.Sym("g"),
		rtest.Fn([]rtest.FormalSpec{rtest.Formal("x", nil)}, rtest.Sym("x"))))

	_, err := rt.EvalExpr(context.Background(),
		rtest.Call("g", rtest.Call("stop", rtest.Str("boom"))), rt.GlobalEnv())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestShortCircuitOr(t *testing.T) {
	rt := riv.New()
	res := eval(t, rt, rtest.Call("||", rtest.Lgl(true), rtest.Call("stop", rtest.Str("boom"))))
	assert.Same(t, sexp.Value(sexp.True), res)
}

func TestShortCircuitAnd(t *testing.T) {
	rt := riv.New()
	res := eval(t, rt, rtest.Call("&&", rtest.Lgl(false), rtest.Call("stop", rtest.Str("boom"))))
	assert.Same(t, sexp.Value(sexp.False), res)
}

func TestThreeValuedTables(t *testing.T) {
	rt := riv.New()
	and := func(a, b sexp.Value) sexp.Value { return eval(t, rt, rtest.Call("&&", a, b)) }
	or := func(a, b sexp.Value) sexp.Value { return eval(t, rt, rtest.Call("||", a, b)) }

	assert.Same(t, sexp.Value(sexp.False), and(rtest.NA(), rtest.Lgl(false)))
	assert.Same(t, sexp.Value(sexp.NAValue), and(rtest.NA(), rtest.Lgl(true)))
	assert.Same(t, sexp.Value(sexp.False), and(rtest.Lgl(false), rtest.NA()))
	assert.Same(t, sexp.Value(sexp.True), or(rtest.NA(), rtest.Lgl(true)))
	assert.Same(t, sexp.Value(sexp.NAValue), or(rtest.NA(), rtest.Lgl(false)))
}

func TestAssignmentIsInvisible(t *testing.T) {
	rt := riv.New()
	res := eval(t, rt, rtest.Call("<-", rtest.Sym("x"), rtest.Real(5)))
	assert.Equal(t, 5.0, res.(*sexp.RealVector).Real(0))
	assert.False(t, rt.Visible())

	got := eval(t, rt, rtest.Sym("x"))
	assert.Equal(t, 5.0, got.(*sexp.RealVector).Real(0))
	assert.True(t, rt.Visible())
}

func TestComplexAssignment(t *testing.T) {
	rt := riv.New()
	// x <- list(a = list(b = 1))
	eval(t, rt, rtest.Call("<-", rtest.Sym("x"),
		rtest.Call("list", rtest.Named("a",
			rtest.Call("list", rtest.Named("b", rtest.Real(1)))))))

	oldA := eval(t, rt, rtest.Call("$", rtest.Sym("x"), rtest.Sym("a")))

	// x$a$b <- 2
	lhs := rtest.Call("$", rtest.Call("$", rtest.Sym("x"), rtest.Sym("a")), rtest.Sym("b"))
	eval(t, rt, rtest.Call("<-", lhs, rtest.Real(2)))

	got := eval(t, rt, rtest.Call("$", rtest.Call("$", rtest.Sym("x"), rtest.Sym("a")), rtest.Sym("b")))
	assert.Equal(t, 2.0, got.(*sexp.RealVector).Real(0))

	// The updated x$a is not shared with the prior value.
	newA := eval(t, rt, rtest.Call("$", rtest.Sym("x"), rtest.Sym("a")))
	require.NotSame(t, oldA, newA)
	oldB, err := sexp.GetByName(oldA, "b")
	require.NoError(t, err)
	assert.Equal(t, 1.0, oldB.(*sexp.RealVector).Real(0))
}

func TestVectorElementAssignment(t *testing.T) {
	rt := riv.New()
	eval(t, rt, rtest.Call("<-", rtest.Sym("v"), rtest.Call("c", rtest.Real(1), rtest.Real(2), rtest.Real(3))))
	// v[[2]] <- 9
	eval(t, rt, rtest.Call("<-", rtest.Call("[[", rtest.Sym("v"), rtest.Real(2)), rtest.Real(9)))
	got := eval(t, rt, rtest.Call("[[", rtest.Sym("v"), rtest.Real(2)))
	assert.Equal(t, 9.0, got.(*sexp.RealVector).Real(0))
}

func TestWhileLoopWithBreak(t *testing.T) {
	rt := riv.New()
	// i <- 0; while (TRUE) { i <- i + 1; if (i == 3) break }; i
	eval(t, rt, rtest.Call("<-", rtest.Sym("i"), rtest.Real(0)))
	body := rtest.Block(
		rtest.Call("<-", rtest.Sym("i"), rtest.Call("+", rtest.Sym("i"), rtest.Real(1))),
		rtest.Call("if", rtest.Call("==", rtest.Sym("i"), rtest.Real(3)), rtest.Call("break")),
	)
	res := eval(t, rt, rtest.Call("while", rtest.Lgl(true), body))
	assert.True(t, sexp.IsNil(res))
	assert.False(t, rt.Visible())

	got := eval(t, rt, rtest.Sym("i"))
	assert.Equal(t, 3.0, got.(*sexp.RealVector).Real(0))
}

func TestWhileLoopWithNext(t *testing.T) {
	rt := riv.New()
	// i <- 0; n <- 0
	// while (i < 5) { i <- i + 1; if (i == 2) next; n <- n + 1 }
	eval(t, rt, rtest.Call("<-", rtest.Sym("i"), rtest.Real(0)))
	eval(t, rt, rtest.Call("<-", rtest.Sym("n"), rtest.Real(0)))
	body := rtest.Block(
		rtest.Call("<-", rtest.Sym("i"), rtest.Call("+", rtest.Sym("i"), rtest.Real(1))),
		rtest.Call("if", rtest.Call("==", rtest.Sym("i"), rtest.Real(2)), rtest.Call("next")),
		rtest.Call("<-", rtest.Sym("n"), rtest.Call("+", rtest.Sym("n"), rtest.Real(1))),
	)
	eval(t, rt, rtest.Call("while", rtest.Call("<", rtest.Sym("i"), rtest.Real(5)), body))

	got := eval(t, rt, rtest.Sym("n"))
	assert.Equal(t, 4.0, got.(*sexp.RealVector).Real(0))
}

func TestNonLocalReturnFromLoop(t *testing.T) {
	rt := riv.New()
	// f <- function() { for (i in 1:5) if (i == 3) return(i); 0 }
	body := rtest.Block(
		rtest.Call("for", rtest.Sym("i"), rtest.Call(":", rtest.Real(1), rtest.Real(5)),
			rtest.Call("if", rtest.Call("==", rtest.Sym("i"), rtest.Real(3)),
				rtest.Call("return", rtest.Sym("i")))),
		rtest.Real(0),
	)
	eval(t, rt, rtest.Call("<-", rtest.Sym("f"), rtest.Fn(nil, body)))

	res := eval(t, rt, rtest.Call("f"))
	assert.Equal(t, 3, sexp.AsInt(res))
	assert.Equal(t, 0, rt.VM().StackLen())
}

func TestBreakOutsideLoopErrors(t *testing.T) {
	rt := riv.New()
	// f <- function() break; for (i in 1:3) f()
	eval(t, rt, rtest.Call("<-", rtest.Sym("f"), rtest.Fn(nil, rtest.Call("break"))))
	_, err := rt.EvalExpr(context.Background(),
		rtest.Call("for", rtest.Sym("i"), rtest.Call(":", rtest.Real(1), rtest.Real(3)),
			rtest.Call("f")), rt.GlobalEnv())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no loop for break/next")
}

func TestS3PrintDispatch(t *testing.T) {
	rt := riv.New()
	// print.foo <- function(x) "matched"
	eval(t, rt, rtest.Call("<-", rtest.Sym("print.foo"),
		rtest.Fn([]rtest.FormalSpec{rtest.Formal("x", nil)}, rtest.Str("matched"))))
	// x <- list(); class(x) <- "foo"
	eval(t, rt, rtest.Call("<-", rtest.Sym("x"), rtest.Call("list", rtest.Real(1))))
	eval(t, rt, rtest.Call("<-", rtest.Call("class", rtest.Sym("x")), rtest.Str("foo")))

	res := eval(t, rt, rtest.Call("print", rtest.Sym("x")))
	assert.Equal(t, "matched", res.(*sexp.StrVector).Str(0))
}

func TestUserGenericUseMethod(t *testing.T) {
	rt := riv.New()
	// area <- function(shape) UseMethod("area")
	eval(t, rt, rtest.Call("<-", rtest.Sym("area"),
		rtest.Fn([]rtest.FormalSpec{rtest.Formal("shape", nil)},
			rtest.Call("UseMethod", rtest.Str("area")))))
	// area.square <- function(shape) shape$side * shape$side
	eval(t, rt, rtest.Call("<-", rtest.Sym("area.square"),
		rtest.Fn([]rtest.FormalSpec{rtest.Formal("shape", nil)},
			rtest.Call("*",
				rtest.Call("$", rtest.Sym("shape"), rtest.Sym("side")),
				rtest.Call("$", rtest.Sym("shape"), rtest.Sym("side"))))))
	// s <- list(side = 4); class(s) <- "square"
	eval(t, rt, rtest.Call("<-", rtest.Sym("s"),
		rtest.Call("list", rtest.Named("side", rtest.Real(4)))))
	eval(t, rt, rtest.Call("<-", rtest.Call("class", rtest.Sym("s")), rtest.Str("square")))

	res := eval(t, rt, rtest.Call("area", rtest.Sym("s")))
	assert.Equal(t, 16.0, res.(*sexp.RealVector).Real(0))
}

func TestQuoteReturnsAST(t *testing.T) {
	rt := riv.New()
	quoted := rtest.Call("+", rtest.Sym("x"), rtest.Real(1))
	res := eval(t, rt, rtest.Call("quote", quoted))
	assert.Equal(t, sexp.Value(quoted), res)
}

func TestEvalOfQuotedExpression(t *testing.T) {
	rt := riv.New()
	eval(t, rt, rtest.Call("<-", rtest.Sym("x"), rtest.Real(20)))
	res := eval(t, rt, rtest.Call("eval",
		rtest.Call("quote", rtest.Call("+", rtest.Sym("x"), rtest.Real(2)))))
	assert.Equal(t, 22.0, res.(*sexp.RealVector).Real(0))
}

func TestDotsForwarding(t *testing.T) {
	rt := riv.New()
	// sum2 <- function(a, b) a + b
	eval(t, rt, rtest.Call("<-", rtest.Sym("sum2"),
		rtest.Fn([]rtest.FormalSpec{rtest.Formal("a", nil), rtest.Formal("b", nil)},
			rtest.Call("+", rtest.Sym("a"), rtest.Sym("b")))))
	// wrap <- function(...) sum2(...)
	eval(t, rt, rtest.Call("<-", rtest.Sym("wrap"),
		rtest.Fn([]rtest.FormalSpec{rtest.Formal("...", nil)},
			rtest.Call("sum2", sexp.DotsSym))))

	res := eval(t, rt, rtest.Call("wrap", rtest.Real(3), rtest.Real(4)))
	assert.Equal(t, 7.0, res.(*sexp.RealVector).Real(0))
}

func TestDDVarLookup(t *testing.T) {
	rt := riv.New()
	// second <- function(...) ..2
	eval(t, rt, rtest.Call("<-", rtest.Sym("second"),
		rtest.Fn([]rtest.FormalSpec{rtest.Formal("...", nil)}, rtest.Sym("..2"))))
	res := eval(t, rt, rtest.Call("second", rtest.Str("a"), rtest.Str("b")))
	assert.Equal(t, "b", res.(*sexp.StrVector).Str(0))
}

func TestDefaultArguments(t *testing.T) {
	rt := riv.New()
	// pow <- function(x, n = 2) { if (n == 2) x * x else x }
	eval(t, rt, rtest.Call("<-", rtest.Sym("pow"),
		rtest.Fn([]rtest.FormalSpec{rtest.Formal("x", nil), rtest.Formal("n", rtest.Real(2))},
			rtest.Call("if", rtest.Call("==", rtest.Sym("n"), rtest.Real(2)),
				rtest.Call("*", rtest.Sym("x"), rtest.Sym("x")),
				rtest.Sym("x")))))

	res := eval(t, rt, rtest.Call("pow", rtest.Real(5)))
	assert.Equal(t, 25.0, res.(*sexp.RealVector).Real(0))

	res = eval(t, rt, rtest.Call("pow", rtest.Real(5), rtest.Named("n", rtest.Real(1))))
	assert.Equal(t, 5.0, res.(*sexp.RealVector).Real(0))
}

func TestLexicalScoping(t *testing.T) {
	rt := riv.New()
	// make <- function() { n <- 10; function(x) x + n }
	eval(t, rt, rtest.Call("<-", rtest.Sym("make"),
		rtest.Fn(nil, rtest.Block(
			rtest.Call("<-", rtest.Sym("n"), rtest.Real(10)),
			rtest.Fn([]rtest.FormalSpec{rtest.Formal("x", nil)},
				rtest.Call("+", rtest.Sym("x"), rtest.Sym("n")))))))
	eval(t, rt, rtest.Call("<-", rtest.Sym("add10"), rtest.Call("make")))

	res := eval(t, rt, rtest.Call("add10", rtest.Real(5)))
	assert.Equal(t, 15.0, res.(*sexp.RealVector).Real(0))
}

func TestBadConditionError(t *testing.T) {
	rt := riv.New()
	_, err := rt.EvalExpr(context.Background(),
		rtest.Call("while", rtest.NA(), rtest.Real(1)), rt.GlobalEnv())
	require.Error(t, err)
	assert.Equal(t, errz.ErrBadCondition, errz.KindOf(err))
	assert.Contains(t, err.Error(), "missing value where TRUE/FALSE needed")
}

func TestUnboundFunctionError(t *testing.T) {
	rt := riv.New()
	_, err := rt.EvalExpr(context.Background(), rtest.Call("nosuch"), rt.GlobalEnv())
	require.Error(t, err)
	assert.Equal(t, errz.ErrUnboundVariable, errz.KindOf(err))
}

func TestApplyNonFunctionError(t *testing.T) {
	rt := riv.New()
	// Calling through an expression that evaluates to a number.
	_, err := rt.EvalExpr(context.Background(),
		rtest.Call(rtest.Call("(", rtest.Real(1))), rt.GlobalEnv())
	require.Error(t, err)
	assert.Equal(t, errz.ErrNonFunction, errz.KindOf(err))
	assert.Contains(t, err.Error(), "attempt to apply non-function")
}

func TestRepeatLoop(t *testing.T) {
	rt := riv.New()
	eval(t, rt, rtest.Call("<-", rtest.Sym("i"), rtest.Real(0)))
	body := rtest.Block(
		rtest.Call("<-", rtest.Sym("i"), rtest.Call("+", rtest.Sym("i"), rtest.Real(1))),
		rtest.Call("if", rtest.Call("==", rtest.Sym("i"), rtest.Real(4)), rtest.Call("break")),
	)
	eval(t, rt, rtest.Call("repeat", body))
	got := eval(t, rt, rtest.Sym("i"))
	assert.Equal(t, 4.0, got.(*sexp.RealVector).Real(0))
}

func TestStackHeightAfterEvaluation(t *testing.T) {
	rt := riv.New()
	exprs := []sexp.Value{
		rtest.Call("+", rtest.Real(1), rtest.Real(2)),
		rtest.Call("<-", rtest.Sym("q"), rtest.Call("c", rtest.Real(1), rtest.Real(2))),
		rtest.Call("while", rtest.Lgl(false), rtest.Real(1)),
		rtest.Call("if", rtest.Lgl(true), rtest.Real(1), rtest.Real(2)),
	}
	for _, e := range exprs {
		eval(t, rt, e)
		assert.Equal(t, 0, rt.VM().StackLen())
	}
}
