package sexp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallInterning(t *testing.T) {
	a := Install("abc")
	b := Install("abc")
	assert.Same(t, a, b)
	assert.NotSame(t, a, Install("abd"))
}

func TestDDSymbols(t *testing.T) {
	assert.Equal(t, 2, Install("..2").DDVal())
	assert.Equal(t, 0, Install("..0").DDVal())
	assert.Equal(t, 0, Install("...").DDVal())
	assert.Equal(t, 0, Install("..x").DDVal())
}

func TestPairListHelpers(t *testing.T) {
	b := NewListBuilder()
	b.Append(ScalarInt(1), Install("a"))
	b.Append(ScalarInt(2), nil)
	b.Append(ScalarInt(3), Install("c"))
	l := b.List()

	assert.Equal(t, 3, ListLength(l))
	assert.Equal(t, "a", Tag(l).Name())
	assert.Equal(t, 2, Car(Cdr(l)).(*IntVector).Int(0))
	assert.Equal(t, 3, ListElem(l, 2).Car().(*IntVector).Int(0))
	assert.Nil(t, ListElem(l, 3))
}

func TestLangKinds(t *testing.T) {
	call := NewLang(Install("f"), Cons(ScalarInt(1), Nil))
	assert.Equal(t, CallKind, call.Kind())
	assert.Equal(t, PairKind, Cons(Nil, Nil).Kind())
	assert.Equal(t, SymKind, Install("f").Kind())
}

func TestEnvChainLookup(t *testing.T) {
	base := NewEnv(nil)
	child := NewEnv(base)
	x := Install("x")

	base.Define(x, ScalarInt(1))
	v := child.Find(x)
	assert.Equal(t, 1, v.(*IntVector).Int(0))

	child.Define(x, ScalarInt(2))
	v = child.Find(x)
	assert.Equal(t, 2, v.(*IntVector).Int(0))

	assert.Equal(t, Value(Unbound), child.Find(Install("zzz")))
}

func TestFindFunSkipsNonFunctions(t *testing.T) {
	base := NewEnv(nil)
	child := NewEnv(base)
	c := Install("c")

	fn := NewBuiltin("c", VisibleOn, nil)
	base.Define(c, fn)
	child.Define(c, ScalarInt(1)) // shadowing variable, not a function

	noForce := func(p *Promise) (Value, error) { return p.Value(), nil }
	got, err := child.FindFun(c, noForce)
	require.NoError(t, err)
	assert.Equal(t, Value(fn), got)
}

func TestFindFunForcesPromises(t *testing.T) {
	env := NewEnv(nil)
	f := Install("f")
	fn := NewBuiltin("f", VisibleOn, nil)

	p := NewPromise(Install("whatever"), env)
	env.Define(f, p)

	forced := false
	got, err := env.FindFun(f, func(p *Promise) (Value, error) {
		forced = true
		return fn, nil
	})
	require.NoError(t, err)
	assert.True(t, forced)
	assert.Equal(t, Value(fn), got)
}

func TestDDFind(t *testing.T) {
	env := NewEnv(nil)
	noForce := func(p *Promise) (Value, error) { return p.Value(), nil }

	v, err := env.DDFind(1, noForce)
	require.NoError(t, err)
	assert.Equal(t, Value(Unbound), v)

	b := NewListBuilder()
	b.Append(ScalarInt(10), nil)
	b.Append(ScalarInt(20), Install("b"))
	env.Define(DotsSym, NewDots(b.List()))

	v, err = env.DDFind(2, noForce)
	require.NoError(t, err)
	assert.Equal(t, 20, v.(*IntVector).Int(0))

	v, err = env.DDFind(3, noForce)
	require.NoError(t, err)
	assert.Equal(t, Value(Missing), v)
}

func TestPromiseLifecycle(t *testing.T) {
	env := NewEnv(nil)
	p := NewPromise(Install("x"), env)
	assert.False(t, p.IsForced())

	val := ScalarInt(7)
	p.SetValue(val)
	assert.True(t, p.IsForced())
	assert.Equal(t, Value(val), p.Value())
	// The stored value is locked against in-place mutation.
	assert.Equal(t, 2, Named(val))
}

func TestNamedDiscipline(t *testing.T) {
	v := ScalarInt(1)
	assert.Equal(t, 0, Named(v))
	IncrementNamed(v)
	assert.Equal(t, 1, Named(v))
	assert.False(t, MaybeShared(v))
	IncrementNamed(v)
	assert.True(t, MaybeShared(v))
	IncrementNamed(v)
	assert.Equal(t, 2, Named(v))

	// Symbols are always treated as shared.
	assert.Equal(t, 2, Named(Install("x")))
}

func TestShallowDuplicate(t *testing.T) {
	v := NewRealVector([]float64{1, 2, 3})
	v.SetAttr(ClassSym, ScalarStr("foo"))
	SetNamed(v, 2)

	d := ShallowDuplicate(v).(*RealVector)
	assert.Equal(t, 0, Named(d))
	assert.Equal(t, "foo", d.Attr(ClassSym).(*StrVector).Str(0))
	d.SetReal(0, 99)
	assert.Equal(t, 1.0, v.Real(0))
}

func TestAsLogical(t *testing.T) {
	assert.Equal(t, Lgl(1), AsLogical(ScalarLgl(true)))
	assert.Equal(t, Lgl(0), AsLogical(ScalarLgl(false)))
	assert.Equal(t, LglNA, AsLogical(NewLglVector([]Lgl{LglNA})))
	assert.Equal(t, Lgl(1), AsLogical(ScalarInt(5)))
	assert.Equal(t, Lgl(0), AsLogical(ScalarReal(0)))
	assert.Equal(t, Lgl(1), AsLogical(ScalarStr("TRUE")))
	assert.Equal(t, LglNA, AsLogical(ScalarStr("banana")))
	assert.Equal(t, LglNA, AsLogical(Nil))
	assert.Equal(t, LglNA, AsLogical(NewLglVector(nil)))
}

func TestIsObject(t *testing.T) {
	v := ScalarInt(1)
	assert.False(t, IsObject(v))
	v.SetAttr(ClassSym, ScalarStr("foo"))
	assert.True(t, IsObject(v))
	v.SetAttr(ClassSym, Nil)
	assert.False(t, IsObject(v))
}

func TestExtract2Default(t *testing.T) {
	x := NewRealVector([]float64{1, 2, 3})
	v, err := Extract2Default(x, ScalarInt(2))
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.(*RealVector).Real(0))

	_, err = Extract2Default(x, ScalarInt(5))
	assert.EqualError(t, err, "subscript out of bounds")

	l := NewList([]Value{ScalarInt(10), ScalarStr("y")})
	l.SetAttr(NamesSym, NewStrVector([]string{"a", "b"}))
	v, err = Extract2Default(l, ScalarStr("b"))
	require.NoError(t, err)
	assert.Equal(t, "y", v.(*StrVector).Str(0))
}

func TestSubsetDefaultOutOfBounds(t *testing.T) {
	x := NewIntVector([]int{1, 2})
	v, err := SubsetDefault(x, ScalarInt(5))
	require.NoError(t, err)
	assert.Equal(t, IntNA, v.(*IntVector).Int(0))
}

func TestSetByNameCopiesShared(t *testing.T) {
	inner := NewList([]Value{ScalarReal(1)})
	inner.SetAttr(NamesSym, ScalarStr("b"))
	SetNamed(inner, 2)

	out, err := SetByName(inner, "b", ScalarReal(2))
	require.NoError(t, err)
	require.NotSame(t, inner, out)
	assert.Equal(t, 1.0, inner.Elem(0).(*RealVector).Real(0))
	assert.Equal(t, 2.0, out.(*List).Elem(0).(*RealVector).Real(0))
}

func TestQuoteIfAST(t *testing.T) {
	lang := NewLang(Install("f"), Nil)
	wrapped := QuoteIfAST(lang)
	assert.Equal(t, Value(QuoteSym), Car(wrapped))
	assert.Equal(t, Value(lang), Cadr(wrapped))

	v := ScalarInt(1)
	assert.Equal(t, Value(v), QuoteIfAST(v))
}
