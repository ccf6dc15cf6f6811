package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/riv/sexp"
)

func TestReservedNilSlot(t *testing.T) {
	p := New()
	assert.Equal(t, 1, p.Size())
	assert.Equal(t, sexp.Nil, p.Get(0))
}

func TestInsertAndGet(t *testing.T) {
	p := New()
	sym := sexp.Install("x")
	idx := p.Insert(sym)
	require.NotZero(t, idx)
	assert.Equal(t, sexp.Value(sym), p.Get(idx))
}

func TestNumericDedup(t *testing.T) {
	p := New()
	a := p.InsertInt(42)
	b := p.InsertInt(42)
	c := p.InsertInt(43)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	x := p.InsertReal(1.5)
	y := p.InsertReal(1.5)
	assert.Equal(t, x, y)

	iv := p.Get(a).(*sexp.IntVector)
	assert.Equal(t, 42, iv.Int(0))
	rv := p.Get(x).(*sexp.RealVector)
	assert.Equal(t, 1.5, rv.Real(0))
}

func TestAppendOnly(t *testing.T) {
	p := New()
	var last uint32
	for i := 0; i < 100; i++ {
		idx := p.Insert(sexp.ScalarStr("v"))
		require.Greater(t, idx, last)
		last = idx
	}
	assert.Equal(t, 101, p.Size())
}
