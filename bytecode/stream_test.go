package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/riv/op"
)

func newEntry(build func(cs *CodeStream)) *CodeObject {
	fn := NewFunctionObject()
	fn.ReserveEntry()
	cs := NewCodeStream(0)
	build(cs)
	cs.FinalizeEntry(fn)
	return fn.Entry()
}

func TestEmitAndDecode(t *testing.T) {
	c := newEntry(func(cs *CodeStream) {
		cs.Emit(op.Push, 7)
		cs.Emit(op.Dup)
		cs.Emit(op.Pop)
		cs.Emit(op.Ret)
	})
	require.Equal(t, 4, c.InstructionCount())
	assert.Equal(t, op.Push, c.OpAt(0))
	assert.Equal(t, int32(7), c.ImmAt(0, 0))
	assert.Equal(t, op.Dup, c.OpAt(5))
	assert.Equal(t, op.Pop, c.OpAt(6))
	assert.Equal(t, op.Ret, c.OpAt(7))

	assert.Equal(t, 0, c.InstructionIndex(0))
	assert.Equal(t, 1, c.InstructionIndex(5))
	assert.Equal(t, 3, c.InstructionIndex(7))
}

func TestForwardJumpPatching(t *testing.T) {
	c := newEntry(func(cs *CodeStream) {
		cs.Emit(op.Push, 1)
		end := cs.MkLabel()
		cs.EmitJump(op.BrTrue, end) // at 5, operand at 6, next at 10
		cs.Emit(op.Push, 2)         // at 10
		cs.Bind(end)                // at 15
		cs.Emit(op.Push, 3)
		cs.Emit(op.Ret)
	})
	// Offset is relative to the byte after the jump instruction.
	assert.Equal(t, int32(5), c.ImmAt(5, 0))
}

func TestBackwardJumpPatching(t *testing.T) {
	c := newEntry(func(cs *CodeStream) {
		loop := cs.MkLabel()
		cs.Bind(loop) // at 0
		cs.Emit(op.Push, 1)
		cs.Emit(op.Pop)
		cs.EmitJump(op.Br, loop) // at 6, next at 11
		cs.Emit(op.Push, 2)
		cs.Emit(op.Ret)
	})
	assert.Equal(t, int32(-11), c.ImmAt(6, 0))
}

func TestSourceIndexTable(t *testing.T) {
	c := newEntry(func(cs *CodeStream) {
		cs.Emit(op.Push, 1)
		cs.AddSrc(42)
		cs.Emit(op.Ret)
	})
	assert.Equal(t, uint32(42), c.SrcKeyAt(0))
	assert.Equal(t, uint32(42), c.SrcKeyAtPC(0))
	// Instructions with no recorded key fall back to the expression key.
	assert.Equal(t, c.SourceKey(), c.SrcKeyAt(1))
}

func TestStackDepthStraightLine(t *testing.T) {
	c := newEntry(func(cs *CodeStream) {
		cs.Emit(op.Push, 1)
		cs.Emit(op.Push, 2)
		cs.Emit(op.Push, 3)
		cs.Emit(op.Pop)
		cs.Emit(op.Pop)
		cs.Emit(op.Ret)
	})
	assert.Equal(t, 3, c.StackDepth())
}

func TestStackDepthBranches(t *testing.T) {
	// One arm pushes two extra values, the other one; the bound is the max.
	c := newEntry(func(cs *CodeStream) {
		cs.Emit(op.Push, 1)
		deep := cs.MkLabel()
		done := cs.MkLabel()
		cs.EmitJump(op.BrTrue, deep)
		cs.Emit(op.Push, 2)
		cs.EmitJump(op.Br, done)
		cs.Bind(deep)
		cs.Emit(op.Push, 3)
		cs.Emit(op.Push, 4)
		cs.Emit(op.Pop)
		cs.Bind(done)
		cs.Emit(op.Ret)
	})
	assert.Equal(t, 2, c.StackDepth())
}

func TestStackDepthLoop(t *testing.T) {
	c := newEntry(func(cs *CodeStream) {
		loop := cs.MkLabel()
		next := cs.MkLabel()
		cs.EmitJump(op.BeginLoop, next)
		cs.Bind(loop)
		cs.Emit(op.Push, 1)
		cs.Emit(op.AsBool)
		cs.EmitJump(op.BrFalse, next)
		cs.Emit(op.Push, 2)
		cs.Emit(op.Pop)
		cs.EmitJump(op.Br, loop)
		cs.Bind(next)
		cs.Emit(op.EndContext)
		cs.Emit(op.Push, 0)
		cs.Emit(op.Invisible)
		cs.Emit(op.Ret)
	})
	// Frame marker plus one working value.
	assert.Equal(t, 2, c.StackDepth())
	require.NoError(t, verifyCode(c))
}

func TestUnboundLabelPanics(t *testing.T) {
	fn := NewFunctionObject()
	fn.ReserveEntry()
	cs := NewCodeStream(0)
	l := cs.MkLabel()
	cs.EmitJump(op.Br, l)
	assert.Panics(t, func() { cs.FinalizeEntry(fn) })
}

func TestDoubleBindPanics(t *testing.T) {
	cs := NewCodeStream(0)
	l := cs.MkLabel()
	cs.Bind(l)
	assert.Panics(t, func() { cs.Bind(l) })
}

func TestVerifyCleanCode(t *testing.T) {
	fn := NewFunctionObject()
	fn.ReserveEntry()
	cs := NewCodeStream(0)
	cs.Emit(op.Push, 1)
	cs.Emit(op.Ret)
	cs.FinalizeEntry(fn)

	ps := NewCodeStream(3)
	ps.Emit(op.Push, 2)
	ps.Emit(op.Ret)
	idx := ps.Finalize(fn)
	assert.Equal(t, 1, idx)

	require.NoError(t, Verify(fn))
}

func TestVerifyCatchesMissingRet(t *testing.T) {
	c := newEntry(func(cs *CodeStream) {
		cs.Emit(op.Push, 1)
		cs.Emit(op.Pop)
	})
	assert.Error(t, verifyCode(c))
}

func TestVerifyCatchesUnderstatedDepth(t *testing.T) {
	c := newEntry(func(cs *CodeStream) {
		cs.Emit(op.Push, 1)
		cs.Emit(op.Push, 2)
		cs.Emit(op.Pop)
		cs.Emit(op.Ret)
	})
	c.stackDepth = 1
	assert.Error(t, verifyCode(c))
}

func TestVerifyCatchesUnbalancedLoop(t *testing.T) {
	c := newEntry(func(cs *CodeStream) {
		next := cs.MkLabel()
		cs.EmitJump(op.BeginLoop, next)
		cs.Bind(next)
		// No endcontext before returning.
		cs.Emit(op.Push, 1)
		cs.Emit(op.Ret)
	})
	assert.Error(t, verifyCode(c))
}
