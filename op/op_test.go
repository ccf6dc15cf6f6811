package op

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoTable(t *testing.T) {
	named := []Code{
		Push, LdFun, LdVar, LdDdVar, PushCode, MkProm, Force, Call, CallStack,
		Dispatch, Br, BrTrue, BrFalse, BrObj, BeginLoop, EndContext, Ret, Pop,
		Dup, Dup2, Swap, Pick, Put, AsBool, AsLogical, LglAnd, LglOr, Is,
		StVar, Lt, Add, Sub, Inc, Extract1, Subset1, Invisible, Uniq, AsAst,
		IsFun, IsSpecial,
	}
	for _, c := range named {
		info := GetInfo(c)
		require.NotEmpty(t, info.Name, "opcode %d has no info", c)
		require.Equal(t, c, info.Code)
		assert.True(t, Valid(c))
	}
	assert.False(t, Valid(Invalid))
	assert.False(t, Valid(Code(200)))
}

func TestInstructionSizes(t *testing.T) {
	assert.Equal(t, 1, GetInfo(Dup).Size())
	assert.Equal(t, 5, GetInfo(Push).Size())
	assert.Equal(t, 9, GetInfo(Call).Size())
	assert.Equal(t, 9, GetInfo(CallStack).Size())
	assert.Equal(t, 13, GetInfo(Dispatch).Size())
	assert.Equal(t, 9, GetInfo(IsSpecial).Size())
}

func TestStackEffect(t *testing.T) {
	pops, pushes := StackEffect(Dup, nil)
	assert.Equal(t, 1, pops)
	assert.Equal(t, 2, pushes)

	pops, pushes = StackEffect(Call, []int32{0, 0})
	assert.Equal(t, 1, pops)
	assert.Equal(t, 1, pushes)

	// CallStack pops its arguments plus the callee beneath them.
	pops, pushes = StackEffect(CallStack, []int32{3, 0})
	assert.Equal(t, 4, pops)
	assert.Equal(t, 1, pushes)
}

func TestJumpOperands(t *testing.T) {
	for _, c := range []Code{Br, BrTrue, BrFalse, BrObj, BeginLoop} {
		info := GetInfo(c)
		require.Len(t, info.Operands, 1)
		assert.Equal(t, JumpOff, info.Operands[0])
	}
	guard := GetInfo(IsSpecial)
	require.Len(t, guard.Operands, 2)
	assert.Equal(t, PoolIdx, guard.Operands[0])
	assert.Equal(t, JumpOff, guard.Operands[1])
}
