package dis_test

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/riv/compiler"
	"github.com/deepnoodle-ai/riv/dis"
	"github.com/deepnoodle-ai/riv/internal/rtest"
	"github.com/deepnoodle-ai/riv/pool"
)

func TestDisassembleFunction(t *testing.T) {
	color.NoColor = true

	consts := pool.New()
	srcs := pool.New()
	c := compiler.New(consts, srcs)
	fn, err := c.CompileExpr(rtest.Call("f", rtest.Sym("x")))
	require.NoError(t, err)

	var buf bytes.Buffer
	dis.Function(&buf, fn, consts)
	out := buf.String()

	assert.Contains(t, out, "entry:")
	assert.Contains(t, out, "promise 1:")
	assert.Contains(t, out, "ldfun")
	assert.Contains(t, out, "call")
	assert.Contains(t, out, "ldvar")
	assert.Contains(t, out, "ret")
	assert.Contains(t, out, "# f")
}

func TestDisassembleJumpTargets(t *testing.T) {
	color.NoColor = true

	consts := pool.New()
	srcs := pool.New()
	c := compiler.New(consts, srcs)
	fn, err := c.CompileExpr(rtest.Call("while", rtest.Lgl(true), rtest.Real(1)))
	require.NoError(t, err)

	var buf bytes.Buffer
	dis.Code(&buf, fn.Entry(), consts)
	out := buf.String()

	assert.Contains(t, out, "beginloop")
	assert.Contains(t, out, "-> ")
	assert.Contains(t, out, "endcontext")
}
