// Package dis renders compiled code objects as readable assembly listings.
package dis

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/deepnoodle-ai/riv/bytecode"
	"github.com/deepnoodle-ai/riv/op"
	"github.com/deepnoodle-ai/riv/pool"
)

var (
	opColor      = color.New(color.FgCyan)
	operandColor = color.New(color.FgYellow)
	commentColor = color.New(color.FgHiBlack)
)

// Function writes a listing of every code body in the function object.
func Function(w io.Writer, fn *bytecode.FunctionObject, consts *pool.Pool) {
	for i := 0; i < fn.NumCodes(); i++ {
		if i == 0 {
			fmt.Fprintf(w, "entry:\n")
		} else {
			fmt.Fprintf(w, "promise %d:\n", i)
		}
		Code(w, fn.CodeAt(i), consts)
	}
}

// Code writes a listing of a single code body. Pool-indexed operands are
// annotated with the deparsed constant.
func Code(w io.Writer, c *bytecode.CodeObject, consts *pool.Pool) {
	ops := c.Ops()
	for pc := 0; pc < len(ops); {
		code := op.Code(ops[pc])
		info := op.GetInfo(code)
		if info.Name == "" {
			fmt.Fprintf(w, "%6d  ??? (%d)\n", pc, code)
			return
		}
		fmt.Fprintf(w, "%6d  %s", pc, opColor.Sprintf("%-12s", info.Name))
		for i, kind := range info.Operands {
			imm := c.ImmAt(pc, i)
			switch kind {
			case op.PoolIdx:
				fmt.Fprintf(w, " %s", operandColor.Sprintf("%d", imm))
				if consts != nil {
					fmt.Fprintf(w, " %s", commentColor.Sprintf("# %s", consts.Get(uint32(imm)).String()))
				}
			case op.JumpOff:
				target := pc + info.Size() + int(imm)
				fmt.Fprintf(w, " %s", operandColor.Sprintf("-> %d", target))
			default:
				fmt.Fprintf(w, " %s", operandColor.Sprintf("%d", imm))
			}
		}
		fmt.Fprintln(w)
		pc += info.Size()
	}
}
