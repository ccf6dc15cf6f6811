package bytecode

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/deepnoodle-ai/riv/op"
)

// Verify checks the structural invariants of every code body in a function
// object: the instruction stream decodes cleanly, jumps land on instruction
// boundaries, the recorded stack depth bounds the abstract-interpretation
// peak, and loop frames are balanced on every falling-through path. All
// violations are reported together.
func Verify(fn *FunctionObject) error {
	var result *multierror.Error
	for i := 0; i < fn.NumCodes(); i++ {
		c := fn.CodeAt(i)
		if c == nil {
			result = multierror.Append(result, fmt.Errorf("code %d: missing body", i))
			continue
		}
		if err := verifyCode(c); err != nil {
			result = multierror.Append(result, fmt.Errorf("code %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}

func verifyCode(c *CodeObject) error {
	var result *multierror.Error

	// Decode pass: every opcode known, operands in bounds, boundaries exact.
	boundaries := map[int]bool{}
	instrs := 0
	for pc := 0; pc < len(c.ops); {
		boundaries[pc] = true
		code := op.Code(c.ops[pc])
		if !op.Valid(code) {
			return multierror.Append(result,
				fmt.Errorf("invalid opcode %d at %d", code, pc)).ErrorOrNil()
		}
		size := op.GetInfo(code).Size()
		if pc+size > len(c.ops) {
			return multierror.Append(result,
				fmt.Errorf("truncated instruction at %d", pc)).ErrorOrNil()
		}
		instrs++
		pc += size
	}
	if instrs != len(c.srcIdx) {
		result = multierror.Append(result, fmt.Errorf(
			"source index table has %d entries for %d instructions",
			len(c.srcIdx), instrs))
	}
	if len(c.ops) > 0 && c.OpAt(lastInstruction(c, boundaries)) != op.Ret {
		result = multierror.Append(result,
			fmt.Errorf("code does not end in ret"))
	}

	// Jump targets must be instruction boundaries.
	for pc := 0; pc < len(c.ops); {
		code := op.Code(c.ops[pc])
		info := op.GetInfo(code)
		for i, kind := range info.Operands {
			if kind != op.JumpOff {
				continue
			}
			target := pc + info.Size() + int(c.ImmAt(pc, i))
			if target < 0 || target > len(c.ops) || (target < len(c.ops) && !boundaries[target]) {
				result = multierror.Append(result, fmt.Errorf(
					"%s at %d jumps to %d, not an instruction", info.Name, pc, target))
			}
		}
		pc += info.Size()
	}

	// The recorded depth must bound the abstract-interpretation peak.
	if peak := computeStackDepth(c); peak > c.stackDepth {
		result = multierror.Append(result, fmt.Errorf(
			"stack depth %d exceeds recorded bound %d", peak, c.stackDepth))
	}

	if err := verifyLoopBalance(c); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func lastInstruction(c *CodeObject, boundaries map[int]bool) int {
	last := 0
	for pc := range boundaries {
		if pc > last {
			last = pc
		}
	}
	return last
}

// verifyLoopBalance walks every path tracking the number of open loop
// frames; falling off the end or returning with an open frame is a defect,
// since non-local exits are the only sanctioned way to skip an endcontext.
func verifyLoopBalance(c *CodeObject) error {
	seen := map[int]int{}
	type item struct{ pc, open int }
	work := []item{{0, 0}}
	for len(work) > 0 {
		it := work[len(work)-1]
		work = work[:len(work)-1]
		pc, open := it.pc, it.open
		for pc < len(c.ops) {
			if prev, ok := seen[pc]; ok && prev == open {
				break
			}
			seen[pc] = open
			code := op.Code(c.ops[pc])
			info := op.GetInfo(code)
			next := pc + info.Size()
			switch code {
			case op.BeginLoop:
				// The break target runs with the frame still open; it is
				// closed by the endcontext that follows it.
				work = append(work, item{next + int(c.ImmAt(pc, 0)), open + 1})
				open++
			case op.EndContext:
				if open == 0 {
					return fmt.Errorf("endcontext at %d with no open frame", pc)
				}
				open--
			case op.Br:
				pc = next + int(c.ImmAt(pc, 0))
				continue
			case op.BrTrue, op.BrFalse, op.BrObj:
				work = append(work, item{next + int(c.ImmAt(pc, 0)), open})
			case op.IsSpecial:
				work = append(work, item{next + int(c.ImmAt(pc, 1)), open})
			case op.Ret:
				if open != 0 {
					return fmt.Errorf("ret at %d with %d open loop frames", pc, open)
				}
				pc = len(c.ops)
				continue
			}
			pc = next
		}
		if pc >= len(c.ops) && open != 0 {
			return fmt.Errorf("path falls off the end with %d open loop frames", open)
		}
	}
	return nil
}
