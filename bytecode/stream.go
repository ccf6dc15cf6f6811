package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/deepnoodle-ai/riv/op"
)

// Label identifies a jump target within a code stream. Labels may be
// referenced before they are bound; the referencing offsets are recorded as
// patch points and resolved when the stream is finalized.
type Label int

const unbound = -1

// CodeStream is a streaming builder for a single code object. It interleaves
// encoded instructions with their source-pool keys and resolves forward
// jumps through patch points.
type CodeStream struct {
	ops     []byte
	srcIdx  []uint32
	labels  []int           // label -> bound byte offset, or unbound
	patches map[Label][]int // label -> offsets of 4-byte operands to patch
	src     uint32
}

// NewCodeStream creates a builder for an expression whose source-pool key is
// srcKey.
func NewCodeStream(srcKey uint32) *CodeStream {
	return &CodeStream{patches: map[Label][]int{}, src: srcKey}
}

// MkLabel creates a fresh, unbound label.
func (cs *CodeStream) MkLabel() Label {
	cs.labels = append(cs.labels, unbound)
	return Label(len(cs.labels) - 1)
}

// Bind binds the label to the current position.
func (cs *CodeStream) Bind(l Label) {
	if cs.labels[l] != unbound {
		panic(fmt.Sprintf("bytecode: label %d bound twice", l))
	}
	cs.labels[l] = len(cs.ops)
}

// Pos returns the current byte offset, which is where the next instruction
// will be emitted.
func (cs *CodeStream) Pos() int { return len(cs.ops) }

// Emit appends an instruction with plain immediates. Jump instructions must
// use EmitJump so their offsets go through label resolution.
func (cs *CodeStream) Emit(code op.Code, imms ...int32) {
	info := op.GetInfo(code)
	if len(imms) != len(info.Operands) {
		panic(fmt.Sprintf("bytecode: %s takes %d operands, got %d",
			info.Name, len(info.Operands), len(imms)))
	}
	cs.ops = append(cs.ops, byte(code))
	for _, imm := range imms {
		var buf [op.OperandWidth]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(imm))
		cs.ops = append(cs.ops, buf[:]...)
	}
	cs.srcIdx = append(cs.srcIdx, 0)
}

// EmitJump appends a jump instruction targeting the given label, recording a
// patch point if the label is not bound yet.
func (cs *CodeStream) EmitJump(code op.Code, l Label) {
	info := op.GetInfo(code)
	if len(info.Operands) != 1 || info.Operands[0] != op.JumpOff {
		panic(fmt.Sprintf("bytecode: %s is not a jump", info.Name))
	}
	cs.ops = append(cs.ops, byte(code))
	pos := len(cs.ops)
	cs.ops = append(cs.ops, 0, 0, 0, 0)
	cs.patches[l] = append(cs.patches[l], pos)
	cs.srcIdx = append(cs.srcIdx, 0)
}

// EmitGuard appends an isspecial guard naming the guarded binding and the
// side-exit target taken when the binding has been shadowed.
func (cs *CodeStream) EmitGuard(poolIdx int32, l Label) {
	cs.ops = append(cs.ops, byte(op.IsSpecial))
	var buf [op.OperandWidth]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(poolIdx))
	cs.ops = append(cs.ops, buf[:]...)
	pos := len(cs.ops)
	cs.ops = append(cs.ops, 0, 0, 0, 0)
	cs.patches[l] = append(cs.patches[l], pos)
	cs.srcIdx = append(cs.srcIdx, 0)
}

// AddSrc attaches a source-pool key to the most recently emitted
// instruction.
func (cs *CodeStream) AddSrc(key uint32) {
	if len(cs.srcIdx) == 0 {
		panic("bytecode: no instruction to attach a source to")
	}
	cs.srcIdx[len(cs.srcIdx)-1] = key
}

// Finalize resolves every patch point, computes the stack-depth bound, and
// attaches the resulting immutable code object to fn as a promise body,
// returning its index.
func (cs *CodeStream) Finalize(fn *FunctionObject) int {
	return fn.Attach(cs.finish())
}

// FinalizeEntry is Finalize for the entry body, which installs into the
// reserved index 0.
func (cs *CodeStream) FinalizeEntry(fn *FunctionObject) {
	fn.SetEntry(cs.finish())
}

func (cs *CodeStream) finish() *CodeObject {
	for l, positions := range cs.patches {
		target := cs.labels[l]
		if target == unbound {
			panic(fmt.Sprintf("bytecode: label %d never bound", l))
		}
		for _, pos := range positions {
			// Offsets are relative to the byte after the full instruction,
			// which for a jump is the byte after its single operand.
			off := int32(target - (pos + op.OperandWidth))
			binary.LittleEndian.PutUint32(cs.ops[pos:], uint32(off))
		}
	}
	c := &CodeObject{
		ops:    cs.ops,
		srcIdx: cs.srcIdx,
		src:    cs.src,
	}
	c.stackDepth = computeStackDepth(c)
	return c
}

// computeStackDepth abstract-interprets the instruction stream, tracking the
// stack height along every path and taking the maximum over branch
// successors. The result is a conservative upper bound on stack growth.
func computeStackDepth(c *CodeObject) int {
	depthAt := map[int]int{}
	peak := 0
	type item struct{ pc, depth int }
	work := []item{{0, 0}}
	for len(work) > 0 {
		it := work[len(work)-1]
		work = work[:len(work)-1]
		pc, depth := it.pc, it.depth
		for pc < len(c.ops) {
			if seen, ok := depthAt[pc]; ok && seen >= depth {
				break
			}
			depthAt[pc] = depth
			code := op.Code(c.ops[pc])
			info := op.GetInfo(code)
			var imms []int32
			for i := range info.Operands {
				imms = append(imms, c.ImmAt(pc, i))
			}
			pops, pushes := op.StackEffect(code, imms)
			// A transient high-water mark can occur mid-instruction, but
			// pops precede pushes for every opcode in the set.
			depth = depth - pops + pushes
			if depth > peak {
				peak = depth
			}
			next := pc + info.Size()
			switch code {
			case op.Ret:
				pc = len(c.ops)
				continue
			case op.Br:
				pc = next + int(imms[0])
				continue
			case op.BrTrue, op.BrFalse, op.BrObj, op.BeginLoop:
				work = append(work, item{next + int(imms[0]), depth})
			case op.IsSpecial:
				// The side exit pushes the dynamic call result.
				work = append(work, item{next + int(imms[1]), depth + 1})
			}
			pc = next
		}
	}
	return peak
}
