// Package bytecode defines the compiled representation of functions: code
// objects holding a linear instruction stream with per-instruction source
// references, and function objects grouping an entry code body with the
// promise bodies emitted while compiling it.
package bytecode

import (
	"encoding/binary"

	"github.com/gofrs/uuid"

	"github.com/deepnoodle-ai/riv/op"
	"github.com/deepnoodle-ai/riv/sexp"
)

// Argument-index sentinels used in packed call-argument vectors. Values
// below the sentinel range are promise-body indices into the function
// object.
const (
	// MissingArgIdx forwards a missing argument at the call site.
	MissingArgIdx = int(^uint32(0))
	// DotsArgIdx expands "..." at the call site.
	DotsArgIdx = int(^uint32(0) - 1)
)

// CodeObject is an immutable compiled code body: a byte-addressable
// instruction stream, a parallel table mapping instruction ordinals to
// source-pool keys, the conservatively computed peak stack growth, and the
// source-pool key of the whole expression.
type CodeObject struct {
	fn         *FunctionObject
	ops        []byte
	srcIdx     []uint32
	stackDepth int
	src        uint32
}

func (c *CodeObject) Kind() sexp.Kind { return sexp.CodeKind }
func (c *CodeObject) String() string  { return "<bytecode>" }

// SourceKey returns the source-pool key of the expression this code was
// compiled from.
func (c *CodeObject) SourceKey() uint32 { return c.src }

// Function returns the owning function object.
func (c *CodeObject) Function() *FunctionObject { return c.fn }

// Ops returns the raw instruction stream.
func (c *CodeObject) Ops() []byte { return c.ops }

// StackDepth returns the upper bound on value-stack growth during execution.
func (c *CodeObject) StackDepth() int { return c.stackDepth }

// OpAt returns the opcode at the given byte offset.
func (c *CodeObject) OpAt(pc int) op.Code { return op.Code(c.ops[pc]) }

// ImmAt reads the n-th 4-byte immediate of the instruction at pc.
func (c *CodeObject) ImmAt(pc, n int) int32 {
	off := pc + 1 + n*op.OperandWidth
	return int32(binary.LittleEndian.Uint32(c.ops[off:]))
}

// InstructionCount returns the number of instructions in the stream.
func (c *CodeObject) InstructionCount() int { return len(c.srcIdx) }

// InstructionIndex returns the ordinal of the instruction whose opcode byte
// sits at pc, by walking the stream from the start.
func (c *CodeObject) InstructionIndex(pc int) int {
	idx := 0
	for at := 0; at < pc; idx++ {
		at += op.GetInfo(op.Code(c.ops[at])).Size()
	}
	return idx
}

// SrcKeyAt returns the source-pool key recorded for the given instruction
// ordinal, falling back to the whole expression's key when none was
// recorded.
func (c *CodeObject) SrcKeyAt(instr int) uint32 {
	if instr >= 0 && instr < len(c.srcIdx) && c.srcIdx[instr] != 0 {
		return c.srcIdx[instr]
	}
	return c.src
}

// SrcKeyAtPC is SrcKeyAt addressed by the byte offset of the opcode.
func (c *CodeObject) SrcKeyAtPC(pc int) uint32 {
	return c.SrcKeyAt(c.InstructionIndex(pc))
}

// FunctionObject is an ordered collection of code objects realizing one
// compiled closure body. Index 0 is the entry; indices 1 and up are promise
// bodies referenced by promise and push_code instructions.
type FunctionObject struct {
	id        string
	codes     []*CodeObject
	formalIdx []int // promise-body index per formal, MissingArgIdx when absent
}

// NewFunctionObject creates an empty function object with a fresh identity.
func NewFunctionObject() *FunctionObject {
	id, err := uuid.NewV4()
	if err != nil {
		panic(err)
	}
	return &FunctionObject{id: id.String()}
}

func (f *FunctionObject) Kind() sexp.Kind { return sexp.CodeKind }
func (f *FunctionObject) String() string  { return "<compiled function>" }

// ID returns the function object's unique identity.
func (f *FunctionObject) ID() string { return f.id }

// Entry returns the entry code body.
func (f *FunctionObject) Entry() *CodeObject { return f.codes[0] }

// CodeAt returns the code body at the given index.
func (f *FunctionObject) CodeAt(i int) *CodeObject { return f.codes[i] }

// NumCodes returns the number of code bodies, entry included.
func (f *FunctionObject) NumCodes() int { return len(f.codes) }

// ReserveEntry reserves index 0 for the entry body, so that promise bodies
// finalized while the entry is still being compiled take indices 1 and up.
func (f *FunctionObject) ReserveEntry() {
	if len(f.codes) != 0 {
		panic("bytecode: entry slot must be reserved first")
	}
	f.codes = append(f.codes, nil)
}

// SetEntry installs the entry body into the reserved slot.
func (f *FunctionObject) SetEntry(c *CodeObject) {
	c.fn = f
	f.codes[0] = c
}

// Attach appends a finalized promise body and returns its index.
func (f *FunctionObject) Attach(c *CodeObject) int {
	c.fn = f
	f.codes = append(f.codes, c)
	return len(f.codes) - 1
}

// SetFormalIndexes records the promise-body index of each formal's default
// expression.
func (f *FunctionObject) SetFormalIndexes(idx []int) { f.formalIdx = idx }

// FormalIndexes returns the promise-body index per formal.
func (f *FunctionObject) FormalIndexes() []int { return f.formalIdx }
