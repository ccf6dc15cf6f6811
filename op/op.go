// Package op defines opcodes used by the riv compiler and virtual machine.
package op

// Code is a one-byte opcode that indicates an operation to execute.
type Code byte

const (
	Invalid Code = 0

	// Constants and loads
	Push     Code = 1 // push a constant-pool value
	LdFun    Code = 2 // resolve a symbol as a function, push it
	LdVar    Code = 3 // ordinary variable lookup, forcing promises
	LdDdVar  Code = 4 // variadic-positional (..N) lookup
	PushCode Code = 5 // push a nested code object as a value

	// Promises
	MkProm Code = 10 // build a promise from a nested code object and env
	Force  Code = 11 // force the promise on top of the stack

	// Calls
	Call      Code = 20 // call with promise-indexed arguments
	CallStack Code = 21 // call with arguments already on the stack
	Dispatch  Code = 22 // S4-then-S3-then-call generic dispatch

	// Control
	Br         Code = 30 // unconditional relative jump
	BrTrue     Code = 31 // pop; jump if TRUE
	BrFalse    Code = 32 // pop; jump if FALSE
	BrObj      Code = 33 // jump if TOS has a class attribute (no pop)
	BeginLoop  Code = 34 // install a loop frame; operand is the break target
	EndContext Code = 35 // pop the current frame
	Ret        Code = 36 // terminate evalCode, leaving the result on the stack

	// Stack ops
	Pop  Code = 40
	Dup  Code = 41
	Dup2 Code = 42 // duplicate the top two values
	Swap Code = 43
	Pick Code = 44 // move stack[top-n] to the top
	Put  Code = 45 // inverse of Pick

	// Booleans and type tests
	AsBool    Code = 50 // strict scalar-condition conversion
	AsLogical Code = 51
	LglAnd    Code = 52 // three-valued logical and
	LglOr     Code = 53 // three-valued logical or
	Is        Code = 54 // type predicate

	// Binding
	StVar Code = 60 // pop and define a variable in the current env

	// Fast paths
	Lt       Code = 70 // scalar-real less-than
	Add      Code = 71 // scalar-real addition
	Sub      Code = 72 // scalar-real subtraction
	Inc      Code = 73 // increment an unshared scalar int in place
	Extract1 Code = 74 // [[ with scalar fast path
	Subset1  Code = 75 // [ with scalar fast path

	// Misc
	Invisible Code = 80 // clear the visibility flag
	Uniq      Code = 81 // ensure TOS is unshared
	AsAst     Code = 82 // extract the source AST out of a promise
	IsFun     Code = 83 // assert TOS is callable
	IsSpecial Code = 84 // guard an inlined special form
)

// OperandKind describes the interpretation of a single 4-byte immediate.
type OperandKind int

const (
	PoolIdx OperandKind = iota // constant-pool index
	JumpOff                    // signed jump offset, relative to the next instruction
	CodeIdx                    // index into the function's code objects
	Imm                        // plain immediate integer
)

// OperandWidth is the fixed size in bytes of every immediate operand.
const OperandWidth = 4

// Info describes an opcode: its display name, immediate operands, and its
// static effect on the value stack. Opcodes with a stack effect that depends
// on an operand (CallStack) report Variable and are sized by the caller.
type Info struct {
	Code     Code
	Name     string
	Operands []OperandKind
	Pops     int
	Pushes   int
	Variable bool
}

// Size returns the encoded size of the instruction in bytes.
func (i Info) Size() int {
	return 1 + OperandWidth*len(i.Operands)
}

var infos = make([]Info, 256)

func init() {
	pool := []OperandKind{PoolIdx}
	jump := []OperandKind{JumpOff}
	code := []OperandKind{CodeIdx}
	imm := []OperandKind{Imm}
	ops := []Info{
		{Push, "push", pool, 0, 1, false},
		{LdFun, "ldfun", pool, 0, 1, false},
		{LdVar, "ldvar", pool, 0, 1, false},
		{LdDdVar, "ldddvar", pool, 0, 1, false},
		{PushCode, "push_code", code, 0, 1, false},
		{MkProm, "promise", code, 0, 1, false},
		{Force, "force", nil, 1, 1, false},
		{Call, "call", []OperandKind{PoolIdx, PoolIdx}, 1, 1, false},
		{CallStack, "call_stack", []OperandKind{Imm, PoolIdx}, 0, 1, true},
		{Dispatch, "dispatch", []OperandKind{PoolIdx, PoolIdx, PoolIdx}, 1, 1, false},
		{Br, "br", jump, 0, 0, false},
		{BrTrue, "brtrue", jump, 1, 0, false},
		{BrFalse, "brfalse", jump, 1, 0, false},
		{BrObj, "brobj", jump, 0, 0, false},
		{BeginLoop, "beginloop", jump, 0, 1, false},
		{EndContext, "endcontext", nil, 1, 0, false},
		{Ret, "ret", nil, 1, 0, false},
		{Pop, "pop", nil, 1, 0, false},
		{Dup, "dup", nil, 1, 2, false},
		{Dup2, "dup2", nil, 2, 4, false},
		{Swap, "swap", nil, 2, 2, false},
		{Pick, "pick", imm, 0, 0, false},
		{Put, "put", imm, 0, 0, false},
		{AsBool, "asbool", nil, 1, 1, false},
		{AsLogical, "aslogical", nil, 1, 1, false},
		{LglAnd, "lgl_and", nil, 2, 1, false},
		{LglOr, "lgl_or", nil, 2, 1, false},
		{Is, "is", imm, 1, 1, false},
		{StVar, "stvar", pool, 1, 0, false},
		{Lt, "lt", nil, 2, 1, false},
		{Add, "add", nil, 2, 1, false},
		{Sub, "sub", nil, 2, 1, false},
		{Inc, "inc", nil, 1, 1, false},
		{Extract1, "extract1", nil, 2, 1, false},
		{Subset1, "subset1", nil, 2, 1, false},
		{Invisible, "invisible", nil, 0, 0, false},
		{Uniq, "uniq", nil, 1, 1, false},
		{AsAst, "asast", nil, 1, 1, false},
		{IsFun, "isfun", nil, 0, 0, false},
		// The jump operand is the side exit taken when the guarded binding
		// has been shadowed: the dynamic call result is pushed and control
		// skips the inlined form.
		{IsSpecial, "isspecial", []OperandKind{PoolIdx, JumpOff}, 0, 0, false},
	}
	for _, o := range ops {
		infos[o.Code] = o
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(c Code) Info {
	return infos[c]
}

// Valid reports whether c is a defined opcode.
func Valid(c Code) bool {
	return infos[c].Name != ""
}

// StackEffect returns the number of values an instruction pops and pushes.
// For CallStack the first decoded operand (the argument count) is required;
// it pops its arguments plus the callee beneath them.
func StackEffect(c Code, operands []int32) (pops, pushes int) {
	info := infos[c]
	if c == CallStack {
		return int(operands[0]) + 1, 1
	}
	return info.Pops, info.Pushes
}
