// Package sexp provides the runtime value types consumed by the riv compiler
// and virtual machine: symbols, pair lists, language calls, vectors,
// closures, builtins, promises, and environments.
//
// Code working with values usually type asserts a sexp.Value to a concrete
// type:
//
//	switch v := v.(type) {
//	case *sexp.RealVector:
//		// do something with v.Real(0)
//	case *sexp.Symbol:
//		// do something with v.Name()
//	}
//
// The Kind() method gives the coarse runtime type, mirroring the host
// language's type tags.
package sexp

// Kind is the coarse runtime type of a value.
type Kind int

const (
	NilKind Kind = iota
	SymKind
	PairKind // pair list
	CallKind // language call
	DotsKind // pending "..." arguments
	LglKind
	IntKind
	RealKind
	StrKind
	ListKind // generic vector
	CloKind
	BuiltinKind
	SpecialKind
	PromKind
	EnvKind
	CodeKind  // compiled code object
	CntxtKind // interpreter frame marker
)

// String returns a display name for the kind.
func (k Kind) String() string {
	switch k {
	case NilKind:
		return "NULL"
	case SymKind:
		return "symbol"
	case PairKind:
		return "pairlist"
	case CallKind:
		return "language"
	case DotsKind:
		return "..."
	case LglKind:
		return "logical"
	case IntKind:
		return "integer"
	case RealKind:
		return "double"
	case StrKind:
		return "character"
	case ListKind:
		return "list"
	case CloKind:
		return "closure"
	case BuiltinKind:
		return "builtin"
	case SpecialKind:
		return "special"
	case PromKind:
		return "promise"
	case EnvKind:
		return "environment"
	case CodeKind:
		return "bytecode"
	case CntxtKind:
		return "context"
	default:
		return "unknown"
	}
}

// Value is the interface implemented by every runtime value.
type Value interface {
	Kind() Kind
	String() string
}

// NilValue is the empty pair list and the distinguished null value.
type NilValue struct{}

// Nil is the single null value.
var Nil = &NilValue{}

func (n *NilValue) Kind() Kind     { return NilKind }
func (n *NilValue) String() string { return "NULL" }

// CodeValue is implemented by compiled code objects so that they can stand in
// as ordinary values (promise bodies, quoted code).
type CodeValue interface {
	Value
	SourceKey() uint32
}

// IsNil reports whether v is the null value.
func IsNil(v Value) bool { return v == nil || v.Kind() == NilKind }

// IsFunction reports whether v is callable: a closure, builtin, or special.
func IsFunction(v Value) bool {
	switch v.Kind() {
	case CloKind, BuiltinKind, SpecialKind:
		return true
	}
	return false
}

// IsObject reports whether v carries a class attribute.
func IsObject(v Value) bool {
	if a, ok := v.(Attributed); ok {
		return !IsNil(a.Attr(ClassSym))
	}
	return false
}

// IsS4 reports whether v is flagged as a formal (S4) object.
func IsS4(v Value) bool {
	if a, ok := v.(attributed); ok {
		return a.isS4()
	}
	return false
}
