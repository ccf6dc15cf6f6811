package sexp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Lgl is a three-valued logical: 0, 1, or NA.
type Lgl int32

// LglNA is the logical missing value.
const LglNA Lgl = math.MinInt32

// IntNA is the integer missing value.
const IntNA int = math.MinInt32

// LglVector is a vector of three-valued logicals.
type LglVector struct {
	attrib
	vals []Lgl
}

// NewLglVector wraps a slice of logicals.
func NewLglVector(vals []Lgl) *LglVector { return &LglVector{vals: vals} }

// ScalarLgl builds a length-one logical vector.
func ScalarLgl(b bool) *LglVector {
	if b {
		return &LglVector{vals: []Lgl{1}}
	}
	return &LglVector{vals: []Lgl{0}}
}

func (v *LglVector) Kind() Kind    { return LglKind }
func (v *LglVector) Len() int      { return len(v.vals) }
func (v *LglVector) Lgl(i int) Lgl { return v.vals[i] }
func (v *LglVector) Values() []Lgl { return v.vals }

func (v *LglVector) String() string {
	parts := make([]string, len(v.vals))
	for i, x := range v.vals {
		switch x {
		case LglNA:
			parts[i] = "NA"
		case 0:
			parts[i] = "FALSE"
		default:
			parts[i] = "TRUE"
		}
	}
	return strings.Join(parts, " ")
}

// Shared singleton results for condition tests. AsBool pushes exactly these
// values, so branch instructions may compare by identity.
var (
	True    = &LglVector{vals: []Lgl{1}, attrib: attrib{named: 2}}
	False   = &LglVector{vals: []Lgl{0}, attrib: attrib{named: 2}}
	NAValue = &LglVector{vals: []Lgl{LglNA}, attrib: attrib{named: 2}}
)

// IntVector is a vector of integers.
type IntVector struct {
	attrib
	vals []int
}

// NewIntVector wraps a slice of ints.
func NewIntVector(vals []int) *IntVector { return &IntVector{vals: vals} }

// ScalarInt builds a length-one integer vector.
func ScalarInt(n int) *IntVector { return &IntVector{vals: []int{n}} }

func (v *IntVector) Kind() Kind      { return IntKind }
func (v *IntVector) Len() int        { return len(v.vals) }
func (v *IntVector) Int(i int) int   { return v.vals[i] }
func (v *IntVector) SetInt(i, n int) { v.vals[i] = n }
func (v *IntVector) Values() []int   { return v.vals }

func (v *IntVector) String() string {
	parts := make([]string, len(v.vals))
	for i, x := range v.vals {
		if x == IntNA {
			parts[i] = "NA"
		} else {
			parts[i] = strconv.Itoa(x) + "L"
		}
	}
	return strings.Join(parts, " ")
}

// RealVector is a vector of doubles.
type RealVector struct {
	attrib
	vals []float64
}

// NewRealVector wraps a slice of doubles.
func NewRealVector(vals []float64) *RealVector { return &RealVector{vals: vals} }

// ScalarReal builds a length-one double vector.
func ScalarReal(f float64) *RealVector { return &RealVector{vals: []float64{f}} }

func (v *RealVector) Kind() Kind            { return RealKind }
func (v *RealVector) Len() int              { return len(v.vals) }
func (v *RealVector) Real(i int) float64    { return v.vals[i] }
func (v *RealVector) SetReal(i int, f float64) { v.vals[i] = f }
func (v *RealVector) Values() []float64     { return v.vals }

func (v *RealVector) String() string {
	parts := make([]string, len(v.vals))
	for i, x := range v.vals {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// StrVector is a vector of strings.
type StrVector struct {
	attrib
	vals []string
}

// NewStrVector wraps a slice of strings.
func NewStrVector(vals []string) *StrVector { return &StrVector{vals: vals} }

// ScalarStr builds a length-one character vector.
func ScalarStr(s string) *StrVector { return &StrVector{vals: []string{s}} }

func (v *StrVector) Kind() Kind          { return StrKind }
func (v *StrVector) Len() int            { return len(v.vals) }
func (v *StrVector) Str(i int) string    { return v.vals[i] }
func (v *StrVector) Values() []string    { return v.vals }

func (v *StrVector) String() string {
	parts := make([]string, len(v.vals))
	for i, x := range v.vals {
		parts[i] = fmt.Sprintf("%q", x)
	}
	return strings.Join(parts, " ")
}

// List is a generic vector. Element names, when present, live in the names
// attribute, parallel to the elements.
type List struct {
	attrib
	vals []Value
}

// NewList wraps a slice of values.
func NewList(vals []Value) *List { return &List{vals: vals} }

func (v *List) Kind() Kind          { return ListKind }
func (v *List) Len() int            { return len(v.vals) }
func (v *List) Elem(i int) Value    { return v.vals[i] }
func (v *List) SetElem(i int, x Value) { v.vals[i] = x }
func (v *List) Values() []Value     { return v.vals }

// Names returns the names attribute as a string vector, or nil.
func (v *List) Names() *StrVector {
	n, _ := v.Attr(NamesSym).(*StrVector)
	return n
}

// IndexOfName returns the position of the exactly matching name, or -1.
func (v *List) IndexOfName(name string) int {
	n := v.Names()
	if n == nil {
		return -1
	}
	for i := 0; i < n.Len() && i < len(v.vals); i++ {
		if n.Str(i) == name {
			return i
		}
	}
	return -1
}

func (v *List) String() string {
	parts := make([]string, len(v.vals))
	for i, x := range v.vals {
		parts[i] = x.String()
	}
	return "list(" + strings.Join(parts, ", ") + ")"
}

// Length returns the host-language length of a value.
func Length(v Value) int {
	switch v := v.(type) {
	case *NilValue:
		return 0
	case *LglVector:
		return v.Len()
	case *IntVector:
		return v.Len()
	case *RealVector:
		return v.Len()
	case *StrVector:
		return v.Len()
	case *List:
		return v.Len()
	case *Pair, *Lang, *Dots:
		return ListLength(v)
	case *Env:
		return len(v.vars)
	default:
		return 1
	}
}

// ShallowDuplicate copies the top level of a value. Attributes are copied;
// elements are shared. The copy's reference indicator starts at zero.
func ShallowDuplicate(v Value) Value {
	switch v := v.(type) {
	case *LglVector:
		out := &LglVector{vals: append([]Lgl(nil), v.vals...)}
		out.copyAttrsFrom(&v.attrib)
		return out
	case *IntVector:
		out := &IntVector{vals: append([]int(nil), v.vals...)}
		out.copyAttrsFrom(&v.attrib)
		return out
	case *RealVector:
		out := &RealVector{vals: append([]float64(nil), v.vals...)}
		out.copyAttrsFrom(&v.attrib)
		return out
	case *StrVector:
		out := &StrVector{vals: append([]string(nil), v.vals...)}
		out.copyAttrsFrom(&v.attrib)
		return out
	case *List:
		out := &List{vals: append([]Value(nil), v.vals...)}
		out.copyAttrsFrom(&v.attrib)
		return out
	case *Lang:
		return ShallowDuplicateCall(v)
	case *Pair:
		b := NewListBuilder()
		for it := Value(v); !IsNil(it); it = Cdr(it) {
			b.Append(Car(it), Tag(it))
		}
		return b.List()
	default:
		return v
	}
}
