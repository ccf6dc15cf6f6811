package sexp

import "strings"

// Pair is a single pair-list cell with an optional tag.
type Pair struct {
	attrib
	car Value
	cdr Value
	tag *Symbol
}

// Cons builds a pair-list cell.
func Cons(car, cdr Value) *Pair {
	return &Pair{car: car, cdr: cdr}
}

// ConsTag builds a tagged pair-list cell.
func ConsTag(car, cdr Value, tag *Symbol) *Pair {
	return &Pair{car: car, cdr: cdr, tag: tag}
}

func (p *Pair) Kind() Kind { return PairKind }

func (p *Pair) Car() Value   { return p.car }
func (p *Pair) Cdr() Value   { return p.cdr }
func (p *Pair) Tag() *Symbol { return p.tag }

func (p *Pair) SetCar(v Value)   { p.car = v }
func (p *Pair) SetCdr(v Value)   { p.cdr = v }
func (p *Pair) SetTag(t *Symbol) { p.tag = t }

func (p *Pair) String() string { return deparseList(p, "pairlist") }

// Lang is a language call node: a pair list whose head is the callee.
type Lang struct {
	Pair
}

// NewLang builds a call node with the given head and argument list.
func NewLang(fn Value, args Value) *Lang {
	l := &Lang{}
	l.car = fn
	l.cdr = args
	return l
}

func (l *Lang) Kind() Kind { return CallKind }

func (l *Lang) String() string {
	var sb strings.Builder
	sb.WriteString(l.car.String())
	sb.WriteString("(")
	first := true
	for it := l.cdr; !IsNil(it); {
		cell, ok := pairCell(it)
		if !ok {
			break
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		if cell.Tag() != nil {
			sb.WriteString(cell.Tag().Name())
			sb.WriteString(" = ")
		}
		sb.WriteString(cell.Car().String())
		it = cell.Cdr()
	}
	sb.WriteString(")")
	return sb.String()
}

// Dots is the value bound to "...": a pair list of pending (usually
// promise-valued) arguments carrying their tags.
type Dots struct {
	Pair
}

// NewDots wraps a pair list of pending arguments as a dots value.
func NewDots(list Value) *Dots {
	d := &Dots{}
	if p, ok := pairCell(list); ok {
		d.car = p.Car()
		d.cdr = p.Cdr()
		d.tag = p.Tag()
	}
	return d
}

func (d *Dots) Kind() Kind     { return DotsKind }
func (d *Dots) String() string { return "..." }

// QuoteIfAST wraps language and symbol values in quote(...) so they can be
// embedded in a call without being re-evaluated.
func QuoteIfAST(v Value) Value {
	switch v.(type) {
	case *Lang, *Symbol:
		return NewLang(QuoteSym, Cons(v, Nil))
	}
	return v
}

// pairCell extracts the cell behind any pair-shaped value.
func pairCell(v Value) (*Pair, bool) {
	switch v := v.(type) {
	case *Pair:
		return v, true
	case *Lang:
		return &v.Pair, true
	case *Dots:
		return &v.Pair, true
	}
	return nil, false
}

// Car returns the head of a pair-shaped value, or nil-value.
func Car(v Value) Value {
	if c, ok := pairCell(v); ok {
		return c.Car()
	}
	return Nil
}

// Cdr returns the tail of a pair-shaped value, or nil-value.
func Cdr(v Value) Value {
	if c, ok := pairCell(v); ok {
		return c.Cdr()
	}
	return Nil
}

// Tag returns the tag of a pair-shaped value, or nil.
func Tag(v Value) *Symbol {
	if c, ok := pairCell(v); ok {
		return c.Tag()
	}
	return nil
}

// Cadr returns the second element of a pair-shaped value.
func Cadr(v Value) Value { return Car(Cdr(v)) }

// Caddr returns the third element of a pair-shaped value.
func Caddr(v Value) Value { return Car(Cdr(Cdr(v))) }

// ListLength returns the number of cells in a pair list.
func ListLength(v Value) int {
	n := 0
	for !IsNil(v) {
		c, ok := pairCell(v)
		if !ok {
			break
		}
		n++
		v = c.Cdr()
	}
	return n
}

// ListElem returns the i-th (0-based) cell of a pair list, or nil.
func ListElem(v Value, i int) *Pair {
	for ; i > 0; i-- {
		v = Cdr(v)
	}
	c, _ := pairCell(v)
	return c
}

// ListBuilder accumulates a pair list front to back.
type ListBuilder struct {
	head Value
	last *Pair
}

// NewListBuilder returns an empty builder.
func NewListBuilder() *ListBuilder {
	return &ListBuilder{head: Nil}
}

// Append adds a tagged cell at the end of the list.
func (b *ListBuilder) Append(v Value, tag *Symbol) {
	cell := ConsTag(v, Nil, tag)
	if b.last == nil {
		b.head = cell
	} else {
		b.last.SetCdr(cell)
	}
	b.last = cell
}

// List returns the accumulated pair list.
func (b *ListBuilder) List() Value { return b.head }

// Len returns the number of appended cells.
func (b *ListBuilder) Len() int { return ListLength(b.head) }

// ShallowDuplicateCall copies the spine of a call so that its cells can be
// rewritten without mutating the original.
func ShallowDuplicateCall(call *Lang) *Lang {
	dup := NewLang(call.Car(), Nil)
	b := NewListBuilder()
	for it := call.Cdr(); !IsNil(it); it = Cdr(it) {
		b.Append(Car(it), Tag(it))
	}
	dup.SetCdr(b.List())
	return dup
}

func deparseList(v Value, kind string) string {
	var sb strings.Builder
	sb.WriteString(kind)
	sb.WriteString("(")
	first := true
	for it := Value(v); !IsNil(it); it = Cdr(it) {
		if _, ok := pairCell(it); !ok {
			break
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		if t := Tag(it); t != nil {
			sb.WriteString(t.Name())
			sb.WriteString(" = ")
		}
		sb.WriteString(Car(it).String())
	}
	sb.WriteString(")")
	return sb.String()
}
