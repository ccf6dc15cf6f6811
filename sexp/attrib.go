package sexp

// Attributed is implemented by values that can carry attributes, such as
// names, class, and dim.
type Attributed interface {
	Value
	Attr(name *Symbol) Value
	SetAttr(name *Symbol, v Value)
	Attrs() []AttrEntry
}

// AttrEntry is a single attribute binding.
type AttrEntry struct {
	Name  *Symbol
	Value Value
}

// attributed is the internal mutation surface shared by attribute-carrying
// types, including the NAMED reference indicator and the S4 bit.
type attributed interface {
	Attributed
	Named() int
	SetNamed(n int)
	isS4() bool
	setS4(bool)
}

// attrib is embedded by every attribute-carrying value.
type attrib struct {
	attrs []AttrEntry
	named int
	s4    bool
}

func (a *attrib) Attr(name *Symbol) Value {
	for _, e := range a.attrs {
		if e.Name == name {
			return e.Value
		}
	}
	return Nil
}

func (a *attrib) SetAttr(name *Symbol, v Value) {
	if IsNil(v) {
		for i, e := range a.attrs {
			if e.Name == name {
				a.attrs = append(a.attrs[:i], a.attrs[i+1:]...)
				return
			}
		}
		return
	}
	for i, e := range a.attrs {
		if e.Name == name {
			a.attrs[i].Value = v
			return
		}
	}
	a.attrs = append(a.attrs, AttrEntry{Name: name, Value: v})
}

func (a *attrib) Attrs() []AttrEntry { return a.attrs }
func (a *attrib) Named() int         { return a.named }
func (a *attrib) SetNamed(n int)     { a.named = n }
func (a *attrib) isS4() bool         { return a.s4 }
func (a *attrib) setS4(b bool)       { a.s4 = b }

func (a *attrib) copyAttrsFrom(src *attrib) {
	if len(src.attrs) > 0 {
		a.attrs = make([]AttrEntry, len(src.attrs))
		copy(a.attrs, src.attrs)
	}
	a.s4 = src.s4
}

// Named returns the reference indicator of a value: 0 means unshared, 1
// referenced once, 2 possibly shared. Values without the indicator (symbols,
// nil, callables) report 2, since they must never be mutated in place.
func Named(v Value) int {
	if a, ok := v.(attributed); ok {
		return a.Named()
	}
	return 2
}

// SetNamed sets the reference indicator, on values that carry one.
func SetNamed(v Value, n int) {
	if a, ok := v.(attributed); ok {
		a.SetNamed(n)
	}
}

// IncrementNamed raises the reference indicator one step, to at most 2.
func IncrementNamed(v Value) {
	if a, ok := v.(attributed); ok {
		if n := a.Named(); n < 2 {
			a.SetNamed(n + 1)
		}
	}
}

// MaybeShared reports whether v may be referenced from more than one place
// and therefore must not be mutated in place.
func MaybeShared(v Value) bool { return Named(v) >= 2 }

// MarkS4 flags a value as a formal (S4) object.
func MarkS4(v Value) {
	if a, ok := v.(attributed); ok {
		a.setS4(true)
	}
}

// ClassOf returns the class attribute of v, or nil-value when absent.
func ClassOf(v Value) Value {
	if a, ok := v.(Attributed); ok {
		return a.Attr(ClassSym)
	}
	return Nil
}

// ClassNames returns the class vector of v as strings.
func ClassNames(v Value) []string {
	cls, ok := ClassOf(v).(*StrVector)
	if !ok {
		return nil
	}
	return cls.Values()
}
