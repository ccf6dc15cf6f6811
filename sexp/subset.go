package sexp

import "fmt"

// Default single-element extraction and subsetting, shared by the
// interpreter's fast-path fallbacks and the subset builtins.

// resolveIndex turns a subscript into a zero-based position within x, which
// may be addressed by position or, for named values, by name.
func resolveIndex(x Value, idx Value) (int, error) {
	switch idx := idx.(type) {
	case *StrVector:
		if idx.Len() != 1 {
			return -1, fmt.Errorf("subscript out of bounds")
		}
		name := idx.Str(0)
		if l, ok := x.(*List); ok {
			if i := l.IndexOfName(name); i >= 0 {
				return i, nil
			}
		}
		if a, ok := x.(Attributed); ok {
			if names, ok := a.Attr(NamesSym).(*StrVector); ok {
				for i := 0; i < names.Len(); i++ {
					if names.Str(i) == name {
						return i, nil
					}
				}
			}
		}
		return -1, fmt.Errorf("subscript out of bounds")
	default:
		i := AsInt(idx)
		if i == IntNA || i < 1 {
			return -1, fmt.Errorf("invalid subscript")
		}
		return i - 1, nil
	}
}

// Extract2Default implements the default [[ semantics: a single element by
// position or name, unwrapped for lists. Out-of-bounds subscripts are an
// error.
func Extract2Default(x Value, idx Value) (Value, error) {
	i, err := resolveIndex(x, idx)
	if err != nil {
		return nil, err
	}
	if i >= Length(x) {
		return nil, fmt.Errorf("subscript out of bounds")
	}
	switch x := x.(type) {
	case *List:
		return x.Elem(i), nil
	case *LglVector:
		return NewLglVector([]Lgl{x.Lgl(i)}), nil
	case *IntVector:
		return ScalarInt(x.Int(i)), nil
	case *RealVector:
		return ScalarReal(x.Real(i)), nil
	case *StrVector:
		return ScalarStr(x.Str(i)), nil
	case *Pair:
		if cell := ListElem(x, i); cell != nil {
			return cell.Car(), nil
		}
		return nil, fmt.Errorf("subscript out of bounds")
	default:
		return nil, fmt.Errorf("object of type %q is not subsettable", x.Kind())
	}
}

// SubsetDefault implements the default single-subscript [ semantics. An
// out-of-bounds subscript yields NA for atomic vectors and is an error for
// lists.
func SubsetDefault(x Value, idx Value) (Value, error) {
	i, err := resolveIndex(x, idx)
	if err != nil {
		return nil, err
	}
	oob := i >= Length(x)
	switch x := x.(type) {
	case *List:
		if oob {
			return nil, fmt.Errorf("subscript out of bounds")
		}
		out := NewList([]Value{x.Elem(i)})
		if names := x.Names(); names != nil {
			out.SetAttr(NamesSym, ScalarStr(names.Str(i)))
		}
		return out, nil
	case *LglVector:
		if oob {
			return NewLglVector([]Lgl{LglNA}), nil
		}
		return NewLglVector([]Lgl{x.Lgl(i)}), nil
	case *IntVector:
		if oob {
			return ScalarInt(IntNA), nil
		}
		return ScalarInt(x.Int(i)), nil
	case *RealVector:
		if oob {
			return ScalarReal(realNA()), nil
		}
		return ScalarReal(x.Real(i)), nil
	case *StrVector:
		if oob {
			return ScalarStr("NA"), nil
		}
		return ScalarStr(x.Str(i)), nil
	default:
		return nil, fmt.Errorf("object of type %q is not subsettable", x.Kind())
	}
}

// Extract2Assign implements the default [[<- semantics, returning the
// modified container. The container is duplicated first when shared.
func Extract2Assign(x Value, idx Value, value Value) (Value, error) {
	if MaybeShared(x) {
		x = ShallowDuplicate(x)
	}
	switch xv := x.(type) {
	case *List:
		i, err := assignIndex(xv, idx, func(n int) { growList(xv, n) })
		if err != nil {
			return nil, err
		}
		xv.SetElem(i, value)
		return xv, nil
	case *RealVector:
		i, err := assignIndex(xv, idx, func(n int) {
			for len(xv.vals) < n {
				xv.vals = append(xv.vals, realNA())
			}
		})
		if err != nil {
			return nil, err
		}
		xv.SetReal(i, AsReal(value))
		return xv, nil
	case *IntVector:
		i, err := assignIndex(xv, idx, func(n int) {
			for len(xv.vals) < n {
				xv.vals = append(xv.vals, IntNA)
			}
		})
		if err != nil {
			return nil, err
		}
		xv.SetInt(i, AsInt(value))
		return xv, nil
	case *NilValue:
		// Assigning into NULL creates a fresh list.
		out := NewList(nil)
		i, err := assignIndex(out, idx, func(n int) { growList(out, n) })
		if err != nil {
			return nil, err
		}
		out.SetElem(i, value)
		return out, nil
	default:
		return nil, fmt.Errorf("object of type %q is not subsettable", x.Kind())
	}
}

// assignIndex resolves an assignment subscript, growing the container as
// needed through grow. Name subscripts that match nothing append a new
// element.
func assignIndex(x Value, idx Value, grow func(n int)) (int, error) {
	if s, ok := idx.(*StrVector); ok && s.Len() == 1 {
		name := s.Str(0)
		if l, isList := x.(*List); isList {
			if i := l.IndexOfName(name); i >= 0 {
				return i, nil
			}
			grow(l.Len() + 1)
			appendName(l, name)
			return l.Len() - 1, nil
		}
		return -1, fmt.Errorf("invalid subscript")
	}
	i := AsInt(idx)
	if i == IntNA || i < 1 {
		return -1, fmt.Errorf("invalid subscript")
	}
	if i > Length(x) {
		grow(i)
	}
	return i - 1, nil
}

func growList(l *List, n int) {
	names := l.Names()
	for len(l.vals) < n {
		l.vals = append(l.vals, Nil)
		if names != nil {
			names.vals = append(names.vals, "")
		}
	}
}

func appendName(l *List, name string) {
	names := l.Names()
	if names == nil {
		vals := make([]string, l.Len())
		vals[l.Len()-1] = name
		l.SetAttr(NamesSym, NewStrVector(vals))
		return
	}
	names.vals[len(names.vals)-1] = name
}

// ElementAt returns the i-th element of a vector or list as a value.
func ElementAt(v Value, i int) Value {
	switch v := v.(type) {
	case *List:
		return v.Elem(i)
	case *LglVector:
		return NewLglVector([]Lgl{v.Lgl(i)})
	case *IntVector:
		return ScalarInt(v.Int(i))
	case *RealVector:
		return ScalarReal(v.Real(i))
	case *StrVector:
		return ScalarStr(v.Str(i))
	case *Pair:
		if cell := ListElem(v, i); cell != nil {
			return cell.Car()
		}
		return Nil
	default:
		return Nil
	}
}

// GetByName implements the default $ semantics on lists and environments.
func GetByName(x Value, name string) (Value, error) {
	switch x := x.(type) {
	case *List:
		if i := x.IndexOfName(name); i >= 0 {
			return x.Elem(i), nil
		}
		return Nil, nil
	case *Env:
		if v, ok := x.FindLocal(Install(name)); ok {
			return v, nil
		}
		return Nil, nil
	case *Pair:
		for it := Value(x); !IsNil(it); it = Cdr(it) {
			if t := Tag(it); t != nil && t.Name() == name {
				return Car(it), nil
			}
		}
		return Nil, nil
	case *NilValue:
		return Nil, nil
	default:
		return nil, fmt.Errorf("$ operator is invalid for atomic vectors")
	}
}

// SetByName implements the default $<- semantics, returning the modified
// container. The container is duplicated first when shared.
func SetByName(x Value, name string, value Value) (Value, error) {
	if MaybeShared(x) {
		x = ShallowDuplicate(x)
	}
	switch xv := x.(type) {
	case *List:
		if i := xv.IndexOfName(name); i >= 0 {
			if IsNil(value) {
				xv.vals = append(xv.vals[:i], xv.vals[i+1:]...)
				if names := xv.Names(); names != nil {
					names.vals = append(names.vals[:i], names.vals[i+1:]...)
				}
				return xv, nil
			}
			xv.SetElem(i, value)
			return xv, nil
		}
		if IsNil(value) {
			return xv, nil
		}
		xv.vals = append(xv.vals, value)
		growNames(xv)
		appendName(xv, name)
		return xv, nil
	case *Env:
		xv.Define(Install(name), value)
		return xv, nil
	case *NilValue:
		out := NewList([]Value{value})
		out.SetAttr(NamesSym, ScalarStr(name))
		return out, nil
	default:
		return nil, fmt.Errorf("$ operator is invalid for atomic vectors")
	}
}

func growNames(l *List) {
	names := l.Names()
	if names == nil {
		l.SetAttr(NamesSym, NewStrVector(make([]string, l.Len())))
		return
	}
	for len(names.vals) < l.Len() {
		names.vals = append(names.vals, "")
	}
}

func realNA() float64 {
	// The host runtime's real NA is a tagged NaN; plain NaN is close enough
	// for the operations the core performs on it.
	var v float64
	return v / v
}
