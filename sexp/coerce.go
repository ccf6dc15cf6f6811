package sexp

import "math"

// AsLogical coerces the first element of a value to a three-valued logical.
// Values with no logical interpretation coerce to NA.
func AsLogical(v Value) Lgl {
	switch v := v.(type) {
	case *LglVector:
		if v.Len() == 0 {
			return LglNA
		}
		return v.Lgl(0)
	case *IntVector:
		if v.Len() == 0 || v.Int(0) == IntNA {
			return LglNA
		}
		if v.Int(0) != 0 {
			return 1
		}
		return 0
	case *RealVector:
		if v.Len() == 0 || math.IsNaN(v.Real(0)) {
			return LglNA
		}
		if v.Real(0) != 0 {
			return 1
		}
		return 0
	case *StrVector:
		if v.Len() == 0 {
			return LglNA
		}
		switch v.Str(0) {
		case "TRUE", "true", "T":
			return 1
		case "FALSE", "false", "F":
			return 0
		}
		return LglNA
	default:
		return LglNA
	}
}

// AsInt coerces the first element of a value to an integer, returning IntNA
// when there is no integer interpretation.
func AsInt(v Value) int {
	switch v := v.(type) {
	case *IntVector:
		if v.Len() == 0 {
			return IntNA
		}
		return v.Int(0)
	case *RealVector:
		if v.Len() == 0 || math.IsNaN(v.Real(0)) {
			return IntNA
		}
		return int(v.Real(0))
	case *LglVector:
		if v.Len() == 0 || v.Lgl(0) == LglNA {
			return IntNA
		}
		return int(v.Lgl(0))
	default:
		return IntNA
	}
}

// AsReal coerces the first element of a value to a double, returning NaN
// when there is no numeric interpretation.
func AsReal(v Value) float64 {
	switch v := v.(type) {
	case *RealVector:
		if v.Len() == 0 {
			return math.NaN()
		}
		return v.Real(0)
	case *IntVector:
		if v.Len() == 0 || v.Int(0) == IntNA {
			return math.NaN()
		}
		return float64(v.Int(0))
	case *LglVector:
		if v.Len() == 0 || v.Lgl(0) == LglNA {
			return math.NaN()
		}
		return float64(v.Lgl(0))
	default:
		return math.NaN()
	}
}

// IsNumeric reports whether v is an integer or double vector.
func IsNumeric(v Value) bool {
	switch v.Kind() {
	case IntKind, RealKind:
		return true
	}
	return false
}
