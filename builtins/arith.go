package builtins

import (
	"context"
	"math"

	"github.com/deepnoodle-ai/riv/errz"
	"github.com/deepnoodle-ai/riv/sexp"
)

// registerArith binds the arithmetic and comparison builtins. Operations
// are vectorized with length-one recycling, which covers the argument
// shapes the language core itself produces; with longer vectors the result
// has the length of the longer operand and the shorter one is recycled,
// without a warning when the lengths are not multiples of each other.
func registerArith(env *sexp.Env, builtin func(string, sexp.Visibility, sexp.BuiltinFunc)) {
	for _, name := range []string{"+", "-", "*", "/"} {
		builtin(name, sexp.VisibleOn, arithBuiltin(name))
	}
	for _, name := range []string{"<", ">", "<=", ">=", "==", "!="} {
		builtin(name, sexp.VisibleOn, compareBuiltin(name))
	}
	builtin("!", sexp.VisibleOn, doNot)
}

func arithBuiltin(name string) sexp.BuiltinFunc {
	return func(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
		n := sexp.ListLength(args)
		lhs := sexp.Car(args)
		if n == 1 {
			// Unary plus and minus.
			switch name {
			case "+":
				return lhs, nil
			case "-":
				return negate(call, lhs)
			}
			return nil, errz.Newf(errz.ErrRuntime, call, "operator needs two arguments")
		}
		if n != 2 {
			return nil, errz.Newf(errz.ErrRuntime, call, "operator needs two arguments")
		}
		rhs := sexp.Cadr(args)
		if !sexp.IsNumeric(lhs) && lhs.Kind() != sexp.LglKind {
			return nil, errz.New(errz.ErrRuntime, call, "non-numeric argument to binary operator")
		}
		if !sexp.IsNumeric(rhs) && rhs.Kind() != sexp.LglKind {
			return nil, errz.New(errz.ErrRuntime, call, "non-numeric argument to binary operator")
		}

		ln, rn := sexp.Length(lhs), sexp.Length(rhs)
		if ln == 0 || rn == 0 {
			return sexp.NewRealVector(nil), nil
		}
		out := ln
		if rn > out {
			out = rn
		}

		// Integer arithmetic stays integral except for division.
		if lhs.Kind() != sexp.RealKind && rhs.Kind() != sexp.RealKind && name != "/" {
			vals := make([]int, out)
			for i := 0; i < out; i++ {
				a := sexp.AsInt(sexp.ElementAt(lhs, i%ln))
				b := sexp.AsInt(sexp.ElementAt(rhs, i%rn))
				if a == sexp.IntNA || b == sexp.IntNA {
					vals[i] = sexp.IntNA
					continue
				}
				switch name {
				case "+":
					vals[i] = a + b
				case "-":
					vals[i] = a - b
				case "*":
					vals[i] = a * b
				}
			}
			return sexp.NewIntVector(vals), nil
		}

		vals := make([]float64, out)
		for i := 0; i < out; i++ {
			a := sexp.AsReal(sexp.ElementAt(lhs, i%ln))
			b := sexp.AsReal(sexp.ElementAt(rhs, i%rn))
			switch name {
			case "+":
				vals[i] = a + b
			case "-":
				vals[i] = a - b
			case "*":
				vals[i] = a * b
			case "/":
				vals[i] = a / b
			}
		}
		return sexp.NewRealVector(vals), nil
	}
}

func negate(call sexp.Value, v sexp.Value) (sexp.Value, error) {
	switch v := v.(type) {
	case *sexp.IntVector:
		vals := make([]int, v.Len())
		for i := range vals {
			if v.Int(i) == sexp.IntNA {
				vals[i] = sexp.IntNA
			} else {
				vals[i] = -v.Int(i)
			}
		}
		return sexp.NewIntVector(vals), nil
	case *sexp.RealVector:
		vals := make([]float64, v.Len())
		for i := range vals {
			vals[i] = -v.Real(i)
		}
		return sexp.NewRealVector(vals), nil
	default:
		return nil, errz.New(errz.ErrRuntime, call, "invalid argument to unary operator")
	}
}

func compareBuiltin(name string) sexp.BuiltinFunc {
	return func(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
		if err := arity(call, args, 2); err != nil {
			return nil, err
		}
		lhs := sexp.Car(args)
		rhs := sexp.Cadr(args)
		ln, rn := sexp.Length(lhs), sexp.Length(rhs)
		if ln == 0 || rn == 0 {
			return sexp.NewLglVector(nil), nil
		}
		out := ln
		if rn > out {
			out = rn
		}

		stringCompare := lhs.Kind() == sexp.StrKind || rhs.Kind() == sexp.StrKind
		vals := make([]sexp.Lgl, out)
		for i := 0; i < out; i++ {
			a := sexp.ElementAt(lhs, i%ln)
			b := sexp.ElementAt(rhs, i%rn)
			if stringCompare {
				as, aok := a.(*sexp.StrVector)
				bs, bok := b.(*sexp.StrVector)
				if !aok || !bok {
					vals[i] = sexp.LglNA
					continue
				}
				vals[i] = compareStrings(name, as.Str(0), bs.Str(0))
				continue
			}
			x := sexp.AsReal(a)
			y := sexp.AsReal(b)
			if math.IsNaN(x) || math.IsNaN(y) {
				vals[i] = sexp.LglNA
				continue
			}
			vals[i] = compareReals(name, x, y)
		}
		return sexp.NewLglVector(vals), nil
	}
}

func compareReals(name string, x, y float64) sexp.Lgl {
	var res bool
	switch name {
	case "<":
		res = x < y
	case ">":
		res = x > y
	case "<=":
		res = x <= y
	case ">=":
		res = x >= y
	case "==":
		res = x == y
	case "!=":
		res = x != y
	}
	if res {
		return 1
	}
	return 0
}

func compareStrings(name string, x, y string) sexp.Lgl {
	var res bool
	switch name {
	case "<":
		res = x < y
	case ">":
		res = x > y
	case "<=":
		res = x <= y
	case ">=":
		res = x >= y
	case "==":
		res = x == y
	case "!=":
		res = x != y
	}
	if res {
		return 1
	}
	return 0
}

func doNot(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if err := arity(call, args, 1); err != nil {
		return nil, err
	}
	x := sexp.Car(args)
	n := sexp.Length(x)
	vals := make([]sexp.Lgl, n)
	for i := 0; i < n; i++ {
		switch sexp.AsLogical(sexp.ElementAt(x, i)) {
		case 1:
			vals[i] = 0
		case 0:
			vals[i] = 1
		default:
			vals[i] = sexp.LglNA
		}
	}
	return sexp.NewLglVector(vals), nil
}
