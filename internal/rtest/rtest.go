// Package rtest provides small AST construction helpers for tests.
package rtest

import "github.com/deepnoodle-ai/riv/sexp"

// Sym interns a symbol.
func Sym(name string) *sexp.Symbol { return sexp.Install(name) }

// Int builds a scalar integer.
func Int(n int) *sexp.IntVector { return sexp.ScalarInt(n) }

// Real builds a scalar double.
func Real(f float64) *sexp.RealVector { return sexp.ScalarReal(f) }

// Str builds a scalar string.
func Str(s string) *sexp.StrVector { return sexp.ScalarStr(s) }

// Lgl builds a scalar logical.
func Lgl(b bool) *sexp.LglVector { return sexp.ScalarLgl(b) }

// NA builds a scalar logical NA.
func NA() *sexp.LglVector { return sexp.NewLglVector([]sexp.Lgl{sexp.LglNA}) }

// Arg is a tagged call argument.
type Arg struct {
	Name  string
	Value sexp.Value
}

// Named tags an argument.
func Named(name string, v sexp.Value) Arg { return Arg{Name: name, Value: v} }

// Call builds a language call. The head may be a string (interned as a
// symbol) or any value; arguments may be values or Named(...) tagged
// arguments.
func Call(head any, args ...any) *sexp.Lang {
	var fn sexp.Value
	switch h := head.(type) {
	case string:
		fn = sexp.Install(h)
	case sexp.Value:
		fn = h
	default:
		panic("rtest: bad call head")
	}
	b := sexp.NewListBuilder()
	for _, a := range args {
		switch a := a.(type) {
		case Arg:
			b.Append(a.Value, sexp.Install(a.Name))
		case sexp.Value:
			b.Append(a, nil)
		default:
			panic("rtest: bad call argument")
		}
	}
	return sexp.NewLang(fn, b.List())
}

// Block builds a { ... } call around the given statements.
func Block(stmts ...sexp.Value) *sexp.Lang {
	args := make([]any, len(stmts))
	for i, s := range stmts {
		args[i] = s
	}
	return Call("{", args...)
}

// Fn builds a function(...) definition AST. Formals alternate name and
// default; use Missing() for parameters without defaults.
func Fn(formals []FormalSpec, body sexp.Value) *sexp.Lang {
	b := sexp.NewListBuilder()
	for _, f := range formals {
		def := f.Default
		if def == nil {
			def = sexp.Missing
		}
		b.Append(def, sexp.Install(f.Name))
	}
	return Call("function", b.List(), body)
}

// FormalSpec names one formal parameter and its optional default.
type FormalSpec struct {
	Name    string
	Default sexp.Value
}

// Formal builds a FormalSpec.
func Formal(name string, def sexp.Value) FormalSpec {
	return FormalSpec{Name: name, Default: def}
}
