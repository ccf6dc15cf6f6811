package builtins

import (
	"context"

	"github.com/deepnoodle-ai/riv/errz"
	"github.com/deepnoodle-ai/riv/sexp"
)

// makeSubset builds the [ and [[ builtins: S3 dispatch on classed objects,
// default semantics otherwise.
func makeSubset(base *sexp.Env, single bool) sexp.BuiltinFunc {
	generic := "["
	if single {
		generic = "[["
	}
	return func(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
		x := sexp.Car(args)
		if sexp.IsObject(x) {
			res, found, err := sexp.UseMethod(ctx, generic, x, call, args, sexp.NewEnv(env), env, base)
			if err != nil {
				return nil, err
			}
			if found {
				return res, nil
			}
		}
		if err := arity(call, args, 2); err != nil {
			return nil, err
		}
		idx := sexp.Cadr(args)
		var res sexp.Value
		var err error
		if single {
			res, err = sexp.Extract2Default(x, idx)
		} else {
			res, err = sexp.SubsetDefault(x, idx)
		}
		if err != nil {
			return nil, errz.New(errz.ErrOutOfRange, call, err.Error())
		}
		return res, nil
	}
}

// doSubsetAssign implements [<- and [[<- with single-subscript semantics:
// the value argument arrives last under the reserved tag.
func doSubsetAssign(ctx context.Context, call sexp.Value, fn *sexp.Builtin, args sexp.Value, env *sexp.Env) (sexp.Value, error) {
	if sexp.ListLength(args) != 3 {
		return nil, errz.New(errz.ErrRuntime, call, "incorrect number of subscripts")
	}
	x := sexp.Car(args)
	idx := sexp.Cadr(args)
	value := sexp.Caddr(args)
	out, err := sexp.Extract2Assign(x, idx, value)
	if err != nil {
		return nil, errz.New(errz.ErrRuntime, call, err.Error())
	}
	return out, nil
}
