package sexp

import (
	"context"
	"sync"
)

// S4 method registry: selector symbol -> class name -> method. Formal
// dispatch consults it before S3 lookup is attempted.
var (
	s4Mu      sync.Mutex
	s4Methods = map[*Symbol]map[string]Value{}
)

// SetMethod registers a formal (S4) method for the selector and class.
func SetMethod(selector *Symbol, class string, fn Value) {
	s4Mu.Lock()
	defer s4Mu.Unlock()
	m, ok := s4Methods[selector]
	if !ok {
		m = map[string]Value{}
		s4Methods[selector] = m
	}
	m[class] = fn
}

// HasMethods reports whether any formal method is registered for the
// selector.
func HasMethods(selector *Symbol) bool {
	s4Mu.Lock()
	defer s4Mu.Unlock()
	return len(s4Methods[selector]) > 0
}

// PossibleDispatch attempts formal dispatch on the class of obj. When a
// method is registered for one of the object's classes, it is called with
// the given argument list and the result is returned with ok set.
func PossibleDispatch(ctx context.Context, call Value, selector *Symbol, obj Value, actuals Value, env *Env) (Value, bool, error) {
	s4Mu.Lock()
	table := s4Methods[selector]
	var fn Value
	for _, class := range ClassNames(obj) {
		if m, ok := table[class]; ok {
			fn = m
			break
		}
	}
	s4Mu.Unlock()
	if fn == nil {
		return nil, false, nil
	}
	ev, ok := EvaluatorFrom(ctx)
	if !ok {
		return nil, false, nil
	}
	res, err := ev.CallFunction(ctx, fn, call, actuals, env)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// ImplicitClass returns the class vector used for S3 dispatch when a value
// has no class attribute.
func ImplicitClass(v Value) []string {
	switch v.Kind() {
	case IntKind:
		return []string{"integer", "numeric"}
	case RealKind:
		return []string{"double", "numeric"}
	case LglKind:
		return []string{"logical"}
	case StrKind:
		return []string{"character"}
	case ListKind:
		return []string{"list"}
	case CloKind, BuiltinKind, SpecialKind:
		return []string{"function"}
	case NilKind:
		return []string{"NULL"}
	default:
		return []string{v.Kind().String()}
	}
}

// DispatchClasses returns the classes consulted for S3 dispatch on obj:
// the class attribute when present, the implicit class otherwise.
func DispatchClasses(obj Value) []string {
	if cls := ClassNames(obj); len(cls) > 0 {
		return cls
	}
	return ImplicitClass(obj)
}

// UseMethod performs S3 dispatch: for each class of obj, a function named
// generic.class is looked up in callrho and then defrho, falling back to
// generic.default. The selected method is called with the original argument
// list. The ok result is false when no method was found.
func UseMethod(ctx context.Context, generic string, obj Value, call Value, actuals Value, rho *Env, callrho *Env, defrho *Env) (Value, bool, error) {
	ev, evOK := EvaluatorFrom(ctx)
	if !evOK {
		return nil, false, nil
	}
	force := func(p *Promise) (Value, error) { return ev.Force(ctx, p) }

	candidates := append(DispatchClasses(obj), "default")
	for _, class := range candidates {
		sym := Install(generic + "." + class)
		fn, err := callrho.FindFun(sym, force)
		if err != nil {
			return nil, false, err
		}
		if fn == Unbound && defrho != nil {
			fn, err = defrho.FindFun(sym, force)
			if err != nil {
				return nil, false, err
			}
		}
		if fn == Unbound {
			continue
		}
		res, err := ev.CallFunction(ctx, fn, call, actuals, rho)
		if err != nil {
			return nil, false, err
		}
		return res, true, nil
	}
	return nil, false, nil
}
