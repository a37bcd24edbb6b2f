package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// ErrInterrupted is returned when the request's interrupt signal fires
// during evaluation. It is a transport-level failure, never part of a
// response result.
var ErrInterrupted = errors.New("query: interrupted")

// RuntimeError is an error raised by a user-supplied expression. It is
// attributable to user input and therefore becomes part of the response
// result instead of failing the request.
type RuntimeError struct {
	Msg       string    `json:"msg"`
	Backtrace Backtrace `json:"backtrace,omitempty"`
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %s", e.Msg)
}

// NewRuntimeError creates a runtime error with the given message and
// backtrace.
func NewRuntimeError(msg string, bt Backtrace) *RuntimeError {
	return &RuntimeError{Msg: msg, Backtrace: bt}
}

// AsRuntimeError extracts a *RuntimeError from an error chain.
func AsRuntimeError(err error) (*RuntimeError, bool) {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Backtrace locates a failing term inside the query that produced it.
type Backtrace []string

// Frame returns a backtrace extended by one step. The receiver is not
// modified.
func (bt Backtrace) Frame(step string) Backtrace {
	out := make(Backtrace, 0, len(bt)+1)
	out = append(out, bt...)
	return append(out, step)
}

// --------------------------------------------------------------------------
// Runtime Environment
// --------------------------------------------------------------------------

// MetadataView is a per-worker, lock-free projection of a slice of the
// cluster metadata. Get never blocks.
type MetadataView interface {
	Get() interface{}
}

// ScriptRunner is a handle to the embedded scripting runtime. A fresh handle
// is attached per request and owned by that request.
type ScriptRunner interface {
	Close() error
}

// Env is the per-request runtime environment. It bundles everything user
// expression evaluation may need: metadata views for the worker the request
// is bound to, the scripting runtime handle, the interrupt signal and the
// identity of the local machine.
//
// Thread-safety: an Env is bound to one worker and must not be shared.
type Env struct {
	PoolGroup  interface{}     // external process pool handle
	NSRepo     interface{}     // namespace repository handle
	Namespaces MetadataView    // this worker's namespace metadata projection
	Databases  MetadataView    // this worker's database metadata projection
	Metadata   interface{}     // shared handle to the full cluster metadata
	JS         ScriptRunner    // fresh per-request scripting runtime
	Interrupt  context.Context // request interrupt signal
	MachineID  uuid.UUID

	scope *Scope
}

// SetScopes replaces the evaluation scope chain with a root scope built from
// the request's carried bindings.
func (e *Env) SetScopes(scopes Scopes) {
	e.scope = scopes.NewRootScope()
}

// Scope returns the current innermost scope, creating an empty root if the
// request carried none.
func (e *Env) Scope() *Scope {
	if e.scope == nil {
		e.scope = NewScope()
	}
	return e.scope
}

// PushScope opens a child scope and returns a function restoring the
// previous one. Callers pair the two around each evaluation that binds
// variables, keeping Eval re-entrant.
func (e *Env) PushScope() func() {
	prev := e.Scope()
	e.scope = prev.Child()
	return func() { e.scope = prev }
}

// Close releases the per-request resources held by the environment.
func (e *Env) Close() error {
	if e.JS != nil {
		return e.JS.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Evaluation
// --------------------------------------------------------------------------

// Eval evaluates a term under the environment's current scope.
//
// Failures attributable to the expression itself are returned as
// *RuntimeError. If the environment's interrupt signal has fired,
// ErrInterrupted is returned instead; interruption always wins over runtime
// errors.
func Eval(t Term, env *Env, bt Backtrace) (Value, error) {
	if env.Interrupt != nil && env.Interrupt.Err() != nil {
		return nil, ErrInterrupted
	}

	switch t.Type {
	case TermDatum:
		return t.Datum, nil

	case TermVar:
		v, ok := env.Scope().Lookup(t.Var)
		if !ok {
			return nil, NewRuntimeError(fmt.Sprintf("variable %q not in scope", t.Var), bt)
		}
		return v, nil

	case TermAdd, TermSub, TermMul, TermDiv:
		return evalArith(t, env, bt)

	case TermError:
		return nil, NewRuntimeError(t.Msg, bt)

	default:
		return nil, NewRuntimeError(fmt.Sprintf("unknown term type %s", t.Type), bt)
	}
}

// evalArith left-folds the numeric arguments of an arithmetic term.
func evalArith(t Term, env *Env, bt Backtrace) (Value, error) {
	if len(t.Args) == 0 {
		return nil, NewRuntimeError(fmt.Sprintf("%s needs at least one argument", t.Type), bt)
	}

	acc, err := evalNumber(t.Args[0], env, bt.Frame("arg:0"))
	if err != nil {
		return nil, err
	}

	for i, arg := range t.Args[1:] {
		n, err := evalNumber(arg, env, bt.Frame(fmt.Sprintf("arg:%d", i+1)))
		if err != nil {
			return nil, err
		}

		switch t.Type {
		case TermAdd:
			acc += n
		case TermSub:
			acc -= n
		case TermMul:
			acc *= n
		case TermDiv:
			if n == 0 {
				return nil, NewRuntimeError("division by zero", bt)
			}
			acc /= n
		}
	}

	return acc, nil
}

// evalNumber evaluates a term and coerces the result to a float64.
func evalNumber(t Term, env *Env, bt Backtrace) (float64, error) {
	v, err := Eval(t, env, bt)
	if err != nil {
		return 0, err
	}

	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, NewRuntimeError(fmt.Sprintf("expected a number, got %T", v), bt)
	}
}

// EvalMapping applies a single-argument user function to a value under a
// fresh child scope.
func EvalMapping(m Mapping, arg Value, env *Env, bt Backtrace) (Value, error) {
	restore := env.PushScope()
	defer restore()

	env.Scope().PutInScope(m.Arg, arg)
	return Eval(m.Body, env, bt.Frame("mapping"))
}
