package query

import "fmt"

// --------------------------------------------------------------------------
// Value Type
// --------------------------------------------------------------------------

// Value is a JSON-style datum: nil, bool, float64, string, []Value or
// map[string]Value. Documents are stored serialized and surface as Values
// whenever a user expression touches them.
type Value = interface{}

// --------------------------------------------------------------------------
// Term Types
// --------------------------------------------------------------------------

// TermType tags the expression variants this module evaluates. The full
// query language lives outside this repository; reduction bodies and stream
// transforms only ever reach us as small expression trees.
type TermType uint8

const (
	TermDatum TermType = iota // Literal value.
	TermVar                   // Lexical variable reference.
	TermAdd                   // Numeric addition over all arguments.
	TermSub                   // Numeric subtraction (left fold).
	TermMul                   // Numeric multiplication over all arguments.
	TermDiv                   // Numeric division (left fold).
	TermError                 // Raises a runtime error when evaluated.
)

func (tt TermType) String() string {
	switch tt {
	case TermDatum:
		return "Datum"
	case TermVar:
		return "Var"
	case TermAdd:
		return "Add"
	case TermSub:
		return "Sub"
	case TermMul:
		return "Mul"
	case TermDiv:
		return "Div"
	case TermError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", tt)
	}
}

// Term is a single expression node. Which fields are used depends on the
// term type. Terms are values and are never mutated after construction.
type Term struct {
	Type  TermType `json:"type"`
	Datum Value    `json:"datum,omitempty"` // TermDatum
	Var   string   `json:"var,omitempty"`   // TermVar
	Args  []Term   `json:"args,omitempty"`  // Arithmetic terms
	Msg   string   `json:"msg,omitempty"`   // TermError
}

// --------------------------------------------------------------------------
// Term Factory Functions
// --------------------------------------------------------------------------

// Datum creates a literal term.
func Datum(v Value) Term {
	return Term{Type: TermDatum, Datum: v}
}

// Var creates a variable reference term.
func Var(name string) Term {
	return Term{Type: TermVar, Var: name}
}

// Add creates a term summing all arguments.
func Add(args ...Term) Term {
	return Term{Type: TermAdd, Args: args}
}

// Mul creates a term multiplying all arguments.
func Mul(args ...Term) Term {
	return Term{Type: TermMul, Args: args}
}

// RaiseError creates a term that fails with the given message when
// evaluated. Used to model user expressions that throw.
func RaiseError(msg string) Term {
	return Term{Type: TermError, Msg: msg}
}

// --------------------------------------------------------------------------
// Mapping and Reduction
// --------------------------------------------------------------------------

// Mapping is a single-argument user function: Body evaluated with Arg bound
// to the input value.
type Mapping struct {
	Arg  string `json:"arg"`
	Body Term   `json:"body"`
}

// Reduction is a two-argument user fold: Base produces the initial
// accumulator, Body is evaluated with Var1 bound to the accumulator and Var2
// bound to the next input value.
type Reduction struct {
	Base Term   `json:"base"`
	Var1 string `json:"var1"`
	Var2 string `json:"var2"`
	Body Term   `json:"body"`
}

// SumReduction returns the reduction {base: 0, body: var1 + var2}. It is the
// reduction the tests lean on and a convenient default for callers.
func SumReduction() Reduction {
	return Reduction{
		Base: Datum(float64(0)),
		Var1: "acc",
		Var2: "row",
		Body: Add(Var("acc"), Var("row")),
	}
}
