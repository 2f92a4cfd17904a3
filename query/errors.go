package query

import (
	"errors"
	"fmt"
)

// Usage errors
var (
	// ErrNoOrdinalContext indicates position() or last() was bound or
	// evaluated without a position and size in the context.
	ErrNoOrdinalContext = errors.New("expression requires an ordinal context")

	// ErrAlreadyDefined indicates a variable name is already defined in the scope.
	ErrAlreadyDefined = errors.New("variable already defined in scope")

	// ErrExprOwned indicates an expression already backs another variable.
	ErrExprOwned = errors.New("expression already owned by a variable")

	// ErrNotRootExpr indicates a sub-expression was used where a root
	// expression is required.
	ErrNotRootExpr = errors.New("expression is not a root expression")

	// ErrComputedVariable indicates a literal assignment to a computed variable.
	ErrComputedVariable = errors.New("variable is computed")

	// ErrNoScope indicates a context without a scope chain was used to
	// resolve a variable.
	ErrNoScope = errors.New("context has no scope chain")
)

// Evaluation errors
var (
	// ErrUndefinedVariable indicates a variable reference that resolves to nothing.
	ErrUndefinedVariable = errors.New("undefined variable")

	// ErrTypeMismatch indicates a value of the wrong kind, such as a scalar
	// where a node-set is required.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrArity indicates a function called with the wrong number of arguments.
	ErrArity = errors.New("wrong number of arguments")
)

// EvalError is an evaluation failure scoped to one expression and context.
type EvalError struct {
	Expr    Expr
	Context *Context
	Err     error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluating %s: %v", e.Expr, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

func evalErr(e Expr, ctx *Context, err error) error {
	var ee *EvalError
	if errors.As(err, &ee) {
		return err
	}
	return &EvalError{Expr: e, Context: ctx, Err: err}
}
