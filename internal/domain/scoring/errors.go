package scoring

import "errors"

var (
	ErrFormulaSyntax   = errors.New("formula syntax error")
	ErrUnknownVariable = errors.New("formula references unknown variable")
	ErrDivisionByZero  = errors.New("formula divides by zero")
	ErrNotFinite       = errors.New("formula result is not a finite number")
)
