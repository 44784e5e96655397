package sproc

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by this package wraps exactly one of
// these, so callers can branch with errors.Is without string matching.
var (
	// ErrConnect marks failures while opening or verifying a connection:
	// an unknown connection entry, a bad DSN, or an unreachable server.
	ErrConnect = errors.New("sproc: connect failed")

	// ErrExecute marks failures while running a stored procedure: a
	// database-side error, a rejected procedure name, or a parameter
	// name/value length mismatch.
	ErrExecute = errors.New("sproc: execute failed")

	// ErrConvert marks failures while converting a cell value into a
	// destination struct field.
	ErrConvert = errors.New("sproc: convert failed")
)

// OpError wraps an underlying error with the operation that was being
// performed (query, exec, map) and the stored procedure involved, when known.
type OpError struct {
	Op        string
	Procedure string
	Err       error
}

func (e *OpError) Error() string {
	if e.Procedure != "" {
		return fmt.Sprintf("sproc: failed to %s %s: %s", e.Op, e.Procedure, e.Err)
	}
	return fmt.Sprintf("sproc: failed to %s: %s", e.Op, e.Err)
}

// Unwrap returns the inner error to allow inspection of error chains.
func (e *OpError) Unwrap() error { return e.Err }

func opErr(op, procedure string, kind error, err error) error {
	return &OpError{Op: op, Procedure: procedure, Err: fmt.Errorf("%w: %w", kind, err)}
}

// IsConnect reports whether err originated while opening a connection.
func IsConnect(err error) bool { return errors.Is(err, ErrConnect) }

// IsExecute reports whether err originated while executing a procedure.
func IsExecute(err error) bool { return errors.Is(err, ErrExecute) }

// IsConvert reports whether err originated while mapping a table cell into a
// struct field.
func IsConvert(err error) bool { return errors.Is(err, ErrConvert) }
