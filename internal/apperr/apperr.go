package apperr

import (
	"errors"
	"fmt"
)

// Error is a domain failure tagged with the operation that raised it.
type Error struct {
	Op     string
	Detail string
	Err    error
}

// New creates an Error without an underlying cause.
func New(op, detail string) *Error {
	return &Error{Op: op, Detail: detail}
}

// Wrap tags err with op. A nil err yields nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Detail: err.Error(), Err: err}
}

// Wrapf tags err with op and a formatted detail.
func Wrapf(op string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Detail != e.Err.Error() {
		return fmt.Sprintf("[%s][%s]: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("[%s][%s]", e.Op, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Op returns the innermost operation name carried by err, or "".
func Op(err error) string {
	var last string
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		last = e.Op
		err = e.Err
	}
	return last
}
