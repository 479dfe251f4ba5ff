package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is an infrastructure failure (storage, transport, configuration).
// Protocol outcomes are never reported through it.
type Error struct {
	Inner   error
	Message string
}

// New creates an error without a cause.
func New(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates inner with a formatted message and the current stack.
// A nil inner error yields an error carrying only the message.
func Wrap(inner error, format string, args ...interface{}) *Error {
	return &Error{
		Inner:   errors.WithStack(inner),
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Error() string {
	if e.Inner == nil {
		return e.Message
	}
	return e.Message + ": " + errors.Cause(e.Inner).Error()
}
