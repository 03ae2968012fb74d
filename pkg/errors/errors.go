// unison-payments/pkg/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

// Codes shared by the coordinator and both API surfaces.
const (
	CodeValidation      = "VALIDATION"
	CodeNotFound        = "NOT_FOUND"
	CodeUnknownProvider = "UNKNOWN_PROVIDER"
	CodeForbidden       = "FORBIDDEN"
	CodeProvider        = "PROVIDER"
	CodeUnauthorized    = "UNAUTHORIZED"
)

type E struct {
	Code    string
	Message string
	Err     error
}

func (e E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e E) Unwrap() error { return e.Err }

// Is matches any E carrying the same code, so errors.Is(err, NotFound("")) works.
func (e E) Is(target error) bool {
	var t E
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func Wrap(code, msg string, err error) error {
	return E{Code: code, Message: msg, Err: err}
}

func New(code, msg string) error {
	return E{Code: code, Message: msg}
}

func Validation(msg string) error { return New(CodeValidation, msg) }

func NotFound(msg string) error { return New(CodeNotFound, msg) }

func UnknownProvider(name string) error {
	return New(CodeUnknownProvider, fmt.Sprintf("unknown provider %q", name))
}

func Forbidden(msg string) error { return New(CodeForbidden, msg) }

func Unauthorized(msg string) error { return New(CodeUnauthorized, msg) }

func Provider(msg string, err error) error { return Wrap(CodeProvider, msg, err) }

// CodeOf returns the code of the first E in err's chain, or "" when there is none.
func CodeOf(err error) string {
	var e E
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Message returns the message of the first E in err's chain, falling back to err.Error().
func Message(err error) string {
	var e E
	if stderrors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
