// Package errs defines the error kinds shared by the stores, the task service
// and the settlement engine. Callers classify with errors.Is against the Err*
// sentinels; the concrete *Error carries the failing operation and detail.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation = errors.New("validation error")
	ErrState      = errors.New("state error")
	ErrAuth       = errors.New("auth error")
	ErrWallet     = errors.New("wallet error")
	ErrNotFound   = errors.New("not found")
)

type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := e.Kind.Error()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Is matches the error's kind so errors.Is(err, ErrState) works through wrapping.
func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Err }

func newf(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Validation(op, format string, args ...any) error {
	return newf(ErrValidation, op, format, args...)
}

func State(op, format string, args ...any) error {
	return newf(ErrState, op, format, args...)
}

func Auth(op, format string, args ...any) error {
	return newf(ErrAuth, op, format, args...)
}

func NotFound(op, format string, args ...any) error {
	return newf(ErrNotFound, op, format, args...)
}

// Wallet wraps a gateway failure; the cause stays reachable with errors.As.
func Wallet(op string, cause error) error {
	return &Error{Kind: ErrWallet, Op: op, Err: cause}
}

// KindOf returns the sentinel kind of err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrState, ErrAuth, ErrWallet, ErrNotFound} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// HTTPStatus maps an error kind to the response status handlers should use.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrAuth:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrState:
		return http.StatusConflict
	case ErrWallet:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
