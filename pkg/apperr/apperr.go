// Package apperr categorizes failures so that no raw transport error reaches
// a user without a kind attached.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPermissionDenied
	KindAuthExpired
	KindNetworkUnavailable
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindPermissionDenied:
		return "permission_denied"
	case KindAuthExpired:
		return "auth_expired"
	case KindNetworkUnavailable:
		return "network_unavailable"
	case KindServer:
		return "server_error"
	}
	return "unknown"
}

// Retryable reports whether a failure of this kind is worth a delayed retry.
func (k Kind) Retryable() bool { return k == KindNetworkUnavailable }

// HTTPStatus is the status code a handler answers with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindAuthExpired:
		return http.StatusUnauthorized
	case KindNetworkUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrValidation)
// works for every validation failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrPermissionDenied   = &Error{Kind: KindPermissionDenied}
	ErrAuthExpired        = &Error{Kind: KindAuthExpired}
	ErrNetworkUnavailable = &Error{Kind: KindNetworkUnavailable}
	ErrServer             = &Error{Kind: KindServer}
)

func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Sprintf(format, args...))
}

func PermissionDenied(op, format string, args ...any) *Error {
	return New(KindPermissionDenied, op, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Categorize returns err as an *Error, treating uncategorized errors as
// server errors.
func Categorize(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindServer, op, err)
}

// FromHTTPStatus maps a remote response status to a kind.
func FromHTTPStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized:
		return KindAuthExpired
	case code == http.StatusForbidden:
		return KindPermissionDenied
	case code == http.StatusBadRequest, code == http.StatusConflict, code == http.StatusUnprocessableEntity, code == http.StatusNotFound:
		return KindValidation
	case code >= 400:
		return KindServer
	}
	return KindUnknown
}
