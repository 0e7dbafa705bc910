package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a request-level failure so callers can choose a response.
type Kind string

const (
	KindNotFound Kind = "NotFound"
	KindInvalid  Kind = "Invalid"
	KindIO       Kind = "IOFailure"
	KindUpstream Kind = "Upstream"
)

var (
	ErrNotFound = errors.New("resource not found")
	ErrInvalid  = errors.New("invalid input")
	ErrIO       = errors.New("storage failure")
	ErrUpstream = errors.New("upstream failure")
)

var sentinels = map[Kind]error{
	KindNotFound: ErrNotFound,
	KindInvalid:  ErrInvalid,
	KindIO:       ErrIO,
	KindUpstream: ErrUpstream,
}

// Error carries a Kind, a message, and an optional cause.
// Status is set for upstream failures that should surface the remote HTTP code.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNotFound) and friends match by kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, message string) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Upstream builds an upstream error that remembers the remote status code.
func Upstream(status int, message string, err error) error {
	return &Error{Kind: KindUpstream, Message: message, Status: status, Err: err}
}

// KindOf returns the Kind of the first *Error in the chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	case KindUpstream:
		if e.Status > 0 {
			return e.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
