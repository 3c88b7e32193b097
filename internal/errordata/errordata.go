package errordata

import (
  "errors"
  "fmt"
  "net/http"
)

type Kind string

const (
  KindValidation    Kind = "validation"
  KindNotFound      Kind = "not_found"
  KindForbidden     Kind = "forbidden"
  KindUnauthorized  Kind = "unauthorized"
  KindState         Kind = "state"
  KindDelivery      Kind = "delivery"
  KindInternal      Kind = "internal"
)

// Error is a domain failure with a stable reason code that handlers turn into
// an HTTP status. Two Errors match under errors.Is when their codes are equal.
type Error struct {
  Kind        Kind
  Code        string
  Message     string
  Err         error
}

func (e *Error) Error() string {
  if e.Err != nil {
    return fmt.Sprintf("%s: %v", e.Message, e.Err)
  }
  return e.Message
}

func (e *Error) Unwrap() error {
  return e.Err
}

func (e *Error) Is(target error) bool {
  t, ok := target.(*Error)
  if !ok {
    return false
  }
  return e.Code == t.Code
}

// Wrap returns a copy of the sentinel carrying cause.
func (e *Error) Wrap(cause error) *Error {
  return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

// WithMessage returns a copy of the sentinel with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
  return &Error{Kind: e.Kind, Code: e.Code, Message: msg, Err: e.Err}
}

func New(kind Kind, code, message string) *Error {
  return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(code, message string) *Error {
  return New(KindValidation, code, message)
}

func NotFound(code, message string) *Error {
  return New(KindNotFound, code, message)
}

func Forbidden(code, message string) *Error {
  return New(KindForbidden, code, message)
}

func Unauthorized(code, message string) *Error {
  return New(KindUnauthorized, code, message)
}

func State(code, message string) *Error {
  return New(KindState, code, message)
}

func Delivery(code, message string) *Error {
  return New(KindDelivery, code, message)
}

// Internal wraps a persistence or other transient failure.
func Internal(err error) *Error {
  return &Error{Kind: KindInternal, Code: "internal", Message: "Server error", Err: err}
}

// From extracts the domain error from err's chain, or nil.
func From(err error) *Error {
  var de *Error
  if errors.As(err, &de) {
    return de
  }
  return nil
}

func IsKind(err error, kind Kind) bool {
  de := From(err)
  return de != nil && de.Kind == kind
}

func HTTPStatus(err error) int {
  de := From(err)
  if de == nil {
    return http.StatusInternalServerError
  }
  switch de.Kind {
  case KindValidation, KindState:
    return http.StatusBadRequest
  case KindNotFound:
    return http.StatusNotFound
  case KindForbidden:
    return http.StatusForbidden
  case KindUnauthorized:
    return http.StatusUnauthorized
  default:
    return http.StatusInternalServerError
  }
}

// PublicMessage is what a client is allowed to see for err.
func PublicMessage(err error) string {
  de := From(err)
  if de == nil || de.Kind == KindInternal {
    return "Server error"
  }
  return de.Message
}

func PublicCode(err error) string {
  de := From(err)
  if de == nil {
    return "internal"
  }
  return de.Code
}
