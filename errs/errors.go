package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Kind identifies one member of the closed error taxonomy.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidField
	KindMalformedQuery
	KindServiceUnavailable
	KindUserNotFound
)

var kindNames = map[Kind]string{
	KindInternal:           "Internal",
	KindNotFound:           "NotFound",
	KindAlreadyExists:      "AlreadyExists",
	KindInvalidField:       "InvalidField",
	KindMalformedQuery:     "MalformedQuery",
	KindServiceUnavailable: "ServiceUnavailable",
	KindUserNotFound:       "UserNotFound",
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Status returns the HTTP-equivalent status for the kind.
func (k Kind) Status() int {
	switch k {
	case KindNotFound, KindUserNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindInvalidField, KindMalformedQuery:
		return http.StatusBadRequest
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Class returns the error class reported alongside the status.
func (k Kind) Class() string {
	if k == KindAlreadyExists {
		return "Conflict"
	}
	return http.StatusText(k.Status())
}

// Detail describes one root cause of a failure.
type Detail struct {
	UniqueID string `json:"unique_id"`
	Message  string `json:"message"`
}

// NewDetail returns a Detail with a fresh unique id.
func NewDetail(message string) Detail {
	return Detail{UniqueID: uuid.NewString(), Message: message}
}

// Error is the single error type crossing component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Details []Detail
	Cause   error
}

// Sentinels for errors.Is comparisons. Matching is by kind only.
var (
	ErrInternal           = &Error{Kind: KindInternal}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrAlreadyExists      = &Error{Kind: KindAlreadyExists}
	ErrInvalidField       = &Error{Kind: KindInvalidField}
	ErrMalformedQuery     = &Error{Kind: KindMalformedQuery}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
	ErrUserNotFound       = &Error{Kind: KindUserNotFound}
)

// Error renders the kind and message, followed by the cause when set.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Class()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the backend error, if any.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Status returns the HTTP-equivalent status.
func (e *Error) Status() int { return e.Kind.Status() }

// Class returns the error class.
func (e *Error) Class() string { return e.Kind.Class() }

// WithDetail appends a detail and returns the receiver.
func (e *Error) WithDetail(message string) *Error {
	e.Details = append(e.Details, NewDetail(message))
	return e
}

// New builds an error of the given kind. Each detail message becomes one Detail.
func New(kind Kind, message string, details ...string) *Error {
	return Wrap(kind, nil, message, details...)
}

// Wrap builds an error of the given kind carrying cause.
func Wrap(kind Kind, cause error, message string, details ...string) *Error {
	e := &Error{Kind: kind, Message: message, Cause: cause}
	for _, d := range details {
		e.Details = append(e.Details, NewDetail(d))
	}
	return e
}

// NotFound reports an absent record, collection or index. It renders as 404.
func NotFound(message string, details ...string) *Error {
	return New(KindNotFound, message, details...)
}

// AlreadyExists reports a duplicate id or unique value. It renders as 409.
func AlreadyExists(message string, details ...string) *Error {
	return New(KindAlreadyExists, message, details...)
}

// InvalidField reports a write naming a field outside the record's field
// set, or a body that fails validation. It renders as 400.
func InvalidField(message string, details ...string) *Error {
	return New(KindInvalidField, message, details...)
}

// MalformedQuery reports a listing the store cannot run: a bad filter, an
// unknown collection or an out of range page. It renders as 400.
func MalformedQuery(message string, details ...string) *Error {
	return New(KindMalformedQuery, message, details...)
}

// ServiceUnavailable reports a backend, cache or collaborator that could
// not answer in time. It renders as 503.
func ServiceUnavailable(message string, details ...string) *Error {
	return New(KindServiceUnavailable, message, details...)
}

// UserNotFound reports a user id the user service rejected. It renders as
// 404, like NotFound, but stays distinct for errors.Is.
func UserNotFound(message string, details ...string) *Error {
	return New(KindUserNotFound, message, details...)
}

// KindOf returns the kind carried by err, KindInternal when err is not part
// of the taxonomy. Context cancellation and deadlines map to ServiceUnavailable.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindServiceUnavailable
	}
	return KindInternal
}

// From coerces err into an *Error. nil stays nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	kind := KindOf(err)
	return Wrap(kind, err, kind.Class())
}
