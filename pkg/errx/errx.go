package errx

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type categorizes an error for transport mapping and logging.
type Type string

const (
	TypeInternal      Type = "INTERNAL"
	TypeValidation    Type = "VALIDATION"
	TypeAuthorization Type = "AUTHORIZATION"
	TypeForbidden     Type = "FORBIDDEN"
	TypeNotFound      Type = "NOT_FOUND"
	TypeConflict      Type = "CONFLICT"
	TypeBusiness      Type = "BUSINESS"
	TypeExternal      Type = "EXTERNAL"
	TypeRateLimit     Type = "RATE_LIMIT"
)

func (t Type) String() string { return string(t) }

// Error is a rich error carrying a stable code, a category and the HTTP status
// the transport layer should answer with.
type Error struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Type       Type           `json:"type"`
	HTTPStatus int            `json:"http_status"`
	Details    map[string]any `json:"details,omitempty"`

	// Err is the underlying cause. Kept out of JSON so internal detail never
	// reaches the wire.
	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors created from the same registered code, so callers can use
// errors.Is against a sentinel without caring about per-instance details.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetail attaches a key/value to the error and returns it for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// MarshalJSON includes the rendered error string alongside the fields.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	return json.Marshal(&struct {
		*alias
		Error string `json:"error,omitempty"`
	}{alias: (*alias)(e), Error: e.Error()})
}

// New creates an unregistered error of the given type.
func New(message string, errType Type) *Error {
	return &Error{
		Code:       string(errType),
		Message:    message,
		Type:       errType,
		HTTPStatus: typeToHTTPStatus(errType),
	}
}

// Wrap wraps err with a message and type. A nil err yields nil. If err is
// already an *Error its code and status are preserved.
func Wrap(err error, message string, errType Type) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Code:       existing.Code,
			Message:    message,
			Type:       errType,
			HTTPStatus: existing.HTTPStatus,
			Details:    existing.Details,
			Err:        err,
		}
	}
	return &Error{
		Code:       string(errType),
		Message:    message,
		Type:       errType,
		HTTPStatus: typeToHTTPStatus(errType),
		Err:        err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, errType Type, format string, args ...any) *Error {
	return Wrap(err, fmt.Sprintf(format, args...), errType)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain matching target.
func As(err error, target any) bool { return errors.As(err, target) }

func typeToHTTPStatus(t Type) int {
	switch t {
	case TypeValidation:
		return 400
	case TypeAuthorization:
		return 401
	case TypeForbidden:
		return 403
	case TypeNotFound:
		return 404
	case TypeConflict:
		return 409
	case TypeBusiness:
		return 422
	case TypeRateLimit:
		return 429
	case TypeExternal:
		return 502
	default:
		return 500
	}
}
