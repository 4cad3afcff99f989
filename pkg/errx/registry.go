package errx

import (
	"fmt"
	"sync"
)

// ErrorCode is an error definition registered by a module.
type ErrorCode struct {
	Code       string
	Type       Type
	HTTPStatus int
	Message    string
}

// Registry holds the error codes of one module, namespaced by a prefix.
// Registries are populated at package init time and read-only afterwards.
type Registry struct {
	prefix string
	codes  map[string]*ErrorCode
	mu     sync.RWMutex
}

// NewRegistry creates a registry whose codes are prefixed with the given
// module prefix, e.g. "AUTH" -> "AUTH_INVALID_TOKEN".
func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix: prefix,
		codes:  make(map[string]*ErrorCode),
	}
}

// Register adds an error code to the registry and returns its handle.
func (r *Registry) Register(code string, errType Type, httpStatus int, message string) *ErrorCode {
	r.mu.Lock()
	defer r.mu.Unlock()

	ec := &ErrorCode{
		Code:       fmt.Sprintf("%s_%s", r.prefix, code),
		Type:       errType,
		HTTPStatus: httpStatus,
		Message:    message,
	}
	r.codes[code] = ec
	return ec
}

// New instantiates an error from a registered code.
func (r *Registry) New(code *ErrorCode) *Error {
	return &Error{
		Code:       code.Code,
		Message:    code.Message,
		Type:       code.Type,
		HTTPStatus: code.HTTPStatus,
	}
}

// NewWithMessage instantiates an error with a custom message.
func (r *Registry) NewWithMessage(code *ErrorCode, message string) *Error {
	e := r.New(code)
	e.Message = message
	return e
}

// NewWithCause instantiates an error carrying an underlying cause.
func (r *Registry) NewWithCause(code *ErrorCode, cause error) *Error {
	e := r.New(code)
	e.Err = cause
	return e
}

// Get looks up a registered code by its unprefixed name.
func (r *Registry) Get(code string) (*ErrorCode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ec, ok := r.codes[code]
	return ec, ok
}
