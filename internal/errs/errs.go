// Package errs provides the runtime's error taxonomy: every error surfaced
// across the catalog, bus, and actor runtime carries a stable code, an HTTP-ish
// status class, a user-facing message, and structured context.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a distinct failure condition (see spec §7).
type Code string

const (
	InvalidEventDefinition Code = "INVALID_EVENT_DEFINITION"
	EventNotFound          Code = "EVENT_NOT_FOUND"
	InvalidConsumer        Code = "INVALID_CONSUMER"
	EventRegistrationFailed Code = "EVENT_REGISTRATION_FAILED"
	CommandValidationFailed Code = "COMMAND_VALIDATION_FAILED"
	ValidationError        Code = "VALIDATION_ERROR"
	RateLimitExceeded      Code = "RATE_LIMIT_EXCEEDED"
	CircuitOpen            Code = "CIRCUIT_OPEN"
	RequestTimeout         Code = "REQUEST_TIMEOUT"
	StateValidationFailed  Code = "STATE_VALIDATION_FAILED"
	ConfigValidationFailed Code = "CONFIG_VALIDATION_FAILED"
	NotFound               Code = "NOT_FOUND"
	UnknownCommand         Code = "UNKNOWN_COMMAND"
	UnknownQuery           Code = "UNKNOWN_QUERY"
	UnknownError           Code = "UNKNOWN_ERROR"
)

var statusByCode = map[Code]int{
	InvalidEventDefinition:  http.StatusBadRequest,
	EventNotFound:           http.StatusNotFound,
	InvalidConsumer:         http.StatusBadRequest,
	EventRegistrationFailed: http.StatusInternalServerError,
	CommandValidationFailed: http.StatusBadRequest,
	ValidationError:         http.StatusBadRequest,
	RateLimitExceeded:       http.StatusTooManyRequests,
	CircuitOpen:             http.StatusServiceUnavailable,
	RequestTimeout:          http.StatusGatewayTimeout,
	StateValidationFailed:   http.StatusInternalServerError,
	ConfigValidationFailed:  http.StatusInternalServerError,
	NotFound:                http.StatusNotFound,
	UnknownCommand:          http.StatusBadRequest,
	UnknownQuery:            http.StatusBadRequest,
	UnknownError:            http.StatusInternalServerError,
}

// FieldError describes one offending path within a payload, as produced by
// catalog.ValidatePayload and surfaced on COMMAND_VALIDATION_FAILED.
type FieldError struct {
	Path     string `json:"path"`
	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
	Received string `json:"received,omitempty"`
}

// Error is the structured error type carried through the runtime.
type Error struct {
	Code        Code                   `json:"code"`
	StatusCode  int                    `json:"statusCode"`
	UserMessage string                 `json:"userMessage"`
	Context     map[string]any         `json:"context,omitempty"`
	FieldErrors []FieldError           `json:"fieldErrors,omitempty"`
	Err         error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.UserMessage, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.UserMessage)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// With attaches a context key/value and returns the same error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithFieldErrors attaches per-field validation errors.
func (e *Error) WithFieldErrors(fe []FieldError) *Error {
	e.FieldErrors = fe
	return e
}

// New creates a runtime error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, StatusCode: statusByCode[code], UserMessage: message}
}

// Wrap creates a runtime error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, StatusCode: statusByCode[code], UserMessage: message, Err: cause}
}

// Is reports whether err is a runtime error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// As extracts the runtime error from err's chain, if present.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// StatusCode returns the status class for err, defaulting to 500.
func StatusCode(err error) int {
	if e := As(err); e != nil {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Convenience constructors mirroring spec §7.

func NewInvalidEventDefinition(reason string) *Error {
	return New(InvalidEventDefinition, reason)
}

func NewEventNotFound(name string) *Error {
	return New(EventNotFound, fmt.Sprintf("event %q not found", name)).With("event", name)
}

func NewInvalidConsumer(reason string) *Error {
	return New(InvalidConsumer, reason)
}

func NewEventRegistrationFailed(cause error) *Error {
	return Wrap(EventRegistrationFailed, "event registration failed", cause)
}

func NewCommandValidationFailed(fe []FieldError) *Error {
	return New(CommandValidationFailed, "command payload validation failed").WithFieldErrors(fe)
}

func NewRateLimitExceeded(key string) *Error {
	return New(RateLimitExceeded, "rate limit exceeded").With("key", key)
}

func NewCircuitOpen(name string) *Error {
	return New(CircuitOpen, "circuit breaker open").With("breaker", name)
}

func NewRequestTimeout(correlationID string) *Error {
	return New(RequestTimeout, "request timed out").With("correlationId", correlationID)
}

func NewStateValidationFailed(fe []FieldError) *Error {
	return New(StateValidationFailed, "persisted state failed schema validation").WithFieldErrors(fe)
}

func NewConfigValidationFailed(reason string) *Error {
	return New(ConfigValidationFailed, reason)
}

func NewNotFound(resource, id string) *Error {
	return New(NotFound, fmt.Sprintf("%s %q not found", resource, id)).With("resource", resource).With("id", id)
}

func NewUnknownCommand(eventType string) *Error {
	return New(UnknownCommand, fmt.Sprintf("no handler for command %q", eventType)).With("type", eventType)
}

func NewUnknownQuery(eventType string) *Error {
	return New(UnknownQuery, fmt.Sprintf("no handler for query %q", eventType)).With("type", eventType)
}

func NewUnknown(cause error) *Error {
	return Wrap(UnknownError, "unclassified error", cause)
}

// Transformer maps a substring found in a lowercase error message to a code
// and factory, mirroring the actor runtime's "error transformation" step (§4.3).
type Transformer struct {
	Substring string
	Build     func(err error) *Error
}

// DefaultTransformers is the registered-pattern transformer set applied to
// any error an actor handler returns before it is surfaced to the caller.
func DefaultTransformers() []Transformer {
	return []Transformer{
		{Substring: "connection refused", Build: func(err error) *Error {
			return Wrap(UnknownError, "database connection failed", err).With("class", "DB_CONNECTION_FAILED")
		}},
		{Substring: "validation", Build: func(err error) *Error {
			return Wrap(ValidationError, "validation failed", err)
		}},
		{Substring: "not found", Build: func(err error) *Error {
			return Wrap(NotFound, "resource not found", err)
		}},
	}
}

// Transform applies DefaultTransformers, falling back to UNKNOWN_ERROR.
func Transform(err error, actor string) *Error {
	if err == nil {
		return nil
	}
	if e := As(err); e != nil {
		return e
	}
	msg := err.Error()
	for _, t := range DefaultTransformers() {
		if containsFold(msg, t.Substring) {
			return t.Build(err).With("actor", actor)
		}
	}
	return NewUnknown(err).With("actor", actor)
}

func containsFold(s, substr string) bool {
	sl, subl := len(s), len(substr)
	if subl == 0 {
		return true
	}
	if subl > sl {
		return false
	}
	lower := func(r byte) byte {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}
	for i := 0; i+subl <= sl; i++ {
		match := true
		for j := 0; j < subl; j++ {
			if lower(s[i+j]) != lower(substr[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// SecurityKeywords flags errors whose message suggests an authz/authn failure,
// per spec §7's "security-flavored errors" policy. Callers use this to decide
// whether to additionally emit a command_security_error.
func SecurityKeywords(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, kw := range []string{"unauthorized", "forbidden", "authentication", "permission", "access denied", "invalid token"} {
		if containsFold(msg, kw) {
			return true
		}
	}
	return false
}
