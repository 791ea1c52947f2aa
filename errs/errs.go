// Package errs provides structured error types and helpers for sigpack components.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies a failure category surfaced by the packaging toolkit.
type Code string

const (
	// CodeNotFound indicates a missing bundle, file, or strategy name.
	CodeNotFound Code = "not_found"
	// CodeInvalidInput indicates malformed or insufficiently shaped input.
	CodeInvalidInput Code = "invalid_input"
	// CodeExecution indicates the loaded strategy raised during invocation.
	CodeExecution Code = "execution"
	// CodeSerialization indicates the strategy source could not be compiled for storage.
	CodeSerialization Code = "serialization"
	// CodeConflict indicates a conflicting concurrent mutation.
	CodeConflict Code = "conflict"
	// CodeInternal captures uncategorized internal failures.
	CodeInternal Code = "internal"
)

// E captures structured error information produced across the sigpack stack.
type E struct {
	Code     Code
	Strategy string
	Path     string
	HTTP     int
	Message  string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the given code.
func New(code Code, opts ...Option) *E {
	e := &E{
		Code:     code,
		Strategy: "",
		Path:     "",
		HTTP:     0,
		Message:  "",
		cause:    nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithStrategy records the strategy name the failure relates to.
func WithStrategy(name string) Option {
	trimmed := strings.TrimSpace(name)
	return func(e *E) {
		e.Strategy = trimmed
	}
}

// WithPath records the filesystem path the failure relates to.
func WithPath(path string) Option {
	trimmed := strings.TrimSpace(path)
	return func(e *E) {
		e.Path = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = string(CodeInternal)
	}
	parts = append(parts, "code="+code)

	if e.Strategy != "" {
		parts = append(parts, "strategy="+e.Strategy)
	}
	if e.Path != "" {
		parts = append(parts, "path="+strconv.Quote(e.Path))
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the failure code from an error chain, or CodeInternal when absent.
func CodeOf(err error) Code {
	var envelope *E
	if errors.As(err, &envelope) && envelope != nil {
		if strings.TrimSpace(string(envelope.Code)) != "" {
			return envelope.Code
		}
	}
	return CodeInternal
}

// IsNotFound reports whether the error chain carries CodeNotFound.
func IsNotFound(err error) bool { return is(err, CodeNotFound) }

// IsInvalidInput reports whether the error chain carries CodeInvalidInput.
func IsInvalidInput(err error) bool { return is(err, CodeInvalidInput) }

// IsExecution reports whether the error chain carries CodeExecution.
func IsExecution(err error) bool { return is(err, CodeExecution) }

// IsSerialization reports whether the error chain carries CodeSerialization.
func IsSerialization(err error) bool { return is(err, CodeSerialization) }

func is(err error, code Code) bool {
	var envelope *E
	return errors.As(err, &envelope) && envelope != nil && envelope.Code == code
}

// NotFound returns a standardized missing-resource error.
func NotFound(msg string) *E {
	return New(CodeNotFound, WithMessage(strings.TrimSpace(msg)))
}

// InvalidInput returns a standardized invalid-input error.
func InvalidInput(msg string) *E {
	return New(CodeInvalidInput, WithMessage(strings.TrimSpace(msg)))
}
