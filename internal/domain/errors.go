package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies a failure for retry and HTTP mapping decisions
type ErrorKind string

const (
	KindInput     ErrorKind = "input_error"
	KindTimeout   ErrorKind = "timeout_error"
	KindTransient ErrorKind = "service_unavailable"
	KindPermanent ErrorKind = "service_error"
	KindSession   ErrorKind = "session_not_found"
	KindInternal  ErrorKind = "internal_error"
)

// Error is the typed failure crossing component boundaries. The message
// is client-safe; wrapped causes stay server-side.
type Error struct {
	Kind       ErrorKind
	Message    string
	Suggestion string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithSuggestion overrides the default next-step hint
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// Wrap attaches a cause for server-side logging
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// HTTPStatus maps the kind to a response status code
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInput:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindPermanent:
		return http.StatusBadGateway
	case KindSession:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func NewInputError(msg string) *Error {
	return &Error{Kind: KindInput, Message: msg, Suggestion: "check your request and try again"}
}

func NewTimeoutError(msg string) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Suggestion: "try again or narrow your question"}
}

func NewTransientError(msg string) *Error {
	return &Error{Kind: KindTransient, Message: msg, Suggestion: "the assistant is busy, wait a moment and try again"}
}

func NewPermanentError(msg string) *Error {
	return &Error{Kind: KindPermanent, Message: msg, Suggestion: "contact support if the problem persists"}
}

func NewSessionError(msg string) *Error {
	return &Error{Kind: KindSession, Message: msg, Suggestion: "start a new conversation"}
}

func NewInternalError(msg string) *Error {
	return &Error{Kind: KindInternal, Message: msg, Suggestion: "try again later"}
}

// AsError classifies err, converting anything unclassified into an
// internal error so raw detail never reaches a client.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return NewInternalError("an unexpected error occurred").Wrap(err)
}

// IsTransient reports whether err should be retried
func IsTransient(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindTransient
}

// Envelope is the serialized failure contract sent to clients
type Envelope struct {
	Error         string    `json:"error"`
	Message       string    `json:"message"`
	Suggestion    string    `json:"suggestion,omitempty"`
	CorrelationID string    `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEnvelope builds the client-safe envelope for err
func NewEnvelope(err error, correlationID string) Envelope {
	de := AsError(err)
	return Envelope{
		Error:         string(de.Kind),
		Message:       de.Message,
		Suggestion:    de.Suggestion,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
}
