package errors

import (
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryProtocol   Category = "protocol"
	CategoryAllocation Category = "allocation"
	CategoryEval       Category = "eval"
	CategoryHotReload  Category = "hotreload"
	CategoryIngest     Category = "ingest"
	CategoryConfig     Category = "config"
)

// RenderError is a coded error with an explanation and a fix suggestion.
type RenderError struct {
	// Code is a unique error identifier (e.g., "R001").
	Code string

	// Category is the error type (protocol, eval, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *RenderError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *RenderError) WithSuggestion(s string) *RenderError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *RenderError) WithDetail(d string) *RenderError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *RenderError) Wrap(err error) *RenderError {
	e.Wrapped = err
	return e
}

// New creates a RenderError from a registered error code.
func New(code string) *RenderError {
	template, ok := templates[code]
	if !ok {
		return &RenderError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &RenderError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
		DocURL:     template.DocURL,
	}
}

// Newf creates a new RenderError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *RenderError {
	return &RenderError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a RenderError.
func FromError(err error, code string) *RenderError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RenderError); ok {
		return re
	}
	return New(code).Wrap(err)
}
