package errors

import "fmt"

// Error is gundog's structured error type. It carries a stable wire
// code (see codes.go) so the daemon can translate it directly into a
// wire `error` frame without string matching.
type Error struct {
	Code       string
	Message    string
	Category   Category
	Cause      error
	Suggestion string
}

// New creates an Error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message, Category: categoryForCode(code)}
}

// Wrap creates an Error with the given code that chains to cause.
func Wrap(code string, cause error) *Error {
	return &Error{Code: code, Message: cause.Error(), Category: categoryForCode(code), Cause: cause}
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, errors.New(CodeIndexBusy, "")) to match by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithSuggestion attaches an actionable suggestion for CLI display.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// CodeOf extracts the wire code from err, defaulting to CodeInternal
// for errors that were never wrapped (e.g. raw I/O errors).
func CodeOf(err error) string {
	var e *Error
	if As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// As is a thin re-export of errors.As to keep call sites inside this
// package from importing both "errors" and the standard library package
// of the same name under an alias.
func As(err error, target any) bool {
	return stdAs(err, target)
}
