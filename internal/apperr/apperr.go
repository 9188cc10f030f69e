// Package apperr defines the error taxonomy shared by both services so
// HTTP handlers and the event consumer can map a failure to a status code
// or a retry decision without string-matching error messages.
package apperr

import "errors"

// Code identifies the category of a failure.
type Code string

const (
	CodeInvalidInput         Code = "INVALID_INPUT"
	CodeDocumentTooLarge     Code = "DOCUMENT_TOO_LARGE"
	CodeWalletNotFound       Code = "WALLET_NOT_FOUND"
	CodeWalletAlreadyExists  Code = "WALLET_ALREADY_EXISTS"
	CodeWalletGenerationFail Code = "WALLET_GENERATION_FAILED"
	CodeMnemonicSecurity     Code = "MNEMONIC_SECURITY"
	CodePublishFailed        Code = "PUBLISH_FAILED"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Error wraps an underlying cause with a taxonomy code and an
// operator-safe message suitable for returning to a caller.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
