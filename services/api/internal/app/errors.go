package app

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP boundary.
type Kind string

const (
	KindBadRequest   Kind = "BAD_REQUEST"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindUpload       Kind = "UPLOAD_FAILED"
	KindBadGateway   Kind = "BAD_GATEWAY"
	KindInternal     Kind = "INTERNAL"
)

// Error is an application error with a message that is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind and message so that wrapped copies created
// with withCause still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// withCause returns a copy of sentinel carrying cause.
func withCause(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

// KindOf reports the kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// PublicMessage returns the client facing message of err. Internal errors
// never leak their cause.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "Internal server error"
}

var (
	ErrFieldsRequired  = newError(KindBadRequest, "All fields are necessary")
	ErrPasswordTooLong = newError(KindBadRequest, "Password must be at most 72 bytes")

	// ErrInvalidCredentials is shared by unknown email and wrong password so
	// that responses do not reveal which accounts exist.
	ErrInvalidCredentials = newError(KindUnauthorized, "Invalid email or password")
	ErrInvalidToken       = newError(KindUnauthorized, "Invalid or expired token")
	ErrForbidden          = newError(KindForbidden, "Token does not grant access to this user")
	ErrEmailAlreadyExists = newError(KindConflict, "Email already exists, please use a different one")

	ErrUserIDRequired      = newError(KindBadRequest, "userId is required")
	ErrInvalidLanguage     = newError(KindBadRequest, "language must be one of en, hi, pu, ta")
	ErrInvalidMessagesJSON = newError(KindBadRequest, "Invalid messages JSON")
	ErrInvalidSender       = newError(KindBadRequest, "sender must be user or bot")
	ErrTooManyFiles        = newError(KindBadRequest, "Too many files")
	ErrNotebookNotFound    = newError(KindNotFound, "No chat found")

	ErrNoFileUploaded      = newError(KindBadRequest, "No file uploaded")
	ErrUnsupportedDocument = newError(KindBadRequest, "Only PDF and image files are supported.")

	ErrUploadFailed   = newError(KindUpload, "File upload failed")
	ErrDocumentFailed = newError(KindBadGateway, "Document processing failed")
	ErrInternal       = newError(KindInternal, "Internal server error")
)
