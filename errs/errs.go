// Package errs defines the structured error type shared by pwapub components.
//
// Callers branch on Kind rather than matching error strings. Error() strings
// are for humans and may evolve.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable failure category.
type Kind string

const (
	KindMissingCredentials    Kind = "MissingCredentials"
	KindInvalidCredential     Kind = "InvalidCredential"
	KindIdentityNotFound      Kind = "IdentityNotFound"
	KindMissingRelays         Kind = "MissingRelays"
	KindConnectionFailed      Kind = "ConnectionFailed"
	KindHandshakeTimeout      Kind = "HandshakeTimeout"
	KindNoServersConfigured   Kind = "NoServersConfigured"
	KindUploadFailed          Kind = "UploadFailed"
	KindPublishPartialFailure Kind = "PublishPartialFailure"
	KindInvalidInput          Kind = "InvalidInput"
)

// Error is the structured error returned by pwapub packages.
//
// Endpoint names the relay, storage server, or identity involved, when there
// is one.
type Error struct {
	Kind     Kind
	Endpoint string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Endpoint != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Endpoint)
	}
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New returns an *Error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with fmt formatting.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind carrying cause. A nil cause yields
// the same result as New.
func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// AtEndpoint returns an *Error bound to a specific endpoint.
func AtEndpoint(kind Kind, endpoint, msg string, cause error) error {
	return &Error{Kind: kind, Endpoint: endpoint, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
