// Package apperr classifies failures coming back from the remote API and the
// chain RPC so that callers decide on retries from structured data.
package apperr

import (
	stdErrors "errors"
	"fmt"
	"net"
)

// Kind is the failure class of an error.
type Kind string

// Severity is the log level a failure of a kind is reported at.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

const (
	KindUnknown      Kind = "UNKNOWN"
	KindConnectivity Kind = "CONNECTIVITY"
	KindBusiness     Kind = "BUSINESS"
	KindTimeout      Kind = "TIMEOUT"
	KindFatal        Kind = "FATAL"
)

// Attributes are the default behaviours attached to a kind.
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
}

var registry = map[Kind]Attributes{
	KindUnknown: {
		Message:  "unexpected error",
		Severity: SeverityError,
	},
	KindConnectivity: {
		Message:   "could not resolve remote host",
		Severity:  SeverityError,
		Retryable: true,
	},
	KindBusiness: {
		Message:  "request rejected",
		Severity: SeverityWarning,
	},
	KindTimeout: {
		Message:  "operation timed out",
		Severity: SeverityWarning,
	},
	KindFatal: {
		Message:  "fatal startup condition",
		Severity: SeverityCritical,
	},
}

// AttributesOf returns the attributes of kind, falling back to UNKNOWN.
func AttributesOf(kind Kind) Attributes {
	if attr, ok := registry[kind]; ok {
		return attr
	}
	return registry[KindUnknown]
}

// Error is the classified error type returned by the collaborators.
type Error struct {
	kind    Kind
	op      string
	message string
	cause   error
}

func newError(kind Kind, op, message string, cause error) *Error {
	if message == "" {
		message = AttributesOf(kind).Message
	}
	return &Error{kind: kind, op: op, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	prefix := string(e.kind)
	if e.op != "" {
		prefix = e.op + ": " + prefix
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error of the same kind, so errors.Is(err, apperr.ErrBusiness) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.kind == t.kind && t.op == "" && t.cause == nil
}

// Sentinels for errors.Is.
var (
	ErrConnectivity = &Error{kind: KindConnectivity}
	ErrBusiness     = &Error{kind: KindBusiness}
	ErrTimeout      = &Error{kind: KindTimeout}
	ErrFatal        = &Error{kind: KindFatal}
)

func Connectivity(op string, cause error) *Error {
	return newError(KindConnectivity, op, "", cause)
}

func Business(op, message string) *Error {
	return newError(KindBusiness, op, message, nil)
}

func Businessf(op, format string, args ...any) *Error {
	return newError(KindBusiness, op, fmt.Sprintf(format, args...), nil)
}

func Timeout(op string, cause error) *Error {
	return newError(KindTimeout, op, "", cause)
}

func Fatal(op string, cause error) *Error {
	return newError(KindFatal, op, "", cause)
}

func Fatalf(op, format string, args ...any) *Error {
	return newError(KindFatal, op, fmt.Sprintf(format, args...), nil)
}

// FromTransport tags a raw transport error. Host resolution failures are the
// only connectivity failures; anything else keeps its cause as UNKNOWN.
func FromTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if stdErrors.As(err, &classified) {
		return err
	}
	var dnsErr *net.DNSError
	if stdErrors.As(err, &dnsErr) {
		return Connectivity(op, err)
	}
	return newError(KindUnknown, op, "transport error", err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var classified *Error
	if stdErrors.As(err, &classified) {
		return classified.kind
	}
	return KindUnknown
}

// SeverityOf returns the severity of err's kind. Unclassified errors are
// reported as UNKNOWN.
func SeverityOf(err error) Severity {
	return AttributesOf(KindOf(err)).Severity
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var classified *Error
	if !stdErrors.As(err, &classified) {
		return false
	}
	return AttributesOf(classified.kind).Retryable
}
