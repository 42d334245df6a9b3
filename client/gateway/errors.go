package gateway

import "errors"

// Kind classifies a gateway failure.
type Kind int

const (
	// KindTransport means the backend could not be reached at all.
	KindTransport Kind = iota + 1
	// KindServer means the backend answered with an application error.
	KindServer
	// KindAuth means the backend rejected the caller's credentials.
	KindAuth
)

const transportMessage = "cannot connect to server"

// Error is the only error type the gateway returns. Message is always safe
// to show to a user; raw HTTP status codes never leak past this package
// except through the Status field.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// IsTransport reports whether the error is a connectivity failure.
func IsTransport(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindTransport
}

// IsAuth reports whether the backend rejected the credentials.
func IsAuth(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindAuth
}
