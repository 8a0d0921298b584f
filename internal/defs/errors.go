// Package defs contains shared definitions.
package defs

import "fmt"

// ErrorKind is a case-stable error label that crosses the signaling boundary.
type ErrorKind string

// Error kinds.
const (
	ErrNotInitialized          ErrorKind = "NotInitialized"
	ErrMissingDeviceID         ErrorKind = "MissingDeviceId"
	ErrProtocolOrder           ErrorKind = "ProtocolOrder"
	ErrUnknownTransport        ErrorKind = "UnknownTransport"
	ErrUnknownProducer         ErrorKind = "UnknownProducer"
	ErrUnknownStream           ErrorKind = "UnknownStream"
	ErrUnsupportedCapabilities ErrorKind = "UnsupportedCapabilities"
	ErrProduceFailed           ErrorKind = "ProduceFailed"
	ErrEgressPortsExhausted    ErrorKind = "EgressPortsExhausted"
	ErrProducerClosed          ErrorKind = "ProducerClosed"
	ErrInvalidTransport        ErrorKind = "InvalidTransport"
	ErrInternal                ErrorKind = "InternalError"
)

// Error implements error, carrying an ErrorKind across component boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

// NewError allocates an Error.
func NewError(kind ErrorKind, format string, args ...interface{}) Error {
	return Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindOf extracts the ErrorKind from an error.
func KindOf(err error) (ErrorKind, bool) {
	if e, ok := err.(Error); ok {
		return e.Kind, true
	}
	return "", false
}
