package docstore

import (
	"errors"
	"fmt"
)

// ErrUnrecognizedResponse matches every *UnrecognizedResponseError.
var ErrUnrecognizedResponse = errors.New("document store returned a response that could not be understood")

// TransportError is a connection, timeout or TLS failure. No response was
// received.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("docstore: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteRejectedError is a non-2xx response whose body carried a message.
type RemoteRejectedError struct {
	StatusCode int
	Message    string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("docstore: rejected (%d): %s", e.StatusCode, e.Message)
}

// UnrecognizedResponseError is a response whose body could not be decoded.
// The raw body has already been logged; Summary is a short description safe
// to show a user.
type UnrecognizedResponseError struct {
	StatusCode int
	Summary    string
}

func (e *UnrecognizedResponseError) Error() string {
	if e.Summary == "" {
		return fmt.Sprintf("docstore: %v (%d)", ErrUnrecognizedResponse, e.StatusCode)
	}
	return fmt.Sprintf("docstore: %v (%d): %s", ErrUnrecognizedResponse, e.StatusCode, e.Summary)
}

func (e *UnrecognizedResponseError) Is(target error) bool {
	return target == ErrUnrecognizedResponse
}

// UnknownRecordStatusError is returned by an existence check answered with
// neither 200 nor 404.
type UnknownRecordStatusError struct {
	ID         string
	StatusCode int
}

func (e *UnknownRecordStatusError) Error() string {
	return fmt.Sprintf("docstore: unknown status %d checking document %s", e.StatusCode, e.ID)
}

// IsRemoteRejected reports whether err is a *RemoteRejectedError with the
// given status code. A code of 0 matches any status.
func IsRemoteRejected(err error, statusCode int) bool {
	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		return statusCode == 0 || rejected.StatusCode == statusCode
	}
	return false
}

// IsTransport reports whether err is a *TransportError.
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
