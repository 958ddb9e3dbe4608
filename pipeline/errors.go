package pipeline

import (
	"errors"
	"fmt"
)

// maxLoggedBodySize caps the amount of request or response body text
// attached to an error log record. This prevents unbounded memory
// usage when a large body accompanies a failure.
const maxLoggedBodySize = 4 << 10 // 4KB

var (
	// ErrNonHTTPResponse indicates the session resolved without an error
	// but also without an HTTP response. This is a defect in the Session
	// implementation, not a network condition.
	ErrNonHTTPResponse = errors.New("non-http response")
	// ErrServerFailure is the sentinel error wrapped by [ServerFailureError].
	ErrServerFailure = errors.New("server failure")
	// ErrWrongContentType is the sentinel error wrapped by [ContentTypeError].
	ErrWrongContentType = errors.New("wrong content type")
	// ErrParse is the sentinel error wrapped by [ParseError].
	ErrParse = errors.New("parse failure")
	// ErrOffline is returned when the engine is configured to simulate a
	// lost connection. [Transient] reports it as transient.
	ErrOffline = errors.New("no connectivity")
	// ErrConflictingBody is returned by [NewDescriptor] when both a body
	// payload and a body stream are supplied.
	ErrConflictingBody = errors.New("descriptor supplies both a body payload and a body stream")
)

// ServerFailureError is returned when the response status code is
// outside the descriptor's accepted set.
type ServerFailureError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ServerFailureError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *ServerFailureError) Unwrap() error {
	return e.Err
}

// ContentTypeError is returned when a non-empty response body arrives
// with a content type other than the one the descriptor expects.
type ContentTypeError struct {
	Expected string
	Got      string
	Err      error
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("%v: expected %s, got %s", e.Err, e.Expected, e.Got)
}

func (e *ContentTypeError) Unwrap() error {
	return e.Err
}

// ParseError is returned when the response body is missing where
// content was expected, or when the codec fails to decode it.
type ParseError struct {
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
