package transfer

import (
	"errors"
	"fmt"
)

// ErrInsufficientSpace is wrapped by IOError when the destination volume
// cannot hold the remaining bytes.
var ErrInsufficientSpace = errors.New("insufficient disk space")

var errNoFilename = errors.New("unable to determine filename")

// UnauthorizedError is a 401 from the download endpoint. Message carries the
// server's explanation when one was sent.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "transfer: unauthorized (missing or invalid API token)"
	}
	return "transfer: unauthorized: " + e.Message
}

// NotFoundError is a 404 from the download or content endpoint.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string { return "transfer: file not found: " + e.URL }

// UnexpectedStatusError is any other status the protocol does not handle.
type UnexpectedStatusError struct {
	Code    int
	Message string
}

func (e *UnexpectedStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("transfer: unexpected response status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("transfer: unexpected response status %d", e.Code)
}

// rangeRejectedError is returned internally when a ranged content request
// is refused. Transfer recovers from it by restarting from zero.
type rangeRejectedError struct {
	Code int
}

func (e *rangeRejectedError) Error() string {
	return fmt.Sprintf("transfer: range request rejected with status %d", e.Code)
}

// HashMismatchError describes a failed verification. It is attached to
// Verification and never returned from Transfer.
type HashMismatchError struct {
	Path      string
	Algorithm Algorithm
	Expected  string
	Actual    string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("transfer: %s mismatch for %s: expected %s, got %s", e.Algorithm, e.Path, e.Expected, e.Actual)
}

// IOError wraps a failure while writing to disk or reading the body stream.
// The partial file is left in place.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("transfer: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsIOError reports whether err is an IOError.
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}

func isRangeRejected(err error) bool {
	var re *rangeRejectedError
	return errors.As(err, &re)
}
