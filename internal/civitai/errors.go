package civitai

import (
	"errors"
	"fmt"
	"net/http"
)

var errEmptyToken = errors.New("empty token")

// FetchError reports a failed metadata request: transport failure, non-200
// status, or an undecodable body.
type FetchError struct {
	Op         string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("civitai: %s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("civitai: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("civitai: %s: status %d", e.Op, e.StatusCode)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err is (or wraps) a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsUnauthorized reports whether err is a FetchError carrying 401 or 403.
func IsUnauthorized(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.StatusCode == http.StatusUnauthorized || fe.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether err is a FetchError carrying 404.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound
}
