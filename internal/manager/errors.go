package manager

import (
	"errors"
	"fmt"
)

// versionMissingError signals that a version URL names a version the model
// does not have.
type versionMissingError struct{ modelID, versionID string }

func (e versionMissingError) Error() string {
	return fmt.Sprintf("model %s has no version %s", e.modelID, e.versionID)
}

// IsVersionMissing reports whether err indicates an unknown version id.
func IsVersionMissing(err error) bool {
	var vm versionMissingError
	return errors.As(err, &vm)
}

// fileFailedError wraps a per-file transfer failure with the file it
// belongs to.
type fileFailedError struct {
	file string
	err  error
}

func (e fileFailedError) Error() string {
	if e.file == "" {
		return e.err.Error()
	}
	return e.file + ": " + e.err.Error()
}

func (e fileFailedError) Unwrap() error { return e.err }
