package selection

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoDownloadableFiles is returned when a version carries no files.
	ErrNoDownloadableFiles = errors.New("selection: no downloadable files")

	// ErrCanceled is returned when the user quits a prompt.
	ErrCanceled = errors.New("selection: canceled by user")

	// ErrNoVersions is returned for a model without published versions.
	ErrNoVersions = errors.New("selection: model has no versions")

	// ErrNothingSelected is returned when every chosen version was declined.
	ErrNothingSelected = errors.New("selection: nothing selected")

	// ErrNoResults is returned when a search matched nothing.
	ErrNoResults = errors.New("selection: no models matched the search")
)

// VersionNotFoundError lists the available version names so callers can show
// them.
type VersionNotFoundError struct {
	Name        string
	Available   []string
	Suggestions []string
}

func (e *VersionNotFoundError) Error() string {
	msg := fmt.Sprintf("selection: no version matching %q", e.Name)
	if len(e.Suggestions) > 0 {
		msg += "; did you mean " + strings.Join(e.Suggestions, ", ") + "?"
	}
	return msg
}

// IsVersionNotFound reports whether err is a VersionNotFoundError.
func IsVersionNotFound(err error) bool {
	var vnf *VersionNotFoundError
	return errors.As(err, &vnf)
}

// InvalidSelectionError describes why an index answer was rejected.
type InvalidSelectionError struct {
	Input  string
	Reason string
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("invalid selection %q: %s", e.Input, e.Reason)
}
