// Package resolver turns user-supplied model references (download URLs,
// model or version page URLs, bare ids, free text) into a Reference.
package resolver

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidReference is returned for empty or malformed references.
var ErrInvalidReference = errors.New("resolver: invalid model reference")

// DownloadSegment is the path segment of the direct download endpoint.
const DownloadSegment = "/api/download/models/"

// Kind tags the variant carried by a Reference.
type Kind int

const (
	KindDirectDownload Kind = iota + 1
	KindModelPage
	KindVersion
	KindBareID
	KindSearch
)

func (k Kind) String() string {
	switch k {
	case KindDirectDownload:
		return "download-url"
	case KindModelPage:
		return "model-url"
	case KindVersion:
		return "version-url"
	case KindBareID:
		return "id"
	case KindSearch:
		return "search"
	default:
		return "unknown"
	}
}

// Reference is the parsed form of a user input. Only the fields relevant to
// Kind are set.
type Reference struct {
	Kind Kind
	// Raw is the input after trimming; for KindDirectDownload it is the
	// download URL used as-is.
	Raw       string
	ModelID   string
	VersionID string
	Query     string
}

var (
	// model id, optional slug, then end of path
	modelPageRe = regexp.MustCompile(`/models/(\d+)(?:/[^/?#]*)?/?(?:[?#]|$)`)
	// model id, slug, version id
	versionRe = regexp.MustCompile(`/models/(\d+)/[^/?#]+/(\d+)`)
	digitsRe  = regexp.MustCompile(`^\d+$`)
)

// Resolve classifies input. Rules are applied in priority order: download
// endpoint, model page, version page, bare id, search text.
func Resolve(input string) (Reference, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "@")
	if s == "" {
		return Reference{}, ErrInvalidReference
	}

	if i := strings.Index(s, DownloadSegment); i >= 0 {
		id := s[i+len(DownloadSegment):]
		if j := strings.IndexAny(id, "?/#"); j >= 0 {
			id = id[:j]
		}
		if !digitsRe.MatchString(id) {
			return Reference{}, ErrInvalidReference
		}
		return Reference{Kind: KindDirectDownload, Raw: s, VersionID: id}, nil
	}

	if m := modelPageRe.FindStringSubmatch(s); m != nil {
		ref := Reference{Kind: KindModelPage, Raw: s, ModelID: m[1]}
		if v := versionQuery(s); v != "" {
			ref.Kind = KindVersion
			ref.VersionID = v
		}
		return ref, nil
	}

	if m := versionRe.FindStringSubmatch(s); m != nil {
		return Reference{Kind: KindVersion, Raw: s, ModelID: m[1], VersionID: m[2]}, nil
	}

	if digitsRe.MatchString(s) {
		return Reference{Kind: KindBareID, Raw: s, ModelID: s}, nil
	}

	return Reference{Kind: KindSearch, Raw: s, Query: s}, nil
}

// versionQuery extracts ?modelVersionId=N from a model page URL.
func versionQuery(s string) string {
	i := strings.Index(s, "?")
	if i < 0 {
		return ""
	}
	q, err := url.ParseQuery(s[i+1:])
	if err != nil {
		return ""
	}
	v := q.Get("modelVersionId")
	if !digitsRe.MatchString(v) {
		return ""
	}
	return v
}
