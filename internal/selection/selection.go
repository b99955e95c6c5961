// Package selection decides which versions and files of a model to fetch,
// either by asking a Prompter or by deterministic defaults.
package selection

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"

	"civitdl/pkg/types"
)

// LatestToken selects the newest version by creation time.
const LatestToken = "latest"

// Prompter is the interactive capability the policy needs. PresentChoices
// shows a table and returns the raw answer (comma separated 1-based indices,
// or "q" to quit).
type Prompter interface {
	PresentChoices(title string, header []string, rows [][]string) (string, error)
	Confirm(prompt string) (bool, error)
}

// Notifier is optionally implemented by a Prompter to show validation
// messages between attempts.
type Notifier interface {
	Notify(msg string)
}

// downloadableTypes are file types that can actually be fetched.
var downloadableTypes = map[string]bool{
	"model":        true,
	"pruned model": true,
	"vae":          true,
	"locon":        true,
	"lora":         true,
}

var generationOnlyPhrases = []string{"generation only", "not available for download"}

// IsGenerationOnly reports whether v looks like an on-site generation
// resource rather than something downloadable.
func IsGenerationOnly(v types.Version) bool {
	desc := strings.ToLower(v.Description)
	for _, p := range generationOnlyPhrases {
		if strings.Contains(desc, p) {
			return true
		}
	}
	if len(v.Files) == 0 {
		return true
	}
	for _, f := range v.Files {
		if downloadableTypes[strings.ToLower(f.Type)] {
			return false
		}
	}
	return true
}

// Newest returns the version with the greatest creation time. The first
// occurrence wins on ties.
func Newest(versions []types.Version) (types.Version, bool) {
	if len(versions) == 0 {
		return types.Version{}, false
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if v.CreatedAt.After(best.CreatedAt) {
			best = v
		}
	}
	return best, true
}

// FindVersionByName matches name case-insensitively: exact, then prefix,
// then substring. The first hit in list order wins.
func FindVersionByName(versions []types.Version, name string) (types.Version, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	matchers := []func(string) bool{
		func(s string) bool { return s == want },
		func(s string) bool { return strings.HasPrefix(s, want) },
		func(s string) bool { return strings.Contains(s, want) },
	}
	for _, match := range matchers {
		for _, v := range versions {
			if match(strings.ToLower(v.Name)) {
				return v, true
			}
		}
	}
	return types.Version{}, false
}

// ChooseVersions picks the versions of m to fetch.
//
// An explicit name wins ("latest", or a name matched by FindVersionByName).
// Otherwise an interactive prompter chooses among all versions newest first,
// with a confirmation gate for generation-only entries. Without a prompter
// only the newest version is returned; its downloadability is not checked
// here.
func ChooseVersions(m types.Model, interactive bool, explicitName string, p Prompter) ([]types.Version, error) {
	versions := sortedNewestFirst(m.ModelVersions)
	if len(versions) == 0 {
		return nil, ErrNoVersions
	}

	if name := strings.TrimSpace(explicitName); name != "" {
		if strings.EqualFold(name, LatestToken) {
			v, _ := Newest(versions)
			return []types.Version{v}, nil
		}
		if v, ok := FindVersionByName(versions, name); ok {
			return []types.Version{v}, nil
		}
		return nil, versionNotFound(name, versions)
	}

	if !interactive || p == nil {
		v, _ := Newest(versions)
		return []types.Version{v}, nil
	}

	header := []string{"#", "", "Version", "Size", "Downloads", "Trained words"}
	rows := make([][]string, len(versions))
	for i, v := range versions {
		rows[i] = versionRow(i, v)
	}
	idx, err := askIndices(p, fmt.Sprintf("Available versions for %s", m.Name), header, rows)
	if err != nil {
		return nil, err
	}
	var out []types.Version
	for _, i := range idx {
		v := versions[i]
		if IsGenerationOnly(v) {
			ok, err := p.Confirm(fmt.Sprintf("Version %q looks generation-only and may not be downloadable. Include it anyway?", v.Name))
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, ErrNothingSelected
	}
	return out, nil
}

// ChooseFiles picks the files of a version to fetch. Without a prompter the
// primary file (or the first one) is returned.
func ChooseFiles(files []types.File, interactive bool, p Prompter) ([]types.File, error) {
	switch {
	case len(files) == 0:
		return nil, ErrNoDownloadableFiles
	case len(files) == 1:
		return files[:1], nil
	case !interactive || p == nil:
		for _, f := range files {
			if f.Primary {
				return []types.File{f}, nil
			}
		}
		return files[:1], nil
	}

	header := []string{"#", "File", "Size", "Type", "Format"}
	rows := make([][]string, len(files))
	for i, f := range files {
		rows[i] = []string{strconv.Itoa(i + 1), f.Name, formatKB(f.SizeKB), orUnknown(f.Type), orUnknown(f.Metadata.Format)}
	}
	idx, err := askIndices(p, "Available files for this version", header, rows)
	if err != nil {
		return nil, err
	}
	out := make([]types.File, 0, len(idx))
	for _, i := range idx {
		out = append(out, files[i])
	}
	return out, nil
}

// ChooseModel picks one search result. Without a prompter, or with a single
// result, the first result is used. Extra indices in the answer are ignored.
func ChooseModel(results []types.Model, interactive bool, p Prompter) (types.Model, error) {
	if len(results) == 0 {
		return types.Model{}, ErrNoResults
	}
	if !interactive || p == nil || len(results) == 1 {
		return results[0], nil
	}
	header := []string{"#", "Model", "Type", "Versions", "ID"}
	rows := make([][]string, len(results))
	for i, m := range results {
		rows[i] = []string{strconv.Itoa(i + 1), m.Name, orUnknown(m.Type), strconv.Itoa(len(m.ModelVersions)), strconv.FormatInt(m.ID, 10)}
	}
	idx, err := askIndices(p, "Search results", header, rows)
	if err != nil {
		return types.Model{}, err
	}
	return results[idx[0]], nil
}

// askIndices re-prompts until the answer parses or the prompter fails.
func askIndices(p Prompter, title string, header []string, rows [][]string) ([]int, error) {
	for {
		answer, err := p.PresentChoices(title, header, rows)
		if err != nil {
			return nil, err
		}
		idx, err := ParseIndices(answer, len(rows))
		if err == nil {
			return idx, nil
		}
		if errors.Is(err, ErrCanceled) {
			return nil, err
		}
		if n, ok := p.(Notifier); ok {
			n.Notify(err.Error())
		}
	}
}

// ParseIndices parses comma separated 1-based indices (ranges like "2-4" are
// accepted) and returns distinct 0-based indices in input order. "q" cancels.
func ParseIndices(input string, n int) ([]int, error) {
	s := strings.TrimSpace(input)
	if strings.EqualFold(s, "q") || strings.EqualFold(s, "quit") {
		return nil, ErrCanceled
	}
	if s == "" {
		return nil, &InvalidSelectionError{Input: input, Reason: "empty answer"}
	}
	seen := make(map[int]bool)
	var out []int
	add := func(i int) error {
		if i < 1 || i > n {
			return &InvalidSelectionError{Input: input, Reason: fmt.Sprintf("enter numbers between 1 and %d", n)}
		}
		if !seen[i-1] {
			seen[i-1] = true
			out = append(out, i-1)
		}
		return nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			a, errA := strconv.Atoi(strings.TrimSpace(lo))
			b, errB := strconv.Atoi(strings.TrimSpace(hi))
			if errA != nil || errB != nil || a > b {
				return nil, &InvalidSelectionError{Input: input, Reason: fmt.Sprintf("bad range %q", part)}
			}
			for i := a; i <= b; i++ {
				if err := add(i); err != nil {
					return nil, err
				}
			}
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			return nil, &InvalidSelectionError{Input: input, Reason: fmt.Sprintf("%q is not a number", part)}
		}
		if err := add(i); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, &InvalidSelectionError{Input: input, Reason: "no indices given"}
	}
	return out, nil
}

func sortedNewestFirst(in []types.Version) []types.Version {
	out := append([]types.Version(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func versionNotFound(name string, versions []types.Version) error {
	names := make([]string, len(versions))
	for i, v := range versions {
		names[i] = v.Name
	}
	var suggestions []string
	for _, m := range fuzzy.Find(name, names) {
		suggestions = append(suggestions, m.Str)
		if len(suggestions) == 3 {
			break
		}
	}
	return &VersionNotFoundError{Name: name, Available: names, Suggestions: suggestions}
}

func versionRow(i int, v types.Version) []string {
	status := "◯"
	if v.IsBaseModel() {
		status = "✅"
	}
	size := ""
	switch len(v.Files) {
	case 0:
		size = "no files"
	case 1:
		size = formatKB(v.Files[0].SizeKB)
	default:
		size = fmt.Sprintf("%d files", len(v.Files))
	}
	trained := ""
	if n := len(v.TrainedWords); n > 0 {
		trained = fmt.Sprintf("%d trained words", n)
	}
	name := v.Name
	if IsGenerationOnly(v) {
		name += " (generation only)"
	}
	return []string{strconv.Itoa(i + 1), status, name, size, formatCount(v.Downloads()), trained}
}

func formatKB(kb float64) string {
	if kb <= 0 {
		return "?"
	}
	return humanize.IBytes(uint64(kb * 1024))
}

func formatCount(n int64) string { return humanize.Comma(n) }

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
