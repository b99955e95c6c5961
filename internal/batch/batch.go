// Package batch reads lists of references for unattended runs.
//
// Structured files (.yaml/.yml, .json, .toml) hold either a bare list or a
// document with an "items" list. Each entry is a reference string, a number,
// or a record:
//
//	items:
//	  - 46846
//	  - ref: https://civitai.com/models/4201
//	    version: v5.1
//	    model_type: lora
//
// Any other extension is read as text: one reference per line, "#" starts a
// comment and an optional version follows a "|" separator.
package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Item is one requested download.
type Item struct {
	Ref       string `json:"ref" yaml:"ref" toml:"ref"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	ModelType string `json:"model_type,omitempty" yaml:"model_type,omitempty" toml:"model_type,omitempty"`
	Output    string `json:"output,omitempty" yaml:"output,omitempty" toml:"output,omitempty"`
}

// Format names an input syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatText Format = "text"
)

// FormatFor picks a format from the file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	default:
		return FormatText
	}
}

// Load reads and parses the batch file at path.
func Load(path string) ([]Item, error) {
	if path == "" {
		return nil, fmt.Errorf("empty batch path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	items, err := Parse(f, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// Parse reads items in the given format. Entries keep their input order.
func Parse(r io.Reader, format Format) ([]Item, error) {
	if format == FormatText {
		return parseText(r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	var doc any
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(b, &doc)
	case FormatJSON:
		err = json.Unmarshal(b, &doc)
	case FormatTOML:
		var m map[string]any
		err = toml.Unmarshal(b, &m)
		doc = m
	default:
		return nil, fmt.Errorf("unsupported batch format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return fromDocument(doc)
}

func parseText(r io.Reader) ([]Item, error) {
	var items []Item
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := sc.Text()
		if i := strings.Index(s, "#"); i >= 0 && (i == 0 || s[i-1] == ' ' || s[i-1] == '\t') {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		ref, version, _ := strings.Cut(s, "|")
		it := Item{Ref: strings.TrimSpace(ref), Version: strings.TrimSpace(version)}
		if it.Ref == "" {
			return nil, fmt.Errorf("line %d: missing reference", line)
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func fromDocument(doc any) ([]Item, error) {
	switch v := doc.(type) {
	case nil:
		return nil, nil
	case []any:
		return fromList(v)
	case map[string]any:
		raw, ok := v["items"]
		if !ok {
			return nil, fmt.Errorf(`expected a list or an "items" key`)
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf(`"items" must be a list, got %T`, raw)
		}
		return fromList(list)
	default:
		return nil, fmt.Errorf("expected a list of items, got %T", doc)
	}
}

func fromList(list []any) ([]Item, error) {
	items := make([]Item, 0, len(list))
	for i, e := range list {
		it, err := toItem(e)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items = append(items, it)
	}
	return items, nil
}

// toItem accepts a scalar reference or a record. Records may spell the
// reference as ref, id, url or model_id.
func toItem(e any) (Item, error) {
	if m, ok := e.(map[string]any); ok {
		var it Item
		for _, key := range []string{"ref", "id", "url", "model_id"} {
			if v, ok := m[key]; ok {
				s, err := scalar(v)
				if err != nil {
					return Item{}, fmt.Errorf("%s: %w", key, err)
				}
				it.Ref = s
				break
			}
		}
		if it.Ref == "" {
			return Item{}, fmt.Errorf("missing ref")
		}
		for key, dst := range map[string]*string{"version": &it.Version, "model_type": &it.ModelType, "output": &it.Output} {
			if v, ok := m[key]; ok {
				s, err := scalar(v)
				if err != nil {
					return Item{}, fmt.Errorf("%s: %w", key, err)
				}
				*dst = s
			}
		}
		return it, nil
	}
	s, err := scalar(e)
	if err != nil {
		return Item{}, err
	}
	if s == "" {
		return Item{}, fmt.Errorf("empty reference")
	}
	return Item{Ref: s}, nil
}

func scalar(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		if x != float64(int64(x)) {
			return "", fmt.Errorf("non-integer id %v", x)
		}
		return strconv.FormatInt(int64(x), 10), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
