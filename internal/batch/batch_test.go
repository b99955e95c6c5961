package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var want = []Item{
	{Ref: "46846"},
	{Ref: "https://civitai.com/models/4201", Version: "v5.1", ModelType: "lora"},
	{Ref: "12", Output: "/tmp/out"},
}

func check(t *testing.T, got []Item) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len=%d want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("item %d = %+v want %+v", i, got[i], want[i])
		}
	}
}

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_YAML(t *testing.T) {
	p := write(t, "list.yaml", `
items:
  - 46846
  - ref: https://civitai.com/models/4201
    version: v5.1
    model_type: lora
  - id: 12
    output: /tmp/out
`)
	items, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	check(t, items)
}

func TestLoad_JSONBareList(t *testing.T) {
	p := write(t, "list.json", `[46846, {"url":"https://civitai.com/models/4201","version":"v5.1","model_type":"lora"}, {"model_id":12,"output":"/tmp/out"}]`)
	items, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	check(t, items)
}

func TestLoad_TOML(t *testing.T) {
	p := write(t, "list.toml", `
[[items]]
ref = 46846

[[items]]
ref = "https://civitai.com/models/4201"
version = "v5.1"
model_type = "lora"

[[items]]
id = 12
output = "/tmp/out"
`)
	items, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	check(t, items)
}

func TestParse_Text(t *testing.T) {
	in := `
# models for the weekend
46846
https://civitai.com/models/4201 | v5.1   # pinned
https://civitai.com/models/7#gallery

`
	items, err := Parse(strings.NewReader(in), FormatText)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len=%d want 3: %+v", len(items), items)
	}
	if items[1].Ref != "https://civitai.com/models/4201" || items[1].Version != "v5.1" {
		t.Fatalf("item 1 = %+v", items[1])
	}
	if items[2].Ref != "https://civitai.com/models/7#gallery" {
		t.Fatalf("fragment should be kept: %+v", items[2])
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		format Format
		in     string
	}{
		{FormatJSON, `{"models": []}`},
		{FormatJSON, `[1.5]`},
		{FormatJSON, `[{"version": "v1"}]`},
		{FormatYAML, `items: 3`},
		{FormatYAML, `- [a, b]`},
		{FormatJSON, `[""]`},
		{FormatText, "| v1\n"},
		{Format("xml"), "<a/>"},
	}
	for _, c := range cases {
		if _, err := Parse(strings.NewReader(c.in), c.format); err == nil {
			t.Fatalf("expected error for %s %q", c.format, c.in)
		}
	}
}

func TestParse_Empty(t *testing.T) {
	items, err := Parse(strings.NewReader("  \n"), FormatYAML)
	if err != nil || len(items) != 0 {
		t.Fatalf("items=%v err=%v", items, err)
	}
}

func TestFormatFor(t *testing.T) {
	for path, f := range map[string]Format{"a.YML": FormatYAML, "a.json": FormatJSON, "a.toml": FormatTOML, "a.txt": FormatText, "list": FormatText} {
		if got := FormatFor(path); got != f {
			t.Fatalf("FormatFor(%q)=%s want %s", path, got, f)
		}
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
