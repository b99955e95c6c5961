package registry

import (
	"path/filepath"
	"strings"
)

// Category is a semantic model type used to pick a destination folder.
type Category string

const (
	Checkpoint        Category = "Checkpoint"
	LORA              Category = "LORA"
	LoCon             Category = "LoCon"
	DoRA              Category = "DoRA"
	Controlnet        Category = "Controlnet"
	Upscaler          Category = "Upscaler"
	VAE               Category = "VAE"
	TextualInversion  Category = "TextualInversion"
	Hypernetwork      Category = "Hypernetwork"
	AestheticGradient Category = "AestheticGradient"
	Poses             Category = "Poses"
	Wildcards         Category = "Wildcards"
	Workflows         Category = "Workflows"
	MotionModule      Category = "MotionModule"
	Other             Category = "Other"
)

// folders mirrors the ComfyUI directory layout.
var folders = map[Category]string{
	Checkpoint:        "models/checkpoints",
	LORA:              "models/loras",
	LoCon:             "models/loras",
	DoRA:              "models/loras",
	Controlnet:        "models/controlnet",
	Upscaler:          "models/upscale_models",
	VAE:               "models/vae",
	TextualInversion:  "models/embeddings",
	Hypernetwork:      "models/hypernetworks",
	AestheticGradient: "models/classifiers",
	Poses:             "poses",
	Wildcards:         "wildcards",
	Workflows:         "workflows",
	MotionModule:      "models/motion_module",
	Other:             "models/other",
}

// vaeSuffixes always route to VAE when no declared type is known.
var vaeSuffixes = []string{".vae.safetensors", ".vae.pt", ".vae.ckpt"}

// keywordRule maps a lower-cased filename substring to a category.
type keywordRule struct {
	keywords []string
	category Category
}

// extRule dispatches on extension; the first matching keyword rule wins,
// otherwise fallback applies.
type extRule struct {
	exts     []string
	rules    []keywordRule
	fallback Category
}

var extRules = []extRule{
	{
		exts: []string{".safetensors", ".ckpt"},
		rules: []keywordRule{
			{[]string{"lora"}, LORA},
			{[]string{"locon"}, LoCon},
			{[]string{"vae"}, VAE},
			{[]string{"control"}, Controlnet},
		},
		fallback: Checkpoint,
	},
	{
		exts: []string{".pt", ".pth"},
		rules: []keywordRule{
			{[]string{"upscale", "esrgan", "realesr", "swinir", "4x", "2x"}, Upscaler},
			{[]string{"embedding"}, TextualInversion},
		},
		fallback: Other,
	},
	{
		exts:     []string{".bin"},
		fallback: TextualInversion,
	},
	{
		exts: []string{".json"},
		rules: []keywordRule{
			{[]string{"workflow"}, Workflows},
			{[]string{"pose"}, Poses},
		},
		fallback: Other,
	},
	{
		exts:     []string{".pose"},
		fallback: Poses,
	},
	{
		exts: []string{".txt", ".yaml", ".yml"},
		rules: []keywordRule{
			{[]string{"wildcard"}, Wildcards},
		},
		fallback: Other,
	},
}

// ParseCategory matches a declared type case-insensitively against the known
// categories.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for c := range folders {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{
		Checkpoint, LORA, LoCon, DoRA, Controlnet, Upscaler, VAE, TextualInversion,
		Hypernetwork, AestheticGradient, Poses, Wildcards, Workflows, MotionModule, Other,
	}
}

// Classify picks a category for filename. A recognized declared type wins,
// then VAE compound suffixes, then the extension/keyword table.
func Classify(filename, declaredType string) Category {
	if c, ok := ParseCategory(declaredType); ok {
		return c
	}
	lower := strings.ToLower(filename)
	for _, suf := range vaeSuffixes {
		if strings.HasSuffix(lower, suf) {
			return VAE
		}
	}
	ext := filepath.Ext(lower)
	for _, r := range extRules {
		if !contains(r.exts, ext) {
			continue
		}
		for _, kr := range r.rules {
			for _, kw := range kr.keywords {
				if strings.Contains(lower, kw) {
					return kr.category
				}
			}
		}
		return r.fallback
	}
	return Other
}

// Folder returns the install-relative folder for c, falling back to the
// generic folder for unknown categories.
func Folder(c Category) string {
	if f, ok := folders[c]; ok {
		return f
	}
	return folders[Other]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
