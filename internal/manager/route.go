package manager

import (
	"path/filepath"
	"strings"

	"civitdl/internal/common/fsutil"
	"civitdl/internal/registry"
)

// declaredType is the type the router classifies by: the override, a VAE
// file inside a checkpoint version, or the model's own type.
func (m *Manager) declaredType(j job, opts Options) string {
	switch {
	case opts.ModelType != "":
		return opts.ModelType
	case strings.EqualFold(j.fileType, "VAE"):
		return "VAE"
	default:
		return j.model.Type
	}
}

// destination returns the directory callback for a transfer. The filename
// is only final after redirect resolution, so routing happens there. The
// routed category is stored in cat.
func (m *Manager) destination(output, declared string, cat *registry.Category) func(string) (string, error) {
	return func(filename string) (string, error) {
		*cat = registry.Classify(filename, declared)
		if output != "" {
			return fsutil.ExpandHome(output)
		}
		root, err := fsutil.ExpandHome(m.installPath)
		if err != nil {
			return "", err
		}
		return filepath.Join(root, filepath.FromSlash(registry.Folder(*cat))), nil
	}
}
