package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"civitdl/internal/common/fsutil"
)

// PartSuffix marks an in-progress download next to its final path.
const PartSuffix = ".part"

// Installed describes a file found under one of the category folders.
type Installed struct {
	Category Category
	Name     string
	Path     string
	Size     int64
	// Partial is true for resumable .part leftovers.
	Partial bool
}

// LoadDir scans every category folder under root and returns the files found.
// Folders shared by several categories are listed once under the first
// category in Categories order. Missing folders are skipped. Entries within a
// folder come back in filename order.
func LoadDir(root string) ([]Installed, error) {
	base, err := fsutil.ExpandHome(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	seen := make(map[string]bool)
	var out []Installed
	for _, c := range Categories() {
		rel := Folder(c)
		if seen[rel] {
			continue
		}
		seen[rel] = true
		dir := filepath.Join(abs, filepath.FromSlash(rel))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			name := e.Name()
			out = append(out, Installed{
				Category: c,
				Name:     strings.TrimSuffix(name, PartSuffix),
				Path:     filepath.Join(dir, name),
				Size:     info.Size(),
				Partial:  strings.HasSuffix(name, PartSuffix),
			})
		}
	}
	return out, nil
}
