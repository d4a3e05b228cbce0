// Package detect reports which asset types a source tree contains.
//
// Detection is deterministic: given the same directory contents it always
// produces the same report. Files are classified by extension through an
// importer.TypeTable, skipping importer.IgnoredDirs.
package detect

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/assetpipe/pkg/importdb"
	"github.com/albertocavalcante/assetpipe/pkg/importer"
	"github.com/albertocavalcante/assetpipe/pkg/util"
)

// Report counts files per asset type.
type Report struct {
	// Types maps asset type to the number of files of that type.
	Types map[string]int
	// Unknown maps untracked extensions to their file count.
	Unknown map[string]int
	// Sidecars counts metadata sidecar files.
	Sidecars int
}

// TypeNames returns the detected types, sorted.
func (r *Report) TypeNames() []string {
	return util.SortedKeys(r.Types)
}

// UnknownExtensions returns the untracked extensions, sorted.
func (r *Report) UnknownExtensions() []string {
	return util.SortedKeys(r.Unknown)
}

// Total returns the number of files that would be imported.
func (r *Report) Total() int {
	n := 0
	for _, c := range r.Types {
		n += c
	}
	return n
}

// Types walks root and classifies every file with table (nil means the
// default table).
func Types(root string, table *importer.TypeTable) (*Report, error) {
	if table == nil {
		table = importer.NewTypeTable(nil, nil)
	}
	report := &Report{
		Types:   make(map[string]int),
		Unknown: make(map[string]int),
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			for _, prefix := range importer.IgnoredDirs {
				if strings.HasPrefix(name, prefix) {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if strings.HasSuffix(path, importdb.SidecarSuffix) {
			report.Sidecars++
			return nil
		}
		if typ, ok := table.TypeFor(path); ok {
			report.Types[typ]++
			return nil
		}
		if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
			report.Unknown[ext]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
