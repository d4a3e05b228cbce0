package batch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/assetpipe/pkg/importdb"
	"github.com/albertocavalcante/assetpipe/pkg/importer"
)

// OutputStore is where routines write and where orphans are deleted.
type OutputStore interface {
	importdb.OutputChecker
	// Root is the destination handed to routines.
	Root() string
	// Remove deletes an output. Removing a missing output is not an error.
	Remove(rel string) error
}

// SourceReader loads the bytes behind an input fingerprint.
type SourceReader interface {
	ReadInput(fp importdb.Fingerprint) (importer.File, error)
}

// DirOutputs is an OutputStore rooted at a directory.
type DirOutputs struct {
	root string
}

// NewDirOutputs creates an output store rooted at dir.
func NewDirOutputs(dir string) *DirOutputs {
	return &DirOutputs{root: dir}
}

// Root implements OutputStore.
func (d *DirOutputs) Root() string {
	return d.root
}

// Exists implements importdb.OutputChecker.
func (d *DirOutputs) Exists(rel string) bool {
	return importdb.DirChecker(d.root).Exists(rel)
}

// Remove deletes rel and any parent directories it leaves empty, up to the root.
func (d *DirOutputs) Remove(rel string) error {
	clean, err := importer.CleanOutput(rel)
	if err != nil {
		return err
	}
	path := filepath.Join(d.root, filepath.FromSlash(clean))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove output %s: %w", clean, err)
	}

	root := filepath.Clean(d.root)
	for dir := filepath.Dir(path); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		// Fails on non-empty directories, which ends the walk
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// DirSources reads inputs relative to a source root.
type DirSources struct {
	root string
}

// NewDirSources creates a reader rooted at dir.
func NewDirSources(dir string) *DirSources {
	return &DirSources{root: dir}
}

// ReadInput implements SourceReader.
func (d *DirSources) ReadInput(fp importdb.Fingerprint) (importer.File, error) {
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(fp.Path)))
	if err != nil {
		return importer.File{}, fmt.Errorf("failed to read input %s: %w", fp.Path, err)
	}
	return importer.File{Name: fp.Path, Data: data}, nil
}
