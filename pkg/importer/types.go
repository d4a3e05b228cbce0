package importer

import (
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/assetpipe/pkg/util"
)

// DefaultExtensions maps asset types to the source file extensions that
// produce them.
//
// This is the single source of truth for type detection across the scanner,
// the watcher and the init command. Config overrides are layered on top by
// NewTypeTable.
var DefaultExtensions = map[string][]string{
	"image":    {".png", ".jpg", ".jpeg", ".gif"},
	"config":   {".json", ".jsonc"},
	"markdown": {".md", ".markdown"},
	"copy":     {".txt", ".csv", ".bin", ".wav", ".ogg", ".ttf", ".otf", ".glsl", ".vert", ".frag"},
}

// IgnoredDirs contains directory prefixes to skip during scanning/watching.
//
// Prefix matching means "." matches every hidden directory, including the
// .assetpipe state directory.
var IgnoredDirs = []string{
	".",            // Hidden directories
	"node_modules", // Node.js dependencies
	"__pycache__",  // Python cache
	"vendor",       // Vendored deps
	"build",        // Generic build output
	"out",          // Generic output
	"dist",         // Distribution output
}

// TypeTable resolves source paths to asset types by extension.
type TypeTable struct {
	byExt map[string]string
}

// NewTypeTable builds a table from the default extensions of the given types
// (nil means all) plus explicit extension overrides (".dds" -> "texture").
// Overrides win over defaults.
func NewTypeTable(types []string, overrides map[string]string) *TypeTable {
	t := &TypeTable{byExt: make(map[string]string)}

	if len(types) == 0 {
		types = util.SortedKeys(DefaultExtensions)
	}
	for _, typ := range types {
		for _, ext := range DefaultExtensions[typ] {
			t.byExt[ext] = typ
		}
	}
	for ext, typ := range overrides {
		ext = normalizeExt(ext)
		if typ == "" {
			delete(t.byExt, ext)
			continue
		}
		t.byExt[ext] = typ
	}
	return t
}

// TypeFor returns the asset type of a path, or false if it is not tracked.
func (t *TypeTable) TypeFor(path string) (string, bool) {
	if t == nil {
		return "", false
	}
	typ, ok := t.byExt[strings.ToLower(filepath.Ext(path))]
	return typ, ok
}

// Tracks reports whether files with this path's extension are assets.
func (t *TypeTable) Tracks(path string) bool {
	_, ok := t.TypeFor(path)
	return ok
}

// Extensions returns the tracked extensions in sorted order.
func (t *TypeTable) Extensions() []string {
	if t == nil {
		return nil
	}
	return util.SortedKeys(t.byExt)
}

// Types returns the asset types the table can produce, sorted.
func (t *TypeTable) Types() []string {
	if t == nil {
		return nil
	}
	types := make([]string, 0, len(t.byExt))
	for _, typ := range t.byExt {
		types = append(types, typ)
	}
	return util.SortedSet(types)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
