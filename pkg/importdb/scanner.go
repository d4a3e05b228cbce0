package importdb

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/albertocavalcante/assetpipe/internal/log"
	"github.com/albertocavalcante/assetpipe/pkg/importer"
)

// SidecarSuffix marks a metadata file that belongs to the asset whose path
// it extends, e.g. hero.png.meta.yaml for hero.png.
const SidecarSuffix = ".meta.yaml"

// ScanConfig configures the scanner.
type ScanConfig struct {
	Root       string
	Types      *importer.TypeTable // nil = default table
	IgnoreDirs []string            // Additional dir prefixes to ignore
	Ignore     []string            // doublestar globs on slash paths relative to Root
	Mode       FingerprintMode
}

// Scanner builds candidate assets by walking the source tree.
type Scanner struct {
	root       string
	types      *importer.TypeTable
	ignoreDirs []string
	ignore     []string
	mode       FingerprintMode
	logger     *zap.SugaredLogger
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg ScanConfig) (*Scanner, error) {
	types := cfg.Types
	if types == nil {
		types = importer.NewTypeTable(nil, nil)
	}
	for _, pattern := range cfg.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}
	mode, err := ParseFingerprintMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}

	// Combine default and custom ignored dirs
	ignoreDirs := slices.Clone(importer.IgnoredDirs)
	ignoreDirs = append(ignoreDirs, cfg.IgnoreDirs...)

	return &Scanner{
		root:       cfg.Root,
		types:      types,
		ignoreDirs: ignoreDirs,
		ignore:     slices.Clone(cfg.Ignore),
		mode:       mode,
		logger:     log.Component("scanner"),
	}, nil
}

// Root returns the source root.
func (s *Scanner) Root() string {
	return s.root
}

// Types returns the type table used for detection.
func (s *Scanner) Types() *importer.TypeTable {
	return s.types
}

// Ignored reports whether a slash-separated relative path matches an ignore glob.
func (s *Scanner) Ignored(rel string) bool {
	for _, pattern := range s.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// IgnoredDir reports whether a directory name is skipped.
func (s *Scanner) IgnoredDir(name string) bool {
	for _, prefix := range s.ignoreDirs {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Scan walks the source tree and returns one asset per tracked file,
// sorted by id.
func (s *Scanner) Scan(ctx context.Context) ([]Asset, error) {
	var (
		assets   []Asset
		sidecars = make(map[string]string) // asset id -> sidecar rel path
	)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return err
		}

		// Skip ignored directories, never the root itself
		if d.IsDir() {
			if path != s.root && s.IgnoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel := filepath.ToSlash(relPath)
		if s.Ignored(rel) {
			return nil
		}

		if base, ok := strings.CutSuffix(rel, SidecarSuffix); ok {
			sidecars[base] = rel
			return nil
		}

		typ, ok := s.types.TypeFor(rel)
		if !ok {
			return nil
		}

		fp, err := FingerprintFile(s.root, rel, s.mode)
		if err != nil {
			return err
		}
		assets = append(assets, Asset{
			ID:     rel,
			Type:   typ,
			Inputs: []Fingerprint{fp},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range assets {
		sidecar, ok := sidecars[assets[i].ID]
		if !ok {
			continue
		}
		if err := s.attachSidecar(&assets[i], sidecar); err != nil {
			return nil, err
		}
	}

	slices.SortFunc(assets, func(a, b Asset) int { return strings.Compare(a.ID, b.ID) })
	return assets, nil
}

// attachSidecar parses a sidecar into metadata and adds it as a second input.
// A "type" key overrides the extension-derived type. A sidecar that does not
// parse marks the asset Invalid instead of failing the scan.
func (s *Scanner) attachSidecar(a *Asset, rel string) error {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("failed to read sidecar %s: %w", rel, err)
	}
	fp, err := FingerprintFile(s.root, rel, s.mode)
	if err != nil {
		return err
	}
	meta, err := ParseSidecar(data)
	if err != nil {
		// The sidecar stays an input so fixing it makes the asset stale again.
		s.logger.Warnw("ignoring malformed sidecar", "asset", a.ID, "sidecar", rel, "error", err)
		a.Invalid = fmt.Sprintf("sidecar %s: %v", rel, err)
		a.Inputs = append(a.Inputs, fp)
		return nil
	}

	if typ, ok := meta["type"]; ok && typ != "" {
		a.Type = typ
		delete(meta, "type")
	}
	if len(meta) > 0 {
		a.Metadata = meta
	}
	a.Inputs = append(a.Inputs, fp)
	return nil
}

// ParseSidecar decodes a flat YAML mapping into string metadata.
// Non-string scalars are rendered with their YAML text.
func ParseSidecar(data []byte) (map[string]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	meta := make(map[string]string)
	if len(doc.Content) == 0 {
		return meta, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("sidecar must be a mapping, got %s", kindName(root.Kind))
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("sidecar key %q: value must be a scalar", key.Value)
		}
		meta[key.Value] = value.Value
	}
	return meta, nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
