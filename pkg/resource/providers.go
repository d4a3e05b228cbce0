package resource

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/albertocavalcante/assetpipe/pkg/pack"
)

// cleanID rejects ids that would escape a provider root.
func cleanID(id string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(id, "/"))
	if id == "" || id == Wildcard || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid resource id %q", id)
	}
	return clean, nil
}

// readFromDir serves id from a directory.
func readFromDir(root, id string, stream bool) (Data, error) {
	clean, err := cleanID(id)
	if err != nil {
		return nil, err
	}
	full := filepath.Join(root, filepath.FromSlash(clean))
	if !stream {
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, err
		}
		return NewStaticData(id, data), nil
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return NewStreamData(id, f, info.Size()), nil
}

func modTimeInDir(root, id string) time.Time {
	clean, err := cleanID(id)
	if err != nil {
		return time.Time{}
	}
	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(clean)))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// FileSystemProvider serves the files under a directory. Its id list is
// fixed when it is created.
type FileSystemProvider struct {
	root     string
	priority int32
	ids      []string
}

// NewFileSystemProvider lists every regular file under root.
func NewFileSystemProvider(root string, priority int32) (*FileSystemProvider, error) {
	var ids []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	slices.Sort(ids)
	return &FileSystemProvider{root: root, priority: priority, ids: ids}, nil
}

// Root returns the directory served.
func (p *FileSystemProvider) Root() string { return p.root }

// ResourceList implements Provider.
func (p *FileSystemProvider) ResourceList() []string { return slices.Clone(p.ids) }

// Priority implements Provider.
func (p *FileSystemProvider) Priority() int32 { return p.priority }

// Get implements Provider.
func (p *FileSystemProvider) Get(id string, stream bool) (Data, error) {
	return readFromDir(p.root, id, stream)
}

// Timestamp implements Provider.
func (p *FileSystemProvider) Timestamp(id string) time.Time {
	return modTimeInDir(p.root, id)
}

// PackProvider serves the entries of a pack.
type PackProvider struct {
	reader   *pack.Reader
	priority int32
}

// NewPackProvider serves entries from an open pack reader.
func NewPackProvider(r *pack.Reader, priority int32) *PackProvider {
	return &PackProvider{reader: r, priority: priority}
}

// OpenPackProvider opens the pack at path. Close releases the file.
func OpenPackProvider(path string, priority int32) (*PackProvider, error) {
	r, err := pack.Open(path)
	if err != nil {
		return nil, err
	}
	return NewPackProvider(r, priority), nil
}

// ResourceList implements Provider.
func (p *PackProvider) ResourceList() []string { return p.reader.IDs() }

// Priority implements Provider.
func (p *PackProvider) Priority() int32 { return p.priority }

// Get implements Provider. Streams read from the decompressed entry.
func (p *PackProvider) Get(id string, stream bool) (Data, error) {
	data, err := p.reader.ReadEntry(id)
	if err != nil {
		return nil, err
	}
	if stream {
		return NewStreamData(id, io.NopCloser(bytes.NewReader(data)), int64(len(data))), nil
	}
	return NewStaticData(id, data), nil
}

// Timestamp implements Provider.
func (p *PackProvider) Timestamp(id string) time.Time {
	e, ok := p.reader.Entry(id)
	if !ok {
		return time.Time{}
	}
	return e.ModTime
}

// Close closes the pack.
func (p *PackProvider) Close() error {
	return p.reader.Close()
}

// FetchFunc loads any id on demand.
type FetchFunc func(id string, stream bool) (Data, error)

// GenericProvider claims only Wildcard and serves whatever the locator
// could not place elsewhere.
type GenericProvider struct {
	priority int32
	fetch    FetchFunc
	stamp    func(id string) time.Time
}

// NewFallbackProvider serves unclaimed ids from files under root.
func NewFallbackProvider(root string, priority int32) *GenericProvider {
	return &GenericProvider{
		priority: priority,
		fetch: func(id string, stream bool) (Data, error) {
			return readFromDir(root, id, stream)
		},
		stamp: func(id string) time.Time { return modTimeInDir(root, id) },
	}
}

// NewFetchProvider serves unclaimed ids through fetch.
func NewFetchProvider(fetch FetchFunc, priority int32) *GenericProvider {
	return &GenericProvider{priority: priority, fetch: fetch}
}

// ResourceList implements Provider.
func (p *GenericProvider) ResourceList() []string { return []string{Wildcard} }

// Priority implements Provider.
func (p *GenericProvider) Priority() int32 { return p.priority }

// Get implements Provider.
func (p *GenericProvider) Get(id string, stream bool) (Data, error) {
	return p.fetch(id, stream)
}

// Timestamp implements Provider.
func (p *GenericProvider) Timestamp(id string) time.Time {
	if p.stamp == nil {
		return time.Time{}
	}
	return p.stamp(id)
}
