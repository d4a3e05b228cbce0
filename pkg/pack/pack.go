// Package pack implements the packed archive consumed by resource.PackProvider.
//
// Layout:
//
//	"APK1" | index length (uint32 LE) | CBOR index | blobs
//
// Blob offsets in the index are relative to the first byte after the index.
// Every blob carries the BLAKE3 hash of its uncompressed bytes, which is
// verified on read.
package pack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/albertocavalcante/assetpipe/internal/codec"
)

// Magic identifies a pack file.
const Magic = "APK1"

// IndexVersion is the current version of the index format.
const IndexVersion = 1

const headerSize = len(Magic) + 4

var (
	// ErrNotFound is returned for ids that are not in the pack.
	ErrNotFound = errors.New("pack entry not found")
	// ErrCorrupt marks a malformed pack or a blob whose hash does not match.
	ErrCorrupt = errors.New("pack corrupt")
)

// Entry is one blob to pack.
type Entry struct {
	ID      string
	Data    []byte
	ModTime time.Time
}

// IndexEntry describes one stored blob.
type IndexEntry struct {
	ID          string      `json:"id"`
	Offset      uint64      `json:"offset"`
	Size        uint64      `json:"size"`
	StoredSize  uint64      `json:"stored_size"`
	Compression Compression `json:"compression"`
	ModTime     time.Time   `json:"mod_time"`
	Hash        []byte      `json:"hash"`
}

type index struct {
	Version int          `json:"version"`
	Entries []IndexEntry `json:"entries"`
}

// BuildOptions tunes Build.
type BuildOptions struct {
	// Compression picks the codec per id. Defaults to ChooseCompression.
	Compression func(id string) Compression
}

// Build writes a pack containing entries to w. Ids must be unique and are
// stored in sorted order. It returns the index that was written.
func Build(w io.Writer, entries []Entry) ([]IndexEntry, error) {
	return BuildWithOptions(w, entries, BuildOptions{})
}

// BuildWithOptions is Build with explicit options.
func BuildWithOptions(w io.Writer, entries []Entry, opts BuildOptions) ([]IndexEntry, error) {
	choose := opts.Compression
	if choose == nil {
		choose = ChooseCompression
	}

	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int { return strings.Compare(a.ID, b.ID) })

	idx := index{Version: IndexVersion, Entries: make([]IndexEntry, 0, len(sorted))}
	blobs := make([][]byte, 0, len(sorted))
	var offset uint64
	for i, e := range sorted {
		if e.ID == "" {
			return nil, fmt.Errorf("pack entry %d has an empty id", i)
		}
		if i > 0 && sorted[i-1].ID == e.ID {
			return nil, fmt.Errorf("duplicate pack entry %q", e.ID)
		}
		if len(e.Data) > MaxEntrySize {
			return nil, fmt.Errorf("pack entry %q is %d bytes, limit is %d", e.ID, len(e.Data), MaxEntrySize)
		}

		stored, tag, err := compress(e.Data, choose(e.ID))
		if err != nil {
			return nil, fmt.Errorf("compressing %s: %w", e.ID, err)
		}
		sum := blake3.Sum256(e.Data)
		idx.Entries = append(idx.Entries, IndexEntry{
			ID:          e.ID,
			Offset:      offset,
			Size:        uint64(len(e.Data)),
			StoredSize:  uint64(len(stored)),
			Compression: tag,
			ModTime:     e.ModTime.UTC(),
			Hash:        sum[:],
		})
		blobs = append(blobs, stored)
		offset += uint64(len(stored))
	}

	encoded, err := codec.Marshal(idx)
	if err != nil {
		return nil, fmt.Errorf("encoding pack index: %w", err)
	}
	if len(encoded) > math.MaxUint32 {
		return nil, fmt.Errorf("pack index too large: %d bytes", len(encoded))
	}

	var header [headerSize]byte
	copy(header[:], Magic)
	binary.LittleEndian.PutUint32(header[len(Magic):], uint32(len(encoded)))
	if _, err := w.Write(header[:]); err != nil {
		return nil, fmt.Errorf("writing pack header: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return nil, fmt.Errorf("writing pack index: %w", err)
	}
	for i, blob := range blobs {
		if _, err := w.Write(blob); err != nil {
			return nil, fmt.Errorf("writing %s: %w", idx.Entries[i].ID, err)
		}
	}
	return idx.Entries, nil
}

// WriteFile builds a pack at path atomically.
func WriteFile(path string, entries []Entry) ([]IndexEntry, error) {
	var buf bytes.Buffer
	written, err := Build(&buf, entries)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pack directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write pack: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename pack: %w", err)
	}
	return written, nil
}

// CollectDir reads every regular file under root into entries whose ids
// are slash-separated relative paths.
func CollectDir(root string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			ID:      filepath.ToSlash(rel),
			Data:    data,
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
