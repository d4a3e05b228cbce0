package pack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/albertocavalcante/assetpipe/internal/codec"
)

// Reader provides random access to the blobs of a pack.
type Reader struct {
	r       io.ReaderAt
	closer  io.Closer
	base    int64 // offset of the first blob
	size    int64
	entries []IndexEntry // sorted by id
}

// Open opens the pack file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pack: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat pack: %w", err)
	}
	r, err := NewReader(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader reads the index of a pack of the given size.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	if size < int64(headerSize) {
		return nil, fmt.Errorf("%w: file too short", ErrCorrupt)
	}
	var header [headerSize]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return nil, fmt.Errorf("reading pack header: %w", err)
	}
	if !bytes.Equal(header[:len(Magic)], []byte(Magic)) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, header[:len(Magic)])
	}
	indexLen := int64(binary.LittleEndian.Uint32(header[len(Magic):]))
	base := int64(headerSize) + indexLen
	if base > size {
		return nil, fmt.Errorf("%w: index length %d exceeds file size", ErrCorrupt, indexLen)
	}

	raw := make([]byte, indexLen)
	if indexLen > 0 {
		if _, err := r.ReadAt(raw, int64(headerSize)); err != nil {
			return nil, fmt.Errorf("reading pack index: %w", err)
		}
	}
	var idx index
	if err := codec.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("%w: index: %w", ErrCorrupt, err)
	}
	if idx.Version > IndexVersion {
		return nil, fmt.Errorf("%w: index version %d is newer than supported version %d",
			ErrCorrupt, idx.Version, IndexVersion)
	}

	blobBytes := uint64(size - base)
	for _, e := range idx.Entries {
		if err := checkEntry(e, blobBytes); err != nil {
			return nil, fmt.Errorf("%w: entry %s: %w", ErrCorrupt, e.ID, err)
		}
	}
	slices.SortFunc(idx.Entries, func(a, b IndexEntry) int { return strings.Compare(a.ID, b.ID) })

	return &Reader{r: r, base: base, size: size, entries: idx.Entries}, nil
}

// checkEntry rejects index entries whose sizes cannot describe a blob of
// the pack. Sizes are untrusted until they pass here.
func checkEntry(e IndexEntry, blobBytes uint64) error {
	if e.Offset > blobBytes || e.StoredSize > blobBytes-e.Offset {
		return errors.New("out of bounds")
	}
	if e.Size > MaxEntrySize {
		return fmt.Errorf("size %d exceeds limit %d", e.Size, uint64(MaxEntrySize))
	}
	switch e.Compression {
	case CompressionNone:
		if e.Size != e.StoredSize {
			return fmt.Errorf("stored size %d does not match size %d", e.StoredSize, e.Size)
		}
	case CompressionLZ4:
		if e.Size/maxLZ4Ratio > e.StoredSize {
			return fmt.Errorf("size %d is not reachable from %d lz4 bytes", e.Size, e.StoredSize)
		}
	case CompressionZstd:
	default:
		return fmt.Errorf("unsupported compression: %s", e.Compression)
	}
	return nil
}

// Close releases the underlying file, if Open created it.
func (p *Reader) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// Entries returns a copy of the index sorted by id.
func (p *Reader) Entries() []IndexEntry {
	return slices.Clone(p.entries)
}

// IDs returns every id in sorted order.
func (p *Reader) IDs() []string {
	ids := make([]string, len(p.entries))
	for i, e := range p.entries {
		ids[i] = e.ID
	}
	return ids
}

// Entry looks up the index entry for id.
func (p *Reader) Entry(id string) (IndexEntry, bool) {
	i := sort.Search(len(p.entries), func(i int) bool { return p.entries[i].ID >= id })
	if i < len(p.entries) && p.entries[i].ID == id {
		return p.entries[i], true
	}
	return IndexEntry{}, false
}

// ReadEntry returns the uncompressed, verified bytes of id.
func (p *Reader) ReadEntry(id string) ([]byte, error) {
	e, ok := p.Entry(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	stored := make([]byte, e.StoredSize)
	if len(stored) > 0 {
		if _, err := p.r.ReadAt(stored, p.base+int64(e.Offset)); err != nil {
			return nil, fmt.Errorf("reading %s: %w", id, err)
		}
	}
	data, err := decompress(stored, e.Compression, int(e.Size))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, id, err)
	}
	sum := blake3.Sum256(data)
	if !bytes.Equal(sum[:], e.Hash) {
		return nil, fmt.Errorf("%w: %s: hash mismatch", ErrCorrupt, id)
	}
	return data, nil
}
