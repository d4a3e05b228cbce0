// Package importdb provides the persistent ledger of the incremental import
// pipeline: what each asset was built from and which outputs it produced.
package importdb

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// FingerprintMode selects what a fingerprint's stamp is derived from.
type FingerprintMode string

const (
	// ModeHash stamps files with the xxHash64 of their content.
	ModeHash FingerprintMode = "hash"
	// ModeMTime stamps files with their modification time in UnixNano.
	ModeMTime FingerprintMode = "mtime"
)

// ParseFingerprintMode validates a mode name. Empty means ModeHash.
func ParseFingerprintMode(s string) (FingerprintMode, error) {
	switch FingerprintMode(s) {
	case "", ModeHash:
		return ModeHash, nil
	case ModeMTime:
		return ModeMTime, nil
	default:
		return "", fmt.Errorf("unknown fingerprint mode %q (want hash or mtime)", s)
	}
}

// Fingerprint identifies one source file at one point in time.
type Fingerprint struct {
	Path  string          `json:"path"` // slash-separated, relative to the source root
	Size  uint64          `json:"size"`
	Stamp uint64          `json:"stamp"`
	Mode  FingerprintMode `json:"mode"`
}

// Equal reports whether two fingerprints match in every field.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f == o
}

// String formats the fingerprint for status output.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%s (%d bytes, %s %s)", f.Path, f.Size, f.Mode, FormatHash(f.Stamp))
}

// FingerprintFile computes the fingerprint of rel under root.
func FingerprintFile(root, rel string, mode FingerprintMode) (Fingerprint, error) {
	path := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	fp := Fingerprint{
		Path: filepath.ToSlash(rel),
		Size: uint64(info.Size()),
		Mode: mode,
	}
	if mode == ModeMTime {
		fp.Stamp = uint64(info.ModTime().UnixNano())
		return fp, nil
	}
	fp.Mode = ModeHash
	fp.Stamp, err = HashFile(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return fp, nil
}

// HashFile computes xxHash64 of file contents.
func HashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("failed to hash file: %w", err)
	}
	return h.Sum64(), nil
}

// HashBytes computes xxHash64 of bytes.
func HashBytes(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// FormatHash renders a stamp as 16 hex digits.
func FormatHash(h uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h)
	return hex.EncodeToString(buf[:])
}
