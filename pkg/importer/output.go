package importer

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidOutput is returned for output paths that escape the destination.
var ErrInvalidOutput = errors.New("invalid output path")

// CleanOutput normalizes a relative output path to slash form and rejects
// absolute paths and paths that leave the destination.
func CleanOutput(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOutput)
	}
	slashed := filepath.ToSlash(rel)
	if path.IsAbs(slashed) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidOutput, rel)
	}
	clean := path.Clean(slashed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q leaves the destination", ErrInvalidOutput, rel)
	}
	return clean, nil
}

// WriteOutput writes data to rel under dest atomically and returns the
// cleaned relative path to report in Result.Outputs.
func WriteOutput(dest, rel string, data []byte) (string, error) {
	clean, err := CleanOutput(rel)
	if err != nil {
		return "", err
	}
	target := filepath.Join(dest, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp output: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write output %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close output %s: %w", clean, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to chmod output %s: %w", clean, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename output %s: %w", clean, err)
	}
	return clean, nil
}

// ReplaceExt swaps the extension of a slash-separated id.
func ReplaceExt(id, ext string) string {
	return strings.TrimSuffix(id, path.Ext(id)) + ext
}
