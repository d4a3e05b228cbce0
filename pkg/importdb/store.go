package importdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/albertocavalcante/assetpipe/internal/codec"
)

// SnapshotVersion is the current version of the persisted format.
const SnapshotVersion = 1

const (
	// StateDir is the directory name for assetpipe state files.
	StateDir = ".assetpipe"

	// DefaultJSONFile and DefaultCBORFile are the state file names per format.
	DefaultJSONFile = "imports.json"
	DefaultCBORFile = "imports.cbor"
)

var (
	// ErrDatabaseCorrupt marks persisted data that could not be decoded.
	ErrDatabaseCorrupt = errors.New("import database corrupt")

	// ErrDatabaseBusy is returned by Acquire when another worker owns the database.
	ErrDatabaseBusy = errors.New("import database busy")
)

// Snapshot is the persisted form of the database.
type Snapshot struct {
	Version   int                `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
	Records   map[string]*Record `json:"records"`
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version: SnapshotVersion,
		Records: make(map[string]*Record),
	}
}

// Store defines the interface for snapshot persistence.
type Store interface {
	// Load returns an empty snapshot if nothing was persisted yet.
	Load() (*Snapshot, error)
	Save(s *Snapshot) error
	Exists() bool
	Clear() error
	Path() string
}

// fileStore persists snapshots to a single file with write-then-rename.
type fileStore struct {
	path      string
	marshal   func(*Snapshot) ([]byte, error)
	unmarshal func([]byte, *Snapshot) error
}

// JSONStore implements Store using indented JSON.
type JSONStore struct{ fileStore }

// NewJSONStore creates a JSON store at the given file path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{fileStore{
		path: path,
		marshal: func(s *Snapshot) ([]byte, error) {
			return json.MarshalIndent(s, "", "  ")
		},
		unmarshal: func(data []byte, s *Snapshot) error {
			return json.Unmarshal(data, s)
		},
	}}
}

// CBORStore implements Store using deterministic CBOR.
type CBORStore struct{ fileStore }

// NewCBORStore creates a CBOR store at the given file path.
func NewCBORStore(path string) *CBORStore {
	return &CBORStore{fileStore{
		path: path,
		marshal: func(s *Snapshot) ([]byte, error) {
			return codec.Marshal(s)
		},
		unmarshal: func(data []byte, s *Snapshot) error {
			return codec.Unmarshal(data, s)
		},
	}}
}

// OpenStore returns a store for the named format ("json" or "cbor").
// An empty path selects the default file under root's state directory.
func OpenStore(root, path, format string) (Store, error) {
	switch format {
	case "", "json":
		if path == "" {
			path = filepath.Join(root, StateDir, DefaultJSONFile)
		}
		return NewJSONStore(path), nil
	case "cbor":
		if path == "" {
			path = filepath.Join(root, StateDir, DefaultCBORFile)
		}
		return NewCBORStore(path), nil
	default:
		return nil, fmt.Errorf("unknown database format %q (want json or cbor)", format)
	}
}

// Path returns the state file path.
func (s *fileStore) Path() string {
	return s.path
}

// Load reads the snapshot from disk. If the state file doesn't exist,
// returns an empty snapshot.
func (s *fileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var snap Snapshot
	if err := s.unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDatabaseCorrupt, s.path, err)
	}

	// Check version compatibility
	if snap.Version > SnapshotVersion {
		return nil, fmt.Errorf("%w: state file version %d is newer than supported version %d",
			ErrDatabaseCorrupt, snap.Version, SnapshotVersion)
	}

	if snap.Records == nil {
		snap.Records = make(map[string]*Record)
	}
	return &snap, nil
}

// Save writes the snapshot to disk atomically.
func (s *fileStore) Save(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot save nil snapshot")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	snap.Version = SnapshotVersion

	data, err := s.marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Write to temp file first for atomic update
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	// Rename temp file to actual file (atomic on POSIX)
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}

// Exists returns true if the state file exists.
func (s *fileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Clear removes the state file.
func (s *fileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
