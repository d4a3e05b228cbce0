package importdb

import (
	"slices"
	"time"
)

// Asset describes a source asset as observed on disk, before import.
type Asset struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Version  int               `json:"version,omitempty"` // routine version
	Inputs   []Fingerprint     `json:"inputs"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// Invalid is set when the asset was found but cannot be imported as-is,
	// e.g. its sidecar does not parse.
	Invalid string `json:"invalid,omitempty"`
}

// InputPaths returns the paths of the asset's inputs in order.
func (a Asset) InputPaths() []string {
	paths := make([]string, len(a.Inputs))
	for i, in := range a.Inputs {
		paths[i] = in.Path
	}
	return paths
}

// Record is what the database remembers about the last successful import
// of an asset.
type Record struct {
	AssetID    string        `json:"asset_id"`
	AssetType  string        `json:"asset_type"`
	Version    int           `json:"version,omitempty"`
	Inputs     []Fingerprint `json:"inputs"`
	Outputs    []string      `json:"outputs"` // sorted, relative to the output root
	ImportedAt time.Time     `json:"imported_at"`
}

func (r *Record) clone() Record {
	c := *r
	c.Inputs = slices.Clone(r.Inputs)
	c.Outputs = slices.Clone(r.Outputs)
	return c
}

// inputsMatch reports whether the observed inputs equal the stored ones,
// position by position.
func (r *Record) inputsMatch(observed []Fingerprint) bool {
	return slices.EqualFunc(r.Inputs, observed, Fingerprint.Equal)
}
