// Package importer defines the transformation routine contract and the
// registry that maps asset-type tags to routines.
//
// A routine receives the raw bytes of an asset's inputs, writes its outputs
// under the destination directory, and returns their relative paths. It may
// also return additional in-memory assets (fan-out) that the batch runner
// imports on its behalf.
package importer

import (
	"context"
	"errors"
)

var (
	// ErrUnknownAssetType is returned when no routine is registered for a type.
	ErrUnknownAssetType = errors.New("unknown asset type")

	// ErrCancelled is returned by routines that stopped because the progress
	// callback asked them to.
	ErrCancelled = errors.New("import cancelled")
)

// File is one named input blob.
type File struct {
	Name string
	Data []byte
}

// Metadata carries free-form key/value pairs attached to an asset.
type Metadata map[string]string

// Clone returns a copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ProgressFunc reports fractional progress in [0,1] with a label.
// It returns false when the routine should stop.
type ProgressFunc func(fraction float64, label string) bool

// Asset is an asset ready for transformation.
type Asset struct {
	ID       string
	Type     string
	Inputs   []File
	Metadata Metadata
}

// Request is the argument of a single routine invocation.
type Request struct {
	Asset
	Destination string
	Progress    ProgressFunc
}

// Report forwards progress to the callback. It returns false if the routine
// should stop. A nil callback never stops the routine.
func (r *Request) Report(fraction float64, label string) bool {
	if r == nil || r.Progress == nil {
		return true
	}
	return r.Progress(fraction, label)
}

// Input returns the first input, or false if the asset has none.
func (r *Request) Input() (File, bool) {
	if r == nil || len(r.Inputs) == 0 {
		return File{}, false
	}
	return r.Inputs[0], true
}

// Result is what a routine produced.
type Result struct {
	// Outputs are paths relative to the destination.
	Outputs []string
	// Additional assets to import as part of this one.
	Additional []Asset
}

// Importer transforms one asset.
type Importer interface {
	Import(ctx context.Context, req *Request) (*Result, error)
}

// Func adapts a function to the Importer interface.
type Func func(ctx context.Context, req *Request) (*Result, error)

// Import calls f.
func (f Func) Import(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// Versioned is implemented by routines whose output format changes over time.
// Bumping the version makes previously imported assets stale.
type Versioned interface {
	Version() int
}

// VersionOf returns the routine's version, or 0 if it is not versioned.
func VersionOf(imp Importer) int {
	if v, ok := imp.(Versioned); ok {
		return v.Version()
	}
	return 0
}
