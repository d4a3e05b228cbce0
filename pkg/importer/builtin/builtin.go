// Package builtin provides the stock transformation routines.
package builtin

import (
	"github.com/albertocavalcante/assetpipe/pkg/importer"
)

// Asset type tags served by this package.
const (
	TypeCopy     = "copy"
	TypeImage    = "image"
	TypeTexture  = "texture"
	TypeConfig   = "config"
	TypeMarkdown = "markdown"
)

// Register adds every built-in routine to r.
func Register(r *importer.Registry) {
	r.Register(TypeCopy, Copy{})
	r.Register(TypeImage, Image{})
	r.Register(TypeTexture, Texture{})
	r.Register(TypeConfig, Config{})
	r.Register(TypeMarkdown, Markdown{})
}

// NewRegistry returns a registry with every built-in routine.
func NewRegistry() *importer.Registry {
	r := importer.NewRegistry()
	Register(r)
	return r
}

// step reports progress and converts a stop request into ErrCancelled.
func step(req *importer.Request, fraction float64, label string) error {
	if !req.Report(fraction, label) {
		return importer.ErrCancelled
	}
	return nil
}
