package builtin

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/albertocavalcante/assetpipe/pkg/importer"
)

// MetaSuffix is appended to a texture id to name its metadata sidecar.
const MetaSuffix = ".meta"

// Texture writes the texture data to the asset id and its metadata to a
// YAML sidecar next to it.
type Texture struct{}

// Version implements importer.Versioned.
func (Texture) Version() int { return 1 }

// Import implements importer.Importer.
func (Texture) Import(ctx context.Context, req *importer.Request) (*importer.Result, error) {
	in, ok := req.Input()
	if !ok {
		return nil, fmt.Errorf("texture %s: no input", req.ID)
	}
	if err := step(req, 0, "writing texture"); err != nil {
		return nil, err
	}
	data, err := importer.WriteOutput(req.Destination, req.ID, in.Data)
	if err != nil {
		return nil, err
	}

	if err := step(req, 0.5, "writing metadata"); err != nil {
		return nil, err
	}
	meta := map[string]string(req.Metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	encoded, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("texture %s: encoding metadata: %w", req.ID, err)
	}
	sidecar, err := importer.WriteOutput(req.Destination, req.ID+MetaSuffix, encoded)
	if err != nil {
		return nil, err
	}

	if err := step(req, 1, "done"); err != nil {
		return nil, err
	}
	return &importer.Result{Outputs: []string{data, sidecar}}, nil
}
