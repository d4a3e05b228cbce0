package builtin

import (
	"context"
	"fmt"

	"github.com/albertocavalcante/assetpipe/pkg/importer"
)

// Copy writes the first input unchanged to the asset id.
type Copy struct{}

// Version implements importer.Versioned.
func (Copy) Version() int { return 1 }

// Import implements importer.Importer.
func (Copy) Import(ctx context.Context, req *importer.Request) (*importer.Result, error) {
	in, ok := req.Input()
	if !ok {
		return nil, fmt.Errorf("copy %s: no input", req.ID)
	}
	if err := step(req, 0, "copying"); err != nil {
		return nil, err
	}
	out, err := importer.WriteOutput(req.Destination, req.ID, in.Data)
	if err != nil {
		return nil, err
	}
	if err := step(req, 1, "copied"); err != nil {
		return nil, err
	}
	return &importer.Result{Outputs: []string{out}}, nil
}
