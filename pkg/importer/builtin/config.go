package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/albertocavalcante/assetpipe/pkg/importer"
)

// Config strips comments and trailing commas from JSONC and writes compact
// JSON to the asset id with a .json extension.
type Config struct{}

// Version implements importer.Versioned.
func (Config) Version() int { return 1 }

// Import implements importer.Importer.
func (Config) Import(ctx context.Context, req *importer.Request) (*importer.Result, error) {
	in, ok := req.Input()
	if !ok {
		return nil, fmt.Errorf("config %s: no input", req.ID)
	}
	if err := step(req, 0, "parsing"); err != nil {
		return nil, err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, jsonc.ToJSON(in.Data)); err != nil {
		return nil, fmt.Errorf("config %s: invalid JSON: %w", req.ID, err)
	}

	out, err := importer.WriteOutput(req.Destination, importer.ReplaceExt(req.ID, ".json"), compact.Bytes())
	if err != nil {
		return nil, err
	}
	if err := step(req, 1, "done"); err != nil {
		return nil, err
	}
	return &importer.Result{Outputs: []string{out}}, nil
}
