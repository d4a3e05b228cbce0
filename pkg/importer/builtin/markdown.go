package builtin

import (
	"bytes"
	"context"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/albertocavalcante/assetpipe/pkg/importer"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown renders Markdown to an HTML fragment at the asset id with a
// .html extension.
type Markdown struct{}

// Version implements importer.Versioned.
func (Markdown) Version() int { return 1 }

// Import implements importer.Importer.
func (Markdown) Import(ctx context.Context, req *importer.Request) (*importer.Result, error) {
	in, ok := req.Input()
	if !ok {
		return nil, fmt.Errorf("markdown %s: no input", req.ID)
	}
	if err := step(req, 0, "rendering"); err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if err := markdown.Convert(in.Data, &html); err != nil {
		return nil, fmt.Errorf("markdown %s: %w", req.ID, err)
	}

	out, err := importer.WriteOutput(req.Destination, importer.ReplaceExt(req.ID, ".html"), html.Bytes())
	if err != nil {
		return nil, err
	}
	if err := step(req, 1, "done"); err != nil {
		return nil, err
	}
	return &importer.Result{Outputs: []string{out}}, nil
}
