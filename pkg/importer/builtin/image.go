package builtin

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"

	"github.com/albertocavalcante/assetpipe/pkg/importer"
)

// Image reads the dimensions of a PNG, JPEG or GIF and hands the pixels on
// as a texture asset annotated with width, height and format.
type Image struct{}

// Version implements importer.Versioned.
func (Image) Version() int { return 1 }

// Import implements importer.Importer.
func (Image) Import(ctx context.Context, req *importer.Request) (*importer.Result, error) {
	in, ok := req.Input()
	if !ok {
		return nil, fmt.Errorf("image %s: no input", req.ID)
	}
	if err := step(req, 0, "reading header"); err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(in.Data))
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", req.ID, err)
	}

	meta := req.Metadata.Clone()
	if meta == nil {
		meta = importer.Metadata{}
	}
	meta["width"] = strconv.Itoa(cfg.Width)
	meta["height"] = strconv.Itoa(cfg.Height)
	meta["format"] = format

	if err := step(req, 1, "decoded"); err != nil {
		return nil, err
	}
	return &importer.Result{
		Additional: []importer.Asset{{
			ID:       req.ID,
			Type:     TypeTexture,
			Inputs:   []importer.File{{Name: req.ID, Data: in.Data}},
			Metadata: meta,
		}},
	}, nil
}
