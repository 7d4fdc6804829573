package parse

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"io"

	"github.com/disintegration/imaging"

	"github.com/storyloom/storyloom/internal/models"
)

// thumbnailSize bounds the preview used by discovery events.
const thumbnailSize = 256

// ImageParser produces one image item per file with dimensions and a small
// base64 thumbnail preview.
type ImageParser struct{}

// NewImageParser creates an image parser.
func NewImageParser() *ImageParser {
	return &ImageParser{}
}

// Parse implements Parser.
func (p *ImageParser) Parse(ctx context.Context, reader io.Reader) ([]Item, error) {
	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	thumb := imaging.Fit(img, thumbnailSize, thumbnailSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	return []Item{{
		Type: models.ContentImage,
		Metadata: map[string]string{
			"width":     fmt.Sprintf("%d", bounds.Dx()),
			"height":    fmt.Sprintf("%d", bounds.Dy()),
			"thumbnail": base64.StdEncoding.EncodeToString(buf.Bytes()),
		},
	}}, nil
}
