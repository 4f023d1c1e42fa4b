package materializer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"imgscraper/pkg/errors"
	"imgscraper/pkg/models"
)

// Renderer decodes image bytes far enough to display them
type Renderer interface {
	Render(data models.ImageData) (width, height int, err error)
}

// ImageRenderer reads the image header of JPEG, PNG, GIF and WebP data
type ImageRenderer struct{}

// Render returns the image dimensions
func (ImageRenderer) Render(data models.ImageData) (int, int, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data.Data))
	if err != nil {
		return 0, 0, errors.Wrap(errors.ErrorTypeDecode, err,
			fmt.Sprintf("cannot decode %d bytes of %q", len(data.Data), data.ContentType))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, errors.New(errors.ErrorTypeDecode, 0, fmt.Sprintf("%s image has no pixels", format))
	}
	return cfg.Width, cfg.Height, nil
}
