package layout

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"layout-translator/internal/document"
	"layout-translator/internal/logger"
)

// Source produces the region map of a page.
type Source interface {
	Regions(ctx context.Context, page document.Page) (Lookup, error)
}

// UniformSource treats every page as a single background region.
type UniformSource struct{}

// Regions returns a uniform background map.
func (UniformSource) Regions(_ context.Context, page document.Page) (Lookup, error) {
	return Uniform(page.Width, page.Height, ClassBackground), nil
}

// ImageSource runs the detector on pre-rendered page images found in Dir.
// Pages without an image fall back to a uniform map.
type ImageSource struct {
	Detector *Detector
	Dir      string
	Pattern  string // file name pattern with one %d verb, default "page-%03d.png"
}

// Regions loads the page image and detects its layout.
func (s *ImageSource) Regions(ctx context.Context, page document.Page) (Lookup, error) {
	pattern := s.Pattern
	if pattern == "" {
		pattern = "page-%03d.png"
	}
	path := filepath.Join(s.Dir, fmt.Sprintf(pattern, page.Number))

	img, err := loadImage(path)
	if err != nil {
		logger.Warn("page image unavailable, using uniform layout",
			logger.Int("page", page.Number), logger.String("path", path), logger.Err(err))
		return Uniform(page.Width, page.Height, ClassBackground), nil
	}
	return s.Detector.Regions(ctx, img, page.Width, page.Height)
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
