package vision

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Load decodes an image file, applying its EXIF orientation so phone photos
// come out upright.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// zeroOrigin returns img with its bounds starting at (0, 0).
func zeroOrigin(img image.Image) image.Image {
	if img.Bounds().Min == (image.Point{}) {
		return img
	}
	return imaging.Clone(img)
}
