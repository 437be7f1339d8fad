// Package vision prepares label photographs for recognition and inspects
// them for hand-drawn strike marks.
//
// A Backend is chosen once at construction. The OpenCV backend runs the full
// preprocessing pipeline; the identity backend hands the image through
// untouched and never reports annotations.
package vision

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrBackendUnavailable is returned when the requested backend was not
// compiled into this binary.
var ErrBackendUnavailable = errors.New("imaging backend unavailable")

// Backend opens decoded images for preprocessing and annotation checks.
type Backend interface {
	Name() string
	Open(img image.Image) (Source, error)
}

// Source is one image opened on a backend. All regions are in the image's
// own pixel coordinates with the origin at the top-left corner.
type Source interface {
	Bounds() image.Rectangle
	// Preprocess renders the image for the recognition engine. Individual
	// stages that fail are skipped; an error means nothing could be rendered.
	Preprocess(opts Options) (Frame, error)
	// Annotated reports whether a strike mark crosses or sits just above region.
	Annotated(region image.Rectangle) bool
	Close() error
}

// Frame is a rendered image ready for the recognition engine.
type Frame struct {
	Image        []byte // PNG
	Width        int
	Height       int
	Transform    Affine          // source coordinates to frame coordinates
	SourceBounds image.Rectangle // clip for ToSource, ignored when empty
	Skipped      []string        // stages that failed and were left out
}

// ToSource maps a rectangle in frame coordinates back onto the source image,
// clipped to its bounds.
func (f Frame) ToSource(r image.Rectangle) image.Rectangle {
	inv, ok := f.Transform.Invert()
	if !ok {
		return image.Rectangle{}
	}
	mapped := inv.Rect(r)
	if f.SourceBounds.Empty() {
		return mapped
	}
	return mapped.Intersect(f.SourceBounds)
}

// New returns the backend registered under name. "opencv" may be missing from
// builds tagged noopencv, in which case ErrBackendUnavailable is returned.
func New(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "opencv", "":
		return newOpenCV()
	case "none", "identity":
		return Identity{}, nil
	default:
		return nil, fmt.Errorf("unknown imaging backend %q", name)
	}
}
