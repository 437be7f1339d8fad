package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// Identity is the pass-through backend. It only shrinks images larger than
// Options.MaxDimension and never detects annotations.
type Identity struct{}

func (Identity) Name() string { return "identity" }

func (Identity) Open(img image.Image) (Source, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	return &identitySource{img: zeroOrigin(img)}, nil
}

type identitySource struct {
	img image.Image
}

func (s *identitySource) Bounds() image.Rectangle { return s.img.Bounds() }

func (s *identitySource) Preprocess(opts Options) (Frame, error) {
	opts = opts.withDefaults()
	b := s.img.Bounds()

	out := s.img
	transform := IdentityAffine()

	longest := max(b.Dx(), b.Dy())
	if longest > opts.MaxDimension {
		scale := float64(opts.MaxDimension) / float64(longest)
		w := max(1, int(float64(b.Dx())*scale))
		h := max(1, int(float64(b.Dy())*scale))
		out = imaging.Resize(s.img, w, h, imaging.Box)
		transform = ScaleAffine(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	return Frame{
		Image:        buf.Bytes(),
		Width:        out.Bounds().Dx(),
		Height:       out.Bounds().Dy(),
		Transform:    transform,
		SourceBounds: b,
	}, nil
}

func (s *identitySource) Annotated(image.Rectangle) bool { return false }

func (s *identitySource) Close() error { return nil }
