//go:build !noopencv

package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

const (
	minSkewPoints = 100
	maxSkewPoints = 200000
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 0}

// OpenCV is the full preprocessing backend.
type OpenCV struct{}

func newOpenCV() (Backend, error) {
	return OpenCV{}, nil
}

func (OpenCV) Name() string { return "opencv" }

// Open converts img to a BGR matrix once; every pass and annotation check on
// the returned Source reuses it. A Source is not safe for concurrent use.
func (OpenCV) Open(img image.Image) (Source, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	img = zeroOrigin(img)

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, errors.New("image converted to an empty matrix")
	}
	return &cvSource{color: mat, bounds: image.Rect(0, 0, mat.Cols(), mat.Rows())}, nil
}

type cvSource struct {
	color   gocv.Mat
	gray    gocv.Mat
	hasGray bool
	bounds  image.Rectangle
}

func (s *cvSource) Bounds() image.Rectangle { return s.bounds }

func (s *cvSource) Close() error {
	if s.hasGray {
		s.gray.Close()
		s.hasGray = false
	}
	return s.color.Close()
}

// grayMat converts the source to single channel on first use.
func (s *cvSource) grayMat() (gocv.Mat, bool) {
	if s.hasGray {
		return s.gray, true
	}
	gray := gocv.NewMat()
	if err := toGray(s.color, &gray); err != nil || gray.Empty() {
		gray.Close()
		return gocv.Mat{}, false
	}
	s.gray = gray
	s.hasGray = true
	return s.gray, true
}

// pipeline threads one matrix through the preprocessing stages, keeping the
// input of any stage that fails.
type pipeline struct {
	cur       gocv.Mat
	transform Affine
	skipped   []string
}

func (p *pipeline) run(name string, fn func(src gocv.Mat, dst *gocv.Mat) error) bool {
	dst := gocv.NewMat()
	ok := func() (ok bool) {
		defer func() {
			if recover() != nil {
				ok = false
			}
		}()
		if err := fn(p.cur, &dst); err != nil {
			return false
		}
		return !dst.Empty()
	}()

	if !ok {
		dst.Close()
		p.skipped = append(p.skipped, name)
		return false
	}
	p.cur.Close()
	p.cur = dst
	return true
}

func (s *cvSource) Preprocess(opts Options) (Frame, error) {
	opts = opts.withDefaults()

	p := &pipeline{cur: s.color.Clone(), transform: IdentityAffine()}
	defer func() { p.cur.Close() }()

	// 1. resize
	if scale := opts.scaleFor(p.cur.Cols(), p.cur.Rows()); scale != 1 {
		interp := gocv.InterpolationCubic
		if scale < 1 {
			interp = gocv.InterpolationArea
		}
		w0, h0 := p.cur.Cols(), p.cur.Rows()
		if p.run("resize", func(src gocv.Mat, dst *gocv.Mat) error {
			gocv.Resize(src, dst, image.Point{}, scale, scale, interp)
			return nil
		}) {
			p.transform = p.transform.Then(ScaleAffine(float64(p.cur.Cols())/float64(w0), float64(p.cur.Rows())/float64(h0)))
		}
	}

	// 2. grayscale
	if p.cur.Channels() > 1 {
		p.run("grayscale", toGray)
	}

	// 3. denoise
	switch opts.Denoise {
	case DenoiseNLMeans:
		p.run("denoise", func(src gocv.Mat, dst *gocv.Mat) error {
			gocv.FastNlMeansDenoisingWithParams(src, dst, float32(opts.DenoiseStrength), 7, 21)
			return nil
		})
	default:
		p.run("denoise", func(src gocv.Mat, dst *gocv.Mat) error {
			gocv.BilateralFilter(src, dst, 9, opts.DenoiseStrength, opts.DenoiseStrength)
			return nil
		})
	}

	// 4. local contrast
	p.run("clahe", func(src gocv.Mat, dst *gocv.Mat) error {
		clahe := gocv.NewCLAHEWithParams(opts.ClipLimit, image.Pt(opts.TileGrid, opts.TileGrid))
		defer clahe.Close()
		clahe.Apply(src, dst)
		return nil
	})

	// 5. binarise
	switch opts.Threshold {
	case ThresholdAdaptive:
		p.run("threshold", func(src gocv.Mat, dst *gocv.Mat) error {
			gocv.AdaptiveThreshold(src, dst, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, opts.BlockSize, float32(opts.C))
			return nil
		})
	default:
		p.run("threshold", func(src gocv.Mat, dst *gocv.Mat) error {
			blurred := gocv.NewMat()
			defer blurred.Close()
			gocv.GaussianBlur(src, &blurred, image.Pt(3, 3), 0, 0, gocv.BorderDefault)
			if blurred.Empty() {
				return errors.New("blur produced no output")
			}
			gocv.Threshold(blurred, dst, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
			return nil
		})
	}

	// 6. deskew
	if angle, ok := skewAngle(p.cur, opts); ok {
		var rotation Affine
		if p.run("deskew", func(src gocv.Mat, dst *gocv.Mat) error {
			rotation = rotate(src, dst, angle)
			return nil
		}) {
			p.transform = p.transform.Then(rotation)
		}
	}

	// 7. morphology
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(opts.MorphKernel, opts.MorphKernel))
	defer kernel.Close()
	p.run("open", func(src gocv.Mat, dst *gocv.Mat) error {
		gocv.MorphologyEx(src, dst, gocv.MorphOpen, kernel)
		return nil
	})
	p.run("close", func(src gocv.Mat, dst *gocv.Mat) error {
		gocv.MorphologyEx(src, dst, gocv.MorphClose, kernel)
		return nil
	})

	// 8. border
	if b := opts.Border; b > 0 {
		if p.run("border", func(src gocv.Mat, dst *gocv.Mat) error {
			gocv.CopyMakeBorder(src, dst, b, b, b, b, gocv.BorderConstant, white)
			return nil
		}) {
			p.transform = p.transform.Then(TranslateAffine(float64(b), float64(b)))
		}
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, p.cur)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	return Frame{
		Image:        append([]byte(nil), buf.GetBytes()...),
		Width:        p.cur.Cols(),
		Height:       p.cur.Rows(),
		Transform:    p.transform,
		SourceBounds: s.bounds,
		Skipped:      p.skipped,
	}, nil
}

func toGray(src gocv.Mat, dst *gocv.Mat) error {
	switch src.Channels() {
	case 1:
		src.CopyTo(dst)
		return nil
	case 4:
		return gocv.CvtColor(src, dst, gocv.ColorBGRAToGray)
	default:
		return gocv.CvtColor(src, dst, gocv.ColorBGRToGray)
	}
}

// skewAngle estimates the rotation of the ink in a binarised image from the
// minimum-area rectangle around its dark pixels.
func skewAngle(bin gocv.Mat, opts Options) (float64, bool) {
	if bin.Channels() != 1 {
		return 0, false
	}
	rows, cols := bin.Rows(), bin.Cols()
	data := bin.ToBytes()
	if len(data) < rows*cols {
		return 0, false
	}

	total := 0
	for _, v := range data[:rows*cols] {
		if v == 0 {
			total++
		}
	}
	if total < minSkewPoints {
		return 0, false
	}

	step := 1
	if total > maxSkewPoints {
		step = total/maxSkewPoints + 1
	}
	pts := make([]image.Point, 0, total/step+1)
	i := 0
	for y := 0; y < rows; y++ {
		row := data[y*cols : (y+1)*cols]
		for x, v := range row {
			if v != 0 {
				continue
			}
			if i%step == 0 {
				pts = append(pts, image.Pt(x, y))
			}
			i++
		}
	}

	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()
	rect := gocv.MinAreaRect(pv)

	angle := normalizeSkew(rect.Angle)
	if math.Abs(angle) < opts.MinSkew || math.Abs(angle) > opts.MaxSkew {
		return 0, false
	}
	return angle, true
}

// normalizeSkew folds a min-area-rectangle angle into [-45, 45].
func normalizeSkew(angle float64) float64 {
	switch {
	case angle < -45:
		return angle + 90
	case angle > 45:
		return angle - 90
	}
	return angle
}

// rotate turns src by angle degrees around its centre onto a canvas large
// enough to hold every corner, filling the exposed area with white.
func rotate(src gocv.Mat, dst *gocv.Mat, angle float64) Affine {
	w, h := src.Cols(), src.Rows()
	center := image.Pt(w/2, h/2)

	m := gocv.GetRotationMatrix2D(center, angle, 1.0)
	defer m.Close()

	cos := math.Abs(m.GetDoubleAt(0, 0))
	sin := math.Abs(m.GetDoubleAt(0, 1))
	newW := int(float64(h)*sin + float64(w)*cos)
	newH := int(float64(h)*cos + float64(w)*sin)

	m.SetDoubleAt(0, 2, m.GetDoubleAt(0, 2)+float64(newW)/2-float64(center.X))
	m.SetDoubleAt(1, 2, m.GetDoubleAt(1, 2)+float64(newH)/2-float64(center.Y))

	gocv.WarpAffineWithParams(src, dst, m, image.Pt(newW, newH), gocv.InterpolationCubic, gocv.BorderConstant, white)

	return Affine{
		A: m.GetDoubleAt(0, 0), B: m.GetDoubleAt(0, 1), C: m.GetDoubleAt(0, 2),
		D: m.GetDoubleAt(1, 0), E: m.GetDoubleAt(1, 1), F: m.GetDoubleAt(1, 2),
	}
}
