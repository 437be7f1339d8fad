//go:build !noopencv

package vision

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

const (
	padAbove    = 0.3 // of the region height, marks are usually drawn over the code
	padBelow    = 0.2
	inkCeiling  = 160 // gray level above which nothing counts as ink
	minContrast = 60
	lineSpan    = 0.6 // fraction of the region width a mark has to cover
)

// Annotated looks for a long horizontal ink run in and just around region.
// Printed glyphs never produce runs that long; a pen stroke across or above
// the code does.
func (s *cvSource) Annotated(region image.Rectangle) (annotated bool) {
	defer func() {
		if recover() != nil {
			annotated = false
		}
	}()

	region = region.Canon()
	if region.Dx() < 2 || region.Dy() < 2 {
		return false
	}

	h := float64(region.Dy())
	roi := image.Rect(
		region.Min.X,
		region.Min.Y-int(math.Ceil(h*padAbove)),
		region.Max.X,
		region.Max.Y+int(math.Ceil(h*padBelow)),
	).Intersect(s.bounds)
	if roi.Dx() < 2 || roi.Dy() < 2 {
		return false
	}

	gray, ok := s.grayMat()
	if !ok {
		return false
	}
	view := gray.Region(roi)
	crop := view.Clone()
	view.Close()
	defer crop.Close()

	return hasStrikeLine(crop)
}

// hasStrikeLine looks for a long horizontal run of ink. It works on an ink
// mask rather than an edge map: edges of a thick pen stroke come out as two
// thin lines broken at every glyph crossing, while the mask keeps the stroke
// whole.
func hasStrikeLine(gray gocv.Mat) bool {
	if gray.Empty() || gray.Channels() != 1 {
		return false
	}
	minVal, maxVal, _, _ := gocv.MinMaxLoc(gray)
	if maxVal-minVal < minContrast {
		return false
	}

	mask := gocv.NewMat()
	defer mask.Close()
	if t := gocv.Threshold(gray, &mask, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu); t > inkCeiling {
		gocv.Threshold(gray, &mask, inkCeiling, 255, gocv.ThresholdBinaryInv)
	}
	if mask.Empty() {
		return false
	}

	w := mask.Cols()
	bridge := max(3, w/24)
	span := max(bridge+1, int(float64(w)*lineSpan))

	// close small breaks where glyph strokes cross the mark, then keep only
	// runs at least span pixels long
	closeKernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(bridge, 1))
	defer closeKernel.Close()
	openKernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(span, 1))
	defer openKernel.Close()

	joined := gocv.NewMat()
	defer joined.Close()
	gocv.MorphologyEx(mask, &joined, gocv.MorphClose, closeKernel)

	lines := gocv.NewMat()
	defer lines.Close()
	gocv.MorphologyEx(joined, &lines, gocv.MorphOpen, openKernel)
	if lines.Empty() {
		return false
	}

	return maxRowSum(lines) >= 255*span
}

// maxRowSum returns the largest per-row sum of a single channel 8-bit matrix.
func maxRowSum(m gocv.Mat) int {
	rows, cols := m.Rows(), m.Cols()
	data := m.ToBytes()
	if len(data) < rows*cols {
		return 0
	}
	best := 0
	for y := 0; y < rows; y++ {
		sum := 0
		for _, v := range data[y*cols : (y+1)*cols] {
			sum += int(v)
		}
		if sum > best {
			best = sum
		}
	}
	return best
}
