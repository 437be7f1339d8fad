package vision

import (
	"image"
	"math"
)

// Affine is a 2x3 transform: x' = A*x + B*y + C, y' = D*x + E*y + F.
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// IdentityAffine leaves points where they are.
func IdentityAffine() Affine {
	return Affine{A: 1, E: 1}
}

// ScaleAffine scales both axes independently.
func ScaleAffine(sx, sy float64) Affine {
	return Affine{A: sx, E: sy}
}

// TranslateAffine shifts by (dx, dy).
func TranslateAffine(dx, dy float64) Affine {
	return Affine{A: 1, C: dx, E: 1, F: dy}
}

// Then returns the transform that applies t first and n second.
func (t Affine) Then(n Affine) Affine {
	return Affine{
		A: n.A*t.A + n.B*t.D,
		B: n.A*t.B + n.B*t.E,
		C: n.A*t.C + n.B*t.F + n.C,
		D: n.D*t.A + n.E*t.D,
		E: n.D*t.B + n.E*t.E,
		F: n.D*t.C + n.E*t.F + n.F,
	}
}

// Apply maps a single point.
func (t Affine) Apply(x, y float64) (float64, float64) {
	return t.A*x + t.B*y + t.C, t.D*x + t.E*y + t.F
}

// Invert returns the inverse transform, or false for a degenerate one.
func (t Affine) Invert() (Affine, bool) {
	det := t.A*t.E - t.B*t.D
	if math.Abs(det) < 1e-12 {
		return Affine{}, false
	}
	inv := Affine{
		A: t.E / det,
		B: -t.B / det,
		D: -t.D / det,
		E: t.A / det,
	}
	inv.C = -(inv.A*t.C + inv.B*t.F)
	inv.F = -(inv.D*t.C + inv.E*t.F)
	return inv, true
}

// Rect maps the four corners of r and returns their bounding rectangle.
func (t Affine) Rect(r image.Rectangle) image.Rectangle {
	corners := [4][2]float64{
		{float64(r.Min.X), float64(r.Min.Y)},
		{float64(r.Max.X), float64(r.Min.Y)},
		{float64(r.Min.X), float64(r.Max.Y)},
		{float64(r.Max.X), float64(r.Max.Y)},
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x, y := t.Apply(c[0], c[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}
