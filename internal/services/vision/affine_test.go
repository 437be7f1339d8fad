package vision

import (
	"image"
	"math"
	"testing"
)

func nearRect(a, b image.Rectangle, tol int) bool {
	abs := func(v int) int {
		if v < 0 {
			return -v
		}
		return v
	}
	return abs(a.Min.X-b.Min.X) <= tol && abs(a.Min.Y-b.Min.Y) <= tol &&
		abs(a.Max.X-b.Max.X) <= tol && abs(a.Max.Y-b.Max.Y) <= tol
}

func TestAffine_ThenAndInvert(t *testing.T) {
	tr := ScaleAffine(2, 3).Then(TranslateAffine(15, 15))

	x, y := tr.Apply(10, 20)
	if x != 35 || y != 75 {
		t.Fatalf("Apply(10, 20) = (%v, %v), expected (35, 75)", x, y)
	}

	inv, ok := tr.Invert()
	if !ok {
		t.Fatal("Expected invertible transform")
	}
	bx, by := inv.Apply(x, y)
	if math.Abs(bx-10) > 1e-9 || math.Abs(by-20) > 1e-9 {
		t.Errorf("Round trip = (%v, %v), expected (10, 20)", bx, by)
	}
}

func TestAffine_InvertDegenerate(t *testing.T) {
	if _, ok := ScaleAffine(0, 1).Invert(); ok {
		t.Error("Expected zero scale to be non-invertible")
	}
}

func TestAffine_RectRotation(t *testing.T) {
	// quarter turn: (x, y) -> (-y, x)
	rot := Affine{A: 0, B: -1, D: 1, E: 0}
	got := rot.Rect(image.Rect(0, 0, 10, 20))
	want := image.Rect(-20, 0, 0, 10)
	if got != want {
		t.Errorf("Rect = %v, expected %v", got, want)
	}
}

func TestFrame_ToSource(t *testing.T) {
	frame := Frame{
		Transform:    ScaleAffine(1.5, 1.5).Then(TranslateAffine(15, 15)),
		SourceBounds: image.Rect(0, 0, 600, 200),
	}

	got := frame.ToSource(image.Rect(75, 165, 105, 195))
	if !nearRect(got, image.Rect(40, 100, 60, 120), 1) {
		t.Errorf("ToSource = %v, expected about (40,100)-(60,120)", got)
	}

	// clipped to the source image
	got = frame.ToSource(image.Rect(0, 0, 2000, 2000))
	if got != image.Rect(0, 0, 600, 200) {
		t.Errorf("Expected clip to source bounds, got %v", got)
	}
}

func TestFrame_ToSourceDegenerate(t *testing.T) {
	frame := Frame{Transform: Affine{}}
	if got := frame.ToSource(image.Rect(0, 0, 10, 10)); !got.Empty() {
		t.Errorf("Expected empty rectangle for degenerate transform, got %v", got)
	}
}
