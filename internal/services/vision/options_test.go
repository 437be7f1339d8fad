package vision

import (
	"math"
	"testing"
)

func TestOptions_ScaleFor(t *testing.T) {
	opts := StandardOptions()

	tests := []struct {
		name string
		w, h int
		want float64
	}{
		{"tiny strip", 400, 50, 3.0},
		{"small", 400, 150, 2.0},
		{"below target", 400, 250, 1.2},
		{"at target", 400, 300, 1.0},
		{"large", 1600, 1200, 1.0},
		{"over max dimension", 6000, 3000, 4000.0 / 6000.0},
		{"upscale capped", 2000, 90, 2.0},
		{"empty", 0, 0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := opts.scaleFor(tt.w, tt.h)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("scaleFor(%d, %d) = %v, expected %v", tt.w, tt.h, got, tt.want)
			}
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	got := Options{BlockSize: 12, Border: -4, Threshold: ThresholdAdaptive}.withDefaults()

	if got.BlockSize != 13 {
		t.Errorf("Expected odd block size 13, got %d", got.BlockSize)
	}
	if got.Border != 0 {
		t.Errorf("Expected negative border clamped to 0, got %d", got.Border)
	}
	if got.Threshold != ThresholdAdaptive {
		t.Error("Explicit threshold method should be kept")
	}
	if got.TargetHeight != 300 || got.MaxDimension != 4000 || got.MaxSkew != 15 {
		t.Errorf("Defaults not applied: %+v", got)
	}
}

func TestAggressiveOptions(t *testing.T) {
	o := AggressiveOptions()
	if o.Denoise != DenoiseNLMeans || o.Threshold != ThresholdAdaptive {
		t.Errorf("Unexpected aggressive options: %+v", o)
	}
	if o.BlockSize != 11 || o.C != 2 {
		t.Errorf("Expected adaptive block 11 and C 2, got %d and %v", o.BlockSize, o.C)
	}
}

func TestNew(t *testing.T) {
	b, err := New("none")
	if err != nil {
		t.Fatalf("New(none) failed: %v", err)
	}
	if b.Name() != "identity" {
		t.Errorf("Expected identity backend, got %s", b.Name())
	}

	if _, err := New("vulkan"); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
