package vision

// ThresholdMethod selects the binarisation stage.
type ThresholdMethod int

const (
	ThresholdOtsu ThresholdMethod = iota
	ThresholdAdaptive
)

// DenoiseMethod selects the noise reduction stage.
type DenoiseMethod int

const (
	DenoiseBilateral DenoiseMethod = iota
	DenoiseNLMeans
)

// Options parameterise Source.Preprocess. Zero values fall back to the
// standard settings field by field.
type Options struct {
	TargetHeight int // images shorter than this are upscaled towards it
	MaxDimension int // longest side cap; larger images are shrunk

	Denoise         DenoiseMethod
	DenoiseStrength float64 // bilateral sigma or non-local-means h

	ClipLimit float64 // CLAHE
	TileGrid  int

	Threshold ThresholdMethod
	BlockSize int // adaptive threshold window, odd
	C         float64

	MinSkew float64 // degrees; smaller angles are left alone
	MaxSkew float64 // degrees; larger angles are treated as noise

	MorphKernel int
	Border      int
}

// StandardOptions is the first-pass rendering: bilateral filter and Otsu.
func StandardOptions() Options {
	return Options{
		TargetHeight:    300,
		MaxDimension:    4000,
		Denoise:         DenoiseBilateral,
		DenoiseStrength: 75,
		ClipLimit:       2.0,
		TileGrid:        8,
		Threshold:       ThresholdOtsu,
		BlockSize:       11,
		C:               2,
		MinSkew:         0.5,
		MaxSkew:         15,
		MorphKernel:     2,
		Border:          15,
	}
}

// AggressiveOptions trades detail for robustness on noisy or unevenly lit
// photos: non-local-means denoising and an adaptive threshold.
func AggressiveOptions() Options {
	o := StandardOptions()
	o.Denoise = DenoiseNLMeans
	o.DenoiseStrength = 10
	o.Threshold = ThresholdAdaptive
	return o
}

func (o Options) withDefaults() Options {
	d := StandardOptions()
	if o.TargetHeight <= 0 {
		o.TargetHeight = d.TargetHeight
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = d.MaxDimension
	}
	if o.DenoiseStrength <= 0 {
		o.DenoiseStrength = d.DenoiseStrength
	}
	if o.ClipLimit <= 0 {
		o.ClipLimit = d.ClipLimit
	}
	if o.TileGrid <= 0 {
		o.TileGrid = d.TileGrid
	}
	if o.BlockSize < 3 {
		o.BlockSize = d.BlockSize
	}
	if o.BlockSize%2 == 0 {
		o.BlockSize++
	}
	if o.MinSkew <= 0 {
		o.MinSkew = d.MinSkew
	}
	if o.MaxSkew <= 0 {
		o.MaxSkew = d.MaxSkew
	}
	if o.MorphKernel <= 0 {
		o.MorphKernel = d.MorphKernel
	}
	if o.Border < 0 {
		o.Border = 0
	}
	return o
}

// scaleFor picks the resize factor for an image of the given size.
func (o Options) scaleFor(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 1
	}

	scale := 1.0
	switch {
	case height < 100:
		scale = 3.0
	case height < 200:
		scale = 2.0
	case height < o.TargetHeight:
		scale = float64(o.TargetHeight) / float64(height)
	}

	longest := width
	if height > longest {
		longest = height
	}
	if o.MaxDimension > 0 && float64(longest)*scale > float64(o.MaxDimension) {
		scale = float64(o.MaxDimension) / float64(longest)
	}
	return scale
}
