package extraction

import (
	"fmt"
	"strings"

	"codetrace/internal/config"
	"codetrace/internal/services/ocr"
	"codetrace/internal/services/vision"
)

// Kind selects what a pass does with the image.
type Kind int

const (
	// Recognize preprocesses, recognises and validates word by word.
	Recognize Kind = iota
	// Salvage scans the raw text gathered by earlier passes for embedded codes.
	Salvage
)

func (k Kind) String() string {
	switch k {
	case Recognize:
		return "recognize"
	case Salvage:
		return "salvage"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// PipelineConfig bundles the preprocessing and recognition settings used by
// one pass.
type PipelineConfig struct {
	Name   string
	Vision vision.Options
	OCR    ocr.Config
}

// State is what the passes run so far have produced for the current image.
type State struct {
	Accepted  int // distinct codes accepted
	Fragments int // non-empty raw text fragments observed
	Ran       int // passes executed
}

// Pass is one step of the schedule. When decides, from the state left by the
// previous passes, whether the pass runs; nil means always.
type Pass struct {
	Name   string
	Kind   Kind
	Config PipelineConfig
	When   func(State) bool
}

// Always runs the pass unconditionally.
func Always(State) bool { return true }

// NothingAccepted runs the pass only while no code has been accepted.
func NothingAccepted(s State) bool { return s.Accepted == 0 }

// NothingAcceptedButText runs the pass when no code was accepted although the
// engine did read something.
func NothingAcceptedButText(s State) bool { return s.Accepted == 0 && s.Fragments > 0 }

// Settings are the tunable thresholds of the extraction schedule.
type Settings struct {
	MinConfidence float64 // [0, 1]
	FallbackDrop  float64 // subtracted from MinConfidence for the fallback pass
	EarlyStop     int     // stop once this many distinct codes are accepted, 0 disables
	TargetHeight  int
	MaxDimension  int
	Schedule      string // "default" or "exhaustive"
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		MinConfidence: 0.60,
		FallbackDrop:  0.20,
		EarlyStop:     3,
		TargetHeight:  300,
		MaxDimension:  4000,
		Schedule:      "default",
	}
}

// SettingsFromConfig converts the percent based configuration values.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MinConfidence: percent(cfg.MinConfidence),
		FallbackDrop:  percent(cfg.FallbackDrop),
		EarlyStop:     cfg.EarlyStop,
		TargetHeight:  cfg.TargetHeight,
		MaxDimension:  cfg.MaxDimension,
		Schedule:      cfg.Schedule,
	}
}

func percent(v int) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 1
	}
	return float64(v) / 100
}

// Standard is the first-pass configuration.
func (s Settings) Standard() PipelineConfig {
	opts := vision.StandardOptions()
	s.applyGeometry(&opts)

	rec := ocr.Precise()
	rec.MinConfidence = s.MinConfidence

	return PipelineConfig{Name: "standard", Vision: opts, OCR: rec}
}

// Aggressive is the fallback configuration. Its confidence floor sits
// FallbackDrop below the standard one.
func (s Settings) Aggressive() PipelineConfig {
	opts := vision.AggressiveOptions()
	s.applyGeometry(&opts)

	rec := ocr.Permissive()
	rec.MinConfidence = s.MinConfidence - s.FallbackDrop
	if rec.MinConfidence < 0 {
		rec.MinConfidence = 0
	}

	return PipelineConfig{Name: "aggressive", Vision: opts, OCR: rec}
}

func (s Settings) applyGeometry(opts *vision.Options) {
	if s.TargetHeight > 0 {
		opts.TargetHeight = s.TargetHeight
	}
	if s.MaxDimension > 0 {
		opts.MaxDimension = s.MaxDimension
	}
}

// DefaultSchedule escalates standard → fallback → salvage, each later pass
// running only when the earlier ones accepted nothing.
func DefaultSchedule(s Settings) []Pass {
	return []Pass{
		{Name: "standard", Kind: Recognize, Config: s.Standard(), When: Always},
		{Name: "fallback", Kind: Recognize, Config: s.Aggressive(), When: NothingAccepted},
		{Name: "salvage", Kind: Salvage, When: NothingAcceptedButText},
	}
}

// ExhaustiveSchedule runs both recognition passes regardless of the first
// result and relies on early termination to cut the work short.
func ExhaustiveSchedule(s Settings) []Pass {
	return []Pass{
		{Name: "standard", Kind: Recognize, Config: s.Standard(), When: Always},
		{Name: "aggressive", Kind: Recognize, Config: s.Aggressive(), When: Always},
		{Name: "salvage", Kind: Salvage, When: NothingAcceptedButText},
	}
}

// ScheduleFor returns the schedule registered under name.
func ScheduleFor(name string, s Settings) ([]Pass, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultSchedule(s), nil
	case "exhaustive":
		return ExhaustiveSchedule(s), nil
	default:
		return nil, fmt.Errorf("unknown extraction schedule %q", name)
	}
}
