// Package extraction turns label photographs into validated product codes by
// running a schedule of preprocessing and recognition passes over each image.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"time"

	"codetrace/internal/logger"
	"codetrace/internal/models"
	"codetrace/internal/services/codes"
	"codetrace/internal/services/ocr"
	"codetrace/internal/services/vision"
)

// ErrUnreadableImage wraps every failure to open or decode an input image.
var ErrUnreadableImage = errors.New("unreadable image")

// Recognizer is the part of the recognition engine the service needs.
// *ocr.Handle satisfies it.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, cfg ocr.Config) ([]ocr.Hit, error)
}

// Service extracts codes from images. It holds no per-image state and may be
// used from several goroutines at once.
type Service struct {
	backend   vision.Backend
	engine    Recognizer
	validator *codes.Validator
	passes    []Pass
	earlyStop int
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(backend vision.Backend, engine Recognizer, validator *codes.Validator, passes []Pass, earlyStop int, logger *logger.Logger) *Service {
	if backend == nil {
		backend = vision.Identity{}
	}
	return &Service{
		backend:   backend,
		engine:    engine,
		validator: validator,
		passes:    passes,
		earlyStop: earlyStop,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the clock used to stamp detections.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Passes returns the configured schedule.
func (s *Service) Passes() []Pass {
	return s.passes
}

// ExtractFile decodes the image at path and extracts codes from it. Only a
// decode failure is returned as an error; an image without codes yields an
// empty slice.
func (s *Service) ExtractFile(ctx context.Context, path string) ([]models.ExtractedCode, error) {
	img, err := vision.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableImage, path, err)
	}
	return s.Extract(ctx, img), nil
}

// Extract runs the pass schedule over img. Codes appear in the order they
// were first accepted and each code appears once.
func (s *Service) Extract(ctx context.Context, img image.Image) []models.ExtractedCode {
	if img == nil {
		return nil
	}

	src := s.open(img)
	if src == nil {
		return nil
	}
	defer src.Close()

	r := newRun()
	for _, pass := range s.passes {
		if ctx.Err() != nil {
			s.logger.Warning("Extraction cancelled before pass %s: %v", pass.Name, ctx.Err())
			break
		}
		if pass.When != nil && !pass.When(r.state) {
			continue
		}

		before := len(r.out)
		switch pass.Kind {
		case Recognize:
			s.recognize(ctx, src, pass, r)
		case Salvage:
			s.salvage(r)
		}
		r.state.Ran++
		s.logger.Debug("Pass %s accepted %d code(s)", pass.Name, len(r.out)-before)

		if s.earlyStop > 0 && len(r.out) >= s.earlyStop {
			s.logger.Debug("Early stop after pass %s with %d code(s)", pass.Name, len(r.out))
			break
		}
	}
	return r.out
}

func (s *Service) open(img image.Image) vision.Source {
	src, err := s.backend.Open(img)
	if err == nil {
		return src
	}
	s.logger.Warning("%s backend could not open image, falling back to identity: %v", s.backend.Name(), err)
	src, err = vision.Identity{}.Open(img)
	if err != nil {
		s.logger.Error("Failed to open image: %v", err)
		return nil
	}
	return src
}

func (s *Service) recognize(ctx context.Context, src vision.Source, pass Pass, r *run) {
	frame, err := src.Preprocess(pass.Config.Vision)
	if err != nil {
		s.logger.Warning("Pass %s: preprocessing failed: %v", pass.Name, err)
		return
	}
	for _, stage := range frame.Skipped {
		s.logger.Warning("Pass %s: %s stage skipped", pass.Name, stage)
	}

	if s.engine == nil {
		s.logger.Warning("Pass %s: no recognition engine", pass.Name)
		return
	}
	hits, err := s.engine.Recognize(ctx, frame.Image, pass.Config.OCR)
	if err != nil {
		s.logger.Warning("Pass %s: recognition failed: %v", pass.Name, err)
		return
	}

	for _, hit := range hits {
		text := strings.TrimSpace(hit.Text)
		if text == "" {
			continue
		}
		box := frame.ToSource(hit.Box)
		r.observe(text, box)

		if hit.Confidence < pass.Config.OCR.MinConfidence {
			continue
		}
		code, ok := s.validator.Validate(text)
		if !ok || r.seen(code) {
			continue
		}
		annotated := !box.Empty() && src.Annotated(box)
		r.accept(code, annotated, s.now())
	}
}

// salvage joins every fragment read so far in reading order and looks for
// prefixed codes inside the combined text. Geometry is lost, so nothing found
// here is annotated.
func (s *Service) salvage(r *run) {
	frags := make([]fragment, len(r.fragments))
	copy(frags, r.fragments)
	sort.SliceStable(frags, func(i, j int) bool {
		a, b := frags[i].box.Min, frags[j].box.Min
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	texts := make([]string, len(frags))
	for i, f := range frags {
		texts[i] = f.text
	}
	combined := strings.ToUpper(strings.Join(texts, " "))

	for _, code := range s.validator.ExtractEmbedded(combined) {
		if !codes.IsCanonical(code) || r.seen(code) {
			continue
		}
		r.accept(code, false, s.now())
	}
}

type fragment struct {
	text string
	box  image.Rectangle
}

// run is the state of one Extract call.
type run struct {
	state     State
	found     map[string]struct{}
	out       []models.ExtractedCode
	fragments []fragment
}

func newRun() *run {
	return &run{found: make(map[string]struct{})}
}

func (r *run) observe(text string, box image.Rectangle) {
	r.fragments = append(r.fragments, fragment{text: text, box: box})
	r.state.Fragments = len(r.fragments)
}

func (r *run) seen(code string) bool {
	_, ok := r.found[code]
	return ok
}

func (r *run) accept(code string, annotated bool, at time.Time) {
	r.found[code] = struct{}{}
	r.out = append(r.out, models.ExtractedCode{Code: code, Annotated: annotated, DetectedAt: at})
	r.state.Accepted = len(r.out)
}
