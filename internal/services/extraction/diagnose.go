package extraction

import (
	"context"
	"fmt"
	"strings"

	"codetrace/internal/services/codes"
	"codetrace/internal/services/vision"
)

// Detection is one word read during a diagnostic run.
type Detection struct {
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	MatchesFormat bool    `json:"matches_format"`
}

// Diagnosis reports everything the first recognition pass saw in an image,
// before any filtering.
type Diagnosis struct {
	Pass            string      `json:"pass"`
	TotalDetections int         `json:"total_detections"`
	Detections      []Detection `json:"detections"`
}

// Diagnose runs the first recognition pass of the schedule over the image at
// path and returns every non-empty detection. Useful for tuning thresholds.
func (s *Service) Diagnose(ctx context.Context, path string) (*Diagnosis, error) {
	img, err := vision.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableImage, path, err)
	}

	pass, ok := s.firstRecognizePass()
	if !ok {
		return nil, fmt.Errorf("schedule has no recognition pass")
	}
	if s.engine == nil {
		return nil, fmt.Errorf("no recognition engine configured")
	}

	src := s.open(img)
	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreadableImage, path)
	}
	defer src.Close()

	frame, err := src.Preprocess(pass.Config.Vision)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	hits, err := s.engine.Recognize(ctx, frame.Image, pass.Config.OCR)
	if err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	diag := &Diagnosis{Pass: pass.Name, Detections: []Detection{}}
	for _, hit := range hits {
		text := strings.TrimSpace(hit.Text)
		if text == "" {
			continue
		}
		diag.Detections = append(diag.Detections, Detection{
			Text:          text,
			Confidence:    hit.Confidence,
			MatchesFormat: codes.IsCanonical(strings.ToUpper(text)),
		})
	}
	diag.TotalDetections = len(diag.Detections)
	return diag, nil
}

func (s *Service) firstRecognizePass() (Pass, bool) {
	for _, p := range s.passes {
		if p.Kind == Recognize {
			return p, true
		}
	}
	return Pass{}, false
}
