//go:build !nogosseract

package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract drives libtesseract through one gosseract client. Calls are
// serialised; the client is not safe for concurrent use.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates the client. Tesseract itself loads its models on the
// first recognition call.
func NewTesseract(opts Options) (Engine, error) {
	client := gosseract.NewClient()

	if opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(opts.TessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if opts.Language != "" {
		if err := client.SetLanguage(strings.Split(opts.Language, "+")...); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set language: %w", err)
		}
	}

	return &Tesseract{client: client}, nil
}

func (t *Tesseract) Name() string { return "gosseract" }

// Recognize reads word boxes. The engine mode is fixed when libtesseract is
// initialised, so cfg.EngineMode is not applied here.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, cfg Config) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := t.client.SetWhitelist(cfg.Whitelist); err != nil {
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := t.client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}

	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("failed to read word boxes: %w", err)
	}

	hits := make([]Hit, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		hits = append(hits, Hit{
			Text:       text,
			Box:        b.Box,
			Confidence: clampConfidence(b.Confidence / 100),
		})
	}
	return hits, nil
}

func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
