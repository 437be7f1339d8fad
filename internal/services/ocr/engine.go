// Package ocr adapts text recognition engines to a single word-level API.
package ocr

import (
	"context"
	"errors"
	"image"
	"strings"
)

var (
	// ErrEngineUnavailable wraps every failure to construct an engine.
	ErrEngineUnavailable = errors.New("recognition engine unavailable")
	// ErrEngineClosed is returned by a Handle after Close.
	ErrEngineClosed = errors.New("recognition engine closed")
)

// Hit is one word read by the engine. Box is in the pixel coordinates of the
// image handed to Recognize; Confidence is in [0, 1].
type Hit struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// PageSegMode follows Tesseract's page segmentation numbering.
type PageSegMode int

const (
	PSMAuto        PageSegMode = 3
	PSMSingleBlock PageSegMode = 6
	PSMSparseText  PageSegMode = 11
)

// EngineMode follows Tesseract's OCR engine mode numbering.
type EngineMode int

const (
	OEMLegacy     EngineMode = 0
	OEMLSTM       EngineMode = 1
	OEMLegacyLSTM EngineMode = 2
	OEMDefault    EngineMode = 3
)

// CodeAlphabet is the character allow-list for product codes.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Config selects how a single recognition call reads the page.
type Config struct {
	Name          string
	PageSegMode   PageSegMode
	EngineMode    EngineMode
	Whitelist     string
	MinConfidence float64 // hits below this are dropped by callers, [0, 1]
}

// Precise reads the page as one uniform block restricted to code characters.
func Precise() Config {
	return Config{
		Name:          "precise",
		PageSegMode:   PSMSingleBlock,
		EngineMode:    OEMDefault,
		Whitelist:     CodeAlphabet,
		MinConfidence: 0.60,
	}
}

// Permissive looks for sparse text anywhere on the page with the legacy
// engine, still restricted to code characters.
func Permissive() Config {
	return Config{
		Name:          "permissive",
		PageSegMode:   PSMSparseText,
		EngineMode:    OEMLegacy,
		Whitelist:     CodeAlphabet,
		MinConfidence: 0.40,
	}
}

// Engine recognises words in an encoded image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, cfg Config) ([]Hit, error)
	Close() error
}

// New builds the engine registered under name.
func New(name string, opts Options) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gosseract", "":
		return NewTesseract(opts)
	case "cli", "tesseract":
		return NewCLI(opts)
	default:
		return nil, errors.New("unknown recognition engine " + name)
	}
}

// Options configure engine construction.
type Options struct {
	Language       string // e.g. "eng" or "eng+spa"
	TessdataPrefix string
	BinaryPath     string // tesseract executable for the CLI engine
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
