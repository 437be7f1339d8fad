//go:build nogosseract

package ocr

import "errors"

// NewTesseract is unavailable in builds tagged nogosseract; use the CLI engine.
func NewTesseract(Options) (Engine, error) {
	return nil, errors.New("built without libtesseract bindings")
}
