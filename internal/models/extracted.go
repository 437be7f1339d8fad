package models

import "time"

// ExtractedCode is a validated code found in an image.
type ExtractedCode struct {
	Code       string    `json:"code"`
	Annotated  bool      `json:"annotated"`
	DetectedAt time.Time `json:"detected_at"`
}
