// Package ocr recognizes text in prepared field regions and parses it into
// validated, typed values. Recognition output is untrusted input: nothing
// reaches the snapshot without passing the field's parse rule.
package ocr

import (
	"context"
	"image"
)

// Engine is the recognition collaborator: one prepared region in, raw text
// out. The text may be empty or garbled; validation happens downstream.
type Engine interface {
	// Recognize runs OCR over the region. lang is a Tesseract language hint
	// ("deu", "eng"); psm overrides the page segmentation mode, 0 keeps the
	// engine default.
	Recognize(ctx context.Context, region image.Image, lang string, psm int) (string, error)
	Close() error
}
