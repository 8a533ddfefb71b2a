package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine recognizes regions with a local Tesseract install via
// gosseract. A fresh client per call keeps recognitions independent; the
// scheduler bounds concurrency.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
}

func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{clientFactory: gosseract.NewClient}
}

func (e *TesseractEngine) Recognize(ctx context.Context, region image.Image, lang string, psm int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, region); err != nil {
		return "", fmt.Errorf("encode region: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if lang != "" {
		if err := c.SetLanguage(lang); err != nil {
			return "", fmt.Errorf("set language %q: %w", lang, err)
		}
	}
	if psm > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
			return "", fmt.Errorf("set psm %d: %w", psm, err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	return text, nil
}

func (e *TesseractEngine) Close() error { return nil }
