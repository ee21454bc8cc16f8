// Package ocr turns PDF statements into plain text for fingerprinting and
// column extraction.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/config"
)

// Extractor extracts the text layer of a PDF document.
type Extractor interface {
	ExtractText(ctx context.Context, name string, pdf []byte) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
