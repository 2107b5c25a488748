package document

import "context"

// TextExtractor pulls the embedded text layer out of a PDF.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// OCRService re-derives text from a PDF by optical character recognition.
// Implementations return empty text, not an error, on timeout or a failed
// OCR run, so the pipeline can continue with whatever it has.
type OCRService interface {
	ExtractText(ctx context.Context, pdfBytes []byte) (string, error)
}
