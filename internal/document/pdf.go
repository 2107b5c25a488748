package document

import (
	"context"
	"regexp"
	"strings"
)

var urlRe = regexp.MustCompile(`https?://[^\s<>'")]+`)

// minTextLength is the threshold below which extracted PDF text is treated
// as a scanned document and handed to OCR.
const minTextLength = 50

// PDFPipeline extracts PDF text, falling back to OCR when the text layer
// is missing or too sparse to be useful.
type PDFPipeline struct {
	text TextExtractor
	ocr  OCRService
}

func NewPDFPipeline(text TextExtractor, ocr OCRService) *PDFPipeline {
	return &PDFPipeline{text: text, ocr: ocr}
}

// ExtractWithOCRFallback returns the document text and whether OCR was
// used. Raw bytes are scanned for URL-like substrings and appended first,
// since link annotations rarely survive text extraction; the sparseness
// threshold applies to that combined text. When OCR does run, its output
// replaces the combined text wholesale.
func (p *PDFPipeline) ExtractWithOCRFallback(ctx context.Context, data []byte) (string, bool, error) {
	text, err := p.text.ExtractText(ctx, data)
	if err == nil {
		if links := scanHyperlinks(data); len(links) > 0 {
			text += "\n" + strings.Join(links, "\n")
		}
		if len(strings.TrimSpace(text)) >= minTextLength {
			return text, false, nil
		}
	}

	ocrText, ocrErr := p.ocr.ExtractText(ctx, data)
	if ocrErr != nil {
		return "", true, ocrErr
	}
	return ocrText, true, nil
}

func scanHyperlinks(data []byte) []string {
	raw := string(data)
	var links []string
	for _, value := range urlRe.FindAllString(raw, -1) {
		seen := false
		for _, existing := range links {
			if strings.EqualFold(existing, value) {
				seen = true
				break
			}
		}
		if !seen {
			links = append(links, value)
		}
	}
	return links
}
