// Package document converts resume files (PDF or DOCX) into plain text and
// runs the field extractor over the result. Failures are captured per file:
// a bad document produces a zero-confidence result, never an error to the
// caller.
package document

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sourcestack/resume-batch/internal/entity"
	"github.com/sourcestack/resume-batch/internal/extract"
)

// Parser is the per-file extraction boundary.
type Parser struct {
	pdf    *PDFPipeline
	logger *slog.Logger
}

func NewParser(pdf *PDFPipeline, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{pdf: pdf, logger: logger}
}

// ParseResumeBytes extracts text from the document and scores the fields
// found in it. The filename only matters for its extension.
func (p *Parser) ParseResumeBytes(ctx context.Context, fileName string, data []byte) (res entity.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("parser.panic", "file", fileName, "panic", r)
			res = entity.ExtractionResult{Errors: []string{fmt.Sprintf("Parse error: %v", r)}}
		}
	}()

	var errs []string
	var ocrUsed bool
	var text string

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	switch ext {
	case "pdf":
		extracted, usedOCR, err := p.pdf.ExtractWithOCRFallback(ctx, data)
		ocrUsed = usedOCR
		if err != nil {
			errs = append(errs, fmt.Sprintf("Parse error: %v", err))
		} else {
			text = extracted
		}
	case "docx":
		extracted, err := extractDOCXText(data)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Parse error: %v", err))
		} else {
			text = extracted
		}
	default:
		errs = append(errs, fmt.Sprintf("Unsupported file type: %s", fileName))
	}

	if text == "" && len(errs) > 0 {
		return entity.ExtractionResult{OCRUsed: ocrUsed, Errors: errs}
	}

	email := extract.ExtractEmail(text)
	phone := extract.NormalizePhone(text)
	linkedIn := extract.ExtractLinkedIn(text)
	gitHub := extract.ExtractGitHub(text)
	name := extract.GuessName(text)
	confidence := extract.ScoreConfidence(name, email, phone, linkedIn, gitHub, ocrUsed)

	return entity.ExtractionResult{
		Name:       name,
		Email:      email,
		Phone:      phone,
		LinkedIn:   linkedIn,
		GitHub:     gitHub,
		Confidence: confidence,
		OCRUsed:    ocrUsed,
		Errors:     errs,
	}
}
