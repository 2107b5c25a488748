package document

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sourcestack/resume-batch/internal/common"
)

// TesseractOCR rasterizes a PDF with pdftoppm and runs tesseract over each
// page. Per the OCRService contract it swallows OCR failures: a timeout or
// a non-zero exit yields empty text so callers degrade instead of failing.
type TesseractOCR struct {
	cfg    common.OCRConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseractOCR(cfg common.OCRConfig, logger *slog.Logger) *TesseractOCR {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &TesseractOCR{cfg: cfg, runner: newExecRunner(logger), logger: logger}
}

func (o *TesseractOCR) ExtractText(ctx context.Context, pdfBytes []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	tmpDir, err := os.MkdirTemp("", "rb-ocr-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	input := filepath.Join(tmpDir, "resume.pdf")
	if err := os.WriteFile(input, pdfBytes, 0o600); err != nil {
		return "", err
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, _, err = o.runner.Run(ctx, o.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", o.cfg.DPI), "-png", input, prefix)
	if err != nil {
		o.logger.Warn("ocr.render_failed", "error", err)
		return "", nil
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if o.cfg.MaxPages > 0 && len(matches) > o.cfg.MaxPages {
		matches = matches[:o.cfg.MaxPages]
	}
	if len(matches) == 0 {
		o.logger.Warn("ocr.no_pages_rendered")
		return "", nil
	}

	var b strings.Builder
	for _, img := range matches {
		out, _, err := o.runner.Run(ctx, o.cfg.Tesseract, img, "stdout", "-l", o.cfg.Lang)
		if err != nil {
			o.logger.Warn("ocr.page_failed", "page", img, "error", err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.Write(out)
	}

	return b.String(), nil
}
