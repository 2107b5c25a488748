package document

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sourcestack/resume-batch/internal/common"
)

// PdftotextExtractor shells out to poppler's pdftotext binary.
type PdftotextExtractor struct {
	binary string
	runner Runner
}

func NewPdftotextExtractor(cfg common.OCRConfig, logger *slog.Logger) *PdftotextExtractor {
	binary := cfg.Pdftotext
	if binary == "" {
		binary = "pdftotext"
	}
	return &PdftotextExtractor{binary: binary, runner: newExecRunner(logger)}
}

func (e *PdftotextExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	tmpDir, err := os.MkdirTemp("", "rb-pdf-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "resume.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, _, err := e.runner.Run(ctx, e.binary, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
