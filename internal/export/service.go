// Package export produces XLSX workbooks from stored job results, as an
// offline alternative to the live spreadsheet a batch job writes.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sourcestack/resume-batch/internal/common"
	"github.com/sourcestack/resume-batch/internal/entity"
)

// ResultsSource is the slice of the job store the exporter needs.
type ResultsSource interface {
	LoadResults(ctx context.Context, jobID string) ([]entity.Candidate, error)
}

// Service turns a job's candidate list into XLSX bytes.
type Service struct {
	results ResultsSource
	logger  *slog.Logger
}

func NewService(results ResultsSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{results: results, logger: logger}
}

// ExportJobXLSX returns an XLSX workbook for the results of one job.
func (s *Service) ExportJobXLSX(ctx context.Context, jobID string) ([]byte, error) {
	start := time.Now()

	candidates, err := s.results.LoadResults(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	if candidates == nil {
		return nil, common.NotFoundErrorf("no results for job %s", jobID)
	}

	buf, err := BuildWorkbook(candidates)
	if err != nil {
		return nil, err
	}

	s.logger.Info("export.xlsx.ok",
		"job_id", jobID,
		"rows", len(candidates),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

// BuildWorkbook renders candidates into a single-sheet workbook.
func BuildWorkbook(candidates []entity.Candidate) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Candidates"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Name",
		"Email",
		"Phone",
		"LinkedIn",
		"GitHub",
		"Confidence",
		"Source File",
		"Errors",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, c := range candidates {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, c.Name)
		write(2, c.Email)
		write(3, c.Phone)
		write(4, c.LinkedIn)
		write(5, c.GitHub)
		write(6, fmt.Sprintf("%.2f", c.Confidence))
		write(7, c.SourceFile)
		write(8, truncate(strings.Join(c.Errors, "; "), 200))

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 24) // name
	_ = f.SetColWidth(sheet, "B", "B", 32) // email
	_ = f.SetColWidth(sheet, "C", "C", 18) // phone
	_ = f.SetColWidth(sheet, "D", "E", 44) // profile links
	_ = f.SetColWidth(sheet, "F", "F", 12) // confidence
	_ = f.SetColWidth(sheet, "G", "G", 36) // source file
	_ = f.SetColWidth(sheet, "H", "H", 48) // errors

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
