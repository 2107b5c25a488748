// Package orchestrator runs batch resume-extraction jobs: one worker
// drains a FIFO queue of jobs, each job lists a remote folder, downloads
// and parses every resume with bounded concurrency, and appends results
// to a spreadsheet in fixed-size batches.
package orchestrator

import (
	"context"

	"github.com/sourcestack/resume-batch/internal/entity"
)

// FileLister enumerates the resume files of a remote folder.
type FileLister interface {
	ListResumeFiles(ctx context.Context, accessToken, folderID string) ([]entity.RemoteFileRef, error)
}

// FileDownloader fetches the raw bytes of one remote file.
type FileDownloader interface {
	DownloadFile(ctx context.Context, accessToken, fileID string) ([]byte, error)
}

// SheetWriter creates spreadsheets and appends rows to them.
// AppendRows returns the number of rows actually written; when
// skipHeaders is true, rows matching the header line are dropped.
type SheetWriter interface {
	CreateSpreadsheet(ctx context.Context, accessToken, title string) (string, error)
	AppendRows(ctx context.Context, accessToken, spreadsheetID string, rows [][]string, skipHeaders bool) (int, error)
}

// TokenProvider yields a valid OAuth access token, refreshing if needed.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// ResumeParser turns one document into an extraction result. It never
// fails: parse problems are reported inside the result.
type ResumeParser interface {
	ParseResumeBytes(ctx context.Context, fileName string, data []byte) entity.ExtractionResult
}

// JobStore persists job status and result records.
type JobStore interface {
	SaveStatus(ctx context.Context, status *entity.JobStatus) error
	LoadStatus(ctx context.Context, jobID string) (*entity.JobStatus, error)
	SaveResults(ctx context.Context, jobID string, candidates []entity.Candidate) error
	LoadResults(ctx context.Context, jobID string) ([]entity.Candidate, error)
	ListJobs(ctx context.Context) ([]string, error)
	CleanupExpiredJobs(ctx context.Context) error
}
