package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sourcestack/resume-batch/internal/common"
	"github.com/sourcestack/resume-batch/internal/entity"
)

// Column order of every spreadsheet row.
var headerColumns = []string{"Name", "Resume Link", "Phone Number", "Email ID", "LinkedIn", "GitHub"}

func (s *Service) worker() {
	defer s.wg.Done()
	s.logger.Info("batch.worker.started")

	for {
		job, ok := s.queue.pop()
		if !ok {
			s.logger.Info("batch.worker.stopped")
			return
		}
		s.processBatchJob(job)
	}
}

// processBatchJob runs one job to a terminal state. Partial results are
// persisted even when the job fails or is revoked mid-flight.
func (s *Service) processBatchJob(job queuedJob) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[job.jobID] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.cancels, job.jobID)
		s.mu.Unlock()
	}()

	var createdAt *time.Time
	if prev, err := s.store.LoadStatus(ctx, job.jobID); err != nil {
		s.logger.Warn("batch.job.status_load_failed", "job_id", job.jobID, "error", err)
	} else if prev != nil {
		if prev.State.Terminal() {
			s.logger.Info("batch.job.skipped", "job_id", job.jobID, "state", prev.State)
			return
		}
		createdAt = prev.CreatedAt
	}

	started := time.Now().UTC()
	status := entity.JobStatus{
		JobID:     job.jobID,
		State:     entity.JobStateProcessing,
		CreatedAt: createdAt,
		StartedAt: &started,
	}

	candidates, err := s.runBatchPipeline(ctx, job.request, &status)

	completed := time.Now().UTC()
	duration := completed.Sub(started).Seconds()
	status.CompletedAt = &completed
	status.DurationSeconds = &duration

	switch {
	case err == nil:
		status.State = entity.JobStateCompleted
		status.Progress = 100
		count := len(candidates)
		status.ResultsCount = &count
	case errors.Is(err, context.Canceled):
		status.State = entity.JobStateRevoked
		status.Error = "Job cancelled"
	default:
		status.State = entity.JobStateFailed
		status.Error = err.Error()
	}

	// The job context may already be cancelled; final writes must land.
	if err := s.store.SaveResults(context.Background(), job.jobID, candidates); err != nil {
		s.logger.Error("batch.job.results_save_failed", "job_id", job.jobID, "error", err)
	}
	if err := s.store.SaveStatus(context.Background(), &status); err != nil {
		s.logger.Error("batch.job.status_save_failed", "job_id", job.jobID, "error", err)
	}

	s.logger.Info("batch.job.finished",
		"job_id", job.jobID,
		"state", status.State,
		"total_files", status.TotalFiles,
		"results", len(candidates),
		"duration_seconds", duration)
}

// runBatchPipeline lists, downloads, parses and appends. It mutates the
// status record as it goes so readers see live progress, and returns
// every candidate produced before the error, if any.
func (s *Service) runBatchPipeline(ctx context.Context, req entity.BatchRequest, status *entity.JobStatus) ([]entity.Candidate, error) {
	s.saveStatus(ctx, status)

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, common.WrapError(err, "acquire access token")
	}

	files, err := s.lister.ListResumeFiles(ctx, token, req.FolderID)
	if err != nil {
		return nil, common.WrapError(err, "list folder")
	}
	if len(files) == 0 {
		s.logger.Info("batch.job.empty_folder", "job_id", status.JobID, "folder_id", req.FolderID)
		return []entity.Candidate{}, nil
	}

	spreadsheetID := req.SpreadsheetID
	if spreadsheetID == "" {
		title := "Resume Parse Results - " + time.Now().Format("2006-01-02 15:04:05")
		err := s.withRetry(ctx, func() error {
			var cerr error
			spreadsheetID, cerr = s.sheets.CreateSpreadsheet(ctx, token, title)
			return cerr
		})
		if err != nil {
			return nil, common.WrapError(err, "create spreadsheet")
		}
		err = s.withRetry(ctx, func() error {
			_, aerr := s.sheets.AppendRows(ctx, token, spreadsheetID, [][]string{headerColumns}, false)
			return aerr
		})
		if err != nil {
			return nil, common.WrapError(err, "write header row")
		}
	}

	status.SpreadsheetID = spreadsheetID
	status.TotalFiles = len(files)
	s.saveStatus(ctx, status)

	// One gate per job; released fully between jobs.
	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrentRequests))

	var candidates []entity.Candidate
	for start := 0; start < len(files); start += s.cfg.SpreadsheetBatchSize {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}

		end := start + s.cfg.SpreadsheetBatchSize
		if end > len(files) {
			end = len(files)
		}

		chunk, err := s.processChunk(ctx, sem, token, files[start:end])
		if err != nil {
			return candidates, err
		}
		candidates = append(candidates, chunk...)

		rows := buildRows(chunk)
		if len(rows) > 0 {
			err := s.withRetry(ctx, func() error {
				_, aerr := s.sheets.AppendRows(ctx, token, spreadsheetID, rows, true)
				return aerr
			})
			if err != nil {
				return candidates, common.WrapError(err, "append rows")
			}
		}

		status.ProcessedFiles += len(rows)
		if status.TotalFiles > 0 {
			progress := status.ProcessedFiles * 100 / status.TotalFiles
			if progress > 99 {
				progress = 99
			}
			status.Progress = progress
		}
		s.saveStatus(ctx, status)
	}

	return candidates, nil
}

// processChunk parses the chunk's files concurrently, bounded by the
// semaphore, and returns candidates in listing order.
func (s *Service) processChunk(ctx context.Context, sem *semaphore.Weighted, token string, chunk []entity.RemoteFileRef) ([]entity.Candidate, error) {
	out := make([]entity.Candidate, len(chunk))
	var wg sync.WaitGroup

	for i := range chunk {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(i int, file entity.RemoteFileRef) {
			defer wg.Done()
			defer sem.Release(1)
			out[i] = s.processFile(ctx, token, file)
		}(i, chunk[i])
	}

	wg.Wait()
	return out, nil
}

// processFile downloads and parses one file. Failures never escape: a
// broken file yields an empty candidate carrying the error text.
func (s *Service) processFile(ctx context.Context, token string, file entity.RemoteFileRef) entity.Candidate {
	if file.ID == "" {
		return entity.EmptyCandidate(file.Name, "", []string{"Missing file ID"})
	}

	var data []byte
	err := s.withRetry(ctx, func() error {
		var derr error
		data, derr = s.downloader.DownloadFile(ctx, token, file.ID)
		return derr
	})
	if err != nil {
		s.logger.Warn("batch.file.failed", "file", file.Name, "file_id", file.ID, "error", err)
		return entity.EmptyCandidate(file.Name, file.ID, []string{fmt.Sprintf("Error processing file: %v", err)})
	}

	fileName := ensureFileExtension(file.Name, file.MIMEType)
	result := s.parser.ParseResumeBytes(ctx, fileName, data)
	return entity.CandidateFromResult(result, fileName, file.ID)
}

// ensureFileExtension appends the extension implied by the MIME type when
// the remote name has none. Docs-exported files often arrive bare.
func ensureFileExtension(name, mimeType string) string {
	if filepath.Ext(name) != "" {
		return name
	}
	switch mimeType {
	case "application/pdf":
		return name + ".pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return name + ".docx"
	}
	return name
}

// withRetry runs fn up to MaxRetries times, backing off exponentially on
// transient failures.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt == s.cfg.MaxRetries-1 {
			return err
		}
		delay := s.cfg.RetryDelay * time.Duration(1<<attempt)
		s.logger.Warn("batch.retrying", "attempt", attempt+1, "delay", delay, "error", err)
		if serr := sleepWithContext(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

// isRetryable classifies a failure as transient. Remote errors decide by
// status code; status-less network failures are assumed transient.
// Cancellation is never retried.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *common.RemoteAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) saveStatus(ctx context.Context, status *entity.JobStatus) {
	if err := s.store.SaveStatus(ctx, status); err != nil {
		s.logger.Warn("batch.job.status_save_failed", "job_id", status.JobID, "error", err)
	}
}

// buildRows turns candidates into spreadsheet rows. The link cell is part
// of the row, so a failed parse with a known file id still lands a
// link-only row; only rows with every cell empty are dropped.
func buildRows(candidates []entity.Candidate) [][]string {
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		link := ""
		if c.RemoteFileID != "" {
			link = fmt.Sprintf("https://drive.google.com/file/d/%s/view", c.RemoteFileID)
		}
		row := []string{c.Name, link, c.Phone, c.Email, c.LinkedIn, c.GitHub}

		empty := true
		for _, cell := range row {
			if cell != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}
