package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sourcestack/resume-batch/internal/common"
	"github.com/sourcestack/resume-batch/internal/entity"
)

// Service is the public surface for single-file parsing and batch jobs.
// Batch jobs run strictly one at a time on a background worker; all other
// methods are safe to call concurrently.
type Service struct {
	cfg        common.BatchConfig
	store      JobStore
	tokens     TokenProvider
	lister     FileLister
	downloader FileDownloader
	sheets     SheetWriter
	parser     ResumeParser
	logger     *slog.Logger

	queue *jobQueue
	wg    sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(
	cfg common.BatchConfig,
	store JobStore,
	tokens TokenProvider,
	lister FileLister,
	downloader FileDownloader,
	sheets SheetWriter,
	parser ResumeParser,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrentRequests < 1 {
		cfg.MaxConcurrentRequests = 1
	}
	if cfg.SpreadsheetBatchSize < 1 {
		cfg.SpreadsheetBatchSize = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	s := &Service{
		cfg:        cfg,
		store:      store,
		tokens:     tokens,
		lister:     lister,
		downloader: downloader,
		sheets:     sheets,
		parser:     parser,
		logger:     logger,
		queue:      newJobQueue(),
		cancels:    make(map[string]context.CancelFunc),
	}

	s.wg.Add(1)
	go s.worker()
	return s
}

// ParseSingle extracts fields from one in-memory document.
func (s *Service) ParseSingle(ctx context.Context, fileName string, data []byte) entity.ExtractionResult {
	return s.parser.ParseResumeBytes(ctx, fileName, data)
}

// StartBatchJob validates the request, records a pending status and
// enqueues the job. It returns the new job id immediately; processing
// happens on the worker.
func (s *Service) StartBatchJob(ctx context.Context, req entity.BatchRequest) (string, error) {
	if req.FolderID == "" {
		return "", common.InvalidArgumentError("folder id is required")
	}

	// Surface missing credentials now rather than as a failed job later.
	if _, err := s.tokens.AccessToken(ctx); err != nil {
		return "", common.FailedPreconditionError("sign-in required: " + err.Error())
	}

	if err := s.store.CleanupExpiredJobs(ctx); err != nil {
		s.logger.Warn("batch.cleanup.failed", "error", err)
	}

	jobID := uuid.NewString()
	now := time.Now().UTC()
	status := entity.JobStatus{
		JobID:     jobID,
		State:     entity.JobStatePending,
		CreatedAt: &now,
	}
	if err := s.store.SaveStatus(ctx, &status); err != nil {
		return "", common.InternalErrorf("save job status: %v", err)
	}

	if !s.queue.push(queuedJob{jobID: jobID, request: req}) {
		return "", common.FailedPreconditionError("service is shutting down")
	}

	s.logger.Info("batch.job.queued", "job_id", jobID, "folder_id", req.FolderID)
	return jobID, nil
}

// GetJobStatus returns the durable status record for a job.
func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*entity.JobStatus, error) {
	status, err := s.store.LoadStatus(ctx, jobID)
	if err != nil {
		return nil, common.InternalErrorf("load job status: %v", err)
	}
	if status == nil {
		return nil, common.NotFoundErrorf("job %s not found", jobID)
	}
	return status, nil
}

// GetJobResults returns the candidate list of a finished job. A known but
// still-running job is a failed precondition, not a missing resource.
func (s *Service) GetJobResults(ctx context.Context, jobID string) ([]entity.Candidate, error) {
	status, err := s.GetJobStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !status.State.Terminal() {
		return nil, common.FailedPreconditionError("job " + jobID + " is still " + string(status.State))
	}

	results, err := s.store.LoadResults(ctx, jobID)
	if err != nil {
		return nil, common.InternalErrorf("load job results: %v", err)
	}
	if results == nil {
		results = []entity.Candidate{}
	}
	return results, nil
}

// ListJobs returns the status of every retained job, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]entity.JobStatus, error) {
	ids, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, common.InternalErrorf("list jobs: %v", err)
	}

	statuses := make([]entity.JobStatus, 0, len(ids))
	for _, id := range ids {
		status, err := s.store.LoadStatus(ctx, id)
		if err != nil {
			return nil, common.InternalErrorf("load job status: %v", err)
		}
		if status != nil {
			statuses = append(statuses, *status)
		}
	}
	return statuses, nil
}

// CancelJob revokes a job. A running job is cancelled via its context and
// finalized by the worker; a queued job is revoked in place and skipped
// when the worker reaches it.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	status, err := s.GetJobStatus(ctx, jobID)
	if err != nil {
		return err
	}
	if status.State.Terminal() {
		return common.FailedPreconditionError("job " + jobID + " already " + string(status.State))
	}

	s.mu.Lock()
	cancel, running := s.cancels[jobID]
	s.mu.Unlock()

	if running {
		cancel()
		s.logger.Info("batch.job.cancel_requested", "job_id", jobID)
		return nil
	}

	now := time.Now().UTC()
	status.State = entity.JobStateRevoked
	status.Error = "Job cancelled"
	status.CompletedAt = &now
	if err := s.store.SaveStatus(ctx, status); err != nil {
		return common.InternalErrorf("save job status: %v", err)
	}
	s.logger.Info("batch.job.revoked", "job_id", jobID)
	return nil
}

// Close stops intake and waits for queued jobs to drain, up to the
// context deadline.
func (s *Service) Close(ctx context.Context) {
	s.queue.close()

	done := make(chan struct{})
	go func() { defer close(done); s.wg.Wait() }()

	select {
	case <-ctx.Done():
		s.logger.Warn("batch.shutdown.interrupted")
	case <-done:
		s.logger.Info("batch.shutdown.complete")
	}
}
