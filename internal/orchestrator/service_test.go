package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sourcestack/resume-batch/internal/common"
	"github.com/sourcestack/resume-batch/internal/entity"
)

// memoryStore is an in-memory JobStore that records every status write so
// tests can assert on progress ordering.
type memoryStore struct {
	mu       sync.Mutex
	statuses map[string]entity.JobStatus
	results  map[string][]entity.Candidate
	history  []entity.JobStatus
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		statuses: map[string]entity.JobStatus{},
		results:  map[string][]entity.Candidate{},
	}
}

func (m *memoryStore) SaveStatus(_ context.Context, s *entity.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[s.JobID] = *s
	m.history = append(m.history, *s)
	return nil
}

func (m *memoryStore) LoadStatus(_ context.Context, jobID string) (*entity.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[jobID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryStore) SaveResults(_ context.Context, jobID string, c []entity.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c == nil {
		c = []entity.Candidate{}
	}
	m.results[jobID] = c
	return nil
}

func (m *memoryStore) LoadResults(_ context.Context, jobID string) ([]entity.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.results[jobID]
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (m *memoryStore) ListJobs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.statuses))
	for id := range m.statuses {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memoryStore) CleanupExpiredJobs(context.Context) error { return nil }

func (m *memoryStore) statusHistory(jobID string) []entity.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.JobStatus
	for _, s := range m.history {
		if s.JobID == jobID {
			out = append(out, s)
		}
	}
	return out
}

type fakeTokens struct{ err error }

func (f *fakeTokens) AccessToken(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token", nil
}

type fakeLister struct {
	files []entity.RemoteFileRef
	err   error
}

func (f *fakeLister) ListResumeFiles(_ context.Context, _, _ string) ([]entity.RemoteFileRef, error) {
	return f.files, f.err
}

type fakeDownloader struct {
	mu       sync.Mutex
	attempts map[string]int
	// failures maps a file id to the errors returned before success.
	failures map[string][]error
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{attempts: map[string]int{}, failures: map[string][]error{}}
}

func (f *fakeDownloader) DownloadFile(_ context.Context, _, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.attempts[fileID]
	f.attempts[fileID] = n + 1
	if pending := f.failures[fileID]; n < len(pending) {
		return nil, pending[n]
	}
	return []byte("content:" + fileID), nil
}

func (f *fakeDownloader) attemptCount(fileID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[fileID]
}

type appendCall struct {
	rows        [][]string
	skipHeaders bool
}

type fakeSheets struct {
	mu      sync.Mutex
	created []string
	appends []appendCall
}

func (f *fakeSheets) CreateSpreadsheet(_ context.Context, _, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, title)
	return "sheet-1", nil
}

func (f *fakeSheets) AppendRows(_ context.Context, _, _ string, rows [][]string, skipHeaders bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, appendCall{rows: rows, skipHeaders: skipHeaders})
	return len(rows), nil
}

func (f *fakeSheets) appendedCalls() []appendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appendCall(nil), f.appends...)
}

func (f *fakeSheets) createdTitles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// fakeParser names candidates after their file id so tests can tell
// results apart.
type fakeParser struct{}

func (fakeParser) ParseResumeBytes(_ context.Context, fileName string, data []byte) entity.ExtractionResult {
	id := strings.TrimPrefix(string(data), "content:")
	return entity.ExtractionResult{
		Name:       "Candidate " + id,
		Email:      id + "@example.com",
		Confidence: 0.45,
	}
}

type fixture struct {
	service    *Service
	store      *memoryStore
	tokens     *fakeTokens
	lister     *fakeLister
	downloader *fakeDownloader
	sheets     *fakeSheets
}

func newFixture(t *testing.T, cfg common.BatchConfig) *fixture {
	t.Helper()
	f := &fixture{
		store:      newMemoryStore(),
		tokens:     &fakeTokens{},
		lister:     &fakeLister{},
		downloader: newFakeDownloader(),
		sheets:     &fakeSheets{},
	}
	f.service = New(cfg, f.store, f.tokens, f.lister, f.downloader, f.sheets, fakeParser{}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.service.Close(ctx)
	})
	return f
}

func fastConfig() common.BatchConfig {
	return common.BatchConfig{
		MaxConcurrentRequests: 2,
		SpreadsheetBatchSize:  2,
		MaxRetries:            3,
		RetryDelay:            time.Millisecond,
	}
}

func (f *fixture) waitTerminal(t *testing.T, jobID string) entity.JobStatus {
	t.Helper()
	var final entity.JobStatus
	require.Eventually(t, func() bool {
		status, err := f.service.GetJobStatus(context.Background(), jobID)
		if err != nil || !status.State.Terminal() {
			return false
		}
		final = *status
		return true
	}, 5*time.Second, 5*time.Millisecond)
	return final
}

func files(ids ...string) []entity.RemoteFileRef {
	out := make([]entity.RemoteFileRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, entity.RemoteFileRef{ID: id, Name: id + ".pdf", MIMEType: "application/pdf"})
	}
	return out
}

func TestStartBatchJobRejectsEmptyFolder(t *testing.T) {
	f := newFixture(t, fastConfig())

	_, err := f.service.StartBatchJob(context.Background(), entity.BatchRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStartBatchJobRequiresSignIn(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.tokens.err = errors.New("no cached token")

	_, err := f.service.StartBatchJob(context.Background(), entity.BatchRequest{FolderID: "folder"})
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestEmptyFolderCompletesWithoutSpreadsheet(t *testing.T) {
	f := newFixture(t, fastConfig())

	jobID, err := f.service.StartBatchJob(context.Background(), entity.BatchRequest{FolderID: "folder"})
	require.NoError(t, err)

	final := f.waitTerminal(t, jobID)
	assert.Equal(t, entity.JobStateCompleted, final.State)
	assert.Equal(t, 100, final.Progress)
	assert.Zero(t, final.TotalFiles)
	assert.Empty(t, f.sheets.createdTitles())

	results, err := f.service.GetJobResults(context.Background(), jobID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBatchJobHappyPath(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.lister.files = files("a", "b", "c")

	jobID, err := f.service.StartBatchJob(context.Background(), entity.BatchRequest{FolderID: "folder"})
	require.NoError(t, err)

	final := f.waitTerminal(t, jobID)
	assert.Equal(t, entity.JobStateCompleted, final.State)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, 3, final.TotalFiles)
	assert.Equal(t, 3, final.ProcessedFiles)
	assert.Equal(t, "sheet-1", final.SpreadsheetID)
	require.NotNil(t, final.ResultsCount)
	assert.Equal(t, 3, *final.ResultsCount)
	require.NotNil(t, final.CreatedAt)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)

	results, err := f.service.GetJobResults(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Candidate a", results[0].Name)
	assert.Equal(t, "a", results[0].RemoteFileID)
	assert.Equal(t, "c@example.com", results[2].Email)

	created := f.sheets.createdTitles()
	require.Len(t, created, 1)
	assert.True(t, strings.HasPrefix(created[0], "Resume Parse Results - "))

	calls := f.sheets.appendedCalls()
	// Header, then two data batches of sizes 2 and 1.
	require.Len(t, calls, 3)
	assert.False(t, calls[0].skipHeaders)
	assert.Equal(t, [][]string{headerColumns}, calls[0].rows)
	assert.True(t, calls[1].skipHeaders)
	require.Len(t, calls[1].rows, 2)
	assert.Equal(t, "Candidate a", calls[1].rows[0][0])
	assert.Equal(t, "https://drive.google.com/file/d/a/view", calls[1].rows[0][1])
	require.Len(t, calls[2].rows, 1)
}

func TestProgressStaysBelowHundredUntilDone(t *testing.T) {
	cfg := fastConfig()
	cfg.SpreadsheetBatchSize = 1
	cfg.MaxConcurrentRequests = 1
	f := newFixture(t, cfg)
	f.lister.files = files("a", "b")

	jobID, err := f.service.StartBatchJob(context.Background(), entity.BatchRequest{FolderID: "folder"})
	require.NoError(t, err)
	f.waitTerminal(t, jobID)

	var sawIntermediate bool
	for _, s := range f.store.statusHistory(jobID) {
		if !s.State.Terminal() {
			assert.LessOrEqual(t, s.Progress, 99)
			if s.Progress > 0 {
				sawIntermediate = true
			}
		}
	}
	assert.True(t, sawIntermediate)
}

func TestTransientFailuresAreRetried(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.lister.files = files("flaky")
	f.downloader.failures["flaky"] = []error{
		&common.RemoteAPIError{StatusCode: 503, Body: "unavailable"},
		&common.RemoteAPIError{StatusCode: 429, Body: "slow down"},
	}

	jobID, err := f.service.StartBatchJob(context.Background(), entity.BatchRequest{FolderID: "folder"})
	require.NoError(t, err)

	final := f.waitTerminal(t, jobID)
	assert.Equal(t, entity.JobStateCompleted, final.State)
	assert.Equal(t, 3, f.downloader.attemptCount("flaky"))

	results, err := f.service.GetJobResults(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Errors)
}

func TestPermanentFailureIsIsolatedPerFile(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.lister.files = files("gone", "fine")
	f.downloader.failures["gone"] = []error{
		&common.RemoteAPIError{StatusCode: 404, Body: "not found"},
	}

	jobID, err := f.service.StartBatchJob(context.Background(), entity.BatchRequest{FolderID: "folder"})
	require.NoError(t, err)

	final := f.waitTerminal(t, jobID)
	assert.Equal(t, entity.JobStateCompleted, final.State)
	assert.Equal(t, 1, f.downloader.attemptCount("gone"))

	results, err := f.service.GetJobResults(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, results[0].Errors, 1)
	assert.Contains(t, results[0].Errors[0], "Error processing file")
	assert.Equal(t, "Candidate fine", results[1].Name)

	// Both files land in the sheet: the failed one keeps a link-only row.
	var dataRows [][]string
	for _, call := range f.sheets.appendedCalls() {
		if call.skipHeaders {
			dataRows = append(dataRows, call.rows...)
		}
	}
	require.Len(t, dataRows, 2)
	assert.Equal(t, "", dataRows[0][0])
	assert.Equal(t, "https://drive.google.com/file/d/gone/view", dataRows[0][1])
	assert.Equal(t, "Candidate fine", dataRows[1][0])

	// Every listed file is accounted for in the progress counters.
	assert.Equal(t, 2, final.TotalFiles)
	assert.Equal(t, 2, final.ProcessedFiles)
}

func TestBuildRowsKeepsLinkOnlyRows(t *testing.T) {
	rows := buildRows([]entity.Candidate{
		entity.EmptyCandidate("gone.pdf", "file-123", []string{"Error processing file: boom"}),
		entity.EmptyCandidate("nameless.pdf", "", []string{"Missing file ID"}),
		{RemoteFileID: "f2", SourceFile: "ok.pdf", Name: "Ada Lovelace"},
	})

	// A candidate with a file id keeps a row carrying just the link; only
	// rows with every cell empty are dropped.
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"", "https://drive.google.com/file/d/file-123/view", "", "", "", ""}, rows[0])
	assert.Equal(t, "Ada Lovelace", rows[1][0])
}

func TestMissingFileIDIsSkipped(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.lister.files = []entity.RemoteFileRef{{Name: "nameless.pdf"}}

	jobID, err := f.service.StartBatchJob(context.Background(), entity.BatchRequest{FolderID: "folder"})
	require.NoError(t, err)
	f.waitTerminal(t, jobID)

	results, err := f.service.GetJobResults(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"Missing file ID"}, results[0].Errors)
	assert.Zero(t, f.downloader.attemptCount(""))
}

// recordingParser captures the filenames it is handed.
type recordingParser struct {
	mu    sync.Mutex
	names []string
}

func (p *recordingParser) ParseResumeBytes(_ context.Context, fileName string, _ []byte) entity.ExtractionResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, fileName)
	return entity.ExtractionResult{Name: "Someone", Confidence: 0.2}
}

func (p *recordingParser) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.names...)
}

func TestBareFilenamesGetExtensionFromMIMEType(t *testing.T) {
	f := newFixture(t, fastConfig())
	parser := &recordingParser{}
	service := New(fastConfig(), f.store, f.tokens, f.lister, f.downloader, f.sheets, parser, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		service.Close(ctx)
	})

	f.lister.files = []entity.RemoteFileRef{
		{ID: "a", Name: "Resume John", MIMEType: "application/pdf"},
		{ID: "b", Name: "Resume Jane", MIMEType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{ID: "c", Name: "resume.pdf", MIMEType: "application/pdf"},
	}

	jobID, err := service.StartBatchJob(context.Background(), entity.BatchRequest{FolderID: "folder"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		status, err := service.GetJobStatus(context.Background(), jobID)
		return err == nil && status.State.Terminal()
	}, 5*time.Second, 5*time.Millisecond)

	assert.ElementsMatch(t, []string{"Resume John.pdf", "Resume Jane.docx", "resume.pdf"}, parser.seen())

	results, err := service.GetJobResults(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Resume John.pdf", results[0].SourceFile)
}

func TestEnsureFileExtension(t *testing.T) {
	assert.Equal(t, "cv.pdf", ensureFileExtension("cv", "application/pdf"))
	assert.Equal(t, "cv.docx", ensureFileExtension("cv", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
	assert.Equal(t, "cv.pdf", ensureFileExtension("cv.pdf", "application/pdf"))
	assert.Equal(t, "cv.docx", ensureFileExtension("cv.docx", "application/pdf"))
	assert.Equal(t, "mystery", ensureFileExtension("mystery", "application/octet-stream"))
}

func TestGetJobStatusUnknownJob(t *testing.T) {
	f := newFixture(t, fastConfig())

	_, err := f.service.GetJobStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGetJobResultsWhileRunning(t *testing.T) {
	f := newFixture(t, fastConfig())
	require.NoError(t, f.store.SaveStatus(context.Background(), &entity.JobStatus{
		JobID: "busy",
		State: entity.JobStateProcessing,
	}))

	_, err := f.service.GetJobResults(context.Background(), "busy")
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestCancelQueuedJobRevokesInPlace(t *testing.T) {
	f := newFixture(t, fastConfig())
	require.NoError(t, f.store.SaveStatus(context.Background(), &entity.JobStatus{
		JobID: "queued",
		State: entity.JobStatePending,
	}))

	require.NoError(t, f.service.CancelJob(context.Background(), "queued"))

	got, err := f.service.GetJobStatus(context.Background(), "queued")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStateRevoked, got.State)
	assert.Equal(t, "Job cancelled", got.Error)

	err = f.service.CancelJob(context.Background(), "queued")
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestWorkerSkipsRevokedQueuedJob(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.lister.files = files("a")

	now := time.Now().UTC()
	require.NoError(t, f.store.SaveStatus(context.Background(), &entity.JobStatus{
		JobID:       "revoked-while-queued",
		State:       entity.JobStateRevoked,
		Error:       "Job cancelled",
		CompletedAt: &now,
	}))

	// The worker reloads the status before running and must leave a
	// revoked job untouched.
	f.service.processBatchJob(queuedJob{
		jobID:   "revoked-while-queued",
		request: entity.BatchRequest{FolderID: "folder"},
	})

	got, err := f.service.GetJobStatus(context.Background(), "revoked-while-queued")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStateRevoked, got.State)
	assert.Empty(t, f.sheets.createdTitles())
}

func TestIsRetryableClassification(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(errors.New("boom")))
	assert.False(t, isRetryable(&common.RemoteAPIError{StatusCode: 404}))
	assert.False(t, isRetryable(&common.RemoteAPIError{StatusCode: 400}))

	assert.True(t, isRetryable(context.DeadlineExceeded))
	assert.True(t, isRetryable(&common.RemoteAPIError{StatusCode: 429}))
	assert.True(t, isRetryable(&common.RemoteAPIError{StatusCode: 500}))
	assert.True(t, isRetryable(&common.RemoteAPIError{StatusCode: 503}))
	assert.True(t, isRetryable(fmt.Errorf("download: %w", &common.RemoteAPIError{StatusCode: 502})))
	assert.True(t, isRetryable(&url.Error{Op: "Get", URL: "https://example.com", Err: errors.New("connection reset")}))
}
