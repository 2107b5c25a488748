package entity

import "time"

// JobState is the canonical lifecycle state of a batch job.
type JobState string

// Stable values (stored verbatim in the job store).
const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateRevoked    JobState = "revoked"
)

// Terminal reports whether a job in this state will see no further updates.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateRevoked
}

// BatchRequest asks for every resume in a remote folder to be processed.
// SpreadsheetID is optional; when empty a new spreadsheet is created.
type BatchRequest struct {
	FolderID      string `json:"folder_id"`
	SpreadsheetID string `json:"spreadsheet_id,omitempty"`
}

// RemoteFileRef identifies one file in the remote source.
type RemoteFileRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
}

// JobStatus is the durable progress record for a batch job. Exactly one
// record exists per job id; the worker processing the job is the only
// writer (last write wins).
type JobStatus struct {
	JobID           string     `json:"job_id"`
	State           JobState   `json:"status"`
	Progress        int        `json:"progress"`
	TotalFiles      int        `json:"total_files"`
	ProcessedFiles  int        `json:"processed_files"`
	SpreadsheetID   string     `json:"spreadsheet_id,omitempty"`
	ResultsCount    *int       `json:"results_count,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
}
