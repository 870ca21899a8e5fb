// Package jobs defines the asynchronous ingestion job contracts. The
// abstractions allow swapping the in-memory queue for a hosted broker
// without touching the pipeline.
package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeIngestReceipt represents a receipt ingestion job.
	JobTypeIngestReceipt JobType = "ingest_receipt"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// IngestReceiptJob is a request to run one document through the
// ingestion pipeline in the background.
type IngestReceiptJob struct {
	JobID string `json:"job_id"`

	// SourceRef locates the document (local path or GCS URI).
	SourceRef string `json:"source_ref"`
	MIMEType  string `json:"mime_type,omitempty"`

	Status JobStatus `json:"status"`

	// Outcome and ReceiptID are filled once the pipeline reaches a
	// terminal state.
	Outcome   string `json:"outcome,omitempty"`
	ReceiptID string `json:"receipt_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *IngestReceiptJob) GetID() string        { return j.JobID }
func (j *IngestReceiptJob) GetType() JobType     { return JobTypeIngestReceipt }
func (j *IngestReceiptJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues ingestion jobs.
type Publisher interface {
	PublishIngestReceipt(ctx context.Context, job *IngestReceiptJob) error
	Close() error
}

// Consumer pulls ingestion jobs and hands them to a handler.
type Consumer interface {
	// Start begins consuming; the handler is called for each job.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming and waits for in-flight jobs to finish.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. A non-nil error schedules a retry until
// MaxRetries is exhausted.
type JobHandler func(ctx context.Context, job Job) error

// JobStore tracks job state so callers can poll ingestion progress.
type JobStore interface {
	SaveJob(ctx context.Context, job *IngestReceiptJob) error
	GetJob(ctx context.Context, jobID string) (*IngestReceiptJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*IngestReceiptJob, error)
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	SourceRef string
	Status    JobStatus
	Limit     int
	Offset    int
}
