// Package store defines the persistence ports used by the pipeline and the
// two adapters behind them: DefraDB (production) and an in-memory store
// used by tests and `temario serve --store memory`.
package store

import (
	"context"
	"errors"

	"github.com/jackzampolin/temario/internal/types"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict is returned by CompareAndSetStatus when the stored
	// status no longer matches the expected one.
	ErrStatusConflict = errors.New("status changed concurrently")

	// ErrJobFinished is returned when writing to a completed or failed job.
	ErrJobFinished = errors.New("batch job is finished")
)

// Areas persists ContentArea records.
type Areas interface {
	GetArea(ctx context.Context, id string) (*types.ContentArea, error)
	ListAreas(ctx context.Context) ([]*types.ContentArea, error)
	// EnsureArea returns the area, creating it in pending state when missing.
	EnsureArea(ctx context.Context, id string) (*types.ContentArea, error)
	UpdateArea(ctx context.Context, id string, upd types.AreaUpdate) error
	// CompareAndSetStatus moves the area from status `from` to `to` and applies
	// upd in the same write. It fails with ErrStatusConflict when the current
	// status is not `from`.
	CompareAndSetStatus(ctx context.Context, id string, from, to types.AreaStatus, upd types.AreaUpdate) error
}

// Pages persists OCR pages keyed by (area, page number).
type Pages interface {
	// UpsertPages writes pages idempotently: an existing (area, page) row is
	// overwritten, never duplicated.
	UpsertPages(ctx context.Context, pages []types.Page) error
	// ListPages returns pages in r ordered by page number.
	ListPages(ctx context.Context, areaID string, r types.PageRange) ([]types.Page, error)
	CountPages(ctx context.Context, areaID string) (int, error)
	// PrunePages removes the pages of areaID whose number is not in keep and
	// returns how many were removed.
	PrunePages(ctx context.Context, areaID string, keep []int) (int, error)
}

// Topics persists versioned topic sets and their page copies.
type Topics interface {
	// ListTopics returns the topics of one structure version ordered by Order.
	ListTopics(ctx context.Context, areaID, version string) ([]types.Topic, error)
	GetTopic(ctx context.Context, id string) (*types.Topic, error)
	// CreateTopics inserts topics and returns them with IDs assigned, in input order.
	CreateTopics(ctx context.Context, topics []types.Topic) ([]types.Topic, error)
	SetTopicCover(ctx context.Context, topicID, coverRef string) error
	// ListTopicVersions returns the distinct structure versions stored for an area.
	ListTopicVersions(ctx context.Context, areaID string) ([]string, error)
	// DeleteTopicVersion removes the topics of one version and their TopicPages.
	DeleteTopicVersion(ctx context.Context, areaID, version string) error

	// UpsertTopicPages writes page copies keyed by (topic, page number).
	UpsertTopicPages(ctx context.Context, pages []types.TopicPage) error
	ListTopicPages(ctx context.Context, topicID string) ([]types.TopicPage, error)
}

// Jobs persists batch jobs and their per-item results.
type Jobs interface {
	// CreateJob stores a new job and returns its ID.
	CreateJob(ctx context.Context, job *types.BatchJob) (string, error)
	// GetJob returns the job including its recorded results.
	GetJob(ctx context.Context, id string) (*types.BatchJob, error)
	// GetProgress returns only the pollable counters.
	GetProgress(ctx context.Context, id string) (*types.BatchProgress, error)
	// ListJobs returns jobs, optionally filtered by status ("" = all).
	ListJobs(ctx context.Context, status types.BatchStatus) ([]*types.BatchJob, error)
	// SetJobStatus updates the status, stamping started/completed times.
	// Finished jobs are immutable (ErrJobFinished).
	SetJobStatus(ctx context.Context, id string, status types.BatchStatus, errMsg string) error
	// RecordResult upserts the result for one item and returns the job's
	// completed count, which never decreases and never exceeds the total.
	RecordResult(ctx context.Context, jobID string, result types.BatchResult) (int, error)
}

// Store is the full persistence surface.
type Store interface {
	Areas
	Pages
	Topics
	Jobs
}
