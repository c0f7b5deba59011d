package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the state of an ingestion sync run.
type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
)

// Terminal reports whether a run status is terminal.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// SyncRun is the accounting record for one ingestion run over one source file.
type SyncRun struct {
	ID               uuid.UUID  `json:"id"`
	SyncType         string     `json:"sync_type"`
	Category         Category   `json:"category"`
	SourceFile       string     `json:"source_file"`
	Status           RunStatus  `json:"status"`
	RecordsProcessed int64      `json:"records_processed"`
	RecordsAdded     int64      `json:"records_added"`
	RecordsUpdated   int64      `json:"records_updated"`
	ErrorCount       int64      `json:"error_count"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// RunCounters is a snapshot of a run's monotonically increasing counters.
type RunCounters struct {
	Processed int64
	Added     int64
	Updated   int64
	Errors    int64
}

// Store is the persistence contract for the entity corpus and its sync
// accounting. Implementations exist for Postgres (pgx) and SQLite.
type Store interface {
	// UpsertEntity inserts or overwrites one record keyed by document number.
	// It reports whether the record was newly inserted.
	UpsertEntity(ctx context.Context, rec *EntityRecord) (inserted bool, err error)

	// UpsertBatch upserts a batch of records belonging to one category and
	// returns how many were newly added versus overwritten.
	UpsertBatch(ctx context.Context, cat Category, recs []EntityRecord) (added, updated int64, err error)

	// SearchNormalized returns up to limit records in one category whose
	// normalized name contains substr, most recently filed first with
	// missing filing dates sorting last.
	SearchNormalized(ctx context.Context, cat Category, substr string, limit int) ([]EntityRecord, error)

	// CreateSyncRun persists a new run in its initial in_progress state.
	CreateSyncRun(ctx context.Context, run *SyncRun) error

	// UpdateSyncRunCounters persists a counter snapshot for an in-flight run.
	UpdateSyncRunCounters(ctx context.Context, id uuid.UUID, c RunCounters) error

	// FinishSyncRun transitions a run to a terminal status, setting
	// completed_at exactly once along with final counters.
	FinishSyncRun(ctx context.Context, id uuid.UUID, status RunStatus, errMsg string, c RunCounters) error

	// ListSyncRuns returns the most recent runs, newest first.
	ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error)

	// Migrate brings the schema up to date.
	Migrate(ctx context.Context) error

	Close() error
}
