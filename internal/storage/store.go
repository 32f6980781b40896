package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the run ledger. It records every batch invocation together with the
// outcome of each processed video so previous runs can be listed and audited.
type Store interface {
	// BeginRun persists a new run. An empty ID is replaced with a generated one
	// and StartedAt defaults to the current time.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - run: Run to create, updated in place with the assigned ID
	//
	// Returns:
	//   - error: If the run cannot be stored or context is cancelled
	BeginRun(ctx context.Context, run *Run) error

	// RecordFiles stores per-file outcomes in a single transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - records: File outcomes, each referencing an existing run
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	RecordFiles(ctx context.Context, records ...*FileRecord) error

	// FinishRun stores the final counters of a run and marks it finished.
	FinishRun(ctx context.Context, run *Run) error

	// Run retrieves a run by its ID.
	Run(ctx context.Context, id string) (*Run, error)

	// Runs returns all recorded runs ordered by start time.
	Runs(ctx context.Context) ([]*Run, error)

	// Files returns the file outcomes of a run in the order they were recorded.
	Files(ctx context.Context, runID string) ([]*FileRecord, error)

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)
