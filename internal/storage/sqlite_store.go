package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxFilesPerInsert keeps a batch insert below the sqlite bound variable limit
const maxFilesPerInsert = 500

// ErrRunNotFound is returned when a run ID is not present in the ledger
var ErrRunNotFound = errors.New("run not found")

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a new store backed by the Sqlite database at dbPath.
// Connections are opened lazily, the schema is created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) BeginRun(ctx context.Context, run *Run) (err error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, run.ID, run.StartedAt.UTC(), run.InputDir, run.OutputDir, run.MinDistance); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	return nil
}

func (s *SqliteStore) RecordFiles(ctx context.Context, records ...*FileRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	for chunk := range slices.Chunk(records, maxFilesPerInsert) {
		values := make([]any, 0, len(chunk)*11)

		var sb strings.Builder
		sb.WriteString(insertFileSQL)

		for i, r := range chunk {
			data := toFileData(r)
			values = append(values,
				data.RunID,
				data.Path,
				data.Status,
				data.Reason,
				data.Stage,
				data.Output,
				data.Points,
				data.TotalDistance,
				data.TrackStart,
				data.TrackEnd,
				data.ProcessedAt,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting files: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) FinishRun(ctx context.Context, run *Run) (err error) {
	finishedAt := time.Now()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, finishRunSQL,
		finishedAt.UTC(),
		run.Discovered,
		run.Succeeded,
		run.Failed,
		run.Skipped,
		run.Interrupted,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run %s: %w", run.ID, ErrRunNotFound)
	}

	run.FinishedAt = &finishedAt
	return nil
}

func (s *SqliteStore) Run(ctx context.Context, id string) (run *Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, selectRunSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	data, err := scanRun(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	return data.toRun(), nil
}

func (s *SqliteStore) Runs(ctx context.Context) (runs []*Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		data, sErr := scanRun(rows)
		if sErr != nil {
			return nil, fmt.Errorf("scanning run: %w", sErr)
		}
		runs = append(runs, data.toRun())
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

func (s *SqliteStore) Files(ctx context.Context, runID string) (files []*FileRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectFilesSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d fileData
		if err = rows.Scan(
			&d.ID,
			&d.RunID,
			&d.Path,
			&d.Status,
			&d.Reason,
			&d.Stage,
			&d.Output,
			&d.Points,
			&d.TotalDistance,
			&d.TrackStart,
			&d.TrackEnd,
			&d.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		files = append(files, d.toRecord())
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating files: %w", err)
	}

	return files, nil
}

func scanRun(row interface{ Scan(...any) error }) (*runData, error) {
	var d runData
	err := row.Scan(
		&d.ID,
		&d.StartedAt,
		&d.FinishedAt,
		&d.InputDir,
		&d.OutputDir,
		&d.MinDistance,
		&d.Discovered,
		&d.Succeeded,
		&d.Failed,
		&d.Skipped,
		&d.Interrupted,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
