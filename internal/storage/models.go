package storage

import (
	"database/sql"
	"time"
)

// Run is a single batch invocation recorded in the ledger
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  *time.Time
	InputDir    string
	OutputDir   string
	MinDistance float64
	Discovered  int
	Succeeded   int
	Failed      int
	Skipped     int
	Interrupted bool
}

// FileRecord is the outcome of processing one video within a run
type FileRecord struct {
	ID            int64
	RunID         string
	Path          string
	Status        string
	Reason        string
	Stage         string
	Output        string
	Points        int
	TotalDistance float64
	TrackStart    *int64
	TrackEnd      *int64
	ProcessedAt   time.Time
}

type runData struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  sql.NullTime
	InputDir    string
	OutputDir   string
	MinDistance float64
	Discovered  int
	Succeeded   int
	Failed      int
	Skipped     int
	Interrupted bool
}

type fileData struct {
	ID            int64
	RunID         string
	Path          string
	Status        string
	Reason        sql.NullString
	Stage         string
	Output        sql.NullString
	Points        int
	TotalDistance float64
	TrackStart    sql.NullInt64
	TrackEnd      sql.NullInt64
	ProcessedAt   time.Time
}
