package storage

import (
	"database/sql"
	"errors"
	"time"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toFileData(r *FileRecord) *fileData {
	processedAt := r.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	return &fileData{
		RunID:         r.RunID,
		Path:          r.Path,
		Status:        r.Status,
		Reason:        toNullString(r.Reason),
		Stage:         r.Stage,
		Output:        toNullString(r.Output),
		Points:        r.Points,
		TotalDistance: r.TotalDistance,
		TrackStart:    toNullInt64(r.TrackStart),
		TrackEnd:      toNullInt64(r.TrackEnd),
		ProcessedAt:   processedAt.UTC(),
	}
}

func (d *fileData) toRecord() *FileRecord {
	return &FileRecord{
		ID:            d.ID,
		RunID:         d.RunID,
		Path:          d.Path,
		Status:        d.Status,
		Reason:        d.Reason.String,
		Stage:         d.Stage,
		Output:        d.Output.String,
		Points:        d.Points,
		TotalDistance: d.TotalDistance,
		TrackStart:    fromNullInt64(d.TrackStart),
		TrackEnd:      fromNullInt64(d.TrackEnd),
		ProcessedAt:   d.ProcessedAt,
	}
}

func (d *runData) toRun() *Run {
	r := &Run{
		ID:          d.ID,
		StartedAt:   d.StartedAt,
		InputDir:    d.InputDir,
		OutputDir:   d.OutputDir,
		MinDistance: d.MinDistance,
		Discovered:  d.Discovered,
		Succeeded:   d.Succeeded,
		Failed:      d.Failed,
		Skipped:     d.Skipped,
		Interrupted: d.Interrupted,
	}
	if d.FinishedAt.Valid {
		t := d.FinishedAt.Time
		r.FinishedAt = &t
	}
	return r
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
