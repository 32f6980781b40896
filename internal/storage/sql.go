package storage

import (
	_ "embed"
)

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_files_run_id ON files (run_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);`

	insertRunSQL = `
INSERT INTO runs (id,
                  started_at,
                  input_dir,
                  output_dir,
                  min_distance)
VALUES (?, ?, ?, ?, ?)`

	finishRunSQL = `
UPDATE runs
SET finished_at = ?,
    discovered  = ?,
    succeeded   = ?,
    failed      = ?,
    skipped     = ?,
    interrupted = ?
WHERE id = ?`

	selectRunSQL = `
SELECT id,
       started_at,
       finished_at,
       input_dir,
       output_dir,
       min_distance,
       discovered,
       succeeded,
       failed,
       skipped,
       interrupted
FROM runs
WHERE id = ?`

	selectRunsSQL = `
SELECT id,
       started_at,
       finished_at,
       input_dir,
       output_dir,
       min_distance,
       discovered,
       succeeded,
       failed,
       skipped,
       interrupted
FROM runs
ORDER BY started_at`

	insertFileSQL = `
INSERT INTO files (run_id,
                   path,
                   status,
                   reason,
                   stage,
                   output,
                   points,
                   total_distance,
                   track_start,
                   track_end,
                   processed_at)
VALUES `

	selectFilesSQL = `
SELECT id,
       run_id,
       path,
       status,
       reason,
       stage,
       output,
       points,
       total_distance,
       track_start,
       track_end,
       processed_at
FROM files
WHERE run_id = ?
ORDER BY id`
)

//go:embed schema.sql
var initSchemaSQL string
