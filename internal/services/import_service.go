package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"board/internal/importer"
	applog "board/internal/log"
)

// ImportResult is the outcome of one batch upload.
type ImportResult struct {
	Inserted    int                 `json:"inserted"`
	SkippedJobs []string            `json:"skippedJobs"`
	Errors      []importer.RowError `json:"errors"`
}

// ImportService loads spreadsheets into the store through JobService so
// every row is validated and announced like a single create.
type ImportService struct {
	jobs *JobService
}

func NewImportService(jobs *JobService) *ImportService {
	return &ImportService{jobs: jobs}
}

// Import parses the file and inserts each row whose JobNumber is not held
// by a job that existed before the import started. Rows repeating a number
// within the same file are all inserted. Each row succeeds or fails on its
// own; there is no rollback.
func (s *ImportService) Import(ctx context.Context, name string, r io.Reader) (ImportResult, error) {
	parsed, err := importer.ParseFile(name, r)
	if err != nil {
		return ImportResult{}, err
	}

	existing, err := s.existingNumbers(ctx)
	if err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{
		SkippedJobs: []string{},
		Errors:      append([]importer.RowError{}, parsed.Errors...),
	}
	for _, row := range parsed.Rows {
		if _, ok := existing[row.Job.JobNumber]; ok {
			res.SkippedJobs = append(res.SkippedJobs, row.Job.JobNumber)
			continue
		}
		if _, err := s.jobs.CreateJob(ctx, row.Job); err != nil {
			res.Errors = append(res.Errors, importer.RowError{
				Line:      row.Line,
				JobNumber: row.Job.JobNumber,
				Error:     err.Error(),
			})
			continue
		}
		res.Inserted++
	}

	slog.InfoContext(ctx, "Batch import finished", applog.NewFields().
		WithComponent(applog.ComponentImport).
		WithOperation(applog.OpImport).
		With(applog.FieldFile, name).
		With("inserted", res.Inserted).
		With("skipped", len(res.SkippedJobs)).
		With("failed", len(res.Errors)).ToSlice()...)
	return res, nil
}

// existingNumbers snapshots the job numbers held before the import.
func (s *ImportService) existingNumbers(ctx context.Context) (map[string]struct{}, error) {
	list, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot job numbers: %w", err)
	}
	out := make(map[string]struct{}, len(list))
	for _, j := range list {
		out[j.JobNumber] = struct{}{}
	}
	return out, nil
}
