package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"board/internal/core"
	"board/internal/jobs"
	applog "board/internal/log"
)

// DefaultStaleAfterDays is the cleanup horizon used when none is configured.
const DefaultStaleAfterDays = 14

type (
	// BulkFailure is one id a bulk operation could not delete.
	BulkFailure struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}

	// BulkResult reports every id of a bulk delete. Deletes are independent;
	// earlier successes stand when a later one fails.
	BulkResult struct {
		Deleted []string      `json:"deleted"`
		Failed  []BulkFailure `json:"failed"`
	}

	// ScheduleResult is the job after a schedule mutation and the change that
	// was applied to it.
	ScheduleResult struct {
		Job   core.Job `json:"job"`
		Op    string   `json:"op"`
		Entry string   `json:"entry"`
	}
)

// JobService orchestrates job operations across the store and the event
// publisher. A nil publisher disables the board mirror.
type JobService struct {
	store      jobs.Store
	events     jobs.EventPublisher
	now        func() time.Time
	staleAfter int
}

type Option func(*JobService)

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *JobService) { s.now = now }
}

// WithStaleAfter sets the default cleanup horizon in days.
func WithStaleAfter(days int) Option {
	return func(s *JobService) {
		if days >= 0 {
			s.staleAfter = days
		}
	}
}

func NewJobService(store jobs.Store, events jobs.EventPublisher, opts ...Option) *JobService {
	s := &JobService{
		store:      store,
		events:     events,
		now:        time.Now,
		staleAfter: DefaultStaleAfterDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *JobService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *JobService) ListJobs(ctx context.Context) ([]core.Job, error) {
	list, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return list, nil
}

func (s *JobService) GetJob(ctx context.Context, id string) (core.Job, error) {
	j, err := s.store.GetJob(ctx, id)
	if err != nil {
		return core.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// CreateJob normalizes and validates j, stores it and announces it. The
// store assigns the id; a client supplied one is ignored.
func (s *JobService) CreateJob(ctx context.Context, j core.Job) (core.Job, error) {
	j.ID = ""
	j.Normalize()
	if err := j.Validate(); err != nil {
		return core.Job{}, err
	}
	created, err := s.store.CreateJob(ctx, j)
	if err != nil {
		return core.Job{}, fmt.Errorf("save job: %w", err)
	}
	slog.InfoContext(ctx, "Job created", applog.NewFields().
		WithComponent(applog.ComponentJobs).
		WithOperation(applog.OpCreate).
		WithJob(created.ID, created.JobNumber).ToSlice()...)
	s.publishSync(ctx, created.ID)
	return created, nil
}

// UpdateJob applies a partial update. The patched job must still validate.
func (s *JobService) UpdateJob(ctx context.Context, id string, p core.JobPatch) (core.Job, error) {
	current, err := s.store.GetJob(ctx, id)
	if err != nil {
		return core.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	next := p.Apply(current)
	next.Normalize()
	if err := next.Validate(); err != nil {
		return core.Job{}, err
	}
	if p.IsEmpty() {
		return current, nil
	}
	updated, err := s.store.UpdateJob(ctx, id, p)
	if err != nil {
		return core.Job{}, fmt.Errorf("update job %s: %w", id, err)
	}
	s.publishSync(ctx, updated.ID)
	return updated, nil
}

func (s *JobService) DeleteJob(ctx context.Context, id string) error {
	j, err := s.store.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job %s: %w", id, err)
	}
	if err := s.store.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Job deleted", applog.NewFields().
		WithComponent(applog.ComponentJobs).
		WithOperation(applog.OpDelete).
		WithJob(id, j.JobNumber).ToSlice()...)
	s.publishDelete(ctx, id, j.JobNumber)
	return nil
}

// AddToSchedule adds date (plain or test fit suffixed) to the first job
// holding jobNumber. A day already held in any accepted layout is a no-op.
// Test fit entries need a job with TestFit set.
func (s *JobService) AddToSchedule(ctx context.Context, jobNumber, date string) (core.Job, error) {
	e, err := core.ParseScheduleEntry(date)
	if err != nil {
		return core.Job{}, dateError(date, err)
	}
	j, err := s.findByNumber(ctx, jobNumber)
	if err != nil {
		return core.Job{}, err
	}
	if e.TestFit && !j.TestFit.Yes() {
		return core.Job{}, fmt.Errorf("add %q to job %s: %w", e, jobNumber, core.ErrTestFitNotApplicable)
	}
	if _, ok := j.FindEntry(e); ok {
		return j, nil
	}
	return s.applyChange(ctx, jobNumber, core.ScheduleChange{Op: core.ScheduleAdd, Entry: e.String()})
}

// RemoveFromSchedule removes date from the first job holding jobNumber,
// matching the stored entry by the day it names. Entries that do not parse
// are matched verbatim so stray values can be cleared.
func (s *JobService) RemoveFromSchedule(ctx context.Context, jobNumber, date string) (core.Job, error) {
	e, err := core.ParseScheduleEntry(date)
	if err != nil {
		entry := strings.TrimSpace(date)
		if entry == "" {
			return core.Job{}, dateError(date, err)
		}
		return s.applyChange(ctx, jobNumber, core.ScheduleChange{Op: core.ScheduleRemove, Entry: entry})
	}
	j, err := s.findByNumber(ctx, jobNumber)
	if err != nil {
		return core.Job{}, err
	}
	entry := e.String()
	if raw, ok := j.FindEntry(e); ok {
		entry = raw
	}
	return s.applyChange(ctx, jobNumber, core.ScheduleChange{Op: core.ScheduleRemove, Entry: entry})
}

// ToggleSchedule removes the install entry for date, or else its test fit
// entry, or else adds an install entry.
func (s *JobService) ToggleSchedule(ctx context.Context, jobNumber, date string) (ScheduleResult, error) {
	day, err := core.ParseDate(date)
	if err != nil {
		return ScheduleResult{}, dateError(date, err)
	}
	j, err := s.findByNumber(ctx, jobNumber)
	if err != nil {
		return ScheduleResult{}, err
	}
	return s.applyPlanned(ctx, jobNumber, core.PlanToggle(j, day), applog.OpToggle)
}

// ScheduleTestFit adds the test fit entry for date when the job allows a
// test fit and holds nothing on that day.
func (s *JobService) ScheduleTestFit(ctx context.Context, jobNumber, date string) (ScheduleResult, error) {
	day, err := core.ParseDate(date)
	if err != nil {
		return ScheduleResult{}, dateError(date, err)
	}
	j, err := s.findByNumber(ctx, jobNumber)
	if err != nil {
		return ScheduleResult{}, err
	}
	change, err := core.PlanTestFit(j, day)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("schedule test fit for %s on %s: %w", jobNumber, day, err)
	}
	return s.applyPlanned(ctx, jobNumber, change, applog.OpTestFit)
}

func (s *JobService) applyPlanned(ctx context.Context, jobNumber string, change core.ScheduleChange, op string) (ScheduleResult, error) {
	j, err := s.applyChange(ctx, jobNumber, change)
	if err != nil {
		return ScheduleResult{}, err
	}
	slog.DebugContext(ctx, "Schedule changed", applog.NewFields().
		WithComponent(applog.ComponentJobs).
		WithOperation(op).
		WithJob(j.ID, jobNumber).ToSlice()...)
	return ScheduleResult{Job: j, Op: change.Op.String(), Entry: change.Entry}, nil
}

func (s *JobService) applyChange(ctx context.Context, jobNumber string, c core.ScheduleChange) (core.Job, error) {
	var (
		j   core.Job
		err error
	)
	switch c.Op {
	case core.ScheduleAdd:
		j, err = s.store.AddToSchedule(ctx, jobNumber, c.Entry)
	case core.ScheduleRemove:
		j, err = s.store.RemoveFromSchedule(ctx, jobNumber, c.Entry)
	default:
		return core.Job{}, fmt.Errorf("unknown schedule op %d", c.Op)
	}
	if err != nil {
		return core.Job{}, fmt.Errorf("%s %q for job %s: %w", c.Op, c.Entry, jobNumber, err)
	}
	s.publishSync(ctx, j.ID)
	return j, nil
}

func (s *JobService) findByNumber(ctx context.Context, jobNumber string) (core.Job, error) {
	j, err := s.store.FindByJobNumber(ctx, jobNumber)
	if err != nil {
		return core.Job{}, fmt.Errorf("find job %s: %w", jobNumber, err)
	}
	return j, nil
}

// Day returns the calendar cell for day.
func (s *JobService) Day(ctx context.Context, day core.Date) (core.DaySummary, error) {
	list, err := s.ListJobs(ctx)
	if err != nil {
		return core.DaySummary{}, err
	}
	return core.SummarizeDay(list, day), nil
}

// Month returns the Monday-first month grid.
func (s *JobService) Month(ctx context.Context, year int, month time.Month) (core.MonthSummary, error) {
	list, err := s.ListJobs(ctx)
	if err != nil {
		return core.MonthSummary{}, err
	}
	return core.SummarizeMonth(list, year, month), nil
}

// StaleCutoff is the first day still considered current for a horizon of
// days. A negative horizon selects the configured default.
func (s *JobService) StaleCutoff(days int) core.Date {
	if days < 0 {
		days = s.staleAfter
	}
	return core.StaleCutoff(s.now(), days)
}

// StaleJobs lists jobs whose whole schedule lies before the cutoff.
func (s *JobService) StaleJobs(ctx context.Context, days int) ([]core.Job, error) {
	list, err := s.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.StaleCutoff(days)
	out := make([]core.Job, 0)
	for _, j := range list {
		if j.IsStale(cutoff) {
			out = append(out, j)
		}
	}
	return out, nil
}

// Cleanup deletes every stale job and reports each outcome.
func (s *JobService) Cleanup(ctx context.Context, days int) (BulkResult, error) {
	stale, err := s.StaleJobs(ctx, days)
	if err != nil {
		return BulkResult{}, err
	}
	ids := make([]string, 0, len(stale))
	for _, j := range stale {
		ids = append(ids, j.ID)
	}
	res := s.BulkDelete(ctx, ids)
	slog.InfoContext(ctx, "Stale jobs cleaned up", applog.NewFields().
		WithComponent(applog.ComponentJobs).
		WithOperation(applog.OpCleanup).
		With(applog.FieldCount, len(res.Deleted)).ToSlice()...)
	return res, ctx.Err()
}

// BulkDelete deletes ids one by one without rollback. It stops early only
// when ctx is done; the remaining ids are reported as failed.
func (s *JobService) BulkDelete(ctx context.Context, ids []string) BulkResult {
	res := BulkResult{Deleted: []string{}, Failed: []BulkFailure{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, BulkFailure{ID: id, Error: err.Error()})
			continue
		}
		if err := s.DeleteJob(ctx, id); err != nil {
			res.Failed = append(res.Failed, BulkFailure{ID: id, Error: failureReason(err)})
			continue
		}
		res.Deleted = append(res.Deleted, id)
	}
	return res
}

// Duplicates lists job numbers shared by more than one job.
func (s *JobService) Duplicates(ctx context.Context) ([]core.DuplicateGroup, error) {
	list, err := s.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	return core.FindDuplicates(list), nil
}

func (s *JobService) publishSync(ctx context.Context, id string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJobSync(ctx, id); err != nil {
		// the job is stored; the mirror catches up on the next reconcile
		slog.ErrorContext(ctx, "Failed to publish job sync message",
			applog.FieldComponent, applog.ComponentJobs, applog.FieldJobID, id, applog.FieldError, err)
	}
}

func (s *JobService) publishDelete(ctx context.Context, id, jobNumber string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJobDelete(ctx, id, jobNumber); err != nil {
		slog.ErrorContext(ctx, "Failed to publish job delete message",
			applog.FieldComponent, applog.ComponentJobs, applog.FieldJobID, id,
			applog.FieldJobNumber, jobNumber, applog.FieldError, err)
	}
}

func dateError(date string, err error) error {
	return core.NewValidationError(
		fmt.Errorf("invalid date %q: %w", date, err),
		core.FieldError{Field: "date", Error: fmt.Sprintf("date %q must be a day like 2006-01-02", date)},
	)
}

func failureReason(err error) string {
	if errors.Is(err, core.ErrNotFound) {
		return core.ErrNotFound.Error()
	}
	return err.Error()
}
