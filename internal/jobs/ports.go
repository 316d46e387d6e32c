package jobs

import (
	"context"

	"board/internal/core"
)

// Ports for outbound adapters.
type (
	JobLister interface {
		ListJobs(ctx context.Context) ([]core.Job, error)
	}

	// JobReader looks up single jobs. FindByJobNumber returns the first job
	// stored with that number when several share it.
	JobReader interface {
		GetJob(ctx context.Context, id string) (core.Job, error)
		FindByJobNumber(ctx context.Context, jobNumber string) (core.Job, error)
	}

	JobWriter interface {
		CreateJob(ctx context.Context, j core.Job) (core.Job, error)
		UpdateJob(ctx context.Context, id string, p core.JobPatch) (core.Job, error)
		DeleteJob(ctx context.Context, id string) error
	}

	// ScheduleWriter applies set-union and removal to the schedule of the job
	// addressed by job number, and returns the job as stored afterwards.
	ScheduleWriter interface {
		AddToSchedule(ctx context.Context, jobNumber, entry string) (core.Job, error)
		RemoveFromSchedule(ctx context.Context, jobNumber, entry string) (core.Job, error)
	}

	// Store is everything a job backend provides.
	Store interface {
		JobLister
		JobReader
		JobWriter
		ScheduleWriter
		Ping(ctx context.Context) error
	}

	// EventPublisher announces job changes to the board mirror.
	EventPublisher interface {
		PublishJobSync(ctx context.Context, id string) error
		PublishJobDelete(ctx context.Context, id, jobNumber string) error
	}

	// BoardMirror keeps an external copy of the board, one row per job.
	BoardMirror interface {
		UpsertJob(ctx context.Context, j core.Job) error
		DeleteJob(ctx context.Context, id, jobNumber string) error
		ReplaceAll(ctx context.Context, jobs []core.Job) error
	}
)
