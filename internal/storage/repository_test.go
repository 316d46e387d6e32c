package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"board/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteCreateGetList(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	in := core.Job{
		JobNumber:      "J-1",
		Client:         "Acme",
		Facility:       core.Steel,
		JobValue:       1200.5,
		Pieces:         4,
		RequiredByDate: core.NewDate(2024, 7, 4),
		Color:          "Black",
		TestFit:        core.FlagYes,
		Rush:           core.FlagNo,
		Schedule:       []string{"2024-07-02", "2024-07-01 (Test Fit)"},
	}
	created, err := repo.CreateJob(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created.ID) != 24 {
		t.Fatalf("unexpected id %q", created.ID)
	}

	got, err := repo.GetJob(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.JobNumber != "J-1" || got.Facility != core.Steel || got.JobValue != 1200.5 ||
		got.RequiredByDate.String() != "2024-07-04" || !got.TestFit.Yes() {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Schedule) != 2 || got.Schedule[0] != "2024-07-02" || got.Schedule[1] != "2024-07-01 (Test Fit)" {
		t.Fatalf("schedule order lost: %v", got.Schedule)
	}

	if _, err := repo.CreateJob(ctx, core.Job{JobNumber: "J-2"}); err != nil {
		t.Fatalf("create second: %v", err)
	}
	list, err := repo.ListJobs(ctx)
	if err != nil || len(list) != 2 || list[0].ID != created.ID || list[1].Schedule == nil {
		t.Fatalf("list: %+v err=%v", list, err)
	}

	if _, err := repo.GetJob(ctx, "000000000000000000000000"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteScheduleSetUnion(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	first, _ := repo.CreateJob(ctx, core.Job{JobNumber: "DUP"})
	second, _ := repo.CreateJob(ctx, core.Job{JobNumber: "DUP"})

	for i := 0; i < 2; i++ {
		j, err := repo.AddToSchedule(ctx, "DUP", "2024-07-01")
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if j.ID != first.ID || len(j.Schedule) != 1 {
			t.Fatalf("add #%d: %+v", i, j)
		}
	}
	j, _ := repo.AddToSchedule(ctx, "DUP", "2024-07-01 (Test Fit)")
	if len(j.Schedule) != 2 || j.Schedule[1] != "2024-07-01 (Test Fit)" {
		t.Fatalf("test fit should be a distinct entry: %v", j.Schedule)
	}

	other, _ := repo.GetJob(ctx, second.ID)
	if len(other.Schedule) != 0 {
		t.Fatalf("second duplicate touched: %v", other.Schedule)
	}

	j, err := repo.RemoveFromSchedule(ctx, "DUP", "2024-07-01")
	if err != nil || len(j.Schedule) != 1 || j.Schedule[0] != "2024-07-01 (Test Fit)" {
		t.Fatalf("remove: %v err=%v", j.Schedule, err)
	}

	if _, err := repo.AddToSchedule(ctx, "missing", "2024-07-01"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	j, _ := repo.CreateJob(ctx, core.Job{JobNumber: "U", Client: "Acme", Schedule: []string{"2024-07-01"}})

	client := "Globex"
	sched := []string{"2024-08-01", "2024-08-02"}
	updated, err := repo.UpdateJob(ctx, j.ID, core.JobPatch{Client: &client, Schedule: &sched})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := repo.GetJob(ctx, j.ID)
	if got.Client != "Globex" || len(got.Schedule) != 2 || got.Schedule[0] != "2024-08-01" {
		t.Fatalf("persisted update mismatch: %+v", got)
	}
	if updated.Client != got.Client {
		t.Fatalf("returned job differs from stored: %+v vs %+v", updated, got)
	}

	if _, err := repo.UpdateJob(ctx, "nope", core.JobPatch{Client: &client}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteJob(ctx, j.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		repo.Close()
	}
}
