package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"board/internal/core"
	"board/internal/jobs"

	_ "modernc.org/sqlite"
)

var _ jobs.Store = (*SQLiteRepository)(nil)

const jobColumns = `id, job_number, client, facility, job_value, pieces, required_by_date, color, test_fit, rush`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dsnFor(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// dsnFor enables foreign keys and a busy timeout on every pooled connection.
func dsnFor(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListJobs(ctx context.Context) ([]core.Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []core.Job
	index := map[string]int{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		index[j.ID] = len(out)
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	srows, err := r.db.QueryContext(ctx, `SELECT job_id, entry FROM job_schedule ORDER BY job_id, position`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var id, entry string
		if err := srows.Scan(&id, &entry); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		if i, ok := index[id]; ok {
			out[i].Schedule = append(out[i].Schedule, entry)
		}
	}
	if err := srows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}

	if out == nil {
		out = []core.Job{}
	}
	return out, nil
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (core.Job, error) {
	return getJob(ctx, r.db, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
}

func (r *SQLiteRepository) FindByJobNumber(ctx context.Context, jobNumber string) (core.Job, error) {
	return getJob(ctx, r.db, `SELECT `+jobColumns+` FROM jobs WHERE job_number = ? ORDER BY rowid LIMIT 1`, jobNumber)
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j core.Job) (core.Job, error) {
	j = j.Clone()
	j.ID = primitive.NewObjectID().Hex()

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, j.JobNumber, j.Client, string(j.Facility), j.JobValue, j.Pieces,
			j.RequiredByDate.String(), j.Color, string(j.TestFit), string(j.Rush))
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return insertSchedule(ctx, tx, j.ID, j.Schedule)
	})
	if err != nil {
		return core.Job{}, err
	}

	slog.DebugContext(ctx, "Job saved to SQLite", "id", j.ID, "job_number", j.JobNumber)
	return j, nil
}

func (r *SQLiteRepository) UpdateJob(ctx context.Context, id string, p core.JobPatch) (core.Job, error) {
	var updated core.Job
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getJob(ctx, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
		if err != nil {
			return err
		}
		updated = p.Apply(current)

		_, err = tx.ExecContext(ctx, `UPDATE jobs SET
			job_number = ?, client = ?, facility = ?, job_value = ?, pieces = ?,
			required_by_date = ?, color = ?, test_fit = ?, rush = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			updated.JobNumber, updated.Client, string(updated.Facility), updated.JobValue, updated.Pieces,
			updated.RequiredByDate.String(), updated.Color, string(updated.TestFit), string(updated.Rush), id)
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}

		if p.Schedule != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM job_schedule WHERE job_id = ?`, id); err != nil {
				return fmt.Errorf("clear schedule: %w", err)
			}
			if err := insertSchedule(ctx, tx, id, updated.Schedule); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.Job{}, err
	}
	return updated, nil
}

func (r *SQLiteRepository) DeleteJob(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_schedule WHERE job_id = ?`, id); err != nil {
			return fmt.Errorf("delete schedule: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return core.ErrNotFound
		}
		return nil
	})
}

func (r *SQLiteRepository) AddToSchedule(ctx context.Context, jobNumber, entry string) (core.Job, error) {
	return r.changeSchedule(ctx, jobNumber, func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO job_schedule (job_id, entry, position)
			SELECT ?, ?, COALESCE(MAX(position), 0) + 1 FROM job_schedule WHERE job_id = ?`,
			id, entry, id)
		if err != nil {
			return fmt.Errorf("add schedule entry: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) RemoveFromSchedule(ctx context.Context, jobNumber, entry string) (core.Job, error) {
	return r.changeSchedule(ctx, jobNumber, func(tx *sql.Tx, id string) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_schedule WHERE job_id = ? AND entry = ?`, id, entry); err != nil {
			return fmt.Errorf("remove schedule entry: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) changeSchedule(ctx context.Context, jobNumber string, change func(*sql.Tx, string) error) (core.Job, error) {
	var id string
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT id FROM jobs WHERE job_number = ? ORDER BY rowid LIMIT 1`, jobNumber).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("find job %s: %w", jobNumber, err)
		}
		if err := change(tx, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE jobs SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return core.Job{}, err
	}
	return r.GetJob(ctx, id)
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func getJob(ctx context.Context, q querier, query string, arg any) (core.Job, error) {
	j, err := scanJob(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Job{}, core.ErrNotFound
	}
	if err != nil {
		return core.Job{}, err
	}
	j.Schedule, err = loadSchedule(ctx, q, j.ID)
	if err != nil {
		return core.Job{}, err
	}
	return j, nil
}

func loadSchedule(ctx context.Context, q querier, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT entry FROM job_schedule WHERE job_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertSchedule(ctx context.Context, tx *sql.Tx, id string, entries []string) error {
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO job_schedule (job_id, entry, position) VALUES (?, ?, ?)`, id, e, i+1); err != nil {
			return fmt.Errorf("insert schedule entry: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (core.Job, error) {
	var (
		j                  core.Job
		facility, required string
		testFit, rush      string
	)
	err := row.Scan(&j.ID, &j.JobNumber, &j.Client, &facility, &j.JobValue, &j.Pieces,
		&required, &j.Color, &testFit, &rush)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Job{}, err
		}
		return core.Job{}, fmt.Errorf("scan job: %w", err)
	}
	j.Facility = core.Facility(facility)
	j.TestFit = core.Flag(testFit)
	j.Rush = core.Flag(rush)
	if required != "" {
		if d, err := core.ParseDate(required); err == nil {
			j.RequiredByDate = d
		}
	}
	j.Schedule = []string{}
	return j, nil
}
