package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"board/internal/core"
	"board/internal/jobs"
)

var _ jobs.Store = (*Store)(nil)

// Store keeps jobs in insertion order. Ids are ObjectID hex strings so they
// look the same as in the mongo backend.
type Store struct {
	mu    sync.Mutex
	items []core.Job
}

func New(seed ...core.Job) *Store {
	s := &Store{}
	for _, j := range seed {
		j = j.Clone()
		if j.ID == "" {
			j.ID = primitive.NewObjectID().Hex()
		}
		s.items = append(s.items, j)
	}
	return s
}

// NewFromFile seeds the store from a JSON array of jobs. A missing file
// gives an empty store.
func NewFromFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed []core.Job
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	for i := range seed {
		seed[i].Normalize()
	}
	return New(seed...), nil
}

func (s *Store) ListJobs(_ context.Context) ([]core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Job, 0, len(s.items))
	for _, j := range s.items {
		out = append(out, j.Clone())
	}
	return out, nil
}

func (s *Store) GetJob(_ context.Context, id string) (core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexByID(id)
	if i < 0 {
		return core.Job{}, core.ErrNotFound
	}
	return s.items[i].Clone(), nil
}

func (s *Store) FindByJobNumber(_ context.Context, jobNumber string) (core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexByNumber(jobNumber)
	if i < 0 {
		return core.Job{}, core.ErrNotFound
	}
	return s.items[i].Clone(), nil
}

func (s *Store) CreateJob(_ context.Context, j core.Job) (core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j = j.Clone()
	j.ID = primitive.NewObjectID().Hex()
	s.items = append(s.items, j)
	return j.Clone(), nil
}

func (s *Store) UpdateJob(_ context.Context, id string, p core.JobPatch) (core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexByID(id)
	if i < 0 {
		return core.Job{}, core.ErrNotFound
	}
	s.items[i] = p.Apply(s.items[i])
	return s.items[i].Clone(), nil
}

func (s *Store) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexByID(id)
	if i < 0 {
		return core.ErrNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *Store) AddToSchedule(_ context.Context, jobNumber, entry string) (core.Job, error) {
	return s.changeSchedule(jobNumber, core.ScheduleChange{Op: core.ScheduleAdd, Entry: entry})
}

func (s *Store) RemoveFromSchedule(_ context.Context, jobNumber, entry string) (core.Job, error) {
	return s.changeSchedule(jobNumber, core.ScheduleChange{Op: core.ScheduleRemove, Entry: entry})
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) changeSchedule(jobNumber string, c core.ScheduleChange) (core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexByNumber(jobNumber)
	if i < 0 {
		return core.Job{}, core.ErrNotFound
	}
	s.items[i].Schedule = c.Apply(s.items[i].Schedule)
	return s.items[i].Clone(), nil
}

func (s *Store) indexByID(id string) int {
	for i, j := range s.items {
		if j.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByNumber(jobNumber string) int {
	for i, j := range s.items {
		if j.JobNumber == jobNumber {
			return i
		}
	}
	return -1
}
