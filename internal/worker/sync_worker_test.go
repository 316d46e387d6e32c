package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"board/internal/amqp"
	"board/internal/core"
	"board/internal/storage/memory"
)

type fakeMirror struct {
	mu       sync.Mutex
	upserted []string
	deleted  []string
	replaced [][]core.Job
	err      error
}

func (m *fakeMirror) UpsertJob(_ context.Context, j core.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, j.JobNumber)
	return m.err
}

func (m *fakeMirror) DeleteJob(_ context.Context, id, jobNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id+"/"+jobNumber)
	return m.err
}

func (m *fakeMirror) ReplaceAll(_ context.Context, list []core.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced = append(m.replaced, list)
	return m.err
}

func (m *fakeMirror) replaceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replaced)
}

func seededStore(t *testing.T) (*memory.Store, core.Job) {
	t.Helper()
	store := memory.New()
	j, err := store.CreateJob(context.Background(), core.Job{JobNumber: "J-100", Client: "Acme"})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	return store, j
}

func TestMirrorWorker_HandleSync(t *testing.T) {
	store, j := seededStore(t)
	mirror := &fakeMirror{}
	w := NewMirrorWorker(store, mirror)

	if err := w.HandleSync(context.Background(), amqp.NewJobSyncMessage(j.ID)); err != nil {
		t.Fatalf("HandleSync() error = %v", err)
	}
	if len(mirror.upserted) != 1 || mirror.upserted[0] != "J-100" {
		t.Errorf("upserted = %v", mirror.upserted)
	}

	t.Run("missing job is acknowledged", func(t *testing.T) {
		if err := w.HandleSync(context.Background(), amqp.NewJobSyncMessage("gone")); err != nil {
			t.Errorf("HandleSync() error = %v, want nil", err)
		}
		if len(mirror.upserted) != 1 {
			t.Errorf("mirror should not be touched, upserted = %v", mirror.upserted)
		}
	})

	t.Run("mirror failure is returned", func(t *testing.T) {
		failing := &fakeMirror{err: errors.New("quota exceeded")}
		err := NewMirrorWorker(store, failing).HandleSync(context.Background(), amqp.NewJobSyncMessage(j.ID))
		if err == nil {
			t.Error("expected error so the message is requeued")
		}
	})
}

func TestMirrorWorker_HandleDelete(t *testing.T) {
	mirror := &fakeMirror{}
	w := NewMirrorWorker(memory.New(), mirror)

	if err := w.HandleDelete(context.Background(), amqp.NewJobDeleteMessage("a1", "J-9")); err != nil {
		t.Fatalf("HandleDelete() error = %v", err)
	}
	if err := w.HandleDelete(context.Background(), amqp.NewJobDeleteMessage("a2", "")); err != nil {
		t.Fatalf("HandleDelete() without job number error = %v", err)
	}
	if err := w.HandleDelete(context.Background(), amqp.NewJobDeleteMessage("", "")); err != nil {
		t.Fatalf("HandleDelete() without a job error = %v", err)
	}
	if len(mirror.deleted) != 2 || mirror.deleted[0] != "a1/J-9" || mirror.deleted[1] != "a2/" {
		t.Errorf("deleted = %v", mirror.deleted)
	}
}

func TestMirrorWorker_Reconcile(t *testing.T) {
	store, _ := seededStore(t)
	mirror := &fakeMirror{}

	if err := NewMirrorWorker(store, mirror).Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(mirror.replaced) != 1 || len(mirror.replaced[0]) != 1 {
		t.Fatalf("replaced = %v", mirror.replaced)
	}
}

func TestMirrorWorker_RunReconciler(t *testing.T) {
	store, _ := seededStore(t)
	mirror := &fakeMirror{}
	w := NewMirrorWorker(store, mirror)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunReconciler(ctx, 10*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for mirror.replaceCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("RunReconciler() error = %v, want context.Canceled", err)
	}
	if mirror.replaceCount() < 2 {
		t.Errorf("expected startup and periodic reconcile, got %d", mirror.replaceCount())
	}
}

func TestMirrorWorker_RunReconcilerWithoutInterval(t *testing.T) {
	store, _ := seededStore(t)
	mirror := &fakeMirror{}
	w := NewMirrorWorker(store, mirror)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunReconciler(ctx, 0) }()

	deadline := time.Now().Add(2 * time.Second)
	for mirror.replaceCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("RunReconciler() error = %v, want context.Canceled", err)
	}
	if got := mirror.replaceCount(); got != 1 {
		t.Errorf("replace count = %d, want the startup reconcile only", got)
	}
}
