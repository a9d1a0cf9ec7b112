package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"keepsake/internal/db/dbtest"
	"keepsake/internal/storage"
)

// Test helpers

type fakeQueue struct {
	done    []uint64
	failed  map[uint64]string
	retried map[uint64]time.Time
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failed: map[uint64]string{}, retried: map[uint64]time.Time{}}
}

func (q *fakeQueue) Claim(string) (*Job, error) { return nil, nil }
func (q *fakeQueue) MarkDone(id uint64) error  { q.done = append(q.done, id); return nil }
func (q *fakeQueue) MarkFailed(id uint64, msg string) error {
	q.failed[id] = msg
	return nil
}
func (q *fakeQueue) RetryLater(id uint64, attempts int, runAt time.Time, msg string) error {
	q.retried[id] = runAt
	return nil
}

type brokenStore struct{ storage.Store }

func (brokenStore) Delete(context.Context, string) error { return errors.New("backend down") }

func purgeJob(t *testing.T, id, coupleID uint64, keys ...string) *Job {
	t.Helper()
	b, err := json.Marshal(purgePayload{Keys: keys})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &Job{ID: id, CoupleID: coupleID, Type: TypeMediaPurge, Payload: b, MaxAttempts: 8}
}

// Tests

func TestWorkerPurge(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes owned blobs and marks done", func(t *testing.T) {
		store := storage.NewFileSystemStore(t.TempDir())
		key := storage.NewKey(5)
		store.Put(ctx, key, strings.NewReader("photo"))
		foreign := storage.NewKey(6)
		store.Put(ctx, foreign, strings.NewReader("other couple"))

		q := newFakeQueue()
		w := &Worker{ID: "w", Queue: q, Store: store}
		w.handle(ctx, purgeJob(t, 1, 5, key, foreign))

		if len(q.done) != 1 || q.done[0] != 1 {
			t.Fatalf("expected job 1 done, got %v", q.done)
		}
		if _, err := store.Open(ctx, key); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected purged blob to be gone, got %v", err)
		}
		rc, err := store.Open(ctx, foreign)
		if err != nil {
			t.Fatalf("foreign blob must survive: %v", err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		if string(b) != "other couple" {
			t.Errorf("foreign blob altered: %q", b)
		}
	})

	t.Run("backend failure schedules retry with backoff", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		q := newFakeQueue()
		w := &Worker{ID: "w", Queue: q, Store: brokenStore{}, Now: func() time.Time { return now }}

		job := purgeJob(t, 2, 5, storage.NewKey(5))
		job.Attempts = 2
		w.handle(ctx, job)

		runAt, ok := q.retried[2]
		if !ok {
			t.Fatal("expected retry")
		}
		if want := now.Add(8 * time.Second); !runAt.Equal(want) {
			t.Errorf("runAt = %v, want %v", runAt, want)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		q := newFakeQueue()
		w := &Worker{ID: "w", Queue: q, Store: brokenStore{}}

		job := purgeJob(t, 3, 5, storage.NewKey(5))
		job.Attempts = 7
		w.handle(ctx, job)

		if _, ok := q.failed[3]; !ok {
			t.Error("expected job to be marked failed")
		}
	})

	t.Run("bad payload and unknown type fail", func(t *testing.T) {
		q := newFakeQueue()
		w := &Worker{ID: "w", Queue: q, Store: brokenStore{}}

		w.handle(ctx, &Job{ID: 4, Type: TypeMediaPurge, Payload: []byte("not json")})
		w.handle(ctx, &Job{ID: 5, Type: "REMINDER_DISPATCH", Payload: []byte("{}")})

		if q.failed[4] != "bad payload" || q.failed[5] != "unknown job type" {
			t.Errorf("unexpected failures: %v", q.failed)
		}
	})
}

func TestEnqueuePurge(t *testing.T) {
	gdb := dbtest.Open(t, &Job{})

	if err := EnqueuePurge(gdb, 9, nil); err != nil {
		t.Fatalf("empty enqueue: %v", err)
	}
	if err := EnqueuePurge(gdb, 9, []string{"9/a", "9/b"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var rows []Job
	if err := gdb.Find(&rows).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 job, got %d", len(rows))
	}
	j := rows[0]
	if j.Type != TypeMediaPurge || j.Status != StatusPending || j.CoupleID != 9 {
		t.Errorf("unexpected job: %+v", j)
	}

	var p purgePayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(p.Keys) != 2 || p.Keys[0] != "9/a" {
		t.Errorf("unexpected keys: %v", p.Keys)
	}
}

func TestRepoLifecycle(t *testing.T) {
	gdb := dbtest.Open(t, &Job{})
	repo := &Repo{DB: gdb}

	if j, err := repo.Claim("w1"); err != nil || j != nil {
		t.Fatalf("empty queue: %v, %v", j, err)
	}

	if err := EnqueuePurge(gdb, 3, []string{"3/a"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	j, err := repo.Claim("w1")
	if err != nil || j == nil {
		t.Fatalf("Claim: %v, %v", j, err)
	}
	if j.Status != StatusRunning || j.LockedBy == nil || *j.LockedBy != "w1" {
		t.Errorf("claimed job = %+v", j)
	}
	if again, _ := repo.Claim("w2"); again != nil {
		t.Errorf("running job claimed twice: %+v", again)
	}

	if err := repo.RetryLater(j.ID, 1, time.Now().Add(time.Hour), "backend down"); err != nil {
		t.Fatalf("RetryLater: %v", err)
	}
	if early, _ := repo.Claim("w2"); early != nil {
		t.Errorf("job claimed before run_at: %+v", early)
	}

	if err := repo.MarkDone(j.ID); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	var got Job
	gdb.First(&got, j.ID)
	if got.Status != StatusDone || got.Attempts != 1 || got.LastError == nil || *got.LastError != "backend down" {
		t.Errorf("stored job = %+v", got)
	}
}

func TestRepoRequeuesStuckJobs(t *testing.T) {
	gdb := dbtest.Open(t, &Job{})
	repo := &Repo{DB: gdb}

	lockedAt := time.Now().Add(-time.Hour)
	owner := "dead-worker"
	stuck := Job{
		CoupleID: 1, Type: TypeMediaPurge, Payload: []byte(`{"keys":[]}`),
		RunAt: lockedAt, Status: StatusRunning, MaxAttempts: 8,
		LockedBy: &owner, LockedAt: &lockedAt,
	}
	if err := gdb.Create(&stuck).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	j, err := repo.Claim("w1")
	if err != nil || j == nil || j.ID != stuck.ID || *j.LockedBy != "w1" {
		t.Fatalf("Claim = %+v, %v", j, err)
	}
}
