package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"keepsake/internal/storage"
)

// Queue is the slice of Repo the worker drives.
type Queue interface {
	Claim(workerID string) (*Job, error)
	MarkDone(id uint64) error
	MarkFailed(id uint64, errMsg string) error
	RetryLater(id uint64, attempts int, runAt time.Time, errMsg string) error
}

// Worker drains blob purge jobs. It never touches content rows, so it cannot
// change quota or capsule state.
type Worker struct {
	ID       string
	Queue    Queue
	Store    storage.Store
	Interval time.Duration
	Now      func() time.Time
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("worker started", "worker_id", w.ID, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", "worker_id", w.ID)
			return
		case <-ticker.C:
			job, err := w.Queue.Claim(w.ID)
			if err != nil {
				slog.Error("worker claim error", "worker_id", w.ID, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.handle(ctx, job)
		}
	}
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	switch job.Type {
	case TypeMediaPurge:
		w.handlePurge(ctx, job)
	default:
		_ = w.Queue.MarkFailed(job.ID, "unknown job type")
	}
}

func (w *Worker) handlePurge(ctx context.Context, job *Job) {
	var p purgePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		_ = w.Queue.MarkFailed(job.ID, "bad payload")
		return
	}

	for _, key := range p.Keys {
		if !storage.OwnedBy(key, job.CoupleID) {
			slog.Warn("skipping foreign key in purge job", "job_id", job.ID, "key", key)
			continue
		}
		if err := w.Store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			slog.Error("purge failed", "job_id", job.ID, "key", key, "error", err)
			w.retry(job, err.Error())
			return
		}
	}

	slog.Info("media purged", "job_id", job.ID, "couple_id", job.CoupleID, "keys", len(p.Keys))
	_ = w.Queue.MarkDone(job.ID)
}

func (w *Worker) retry(job *Job, errMsg string) {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		_ = w.Queue.MarkFailed(job.ID, errMsg)
		return
	}

	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	next := w.now().Add(time.Duration(sec) * time.Second)

	_ = w.Queue.RetryLater(job.ID, attempts, next, errMsg)
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
