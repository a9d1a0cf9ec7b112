package jobs

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	DB *gorm.DB
}

// EnqueuePurge schedules deletion of blobs whose owning rows are gone or
// replaced. Call it with the transaction that drops the references so the
// job exists iff the references are gone.
func EnqueuePurge(tx *gorm.DB, coupleID uint64, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	payload, err := json.Marshal(purgePayload{Keys: keys})
	if err != nil {
		return err
	}
	j := Job{
		CoupleID:    coupleID,
		Type:        TypeMediaPurge,
		Payload:     datatypes.JSON(payload),
		RunAt:       time.Now(),
		Status:      StatusPending,
		MaxAttempts: 8,
	}
	return tx.Create(&j).Error
}

const stuckAfter = 5 * time.Minute

// Claim marks the oldest due PENDING job RUNNING for workerID and returns it,
// or nil when nothing is due. RUNNING jobs locked longer than stuckAfter are
// requeued first. On Postgres concurrent workers never claim the same row
// (FOR UPDATE SKIP LOCKED); other dialects rely on a single writer.
func (r *Repo) Claim(workerID string) (*Job, error) {
	now := time.Now()
	var job Job
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Job{}).
			Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", StatusRunning, now.Add(-stuckAfter)).
			Updates(map[string]any{
				"status":     StatusPending,
				"locked_by":  nil,
				"locked_at":  nil,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		q := tx.Where("status = ? AND run_at <= ?", StatusPending, now).Order("run_at asc")
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Limit(1).Find(&job).Error; err != nil {
			return err
		}
		if job.ID == 0 {
			return nil
		}

		job.Status = StatusRunning
		job.LockedBy = &workerID
		job.LockedAt = &now
		return tx.Model(&Job{}).Where("id = ? AND status = ?", job.ID, StatusPending).Updates(map[string]any{
			"status":     StatusRunning,
			"locked_by":  workerID,
			"locked_at":  now,
			"updated_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *Repo) MarkDone(id uint64) error {
	return r.DB.Model(&Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":     StatusDone,
		"updated_at": time.Now(),
	}).Error
}

func (r *Repo) MarkFailed(id uint64, errMsg string) error {
	return r.DB.Model(&Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":     StatusFailed,
		"last_error": errMsg,
		"updated_at": time.Now(),
	}).Error
}

func (r *Repo) RetryLater(id uint64, attempts int, runAt time.Time, errMsg string) error {
	return r.DB.Model(&Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":     StatusPending,
		"attempts":   attempts,
		"run_at":     runAt,
		"locked_by":  nil,
		"locked_at":  nil,
		"last_error": errMsg,
		"updated_at": time.Now(),
	}).Error
}
