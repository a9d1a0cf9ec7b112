package jobs

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TypeMediaPurge = "MEDIA_PURGE"

	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

type Job struct {
	ID       uint64 `gorm:"primaryKey"`
	CoupleID uint64 `gorm:"index;not null"`

	Type    string         `gorm:"type:text;not null"` // MEDIA_PURGE
	Payload datatypes.JSON `gorm:"not null"`

	RunAt  time.Time `gorm:"index;not null"`
	Status string    `gorm:"index;not null;default:'PENDING'"` // PENDING/RUNNING/DONE/FAILED

	Attempts    int `gorm:"not null;default:0"`
	MaxAttempts int `gorm:"not null;default:8"`

	LockedBy *string    `gorm:"type:text"`
	LockedAt *time.Time

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

type purgePayload struct {
	Keys []string `json:"keys"`
}
