package memory

import (
	"time"

	"gorm.io/datatypes"

	"keepsake/internal/media"
)

const (
	EventCreated      = "CREATED"
	EventUpdated      = "UPDATED"
	EventArchived     = "ARCHIVED"
	EventRestored     = "RESTORED"
	EventPhotosAdded  = "PHOTOS_ADDED"
	EventPhotoRemoved = "PHOTO_REMOVED"
)

const MaxPhotos = 10

// Memory is a container. Its state is derived from events and kept in the
// projection.
type Memory struct {
	ID        uint64    `gorm:"primaryKey"`
	CoupleID  uint64    `gorm:"index;not null"`
	AuthorID  uint64    `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// Event is append-only. IdempotencyKey deduplicates retries per author.
type Event struct {
	ID             uint64         `gorm:"primaryKey" json:"id"`
	MemoryID       uint64         `gorm:"index;not null" json:"memory_id"`
	CoupleID       uint64         `gorm:"index;not null" json:"couple_id"`
	AuthorID       uint64         `gorm:"not null;uniqueIndex:idx_memory_event_idem" json:"author_id"`
	Type           string         `gorm:"not null" json:"type"`
	Payload        datatypes.JSON `gorm:"not null" json:"payload"`
	IdempotencyKey *string        `gorm:"uniqueIndex:idx_memory_event_idem" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (Event) TableName() string { return "memory_events" }

// Projection is the current state for fast reads.
type Projection struct {
	MemoryID uint64 `gorm:"primaryKey" json:"memory_id"`
	CoupleID uint64 `gorm:"index;not null" json:"couple_id"`
	AuthorID uint64 `gorm:"not null" json:"author_id"`

	Title    string `gorm:"type:text;not null;default:''" json:"title"`
	Content  string `gorm:"type:text;not null;default:''" json:"content"`
	Archived bool   `gorm:"not null;default:false" json:"archived"`
	Tags     Tags   `gorm:"not null" json:"tags"`

	Photos []media.Attachment `gorm:"type:text;serializer:json" json:"photos"`

	Version   uint64    `gorm:"not null;default:0" json:"version"`
	UpdatedAt time.Time `gorm:"index;not null" json:"updated_at"`
}

func (Projection) TableName() string { return "memory_projections" }

// Tagging indexes a projection's hashtags for filtering and the tag cloud.
type Tagging struct {
	MemoryID uint64 `gorm:"primaryKey"`
	Tag      string `gorm:"primaryKey"`
	CoupleID uint64 `gorm:"index;not null"`
}

func (Tagging) TableName() string { return "memory_tags" }

func (p Projection) photoSize() int64 {
	return media.TotalSize(p.Photos...)
}
