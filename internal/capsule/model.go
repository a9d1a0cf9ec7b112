package capsule

import (
	"time"

	"keepsake/internal/media"
)

const MaxPhotos = 5

// TimeCapsule withholds its content until UnlockAt. After it has been
// opened it only ever grows reflections.
type TimeCapsule struct {
	ID       uint64 `gorm:"primaryKey" json:"id"`
	CoupleID uint64 `gorm:"index;not null" json:"couple_id"`
	AuthorID uint64 `gorm:"index;not null" json:"author_id"`

	Title   string `gorm:"type:text;not null" json:"title"`
	Content string `gorm:"type:text;not null;default:''" json:"content"`

	UnlockAt time.Time  `gorm:"index;not null" json:"unlock_at"`
	IsOpened bool       `gorm:"not null;default:false" json:"is_opened"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`

	Photos []media.Attachment `gorm:"type:text;serializer:json" json:"photos"`
	Video  *media.Attachment  `gorm:"type:text;serializer:json" json:"video,omitempty"`

	Reflections []Reflection `gorm:"foreignKey:CapsuleID" json:"reflections"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// Reflection is append-only commentary on an opened capsule.
type Reflection struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	CapsuleID uint64    `gorm:"index;not null" json:"capsule_id"`
	AuthorID  uint64    `gorm:"not null" json:"author_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// Attachments lists every blob the capsule holds.
func (c TimeCapsule) Attachments() []media.Attachment {
	out := make([]media.Attachment, 0, len(c.Photos)+1)
	out = append(out, c.Photos...)
	if c.Video != nil {
		out = append(out, *c.Video)
	}
	return out
}

// SizeBytes is what the capsule is charged against the couple's quota.
func (c TimeCapsule) SizeBytes() int64 {
	return media.TotalSize(c.Attachments()...)
}

// Sealed hides everything a locked capsule must not expose.
func (c TimeCapsule) Sealed() TimeCapsule {
	c.Content = ""
	c.Photos = nil
	c.Video = nil
	c.Reflections = nil
	return c
}
