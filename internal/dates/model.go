package dates

import (
	"time"

	"keepsake/internal/media"
	"keepsake/internal/occurrence"
)

// ImportantDate is a calendar date the couple wants to remember, optionally
// repeating every year.
type ImportantDate struct {
	ID       uint64 `gorm:"primaryKey" json:"id"`
	CoupleID uint64 `gorm:"index;not null" json:"couple_id"`
	AuthorID uint64 `gorm:"not null" json:"author_id"`

	Title       string `gorm:"type:text;not null" json:"title"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`

	Date        occurrence.Date `gorm:"embedded;embeddedPrefix:date_" json:"date"`
	IsRecurring bool            `gorm:"not null;default:false" json:"is_recurring"`

	Photo *media.Attachment `gorm:"type:text;serializer:json" json:"photo,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (d ImportantDate) OccursOn() occurrence.Date { return d.Date }
func (d ImportantDate) Recurs() bool              { return d.IsRecurring }

func (d ImportantDate) photoSize() int64 {
	if d.Photo == nil {
		return 0
	}
	return d.Photo.SizeBytes
}
