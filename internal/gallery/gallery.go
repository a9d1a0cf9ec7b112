// Package gallery keeps the couple's shared photo wall.
package gallery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"keepsake/internal/couple"
	"keepsake/internal/jobs"
	"keepsake/internal/media"
)

var (
	ErrNotFound     = errors.New("photo not found")
	ErrNoPhotos     = errors.New("no photos given")
	ErrInvalidMedia = errors.New("gallery only accepts images")
)

type Photo struct {
	ID       uint64           `gorm:"primaryKey" json:"id"`
	CoupleID uint64           `gorm:"index;not null" json:"couple_id"`
	AuthorID uint64           `gorm:"not null" json:"author_id"`
	Caption  string           `gorm:"type:text;not null;default:''" json:"caption"`
	Media    media.Attachment `gorm:"embedded;embeddedPrefix:media_" json:"media"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (Photo) TableName() string { return "gallery_photos" }

type NewPhoto struct {
	Caption string
	Media   media.Attachment
}

type Service struct {
	DB     *gorm.DB
	Ledger *couple.Ledger
}

// Add stores a batch of photos. The whole batch is charged as one delta, so
// either every photo is kept or none is.
func (s *Service) Add(ctx context.Context, coupleID, authorID uint64, photos []NewPhoto) ([]Photo, error) {
	if len(photos) == 0 {
		return nil, ErrNoPhotos
	}
	rows := make([]Photo, len(photos))
	var total int64
	for i, p := range photos {
		if p.Media.Kind != media.KindPhoto || p.Media.Validate() != nil {
			return nil, ErrInvalidMedia
		}
		total += p.Media.SizeBytes
		rows[i] = Photo{
			CoupleID: coupleID,
			AuthorID: authorID,
			Caption:  strings.TrimSpace(p.Caption),
			Media:    p.Media,
		}
	}

	err := s.Ledger.Transact(ctx, func(tx *gorm.DB) error {
		for i := range rows {
			rows[i].ID = 0
		}
		if _, err := s.Ledger.Charge(tx, coupleID, total); err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	slog.Info("gallery photos added", "couple_id", coupleID, "count", len(rows), "bytes", total)
	return rows, nil
}

// Delete removes a photo, frees its bytes and queues its blob for purge.
func (s *Service) Delete(ctx context.Context, coupleID, id uint64) error {
	return s.Ledger.Transact(ctx, func(tx *gorm.DB) error {
		var p Photo
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND couple_id = ?", id, coupleID).
			First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if _, err := s.Ledger.Charge(tx, coupleID, -p.Media.SizeBytes); err != nil {
			return err
		}
		if err := tx.Delete(&Photo{}, p.ID).Error; err != nil {
			return err
		}
		return jobs.EnqueuePurge(tx, coupleID, media.Keys(p.Media))
	})
}

// List returns the couple's photos, newest first.
func (s *Service) List(ctx context.Context, coupleID uint64, limit, offset int) ([]Photo, error) {
	q := s.DB.WithContext(ctx).
		Where("couple_id = ?", coupleID).
		Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	var out []Photo
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
