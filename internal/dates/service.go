package dates

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
	"keepsake/internal/occurrence"
)

var (
	ErrNotFound      = errors.New("important date not found")
	ErrTitleRequired = errors.New("title required")
	ErrInvalidMedia  = errors.New("important date photo must be an image")
)

type Service struct {
	DB     *gorm.DB
	Ledger *couple.Ledger
	Now    func() time.Time
}

type CreateInput struct {
	Title       string
	Description string
	Date        occurrence.Date
	IsRecurring bool
	Photo       *media.Attachment
}

// UpdateInput changes only the fields that are set. Photo replaces the
// current photo; RemovePhoto drops it.
type UpdateInput struct {
	Title       *string
	Description *string
	Date        *occurrence.Date
	IsRecurring *bool
	Photo       *media.Attachment
	RemovePhoto bool
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func validPhoto(p *media.Attachment) error {
	if p == nil {
		return nil
	}
	if p.Kind != media.KindPhoto || p.Validate() != nil {
		return ErrInvalidMedia
	}
	return nil
}

func (s *Service) Create(ctx context.Context, coupleID, authorID uint64, in CreateInput) (ImportantDate, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return ImportantDate{}, ErrTitleRequired
	}
	if err := in.Date.Validate(); err != nil {
		return ImportantDate{}, err
	}
	if err := validPhoto(in.Photo); err != nil {
		return ImportantDate{}, err
	}

	d := ImportantDate{
		CoupleID:    coupleID,
		AuthorID:    authorID,
		Title:       title,
		Description: in.Description,
		Date:        in.Date,
		IsRecurring: in.IsRecurring,
		Photo:       in.Photo,
	}
	err := s.Ledger.Transact(ctx, func(tx *gorm.DB) error {
		d.ID = 0
		if _, err := s.Ledger.Charge(tx, coupleID, d.photoSize()); err != nil {
			return err
		}
		return tx.Create(&d).Error
	})
	if err != nil {
		return ImportantDate{}, err
	}
	return d, nil
}

// Update applies in to the date. A photo change is charged as the net
// difference between the new and the old photo, and the old blob is queued
// for purge in the same transaction.
func (s *Service) Update(ctx context.Context, coupleID, id uint64, in UpdateInput) (ImportantDate, error) {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return ImportantDate{}, ErrTitleRequired
	}
	if in.Date != nil {
		if err := in.Date.Validate(); err != nil {
			return ImportantDate{}, err
		}
	}
	if err := validPhoto(in.Photo); err != nil {
		return ImportantDate{}, err
	}

	var out ImportantDate
	err := s.Ledger.Transact(ctx, func(tx *gorm.DB) error {
		d, err := s.load(tx.Clauses(clause.Locking{Strength: "UPDATE"}), coupleID, id)
		if err != nil {
			return err
		}
		old := d.Photo

		if in.Title != nil {
			d.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			d.Description = *in.Description
		}
		if in.Date != nil {
			d.Date = *in.Date
		}
		if in.IsRecurring != nil {
			d.IsRecurring = *in.IsRecurring
		}
		switch {
		case in.Photo != nil:
			d.Photo = in.Photo
		case in.RemovePhoto:
			d.Photo = nil
		}

		var oldSize int64
		if old != nil {
			oldSize = old.SizeBytes
		}
		if _, err := s.Ledger.Charge(tx, coupleID, d.photoSize()-oldSize); err != nil {
			return err
		}
		if err := tx.Save(&d).Error; err != nil {
			return err
		}
		if old != nil && (d.Photo == nil || d.Photo.Key != old.Key) {
			if err := jobs.EnqueuePurge(tx, coupleID, media.Keys(*old)); err != nil {
				return err
			}
		}
		out = d
		return nil
	})
	if err != nil {
		return ImportantDate{}, err
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, coupleID, id uint64) error {
	var freed int64
	err := s.Ledger.Transact(ctx, func(tx *gorm.DB) error {
		d, err := s.load(tx.Clauses(clause.Locking{Strength: "UPDATE"}), coupleID, id)
		if err != nil {
			return err
		}
		freed = d.photoSize()
		if _, err := s.Ledger.Charge(tx, coupleID, -freed); err != nil {
			return err
		}
		if err := tx.Delete(&ImportantDate{}, d.ID).Error; err != nil {
			return err
		}
		if d.Photo != nil {
			return jobs.EnqueuePurge(tx, coupleID, media.Keys(*d.Photo))
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("important date deleted", "date_id", id, "couple_id", coupleID, "freed", freed)
	return nil
}

func (s *Service) Get(ctx context.Context, coupleID, id uint64) (ImportantDate, error) {
	return s.load(s.DB.WithContext(ctx), coupleID, id)
}

// Upcoming ranks the couple's dates by their next occurrence.
func (s *Service) Upcoming(ctx context.Context, coupleID uint64, limit int) ([]occurrence.Upcoming[ImportantDate], error) {
	all, err := s.all(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	return occurrence.RankUpcoming(all, s.now(), limit)
}

// Timeline lists the couple's dates by their original calendar date.
func (s *Service) Timeline(ctx context.Context, coupleID uint64, descending bool) ([]ImportantDate, error) {
	all, err := s.all(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	return occurrence.Timeline(all, descending), nil
}

func (s *Service) all(ctx context.Context, coupleID uint64) ([]ImportantDate, error) {
	var rows []ImportantDate
	if err := s.DB.WithContext(ctx).
		Where("couple_id = ?", coupleID).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) load(q *gorm.DB, coupleID, id uint64) (ImportantDate, error) {
	var d ImportantDate
	if err := q.Where("id = ? AND couple_id = ?", id, coupleID).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ImportantDate{}, ErrNotFound
		}
		return ImportantDate{}, err
	}
	return d, nil
}
