package capsule

import (
	"context"
	"errors"
	"fmt"
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
	ErrNotFound      = errors.New("capsule not found")
	ErrForbidden     = errors.New("only the author can do that")
	ErrTitleRequired = errors.New("title required")
	ErrUnlockInPast  = errors.New("unlock time must be in the future")
	ErrTooManyPhotos = fmt.Errorf("a capsule holds at most %d photos", MaxPhotos)
	ErrInvalidMedia  = errors.New("invalid capsule media")
	ErrEmptyReflect  = errors.New("reflection content required")
	ErrAlreadyOpen   = errors.New("capsule is no longer locked")
)

type Service struct {
	DB     *gorm.DB
	Ledger *couple.Ledger
	Now    func() time.Time
}

type CreateInput struct {
	Title    string
	Content  string
	UnlockAt time.Time
	Photos   []media.Attachment
	Video    *media.Attachment
}

// Detail is a capsule as seen at a given instant. Locked capsules are sealed.
type Detail struct {
	Capsule TimeCapsule `json:"capsule"`
	State   State       `json:"state"`
}

type Listing struct {
	Locked []TimeCapsule `json:"locked"`
	Open   []TimeCapsule `json:"open"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (in CreateInput) validate(now time.Time) error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	if !in.UnlockAt.After(now) {
		return ErrUnlockInPast
	}
	if len(in.Photos) > MaxPhotos {
		return ErrTooManyPhotos
	}
	for _, p := range in.Photos {
		if p.Kind != media.KindPhoto || p.Validate() != nil {
			return ErrInvalidMedia
		}
	}
	if in.Video != nil && (in.Video.Kind != media.KindVideo || in.Video.Validate() != nil) {
		return ErrInvalidMedia
	}
	return nil
}

// Create stores a capsule and charges its media in one transaction.
func (s *Service) Create(ctx context.Context, coupleID, authorID uint64, in CreateInput) (TimeCapsule, error) {
	now := s.now()
	if err := in.validate(now); err != nil {
		return TimeCapsule{}, err
	}

	var out TimeCapsule
	err := s.Ledger.Transact(ctx, func(tx *gorm.DB) error {
		c := TimeCapsule{
			CoupleID: coupleID,
			AuthorID: authorID,
			Title:    strings.TrimSpace(in.Title),
			Content:  in.Content,
			UnlockAt: in.UnlockAt.UTC(),
			Photos:   in.Photos,
			Video:    in.Video,
		}
		if _, err := s.Ledger.Charge(tx, coupleID, c.SizeBytes()); err != nil {
			return err
		}
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return TimeCapsule{}, err
	}

	slog.Info("capsule created", "capsule_id", out.ID, "couple_id", coupleID, "unlock_at", out.UnlockAt)
	return out, nil
}

// Detail fetches a capsule and, when it has become revealable, records the
// first opening. Repeated calls after that write nothing.
func (s *Service) Detail(ctx context.Context, coupleID, id uint64) (Detail, error) {
	now := s.now()

	c, err := s.load(s.DB.WithContext(ctx), coupleID, id)
	if err != nil {
		return Detail{}, err
	}

	state := EffectiveState(c, now)
	if state == StateLocked {
		return Detail{Capsule: c.Sealed(), State: state}, nil
	}

	if state == StateUnlocked {
		opened, err := Reveal(c, now)
		if err != nil {
			return Detail{}, err
		}
		res := s.DB.WithContext(ctx).Model(&TimeCapsule{}).
			Where("id = ? AND couple_id = ? AND is_opened = ?", id, coupleID, false).
			Updates(map[string]any{
				"is_opened": true,
				"opened_at": opened.OpenedAt,
			})
		if res.Error != nil {
			return Detail{}, fmt.Errorf("open capsule: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			slog.Info("capsule opened", "capsule_id", id, "couple_id", coupleID)
			c = opened
			// another reader opened it first
		} else if c, err = s.load(s.DB.WithContext(ctx), coupleID, id); err != nil {
			return Detail{}, err
		}
	}

	reflections, err := s.reflections(s.DB.WithContext(ctx), id)
	if err != nil {
		return Detail{}, err
	}
	c.Reflections = reflections
	return Detail{Capsule: c, State: EffectiveState(c, now)}, nil
}

// Reflect appends a reflection once the capsule can be revealed.
func (s *Service) Reflect(ctx context.Context, coupleID, id, authorID uint64, content string) (Reflection, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Reflection{}, ErrEmptyReflect
	}
	now := s.now()

	var out Reflection
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.load(tx.Clauses(clause.Locking{Strength: "UPDATE"}), coupleID, id)
		if err != nil {
			return err
		}
		_, r, err := AppendReflection(c, authorID, content, now)
		if err != nil {
			return err
		}
		if err := tx.Create(&r).Error; err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// List partitions the couple's capsules by lock state as of now.
func (s *Service) List(ctx context.Context, coupleID uint64) (Listing, error) {
	var rows []TimeCapsule
	if err := s.DB.WithContext(ctx).
		Where("couple_id = ?", coupleID).
		Order("unlock_at asc, id asc").
		Find(&rows).Error; err != nil {
		return Listing{}, err
	}

	locked, open := Partition(rows, s.now())
	for i := range locked {
		locked[i] = locked[i].Sealed()
	}
	return Listing{Locked: nonNil(locked), Open: nonNil(open)}, nil
}

// Reschedule moves the unlock instant of a capsule nobody has seen yet.
func (s *Service) Reschedule(ctx context.Context, coupleID, id, authorID uint64, unlockAt time.Time) (TimeCapsule, error) {
	now := s.now()
	if !unlockAt.After(now) {
		return TimeCapsule{}, ErrUnlockInPast
	}

	var out TimeCapsule
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.load(tx.Clauses(clause.Locking{Strength: "UPDATE"}), coupleID, id)
		if err != nil {
			return err
		}
		if c.AuthorID != authorID {
			return ErrForbidden
		}
		if EffectiveState(c, now) != StateLocked {
			return ErrAlreadyOpen
		}
		c.UnlockAt = unlockAt.UTC()
		if err := tx.Model(&TimeCapsule{}).
			Where("id = ? AND is_opened = ?", id, false).
			Update("unlock_at", c.UnlockAt).Error; err != nil {
			return err
		}
		out = c.Sealed()
		return nil
	})
	return out, err
}

// Delete removes a capsule, releases its quota and schedules its blobs for
// purge, all in one transaction.
func (s *Service) Delete(ctx context.Context, coupleID, id, authorID uint64) error {
	var c TimeCapsule
	err := s.Ledger.Transact(ctx, func(tx *gorm.DB) error {
		var err error
		c, err = s.load(tx.Clauses(clause.Locking{Strength: "UPDATE"}), coupleID, id)
		if err != nil {
			return err
		}
		if c.AuthorID != authorID {
			return ErrForbidden
		}
		if _, err := s.Ledger.Charge(tx, coupleID, -c.SizeBytes()); err != nil {
			return err
		}
		if err := tx.Where("capsule_id = ?", id).Delete(&Reflection{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&TimeCapsule{}, id).Error; err != nil {
			return err
		}
		return jobs.EnqueuePurge(tx, coupleID, media.Keys(c.Attachments()...))
	})
	if err != nil {
		return err
	}

	slog.Info("capsule deleted", "capsule_id", id, "couple_id", coupleID, "freed", c.SizeBytes())
	return nil
}

func (s *Service) load(q *gorm.DB, coupleID, id uint64) (TimeCapsule, error) {
	var c TimeCapsule
	if err := q.Where("id = ? AND couple_id = ?", id, coupleID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TimeCapsule{}, ErrNotFound
		}
		return TimeCapsule{}, err
	}
	return c, nil
}

func (s *Service) reflections(q *gorm.DB, capsuleID uint64) ([]Reflection, error) {
	var out []Reflection
	if err := q.Where("capsule_id = ?", capsuleID).Order("created_at asc, id asc").Find(&out).Error; err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
