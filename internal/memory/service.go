package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"keepsake/internal/couple"
	"keepsake/internal/jobs"
	"keepsake/internal/media"
)

var (
	ErrNotFound      = errors.New("memory not found")
	ErrForbidden     = errors.New("only the author can change a memory")
	ErrInvalidEvent  = errors.New("invalid event")
	ErrEmpty         = errors.New("title or content required")
	ErrTooManyPhotos = fmt.Errorf("a memory holds at most %d photos", MaxPhotos)
	ErrInvalidMedia  = errors.New("memories only accept images")
)

type Service struct {
	DB     *gorm.DB
	Ledger *couple.Ledger
}

type CreateInput struct {
	Title   string
	Content string
	Photos  []media.Attachment
	IdemKey *string
}

type EventInput struct {
	MemoryID uint64
	AuthorID uint64
	Type     string
	Title    *string
	Content  *string
	Photos   []media.Attachment
	PhotoKey string
	IdemKey  *string
}

// Result identifies the event a write produced. Replayed is set when the
// idempotency key matched an earlier event and nothing was written.
type Result struct {
	MemoryID uint64 `json:"memory_id"`
	Version  uint64 `json:"version"`
	Replayed bool   `json:"replayed"`
}

type Filter struct {
	Tag      string
	Archived *bool
	Query    string
	Limit    int
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

func validPhotos(photos []media.Attachment) error {
	for _, p := range photos {
		if p.Kind != media.KindPhoto || p.Validate() != nil {
			return ErrInvalidMedia
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, coupleID, authorID uint64, in CreateInput) (Result, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if in.Title == "" && in.Content == "" {
		return Result{}, ErrEmpty
	}
	if len(in.Photos) > MaxPhotos {
		return Result{}, ErrTooManyPhotos
	}
	if err := validPhotos(in.Photos); err != nil {
		return Result{}, err
	}

	var res Result
	err := s.Ledger.Transact(ctx, func(tx *gorm.DB) error {
		if prev, ok, err := replay(tx, authorID, in.IdemKey); err != nil || ok {
			res = prev
			return err
		}

		if _, err := s.Ledger.Charge(tx, coupleID, media.TotalSize(in.Photos...)); err != nil {
			return err
		}

		m := Memory{CoupleID: coupleID, AuthorID: authorID}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}

		ev, err := insertEvent(tx, m, authorID, EventCreated, map[string]any{
			"title":   in.Title,
			"content": in.Content,
			"photos":  in.Photos,
		}, in.IdemKey)
		if err != nil {
			return err
		}

		p := Projection{
			MemoryID: m.ID,
			CoupleID: coupleID,
			AuthorID: authorID,
			Title:    in.Title,
			Content:  in.Content,
			Photos:   in.Photos,
		}
		retag(&p)
		p.Version = ev.ID
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		if err := syncTaggings(tx, p); err != nil {
			return err
		}

		res = Result{MemoryID: m.ID, Version: ev.ID}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// AppendEvent records one change and folds it into the projection. Photo
// additions and removals are charged in the same transaction as the event.
func (s *Service) AppendEvent(ctx context.Context, coupleID uint64, in EventInput) (Result, error) {
	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))

	var res Result
	err := s.Ledger.Transact(ctx, func(tx *gorm.DB) error {
		if prev, ok, err := replay(tx, in.AuthorID, in.IdemKey); err != nil || ok {
			res = prev
			return err
		}

		var m Memory
		if err := tx.Where("id = ? AND couple_id = ?", in.MemoryID, coupleID).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if m.AuthorID != in.AuthorID {
			return ErrForbidden
		}

		var p Projection
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("memory_id = ?", m.ID).
			First(&p).Error; err != nil {
			return err
		}

		payload, err := s.fold(tx, &p, in)
		if err != nil {
			return err
		}

		ev, err := insertEvent(tx, m, in.AuthorID, in.Type, payload, in.IdemKey)
		if err != nil {
			return err
		}
		p.Version = ev.ID

		if err := tx.Save(&p).Error; err != nil {
			return err
		}
		if in.Type == EventUpdated {
			if err := syncTaggings(tx, p); err != nil {
				return err
			}
		}

		res = Result{MemoryID: m.ID, Version: ev.ID}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// fold applies the event to p and returns the payload to record.
func (s *Service) fold(tx *gorm.DB, p *Projection, in EventInput) (map[string]any, error) {
	payload := map[string]any{}

	switch in.Type {
	case EventUpdated:
		if in.Title == nil && in.Content == nil {
			return nil, ErrInvalidEvent
		}
		if in.Title != nil {
			p.Title = strings.TrimSpace(*in.Title)
			payload["title"] = p.Title
		}
		if in.Content != nil {
			p.Content = strings.TrimSpace(*in.Content)
			payload["content"] = p.Content
		}
		if p.Title == "" && p.Content == "" {
			return nil, ErrEmpty
		}
		retag(p)

	case EventArchived:
		p.Archived = true
	case EventRestored:
		p.Archived = false

	case EventPhotosAdded:
		if len(in.Photos) == 0 {
			return nil, ErrInvalidEvent
		}
		if len(p.Photos)+len(in.Photos) > MaxPhotos {
			return nil, ErrTooManyPhotos
		}
		if err := validPhotos(in.Photos); err != nil {
			return nil, err
		}
		if _, err := s.Ledger.Charge(tx, p.CoupleID, media.TotalSize(in.Photos...)); err != nil {
			return nil, err
		}
		p.Photos = append(append([]media.Attachment{}, p.Photos...), in.Photos...)
		payload["photos"] = in.Photos

	case EventPhotoRemoved:
		idx := -1
		for i, ph := range p.Photos {
			if ph.Key == in.PhotoKey {
				idx = i
				break
			}
		}
		if in.PhotoKey == "" || idx < 0 {
			return nil, ErrInvalidEvent
		}
		removed := p.Photos[idx]
		if _, err := s.Ledger.Charge(tx, p.CoupleID, -removed.SizeBytes); err != nil {
			return nil, err
		}
		kept := make([]media.Attachment, 0, len(p.Photos)-1)
		kept = append(kept, p.Photos[:idx]...)
		p.Photos = append(kept, p.Photos[idx+1:]...)
		if err := jobs.EnqueuePurge(tx, p.CoupleID, media.Keys(removed)); err != nil {
			return nil, err
		}
		payload["key"] = removed.Key

	default:
		return nil, ErrInvalidEvent
	}

	return payload, nil
}

// Delete drops a memory with its history, frees its photos and queues them
// for purge.
func (s *Service) Delete(ctx context.Context, coupleID, id, authorID uint64) error {
	var freed int64
	err := s.Ledger.Transact(ctx, func(tx *gorm.DB) error {
		var p Projection
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("memory_id = ? AND couple_id = ?", id, coupleID).
			First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if p.AuthorID != authorID {
			return ErrForbidden
		}

		freed = p.photoSize()
		if _, err := s.Ledger.Charge(tx, coupleID, -freed); err != nil {
			return err
		}
		for _, model := range []any{&Tagging{}, &Event{}, &Projection{}} {
			if err := tx.Where("memory_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&Memory{}, id).Error; err != nil {
			return err
		}
		return jobs.EnqueuePurge(tx, coupleID, media.Keys(p.Photos...))
	})
	if err != nil {
		return err
	}
	slog.Info("memory deleted", "memory_id", id, "couple_id", coupleID, "freed", freed)
	return nil
}

func (s *Service) Get(ctx context.Context, coupleID, id uint64) (Projection, error) {
	var p Projection
	if err := s.DB.WithContext(ctx).
		Where("memory_id = ? AND couple_id = ?", id, coupleID).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Projection{}, ErrNotFound
		}
		return Projection{}, err
	}
	return p, nil
}

// List returns the couple's memories, most recently changed first.
func (s *Service) List(ctx context.Context, coupleID uint64, f Filter) ([]Projection, error) {
	q := s.DB.WithContext(ctx).Model(&Projection{}).Where("couple_id = ?", coupleID)

	if f.Archived != nil {
		q = q.Where("archived = ?", *f.Archived)
	}
	if tag := strings.ToLower(strings.TrimSpace(f.Tag)); tag != "" {
		q = q.Where("memory_id IN (?)",
			s.DB.Model(&Tagging{}).Select("memory_id").Where("couple_id = ? AND tag = ?", coupleID, tag))
	}
	if text := strings.ToLower(strings.TrimSpace(f.Query)); text != "" {
		like := "%" + text + "%"
		q = q.Where("(LOWER(content) LIKE ? OR LOWER(title) LIKE ?)", like, like)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows []Projection
	if err := q.Order("updated_at desc, memory_id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TagCloud counts hashtags across the couple's unarchived memories.
func (s *Service) TagCloud(ctx context.Context, coupleID uint64, prefix string, limit int) ([]TagCount, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := s.DB.WithContext(ctx).
		Table("memory_tags AS t").
		Select("t.tag AS tag, COUNT(*) AS count").
		Joins("JOIN memory_projections p ON p.memory_id = t.memory_id").
		Where("t.couple_id = ? AND p.archived = ?", coupleID, false)
	if prefix != "" {
		q = q.Where("t.tag LIKE ?", prefix+"%")
	}

	out := []TagCount{}
	if err := q.Group("t.tag").Order("count desc, t.tag asc").Limit(limit).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Timeline returns every event of a memory in the order it happened.
func (s *Service) Timeline(ctx context.Context, coupleID, id uint64) ([]Event, error) {
	var m Memory
	if err := s.DB.WithContext(ctx).Where("id = ? AND couple_id = ?", id, coupleID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	evs := []Event{}
	if err := s.DB.WithContext(ctx).Where("memory_id = ?", id).Order("id asc").Find(&evs).Error; err != nil {
		return nil, err
	}
	return evs, nil
}

func replay(tx *gorm.DB, authorID uint64, key *string) (Result, bool, error) {
	if key == nil || *key == "" {
		return Result{}, false, nil
	}
	var ev Event
	err := tx.Where("author_id = ? AND idempotency_key = ?", authorID, *key).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	return Result{MemoryID: ev.MemoryID, Version: ev.ID, Replayed: true}, true, nil
}

func insertEvent(tx *gorm.DB, m Memory, authorID uint64, typ string, payload map[string]any, idem *string) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	if idem != nil && *idem == "" {
		idem = nil
	}
	ev := Event{
		MemoryID:       m.ID,
		CoupleID:       m.CoupleID,
		AuthorID:       authorID,
		Type:           typ,
		Payload:        datatypes.JSON(b),
		IdempotencyKey: idem,
	}
	if err := tx.Create(&ev).Error; err != nil {
		return Event{}, err
	}
	return ev, nil
}

func retag(p *Projection) {
	p.Tags = Tags(ExtractTags(p.Title + " " + p.Content))
}

func syncTaggings(tx *gorm.DB, p Projection) error {
	if err := tx.Where("memory_id = ?", p.MemoryID).Delete(&Tagging{}).Error; err != nil {
		return err
	}
	if len(p.Tags) == 0 {
		return nil
	}
	rows := make([]Tagging, len(p.Tags))
	for i, t := range p.Tags {
		rows[i] = Tagging{MemoryID: p.MemoryID, Tag: t, CoupleID: p.CoupleID}
	}
	return tx.Create(&rows).Error
}
