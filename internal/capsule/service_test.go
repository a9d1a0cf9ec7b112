package capsule

import (
	"context"
	"errors"
	"testing"
	"time"

	"keepsake/internal/couple"
	"keepsake/internal/db/dbtest"
	"keepsake/internal/jobs"
	"keepsake/internal/media"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(t *testing.T, limit int64) (*Service, *clock, couple.Account) {
	t.Helper()
	gdb := dbtest.Open(t, &couple.Account{}, &TimeCapsule{}, &Reflection{}, &jobs.Job{})
	acc, err := couple.Provision(gdb, limit)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	clk := &clock{now: t0}
	return &Service{DB: gdb, Ledger: &couple.Ledger{DB: gdb}, Now: clk.Now}, clk, acc
}

func photo(key string, size int64) media.Attachment {
	return media.Attachment{Key: key, SizeBytes: size, Kind: media.KindPhoto, ContentType: "image/jpeg"}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("charges media and stores capsule", func(t *testing.T) {
		s, _, acc := newService(t, 1000)
		video := media.Attachment{Key: "1/v", SizeBytes: 300, Kind: media.KindVideo}

		c, err := s.Create(ctx, acc.ID, 7, CreateInput{
			Title:    "  one year  ",
			Content:  "open me later",
			UnlockAt: t0.Add(24 * time.Hour),
			Photos:   []media.Attachment{photo("1/a", 100), photo("1/b", 200)},
			Video:    &video,
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if c.ID == 0 || c.Title != "one year" {
			t.Errorf("unexpected capsule: %+v", c)
		}

		stored, _ := s.Ledger.Get(ctx, acc.ID)
		if stored.StorageUsed != 600 {
			t.Errorf("StorageUsed = %d, want 600", stored.StorageUsed)
		}
	})

	t.Run("quota violation stores nothing", func(t *testing.T) {
		s, _, acc := newService(t, 100)

		_, err := s.Create(ctx, acc.ID, 7, CreateInput{
			Title:    "too big",
			UnlockAt: t0.Add(time.Hour),
			Photos:   []media.Attachment{photo("1/a", 101)},
		})
		var v couple.QuotaViolation
		if !errors.As(err, &v) {
			t.Fatalf("expected QuotaViolation, got %v", err)
		}

		var n int64
		s.DB.Model(&TimeCapsule{}).Count(&n)
		if n != 0 {
			t.Errorf("capsules = %d, want 0", n)
		}
	})

	t.Run("validation", func(t *testing.T) {
		s, _, acc := newService(t, 1000)
		six := make([]media.Attachment, MaxPhotos+1)
		for i := range six {
			six[i] = photo("1/p", 1)
		}

		tests := []struct {
			name string
			in   CreateInput
			want error
		}{
			{"missing title", CreateInput{UnlockAt: t0.Add(time.Hour)}, ErrTitleRequired},
			{"unlock now", CreateInput{Title: "x", UnlockAt: t0}, ErrUnlockInPast},
			{"too many photos", CreateInput{Title: "x", UnlockAt: t0.Add(time.Hour), Photos: six}, ErrTooManyPhotos},
			{"video as photo", CreateInput{Title: "x", UnlockAt: t0.Add(time.Hour), Photos: []media.Attachment{{Key: "1/v", Kind: media.KindVideo}}}, ErrInvalidMedia},
			{"negative size", CreateInput{Title: "x", UnlockAt: t0.Add(time.Hour), Photos: []media.Attachment{photo("1/a", -1)}}, ErrInvalidMedia},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := s.Create(ctx, acc.ID, 7, tt.in); !errors.Is(err, tt.want) {
					t.Errorf("err = %v, want %v", err, tt.want)
				}
			})
		}
	})
}

func TestDetail(t *testing.T) {
	ctx := context.Background()
	s, clk, acc := newService(t, 1000)

	c, err := s.Create(ctx, acc.ID, 7, CreateInput{
		Title:    "letter",
		Content:  "secret",
		UnlockAt: t0.Add(time.Hour),
		Photos:   []media.Attachment{photo("1/a", 10)},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	d, err := s.Detail(ctx, acc.ID, c.ID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if d.State != StateLocked || d.Capsule.Content != "" || d.Capsule.Photos != nil {
		t.Errorf("locked capsule leaked content: %+v", d)
	}

	clk.now = t0.Add(time.Hour + time.Millisecond)
	d, err = s.Detail(ctx, acc.ID, c.ID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if d.State != StateOpen || d.Capsule.Content != "secret" || len(d.Capsule.Photos) != 1 {
		t.Errorf("unexpected detail after unlock: %+v", d)
	}
	firstOpened := *d.Capsule.OpenedAt

	clk.now = t0.Add(48 * time.Hour)
	d, err = s.Detail(ctx, acc.ID, c.ID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if !d.Capsule.OpenedAt.Equal(firstOpened) {
		t.Errorf("OpenedAt moved from %v to %v", firstOpened, d.Capsule.OpenedAt)
	}

	if _, err := s.Detail(ctx, acc.ID+1, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("other couple: expected ErrNotFound, got %v", err)
	}
}

func TestReflect(t *testing.T) {
	ctx := context.Background()
	s, clk, acc := newService(t, 1000)

	c, _ := s.Create(ctx, acc.ID, 7, CreateInput{Title: "t", UnlockAt: t0.Add(time.Hour)})

	_, err := s.Reflect(ctx, acc.ID, c.ID, 8, "early")
	var le LockedError
	if !errors.As(err, &le) || !le.UnlockAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("expected LockedError, got %v", err)
	}

	clk.now = t0.Add(2 * time.Hour)
	if _, err := s.Reflect(ctx, acc.ID, c.ID, 8, "  "); !errors.Is(err, ErrEmptyReflect) {
		t.Errorf("expected ErrEmptyReflect, got %v", err)
	}
	if _, err := s.Reflect(ctx, acc.ID, c.ID, 8, "first"); err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	clk.now = t0.Add(3 * time.Hour)
	if _, err := s.Reflect(ctx, acc.ID, c.ID, 7, "second"); err != nil {
		t.Fatalf("Reflect: %v", err)
	}

	d, err := s.Detail(ctx, acc.ID, c.ID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if len(d.Capsule.Reflections) != 2 ||
		d.Capsule.Reflections[0].Content != "first" ||
		d.Capsule.Reflections[1].Content != "second" {
		t.Errorf("unexpected reflections: %+v", d.Capsule.Reflections)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s, clk, acc := newService(t, 1000)

	for _, h := range []int{5, 1, 3} {
		if _, err := s.Create(ctx, acc.ID, 7, CreateInput{
			Title:    "c",
			Content:  "hidden",
			UnlockAt: t0.Add(time.Duration(h) * time.Hour),
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	clk.now = t0.Add(4 * time.Hour)
	l, err := s.List(ctx, acc.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(l.Locked) != 1 || len(l.Open) != 2 {
		t.Fatalf("locked=%d open=%d, want 1 and 2", len(l.Locked), len(l.Open))
	}
	if l.Locked[0].Content != "" {
		t.Error("locked capsule content exposed in list")
	}
	if !l.Open[0].UnlockAt.After(l.Open[1].UnlockAt) {
		t.Error("open capsules should be latest unlock first")
	}
}

func TestReschedule(t *testing.T) {
	ctx := context.Background()
	s, clk, acc := newService(t, 1000)
	c, _ := s.Create(ctx, acc.ID, 7, CreateInput{Title: "t", UnlockAt: t0.Add(time.Hour)})

	if _, err := s.Reschedule(ctx, acc.ID, c.ID, 8, t0.Add(2*time.Hour)); !errors.Is(err, ErrForbidden) {
		t.Errorf("partner reschedule: expected ErrForbidden, got %v", err)
	}
	if _, err := s.Reschedule(ctx, acc.ID, c.ID, 7, t0.Add(-time.Hour)); !errors.Is(err, ErrUnlockInPast) {
		t.Errorf("past: expected ErrUnlockInPast, got %v", err)
	}

	got, err := s.Reschedule(ctx, acc.ID, c.ID, 7, t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if !got.UnlockAt.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("UnlockAt = %v", got.UnlockAt)
	}

	clk.now = t0.Add(3 * time.Hour)
	if _, err := s.Reschedule(ctx, acc.ID, c.ID, 7, t0.Add(10*time.Hour)); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("unlocked: expected ErrAlreadyOpen, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, clk, acc := newService(t, 1000)
	c, _ := s.Create(ctx, acc.ID, 7, CreateInput{
		Title:    "t",
		UnlockAt: t0.Add(time.Hour),
		Photos:   []media.Attachment{photo("1/a", 100), photo("1/b", 50)},
	})
	clk.now = t0.Add(2 * time.Hour)
	s.Reflect(ctx, acc.ID, c.ID, 8, "kept?")

	if err := s.Delete(ctx, acc.ID, c.ID, 8); !errors.Is(err, ErrForbidden) {
		t.Fatalf("partner delete: expected ErrForbidden, got %v", err)
	}
	if err := s.Delete(ctx, acc.ID, c.ID, 7); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	stored, _ := s.Ledger.Get(ctx, acc.ID)
	if stored.StorageUsed != 0 {
		t.Errorf("StorageUsed = %d, want 0", stored.StorageUsed)
	}
	var refl, queued int64
	s.DB.Model(&Reflection{}).Count(&refl)
	s.DB.Model(&jobs.Job{}).Where("type = ?", jobs.TypeMediaPurge).Count(&queued)
	if refl != 0 || queued != 1 {
		t.Errorf("reflections=%d purge jobs=%d, want 0 and 1", refl, queued)
	}
	if _, err := s.Detail(ctx, acc.ID, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
