package couple

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gorm.io/gorm"

	"keepsake/internal/db/dbtest"
)

func newLedger(t *testing.T, limit int64) (*Ledger, Account) {
	t.Helper()
	gdb := dbtest.Open(t, &Account{}, &member{})
	acc, err := Provision(gdb, limit)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return &Ledger{DB: gdb}, acc
}

func charge(l *Ledger, coupleID uint64, delta int64) (Account, error) {
	var out Account
	err := l.Transact(context.Background(), func(tx *gorm.DB) error {
		acc, err := l.Charge(tx, coupleID, delta)
		if err != nil {
			return err
		}
		out = acc
		return nil
	})
	return out, err
}

func TestProvision(t *testing.T) {
	l, acc := newLedger(t, 1000)

	if acc.ID == 0 || acc.InviteCode == "" {
		t.Errorf("expected id and invite code, got %+v", acc)
	}

	got, err := l.Get(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StorageUsed != 0 || got.StorageLimit != 1000 {
		t.Errorf("unexpected account: %+v", got)
	}

	if _, err := Provision(l.DB, 0); err == nil {
		t.Error("expected error for non-positive limit")
	}
}

func TestCharge(t *testing.T) {
	t.Run("commits and bumps version", func(t *testing.T) {
		l, acc := newLedger(t, 1000)

		got, err := charge(l, acc.ID, 900)
		if err != nil {
			t.Fatalf("charge: %v", err)
		}
		if got.StorageUsed != 900 || got.Version != 1 {
			t.Errorf("got %+v, want used=900 version=1", got)
		}

		stored, _ := l.Get(context.Background(), acc.ID)
		if stored.StorageUsed != 900 || stored.Version != 1 {
			t.Errorf("stored %+v does not match returned value", stored)
		}
	})

	t.Run("violation leaves stored usage unchanged", func(t *testing.T) {
		l, acc := newLedger(t, 1000)
		if _, err := charge(l, acc.ID, 1000); err != nil {
			t.Fatalf("charge: %v", err)
		}

		_, err := charge(l, acc.ID, 1)
		var v QuotaViolation
		if !errors.As(err, &v) {
			t.Fatalf("expected QuotaViolation, got %v", err)
		}
		if v.Requested != 1 || v.Available != 0 {
			t.Errorf("violation = %+v, want {1 0}", v)
		}

		stored, _ := l.Get(context.Background(), acc.ID)
		if stored.StorageUsed != 1000 {
			t.Errorf("StorageUsed = %d, want 1000", stored.StorageUsed)
		}
	})

	t.Run("release frees quota", func(t *testing.T) {
		l, acc := newLedger(t, 1000)
		charge(l, acc.ID, 600)

		got, err := charge(l, acc.ID, -250)
		if err != nil {
			t.Fatalf("release: %v", err)
		}
		if got.StorageUsed != 350 {
			t.Errorf("StorageUsed = %d, want 350", got.StorageUsed)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		l, _ := newLedger(t, 1000)
		if _, err := charge(l, 9999, 1); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("failed content write rolls back the charge", func(t *testing.T) {
		l, acc := newLedger(t, 1000)
		boom := errors.New("content insert failed")

		err := l.Transact(context.Background(), func(tx *gorm.DB) error {
			if _, err := l.Charge(tx, acc.ID, 500); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected content error, got %v", err)
		}

		stored, _ := l.Get(context.Background(), acc.ID)
		if stored.StorageUsed != 0 || stored.Version != 0 {
			t.Errorf("charge survived rollback: %+v", stored)
		}
	})
}

func TestChargeConcurrent(t *testing.T) {
	l, acc := newLedger(t, 1000)
	charge(l, acc.ID, 400)

	// Each fits alone (400+500 <= 1000); together they do not.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = charge(l, acc.ID, 500)
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		var v QuotaViolation
		switch {
		case err == nil:
			ok++
		case errors.As(err, &v):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Fatalf("ok=%d rejected=%d, want 1 and 1", ok, rejected)
	}

	stored, _ := l.Get(context.Background(), acc.ID)
	if stored.StorageUsed != 900 {
		t.Errorf("StorageUsed = %d, want 900", stored.StorageUsed)
	}
}

func TestChargeUsesLockedVersion(t *testing.T) {
	l, acc := newLedger(t, 1000)

	// The guard compares against whatever version was read under the lock.
	err := l.DB.Model(&Account{}).Where("id = ?", acc.ID).Update("version", 7).Error
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	got, err := charge(l, acc.ID, 10)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if got.Version != 8 {
		t.Errorf("Version = %d, want 8", got.Version)
	}
}

func TestUsage(t *testing.T) {
	l, acc := newLedger(t, 2000)
	charge(l, acc.ID, 500)

	u, err := l.Usage(context.Background(), acc.ID, 300)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if u.Used != 500 || u.Available != 1500 || u.Projected != 800 || u.Percent != 25 {
		t.Errorf("unexpected usage: %+v", u)
	}
}
