package couple

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("couple account not found")
	// ErrStaleAccount means the account version moved between read and write.
	ErrStaleAccount = errors.New("couple account changed concurrently")
)

const maxTransactAttempts = 3

// Ledger persists quota changes. Charge must run inside the same transaction
// as the content write it pays for.
type Ledger struct {
	DB *gorm.DB
}

// Transact runs fn in a transaction and retries it when an optimistic
// version check lost a race.
func (l *Ledger) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < maxTransactAttempts; attempt++ {
		err = l.DB.WithContext(ctx).Transaction(fn)
		if !errors.Is(err, ErrStaleAccount) {
			return err
		}
		slog.Warn("retrying stale quota transaction", "attempt", attempt+1)
	}
	return err
}

// Charge applies delta to the account inside tx. The row is locked for
// update where the dialect supports it, and the write is guarded by the
// version read under that lock.
func (l *Ledger) Charge(tx *gorm.DB, coupleID uint64, delta int64) (Account, error) {
	var acc Account
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", coupleID).
		First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("load couple account: %w", err)
	}

	if delta == 0 {
		return acc, nil
	}
	next, err := Apply(acc, delta)
	if err != nil {
		return acc, err
	}

	res := tx.Model(&Account{}).
		Where("id = ? AND version = ?", acc.ID, acc.Version).
		Updates(map[string]any{
			"storage_used": next.StorageUsed,
			"version":      acc.Version + 1,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return acc, fmt.Errorf("update couple account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return acc, ErrStaleAccount
	}
	next.Version = acc.Version + 1

	slog.Info("quota charged",
		"couple_id", coupleID,
		"delta", delta,
		"storage_used", next.StorageUsed,
		"storage_limit", next.StorageLimit,
	)
	return next, nil
}

// Get reads the current committed account.
func (l *Ledger) Get(ctx context.Context, coupleID uint64) (Account, error) {
	var acc Account
	if err := l.DB.WithContext(ctx).Where("id = ?", coupleID).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("get couple account: %w", err)
	}
	return acc, nil
}

// Usage returns the account's usage with candidate bytes projected on top.
func (l *Ledger) Usage(ctx context.Context, coupleID uint64, candidate int64) (Usage, error) {
	acc, err := l.Get(ctx, coupleID)
	if err != nil {
		return Usage{}, err
	}
	return UsageOf(acc, candidate), nil
}

// Provision creates an empty account inside tx.
func Provision(tx *gorm.DB, limit int64) (Account, error) {
	if limit <= 0 {
		return Account{}, fmt.Errorf("storage limit must be positive, got %d", limit)
	}
	acc := Account{
		InviteCode:   newInviteCode(),
		StorageLimit: limit,
	}
	if err := tx.Create(&acc).Error; err != nil {
		return Account{}, fmt.Errorf("create couple account: %w", err)
	}
	return acc, nil
}

func newInviteCode() string {
	return uuid.NewString()[:8]
}
