package couple

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidInvite = errors.New("invalid invite code")
	ErrCoupleFull    = errors.New("couple already has two members")
	ErrAccountInUse  = errors.New("current account still holds content or a partner")
)

const maxMembers = 2

// member is the slice of the users table pairing needs.
type member struct {
	ID       uint64 `gorm:"column:id"`
	CoupleID uint64 `gorm:"column:couple_id"`
}

func (member) TableName() string { return "users" }

type Pairing struct {
	DB *gorm.DB
	// Holdings are content models keyed by couple_id. Rows of any of them
	// pin the previous account.
	Holdings []any
}

// Join moves userID into the account identified by inviteCode. The user's
// previous account must have no partner, no bytes charged to it and no
// content rows; it is left in place.
func (p *Pairing) Join(ctx context.Context, userID uint64, inviteCode string) (Account, error) {
	inviteCode = strings.TrimSpace(inviteCode)
	if inviteCode == "" {
		return Account{}, ErrInvalidInvite
	}

	var joined Account
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("invite_code = ?", inviteCode).
			First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidInvite
			}
			return err
		}

		var m member
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).
			First(&m).Error; err != nil {
			return fmt.Errorf("load member: %w", err)
		}
		if m.CoupleID == target.ID {
			joined = target
			return nil
		}

		var count int64
		if err := tx.Model(&member{}).Where("couple_id = ?", target.ID).Count(&count).Error; err != nil {
			return err
		}
		if count >= maxMembers {
			return ErrCoupleFull
		}

		var previous Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", m.CoupleID).
			First(&previous).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if previous.ID != 0 {
			var others int64
			if err := tx.Model(&member{}).
				Where("couple_id = ? AND id <> ?", previous.ID, userID).
				Count(&others).Error; err != nil {
				return err
			}
			if previous.StorageUsed > 0 || others > 0 {
				return ErrAccountInUse
			}
			for _, m := range p.Holdings {
				var rows int64
				if err := tx.Model(m).Where("couple_id = ?", previous.ID).Count(&rows).Error; err != nil {
					return fmt.Errorf("count holdings: %w", err)
				}
				if rows > 0 {
					return ErrAccountInUse
				}
			}
		}

		if err := tx.Model(&member{}).Where("id = ?", userID).Update("couple_id", target.ID).Error; err != nil {
			return err
		}
		joined = target
		return nil
	})
	if err != nil {
		return Account{}, err
	}

	slog.Info("user joined couple", "user_id", userID, "couple_id", joined.ID)
	return joined, nil
}
