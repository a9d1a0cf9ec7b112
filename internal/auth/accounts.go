package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"keepsake/internal/couple"
)

var (
	ErrEmailTaken         = errors.New("email already used")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("email and a password of at least 8 characters required")
	ErrUserNotFound       = errors.New("user not found")
)

const minPasswordLen = 8

// Accounts registers users. Every new user starts alone in a freshly
// provisioned couple account that a partner can join by invite code.
type Accounts struct {
	DB           *gorm.DB
	DefaultLimit int64
}

func (a *Accounts) Register(ctx context.Context, email, name, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") || len(password) < minPasswordLen {
		return User{}, ErrInvalidInput
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}

	u := User{Email: email, Name: strings.TrimSpace(name), PasswordHash: hash}
	err = a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrEmailTaken
		}

		acc, err := couple.Provision(tx, a.DefaultLimit)
		if err != nil {
			return err
		}
		u.CoupleID = acc.ID
		return tx.Create(&u).Error
	})
	if err != nil {
		return User{}, err
	}

	slog.Info("user registered", "user_id", u.ID, "couple_id", u.CoupleID)
	return u, nil
}

func (a *Accounts) Login(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	var u User
	if err := a.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !ComparePassword(u.PasswordHash, password) {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (a *Accounts) Get(ctx context.Context, id uint64) (User, error) {
	var u User
	if err := a.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

// Partner returns the other member of the user's couple, if any.
func (a *Accounts) Partner(ctx context.Context, u User) (*User, error) {
	var p User
	err := a.DB.WithContext(ctx).
		Where("couple_id = ? AND id <> ?", u.CoupleID, u.ID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
