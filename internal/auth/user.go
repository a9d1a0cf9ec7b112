package auth

import "time"

// User belongs to exactly one couple account at a time.
type User struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Name         string    `gorm:"not null;default:''" json:"name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CoupleID     uint64    `gorm:"index;not null" json:"couple_id"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
