package couple

import "time"

// Account is the storage-scoped tenant shared by the two members of a couple.
// StorageUsed only changes through Ledger.Charge; Version is bumped on every
// committed charge.
type Account struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	InviteCode   string    `gorm:"uniqueIndex;not null" json:"invite_code"`
	StorageUsed  int64     `gorm:"not null;default:0" json:"storage_used"`
	StorageLimit int64     `gorm:"not null" json:"storage_limit"`
	Version      uint64    `gorm:"not null;default:0" json:"version"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string { return "couple_accounts" }

// Usage is the read model behind quota bars.
type Usage struct {
	Used      int64   `json:"used"`
	Limit     int64   `json:"limit"`
	Available int64   `json:"available"`
	Percent   float64 `json:"percent"`
	Projected int64   `json:"projected"`
}

func UsageOf(a Account, candidate int64) Usage {
	return Usage{
		Used:      a.StorageUsed,
		Limit:     a.StorageLimit,
		Available: Available(a),
		Percent:   UsagePercent(a),
		Projected: ProjectedUsage(a, candidate),
	}
}
