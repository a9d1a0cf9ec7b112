package couple

import "fmt"

// QuotaViolation rejects a change that would leave storage used outside
// [0, limit]. Requested is the delta that was asked for and Available the
// headroom at the moment of the check.
type QuotaViolation struct {
	Requested int64 `json:"requested"`
	Available int64 `json:"available"`
}

func (v QuotaViolation) Error() string {
	return fmt.Sprintf("storage quota exceeded: requested %d bytes, %d available", v.Requested, v.Available)
}

// Available is the remaining headroom of the account.
func Available(a Account) int64 {
	if a.StorageUsed >= a.StorageLimit {
		return 0
	}
	return a.StorageLimit - a.StorageUsed
}

// CheckWouldFit reports whether applying delta keeps the account within its
// limit. Negative deltas fit as long as usage does not drop below zero.
func CheckWouldFit(a Account, delta int64) bool {
	next := a.StorageUsed + delta
	return next >= 0 && next <= a.StorageLimit
}

// Apply returns a copy of a with delta applied, or a QuotaViolation leaving a
// untouched. The caller must evaluate it against the snapshot it is about to
// commit.
func Apply(a Account, delta int64) (Account, error) {
	if !CheckWouldFit(a, delta) {
		return a, QuotaViolation{Requested: delta, Available: Available(a)}
	}
	a.StorageUsed += delta
	return a, nil
}

// ProjectedUsage is for UI feedback only and is never authoritative.
func ProjectedUsage(a Account, candidate int64) int64 {
	return a.StorageUsed + candidate
}

// UsagePercent is the share of the limit in use, 0..100.
func UsagePercent(a Account) float64 {
	if a.StorageLimit <= 0 {
		return 0
	}
	return float64(a.StorageUsed) * 100 / float64(a.StorageLimit)
}
