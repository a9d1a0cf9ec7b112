package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// Store is the blob backend behind every media upload. Put reports the
// number of bytes persisted, which is what the quota ledger is charged.
type Store interface {
	Put(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var keyRe = regexp.MustCompile(`^[0-9]+/[0-9a-f-]{36}$`)

// NewKey returns a fresh object key scoped to a couple.
func NewKey(coupleID uint64) string {
	return fmt.Sprintf("%d/%s", coupleID, uuid.NewString())
}

// ValidKey reports whether key has the shape produced by NewKey.
func ValidKey(key string) bool {
	return keyRe.MatchString(key)
}

// OwnedBy reports whether key was issued for coupleID.
func OwnedBy(key string, coupleID uint64) bool {
	prefix := fmt.Sprintf("%d/", coupleID)
	return ValidKey(key) && len(key) > len(prefix) && key[:len(prefix)] == prefix
}
