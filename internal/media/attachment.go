package media

import (
	"errors"
	"strings"
)

type Kind string

const (
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

var ErrNegativeSize = errors.New("negative media size")

// Attachment is a committed blob referenced by a content entity.
// It has no lifecycle of its own; it is stored inline on its owner.
type Attachment struct {
	Key         string `json:"key"`
	SizeBytes   int64  `json:"size_bytes"`
	Kind        Kind   `json:"kind"`
	ContentType string `json:"content_type,omitempty"`
}

// KindFor classifies a MIME type. Anything that is not video/* is a photo.
func KindFor(contentType string) Kind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "video/") {
		return KindVideo
	}
	return KindPhoto
}

func (a Attachment) Validate() error {
	if a.SizeBytes < 0 {
		return ErrNegativeSize
	}
	return nil
}

// TotalSize sums the sizes of the given attachments.
func TotalSize(items ...Attachment) int64 {
	var n int64
	for _, a := range items {
		n += a.SizeBytes
	}
	return n
}

// Keys returns the storage keys of the given attachments, skipping empty ones.
func Keys(items ...Attachment) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		if a.Key != "" {
			out = append(out, a.Key)
		}
	}
	return out
}
