package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"keepsake/internal/couple"
	"keepsake/internal/media"
	"keepsake/internal/storage"
)

const maxFieldBytes = 64 << 10

// Uploader streams multipart files into storage. The byte counts reported by
// the store are what the services later charge; nothing is charged here.
type Uploader struct {
	Store    storage.Store
	Ledger   *couple.Ledger
	MaxBytes int64
}

// upload is one received multipart form. Blobs it wrote are owned by the
// request until a service commits a row that references them.
type upload struct {
	store  storage.Store
	keys   []string
	Fields map[string]string
	Files  map[string][]media.Attachment
}

func (u *upload) Has(field string) bool {
	_, ok := u.Fields[field]
	return ok
}

func (u *upload) Bool(field string) (bool, error) {
	v, ok := u.Fields[field]
	if !ok || strings.TrimSpace(v) == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, badRequest(fmt.Sprintf("invalid %s", field))
	}
	return b, nil
}

// Discard deletes every blob the request wrote. It runs after the request
// context may already be cancelled.
func (u *upload) Discard(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, k := range u.keys {
		if err := u.store.Delete(ctx, k); err != nil {
			slog.Warn("discard uploaded blob failed", "key", k, "error", err)
		}
	}
	u.keys = nil
}

// Receive reads a multipart/form-data body. Text parts become Fields; file
// parts named in fileFields are written to storage under fresh keys for
// coupleID, any other file part rejects the request. A running
// total of stored bytes is dry-run against the account as read at the start
// of the request so that hopeless uploads stop early. The authoritative
// check happens when the service charges the ledger.
func (up *Uploader) Receive(w http.ResponseWriter, r *http.Request, coupleID uint64, fileFields ...string) (*upload, error) {
	ctx := r.Context()

	if ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || ct != "multipart/form-data" {
		return nil, badRequest("multipart/form-data required")
	}

	acc, err := up.Ledger.Get(ctx, coupleID)
	if err != nil {
		return nil, err
	}

	if up.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, up.MaxBytes)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, badRequest("invalid multipart body")
	}

	u := &upload{
		store:  up.Store,
		Fields: map[string]string{},
		Files:  map[string][]media.Attachment{},
	}
	fail := func(err error) (*upload, error) {
		u.Discard(ctx)
		return nil, err
	}

	var total int64
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return fail(err)
			}
			return fail(badRequest("invalid multipart body"))
		}

		name := part.FormName()
		if part.FileName() == "" {
			b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			part.Close()
			if err != nil {
				return fail(err)
			}
			if len(b) > maxFieldBytes {
				return fail(badRequest(fmt.Sprintf("field %s too long", name)))
			}
			u.Fields[name] = string(b)
			continue
		}

		if !slices.Contains(fileFields, name) {
			part.Close()
			return fail(badRequest(fmt.Sprintf("unexpected file field %s", name)))
		}

		contentType := part.Header.Get("Content-Type")
		key := storage.NewKey(coupleID)
		n, err := up.Store.Put(ctx, key, part)
		part.Close()
		if err != nil {
			return fail(err)
		}
		u.keys = append(u.keys, key)
		u.Files[name] = append(u.Files[name], media.Attachment{
			Key:         key,
			SizeBytes:   n,
			Kind:        media.KindFor(contentType),
			ContentType: contentType,
		})

		total += n
		if !couple.CheckWouldFit(acc, total) {
			return fail(couple.QuotaViolation{Requested: total, Available: couple.Available(acc)})
		}
	}

	return u, nil
}
