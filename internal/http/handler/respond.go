package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"keepsake/internal/auth"
	"keepsake/internal/capsule"
	"keepsake/internal/couple"
	"keepsake/internal/dates"
	"keepsake/internal/gallery"
	"keepsake/internal/media"
	"keepsake/internal/memory"
	"keepsake/internal/occurrence"
	"keepsake/internal/storage"
)

// badRequest is a malformed request the handler rejected before reaching a
// service.
type badRequest string

func (e badRequest) Error() string { return string(e) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		quota   couple.QuotaViolation
		locked  capsule.LockedError
		bad     badRequest
		tooBig  *http.MaxBytesError
		payload = map[string]any{"error": err.Error()}
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &quota):
		status = http.StatusRequestEntityTooLarge
		payload["requested"] = quota.Requested
		payload["available"] = quota.Available
	case errors.As(err, &tooBig):
		status = http.StatusRequestEntityTooLarge
		payload["limit"] = tooBig.Limit
	case errors.As(err, &locked):
		status = http.StatusLocked
		payload["unlock_at"] = locked.UnlockAt.UTC().Format(time.RFC3339)
	case errors.Is(err, capsule.ErrStillLocked):
		status = http.StatusLocked
	case errors.As(err, &bad), isOneOf(err,
		occurrence.ErrInvalidRecurrenceDate,
		media.ErrNegativeSize,
		storage.ErrInvalidKey,
		auth.ErrInvalidInput,
		couple.ErrInvalidInvite,
		capsule.ErrTitleRequired, capsule.ErrUnlockInPast, capsule.ErrTooManyPhotos,
		capsule.ErrInvalidMedia, capsule.ErrEmptyReflect,
		dates.ErrTitleRequired, dates.ErrInvalidMedia,
		gallery.ErrNoPhotos, gallery.ErrInvalidMedia,
		memory.ErrInvalidEvent, memory.ErrEmpty, memory.ErrTooManyPhotos, memory.ErrInvalidMedia,
	):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case isOneOf(err, capsule.ErrForbidden, memory.ErrForbidden):
		status = http.StatusForbidden
	case isOneOf(err,
		couple.ErrNotFound, auth.ErrUserNotFound, storage.ErrNotFound,
		capsule.ErrNotFound, dates.ErrNotFound, gallery.ErrNotFound, memory.ErrNotFound,
	):
		status = http.StatusNotFound
	case isOneOf(err, couple.ErrCoupleFull, couple.ErrAccountInUse, auth.ErrEmailTaken, capsule.ErrAlreadyOpen):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()),
			"error", err,
		)
		payload["error"] = "server error"
	}
	writeJSON(w, status, payload)
}

func isOneOf(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("bad json")
	}
	return nil
}

func parseID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid id")
	}
	return id, nil
}

// identity returns the caller resolved by the auth middleware.
func identity(r *http.Request) (userID, coupleID uint64) {
	userID, _ = auth.UserIDFromContext(r.Context())
	coupleID, _ = auth.CoupleIDFromContext(r.Context())
	return userID, coupleID
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
