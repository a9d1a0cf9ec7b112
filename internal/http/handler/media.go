package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"keepsake/internal/storage"
)

type MediaHandler struct {
	Store storage.Store
}

// Serve streams a blob owned by the caller's couple. Keys of other couples
// are reported as missing.
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	key := chi.URLParam(r, "*")
	if !storage.OwnedBy(key, coupleID) {
		writeError(w, r, storage.ErrNotFound)
		return
	}

	rc, err := h.Store.Open(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("media stream interrupted", "key", key, "error", err)
	}
}
