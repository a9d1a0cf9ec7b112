package handler

import (
	"net/http"

	"keepsake/internal/gallery"
)

type GalleryHandler struct {
	Svc *gallery.Service
	Up  *Uploader
}

func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	photos, err := h.Svc.List(r.Context(), coupleID, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if photos == nil {
		photos = []gallery.Photo{}
	}
	writeJSON(w, http.StatusOK, photos)
}

// Upload accepts one or more "photos" files and an optional caption shared
// by the batch.
func (h *GalleryHandler) Upload(w http.ResponseWriter, r *http.Request) {
	uid, coupleID := identity(r)

	up, err := h.Up.Receive(w, r, coupleID, "photos")
	if err != nil {
		writeError(w, r, err)
		return
	}

	files := up.Files["photos"]
	batch := make([]gallery.NewPhoto, 0, len(files))
	for _, f := range files {
		batch = append(batch, gallery.NewPhoto{Caption: up.Fields["caption"], Media: f})
	}

	out, err := h.Svc.Add(r.Context(), coupleID, uid, batch)
	if err != nil {
		up.Discard(r.Context())
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *GalleryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Svc.Delete(r.Context(), coupleID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
