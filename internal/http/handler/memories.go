package handler

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"keepsake/internal/memory"
)

type MemoryHandler struct {
	Svc *memory.Service
	Up  *Uploader
}

func idemKey(r *http.Request) *string {
	if k := strings.TrimSpace(r.Header.Get("Idempotency-Key")); k != "" {
		return &k
	}
	return nil
}

// Create takes a multipart form: title, content and any number of "photos"
// files up to the per-memory cap.
func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, coupleID := identity(r)

	up, err := h.Up.Receive(w, r, coupleID, "photos")
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Svc.Create(r.Context(), coupleID, uid, memory.CreateInput{
		Title:   up.Fields["title"],
		Content: up.Fields["content"],
		Photos:  up.Files["photos"],
		IdemKey: idemKey(r),
	})
	if err != nil || res.Replayed {
		up.Discard(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

type appendEventReq struct {
	Type     string  `json:"type"`
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	PhotoKey string  `json:"photo_key"`
}

// AppendEvent takes JSON, or a multipart form with a "photos" file field for
// PHOTOS_ADDED.
func (h *MemoryHandler) AppendEvent(w http.ResponseWriter, r *http.Request) {
	uid, coupleID := identity(r)

	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	in := memory.EventInput{MemoryID: id, AuthorID: uid, IdemKey: idemKey(r)}
	var up *upload

	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "multipart/form-data" {
		if up, err = h.Up.Receive(w, r, coupleID, "photos"); err != nil {
			writeError(w, r, err)
			return
		}
		in.Type = up.Fields["type"]
		in.Photos = up.Files["photos"]
		in.PhotoKey = up.Fields["photo_key"]
		if up.Has("title") {
			v := up.Fields["title"]
			in.Title = &v
		}
		if up.Has("content") {
			v := up.Fields["content"]
			in.Content = &v
		}
	} else {
		var req appendEventReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		in.Type, in.Title, in.Content, in.PhotoKey = req.Type, req.Title, req.Content, req.PhotoKey
	}

	res, err := h.Svc.AppendEvent(r.Context(), coupleID, in)
	if up != nil && (err != nil || res.Replayed) {
		up.Discard(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Svc.Get(r.Context(), coupleID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	q := r.URL.Query()
	f := memory.Filter{
		Tag:   q.Get("tag"),
		Query: q.Get("q"),
		Limit: queryInt(r, "limit", 50),
	}
	if v := strings.TrimSpace(q.Get("archived")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, badRequest("invalid archived"))
			return
		}
		f.Archived = &b
	}

	rows, err := h.Svc.List(r.Context(), coupleID, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []memory.Projection{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *MemoryHandler) Tags(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	out, err := h.Svc.TagCloud(r.Context(), coupleID, r.URL.Query().Get("q"), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *MemoryHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	evs, err := h.Svc.Timeline(r.Context(), coupleID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, coupleID := identity(r)

	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Svc.Delete(r.Context(), coupleID, id, uid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
