package handler

import (
	"net/http"
	"strings"
	"time"

	"keepsake/internal/capsule"
)

type CapsuleHandler struct {
	Svc *capsule.Service
	Up  *Uploader
}

// Create takes a multipart form: title, content, unlock_at (RFC3339), up to
// five "photos" files and an optional "video" file.
func (h *CapsuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, coupleID := identity(r)

	up, err := h.Up.Receive(w, r, coupleID, "photos", "video")
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.create(r, uid, coupleID, up)
	if err != nil {
		up.Discard(r.Context())
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CapsuleHandler) create(r *http.Request, uid, coupleID uint64, up *upload) (capsule.TimeCapsule, error) {
	unlockAt, err := parseInstant(up.Fields["unlock_at"])
	if err != nil {
		return capsule.TimeCapsule{}, err
	}

	in := capsule.CreateInput{
		Title:    up.Fields["title"],
		Content:  up.Fields["content"],
		UnlockAt: unlockAt,
		Photos:   up.Files["photos"],
	}
	switch videos := up.Files["video"]; len(videos) {
	case 0:
	case 1:
		in.Video = &videos[0]
	default:
		return capsule.TimeCapsule{}, badRequest("only one video allowed")
	}
	return h.Svc.Create(r.Context(), coupleID, uid, in)
}

func (h *CapsuleHandler) List(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	out, err := h.Svc.List(r.Context(), coupleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Detail opens the capsule on the first read after its unlock instant.
// A still locked capsule is returned sealed.
func (h *CapsuleHandler) Detail(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.Svc.Detail(r.Context(), coupleID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type reflectReq struct {
	Content string `json:"content"`
}

func (h *CapsuleHandler) Reflect(w http.ResponseWriter, r *http.Request) {
	uid, coupleID := identity(r)

	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reflectReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.Svc.Reflect(r.Context(), coupleID, id, uid, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type rescheduleReq struct {
	UnlockAt string `json:"unlock_at"`
}

func (h *CapsuleHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	uid, coupleID := identity(r)

	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rescheduleReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	unlockAt, err := parseInstant(req.UnlockAt)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.Svc.Reschedule(r.Context(), coupleID, id, uid, unlockAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CapsuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

func parseInstant(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, badRequest("invalid unlock_at (RFC3339)")
	}
	return t, nil
}
