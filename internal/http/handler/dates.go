package handler

import (
	"net/http"
	"strings"

	"keepsake/internal/dates"
	"keepsake/internal/media"
	"keepsake/internal/occurrence"
)

type DatesHandler struct {
	Svc *dates.Service
	Up  *Uploader
}

func singlePhoto(up *upload) (*media.Attachment, error) {
	files := up.Files["photo"]
	switch len(files) {
	case 0:
		return nil, nil
	case 1:
		return &files[0], nil
	default:
		return nil, badRequest("only one photo allowed")
	}
}

// Create takes a multipart form: title, description, date (YYYY-MM-DD),
// is_recurring and an optional "photo" file.
func (h *DatesHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, coupleID := identity(r)

	up, err := h.Up.Receive(w, r, coupleID, "photo")
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.create(r, uid, coupleID, up)
	if err != nil {
		up.Discard(r.Context())
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DatesHandler) create(r *http.Request, uid, coupleID uint64, up *upload) (dates.ImportantDate, error) {
	on, err := occurrence.ParseDate(up.Fields["date"])
	if err != nil {
		return dates.ImportantDate{}, err
	}
	recurring, err := up.Bool("is_recurring")
	if err != nil {
		return dates.ImportantDate{}, err
	}
	photo, err := singlePhoto(up)
	if err != nil {
		return dates.ImportantDate{}, err
	}
	return h.Svc.Create(r.Context(), coupleID, uid, dates.CreateInput{
		Title:       up.Fields["title"],
		Description: up.Fields["description"],
		Date:        on,
		IsRecurring: recurring,
		Photo:       photo,
	})
}

// Update takes the same multipart fields as Create, all optional, plus
// remove_photo.
func (h *DatesHandler) Update(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	up, err := h.Up.Receive(w, r, coupleID, "photo")
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.update(r, coupleID, id, up)
	if err != nil {
		up.Discard(r.Context())
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DatesHandler) update(r *http.Request, coupleID, id uint64, up *upload) (dates.ImportantDate, error) {
	var in dates.UpdateInput
	if up.Has("title") {
		v := up.Fields["title"]
		in.Title = &v
	}
	if up.Has("description") {
		v := up.Fields["description"]
		in.Description = &v
	}
	if up.Has("date") {
		on, err := occurrence.ParseDate(up.Fields["date"])
		if err != nil {
			return dates.ImportantDate{}, err
		}
		in.Date = &on
	}
	if up.Has("is_recurring") {
		v, err := up.Bool("is_recurring")
		if err != nil {
			return dates.ImportantDate{}, err
		}
		in.IsRecurring = &v
	}
	remove, err := up.Bool("remove_photo")
	if err != nil {
		return dates.ImportantDate{}, err
	}
	in.RemovePhoto = remove
	if in.Photo, err = singlePhoto(up); err != nil {
		return dates.ImportantDate{}, err
	}
	return h.Svc.Update(r.Context(), coupleID, id, in)
}

func (h *DatesHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

func (h *DatesHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	out, err := h.Svc.Upcoming(r.Context(), coupleID, queryInt(r, "limit", 5))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Timeline lists dates by their original calendar date; order=desc reverses.
func (h *DatesHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	desc := strings.EqualFold(r.URL.Query().Get("order"), "desc")
	out, err := h.Svc.Timeline(r.Context(), coupleID, desc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
