package handler

import (
	"net/http"
	"strconv"

	"keepsake/internal/auth"
	"keepsake/internal/couple"
)

type MeHandler struct {
	Accounts *auth.Accounts
	Ledger   *couple.Ledger
	Pairing  *couple.Pairing
}

type meResp struct {
	User    auth.User    `json:"user"`
	Partner *auth.User   `json:"partner"`
	Usage   couple.Usage `json:"usage"`
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, coupleID := identity(r)

	u, err := h.Accounts.Get(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	partner, err := h.Accounts.Partner(r.Context(), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	usage, err := h.Ledger.Usage(r.Context(), coupleID, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResp{User: u, Partner: partner, Usage: usage})
}

type coupleResp struct {
	Account couple.Account `json:"account"`
	Usage   couple.Usage   `json:"usage"`
}

func (h *MeHandler) Couple(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	acc, err := h.Ledger.Get(r.Context(), coupleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, coupleResp{Account: acc, Usage: couple.UsageOf(acc, 0)})
}

// Usage projects candidate bytes on top of current usage for upload
// previews. The projection is advisory only.
func (h *MeHandler) Usage(w http.ResponseWriter, r *http.Request) {
	_, coupleID := identity(r)

	var candidate int64
	if v := r.URL.Query().Get("candidate"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, r, badRequest("invalid candidate"))
			return
		}
		candidate = n
	}

	usage, err := h.Ledger.Usage(r.Context(), coupleID, candidate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

type joinReq struct {
	InviteCode string `json:"invite_code"`
}

func (h *MeHandler) Join(w http.ResponseWriter, r *http.Request) {
	uid, _ := identity(r)

	var req joinReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	acc, err := h.Pairing.Join(r.Context(), uid, req.InviteCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, coupleResp{Account: acc, Usage: couple.UsageOf(acc, 0)})
}
