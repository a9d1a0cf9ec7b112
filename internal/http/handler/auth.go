package handler

import (
	"net/http"

	"keepsake/internal/auth"
)

type AuthHandler struct {
	Accounts *auth.Accounts
	JWT      *auth.JWT
}

type registerReq struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type tokenResp struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.Accounts.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondToken(w, r, http.StatusCreated, u)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondToken(w, r, http.StatusOK, u)
}

func (h *AuthHandler) respondToken(w http.ResponseWriter, r *http.Request, status int, u auth.User) {
	token, err := h.JWT.Sign(u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, tokenResp{Token: token, User: u})
}
