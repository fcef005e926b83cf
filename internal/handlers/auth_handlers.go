package handlers

import (
	"net/http"

	"groupchat/internal/apperr"
	"groupchat/internal/auth"
	"groupchat/internal/models"
)

type AuthHandlers struct {
	authService *auth.Service
}

func NewAuthHandlers(authService *auth.Service) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	response, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, response)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	h.login(w, r, &req)
}

// Token is the form-encoded password grant used by OAuth2 clients.
func (h *AuthHandlers) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, apperr.InvalidRequest("invalid form body"))
		return
	}

	req := models.LoginRequest{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
	if err := validateRequest(&req); err != nil {
		writeError(w, r, err)
		return
	}

	h.login(w, r, &req)
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request, req *models.LoginRequest) {
	response, err := h.authService.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, accountFrom(r.Context()))
}
