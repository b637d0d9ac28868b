package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	middleware "github.com/markdave123-py/samurai-chat/internal/api/middlewares"
	"github.com/markdave123-py/samurai-chat/internal/services"
)

const tokenTTL = 24 * time.Hour

type AuthHandler struct {
	users     *services.UserService
	jwtSecret string
	logger    *slog.Logger
}

func NewAuthHandler(users *services.UserService, jwtSecret string, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{users: users, jwtSecret: jwtSecret, logger: logger.With("component", "auth_handler")}
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid body", err), nil)
		return
	}

	user, err := h.users.Signup(r.Context(), req.Email, req.Password, req.FirstName)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	token, err := middleware.IssueToken(h.jwtSecret, user.ID, tokenTTL)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "token": token, "user": user})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid body", err), nil)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	token, err := middleware.IssueToken(h.jwtSecret, user.ID, tokenTTL)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "token": token})
}
