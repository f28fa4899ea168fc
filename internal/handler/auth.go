package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/flowchat/internal/middleware"
	"github.com/capitalize-ai/flowchat/internal/model"
	"github.com/capitalize-ai/flowchat/internal/service"
	"github.com/capitalize-ai/flowchat/pkg/logger"
)

// AuthHandler handles user registration and login. Its errors use a
// "message" field, which the web client reads.
type AuthHandler struct {
	service *service.AuthService
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *service.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service: svc,
		logger:  log,
	}
}

// Register handles POST /api/user/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email != "" {
		if err := middleware.ValidateEmail(req.Email); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	resp, err := h.service.Register(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/user/login. Bad credentials still answer 200
// with success=false.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.Login(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err, http.StatusBadRequest)
	if status == http.StatusInternalServerError {
		h.logger.Error("auth request failed", zap.Error(err))
	}
	writeMessage(w, status, service.PublicMessage(err, "Server error"))
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"message": message,
	})
}
