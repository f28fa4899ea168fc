package handler

import (
	"net/http"

	"github.com/capitalize-ai/flowchat/internal/middleware"
	"github.com/capitalize-ai/flowchat/internal/model"
	"github.com/capitalize-ai/flowchat/internal/service"
	"github.com/capitalize-ai/flowchat/pkg/logger"
)

// ChatHandler handles chat and message endpoints.
type ChatHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/chats/{userEmail}
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ListChats(r.Context(), pathParam(r, "userEmail"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to fetch chats")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/chats
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChatData != nil && req.ChatData.ID != "" {
		if err := middleware.ValidateChatID(req.ChatData.ID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.ChatData != nil {
		if err := middleware.ValidateTitle(req.ChatData.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	chat, err := h.service.CreateChat(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to create chat")
		return
	}

	writeJSON(w, http.StatusCreated, model.ChatResponse{Success: true, Chat: *chat})
}

// Update handles PUT /api/chats/{userEmail}/{chatId}
func (h *ChatHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title != nil {
		if err := middleware.ValidateTitle(*req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	chat, err := h.service.UpdateChat(r.Context(), pathParam(r, "userEmail"), pathParam(r, "chatId"), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to update chat")
		return
	}

	writeJSON(w, http.StatusOK, model.ChatResponse{Success: true, Chat: *chat})
}

// Delete handles DELETE /api/chats/{userEmail}/{chatId}
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteChat(r.Context(), pathParam(r, "userEmail"), pathParam(r, "chatId")); err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to delete chat")
		return
	}

	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true, Message: "Chat deleted successfully"})
}

// AddMessage handles POST /api/chats/{userEmail}/{chatId}/messages
func (h *ChatHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	var req model.AddMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MessageData != nil {
		if err := middleware.ValidateMessageText(req.MessageData.Text); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	chat, err := h.service.AddMessage(r.Context(), pathParam(r, "userEmail"), pathParam(r, "chatId"), req.MessageData)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to add message")
		return
	}

	writeJSON(w, http.StatusOK, model.AddMessageResponse{
		Success:     true,
		Message:     "Message added successfully",
		LastMessage: chat.LastMessage,
	})
}

// Messages handles GET /api/chats/{userEmail}/{chatId}/messages
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.service.GetChatMessages(r.Context(), pathParam(r, "userEmail"), pathParam(r, "chatId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to fetch messages")
		return
	}

	writeJSON(w, http.StatusOK, model.MessagesResponse{Success: true, Messages: messages})
}

// BulkSave handles POST /api/chats/bulk-save
func (h *ChatHandler) BulkSave(w http.ResponseWriter, r *http.Request) {
	var req model.BulkSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	count, err := h.service.BulkSave(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to save chats and messages")
		return
	}

	writeJSON(w, http.StatusOK, model.BulkSaveResponse{
		Success: true,
		Message: "Chats and messages saved successfully",
		Count:   count,
	})
}
