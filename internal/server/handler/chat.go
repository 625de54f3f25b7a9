package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// ChatService defines the methods the chat handler requires from the service
// layer.
type ChatService interface {
	Post(ctx context.Context, sess domain.Session, room, message string) (domain.ChatMessage, error)
	Recent(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error)
}

// ChatHandler serves the lobby chat endpoints.
type ChatHandler struct {
	chat   ChatService
	logger *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chat ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: logger,
	}
}

// ListMessages returns recent messages in a room, newest first.
// GET /api/chat?room=general&limit=50
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = domain.DefaultChatRoom
	}
	opts := parseListOpts(r)

	messages, err := h.chat.Recent(r.Context(), room, opts.Limit)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type postMessageRequest struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// PostMessage appends a message from the authenticated user.
// POST /api/chat
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	msg, err := h.chat.Post(r.Context(), session(r), req.Room, req.Message)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}
