package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ciblhq/tradeduel/internal/domain"
)

const maxChatMessageLen = 500

// ChatService handles the lobby chat: posting user messages and reading
// recent history. System announcements bypass this service and go through
// the notifier's chat sender directly.
type ChatService struct {
	chat    domain.ChatStore
	limiter domain.RateLimiter
	bus     domain.SignalBus
	logger  *slog.Logger

	// PostLimit caps messages per user per minute; zero disables it.
	PostLimit int
}

// NewChatService creates a ChatService.
func NewChatService(chat domain.ChatStore, limiter domain.RateLimiter, bus domain.SignalBus, logger *slog.Logger) *ChatService {
	return &ChatService{
		chat:      chat,
		limiter:   limiter,
		bus:       bus,
		logger:    logger.With(slog.String("component", "chat_service")),
		PostLimit: 20,
	}
}

// Post appends a message from the session user to the room.
func (s *ChatService) Post(ctx context.Context, sess domain.Session, room, message string) (domain.ChatMessage, error) {
	if sess.Anonymous() {
		return domain.ChatMessage{}, domain.ErrForbidden
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return domain.ChatMessage{}, fmt.Errorf("empty message: %w", domain.ErrIncompleteData)
	}
	if utf8.RuneCountInString(message) > maxChatMessageLen {
		return domain.ChatMessage{}, fmt.Errorf("message exceeds %d characters: %w", maxChatMessageLen, domain.ErrIncompleteData)
	}

	if s.PostLimit > 0 && s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "chat:post:"+sess.UserID, s.PostLimit, time.Minute)
		if err != nil {
			s.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		} else if !allowed {
			return domain.ChatMessage{}, domain.ErrRateLimited
		}
	}

	msg, err := s.chat.Append(ctx, domain.ChatMessage{
		UserID:  sess.UserID,
		Room:    room,
		Message: message,
	})
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("chat_service: append: %w", err)
	}

	if s.bus != nil {
		if payload, err := json.Marshal(msg); err == nil {
			if err := s.bus.Publish(ctx, "ch:chat", payload); err != nil {
				s.logger.DebugContext(ctx, "chat publish failed", slog.String("error", err.Error()))
			}
		}
	}

	return msg, nil
}

// Recent returns the latest messages in the room, newest first.
func (s *ChatService) Recent(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.chat.ListRecent(ctx, room, domain.ListOpts{Limit: limit})
}
