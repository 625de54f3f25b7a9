package notify

import (
	"context"
	"fmt"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// systemUserID attributes lobby announcements when the event has no acting
// user (e.g. sweeper-driven expiry).
const systemUserID = "system"

// ChatSender posts events as system messages in the lobby chat room, tagged
// with the challenge they refer to. This is the primary notification channel:
// it is what participants actually see.
type ChatSender struct {
	chat domain.ChatStore
	room string
}

// NewChatSender creates a ChatSender posting to the given room; an empty
// room selects the default lobby room.
func NewChatSender(chat domain.ChatStore, room string) *ChatSender {
	if room == "" {
		room = domain.DefaultChatRoom
	}
	return &ChatSender{chat: chat, room: room}
}

// Send appends the event message to the chat room.
func (c *ChatSender) Send(ctx context.Context, ev Event) error {
	userID := ev.UserID
	if userID == "" {
		userID = systemUserID
	}

	msg := domain.ChatMessage{
		UserID:  userID,
		Room:    c.room,
		Message: ev.Message,
	}
	if ev.ChallengeID != "" {
		id := ev.ChallengeID
		msg.ChallengeID = &id
	}

	if _, err := c.chat.Append(ctx, msg); err != nil {
		return fmt.Errorf("chat: append system message: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (c *ChatSender) Name() string {
	return "chat"
}
