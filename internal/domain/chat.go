package domain

import "time"

// DefaultChatRoom is the room where system announcements are posted.
const DefaultChatRoom = "general"

// ChatMessage is a single lobby chat entry. System messages produced by
// challenge transitions carry the challenge ID they refer to.
type ChatMessage struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Room        string    `json:"room"`
	Message     string    `json:"message"`
	ChallengeID *string   `json:"challenge_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
