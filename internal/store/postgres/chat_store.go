package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// ChatStore implements domain.ChatStore using PostgreSQL.
type ChatStore struct {
	pool *pgxpool.Pool
}

// NewChatStore creates a ChatStore backed by the given pool.
func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

// Append inserts a chat message and returns it with its assigned ID and
// timestamp.
func (s *ChatStore) Append(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	room := msg.Room
	if room == "" {
		room = domain.DefaultChatRoom
	}

	const query = `
		INSERT INTO chat_messages (user_id, room, message, challenge_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, query, msg.UserID, room, msg.Message, msg.ChallengeID).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("postgres: append chat message: %w", err)
	}
	msg.Room = room
	return msg, nil
}

// ListRecent returns the newest messages in a room, newest first.
func (s *ChatStore) ListRecent(ctx context.Context, room string, opts domain.ListOpts) ([]domain.ChatMessage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, user_id, room, message, challenge_id, created_at
		FROM chat_messages
		WHERE room = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, room, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chat messages: %w", err)
	}
	defer rows.Close()

	var list []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Room, &m.Message, &m.ChallengeID, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// ListBefore returns all messages created strictly before the cutoff. Used
// by the cold-storage archiver.
func (s *ChatStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ChatMessage, error) {
	const query = `
		SELECT id, user_id, room, message, challenge_id, created_at
		FROM chat_messages
		WHERE created_at < $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chat messages before %s: %w", before, err)
	}
	defer rows.Close()

	var list []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Room, &m.Message, &m.ChallengeID, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// Compile-time interface check.
var _ domain.ChatStore = (*ChatStore)(nil)
