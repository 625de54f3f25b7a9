package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciblhq/tradeduel/internal/domain"
)

type memChatStore struct {
	mu   sync.Mutex
	msgs []domain.ChatMessage
}

func (s *memChatStore) Append(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = int64(len(s.msgs) + 1)
	s.msgs = append(s.msgs, msg)
	return msg, nil
}

func (s *memChatStore) ListRecent(ctx context.Context, room string, opts domain.ListOpts) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ChatMessage
	for i := len(s.msgs) - 1; i >= 0 && len(out) < opts.Limit; i-- {
		if s.msgs[i].Room == room {
			out = append(out, s.msgs[i])
		}
	}
	return out, nil
}

// memBus records published payloads per channel.
type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: make(map[string][][]byte)}
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

func TestChatPost(t *testing.T) {
	store := &memChatStore{}
	bus := newMemBus()
	svc := NewChatService(store, nil, bus, testLogger())

	msg, err := svc.Post(context.Background(), domain.Session{UserID: "alice"}, "general", "  gm lobby  ")
	require.NoError(t, err)

	assert.Equal(t, "gm lobby", msg.Message, "whitespace is trimmed")
	assert.Equal(t, "alice", msg.UserID)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, 1, bus.count("ch:chat"))
}

func TestChatPostRejections(t *testing.T) {
	svc := NewChatService(&memChatStore{}, nil, nil, testLogger())
	ctx := context.Background()

	_, err := svc.Post(ctx, domain.Session{}, "general", "hi")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Post(ctx, domain.Session{UserID: "alice"}, "general", "   ")
	assert.ErrorIs(t, err, domain.ErrIncompleteData)

	_, err = svc.Post(ctx, domain.Session{UserID: "alice"}, "general", strings.Repeat("x", maxChatMessageLen+1))
	assert.ErrorIs(t, err, domain.ErrIncompleteData)
}

func TestChatPostRateLimited(t *testing.T) {
	svc := NewChatService(&memChatStore{}, denyLimiter{}, nil, testLogger())

	_, err := svc.Post(context.Background(), domain.Session{UserID: "alice"}, "general", "hi")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestChatRecentClampsLimit(t *testing.T) {
	store := &memChatStore{}
	svc := NewChatService(store, nil, nil, testLogger())
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		_, err := svc.Post(ctx, domain.Session{UserID: "alice"}, "general", "msg")
		require.NoError(t, err)
	}

	msgs, err := svc.Recent(ctx, "general", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 50, "non-positive limit falls back to the default")

	msgs, err = svc.Recent(ctx, "general", 5)
	require.NoError(t, err)
	assert.Len(t, msgs, 5)
	assert.Greater(t, msgs[0].ID, msgs[4].ID, "newest first")
}
