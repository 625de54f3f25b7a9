// Package notify dispatches human-readable announcements for challenge state
// transitions. Events fan out to all registered senders (lobby chat,
// Telegram, etc.) and can be filtered by event type. Delivery is strictly
// best-effort: a failed sender is logged and never fails the operation that
// triggered the event.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types surfaced to users.
const (
	EventChallengeCreated   = "challenge_created"
	EventChallengeClaimed   = "challenge_claimed"
	EventChallengeCompleted = "challenge_completed"
	EventChallengeExpired   = "challenge_expired"
)

// Event is a single announcement. ChallengeID tags the message with the
// challenge it refers to; UserID attributes it to the acting user where one
// exists.
type Event struct {
	Type        string
	Title       string
	Message     string
	ChallengeID string
	UserID      string
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers one event.
	Send(ctx context.Context, ev Event) error
	// Name returns a human-readable identifier for the sender (e.g. "chat").
	Name() string
}

// Notifier dispatches events to one or more Senders. It maintains a set of
// allowed event types; Notify only forwards events whose type is in the
// allowed set. An empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders, forwarding
// only events whose type appears in the events slice (all, when empty).
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends an event to all senders if its type is allowed. Individual
// sender failures are collected into the returned error; callers on the
// challenge path log and discard it, delivery never gates a transition.
func (n *Notifier) Notify(ctx context.Context, ev Event) error {
	if len(n.events) > 0 && !n.events[ev.Type] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", ev.Type))
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, ev); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", ev.Type),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", ev.Type),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
