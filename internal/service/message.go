package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/metrics"
)

// MessageStore defines the thread data access interface consumed by MessageService.
type MessageStore interface {
	Append(ctx context.Context, m domain.Message) (domain.Message, error)
	List(ctx context.Context, threadKey string, after int64) ([]domain.Message, error)
	Threads(ctx context.Context) ([]string, error)
}

// MessageNotifier is told about every posted message.
type MessageNotifier interface {
	NotifyMessage(ctx context.Context, m domain.Message) error
}

// MessageService manages the append-only user/admin threads.
type MessageService struct {
	store    MessageStore
	notifier MessageNotifier
	log      *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewMessageService creates a new MessageService. notifier may be nil.
func NewMessageService(store MessageStore, notifier MessageNotifier, logger *slog.Logger) *MessageService {
	return &MessageService{
		store:    store,
		notifier: notifier,
		log:      logger.With("component", "messages"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Post appends a message to threadKey on behalf of actor.
func (s *MessageService) Post(ctx context.Context, actor domain.Actor, threadKey, text string) (*domain.Message, error) {
	if err := s.authorize(actor, threadKey); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, &domain.ValidationError{Field: "text", Message: "message text is required"}
	}

	msg, err := s.store.Append(ctx, domain.Message{
		ID:        s.newID(),
		ThreadKey: threadKey,
		Sender:    domain.SenderFor(actor),
		SenderID:  actor.ID,
		Text:      text,
		Timestamp: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	metrics.MessagesPosted.WithLabelValues(string(msg.Sender)).Inc()

	if s.notifier != nil {
		if err := s.notifier.NotifyMessage(ctx, msg); err != nil {
			s.log.Error("message notification failed", "thread_key", threadKey, "message_id", msg.ID, "error", err)
		}
	}
	return &msg, nil
}

// History returns the messages of threadKey after the given offset, in post order.
func (s *MessageService) History(ctx context.Context, actor domain.Actor, threadKey string, after int64) ([]domain.Message, error) {
	if err := s.authorize(actor, threadKey); err != nil {
		return nil, err
	}
	if after < 0 {
		return nil, &domain.ValidationError{Field: "after", Message: "offset must not be negative"}
	}
	return s.store.List(ctx, threadKey, after)
}

// Threads lists the keys of every thread with at least one message. Admin only.
func (s *MessageService) Threads(ctx context.Context, actor domain.Actor) ([]string, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can list threads", domain.ErrForbidden)
	}
	return s.store.Threads(ctx)
}

func (s *MessageService) authorize(actor domain.Actor, threadKey string) error {
	owner, ok := domain.ThreadOwner(threadKey)
	if !ok {
		return &domain.ValidationError{Field: "thread_key", Message: fmt.Sprintf("malformed thread key %q", threadKey)}
	}
	if !actor.CanAccess(owner) {
		return fmt.Errorf("%w: thread belongs to another user", domain.ErrForbidden)
	}
	return nil
}
