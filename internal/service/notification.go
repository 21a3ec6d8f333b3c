package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/metrics"
)

// NotificationStore defines the notification data access interface consumed by NotificationService.
type NotificationStore interface {
	Insert(ctx context.Context, n domain.Notification) (bool, error)
	ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, recipientID, id string) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
}

// AdminDirectory lists the actors holding the admin role.
type AdminDirectory interface {
	AdminIDs(ctx context.Context) ([]string, error)
}

// StaticAdminDirectory is a fixed admin list, typically taken from config.
type StaticAdminDirectory []string

func (d StaticAdminDirectory) AdminIDs(context.Context) ([]string, error) {
	return append([]string(nil), d...), nil
}

// NotificationInput describes a notification to append.
type NotificationInput struct {
	RecipientID string                  `json:"recipient_id" validate:"required"`
	RequestID   *string                 `json:"request_id,omitempty"`
	Type        domain.NotificationType `json:"type"`
	Title       string                  `json:"title" validate:"required,max=200"`
	Message     string                  `json:"message" validate:"max=2000"`
	DedupeKey   *string                 `json:"-"`
}

// NotificationService materializes notifications from transitions and
// messages and owns per-actor unread state.
type NotificationService struct {
	store  NotificationStore
	admins AdminDirectory
	log    *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(store NotificationStore, admins AdminDirectory, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		store:  store,
		admins: admins,
		log:    logger.With("component", "notifications"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// HandleTransition appends the notifications a transition calls for.
// Replaying the same event appends nothing new.
func (s *NotificationService) HandleTransition(ctx context.Context, e domain.TransitionEvent) error {
	req := e.Request
	requestID := e.RequestID

	var title, message string
	switch e.To {
	case domain.RequestStatusPending:
		if !e.IsCreation() {
			return nil
		}
		return s.notifyAdmins(ctx, NotificationInput{
			RequestID: &requestID,
			Type:      domain.NotificationStatusUpdate,
			Title:     "New service request",
			Message:   fmt.Sprintf("A new %s request was submitted by %s.", req.ServiceType, req.UserID),
		}, e)
	case domain.RequestStatusApproved:
		title = "Service request approved"
		message = fmt.Sprintf("Your %s request has been approved.", req.ServiceType)
		if req.TrackingEnabled {
			message += " Live tracking is now available."
		}
	case domain.RequestStatusRejected:
		if req.AdminNotes == nil || strings.TrimSpace(*req.AdminNotes) == "" {
			return errors.New("rejected request carries no notes")
		}
		title = "Service request rejected"
		message = fmt.Sprintf("Your %s request was rejected: %s", req.ServiceType, *req.AdminNotes)
	case domain.RequestStatusCompleted:
		title = "Service request completed"
		message = fmt.Sprintf("Your %s request has been completed.", req.ServiceType)
	default:
		return fmt.Errorf("no notification mapping for status %q", e.To)
	}

	_, _, err := s.Append(ctx, NotificationInput{
		RecipientID: req.UserID,
		RequestID:   &requestID,
		Type:        domain.NotificationStatusUpdate,
		Title:       title,
		Message:     message,
		DedupeKey:   transitionKey(e, req.UserID),
	})
	return err
}

// NotifyMessage tells the other side of a thread that a message arrived.
func (s *NotificationService) NotifyMessage(ctx context.Context, m domain.Message) error {
	in := NotificationInput{
		Type:      domain.NotificationMessage,
		Title:     "New message",
		Message:   preview(m.Text),
		DedupeKey: strPtr("message:" + m.ID),
	}
	if m.Sender == domain.SenderUser {
		in.Title = "New message from a customer"
		return s.notifyAdmins(ctx, in, domain.TransitionEvent{})
	}

	owner, ok := domain.ThreadOwner(m.ThreadKey)
	if !ok {
		return fmt.Errorf("malformed thread key %q", m.ThreadKey)
	}
	in.Title = "New message from support"
	in.RecipientID = owner
	_, _, err := s.Append(ctx, in)
	return err
}

// Append stores one notification. It reports false when the dedupe key was
// already used, which is not an error.
func (s *NotificationService) Append(ctx context.Context, in NotificationInput) (*domain.Notification, bool, error) {
	if in.RecipientID == "" {
		return nil, false, &domain.ValidationError{Field: "recipient_id", Message: "recipient is required"}
	}
	if !in.Type.Valid() {
		return nil, false, &domain.ValidationError{Field: "type", Message: fmt.Sprintf("unknown notification type %q", in.Type)}
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, false, &domain.ValidationError{Field: "title", Message: "title is required"}
	}

	n := domain.Notification{
		ID:          s.newID(),
		RecipientID: in.RecipientID,
		RequestID:   in.RequestID,
		Type:        in.Type,
		Title:       in.Title,
		Message:     in.Message,
		CreatedAt:   s.now(),
		DedupeKey:   in.DedupeKey,
	}
	created, err := s.store.Insert(ctx, n)
	if err != nil {
		return nil, false, fmt.Errorf("insert notification: %w", err)
	}
	if !created {
		s.log.Debug("duplicate notification skipped", "recipient_id", in.RecipientID, "dedupe_key", *in.DedupeKey)
		return nil, false, nil
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	return &n, true, nil
}

// ListFor returns an actor's notifications, newest first.
func (s *NotificationService) ListFor(ctx context.Context, actorID string) ([]domain.Notification, error) {
	return s.store.ListByRecipient(ctx, actorID)
}

// UnreadCountFor returns how many of an actor's notifications are unread.
func (s *NotificationService) UnreadCountFor(ctx context.Context, actorID string) (int, error) {
	return s.store.CountUnread(ctx, actorID)
}

// MarkRead marks one of the actor's notifications read. Unknown, foreign or
// already read notifications are a successful no-op.
func (s *NotificationService) MarkRead(ctx context.Context, actor domain.Actor, id string) error {
	if _, err := s.store.MarkRead(ctx, actor.ID, id); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkAllRead marks every notification of the actor read and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor domain.Actor) (int, error) {
	n, err := s.store.MarkAllRead(ctx, actor.ID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}

func (s *NotificationService) notifyAdmins(ctx context.Context, in NotificationInput, e domain.TransitionEvent) error {
	admins, err := s.admins.AdminIDs(ctx)
	if err != nil {
		return fmt.Errorf("resolve admins: %w", err)
	}

	var errs []error
	for _, id := range admins {
		next := in
		next.RecipientID = id
		switch {
		case e.RequestID != "":
			next.DedupeKey = transitionKey(e, id)
		case in.DedupeKey != nil:
			next.DedupeKey = strPtr(*in.DedupeKey + ":" + id)
		}
		if _, _, err := s.Append(ctx, next); err != nil {
			errs = append(errs, fmt.Errorf("notify admin %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func transitionKey(e domain.TransitionEvent, recipientID string) *string {
	return strPtr(fmt.Sprintf("%s:%s:%s", e.RequestID, e.To, recipientID))
}

func preview(text string) string {
	const limit = 140
	r := []rune(strings.TrimSpace(text))
	if len(r) <= limit {
		return string(r)
	}
	return string(r[:limit]) + "…"
}

func strPtr(s string) *string {
	return &s
}
