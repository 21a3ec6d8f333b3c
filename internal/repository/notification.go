package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/fleetdesk/internal/domain"
)

const notificationColumns = `id, recipient_id, request_id, type, title, message, read, created_at, dedupe_key`

// NotificationRepository persists notifications in Postgres.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert stores n unless a notification with the same dedupe key exists.
// It reports whether a row was written.
func (r *NotificationRepository) Insert(ctx context.Context, n domain.Notification) (bool, error) {
	res, err := r.db.NamedExecContext(ctx,
		`INSERT INTO notifications (`+notificationColumns+`)
		 VALUES (:id, :recipient_id, :request_id, :type, :title, :message, :read, :created_at, :dedupe_key)
		 ON CONFLICT (dedupe_key) DO NOTHING`, n)
	if err != nil {
		return false, fmt.Errorf("insert notification for %s: %w", n.RecipientID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListByRecipient returns a recipient's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	var out []domain.Notification
	if err := r.db.SelectContext(ctx, &out,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE recipient_id = $1 ORDER BY created_at DESC, seq DESC`, recipientID); err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", recipientID, err)
	}
	return out, nil
}

// CountUnread returns how many of a recipient's notifications are unread.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT read`, recipientID); err != nil {
		return 0, fmt.Errorf("count unread for %s: %w", recipientID, err)
	}
	return n, nil
}

// MarkRead flips the read flag of one notification owned by recipientID.
// It reports whether the flag changed.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2 AND NOT read`,
		id, recipientID)
	if err != nil {
		return false, fmt.Errorf("mark notification %s read: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkAllRead marks every unread notification of recipientID as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND NOT read`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all read for %s: %w", recipientID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
