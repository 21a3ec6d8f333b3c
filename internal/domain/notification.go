package domain

import "time"

// NotificationType represents the kind of notification.
type NotificationType string

const (
	NotificationStatusUpdate    NotificationType = "status_update"
	NotificationServiceReminder NotificationType = "service_reminder"
	NotificationMessage         NotificationType = "message"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationStatusUpdate, NotificationServiceReminder, NotificationMessage:
		return true
	}
	return false
}

// Notification represents an in-app notification for an actor.
type Notification struct {
	ID          string           `json:"id" db:"id"`
	RecipientID string           `json:"recipient_id" db:"recipient_id"`
	RequestID   *string          `json:"request_id,omitempty" db:"request_id"`
	Type        NotificationType `json:"type" db:"type"`
	Title       string           `json:"title" db:"title"`
	Message     string           `json:"message" db:"message"`
	Read        bool             `json:"read" db:"read"`
	CreatedAt   time.Time        `json:"timestamp" db:"created_at"`

	// DedupeKey suppresses a second append of the same logical notification.
	DedupeKey *string `json:"-" db:"dedupe_key"`
}
