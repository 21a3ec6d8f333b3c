package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/service"
)

// NotificationHandler serves the notification endpoints.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

type reminderBody struct {
	RecipientID string  `json:"recipient_id" validate:"required"`
	RequestID   *string `json:"request_id"`
	Title       string  `json:"title" validate:"required,max=200"`
	Message     string  `json:"message" validate:"max=2000"`
}

// List returns the actor's notifications, newest first.
func (h *NotificationHandler) List(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	list, err := h.notifications.ListFor(c.Request().Context(), actor.ID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, list)
}

// UnreadCount returns the number of unread notifications.
func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	n, err := h.notifications.UnreadCountFor(c.Request().Context(), actor.ID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]int{"unread": n})
}

// MarkRead marks one notification read. Unknown ids succeed too.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	if err := h.notifications.MarkRead(c.Request().Context(), actor, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead marks every notification of the actor read.
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	n, err := h.notifications.MarkAllRead(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]int{"marked": n})
}

// Reminder accepts a service reminder from the external scheduler.
func (h *NotificationHandler) Reminder(c echo.Context) error {
	var body reminderBody
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&body); err != nil {
		return err
	}

	n, _, err := h.notifications.Append(c.Request().Context(), service.NotificationInput{
		RecipientID: body.RecipientID,
		RequestID:   body.RequestID,
		Type:        domain.NotificationServiceReminder,
		Title:       body.Title,
		Message:     body.Message,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, n)
}
