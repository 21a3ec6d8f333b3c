package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/service"
)

// MessageHandler serves the user/admin thread endpoints.
type MessageHandler struct {
	messages *service.MessageService
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type postBody struct {
	Text string `json:"text" validate:"max=4000"`
}

// Threads lists every thread key. Admin only.
func (h *MessageHandler) Threads(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	keys, err := h.messages.Threads(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, keys)
}

// History returns a thread's messages after the optional offset cursor.
func (h *MessageHandler) History(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	var after int64
	if raw := c.QueryParam("after"); raw != "" {
		after, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return &domain.ValidationError{Field: "after", Message: "offset must be an integer"}
		}
	}

	msgs, err := h.messages.History(c.Request().Context(), actor, threadKey(c, actor), after)
	if err != nil {
		return err
	}

	next := after + int64(len(msgs))
	return JSONList(c, http.StatusOK, msgs, PaginationMeta{NextCursor: strconv.FormatInt(next, 10)})
}

// Post appends a message to a thread.
func (h *MessageHandler) Post(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}

	var body postBody
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&body); err != nil {
		return err
	}

	msg, err := h.messages.Post(c.Request().Context(), actor, threadKey(c, actor), body.Text)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, msg)
}

// threadKey resolves the :key path parameter; "me" is the actor's own thread.
func threadKey(c echo.Context, actor domain.Actor) string {
	key := c.Param("key")
	if key == "me" {
		return domain.ThreadKeyFor(actor.ID)
	}
	return key
}
